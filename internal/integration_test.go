package internal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/co-monitor/internal/buzzer"
	"github.com/sweeney/co-monitor/internal/door"
	"github.com/sweeney/co-monitor/internal/gpio"
	"github.com/sweeney/co-monitor/internal/mqtt"
	"github.com/sweeney/co-monitor/internal/notify"
	"github.com/sweeney/co-monitor/internal/protocol"
	"github.com/sweeney/co-monitor/internal/safety"
	"github.com/sweeney/co-monitor/internal/sensor"
	"github.com/sweeney/co-monitor/internal/status"
	"github.com/sweeney/co-monitor/internal/telemetry"
)

// recordingNotifier collects emergency deliveries.
type recordingNotifier struct {
	mu      sync.Mutex
	deliver []float64
}

func (n *recordingNotifier) Notify(coPPM float64) error {
	n.mu.Lock()
	n.deliver = append(n.deliver, coPPM)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.deliver)
}

// rig wires the full daemon on fakes with short timings.
type rig struct {
	core     *safety.Core
	machine  *safety.Machine
	monitor  *sensor.Monitor
	agent    *telemetry.Agent
	buf      *telemetry.Buffer
	pub      *mqtt.FakePublisher
	tracker  *status.Tracker
	servo    *door.FakeServo
	actuator *door.Actuator
	reader   *sensor.FakeReader
	notifier *recordingNotifier
	tone     *gpio.FakeOutput
}

func startRig(t *testing.T, raws []int) *rig {
	t.Helper()

	core := safety.NewCore()
	tracker := status.NewTracker(time.Now(), status.Config{})
	pub := mqtt.NewFakePublisher()
	buf := telemetry.NewBuffer(telemetry.DefaultCapacity)

	servo := door.NewFakeServo()
	actuator := door.NewActuator(door.Config{}, servo, core)

	tone := gpio.NewFakeOutput()
	annunciator := buzzer.New(tone, nil)

	notifier := &recordingNotifier{}
	dispatcher := notify.NewDispatcher(notifier)

	reader := sensor.NewFakeReader(raws)
	monitor := sensor.NewMonitor(sensor.Config{
		Interval:     20 * time.Millisecond,
		ThresholdPPM: 35,
	}, reader, core)

	machine := safety.NewMachine(safety.Config{
		InitDuration: 50 * time.Millisecond,
		DoorOpenTime: 150 * time.Millisecond,
		CurrentPPM:   monitor.LastPPM,
	}, core, safety.Outputs{
		Door:      actuator,
		SafeLamp:  gpio.NewFakeOutput(),
		AlarmLamp: gpio.NewFakeOutput(),
		Sounder:   annunciator,
		Notifier:  dispatcher,
	})

	agent := telemetry.NewAgent(telemetry.Config{
		ReceiveTimeout: 10 * time.Millisecond,
		FlushDelay:     time.Millisecond,
		StatusInterval: time.Hour,
	}, core, buf, telemetry.Link{Pub: pub, Status: pub, Conn: pub}, tracker)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go machine.Run(ctx)
	go monitor.Run(ctx)
	go agent.Run(ctx)
	go annunciator.Run(ctx)
	go dispatcher.Run(ctx)

	return &rig{
		core: core, machine: machine, monitor: monitor, agent: agent,
		buf: buf, pub: pub, tracker: tracker, servo: servo,
		actuator: actuator, reader: reader, notifier: notifier, tone: tone,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func (r *rig) state() safety.State {
	return r.core.Store.State()
}

func TestIntegrationAlarmFlow(t *testing.T) {
	// Low readings through self-test, then a high one (4095 raw = 200
	// ppm) that must trip the emergency.
	raws := make([]int, 0, 20)
	for i := 0; i < 10; i++ {
		raws = append(raws, 100)
	}
	raws = append(raws, 4095)
	r := startRig(t, raws)
	r.pub.SetConnected(true)

	// Self-test ends, machine settles in NORMAL, door closed.
	waitFor(t, func() bool { return r.state() == safety.StateNormal })
	waitFor(t, func() bool { return r.servo.LastPulse() == 500 })

	// The scripted high reading arrives and trips the emergency.
	waitFor(t, func() bool { return r.state() == safety.StateEmergency })
	waitFor(t, func() bool { return r.servo.LastPulse() == 1450 }) // door open

	// Exactly one notification for the session, even though the fake
	// reader keeps returning the high value every tick.
	waitFor(t, func() bool { return r.notifier.count() == 1 })
	time.Sleep(100 * time.Millisecond)
	if r.notifier.count() != 1 {
		t.Errorf("notifications: got %d, want 1 per session", r.notifier.count())
	}

	// The transition published an EMERGENCY_ON event packet.
	waitFor(t, func() bool { return r.pub.EventCount() >= 1 })
	found := false
	for _, pkt := range r.pub.EventPackets() {
		s, err := protocol.DecodeEvent(pkt)
		if err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if s.Label == safety.LabelEmergency {
			found = true
			if !s.AlarmActive || !s.DoorOpen {
				t.Errorf("emergency event flags: alarm=%v door=%v", s.AlarmActive, s.DoorOpen)
			}
		}
	}
	if !found {
		t.Error("no EMERGENCY_ON event packet published")
	}

	// Stop command returns the machine to NORMAL and closes the door.
	r.core.Events <- safety.Event{Type: safety.EventCmdStopEmergency}
	waitFor(t, func() bool { return r.state() == safety.StateNormal })
	waitFor(t, func() bool { return r.servo.LastPulse() == 500 })
}

func TestIntegrationDoorCycle(t *testing.T) {
	r := startRig(t, []int{100})

	waitFor(t, func() bool { return r.state() == safety.StateNormal })

	// Button press opens the door; the auto-close timer returns to
	// NORMAL without further input.
	r.actuator.HandleEdge(time.Hour) // synthetic monotonic timestamp
	waitFor(t, func() bool { return r.state() == safety.StateOpen })
	waitFor(t, func() bool { return r.servo.LastPulse() == 1450 })

	waitFor(t, func() bool { return r.state() == safety.StateNormal })
	waitFor(t, func() bool { return r.servo.LastPulse() == 500 })
}

func TestIntegrationOfflineBufferingAndFlush(t *testing.T) {
	r := startRig(t, []int{100})

	waitFor(t, func() bool { return r.state() == safety.StateNormal })

	// Disconnected: periodic readings pile into the buffer.
	waitFor(t, func() bool { n, _ := r.buf.Len(); return n >= 3 })
	if r.pub.TelemetryCount() != 0 {
		t.Errorf("published while offline: %d", r.pub.TelemetryCount())
	}

	// Reconnect: backlog flushes, then live samples flow.
	r.pub.SetConnected(true)
	waitFor(t, func() bool { n, _ := r.buf.Len(); return n == 0 })
	before := r.pub.TelemetryCount()
	if before < 3 {
		t.Errorf("flushed packets: got %d, want >= 3", before)
	}
	waitFor(t, func() bool { return r.pub.TelemetryCount() > before })

	// Backlog counter surfaced through the tracker.
	if snap := r.tracker.Snapshot(); snap.Counts.TelemetryBuffered < 3 {
		t.Errorf("buffered counter: got %d, want >= 3", snap.Counts.TelemetryBuffered)
	}
}
