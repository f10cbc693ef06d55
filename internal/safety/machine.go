package safety

import (
	"context"
	"log"
	"time"
)

// DoorControl positions the ventilation door.
type DoorControl interface {
	Open() error
	Close() error
}

// Lamp is a single panel indicator.
type Lamp interface {
	Set(on bool) error
}

// Sounder switches the audible alarm pattern on or off. It must not
// block; tone generation runs in its own task.
type Sounder interface {
	SetActive(active bool)
}

// Notifier is asked for an external emergency notification. The call
// must not block; delivery happens elsewhere.
type Notifier interface {
	EmergencyRaised(coPPM float64)
}

// Outputs collects the actuators driven by state entry actions. Any field
// may be nil when that peripheral failed to initialise; the machine then
// runs degraded and skips it.
type Outputs struct {
	Door      DoorControl
	SafeLamp  Lamp
	AlarmLamp Lamp
	Sounder   Sounder
	Notifier  Notifier
}

// Config carries machine timing. Start and Now exist so tests can inject
// a clock; both default sensibly when zero.
type Config struct {
	InitDuration time.Duration // self-test window after startup
	DoorOpenTime time.Duration // auto-close delay after a manual open
	Start        time.Time     // epoch for sample timestamps
	Now          func() time.Time
	// CurrentPPM reports the latest sensor reading for transition
	// samples and notifications. May be nil; the machine then falls
	// back to the last ppm seen in a CO_ALARM event.
	CurrentPPM func() float64
}

// Machine serialises all safety decisions. It consumes events from the
// core's event channel and is the only writer of the store.
type Machine struct {
	cfg     Config
	store   *Store
	events  <-chan Event
	samples chan<- Sample
	out     Outputs
	now     func() time.Time

	state        State
	lastPPM      float64
	selfTestOver time.Time // zero once self-test has completed
	doorCloseAt  time.Time // zero unless an auto-close is pending
	notified     bool      // notification sent this emergency session
}

// NewMachine wires a machine to the core and its outputs.
func NewMachine(cfg Config, core *Core, out Outputs) *Machine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Start.IsZero() {
		cfg.Start = cfg.Now()
	}
	return &Machine{
		cfg:     cfg,
		store:   core.Store,
		events:  core.Events,
		samples: core.Samples,
		out:     out,
		now:     cfg.Now,
	}
}

// Run executes the machine until ctx is cancelled. It enters the
// self-test state immediately, then waits on the event channel or the
// nearest pending deadline; there is no fixed polling interval.
func (m *Machine) Run(ctx context.Context) error {
	m.begin(m.now())

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	drainTimer(timer)

	for {
		var deadline <-chan time.Time
		if at, ok := m.nextDeadline(); ok {
			timer.Reset(at.Sub(m.now()))
			deadline = timer.C
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-m.events:
			if deadline != nil {
				drainTimer(timer)
			}
			now := m.now()
			m.handleEvent(ev, now)
			m.poll(now)
		case <-deadline:
			m.poll(m.now())
		}
	}
}

// drainTimer stops t and clears any already-fired value so that a
// subsequent Reset starts clean.
func drainTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

// begin applies the self-test state. Its telemetry sample is suppressed:
// nothing upstream cares about the INIT transition.
func (m *Machine) begin(now time.Time) {
	m.state = StateInit
	m.store.publish(StateInit)
	m.selfTestOver = now.Add(m.cfg.InitDuration)
	log.Printf("safety: self-test for %v", m.cfg.InitDuration)
	m.setDoor(true)
	m.setLamps(true, true)
	m.setSounder(true)
}

// handleEvent applies one event to the transition table. Combinations
// not listed here are deliberate no-ops, not errors.
func (m *Machine) handleEvent(ev Event, now time.Time) {
	switch m.state {
	case StateInit:
		switch ev.Type {
		case EventCoAlarm:
			m.lastPPM = ev.CoPPM
			m.transition(StateEmergency, now)
		case EventCmdStartEmergency:
			m.transition(StateEmergency, now)
		}

	case StateNormal:
		switch ev.Type {
		case EventButtonPress, EventCmdOpenDoor:
			m.transition(StateOpen, now)
		case EventCoAlarm:
			m.lastPPM = ev.CoPPM
			m.transition(StateEmergency, now)
		case EventCmdStartEmergency:
			m.transition(StateEmergency, now)
		}

	case StateOpen:
		switch ev.Type {
		case EventCoAlarm:
			m.lastPPM = ev.CoPPM
			m.transition(StateEmergency, now)
		case EventCmdStartEmergency:
			m.transition(StateEmergency, now)
		}

	case StateEmergency:
		switch ev.Type {
		case EventCoAlarm:
			// Re-confirmation of the active emergency: track the
			// reading, stay put.
			m.lastPPM = ev.CoPPM
		case EventCmdStopEmergency:
			m.transition(StateNormal, now)
		}
	}
}

// poll fires any deadline that has passed. Called on every wake so a
// deadline missed while handling an event is still honoured.
func (m *Machine) poll(now time.Time) {
	if m.state == StateInit && !m.selfTestOver.IsZero() && !now.Before(m.selfTestOver) {
		log.Printf("safety: self-test complete")
		m.transition(StateNormal, now)
	}
	if m.state == StateOpen && !m.doorCloseAt.IsZero() && !now.Before(m.doorCloseAt) {
		log.Printf("safety: door auto-close")
		m.transition(StateNormal, now)
	}
}

// nextDeadline reports the soonest pending timer for the current state.
func (m *Machine) nextDeadline() (time.Time, bool) {
	switch m.state {
	case StateInit:
		return m.selfTestOver, !m.selfTestOver.IsZero()
	case StateOpen:
		return m.doorCloseAt, !m.doorCloseAt.IsZero()
	}
	return time.Time{}, false
}

// transition moves to next, applies its entry actions and emits the
// labelled telemetry sample.
func (m *Machine) transition(next State, now time.Time) {
	prev := m.state
	m.state = next
	m.store.publish(next)
	log.Printf("safety: state %s -> %s", prev, next)

	switch next {
	case StateNormal:
		m.selfTestOver = time.Time{}
		m.doorCloseAt = time.Time{}
		m.notified = false
		m.setDoor(false)
		m.setLamps(true, false)
		m.setSounder(false)
		m.emit(LabelNormal, now)

	case StateOpen:
		m.doorCloseAt = now.Add(m.cfg.DoorOpenTime)
		m.setDoor(true)
		m.setLamps(true, false)
		m.setSounder(false)
		m.emit(LabelOpen, now)

	case StateEmergency:
		m.selfTestOver = time.Time{}
		m.doorCloseAt = time.Time{}
		m.setDoor(true)
		m.setLamps(false, true)
		m.setSounder(true)
		m.emit(LabelEmergency, now)
		if !m.notified {
			m.notified = true
			if m.out.Notifier != nil {
				m.out.Notifier.EmergencyRaised(m.currentPPM())
			}
		}
	}
}

func (m *Machine) emit(label string, now time.Time) {
	s := Sample{
		Timestamp:   TimestampMS(m.cfg.Start, now),
		CoPPM:       m.currentPPM(),
		AlarmActive: m.state == StateEmergency,
		DoorOpen:    m.state == StateOpen || m.state == StateEmergency,
		State:       m.state,
		Label:       label,
	}
	if !TrySendSample(m.samples, s) {
		log.Printf("safety: sample channel full, dropped %s", label)
	}
}

func (m *Machine) currentPPM() float64 {
	if m.cfg.CurrentPPM != nil {
		return m.cfg.CurrentPPM()
	}
	return m.lastPPM
}

func (m *Machine) setDoor(open bool) {
	if m.out.Door == nil {
		return
	}
	var err error
	if open {
		err = m.out.Door.Open()
	} else {
		err = m.out.Door.Close()
	}
	if err != nil {
		log.Printf("safety: door: %v", err)
	}
}

func (m *Machine) setLamps(safe, alarm bool) {
	if m.out.SafeLamp != nil {
		if err := m.out.SafeLamp.Set(safe); err != nil {
			log.Printf("safety: safe lamp: %v", err)
		}
	}
	if m.out.AlarmLamp != nil {
		if err := m.out.AlarmLamp.Set(alarm); err != nil {
			log.Printf("safety: alarm lamp: %v", err)
		}
	}
}

func (m *Machine) setSounder(active bool) {
	if m.out.Sounder != nil {
		m.out.Sounder.SetActive(active)
	}
}
