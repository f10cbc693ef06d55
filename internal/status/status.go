// Package status provides a thread-safe status tracker for the co-monitor
// daemon. It is fed by the telemetry agent and the broker client and read
// by the HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/co-monitor/internal/safety"
)

// Config contains daemon configuration for display.
type Config struct {
	SampleMs       int64
	ThresholdPPM   float64
	SelfTestMs     int64
	DoorOpenMs     int64
	DebounceMs     int64
	Broker         string
	TopicPrefix    string
	HTTPAddr       string
	BufferCapacity int
}

// Counts accumulates publish and command activity since startup.
type Counts struct {
	TelemetrySent     int
	TelemetryBuffered int
	TelemetryDropped  int
	EventsSent        int
	AlarmsRaised      int
	CommandsReceived  int
	DecodeErrors      int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	State         safety.State
	CoPPM         float64
	AlarmActive   bool
	DoorOpen      bool
	Backlog       int
	MQTTConnected bool
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
// State begins at INIT to match the machine's self-test phase.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			State:     safety.StateInit,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// ObserveSample folds a delivered sample into the snapshot.
// Called by the telemetry agent for every sample it handles.
func (t *Tracker) ObserveSample(s safety.Sample) {
	t.mu.Lock()
	t.snap.State = s.State
	t.snap.CoPPM = s.CoPPM
	t.snap.AlarmActive = s.AlarmActive
	t.snap.DoorOpen = s.DoorOpen
	if s.Label == safety.LabelEmergency {
		t.snap.Counts.AlarmsRaised++
	}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetBacklog records the number of samples waiting in the offline buffer.
func (t *Tracker) SetBacklog(n int) {
	t.mu.Lock()
	t.snap.Backlog = n
	t.mu.Unlock()
}

// IncTelemetrySent counts one telemetry packet published to the broker.
func (t *Tracker) IncTelemetrySent() {
	t.mu.Lock()
	t.snap.Counts.TelemetrySent++
	t.mu.Unlock()
}

// IncTelemetryBuffered counts one sample pushed to the offline buffer.
func (t *Tracker) IncTelemetryBuffered() {
	t.mu.Lock()
	t.snap.Counts.TelemetryBuffered++
	t.mu.Unlock()
}

// IncTelemetryDropped counts one sample lost to a full buffer or a
// failed publish.
func (t *Tracker) IncTelemetryDropped() {
	t.mu.Lock()
	t.snap.Counts.TelemetryDropped++
	t.mu.Unlock()
}

// IncEventSent counts one event packet published to the broker.
func (t *Tracker) IncEventSent() {
	t.mu.Lock()
	t.snap.Counts.EventsSent++
	t.mu.Unlock()
}

// IncCommandReceived counts one command accepted from the broker.
func (t *Tracker) IncCommandReceived() {
	t.mu.Lock()
	t.snap.Counts.CommandsReceived++
	t.mu.Unlock()
}

// IncDecodeError counts one inbound packet that failed to decode.
func (t *Tracker) IncDecodeError() {
	t.mu.Lock()
	t.snap.Counts.DecodeErrors++
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
