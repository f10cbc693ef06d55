// Package safety holds the core data model and the safety state machine.
// The machine is the ONLY writer of the shared state store; every other
// task talks to it through one bounded event channel, so all transitions
// are serialised in arrival order. Time is injectable for tests.
package safety

import (
	"sync"
	"time"
)

// Channel depths. Producers use non-blocking sends, so a full channel
// drops the message rather than stalling the producer.
const (
	EventDepth  = 10
	SampleDepth = 10
)

// State is the safety state of the monitor. The numeric value is also
// the wire encoding used in telemetry and status packets.
type State uint8

const (
	StateInit State = iota
	StateNormal
	StateOpen
	StateEmergency
)

// String returns the short name used in logs and diagnostics.
func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateNormal:
		return "NORMAL"
	case StateOpen:
		return "OPEN"
	case StateEmergency:
		return "EMERGENCY"
	default:
		return "UNKNOWN"
	}
}

// EventType identifies an input to the state machine.
type EventType uint8

const (
	EventButtonPress EventType = iota
	EventCoAlarm
	EventCmdStartEmergency
	EventCmdStopEmergency
	EventCmdTest
	EventCmdOpenDoor
)

// String returns the event name used in logs.
func (e EventType) String() string {
	switch e {
	case EventButtonPress:
		return "BUTTON_PRESS"
	case EventCoAlarm:
		return "CO_ALARM"
	case EventCmdStartEmergency:
		return "CMD_START_EMERGENCY"
	case EventCmdStopEmergency:
		return "CMD_STOP_EMERGENCY"
	case EventCmdTest:
		return "CMD_TEST"
	case EventCmdOpenDoor:
		return "CMD_OPEN_DOOR"
	default:
		return "UNKNOWN"
	}
}

// Event is a single input delivered to the state machine. CoPPM is only
// meaningful for CO_ALARM events.
type Event struct {
	Type  EventType
	CoPPM float64
}

// Sample is one telemetry observation, produced by the machine on state
// transitions and by the sensor monitor on periodic readings.
type Sample struct {
	Timestamp   uint32 // milliseconds since daemon start
	CoPPM       float64
	AlarmActive bool
	DoorOpen    bool
	State       State
	Label       string // transition label or LabelReading, at most 16 bytes
}

// Sample labels. The agent publishes an extra event packet for any label
// other than LabelReading.
const (
	LabelReading   = "READING"
	LabelNormal    = "STATE_NORMAL"
	LabelOpen      = "STATE_OPEN"
	LabelEmergency = "EMERGENCY_ON"
)

// Store holds the current state for concurrent readers. Reads before the
// machine has published a state return StateNormal, so telemetry produced
// during early startup never looks like an emergency.
type Store struct {
	mu    sync.RWMutex
	state State
	set   bool
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// State returns the last published state, or StateNormal before the first
// publish.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return StateNormal
	}
	return s.state
}

// SetForTest publishes a state directly, bypassing the machine. Tests
// in other packages use it to stage a state; production code must not.
func (s *Store) SetForTest(state State) {
	s.publish(state)
}

func (s *Store) publish(state State) {
	s.mu.Lock()
	s.state = state
	s.set = true
	s.mu.Unlock()
}

// Core bundles the state store and the two shared channels. It is built
// once at startup and passed by reference into each task; nothing in this
// package lives at package scope.
type Core struct {
	Store   *Store
	Events  chan Event
	Samples chan Sample
}

// NewCore constructs the store and channels with their fixed depths.
func NewCore() *Core {
	return &Core{
		Store:   NewStore(),
		Events:  make(chan Event, EventDepth),
		Samples: make(chan Sample, SampleDepth),
	}
}

// TrySendEvent delivers ev without blocking. It is safe from edge
// callbacks and tick handlers: when the channel is full the event is
// dropped and false is returned.
func TrySendEvent(ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	default:
		return false
	}
}

// TrySendSample delivers s without blocking, dropping it when the channel
// is full.
func TrySendSample(ch chan<- Sample, s Sample) bool {
	select {
	case ch <- s:
		return true
	default:
		return false
	}
}

// TimestampMS returns the sample timestamp for now relative to start.
// The value wraps after about 49.7 days, matching the u32 wire width.
func TimestampMS(start, now time.Time) uint32 {
	return uint32(now.Sub(start).Milliseconds())
}
