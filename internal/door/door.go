// Package door positions the ventilation door servo and turns button
// edges into events. Edge timestamps come from the kernel's monotonic
// clock (or synthetic ones in tests), so debouncing never depends on
// wall time.
package door

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/co-monitor/internal/safety"
)

// Servo drives the door servo at the pulse-width level.
type Servo interface {
	// SetPulse sets the output pulse width in microseconds.
	SetPulse(us int) error

	// Close releases the servo output.
	Close() error
}

// Servo timing defaults. A standard hobby servo at 50 Hz with 500 µs to
// 2400 µs pulse endpoints covering 0–180°.
const (
	PWMFrequencyHz = 50
	DefaultMinUS   = 500
	DefaultMaxUS   = 2400

	OpenAngle  = 90
	CloseAngle = 0
)

// DebounceWindow rejects button edges closer than this to the previous
// accepted edge.
const DebounceWindow = 200 * time.Millisecond

// pulseForAngle maps an angle in [0, 180] to a pulse width by linear
// interpolation between minUS and maxUS. Integer truncation is part of
// the contract; do not round.
func pulseForAngle(angle, minUS, maxUS int) int {
	if angle < 0 {
		angle = 0
	}
	if angle > 180 {
		angle = 180
	}
	return minUS + (maxUS-minUS)*angle/180
}

// Config tunes the actuator. Zero pulse endpoints get the defaults.
type Config struct {
	MinPulseUS int
	MaxPulseUS int
}

// Actuator owns the door servo and the button debounce state. The
// machine drives Open/Close; the button backend feeds HandleEdge; the
// command dispatcher calls OpenRequest.
type Actuator struct {
	cfg    Config
	servo  Servo
	events chan<- safety.Event

	mu       sync.Mutex
	lastEdge time.Duration
	hasEdge  bool
}

// NewActuator wires an actuator to the servo and the core event channel.
func NewActuator(cfg Config, servo Servo, core *safety.Core) *Actuator {
	if cfg.MinPulseUS <= 0 {
		cfg.MinPulseUS = DefaultMinUS
	}
	if cfg.MaxPulseUS <= 0 {
		cfg.MaxPulseUS = DefaultMaxUS
	}
	return &Actuator{
		cfg:    cfg,
		servo:  servo,
		events: core.Events,
	}
}

// SetAngle positions the servo at the given angle. With no servo wired
// (degraded mode) it reports an error; button and request handling keep
// working without one.
func (a *Actuator) SetAngle(angle int) error {
	if a.servo == nil {
		return fmt.Errorf("set angle %d: no servo", angle)
	}
	us := pulseForAngle(angle, a.cfg.MinPulseUS, a.cfg.MaxPulseUS)
	if err := a.servo.SetPulse(us); err != nil {
		return fmt.Errorf("set angle %d: %w", angle, err)
	}
	return nil
}

// Open swings the door to the ventilation position.
func (a *Actuator) Open() error {
	return a.SetAngle(OpenAngle)
}

// Close swings the door shut.
func (a *Actuator) Close() error {
	return a.SetAngle(CloseAngle)
}

// HandleEdge consumes one falling-edge timestamp from the button line.
// Edges within DebounceWindow of the previous accepted edge are
// rejected. Accepted edges enqueue a ButtonPress without blocking; a
// full channel drops the press. Must not block: the real backend calls
// it from the gpiocdev event goroutine.
func (a *Actuator) HandleEdge(ts time.Duration) {
	a.mu.Lock()
	if a.hasEdge && ts-a.lastEdge < DebounceWindow {
		a.mu.Unlock()
		return
	}
	a.lastEdge = ts
	a.hasEdge = true
	a.mu.Unlock()

	if !safety.TrySendEvent(a.events, safety.Event{Type: safety.EventButtonPress}) {
		log.Printf("door: event channel full, dropped button press")
	}
}

// OpenRequest enqueues a remote door-open request. Same event as the
// physical button, same drop-on-full policy, no debounce.
func (a *Actuator) OpenRequest() {
	if !safety.TrySendEvent(a.events, safety.Event{Type: safety.EventCmdOpenDoor}) {
		log.Printf("door: event channel full, dropped open request")
	}
}

// Button delivers debounced press events from a physical input line.
type Button interface {
	// Watch feeds edges into the actuator until ctx is cancelled.
	Watch(ctx context.Context, a *Actuator) error

	// Close releases the input line.
	Close() error
}
