package door

import "sync"

// FakeServo is a test double that records the pulse widths it was set to.
type FakeServo struct {
	mu sync.Mutex

	// Pulses contains every pulse width set, in order.
	Pulses []int

	// Closed tracks if Close was called.
	Closed bool

	// SetError, if set, will be returned by SetPulse.
	SetError error
}

// NewFakeServo creates a FakeServo.
func NewFakeServo() *FakeServo {
	return &FakeServo{}
}

// SetPulse records the pulse width.
func (f *FakeServo) SetPulse(us int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.Pulses = append(f.Pulses, us)
	return nil
}

// LastPulse returns the most recent pulse width, or -1 if none was set.
func (f *FakeServo) LastPulse() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Pulses) == 0 {
		return -1
	}
	return f.Pulses[len(f.Pulses)-1]
}

// Close marks the servo as closed.
func (f *FakeServo) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
