package gpio

import "sync"

// FakeOutput is a test double that records the values it was driven to.
// Safe for concurrent use; tasks set outputs from their own goroutines.
type FakeOutput struct {
	mu sync.Mutex

	// on is the last value set.
	on bool

	// Sets counts calls to Set.
	Sets int

	// Closed tracks if Close was called.
	Closed bool

	// SetError, if set, will be returned by Set.
	SetError error
}

// NewFakeOutput creates a FakeOutput, initially off.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Set records the value.
func (f *FakeOutput) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.on = on
	f.Sets++
	return nil
}

// On reports the last value set.
func (f *FakeOutput) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}

// Close marks the output as closed.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
