package mqtt

import "sync"

// FakePublisher records published packets for test assertions. It
// implements the telemetry agent's Publisher, StatusPublisher and
// ConnectionStatus interfaces. Mutex-guarded: the agent publishes from
// its own goroutine in tests.
type FakePublisher struct {
	mu sync.Mutex

	// Telemetry contains every telemetry packet published.
	Telemetry [][]byte

	// Events contains every event packet published.
	Events [][]byte

	// Status contains every status packet published.
	Status [][]byte

	// PublishError, if set, will be returned by every publish method.
	PublishError error

	// Connected controls the return value of IsConnected.
	Connected bool

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishTelemetry records the packet.
func (f *FakePublisher) PublishTelemetry(pkt []byte) error {
	return f.record(&f.Telemetry, pkt)
}

// PublishEvent records the packet.
func (f *FakePublisher) PublishEvent(pkt []byte) error {
	return f.record(&f.Events, pkt)
}

// PublishStatus records the packet.
func (f *FakePublisher) PublishStatus(pkt []byte) error {
	return f.record(&f.Status, pkt)
}

func (f *FakePublisher) record(dst *[][]byte, pkt []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	*dst = append(*dst, append([]byte(nil), pkt...))
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// SetConnected flips the connection state seen by the agent.
func (f *FakePublisher) SetConnected(connected bool) {
	f.mu.Lock()
	f.Connected = connected
	f.mu.Unlock()
}

// SetPublishError sets the error returned by the publish methods.
func (f *FakePublisher) SetPublishError(err error) {
	f.mu.Lock()
	f.PublishError = err
	f.mu.Unlock()
}

// TelemetryCount returns the number of telemetry packets published.
func (f *FakePublisher) TelemetryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Telemetry)
}

// EventCount returns the number of event packets published.
func (f *FakePublisher) EventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Events)
}

// StatusCount returns the number of status packets published.
func (f *FakePublisher) StatusCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Status)
}

// TelemetryPackets returns a copy of the recorded telemetry packets.
func (f *FakePublisher) TelemetryPackets() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.Telemetry))
	copy(out, f.Telemetry)
	return out
}

// EventPackets returns a copy of the recorded event packets.
func (f *FakePublisher) EventPackets() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.Events))
	copy(out, f.Events)
	return out
}

// StatusPackets returns a copy of the recorded status packets.
func (f *FakePublisher) StatusPackets() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.Status))
	copy(out, f.Status)
	return out
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Reset clears recorded packets.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Telemetry = nil
	f.Events = nil
	f.Status = nil
	f.PublishError = nil
	f.Connected = false
	f.Closed = false
}
