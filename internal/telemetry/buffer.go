// Package telemetry forwards samples from the safety core to the broker.
// The Buffer absorbs samples while the link is down; the Agent is the
// sole consumer of the sample channel and drains the backlog, oldest
// first, when the connection comes back.
package telemetry

import (
	"log"
	"time"

	"github.com/sweeney/co-monitor/internal/safety"
)

// DefaultCapacity is the number of samples retained while offline.
// Oldest entries are evicted first once the buffer is full.
const DefaultCapacity = 100

// defaultLockTimeout bounds how long a caller waits for the buffer lock.
// Operations report failure instead of blocking past it.
const defaultLockTimeout = 100 * time.Millisecond

// Buffer is a fixed-capacity FIFO of samples that overwrites the oldest
// entry when full. The lock is a channel semaphore so acquisition can be
// bounded; on timeout an operation fails without mutating state.
type Buffer struct {
	sem      chan struct{} // holds one token while locked
	timeout  time.Duration
	buf      []safety.Sample
	capacity int
	head     int // next write position
	count    int
	overflow bool // true if any sample was evicted since last empty
}

// NewBuffer returns a Buffer holding at most capacity samples.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{
		sem:      make(chan struct{}, 1),
		timeout:  defaultLockTimeout,
		buf:      make([]safety.Sample, capacity),
		capacity: capacity,
	}
}

// acquire takes the lock, giving up after the configured timeout.
func (b *Buffer) acquire() bool {
	select {
	case b.sem <- struct{}{}:
		return true
	case <-time.After(b.timeout):
		return false
	}
}

func (b *Buffer) release() {
	<-b.sem
}

// Push adds a sample, evicting the oldest when full. It returns false
// when the lock could not be taken in time and the sample was not stored.
func (b *Buffer) Push(s safety.Sample) bool {
	if !b.acquire() {
		return false
	}
	defer b.release()

	if b.count == b.capacity {
		if !b.overflow {
			log.Printf("telemetry: buffer full (%d samples), evicting oldest", b.capacity)
			b.overflow = true
		}
		// Overwrite oldest: head is already pointing at it
		b.buf[b.head] = s
		b.head = (b.head + 1) % b.capacity
		// count stays at capacity
		return true
	}
	b.buf[b.head] = s
	b.head = (b.head + 1) % b.capacity
	b.count++
	return true
}

// Pop removes and returns the oldest sample. ok is false when the
// buffer is empty or the lock could not be taken in time.
func (b *Buffer) Pop() (s safety.Sample, ok bool) {
	if !b.acquire() {
		return safety.Sample{}, false
	}
	defer b.release()

	if b.count == 0 {
		return safety.Sample{}, false
	}
	// Oldest item is at (head - count) mod capacity
	oldest := (b.head - b.count + b.capacity) % b.capacity
	s = b.buf[oldest]
	b.count--
	if b.count == 0 {
		b.head = 0
		b.overflow = false
	}
	return s, true
}

// Len reports the number of buffered samples. ok is false when the lock
// could not be taken in time.
func (b *Buffer) Len() (int, bool) {
	if !b.acquire() {
		return 0, false
	}
	defer b.release()
	return b.count, true
}
