//go:build linux

package door

import (
	"context"
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealButton watches a GPIO input for falling edges. The kernel stamps
// each edge with the monotonic clock; those timestamps go straight into
// the actuator's debounce, so userspace scheduling jitter does not widen
// the window.
type RealButton struct {
	line  *gpiocdev.Line
	edges chan time.Duration
}

// NewRealButton requests pin on chip with a pull-up and falling-edge
// detection. A wired button shorts the line to ground when pressed.
func NewRealButton(chip string, pin int) (*RealButton, error) {
	b := &RealButton{edges: make(chan time.Duration, 4)}

	line, err := gpiocdev.RequestLine(chip, pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(b.onEvent))
	if err != nil {
		return nil, fmt.Errorf("request button pin %d: %w", pin, err)
	}
	b.line = line
	return b, nil
}

// onEvent runs on the gpiocdev event goroutine. It must not block, so
// the edge is handed over through a small buffered channel; if Watch has
// fallen behind the edge is dropped, which the debounce would have
// rejected anyway.
func (b *RealButton) onEvent(evt gpiocdev.LineEvent) {
	if evt.Type != gpiocdev.LineEventFallingEdge {
		return
	}
	select {
	case b.edges <- evt.Timestamp:
	default:
	}
}

// Watch feeds kernel edge timestamps into the actuator until ctx is
// cancelled.
func (b *RealButton) Watch(ctx context.Context, a *Actuator) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ts := <-b.edges:
			a.HandleEdge(ts)
		}
	}
}

// Close releases the input line.
func (b *RealButton) Close() error {
	if err := b.line.Close(); err != nil {
		return fmt.Errorf("close button line: %w", err)
	}
	return nil
}
