// Package notify carries emergency notification requests out of the
// safety path. The machine's entry action is a non-blocking signal; the
// dispatcher hands it to a Notifier from the lowest-priority task in the
// daemon, so external delivery can never stall an alarm response.
package notify

import (
	"context"
	"log"
)

// Notifier delivers one emergency notification. Implementations may take
// as long as they like; they run only on the dispatcher's task.
type Notifier interface {
	Notify(coPPM float64) error
}

// requestDepth bounds pending notifications. One per emergency session
// can ever be outstanding, so two slots of headroom is plenty.
const requestDepth = 2

// Dispatcher queues notification requests and delivers them in the
// background. This is the one task in the daemon allowed to wait
// unboundedly; nothing depends on its timeliness.
type Dispatcher struct {
	notifier Notifier
	requests chan float64
}

// NewDispatcher creates a dispatcher delivering through notifier.
func NewDispatcher(notifier Notifier) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		requests: make(chan float64, requestDepth),
	}
}

// EmergencyRaised requests a notification for the given reading. It
// never blocks; with the queue full the request is dropped, which only
// happens if deliveries are already pending.
func (d *Dispatcher) EmergencyRaised(coPPM float64) {
	select {
	case d.requests <- coPPM:
	default:
		log.Printf("notify: request queue full, dropping notification (%.2f ppm)", coPPM)
	}
}

// Run delivers requests until ctx is cancelled. Delivery errors are
// logged and dropped, never retried.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ppm := <-d.requests:
			if err := d.notifier.Notify(ppm); err != nil {
				log.Printf("notify: delivery failed: %v", err)
			}
		}
	}
}

// LogNotifier records emergencies in the daemon log. It stands in where
// no external delivery hook is configured.
type LogNotifier struct{}

// Notify logs the emergency.
func (LogNotifier) Notify(coPPM float64) error {
	log.Printf("notify: EMERGENCY co=%.2f ppm", coPPM)
	return nil
}
