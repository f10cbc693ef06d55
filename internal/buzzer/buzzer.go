// Package buzzer produces the audible alarm warble in its own task, so
// tone cadence never blocks the state machine. The machine only flips
// the active flag; this task does the toggling.
package buzzer

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sweeney/co-monitor/internal/gpio"
)

// Poll and toggle cadence. While active the tone switches on/off every
// TogglePeriod, checked every PollInterval.
const (
	PollInterval = 10 * time.Millisecond
	TogglePeriod = 300 * time.Millisecond
)

// Annunciator toggles a tone output while its active flag is set. The
// flag is flipped by the state machine's entry actions; Pulse sounds the
// tone for a fixed window independent of the flag (TEST command).
type Annunciator struct {
	tone gpio.Output
	now  func() time.Time

	mu         sync.Mutex
	active     bool
	pulseUntil time.Time

	// toggle state, owned by the run loop
	toneOn     bool
	lastToggle time.Time
}

// New creates an annunciator driving tone. now defaults to time.Now.
func New(tone gpio.Output, now func() time.Time) *Annunciator {
	if now == nil {
		now = time.Now
	}
	return &Annunciator{tone: tone, now: now}
}

// SetActive flips the alarm flag. Never blocks; safe from any task.
func (a *Annunciator) SetActive(active bool) {
	a.mu.Lock()
	a.active = active
	a.mu.Unlock()
}

// Pulse sounds the tone for d from now, regardless of the alarm flag.
// Used as the local action for the TEST command.
func (a *Annunciator) Pulse(d time.Duration) {
	a.mu.Lock()
	a.pulseUntil = a.now().Add(d)
	a.mu.Unlock()
}

// Run polls the flag until ctx is cancelled, forcing the tone off on exit.
func (a *Annunciator) Run(ctx context.Context) error {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.setTone(false)
			return ctx.Err()
		case <-ticker.C:
			a.step(a.now())
		}
	}
}

// step advances the warble by one poll. Exported to the tests via the
// injected clock: while the flag (or a pulse window) is up, the tone
// flips every TogglePeriod; otherwise it is forced off.
func (a *Annunciator) step(now time.Time) {
	a.mu.Lock()
	sounding := a.active || now.Before(a.pulseUntil)
	a.mu.Unlock()

	if !sounding {
		if a.toneOn {
			a.toneOn = false
			a.setTone(false)
		}
		a.lastToggle = time.Time{}
		return
	}

	if a.lastToggle.IsZero() {
		// First poll of a new alarm: start loud immediately.
		a.toneOn = true
		a.lastToggle = now
		a.setTone(true)
		return
	}
	if now.Sub(a.lastToggle) >= TogglePeriod {
		a.toneOn = !a.toneOn
		a.lastToggle = now
		a.setTone(a.toneOn)
	}
}

func (a *Annunciator) setTone(on bool) {
	if a.tone == nil {
		return
	}
	if err := a.tone.Set(on); err != nil {
		log.Printf("buzzer: tone: %v", err)
	}
}
