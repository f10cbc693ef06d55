package buzzer

import (
	"testing"
	"time"

	"github.com/sweeney/co-monitor/internal/gpio"
)

func newTestAnnunciator() (*Annunciator, *gpio.FakeOutput, time.Time) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tone := gpio.NewFakeOutput()
	a := New(tone, func() time.Time { return start })
	return a, tone, start
}

func TestInactiveStaysSilent(t *testing.T) {
	a, tone, start := newTestAnnunciator()

	for i := 0; i < 100; i++ {
		a.step(start.Add(time.Duration(i) * PollInterval))
	}
	if tone.On() {
		t.Error("tone on while inactive")
	}
}

func TestActiveStartsLoudThenToggles(t *testing.T) {
	a, tone, start := newTestAnnunciator()
	a.SetActive(true)

	a.step(start)
	if !tone.On() {
		t.Fatal("expected tone on at first active poll")
	}

	// Still within the toggle period: no change.
	a.step(start.Add(TogglePeriod / 2))
	if !tone.On() {
		t.Error("tone flipped before the toggle period elapsed")
	}

	a.step(start.Add(TogglePeriod))
	if tone.On() {
		t.Error("expected tone off after one toggle period")
	}

	a.step(start.Add(2 * TogglePeriod))
	if !tone.On() {
		t.Error("expected tone back on after two toggle periods")
	}
}

func TestDeactivateForcesToneOff(t *testing.T) {
	a, tone, start := newTestAnnunciator()
	a.SetActive(true)
	a.step(start)
	if !tone.On() {
		t.Fatal("expected tone on while active")
	}

	a.SetActive(false)
	a.step(start.Add(PollInterval))
	if tone.On() {
		t.Error("expected tone off after deactivation")
	}
}

func TestReactivationStartsLoudAgain(t *testing.T) {
	a, tone, start := newTestAnnunciator()
	a.SetActive(true)
	a.step(start)
	a.SetActive(false)
	a.step(start.Add(PollInterval))

	// Reactivate just before what would have been the next toggle; the
	// cadence restarts instead of carrying the old phase.
	a.SetActive(true)
	a.step(start.Add(2 * PollInterval))
	if !tone.On() {
		t.Error("expected tone on immediately after reactivation")
	}
}

func TestPulseSoundsWithoutFlag(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := start
	tone := gpio.NewFakeOutput()
	a := New(tone, func() time.Time { return now })

	a.Pulse(time.Second)
	a.step(now)
	if !tone.On() {
		t.Fatal("expected tone on during a pulse")
	}

	// Pulse expired: forced off even though it was never deactivated.
	now = start.Add(1100 * time.Millisecond)
	a.step(now)
	if tone.On() {
		t.Error("expected tone off after the pulse window")
	}
}
