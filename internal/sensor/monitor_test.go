package sensor

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/sweeney/co-monitor/internal/safety"
)

func TestPPMConversion(t *testing.T) {
	tests := []struct {
		raw  int
		want float64
	}{
		{0, 0},
		{4095, 200},
		{2048, 2048 * 200.0 / 4095.0},
		{-5, 0},     // clamped low
		{9000, 200}, // clamped high
	}
	for _, tt := range tests {
		got := PPM(tt.raw)
		if math.Abs(got-tt.want) > 0.001 {
			t.Errorf("PPM(%d): got %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func newTestMonitor(samples []int, threshold float64) (*Monitor, *safety.Core, time.Time) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	core := safety.NewCore()
	m := NewMonitor(Config{
		Interval:     500 * time.Millisecond,
		ThresholdPPM: threshold,
		Start:        start,
	}, NewFakeReader(samples), core)
	return m, core, start
}

func TestReadingBelowThresholdNoAlarm(t *testing.T) {
	// 512 raw ≈ 25 ppm, below the 35 ppm threshold.
	m, core, start := newTestMonitor([]int{512}, 35)
	m.sample(start.Add(time.Second))

	select {
	case ev := <-core.Events:
		t.Fatalf("unexpected event %v", ev.Type)
	default:
	}

	select {
	case s := <-core.Samples:
		if s.Label != safety.LabelReading {
			t.Errorf("label: got %q, want READING", s.Label)
		}
		if s.Timestamp != 1000 {
			t.Errorf("timestamp: got %d, want 1000", s.Timestamp)
		}
		if math.Abs(s.CoPPM-25.0) > 0.1 {
			t.Errorf("ppm: got %v, want ~25", s.CoPPM)
		}
		if s.State != safety.StateNormal {
			t.Errorf("state: got %v, want NORMAL (pre-init default)", s.State)
		}
	default:
		t.Fatal("expected a READING sample")
	}
}

func TestReadingAtThresholdRaisesAlarm(t *testing.T) {
	// 4095 raw = 200 ppm, far above threshold.
	m, core, start := newTestMonitor([]int{4095}, 35)
	m.sample(start)

	select {
	case ev := <-core.Events:
		if ev.Type != safety.EventCoAlarm {
			t.Errorf("event type: got %v, want CO_ALARM", ev.Type)
		}
		if math.Abs(ev.CoPPM-200) > 0.001 {
			t.Errorf("event ppm: got %v, want 200", ev.CoPPM)
		}
	default:
		t.Fatal("expected a CO alarm event")
	}
}

func TestAlarmDroppedWhenChannelFull(t *testing.T) {
	m, core, start := newTestMonitor([]int{4095}, 35)

	// Fill the event channel so the non-blocking send must drop.
	for i := 0; i < safety.EventDepth; i++ {
		core.Events <- safety.Event{Type: safety.EventButtonPress}
	}

	done := make(chan struct{})
	go func() {
		m.sample(start)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sample blocked on a full event channel")
	}

	if len(core.Events) != safety.EventDepth {
		t.Errorf("event channel length changed: %d", len(core.Events))
	}
}

func TestReadErrorSkipsTick(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	core := safety.NewCore()
	reader := NewFakeReader([]int{100})
	reader.ReadError = errors.New("i2c timeout")
	m := NewMonitor(Config{Start: start}, reader, core)

	m.sample(start)
	if len(core.Samples) != 0 || len(core.Events) != 0 {
		t.Error("expected nothing enqueued after a read error")
	}
}

func TestHistoryKeepsLastTen(t *testing.T) {
	raws := make([]int, 15)
	for i := range raws {
		raws[i] = i * 100
	}
	m, _, start := newTestMonitor(raws, 1000)

	for i := range raws {
		m.sample(start.Add(time.Duration(i) * 500 * time.Millisecond))
	}

	h := m.History()
	if len(h) != HistorySize {
		t.Fatalf("history length: got %d, want %d", len(h), HistorySize)
	}
	// Oldest surviving reading is sample 5 (raw 500).
	if math.Abs(h[0]-PPM(500)) > 0.001 {
		t.Errorf("history[0]: got %v, want %v", h[0], PPM(500))
	}
	if math.Abs(h[HistorySize-1]-PPM(1400)) > 0.001 {
		t.Errorf("history[last]: got %v, want %v", h[HistorySize-1], PPM(1400))
	}
	if math.Abs(m.LastPPM()-PPM(1400)) > 0.001 {
		t.Errorf("LastPPM: got %v, want %v", m.LastPPM(), PPM(1400))
	}
}

func TestSampleReflectsStoreState(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	core := safety.NewCore()
	core.Store.SetForTest(safety.StateEmergency)
	m := NewMonitor(Config{Start: start, ThresholdPPM: 1000}, NewFakeReader([]int{100}), core)

	m.sample(start)
	s := <-core.Samples
	if s.State != safety.StateEmergency || !s.AlarmActive || !s.DoorOpen {
		t.Errorf("sample flags: got state=%v alarm=%v door=%v, want EMERGENCY/true/true",
			s.State, s.AlarmActive, s.DoorOpen)
	}
}
