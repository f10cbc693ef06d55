package sensor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sweeney/co-monitor/internal/safety"
)

// HistorySize is the number of recent readings kept for diagnostics.
const HistorySize = 10

// Config tunes the monitor. Zero fields get defaults.
type Config struct {
	// Interval between samples.
	Interval time.Duration

	// ThresholdPPM raises a CO alarm event when reached.
	ThresholdPPM float64

	// Start is the epoch for sample timestamps.
	Start time.Time

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

const (
	defaultInterval  = 500 * time.Millisecond
	defaultThreshold = 35.0
)

// Monitor samples the sensor periodically, raises CO alarm events at or
// above the threshold, and emits a READING telemetry sample every tick.
// Both sends are non-blocking: under backpressure a reading is dropped
// and the next tick, at most Interval away, retries.
type Monitor struct {
	cfg     Config
	reader  Reader
	store   *safety.Store
	events  chan<- safety.Event
	samples chan<- safety.Sample

	mu      sync.Mutex
	history [HistorySize]float64
	count   int // total readings; history index is count mod HistorySize
}

// NewMonitor wires a monitor to the core's channels.
func NewMonitor(cfg Config, reader Reader, core *safety.Core) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.ThresholdPPM <= 0 {
		cfg.ThresholdPPM = defaultThreshold
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Start.IsZero() {
		cfg.Start = cfg.Now()
	}
	return &Monitor{
		cfg:     cfg,
		reader:  reader,
		store:   core.Store,
		events:  core.Events,
		samples: core.Samples,
	}
}

// Run samples until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.sample(m.cfg.Now())
		}
	}
}

// sample takes one reading and feeds the core. A read error skips the
// tick; the sensor may recover by the next one.
func (m *Monitor) sample(now time.Time) {
	raw, err := m.reader.Read()
	if err != nil {
		log.Printf("sensor: read error: %v", err)
		return
	}
	ppm := PPM(raw)
	m.record(ppm)

	if ppm >= m.cfg.ThresholdPPM {
		if !safety.TrySendEvent(m.events, safety.Event{Type: safety.EventCoAlarm, CoPPM: ppm}) {
			log.Printf("sensor: event channel full, dropped CO alarm (%.2f ppm)", ppm)
		}
	}

	state := m.store.State()
	s := safety.Sample{
		Timestamp:   safety.TimestampMS(m.cfg.Start, now),
		CoPPM:       ppm,
		AlarmActive: state == safety.StateEmergency,
		DoorOpen:    state == safety.StateOpen || state == safety.StateEmergency,
		State:       state,
		Label:       safety.LabelReading,
	}
	safety.TrySendSample(m.samples, s)
}

func (m *Monitor) record(ppm float64) {
	m.mu.Lock()
	m.history[m.count%HistorySize] = ppm
	m.count++
	m.mu.Unlock()
}

// History returns the most recent readings, oldest first.
func (m *Monitor) History() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.count
	if n > HistorySize {
		n = HistorySize
	}
	out := make([]float64, 0, n)
	start := m.count - n
	for i := start; i < m.count; i++ {
		out = append(out, m.history[i%HistorySize])
	}
	return out
}

// LastPPM returns the most recent reading, or 0 before the first one.
func (m *Monitor) LastPPM() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count == 0 {
		return 0
	}
	return m.history[(m.count-1)%HistorySize]
}
