package telemetry

import (
	"context"
	"log"
	"time"

	"github.com/sweeney/co-monitor/internal/protocol"
	"github.com/sweeney/co-monitor/internal/safety"
	"github.com/sweeney/co-monitor/internal/status"
)

// Publisher sends encoded packets to the broker.
type Publisher interface {
	// PublishTelemetry sends a telemetry packet (QoS 0, fire and forget).
	PublishTelemetry(pkt []byte) error

	// PublishEvent sends an event packet (QoS 1).
	PublishEvent(pkt []byte) error
}

// StatusPublisher sends the retained status packet (QoS 1).
type StatusPublisher interface {
	PublishStatus(pkt []byte) error
}

// ConnectionStatus reports whether the broker link is up.
type ConnectionStatus interface {
	IsConnected() bool
}

// Link groups the broker surfaces the agent drives. In production all
// three are the mqtt client; tests mix fakes.
type Link struct {
	Pub    Publisher
	Status StatusPublisher
	Conn   ConnectionStatus
}

// Config tunes the agent loop. Zero fields get defaults.
type Config struct {
	// ReceiveTimeout bounds one wait for a sample, so the connection
	// state is re-polled at least this often even when nothing arrives.
	ReceiveTimeout time.Duration

	// FlushDelay paces backlog publishes after a reconnect so a long
	// outage does not flood the broker all at once.
	FlushDelay time.Duration

	// StatusInterval is the retained status packet cadence.
	StatusInterval time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

const (
	defaultReceiveTimeout = 100 * time.Millisecond
	defaultFlushDelay     = 20 * time.Millisecond
	defaultStatusInterval = 30 * time.Second
)

// Agent forwards samples to the broker, buffering while offline. It is
// the sole consumer of the sample channel and the sole user of the
// buffer, so delivery order is preserved end to end: on reconnect the
// backlog drains fully before live samples resume.
type Agent struct {
	cfg     Config
	store   *safety.Store
	samples <-chan safety.Sample
	buf     *Buffer
	link    Link
	tracker *status.Tracker

	wasConnected bool
	lastStatus   time.Time
}

// NewAgent wires the agent to the core's sample channel and the buffer.
func NewAgent(cfg Config, core *safety.Core, buf *Buffer, link Link, tracker *status.Tracker) *Agent {
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = defaultReceiveTimeout
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = defaultFlushDelay
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = defaultStatusInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Agent{
		cfg:     cfg,
		store:   core.Store,
		samples: core.Samples,
		buf:     buf,
		link:    link,
		tracker: tracker,
	}
}

// Run processes samples until ctx is cancelled. Each pass captures the
// connection state once; a down-to-up edge triggers a backlog flush and
// an immediate status publish before live delivery resumes.
func (a *Agent) Run(ctx context.Context) error {
	wait := time.NewTimer(a.cfg.ReceiveTimeout)
	defer wait.Stop()

	for {
		connected := a.link.Conn.IsConnected()
		if connected && !a.wasConnected {
			a.flush(ctx)
			a.lastStatus = time.Time{}
		}
		a.wasConnected = connected

		if !wait.Stop() {
			select {
			case <-wait.C:
			default:
			}
		}
		wait.Reset(a.cfg.ReceiveTimeout)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-a.samples:
			a.handle(s, connected)
		case <-wait.C:
		}

		if connected {
			a.maybeStatus()
		}
	}
}

// handle publishes or buffers one sample depending on connectivity.
func (a *Agent) handle(s safety.Sample, connected bool) {
	a.tracker.ObserveSample(s)

	if !connected {
		if a.buf.Push(s) {
			a.tracker.IncTelemetryBuffered()
			a.updateBacklog()
		} else {
			log.Printf("telemetry: buffer busy, dropping %q sample", s.Label)
			a.tracker.IncTelemetryDropped()
		}
		return
	}
	a.publish(s)
}

// publish sends the telemetry packet, plus an event packet for any
// label other than the periodic reading.
func (a *Agent) publish(s safety.Sample) {
	if err := a.link.Pub.PublishTelemetry(protocol.EncodeTelemetry(s)); err != nil {
		log.Printf("telemetry: publish failed: %v", err)
		a.tracker.IncTelemetryDropped()
	} else {
		a.tracker.IncTelemetrySent()
	}

	if s.Label == safety.LabelReading {
		return
	}
	if err := a.link.Pub.PublishEvent(protocol.EncodeEvent(s)); err != nil {
		log.Printf("telemetry: event publish failed: %v", err)
	} else {
		a.tracker.IncEventSent()
	}
}

// flush drains the backlog oldest first, pacing publishes by FlushDelay.
// A Pop failure (lock contention) leaves the remainder for the next
// reconnect edge rather than spinning here.
func (a *Agent) flush(ctx context.Context) {
	n, ok := a.buf.Len()
	if !ok || n == 0 {
		return
	}
	log.Printf("telemetry: connection restored, flushing %d buffered samples", n)

	sent := 0
	for {
		s, ok := a.buf.Pop()
		if !ok {
			break
		}
		a.publish(s)
		sent++

		select {
		case <-ctx.Done():
			a.updateBacklog()
			return
		case <-time.After(a.cfg.FlushDelay):
		}
	}
	a.updateBacklog()
	log.Printf("telemetry: flushed %d buffered samples", sent)
}

func (a *Agent) updateBacklog() {
	if n, ok := a.buf.Len(); ok {
		a.tracker.SetBacklog(n)
	}
}

// maybeStatus publishes the retained status packet when the interval
// has elapsed. lastStatus is zeroed on reconnect so the first pass after
// an edge publishes immediately.
func (a *Agent) maybeStatus() {
	now := a.cfg.Now()
	if !a.lastStatus.IsZero() && now.Sub(a.lastStatus) < a.cfg.StatusInterval {
		return
	}

	state := a.store.State()
	pkt := protocol.EncodeStatus(state != safety.StateInit, state)
	if err := a.link.Status.PublishStatus(pkt); err != nil {
		log.Printf("telemetry: status publish failed: %v", err)
		return
	}
	a.lastStatus = now
}
