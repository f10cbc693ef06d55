// Package mqtt is the connectivity manager: one paho client with our
// own retry policy, a last-will status packet, and inbound command
// decoding. Everything above it talks in encoded protocol packets; this
// package only moves bytes and connection state.
package mqtt

import (
	"log"
	"os"
	"time"

	"github.com/denisbrodbeck/machineid"

	"github.com/sweeney/co-monitor/internal/protocol"
	"github.com/sweeney/co-monitor/internal/safety"
)

// DefaultPrefix roots the device's topic tree.
const DefaultPrefix = "home/co-monitor"

// Topics are the four topic roles the device uses.
type Topics struct {
	Telemetry string // device→cloud periodic readings, QoS 0
	Events    string // device→cloud transitions, QoS 1
	Status    string // device→cloud retained status + last-will, QoS 1
	Commands  string // cloud→device command packets
}

// TopicsFor derives the topic set from a prefix.
func TopicsFor(prefix string) Topics {
	return Topics{
		Telemetry: prefix + "/telemetry",
		Events:    prefix + "/events",
		Status:    prefix + "/status",
		Commands:  prefix + "/commands",
	}
}

// ClientID returns override if set, else a stable per-device ID from the
// machine ID, else a hostname-derived fallback. Stability matters: the
// broker tracks the retained status and QoS 1 session by client ID.
func ClientID(override string) string {
	if override != "" {
		return override
	}
	if id, err := machineid.ID(); err == nil {
		if len(id) > 12 {
			id = id[:12]
		}
		return "co-monitor-" + id
	}
	host, err := os.Hostname()
	if err != nil {
		return "co-monitor"
	}
	return "co-monitor-" + host
}

// forwardTimeout bounds how long a decoded command waits for room in the
// event channel before being dropped.
const forwardTimeout = 100 * time.Millisecond

// CommandSink receives routed commands. Events go to the safety core;
// TEST is a local action (brief buzzer pulse) and never reaches the
// machine.
type CommandSink struct {
	Events chan<- safety.Event
	OnTest func()
}

// router decodes inbound command frames and routes them. Split from the
// client so dispatch is testable without a broker.
type router struct {
	sink    CommandSink
	tracker Tracker
}

// Tracker is the slice of the status tracker this package feeds. Nil-safe
// via noopTracker.
type Tracker interface {
	SetMQTTConnected(connected bool)
	IncCommandReceived()
	IncDecodeError()
}

type noopTracker struct{}

func (noopTracker) SetMQTTConnected(bool) {}
func (noopTracker) IncCommandReceived()   {}
func (noopTracker) IncDecodeError()       {}

// handle decodes one command frame and routes it. Decode failures are
// logged and dropped, never retried, never fatal.
func (r *router) handle(payload []byte) {
	cmd, err := protocol.DecodeCommand(payload)
	if err != nil {
		log.Printf("mqtt: bad command frame: %v", err)
		r.tracker.IncDecodeError()
		return
	}
	log.Printf("mqtt: command %s", cmd)
	r.tracker.IncCommandReceived()

	switch cmd {
	case protocol.CmdStartEmergency:
		r.forward(safety.Event{Type: safety.EventCmdStartEmergency})
	case protocol.CmdStopEmergency:
		r.forward(safety.Event{Type: safety.EventCmdStopEmergency})
	case protocol.CmdOpenDoor:
		r.forward(safety.Event{Type: safety.EventCmdOpenDoor})
	case protocol.CmdTest:
		if r.sink.OnTest != nil {
			r.sink.OnTest()
		}
	}
}

// forward delivers ev with a bounded wait. The machine drains its
// channel every pass, so a timeout here means it is wedged; dropping the
// command is safer than stacking goroutines behind it.
func (r *router) forward(ev safety.Event) {
	select {
	case r.sink.Events <- ev:
	case <-time.After(forwardTimeout):
		log.Printf("mqtt: event channel full, dropped command %s", ev.Type)
	}
}
