package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	State         string     `json:"state"`
	CoPPM         float64    `json:"co_ppm"`
	AlarmActive   bool       `json:"alarm_active"`
	DoorOpen      bool       `json:"door_open"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Backlog       int        `json:"backlog"`
	Counts        CountsJSON `json:"counts"`
	Config        ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of activity counters.
type CountsJSON struct {
	TelemetrySent     int `json:"telemetry_sent"`
	TelemetryBuffered int `json:"telemetry_buffered"`
	TelemetryDropped  int `json:"telemetry_dropped"`
	EventsSent        int `json:"events_sent"`
	AlarmsRaised      int `json:"alarms_raised"`
	CommandsReceived  int `json:"commands_received"`
	DecodeErrors      int `json:"decode_errors"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	SampleMs       int64   `json:"sample_ms"`
	ThresholdPPM   float64 `json:"threshold_ppm"`
	SelfTestMs     int64   `json:"self_test_ms"`
	DoorOpenMs     int64   `json:"door_open_ms"`
	DebounceMs     int64   `json:"debounce_ms"`
	Broker         string  `json:"broker"`
	TopicPrefix    string  `json:"topic_prefix"`
	HTTPAddr       string  `json:"http_addr"`
	BufferCapacity int     `json:"buffer_capacity"`
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	inner := StatusInner{
		State:         snap.State.String(),
		CoPPM:         snap.CoPPM,
		AlarmActive:   snap.AlarmActive,
		DoorOpen:      snap.DoorOpen,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Backlog:       snap.Backlog,
		Counts: CountsJSON{
			TelemetrySent:     snap.Counts.TelemetrySent,
			TelemetryBuffered: snap.Counts.TelemetryBuffered,
			TelemetryDropped:  snap.Counts.TelemetryDropped,
			EventsSent:        snap.Counts.EventsSent,
			AlarmsRaised:      snap.Counts.AlarmsRaised,
			CommandsReceived:  snap.Counts.CommandsReceived,
			DecodeErrors:      snap.Counts.DecodeErrors,
		},
		Config: ConfigJSON{
			SampleMs:       snap.Config.SampleMs,
			ThresholdPPM:   snap.Config.ThresholdPPM,
			SelfTestMs:     snap.Config.SelfTestMs,
			DoorOpenMs:     snap.Config.DoorOpenMs,
			DebounceMs:     snap.Config.DebounceMs,
			Broker:         snap.Config.Broker,
			TopicPrefix:    snap.Config.TopicPrefix,
			HTTPAddr:       snap.Config.HTTPAddr,
			BufferCapacity: snap.Config.BufferCapacity,
		},
	}

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}
