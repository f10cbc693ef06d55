package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/co-monitor/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"onOff": func(b bool) string {
		if b {
			return "ON"
		}
		return "OFF"
	},
	"ppm": func(v float64) string {
		return fmt.Sprintf("%.2f", v)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>CO Monitor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.normal { color: green; font-weight: bold; }
.open { color: #06c; font-weight: bold; }
.emergency { color: red; font-weight: bold; }
.init { color: orange; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>CO Monitor</h1>

<h2>State</h2>
<table>
<tr><th>System</th><td class="{{if eq .State.String "NORMAL"}}normal{{else if eq .State.String "OPEN"}}open{{else if eq .State.String "EMERGENCY"}}emergency{{else}}init{{end}}">{{.State}}</td></tr>
<tr><th>CO</th><td>{{ppm .CoPPM}} ppm</td></tr>
<tr><th>Alarm</th><td>{{onOff .AlarmActive}}</td></tr>
<tr><th>Door</th><td>{{if .DoorOpen}}OPEN{{else}}CLOSED{{end}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Topic prefix</th><td>{{.Config.TopicPrefix}}</td></tr>
<tr><th>Backlog</th><td>{{.Backlog}} / {{.Config.BufferCapacity}}</td></tr>
</table>

<h2>Counters</h2>
<table>
<tr><th>Telemetry sent</th><td>{{.Counts.TelemetrySent}}</td></tr>
<tr><th>Telemetry buffered</th><td>{{.Counts.TelemetryBuffered}}</td></tr>
<tr><th>Telemetry dropped</th><td>{{.Counts.TelemetryDropped}}</td></tr>
<tr><th>Events sent</th><td>{{.Counts.EventsSent}}</td></tr>
<tr><th>Alarms raised</th><td>{{.Counts.AlarmsRaised}}</td></tr>
<tr><th>Commands received</th><td>{{.Counts.CommandsReceived}}</td></tr>
<tr><th>Decode errors</th><td>{{.Counts.DecodeErrors}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Sample interval</th><td>{{.Config.SampleMs}}ms</td></tr>
<tr><th>Alarm threshold</th><td>{{ppm .Config.ThresholdPPM}} ppm</td></tr>
<tr><th>Self-test</th><td>{{.Config.SelfTestMs}}ms</td></tr>
<tr><th>Door auto-close</th><td>{{.Config.DoorOpenMs}}ms</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
