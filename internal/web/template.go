package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/estop-sensor/internal/status"
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
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"rfc3339": func(t time.Time) string {
		return t.UTC().Format(time.RFC3339)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Emergency Stop Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.triggered { color: red; font-weight: bold; }
.clear { color: green; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Emergency Stop Sensor</h1>
{{if not .Config.Enabled}}<p class="unknown">Don't forget to configure the sensor pin.</p>{{end}}

<h2>State</h2>
<table>
{{$s := stateOrUnknown (printf "%s" .Sensor)}}
<tr><th>Sensor</th><td id="sensor-state" class="{{if eq $s "TRIGGERED"}}triggered{{else if eq $s "CLEAR"}}clear{{else}}unknown{{end}}">{{$s}}</td></tr>
<tr><th>Stop sent</th><td>{{if .Stopped}}yes{{else}}no{{end}}</td></tr>
<tr><th>Printing</th><td>{{if .Printing}}yes{{else}}no{{end}}</td></tr>
<tr><th>Ready</th><td>{{if .Baselined}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Sensor Test</h2>
<table>
<tr><th>Session</th><td>{{.Session}}</td></tr>
{{with .LastTest}}<tr><th>Last test</th><td>{{.State}}{{if .Err}} ({{.Kind}}){{else if .Reading.Triggered}} (triggered){{else}} (not triggered){{end}}</td></tr>
<tr><th>Finished</th><td>{{rfc3339 .Finished}}</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Triggered</th><td>{{.Counts.Triggered}}</td></tr>
<tr><th>Cleared</th><td>{{.Counts.Cleared}}</td></tr>
<tr><th>Stops</th><td>{{.Counts.Stops}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Pin</th><td>{{if .Config.Enabled}}{{.Config.Mode}} {{.Config.Pin}} ({{.Config.Wiring}}, trigger {{.Config.Trigger}}){{else}}disabled{{end}}</td></tr>
<tr><th>G-code</th><td>{{.Config.GCode}}</td></tr>
<tr><th>Driver</th><td>{{.Config.Driver}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{rfc3339 .StartTime}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Bounce time</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
