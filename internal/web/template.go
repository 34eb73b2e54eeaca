package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/stack-telemetry/internal/status"
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
	"connected": func(ok bool) string {
		if ok {
			return "connected"
		}
		return "disconnected"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Stack Telemetry</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Stack Telemetry</h1>

<h2>Connectivity</h2>
<table>
<tr><th>State</th><td id="state">{{.State}}</td></tr>
<tr><th>WiFi</th><td class="{{connected .WifiConnected}}">{{connected .WifiConnected}}</td></tr>
<tr><th>MQTT</th><td class="{{connected .MQTTConnected}}">{{connected .MQTTConnected}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Client ID</th><td>{{.Config.ClientID}}</td></tr>
<tr><th>Connect attempts</th><td>{{.ConnectAttempts}} (last rc={{.LastConnectCode}})</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Publishing</h2>
<table>
<tr><th>Topic</th><td>{{.Config.Topic}}</td></tr>
<tr><th>Succeeded</th><td>{{.Counts.PublishOK}}</td></tr>
<tr><th>Failed</th><td>{{.Counts.PublishFailed}}</td></tr>
{{if .Config.SpoolEnabled}}<tr><th>Spooled</th><td>{{.Counts.Spooled}}</td></tr>{{end}}
<tr><th>Last success</th><td>{{if .LastPublish.IsZero}}never{{else}}{{.LastPublish.UTC.Format "2006-01-02T15:04:05Z"}}{{end}}</td></tr>
{{if .LastError}}<tr><th>Last error</th><td>{{.LastError}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Period</th><td>{{.Config.PeriodMs}}ms</td></tr>
<tr><th>Link poll</th><td>{{.Config.LinkPollMs}}ms</td></tr>
<tr><th>Broker retry</th><td>{{.Config.BrokerRetryMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() and connection methods but the template needs plain fields.
	data := struct {
		status.Snapshot
		Uptime        time.Duration
		WifiConnected bool
		MQTTConnected bool
	}{
		Snapshot:      snap,
		Uptime:        snap.Uptime(),
		WifiConnected: snap.WifiConnected(),
		MQTTConnected: snap.MQTTConnected(),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("web: render index: %v", err)
	}
}
