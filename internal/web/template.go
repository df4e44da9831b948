package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/ble-car/internal/logic"
	"github.com/sweeney/ble-car/internal/status"
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
	"dirClass": func(s string) string {
		if s == "STOPPED" || s == "" {
			return "off"
		}
		return "on"
	},
	"onOff": func(b bool) string {
		if b {
			return "ON"
		}
		return "OFF"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Config.DeviceName}}</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>{{.Config.DeviceName}}</h1>

<h2>Link</h2>
<table>
<tr><th>Controller</th><td class="{{if eq (printf "%s" .Link) "CONNECTED"}}connected{{else}}disconnected{{end}}">{{.Link}}</td></tr>
<tr><th>Transport</th><td>{{.Config.Transport}}</td></tr>
{{if .Session.ID}}<tr><th>Session</th><td>#{{.Session.ID}}{{if .Session.Peer}} ({{.Session.Peer}}){{end}}, {{.Session.Commands}} commands</td></tr>{{end}}
</table>

<h2>Vehicle</h2>
<table>
<tr><th>Front pair</th><td class="{{dirClass (printf "%s" .State.Front)}}">{{.State.Front}} @ {{.State.FrontSpeed}}</td></tr>
<tr><th>Back pair</th><td class="{{dirClass (printf "%s" .State.Back)}}">{{.State.Back}} @ {{.State.BackSpeed}}</td></tr>
<tr><th>Front lamp</th><td>{{onOff .State.FrontLampOutput}}</td></tr>
<tr><th>Back lamp</th><td>{{onOff .State.BackLampOutput}}</td></tr>
<tr><th>Blink</th><td>{{if .State.BlinkEnabled}}enabled{{else}}disabled{{end}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
</table>

<h2>Counts</h2>
<table>
<tr><th>Commands</th><td>{{.Counts.Commands}}</td></tr>
<tr><th>Unknown</th><td>{{.Counts.Unknown}}</td></tr>
<tr><th>Watchdog stops</th><td>{{.Counts.WatchdogStops}}</td></tr>
<tr><th>Sessions</th><td>{{.Counts.Sessions}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Command timeout</th><td>{{.Config.CommandTimeoutMs}}ms</td></tr>
<tr><th>Blink interval</th><td>{{.Config.BlinkIntervalMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
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

// driveHTML is a touch pad that drives the car over the WebSocket transport.
// A held button resends its command every 100ms so the watchdog stays fed;
// releasing it sends X. Speed sliders send S and T with a parameter byte.
var driveTmpl = template.Must(template.New("drive").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1, user-scalable=no">
<title>{{.Name}} drive</title>
<style>
body { font-family: monospace; max-width: 360px; margin: 1em auto; text-align: center; }
.pad { display: grid; grid-template-columns: repeat(3, 1fr); gap: 6px; }
.pad button, .lamps button { height: 64px; font-size: 1.2em; touch-action: none; }
.lamps { display: grid; grid-template-columns: repeat(3, 1fr); gap: 6px; margin-top: 1em; }
label { display: block; margin-top: 1em; }
#link { color: red; }
#link.up { color: green; }
</style>
</head>
<body>
<h1>{{.Name}}</h1>
<p id="link">disconnected</p>
<div class="pad">
<button data-cmd="G">&#8598;</button><button data-cmd="F">&#8593;</button><button data-cmd="H">&#8599;</button>
<button data-cmd="L">&#8592;</button><button data-cmd="X">&#9632;</button><button data-cmd="R">&#8594;</button>
<button data-cmd="I">&#8601;</button><button data-cmd="B">&#8595;</button><button data-cmd="J">&#8600;</button>
</div>
<div class="lamps">
<button data-toggle="Uu">front lamp</button><button data-toggle="Vv">back lamp</button><button data-toggle="Ww">blink</button>
</div>
<label>front speed <input id="front" type="range" min="180" max="255" value="{{.Speed}}"></label>
<label>back speed <input id="back" type="range" min="180" max="255" value="{{.Speed}}"></label>
<script>
const link = document.getElementById("link");
const proto = location.protocol === "https:" ? "wss://" : "ws://";
const ws = new WebSocket(proto + location.host + "{{.Path}}");
ws.binaryType = "arraybuffer";
ws.onopen = () => { link.textContent = "connected"; link.className = "up"; };
ws.onclose = () => { link.textContent = "disconnected"; link.className = ""; };
function send(cmd, value) {
  if (ws.readyState !== WebSocket.OPEN) return;
  const unit = value === undefined ? [cmd.charCodeAt(0)] : [cmd.charCodeAt(0), value];
  ws.send(new Uint8Array(unit));
}
let held = null;
function release() {
  if (held === null) return;
  clearInterval(held);
  held = null;
  send("X");
}
document.querySelectorAll("[data-cmd]").forEach(b => {
  b.addEventListener("pointerdown", () => {
    release();
    const cmd = b.dataset.cmd;
    send(cmd);
    if (cmd !== "X") held = setInterval(() => send(cmd), {{.RepeatMs}});
  });
  b.addEventListener("pointerup", release);
  b.addEventListener("pointerleave", release);
});
document.querySelectorAll("[data-toggle]").forEach(b => {
  let on = false;
  b.addEventListener("click", () => {
    on = !on;
    send(b.dataset.toggle[on ? 0 : 1]);
  });
});
document.getElementById("front").addEventListener("change", e => send("S", +e.target.value));
document.getElementById("back").addEventListener("change", e => send("T", +e.target.value));
</script>
</body>
</html>
`))

func renderDrive(w io.Writer, name, wsPath string) {
	driveTmpl.Execute(w, struct {
		Name     string
		Path     string
		Speed    int
		RepeatMs int
	}{
		Name:     name,
		Path:     wsPath,
		Speed:    logic.SpeedDefault,
		RepeatMs: 100,
	})
}
