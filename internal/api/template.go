package api

import (
	"html/template"
	"io"

	"github.com/adarcie/CustomSmartThermostat/internal/card"
	"github.com/adarcie/CustomSmartThermostat/internal/model"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"statusClass": func(s model.Status) string {
		switch s {
		case model.StatusPending:
			return "pending"
		case model.StatusWaiting:
			return "waiting"
		default:
			return "live"
		}
	},
}).Parse(indexHTML))

func renderIndex(w io.Writer, views []card.View) error {
	return indexTmpl.Execute(w, struct{ Cards []card.View }{Cards: views})
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Thermostats</title>
<style>
body { font-family: sans-serif; max-width: 720px; margin: 2em auto; padding: 0 1em; }
.card { border: 1px solid #ddd; border-radius: 8px; padding: 1em; margin: 1em 0; }
.card h2 { font-size: 1.2em; margin: 0 0 .5em; }
.row { display: flex; gap: .5em; align-items: center; margin: .4em 0; }
.reading { font-size: 1.6em; font-variant-numeric: tabular-nums; }
.status { font-size: .9em; padding: 2px 8px; border-radius: 10px; }
.status.live { background: #dfd; }
.status.pending { background: #ffd; }
.status.waiting { background: #eee; color: #666; }
input.local { width: 5em; font-size: 1.2em; }
</style>
</head>
<body>
<h1>Thermostats</h1>
{{range .Cards}}
<div class="card" data-id="{{.ID}}">
  <h2>{{.Label}} <span class="status {{statusClass .Status}}" data-field="status">{{.Status}}</span></h2>
  <div class="row">Temperature <span class="reading" data-field="temperature">{{.Temperature}}</span></div>
  <div class="row">Setpoint <span class="reading" data-field="setpoint">{{.Setpoint}}</span></div>
  <div class="row">Heating <span data-field="heating_label">{{.HeatingLabel}}</span></div>
  <div class="row">
    <button data-op="decrement">&minus;</button>
    <input class="local" data-field="local" value="{{.Local}}">
    <button data-op="increment">+</button>
    <button data-submit>Set</button>
  </div>
  <div class="row">
    {{range .Presets}}<button data-preset="{{.Name}}"{{if not .Enabled}} disabled{{end}}>{{.Label}}</button>{{end}}
  </div>
  <details data-field="settings">
    <summary>Edit presets</summary>
    {{range .Presets}}<div class="row"><label>{{.Name}} <input class="local" data-setting="{{.Name}}" value="{{if .Enabled}}{{printf "%.1f" .Value}}{{end}}"></label></div>{{end}}
    <div class="row"><button data-save-settings>Save</button> <span data-field="settings_error"></span></div>
  </details>
</div>
{{end}}
<script>
const base = "/api/cards/";

function render(v) {
  const el = document.querySelector('.card[data-id="' + CSS.escape(v.id) + '"]');
  if (!el) return;
  for (const f of ["temperature", "setpoint", "heating_label"]) {
    el.querySelector('[data-field="' + f + '"]').textContent = v[f];
  }
  const st = el.querySelector('[data-field="status"]');
  st.textContent = v.status;
  st.className = "status " + v.status.toLowerCase();
  const input = el.querySelector('[data-field="local"]');
  if (document.activeElement !== input) input.value = v.local;

  const editing = el.querySelector('[data-field="settings"]').open;
  (v.presets || []).forEach(function (p) {
    const b = el.querySelector('[data-preset="' + CSS.escape(p.name) + '"]');
    if (b) {
      b.disabled = !p.enabled;
      b.textContent = p.label;
    }
    const field = el.querySelector('[data-setting="' + CSS.escape(p.name) + '"]');
    if (field && !editing) field.value = p.enabled ? p.value.toFixed(1) : "";
  });
}

async function call(method, path, body) {
  const res = await fetch(base + path, {
    method: method,
    cache: "no-store",
    headers: body ? {"Content-Type": "application/json"} : {},
    body: body ? JSON.stringify(body) : undefined,
  });
  const data = await res.json();
  if (!res.ok) return data;
  render(data.card || data);
  return null;
}

document.querySelectorAll(".card").forEach(function (el) {
  const id = encodeURIComponent(el.dataset.id);
  const input = el.querySelector('[data-field="local"]');
  input.addEventListener("change", function () { call("PUT", id + "/local", {value: input.value}); });
  el.querySelectorAll("[data-op]").forEach(function (b) {
    b.addEventListener("click", function () { call("POST", id + "/" + b.dataset.op); });
  });
  // The typed value travels with the submit so it cannot be overtaken by
  // an earlier request.
  el.querySelector("[data-submit]").addEventListener("click", function () {
    call("POST", id + "/submit", {value: input.value});
  });
  el.querySelectorAll("[data-preset]").forEach(function (b) {
    b.addEventListener("click", function () { call("POST", id + "/presets/" + encodeURIComponent(b.dataset.preset)); });
  });
  el.querySelector("[data-save-settings]").addEventListener("click", async function () {
    const presets = {};
    el.querySelectorAll("[data-setting]").forEach(function (f) {
      if (f.value.trim() !== "") presets[f.dataset.setting] = Number(f.value);
    });
    const failed = await call("PUT", id + "/settings", {presets: presets});
    el.querySelector('[data-field="settings_error"]').textContent = failed ? failed.error : "";
    if (!failed) el.querySelector('[data-field="settings"]').open = false;
  });
});

async function refresh() {
  try {
    const res = await fetch("/api/cards", {cache: "no-store"});
    if (res.ok) (await res.json()).forEach(render);
  } catch (e) {
  } finally {
    setTimeout(refresh, 750);
  }
}
refresh();
</script>
</body>
</html>
`
