package web

import (
	"html/template"
	"io"
	"log"
	"sort"

	"github.com/sweeney/amp-control/internal/status"
)

var pageTmpl = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>amp-control</title>
<style>
body { font-family: sans-serif; margin: 2em; background: #111; color: #ddd; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; margin: 1em 0; }
td, th { border: 1px solid #444; padding: 0.4em 0.8em; text-align: left; }
th { background: #222; }
.on { color: #4c4; font-weight: bold; }
.muted { color: #cc4; font-weight: bold; }
.suspended { color: #888; }
.off { color: #888; }
.error { color: #c44; font-weight: bold; }
.meta { color: #888; font-size: 0.85em; }
</style>
</head>
<body>
<h1>amp-control</h1>

<table>
<tr><th>Supply</th><td class="{{if .Status.PowerSupply.Active}}on{{else}}off{{end}}">{{.Status.PowerSupply.State}}</td></tr>
<tr><th>Error LED</th><td class="{{if .Status.ErrorLED.Active}}error{{else}}off{{end}}">{{.Status.ErrorLED.State}}</td></tr>
{{if .Status.Fault}}<tr><th>Fault</th><td class="error">{{.Status.Fault}}</td></tr>{{end}}
</table>

<table>
<tr><th>Group</th><th>State</th><th>Active players</th></tr>
{{range .Groups}}
<tr>
<td>{{.Name}}</td>
<td class="{{.Class}}">{{.State}}</td>
<td>{{range $i, $p := .ActivePlayers}}{{if $i}}, {{end}}{{$p}}{{end}}</td>
</tr>
{{end}}
</table>

<p class="meta">uptime {{.Status.UptimeSeconds}}s · started {{.Status.StartTime}}</p>
</body>
</html>
`))

type pageGroup struct {
	status.GroupJSON
	Class string
}

type pageData struct {
	Status status.Inner
	Groups []pageGroup
}

func renderHTML(w io.Writer, doc status.Document) {
	data := pageData{Status: doc.Status}

	ids := make([]string, 0, len(doc.Status.Soundcards))
	for id := range doc.Status.Soundcards {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		g := doc.Status.Soundcards[id]
		class := "suspended"
		switch g.State {
		case "ON":
			class = "on"
		case "MUTED":
			class = "muted"
		}
		data.Groups = append(data.Groups, pageGroup{GroupJSON: g, Class: class})
	}

	if err := pageTmpl.Execute(w, data); err != nil {
		log.Printf("web: render status page: %v", err)
	}
}
