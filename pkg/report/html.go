package report

import (
	"bytes"
	"html/template"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/matzehuels/clustermap/pkg/heatmap"
)

var page = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
  body { font-family: sans-serif; margin: 24px; color: #222; }
  .summary { max-width: 60em; margin-bottom: 16px; }
  .meta { font-size: 12px; color: #666; margin-bottom: 12px; }
  .fallback { color: #8a4b00; }
  figure { margin: 0; overflow: auto; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{- if .Summary}}
<div class="summary">{{.Summary}}</div>
{{- end}}
<div class="meta">{{.Rows}} rows &times; {{.Cols}} columns, {{.Scale}} color scale
{{- if .DataFile}} &middot; <a href="{{.DataFile}}">heatmap data</a>{{end}}</div>
{{- if .Fallback}}
<p class="fallback">Dendrograms unavailable: {{.Fallback}}</p>
{{- end}}
<figure id="heatmap"{{if .DataFile}} data-src="{{.DataFile}}"{{end}}>
{{.SVG}}
</figure>
</body>
</html>
`))

type pageData struct {
	Title    string
	Summary  template.HTML
	Rows     int
	Cols     int
	Scale    string
	DataFile string
	Fallback string
	SVG      template.HTML
}

// RenderHTML wraps the SVG rendering of p in an HTML document. A non-empty
// dataFile is linked as the sibling JSON data object.
func RenderHTML(p heatmap.Payload, opts Options, dataFile string) ([]byte, error) {
	data := pageData{
		Title:    opts.title(),
		Summary:  renderSummary(opts.Summary),
		Rows:     p.Rows(),
		Cols:     p.Cols(),
		Scale:    p.ColorScale.Kind,
		DataFile: dataFile,
		Fallback: p.Fallback,
		SVG:      template.HTML(RenderSVG(p)),
	}
	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderSummary converts markdown to HTML. Raw HTML in the source is dropped.
func renderSummary(md string) template.HTML {
	if md == "" {
		return ""
	}
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	r := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.SkipHTML | mdhtml.HrefTargetBlank,
	})
	return template.HTML(markdown.ToHTML([]byte(md), p, r))
}
