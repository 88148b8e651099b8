package report

import (
	"bytes"
	"fmt"
	"html"
	"strconv"

	"github.com/matzehuels/clustermap/pkg/cluster"
	"github.com/matzehuels/clustermap/pkg/colorscale"
	"github.com/matzehuels/clustermap/pkg/heatmap"
)

// Figure geometry in pixels. ColorBarPx is added right of the row labels.
const (
	ColorBarPx     = 70.0
	colorBarWidth  = 14.0
	colorBarMaxLen = 240.0
	labelGap       = 4.0
	stripPad       = 6.0
)

const svgCSS = `
    .cell { shape-rendering: crispEdges; }
    .cell:hover { stroke: #222; stroke-width: 1; }
    .label { font: 11px sans-serif; fill: #333; }
    .tick { font: 10px sans-serif; fill: #555; }
    .branch { fill: none; stroke: #444; stroke-width: 1; }`

// frame is the pixel geometry shared by all panels of one figure.
type frame struct {
	ox, oy         float64 // top-left corner of the cell panel
	panelW, panelH float64
	cellW, cellH   float64
	strip          float64
	width, height  float64
}

func newFrame(p heatmap.Payload) frame {
	f := frame{width: p.Width + ColorBarPx, height: p.Height}
	f.panelW, f.panelH = p.Panel()
	if p.HasDendrograms() {
		f.strip = p.Sizing.DendrogramPx
		f.ox, f.oy = f.strip, f.strip
	}
	if n := p.Cols(); n > 0 {
		f.cellW = f.panelW / float64(n)
	}
	if n := p.Rows(); n > 0 {
		f.cellH = f.panelH / float64(n)
	}
	return f
}

// RenderSVG draws the payload as a standalone SVG document: the cell panel,
// row and column labels, a vertical color bar and, in dendrogram mode, the
// column tree above and the row tree left of the cells.
func RenderSVG(p heatmap.Payload) []byte {
	f := newFrame(p)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.1f %.1f" width="%.0f" height="%.0f">`+"\n",
		f.width, f.height, f.width, f.height)
	fmt.Fprintf(&buf, "  <style>%s\n  </style>\n", svgCSS)

	renderCells(&buf, p, f)
	renderLabels(&buf, p, f)
	if p.HasDendrograms() {
		renderColumnTree(&buf, p.Dendrograms.Column, f)
		renderRowTree(&buf, p.Dendrograms.Row, f)
	}
	renderColorBar(&buf, p.ColorScale, f)

	buf.WriteString("</svg>\n")
	return buf.Bytes()
}

func renderCells(buf *bytes.Buffer, p heatmap.Payload, f frame) {
	buf.WriteString(`  <g id="cells">` + "\n")
	for i, row := range p.Values {
		y := f.oy + float64(i)*f.cellH
		for j, v := range row {
			x := f.ox + float64(j)*f.cellW
			fmt.Fprintf(buf, `    <rect class="cell" x="%.2f" y="%.2f" width="%.2f" height="%.2f" fill="%s"><title>%s / %s: %s</title></rect>`+"\n",
				x, y, f.cellW, f.cellH, p.ColorScale.ColorAt(v),
				html.EscapeString(p.YLabels[i]), html.EscapeString(p.XLabels[j]), formatValue(v))
		}
	}
	buf.WriteString("  </g>\n")
}

func renderLabels(buf *bytes.Buffer, p heatmap.Payload, f frame) {
	buf.WriteString(`  <g id="labels">` + "\n")
	x := f.ox + f.panelW + labelGap
	for i, label := range p.YLabels {
		y := f.oy + (float64(i)+0.5)*f.cellH
		fmt.Fprintf(buf, `    <text class="label" x="%.2f" y="%.2f" dominant-baseline="middle">%s</text>`+"\n",
			x, y, html.EscapeString(label))
	}
	y := f.oy + f.panelH + labelGap
	for j, label := range p.XLabels {
		cx := f.ox + (float64(j)+0.5)*f.cellW
		fmt.Fprintf(buf, `    <text class="label" x="%.2f" y="%.2f" transform="rotate(90 %.2f %.2f)" dominant-baseline="middle">%s</text>`+"\n",
			cx, y, cx, y, html.EscapeString(label))
	}
	buf.WriteString("  </g>\n")
}

// leafScale maps a dendrogram leaf coordinate onto cells of size cell, so
// leaf k lands on the center of cell k.
func leafScale(cell float64) func(float64) float64 {
	return func(v float64) float64 { return v / cluster.LeafSpacing * cell }
}

// heightScale maps a merge height onto the usable strip thickness.
func heightScale(maxHeight, strip float64) func(float64) float64 {
	if maxHeight <= 0 {
		maxHeight = 1
	}
	usable := max(strip-stripPad, 0)
	return func(h float64) float64 { return h / maxHeight * usable }
}

func renderColumnTree(buf *bytes.Buffer, dg cluster.Dendrogram, f frame) {
	ax := leafScale(f.cellW)
	hy := heightScale(dg.MaxHeight, f.strip)
	buf.WriteString(`  <g id="column-dendrogram">` + "\n")
	for _, s := range dg.Segments {
		var pts [4][2]float64
		for k := range 4 {
			pts[k] = [2]float64{f.ox + ax(s.X[k]), f.oy - hy(s.Y[k])}
		}
		writePolyline(buf, pts)
	}
	buf.WriteString("  </g>\n")
}

func renderRowTree(buf *bytes.Buffer, dg cluster.Dendrogram, f frame) {
	ay := leafScale(f.cellH)
	hx := heightScale(dg.MaxHeight, f.strip)
	buf.WriteString(`  <g id="row-dendrogram">` + "\n")
	for _, s := range dg.Segments {
		var pts [4][2]float64
		for k := range 4 {
			pts[k] = [2]float64{f.ox - hx(s.Y[k]), f.oy + ay(s.X[k])}
		}
		writePolyline(buf, pts)
	}
	buf.WriteString("  </g>\n")
}

func writePolyline(buf *bytes.Buffer, pts [4][2]float64) {
	buf.WriteString(`    <polyline class="branch" points="`)
	for k, pt := range pts {
		if k > 0 {
			buf.WriteByte(' ')
		}
		fmt.Fprintf(buf, "%.2f,%.2f", pt[0], pt[1])
	}
	buf.WriteString(`"/>` + "\n")
}

func renderColorBar(buf *bytes.Buffer, s colorscale.Scale, f frame) {
	length := min(f.panelH, colorBarMaxLen)
	x := f.width - ColorBarPx + labelGap*4
	y := f.oy

	buf.WriteString("  <defs>\n")
	buf.WriteString(`    <linearGradient id="colorbar" x1="0" y1="1" x2="0" y2="0">` + "\n")
	for _, st := range s.Stops {
		fmt.Fprintf(buf, `      <stop offset="%s" stop-color="%s"/>`+"\n", formatValue(st.Pos), st.Color)
	}
	buf.WriteString("    </linearGradient>\n  </defs>\n")
	fmt.Fprintf(buf, `  <rect id="colorbar-bar" x="%.2f" y="%.2f" width="%.0f" height="%.2f" fill="url(#colorbar)" stroke="#999"/>`+"\n",
		x, y, colorBarWidth, length)

	ticks := []float64{s.Max, s.Min}
	if s.Center != nil {
		ticks = append(ticks, *s.Center)
	}
	for _, v := range ticks {
		ty := y + (1-s.Position(v))*length
		fmt.Fprintf(buf, `  <text class="tick" x="%.2f" y="%.2f" dominant-baseline="middle">%s</text>`+"\n",
			x+colorBarWidth+labelGap, ty, formatValue(v))
	}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
