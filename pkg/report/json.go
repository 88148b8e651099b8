package report

import (
	"encoding/json"

	"github.com/matzehuels/clustermap/pkg/heatmap"
)

type jsonOutput struct {
	Values     [][]float64 `json:"values"`
	XLabels    []string    `json:"x_labels"`
	YLabels    []string    `json:"y_labels"`
	ColorScale [][2]any    `json:"colorscale"`
	ZMin       float64     `json:"zmin"`
	ZMax       float64     `json:"zmax"`
	Width      float64     `json:"width"`
	Height     float64     `json:"height"`

	XTicks      []float64            `json:"x_tickvals,omitempty"`
	YTicks      []float64            `json:"y_tickvals,omitempty"`
	Dendrograms *heatmap.Dendrograms `json:"dendrograms,omitempty"`
}

// RenderJSON encodes the heatmap data object read by the legacy HTML page:
// values, x_labels and y_labels, plus the color scale as [position, color]
// pairs with its value range.
func RenderJSON(p heatmap.Payload) ([]byte, error) {
	out := jsonOutput{
		Values:      p.Values,
		XLabels:     p.XLabels,
		YLabels:     p.YLabels,
		ColorScale:  p.ColorScale.Pairs(),
		ZMin:        p.ColorScale.Min,
		ZMax:        p.ColorScale.Max,
		Width:       p.Width,
		Height:      p.Height,
		XTicks:      p.XTicks,
		YTicks:      p.YTicks,
		Dendrograms: p.Dendrograms,
	}
	return json.MarshalIndent(out, "", "  ")
}
