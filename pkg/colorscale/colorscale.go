// Package colorscale chooses the color mapping for heatmap cells.
//
// Two modes exist. With a center value the scale is diverging: eleven evenly
// spaced stops whose domain is symmetric around the center, so the center
// maps exactly to the neutral midpoint color. Without a center the scale is
// sequential over the data range, with stops packed toward the low end
// (0, 1e-4, 1e-3, 1e-2, 1e-1, 1) so that small values on heavy-tailed data
// remain distinguishable.
package colorscale

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/montanaflynn/stats"
)

// Scale kinds.
const (
	KindDiverging  = "diverging"
	KindSequential = "sequential"
)

// Stop is one color anchor at a normalized position in [0, 1].
type Stop struct {
	Pos   float64 `json:"pos"`
	Color string  `json:"color"`
}

// Scale maps data values in [Min, Max] to colors through Stops.
type Scale struct {
	Kind   string   `json:"kind"`
	Stops  []Stop   `json:"stops"`
	Min    float64  `json:"min"`
	Max    float64  `json:"max"`
	Center *float64 `json:"center,omitempty"`
}

// diverging runs from blue through near-white to red.
var diverging = []string{
	"#053061", "#2166ac", "#4393c3", "#92c5de", "#d1e5f0",
	"#f7f7f7",
	"#fddbc7", "#f4a582", "#d6604d", "#b2182b", "#67001f",
}

var sequential = []Stop{
	{Pos: 0, Color: "#f7fbff"},
	{Pos: 1e-4, Color: "#deebf7"},
	{Pos: 1e-3, Color: "#9ecae1"},
	{Pos: 1e-2, Color: "#4292c6"},
	{Pos: 1e-1, Color: "#08519c"},
	{Pos: 1, Color: "#08306b"},
}

// MidpointColor is the neutral color of the diverging scale.
const MidpointColor = "#f7f7f7"

// Select returns the scale for values. A nil center selects the sequential
// scale over the data range.
func Select(center *float64, values [][]float64) Scale {
	lo, hi := bounds(values)
	if center == nil {
		return Scale{
			Kind:  KindSequential,
			Stops: append([]Stop(nil), sequential...),
			Min:   lo,
			Max:   hi,
		}
	}

	c := *center
	dev := math.Max(math.Abs(hi-c), math.Abs(lo-c))
	if dev == 0 {
		dev = 1
	}
	stops := make([]Stop, len(diverging))
	for i, col := range diverging {
		stops[i] = Stop{Pos: float64(i) / float64(len(diverging)-1), Color: col}
	}
	return Scale{
		Kind:   KindDiverging,
		Stops:  stops,
		Min:    c - dev,
		Max:    c + dev,
		Center: &c,
	}
}

// bounds returns the finite min and max of values, or (0, 0) when there are none.
func bounds(values [][]float64) (float64, float64) {
	var data stats.Float64Data
	for _, row := range values {
		for _, v := range row {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				data = append(data, v)
			}
		}
	}
	lo, err := stats.Min(data)
	if err != nil {
		return 0, 0
	}
	hi, _ := stats.Max(data)
	return lo, hi
}

// Position normalizes v into [0, 1].
func (s Scale) Position(v float64) float64 {
	w := s.Max - s.Min
	if w == 0 || math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, (v-s.Min)/w))
}

// ValueAt maps a normalized position back to data space.
func (s Scale) ValueAt(pos float64) float64 {
	return s.Min + pos*(s.Max-s.Min)
}

// ColorAt returns the hex color for v, blending neighbouring stops in Lab space.
func (s Scale) ColorAt(v float64) string {
	if len(s.Stops) == 0 {
		return "#000000"
	}
	p := s.Position(v)
	for i := 1; i < len(s.Stops); i++ {
		lo, hi := s.Stops[i-1], s.Stops[i]
		if p > hi.Pos {
			continue
		}
		span := hi.Pos - lo.Pos
		if span <= 0 {
			return hi.Color
		}
		return blend(lo.Color, hi.Color, (p-lo.Pos)/span)
	}
	return s.Stops[len(s.Stops)-1].Color
}

func blend(a, b string, t float64) string {
	ca, err := colorful.Hex(a)
	if err != nil {
		return a
	}
	cb, err := colorful.Hex(b)
	if err != nil {
		return a
	}
	if t <= 0 {
		return ca.Hex()
	}
	if t >= 1 {
		return cb.Hex()
	}
	return ca.BlendLab(cb, t).Clamped().Hex()
}

// Pairs returns the stops as [position, color] pairs, the form used by
// plotting front ends.
func (s Scale) Pairs() [][2]any {
	out := make([][2]any, len(s.Stops))
	for i, st := range s.Stops {
		out[i] = [2]any{st.Pos, st.Color}
	}
	return out
}
