package colorscale

import (
	"math"
	"testing"
)

func ptr(v float64) *float64 { return &v }

func TestSelectCentered(t *testing.T) {
	values := [][]float64{{-2, 0}, {1, 5}}
	s := Select(ptr(0), values)

	if s.Kind != KindDiverging {
		t.Fatalf("Kind = %s, want %s", s.Kind, KindDiverging)
	}
	if len(s.Stops) != 11 {
		t.Fatalf("len(Stops) = %d, want 11", len(s.Stops))
	}
	for i, st := range s.Stops {
		if want := float64(i) / 10; math.Abs(st.Pos-want) > 1e-12 {
			t.Errorf("stop %d at %v, want %v", i, st.Pos, want)
		}
	}
	if s.Min != -5 || s.Max != 5 {
		t.Errorf("domain = [%v, %v], want [-5, 5]", s.Min, s.Max)
	}
	if got := s.ValueAt(0.5); got != 0 {
		t.Errorf("midpoint value = %v, want 0", got)
	}
	if got := s.ColorAt(0); got != MidpointColor {
		t.Errorf("ColorAt(center) = %s, want %s", got, MidpointColor)
	}
	if s.Center == nil || *s.Center != 0 {
		t.Errorf("Center = %v", s.Center)
	}
}

func TestSelectCenteredOffset(t *testing.T) {
	s := Select(ptr(10), [][]float64{{4, 12}})
	if s.Min != 4 || s.Max != 16 {
		t.Errorf("domain = [%v, %v], want [4, 16]", s.Min, s.Max)
	}
	if got := s.ValueAt(0.5); got != 10 {
		t.Errorf("midpoint value = %v, want 10", got)
	}
}

func TestSelectCenteredConstant(t *testing.T) {
	s := Select(ptr(3), [][]float64{{3, 3}})
	if s.Max-s.Min <= 0 {
		t.Errorf("degenerate domain [%v, %v]", s.Min, s.Max)
	}
	if got := s.ColorAt(3); got != MidpointColor {
		t.Errorf("ColorAt(center) = %s", got)
	}
}

func TestSelectUncentered(t *testing.T) {
	s := Select(nil, [][]float64{{1, 9}, {3, math.NaN()}})
	if s.Kind != KindSequential {
		t.Fatalf("Kind = %s", s.Kind)
	}
	want := []float64{0, 1e-4, 1e-3, 1e-2, 1e-1, 1}
	if len(s.Stops) != len(want) {
		t.Fatalf("len(Stops) = %d", len(s.Stops))
	}
	for i, st := range s.Stops {
		if st.Pos != want[i] {
			t.Errorf("stop %d at %v, want %v", i, st.Pos, want[i])
		}
	}
	if s.Min != 1 || s.Max != 9 {
		t.Errorf("domain = [%v, %v], want [1, 9]", s.Min, s.Max)
	}
	if s.Center != nil {
		t.Error("sequential scale must not carry a center")
	}
	if got := s.ColorAt(1); got != s.Stops[0].Color {
		t.Errorf("ColorAt(min) = %s, want %s", got, s.Stops[0].Color)
	}
	if got := s.ColorAt(9); got != s.Stops[len(s.Stops)-1].Color {
		t.Errorf("ColorAt(max) = %s", got)
	}
}

func TestSelectEmpty(t *testing.T) {
	s := Select(nil, nil)
	if s.Min != 0 || s.Max != 0 {
		t.Errorf("empty domain = [%v, %v]", s.Min, s.Max)
	}
	if got := s.ColorAt(42); got != s.Stops[0].Color {
		t.Errorf("ColorAt on zero-width scale = %s", got)
	}
}

func TestPosition(t *testing.T) {
	s := Scale{Min: 0, Max: 10}
	tests := []struct {
		v, want float64
	}{
		{-5, 0}, {0, 0}, {2.5, 0.25}, {10, 1}, {20, 1},
	}
	for _, tt := range tests {
		if got := s.Position(tt.v); got != tt.want {
			t.Errorf("Position(%v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestPairs(t *testing.T) {
	pairs := Select(ptr(0), [][]float64{{1}}).Pairs()
	if len(pairs) != 11 {
		t.Fatalf("len(Pairs) = %d", len(pairs))
	}
	if pairs[5][1] != MidpointColor {
		t.Errorf("pairs[5] = %v", pairs[5])
	}
}
