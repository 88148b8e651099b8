package matrix

import (
	"fmt"
	"math"
	"slices"
	"testing"

	"github.com/matzehuels/clustermap/pkg/errors"
	"github.com/matzehuels/clustermap/pkg/perm"
)

func sample() Matrix {
	return Matrix{
		RowLabels: []string{"r1", "r2", "r3"},
		ColLabels: []string{"c1", "c2", "c3"},
		Values: [][]float64{
			{1, 0, 21},
			{20, 0, 60},
			{30, 60, 1},
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		m       Matrix
		wantErr bool
	}{
		{"valid", sample(), false},
		{"empty", Matrix{}, false},
		{
			name:    "row count mismatch",
			m:       Matrix{RowLabels: []string{"a"}, ColLabels: []string{"x"}},
			wantErr: true,
		},
		{
			name:    "ragged row",
			m:       Matrix{RowLabels: []string{"a"}, ColLabels: []string{"x", "y"}, Values: [][]float64{{1}}},
			wantErr: true,
		},
		{
			name: "duplicate row label",
			m: Matrix{
				RowLabels: []string{"a", "a"},
				ColLabels: []string{"x"},
				Values:    [][]float64{{1}, {2}},
			},
			wantErr: true,
		},
		{
			name: "duplicate column label",
			m: Matrix{
				RowLabels: []string{"a"},
				ColLabels: []string{"x", "x"},
				Values:    [][]float64{{1, 2}},
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrCodeInvalidMatrix) {
				t.Errorf("Validate() code = %v", errors.GetCode(err))
			}
		})
	}
}

func TestTranspose(t *testing.T) {
	m := Matrix{
		RowLabels: []string{"a", "b"},
		ColLabels: []string{"x", "y", "z"},
		Values:    [][]float64{{1, 2, 3}, {4, 5, 6}},
	}
	tr := m.Transpose()

	if !slices.Equal(tr.RowLabels, m.ColLabels) || !slices.Equal(tr.ColLabels, m.RowLabels) {
		t.Fatalf("labels not swapped: %v / %v", tr.RowLabels, tr.ColLabels)
	}
	want := [][]float64{{1, 4}, {2, 5}, {3, 6}}
	for i := range want {
		if !slices.Equal(tr.Values[i], want[i]) {
			t.Errorf("row %d = %v, want %v", i, tr.Values[i], want[i])
		}
	}
	if !tr.Transpose().Equal(m) {
		t.Error("double transpose should restore the matrix")
	}
}

func TestTransposeEmpty(t *testing.T) {
	m := Matrix{ColLabels: []string{"x", "y"}}
	tr := m.Transpose()
	if tr.Rows() != 2 || tr.Cols() != 0 {
		t.Errorf("Transpose of 0x2 = %dx%d", tr.Rows(), tr.Cols())
	}
}

func TestReorderPairing(t *testing.T) {
	m := sample()
	out, err := m.Reorder([]string{"r3", "r1", "r2"}, []string{"c3", "c2", "c1"})
	if err != nil {
		t.Fatalf("Reorder error: %v", err)
	}
	for _, r := range m.RowLabels {
		for _, c := range m.ColLabels {
			want, _ := m.Cell(r, c)
			got, _ := out.Cell(r, c)
			if got != want {
				t.Errorf("cell (%s,%s) = %v, want %v", r, c, got, want)
			}
		}
	}
	if out.Values[0][0] != 1 {
		t.Errorf("out[0][0] = %v, want 1 (r3,c3)", out.Values[0][0])
	}
}

func TestReorderRoundTrip(t *testing.T) {
	m := sample()
	for _, rp := range perm.Generate(3, 0) {
		for _, cp := range perm.Generate(3, 0) {
			rows := perm.Apply(m.RowLabels, rp)
			cols := perm.Apply(m.ColLabels, cp)
			shuffled, err := m.Reorder(rows, cols)
			if err != nil {
				t.Fatalf("Reorder(%v, %v) error: %v", rows, cols, err)
			}
			back, err := shuffled.Reorder(m.RowLabels, m.ColLabels)
			if err != nil {
				t.Fatalf("Reorder back error: %v", err)
			}
			if !back.Equal(m) {
				t.Fatalf("round trip through %v/%v lost data", rows, cols)
			}
		}
	}
}

func TestReorderRejectsNonPermutation(t *testing.T) {
	m := sample()
	tests := []struct {
		name string
		rows []string
		cols []string
	}{
		{"short rows", []string{"r1", "r2"}, m.ColLabels},
		{"unknown column", m.RowLabels, []string{"c1", "c2", "cX"}},
		{"duplicate row", []string{"r1", "r1", "r2"}, m.ColLabels},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Reorder(tt.rows, tt.cols); err == nil {
				t.Error("Reorder should fail")
			}
		})
	}
}

func TestFillMissing(t *testing.T) {
	m := Matrix{
		RowLabels: []string{"a"},
		ColLabels: []string{"x", "y"},
		Values:    [][]float64{{math.NaN(), 2}},
	}
	out := m.FillMissing()
	if out.Values[0][0] != 0 || out.Values[0][1] != 2 {
		t.Errorf("FillMissing = %v", out.Values)
	}
	if !math.IsNaN(m.Values[0][0]) {
		t.Error("FillMissing must not modify the receiver")
	}
}

func TestColVectors(t *testing.T) {
	cols := sample().ColVectors()
	if !slices.Equal(cols[1], []float64{0, 0, 60}) {
		t.Errorf("ColVectors()[1] = %v", cols[1])
	}
}

func ExampleMatrix_Reorder() {
	m := Matrix{
		RowLabels: []string{"a", "b"},
		ColLabels: []string{"x", "y"},
		Values:    [][]float64{{1, 2}, {3, 4}},
	}
	out, _ := m.Reorder([]string{"b", "a"}, []string{"y", "x"})
	fmt.Println(out.RowLabels, out.ColLabels, out.Values)
	// Output: [b a] [y x] [[4 3] [2 1]]
}
