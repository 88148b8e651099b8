// Package matrix defines the labelled numeric matrix that flows through the
// heatmap pipeline, together with the two pure transformations applied to it
// before layout: axis reordering and top-fraction row selection.
//
// A [Matrix] is treated as a value. Every transformation returns a new matrix
// and leaves its receiver untouched.
package matrix

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/matzehuels/clustermap/pkg/errors"
	"github.com/matzehuels/clustermap/pkg/perm"
)

// Matrix is a rectangular grid of numbers with one label per row and one per
// column. Values[i][j] is the cell at row RowLabels[i] and column ColLabels[j].
type Matrix struct {
	RowLabels []string    `json:"row_labels"`
	ColLabels []string    `json:"col_labels"`
	Values    [][]float64 `json:"values"`
}

// New builds a matrix and validates its shape.
func New(rows, cols []string, values [][]float64) (Matrix, error) {
	m := Matrix{RowLabels: rows, ColLabels: cols, Values: values}
	if err := m.Validate(); err != nil {
		return Matrix{}, err
	}
	return m, nil
}

// Rows returns the number of rows.
func (m Matrix) Rows() int { return len(m.RowLabels) }

// Cols returns the number of columns.
func (m Matrix) Cols() int { return len(m.ColLabels) }

// Validate checks the shape invariant and label uniqueness.
func (m Matrix) Validate() error {
	if len(m.Values) != len(m.RowLabels) {
		return errors.New(errors.ErrCodeInvalidMatrix,
			"matrix has %d rows but %d row labels", len(m.Values), len(m.RowLabels))
	}
	for i, row := range m.Values {
		if len(row) != len(m.ColLabels) {
			return errors.New(errors.ErrCodeInvalidMatrix,
				"row %q has %d cells, want %d", m.RowLabels[i], len(row), len(m.ColLabels))
		}
	}
	if dup, ok := firstDuplicate(m.RowLabels); ok {
		return errors.New(errors.ErrCodeInvalidMatrix, "duplicate row label %q", dup)
	}
	if dup, ok := firstDuplicate(m.ColLabels); ok {
		return errors.New(errors.ErrCodeInvalidMatrix, "duplicate column label %q", dup)
	}
	return nil
}

func firstDuplicate(labels []string) (string, bool) {
	seen := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		if _, ok := seen[l]; ok {
			return l, true
		}
		seen[l] = struct{}{}
	}
	return "", false
}

// Clone returns a deep copy.
func (m Matrix) Clone() Matrix {
	values := make([][]float64, len(m.Values))
	for i, row := range m.Values {
		values[i] = slices.Clone(row)
	}
	return Matrix{
		RowLabels: slices.Clone(m.RowLabels),
		ColLabels: slices.Clone(m.ColLabels),
		Values:    values,
	}
}

// FillMissing returns a copy with every NaN cell replaced by zero.
func (m Matrix) FillMissing() Matrix {
	out := m.Clone()
	for _, row := range out.Values {
		for j, v := range row {
			if math.IsNaN(v) {
				row[j] = 0
			}
		}
	}
	return out
}

// Transpose swaps the axes: rows become columns and labels follow.
func (m Matrix) Transpose() Matrix {
	r, c := m.Rows(), m.Cols()
	if r == 0 || c == 0 {
		values := make([][]float64, c)
		for i := range values {
			values[i] = []float64{}
		}
		return Matrix{
			RowLabels: slices.Clone(m.ColLabels),
			ColLabels: slices.Clone(m.RowLabels),
			Values:    values,
		}
	}
	t := mat.DenseCopyOf(m.Dense().T())
	return Matrix{
		RowLabels: slices.Clone(m.ColLabels),
		ColLabels: slices.Clone(m.RowLabels),
		Values:    rowsOf(t),
	}
}

// Dense returns the values as a gonum dense matrix. It panics on an empty
// matrix, as gonum does for zero-length dimensions.
func (m Matrix) Dense() *mat.Dense {
	r, c := m.Rows(), m.Cols()
	flat := make([]float64, 0, r*c)
	for _, row := range m.Values {
		flat = append(flat, row...)
	}
	return mat.NewDense(r, c, flat)
}

func rowsOf(d *mat.Dense) [][]float64 {
	r, _ := d.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, d)
	}
	return out
}

// RowVectors returns the rows as feature vectors for clustering.
func (m Matrix) RowVectors() [][]float64 {
	out := make([][]float64, len(m.Values))
	for i, row := range m.Values {
		out[i] = slices.Clone(row)
	}
	return out
}

// ColVectors returns the columns as feature vectors for clustering.
func (m Matrix) ColVectors() [][]float64 {
	return m.Transpose().Values
}

// Reorder returns a new matrix whose rows follow rowOrder and whose columns
// follow colOrder. Each order must be a permutation of the corresponding
// axis labels.
func (m Matrix) Reorder(rowOrder, colOrder []string) (Matrix, error) {
	rp, err := perm.IndexOf(m.RowLabels, rowOrder)
	if err != nil {
		return Matrix{}, errors.Wrap(errors.ErrCodeInvalidMatrix, err, "row order")
	}
	cp, err := perm.IndexOf(m.ColLabels, colOrder)
	if err != nil {
		return Matrix{}, errors.Wrap(errors.ErrCodeInvalidMatrix, err, "column order")
	}
	return m.permute(rp, cp), nil
}

func (m Matrix) permute(rp, cp []int) Matrix {
	values := make([][]float64, len(rp))
	for i, src := range rp {
		values[i] = perm.Apply(m.Values[src], cp)
	}
	return Matrix{
		RowLabels: perm.Apply(m.RowLabels, rp),
		ColLabels: perm.Apply(m.ColLabels, cp),
		Values:    values,
	}
}

// Equal reports whether two matrices have identical labels and cells.
func (m Matrix) Equal(o Matrix) bool {
	if !slices.Equal(m.RowLabels, o.RowLabels) || !slices.Equal(m.ColLabels, o.ColLabels) {
		return false
	}
	if len(m.Values) != len(o.Values) {
		return false
	}
	for i := range m.Values {
		if !slices.Equal(m.Values[i], o.Values[i]) {
			return false
		}
	}
	return true
}

// Cell returns the value addressed by labels.
func (m Matrix) Cell(row, col string) (float64, error) {
	i := slices.Index(m.RowLabels, row)
	j := slices.Index(m.ColLabels, col)
	if i < 0 || j < 0 {
		return 0, fmt.Errorf("no cell at (%q, %q)", row, col)
	}
	return m.Values[i][j], nil
}
