package matrix

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/matzehuels/clustermap/pkg/errors"
	"github.com/matzehuels/clustermap/pkg/perm"
)

// RowSums returns the sum of every row.
func (m Matrix) RowSums() []float64 {
	sums := make([]float64, len(m.Values))
	for i, row := range m.Values {
		sums[i] = floats.Sum(row)
	}
	return sums
}

// SortBySum returns a copy with rows ordered by descending row sum. Rows with
// equal sums keep their relative order.
func (m Matrix) SortBySum() Matrix {
	return m.permute(m.sumOrder(), perm.Seq(m.Cols()))
}

func (m Matrix) sumOrder() []int {
	sums := m.RowSums()
	idx := perm.Seq(len(sums))
	sort.SliceStable(idx, func(a, b int) bool {
		return sums[idx[a]] > sums[idx[b]]
	})
	return idx
}

// KeepCount returns how many of n rows survive a top-percent selection.
// The result is floor(n*percent/100), but never less than one row when n > 0.
func KeepCount(n int, percent float64) int {
	if n == 0 {
		return 0
	}
	k := int(math.Floor(float64(n)*percent/100 + 1e-9))
	return max(1, min(n, k))
}

// SelectTop keeps the rows with the largest sums. Rows are ranked by
// descending sum with ties broken by original position, and the first
// KeepCount(rows, percent) of them are kept in ranked order. Columns are
// not touched.
func (m Matrix) SelectTop(percent float64) (Matrix, error) {
	if err := errors.ValidatePercent(percent); err != nil {
		return Matrix{}, err
	}
	order := m.sumOrder()
	order = order[:KeepCount(len(order), percent)]
	return m.permute(order, perm.Seq(m.Cols())), nil
}
