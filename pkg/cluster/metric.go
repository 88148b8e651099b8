package cluster

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/matzehuels/clustermap/pkg/errors"
)

// Metric names accepted by [Pdist]. They follow the scipy.spatial.distance
// vocabulary so that existing parameter files keep working.
const (
	MetricEuclidean   = "euclidean"
	MetricSqEuclidean = "sqeuclidean"
	MetricCityblock   = "cityblock"
	MetricChebyshev   = "chebyshev"
	MetricCosine      = "cosine"
	MetricCorrelation = "correlation"
	MetricCanberra    = "canberra"
	MetricBrayCurtis  = "braycurtis"
	MetricHamming     = "hamming"
)

// MetricFunc computes the dissimilarity of two equal-length vectors.
type MetricFunc func(u, v []float64) float64

// Metrics is the registry of distance functions, keyed by name.
var Metrics = map[string]MetricFunc{
	MetricEuclidean:   func(u, v []float64) float64 { return floats.Distance(u, v, 2) },
	MetricSqEuclidean: sqEuclidean,
	MetricCityblock:   func(u, v []float64) float64 { return floats.Distance(u, v, 1) },
	MetricChebyshev:   func(u, v []float64) float64 { return floats.Distance(u, v, math.Inf(1)) },
	MetricCosine:      cosine,
	MetricCorrelation: correlation,
	MetricCanberra:    canberra,
	MetricBrayCurtis:  brayCurtis,
	MetricHamming:     hamming,
}

// MetricNames returns the registered metric names in sorted order.
func MetricNames() []string {
	names := make([]string, 0, len(Metrics))
	for name := range Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sqEuclidean(u, v []float64) float64 {
	var s float64
	for i := range u {
		d := u[i] - v[i]
		s += d * d
	}
	return s
}

// cosine is 1 - u·v/(|u||v|). Zero vectors give NaN.
func cosine(u, v []float64) float64 {
	return 1 - floats.Dot(u, v)/(floats.Norm(u, 2)*floats.Norm(v, 2))
}

// correlation is 1 - pearson(u, v). Constant vectors give NaN.
func correlation(u, v []float64) float64 {
	return 1 - stat.Correlation(u, v, nil)
}

// canberra skips coordinates where both values are zero.
func canberra(u, v []float64) float64 {
	var s float64
	for i := range u {
		den := math.Abs(u[i]) + math.Abs(v[i])
		if den == 0 {
			continue
		}
		s += math.Abs(u[i]-v[i]) / den
	}
	return s
}

func brayCurtis(u, v []float64) float64 {
	var num, den float64
	for i := range u {
		num += math.Abs(u[i] - v[i])
		den += math.Abs(u[i] + v[i])
	}
	return num / den
}

func hamming(u, v []float64) float64 {
	if len(u) == 0 {
		return 0
	}
	var diff int
	for i := range u {
		if u[i] != v[i] {
			diff++
		}
	}
	return float64(diff) / float64(len(u))
}

// CondensedIndex returns the position of pair (i, j), i != j, in a condensed
// distance vector over n items.
func CondensedIndex(n, i, j int) int {
	if i > j {
		i, j = j, i
	}
	return n*i - i*(i+1)/2 + j - i - 1
}

// Pdist computes the condensed pairwise distance vector over vectors.
// Entry CondensedIndex(n, i, j) holds the distance between vectors i and j.
func Pdist(vectors [][]float64, metric string) ([]float64, error) {
	fn, ok := Metrics[metric]
	if !ok {
		return nil, errors.New(errors.ErrCodeClusteringFailed, "unknown distance metric %q", metric)
	}
	n := len(vectors)
	if n > 0 {
		width := len(vectors[0])
		for i, v := range vectors {
			if len(v) != width {
				return nil, errors.New(errors.ErrCodeClusteringFailed,
					"vector %d has %d coordinates, want %d", i, len(v), width)
			}
		}
	}

	d := make([]float64, n*(n-1)/2)
	k := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d[k] = fn(vectors[i], vectors[j])
			k++
		}
	}
	return d, nil
}
