package cluster

import (
	"context"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/clustermap/pkg/cache"
	"github.com/matzehuels/clustermap/pkg/errors"
)

// line holds five points on a number line: two tight pairs and an outlier.
var line = [][]float64{{0}, {1}, {5}, {6}, {20}}

func TestMetrics(t *testing.T) {
	tests := []struct {
		metric string
		u, v   []float64
		want   float64
	}{
		{MetricEuclidean, []float64{0, 0}, []float64{3, 4}, 5},
		{MetricSqEuclidean, []float64{0, 0}, []float64{3, 4}, 25},
		{MetricCityblock, []float64{0, 0}, []float64{3, 4}, 7},
		{MetricChebyshev, []float64{0, 0}, []float64{3, 4}, 4},
		{MetricCosine, []float64{1, 0}, []float64{0, 1}, 1},
		{MetricCosine, []float64{1, 1}, []float64{2, 2}, 0},
		{MetricCorrelation, []float64{1, 2, 3}, []float64{3, 2, 1}, 2},
		{MetricCanberra, []float64{1, 0}, []float64{0, 0}, 1},
		{MetricBrayCurtis, []float64{1, 2}, []float64{3, 4}, 0.4},
		{MetricHamming, []float64{1, 2, 3}, []float64{1, 0, 3}, 1.0 / 3},
	}
	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			got := Metrics[tt.metric](tt.u, tt.v)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestPdist(t *testing.T) {
	d, err := Pdist([][]float64{{0, 0}, {3, 4}, {6, 8}}, MetricEuclidean)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 10, 5}, d)
	assert.Equal(t, 2, CondensedIndex(3, 1, 2))
	assert.Equal(t, 2, CondensedIndex(3, 2, 1))

	_, err = Pdist([][]float64{{1}, {1, 2}}, MetricEuclidean)
	assert.True(t, errors.Is(err, errors.ErrCodeClusteringFailed), "ragged input: %v", err)

	_, err = Pdist(line, "manhattan")
	assert.True(t, errors.Is(err, errors.ErrCodeClusteringFailed), "unknown metric: %v", err)
}

func linkLine(t *testing.T, method string) []Link {
	t.Helper()
	d, err := Pdist(line, MetricEuclidean)
	require.NoError(t, err)
	links, err := Linkage(d, len(line), method)
	require.NoError(t, err)
	return links
}

func TestLinkageSingle(t *testing.T) {
	want := []Link{
		{A: 0, B: 1, Distance: 1, Size: 2},
		{A: 2, B: 3, Distance: 1, Size: 2},
		{A: 5, B: 6, Distance: 4, Size: 4},
		{A: 4, B: 7, Distance: 14, Size: 5},
	}
	assert.Equal(t, want, linkLine(t, MethodSingle))
}

func TestLinkageComplete(t *testing.T) {
	links := linkLine(t, MethodComplete)
	require.Len(t, links, 4)
	assert.Equal(t, 6.0, links[2].Distance) // max(|0-6|)
	assert.Equal(t, 20.0, links[3].Distance)
	assert.Equal(t, 5, links[3].Size)
}

func TestLinkageAverage(t *testing.T) {
	links := linkLine(t, MethodAverage)
	require.Len(t, links, 4)
	// mean of |{0,1} - {5,6}| = (5+6+4+5)/4
	assert.InDelta(t, 5.0, links[2].Distance, 1e-12)
	// mean distance from 20 to {0,1,5,6} = (20+19+15+14)/4
	assert.InDelta(t, 17.0, links[3].Distance, 1e-12)
}

func TestLinkageWard(t *testing.T) {
	d, err := Pdist([][]float64{{0}, {1}, {5}, {6}}, MetricEuclidean)
	require.NoError(t, err)
	links, err := Linkage(d, 4, MethodWard)
	require.NoError(t, err)

	require.Len(t, links, 3)
	assert.Equal(t, Link{A: 0, B: 1, Distance: 1, Size: 2}, links[0])
	assert.Equal(t, Link{A: 2, B: 3, Distance: 1, Size: 2}, links[1])
	assert.Equal(t, 4, links[2].A)
	assert.Equal(t, 5, links[2].B)
	assert.InDelta(t, 5*math.Sqrt2, links[2].Distance, 1e-9)
}

func TestLinkageCentroid(t *testing.T) {
	d, err := Pdist([][]float64{{0}, {1}, {5}, {6}}, MetricEuclidean)
	require.NoError(t, err)
	links, err := Linkage(d, 4, MethodCentroid)
	require.NoError(t, err)

	require.Len(t, links, 3)
	assert.Equal(t, Link{A: 0, B: 1, Distance: 1, Size: 2}, links[0])
	assert.Equal(t, Link{A: 2, B: 3, Distance: 1, Size: 2}, links[1])
	assert.Equal(t, 4, links[2].A)
	assert.Equal(t, 5, links[2].B)
	assert.InDelta(t, 5.0, links[2].Distance, 1e-9)
}

func TestLinkageMedianMatchesCentroidOnPairs(t *testing.T) {
	d, _ := Pdist([][]float64{{0}, {1}, {5}, {6}}, MetricEuclidean)
	links, err := Linkage(d, 4, MethodMedian)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, links[2].Distance, 1e-9)
}

func TestLinkageRejectsNonFinite(t *testing.T) {
	_, err := Linkage([]float64{1, math.NaN(), 2}, 3, MethodAverage)
	assert.True(t, errors.Is(err, errors.ErrCodeClusteringFailed))

	_, err = Linkage([]float64{1, 2}, 3, MethodAverage)
	assert.True(t, errors.Is(err, errors.ErrCodeClusteringFailed), "wrong length: %v", err)

	_, err = Linkage([]float64{1, 2, 3}, 3, "fastest")
	assert.True(t, errors.Is(err, errors.ErrCodeClusteringFailed), "unknown method: %v", err)
}

func TestCheckCombination(t *testing.T) {
	tests := []struct {
		metric, method string
		wantErr        bool
	}{
		{MetricEuclidean, MethodWard, false},
		{MetricCityblock, MethodAverage, false},
		{MetricCosine, MethodComplete, false},
		{MetricCityblock, MethodWard, true},
		{MetricCosine, MethodCentroid, true},
		{MetricCorrelation, MethodMedian, true},
		{"nope", MethodAverage, true},
		{MetricEuclidean, "nope", true},
	}
	for _, tt := range tests {
		t.Run(tt.metric+"/"+tt.method, func(t *testing.T) {
			err := CheckCombination(tt.metric, tt.method)
			assert.Equal(t, tt.wantErr, err != nil, "err = %v", err)
		})
	}
}

func lineTree(t *testing.T) *Tree {
	t.Helper()
	tr, err := NewTree([]string{"a", "b", "c", "d", "e"}, linkLine(t, MethodSingle))
	require.NoError(t, err)
	return tr
}

func TestLeafOrder(t *testing.T) {
	tr := lineTree(t)
	// the outlier joins last at the root, and as a leaf it has height zero
	assert.Equal(t, []int{4, 0, 1, 2, 3}, tr.LeafOrder())
	assert.Equal(t, []string{"e", "a", "b", "c", "d"}, tr.Leaves())
}

func TestDendrogramGeometry(t *testing.T) {
	dg := lineTree(t).Dendrogram()

	assert.Equal(t, []string{"e", "a", "b", "c", "d"}, dg.Leaves)
	assert.Equal(t, []float64{5, 15, 25, 35, 45}, dg.Positions)
	want := []Segment{
		{X: [4]float64{15, 15, 25, 25}, Y: [4]float64{0, 1, 1, 0}},
		{X: [4]float64{35, 35, 45, 45}, Y: [4]float64{0, 1, 1, 0}},
		{X: [4]float64{20, 20, 40, 40}, Y: [4]float64{1, 4, 4, 1}},
		{X: [4]float64{5, 5, 30, 30}, Y: [4]float64{0, 14, 14, 4}},
	}
	assert.Equal(t, want, dg.Segments)
	assert.Equal(t, 14.0, dg.MaxHeight)
}

func TestDendrogramLeavesMatchLeafOrder(t *testing.T) {
	vectors := [][]float64{
		{1, 0, 21}, {20, 0, 60}, {30, 60, 1}, {2, 1, 20}, {29, 58, 3}, {0, 0, 0},
	}
	labels := []string{"r1", "r2", "r3", "r4", "r5", "r6"}
	for _, method := range MethodNames() {
		t.Run(method, func(t *testing.T) {
			tr, err := NewHierarchical(nil).Tree(context.Background(), Request{
				Labels: labels, Vectors: vectors, Metric: MetricEuclidean, Method: method,
			})
			require.NoError(t, err)
			dg := tr.Dendrogram()
			assert.Equal(t, tr.Leaves(), dg.Leaves)
			assert.Len(t, dg.Segments, len(labels)-1)
			assert.ElementsMatch(t, labels, dg.Leaves)
		})
	}
}

func TestNewTreeValidation(t *testing.T) {
	_, err := NewTree(nil, nil)
	assert.Error(t, err)
	_, err = NewTree([]string{"a", "b"}, nil)
	assert.Error(t, err)
	_, err = NewTree([]string{"a", "b"}, []Link{{A: 0, B: 5, Distance: 1, Size: 2}})
	assert.Error(t, err)
}

func TestOrderSingleItem(t *testing.T) {
	calls := &countingOrderer{}
	got, err := Order(context.Background(), calls, Request{
		Labels:  []string{"only"},
		Vectors: [][]float64{{math.NaN()}},
		Metric:  "not-a-metric",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, got)
	assert.Zero(t, calls.n.Load(), "a single item must not reach the tree builder")
}

func TestOrderScenario(t *testing.T) {
	req := Request{
		Labels:  []string{"r1", "r2", "r3"},
		Vectors: [][]float64{{1, 0, 21}, {20, 0, 60}, {30, 60, 1}},
		Metric:  MetricEuclidean,
		Method:  MethodWard,
	}
	got, err := Order(context.Background(), NewHierarchical(nil), req)
	require.NoError(t, err)
	assert.ElementsMatch(t, req.Labels, got)
	// r1 and r2 are the closest pair and merge first; r3 joins at the root
	assert.Equal(t, "r3", got[0])
}

func TestHierarchicalFailures(t *testing.T) {
	ctx := context.Background()
	h := NewHierarchical(nil)
	h.MaxLeaves = 3

	tests := []struct {
		name string
		req  Request
		code errors.Code
	}{
		{
			name: "too many leaves",
			req:  Request{Labels: []string{"a", "b", "c", "d"}, Vectors: [][]float64{{1}, {2}, {3}, {4}}, Metric: MetricEuclidean, Method: MethodWard},
			code: errors.ErrCodeClusteringFailed,
		},
		{
			name: "ward with cityblock",
			req:  Request{Labels: []string{"a", "b"}, Vectors: [][]float64{{1}, {2}}, Metric: MetricCityblock, Method: MethodWard},
			code: errors.ErrCodeClusteringFailed,
		},
		{
			name: "zero vector cosine",
			req:  Request{Labels: []string{"a", "b"}, Vectors: [][]float64{{0, 0}, {1, 2}}, Metric: MetricCosine, Method: MethodAverage},
			code: errors.ErrCodeClusteringFailed,
		},
		{
			name: "empty axis",
			req:  Request{Metric: MetricEuclidean, Method: MethodWard},
			code: errors.ErrCodeDegenerateDimension,
		},
		{
			name: "label count mismatch",
			req:  Request{Labels: []string{"a"}, Vectors: [][]float64{{1}, {2}}, Metric: MetricEuclidean, Method: MethodWard},
			code: errors.ErrCodeClusteringFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Tree(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.GetCode(err), "err = %v", err)
			assert.True(t, errors.IsRecoverable(err))
		})
	}
}

func TestHierarchicalCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHierarchical(nil).Tree(ctx, Request{Labels: []string{"a", "b"}, Vectors: [][]float64{{1}, {2}}})
	assert.ErrorIs(t, err, context.Canceled)
}

type countingOrderer struct {
	n     atomic.Int32
	inner Orderer
}

func (c *countingOrderer) Tree(ctx context.Context, req Request) (*Tree, error) {
	c.n.Add(1)
	if c.inner == nil {
		return nil, errors.New(errors.ErrCodeInternal, "unexpected call")
	}
	return c.inner.Tree(ctx, req)
}

func TestCachedOrderer(t *testing.T) {
	ctx := context.Background()
	inner := &countingOrderer{inner: NewHierarchical(nil)}
	co := NewCachedOrderer(inner, cache.NewMemoryCache(), nil)

	req := Request{
		Labels:  []string{"a", "b", "c", "d", "e"},
		Vectors: line,
		Metric:  MetricEuclidean,
		Method:  MethodSingle,
	}
	first, err := co.Tree(ctx, req)
	require.NoError(t, err)
	second, err := co.Tree(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, int32(1), inner.n.Load())
	assert.Equal(t, first.Leaves(), second.Leaves())
	assert.Equal(t, first.Links, second.Links)

	req.Method = MethodComplete
	_, err = co.Tree(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.n.Load(), "a different method must miss the cache")
}

func TestCachedOrdererKeepsLimit(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMemoryCache()
	req := Request{
		Labels:  []string{"a", "b", "c", "d", "e"},
		Vectors: line,
		Metric:  MetricEuclidean,
		Method:  MethodAverage,
	}
	_, err := NewCachedOrderer(NewHierarchical(nil), store, nil).Tree(ctx, req)
	require.NoError(t, err)

	limited := NewCachedOrderer(&Hierarchical{MaxLeaves: 2}, store, nil)
	_, err = limited.Tree(ctx, req)
	assert.True(t, errors.Is(err, errors.ErrCodeClusteringFailed), "cached tree must not bypass the limit: %v", err)
}

func TestCachedOrdererConcurrent(t *testing.T) {
	ctx := context.Background()
	inner := &countingOrderer{inner: NewHierarchical(nil)}
	co := NewCachedOrderer(inner, cache.NewMemoryCache(), nil)
	req := Request{
		Labels:  []string{"a", "b", "c", "d", "e"},
		Vectors: line,
		Metric:  MetricEuclidean,
		Method:  MethodAverage,
	}

	var wg sync.WaitGroup
	orders := make([][]string, 8)
	for i := range orders {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			o, err := Order(ctx, co, req)
			if err == nil {
				orders[i] = o
			}
		}(i)
	}
	wg.Wait()

	for _, o := range orders {
		assert.True(t, slices.Equal(orders[0], o), "orders differ: %v vs %v", orders[0], o)
	}
	assert.LessOrEqual(t, inner.n.Load(), int32(len(orders)))
}

func TestCachedOrdererPropagatesErrors(t *testing.T) {
	co := NewCachedOrderer(NewHierarchical(nil), nil, nil)
	_, err := co.Tree(context.Background(), Request{
		Labels: []string{"a", "b"}, Vectors: [][]float64{{1}, {2}},
		Metric: MetricCityblock, Method: MethodWard,
	})
	assert.True(t, errors.Is(err, errors.ErrCodeClusteringFailed))
}
