package heatmap

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"testing"

	"github.com/matzehuels/clustermap/pkg/cluster"
	"github.com/matzehuels/clustermap/pkg/colorscale"
	"github.com/matzehuels/clustermap/pkg/matrix"
)

func sample() matrix.Matrix {
	return matrix.Matrix{
		RowLabels: []string{"r1", "r2", "r3", "r4"},
		ColLabels: []string{"c1", "c2", "c3"},
		Values: [][]float64{
			{1, 0, 21},
			{20, 0, 60},
			{30, 60, 1},
			{2, 1, 19},
		},
	}
}

func TestBuildPlain(t *testing.T) {
	m := sample()
	scale := colorscale.Select(nil, m.Values)
	p, err := NewBuilder(nil, nil).Build(context.Background(), m, Options{Scale: scale})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if p.HasDendrograms() {
		t.Error("plain build should not carry dendrograms")
	}
	if !slices.Equal(p.XLabels, m.ColLabels) || !slices.Equal(p.YLabels, m.RowLabels) {
		t.Errorf("labels changed: %v / %v", p.XLabels, p.YLabels)
	}
	if p.XTicks != nil || p.YTicks != nil {
		t.Error("plain build should use categorical axes")
	}
	if p.Width != DefaultMinSize+DefaultLabelMargin {
		t.Errorf("Width = %v, want %v", p.Width, DefaultMinSize+DefaultLabelMargin)
	}
	if p.ColorScale.Kind != colorscale.KindSequential {
		t.Errorf("scale = %s", p.ColorScale.Kind)
	}
}

func TestSizingDefaults(t *testing.T) {
	if got := (Sizing{}).withDefaults(); got != DefaultSizing() {
		t.Errorf("zero Sizing = %+v, want %+v", got, DefaultSizing())
	}
	got := Sizing{CellSize: 8, LabelMargin: 40}.withDefaults()
	want := Sizing{CellSize: 8, MinSize: DefaultMinSize, LabelMargin: 40, DendrogramPx: DefaultDendrogramPx}
	if got != want {
		t.Errorf("partial Sizing = %+v, want %+v", got, want)
	}
}

func TestBuildPlainDoesNotAlias(t *testing.T) {
	m := sample()
	p, _ := NewBuilder(nil, nil).Build(context.Background(), m, Options{})
	p.Values[0][0] = 999
	if m.Values[0][0] == 999 {
		t.Error("payload values alias the input matrix")
	}
}

func TestBuildSizingGrowsWithData(t *testing.T) {
	m := matrix.Matrix{}
	for i := 0; i < 50; i++ {
		m.RowLabels = append(m.RowLabels, fmt.Sprintf("r%d", i))
		m.Values = append(m.Values, []float64{float64(i)})
	}
	m.ColLabels = []string{"only"}

	sz := Sizing{CellSize: 10, MinSize: 100, LabelMargin: 20}
	p, err := NewBuilder(nil, nil).Build(context.Background(), m, Options{Sizing: sz})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if p.Height != 50*10+20 {
		t.Errorf("Height = %v, want 520", p.Height)
	}
	if p.Width != 100+20 {
		t.Errorf("Width = %v, want 120", p.Width)
	}
}

func TestBuildDendrogramAlignment(t *testing.T) {
	m := sample()
	opts := Options{
		Dendrogram: true,
		Metric:     cluster.MetricEuclidean,
		Method:     cluster.MethodWard,
	}
	p, err := NewBuilder(nil, nil).Build(context.Background(), m, opts)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if !p.HasDendrograms() {
		t.Fatalf("expected dendrogram mode, fallback = %q", p.Fallback)
	}

	d := p.Dendrograms
	if !slices.Equal(p.XLabels, d.Column.Leaves) {
		t.Errorf("x labels %v != column leaves %v", p.XLabels, d.Column.Leaves)
	}
	if !slices.Equal(p.YLabels, d.Row.Leaves) {
		t.Errorf("y labels %v != row leaves %v", p.YLabels, d.Row.Leaves)
	}
	for i, x := range p.XTicks {
		if want := cluster.LeafOffset + cluster.LeafSpacing*float64(i); x != want {
			t.Errorf("x tick %d = %v, want %v", i, x, want)
		}
	}
	if !slices.Equal(p.YTicks, d.Row.Positions) {
		t.Errorf("y ticks %v != row leaf positions %v", p.YTicks, d.Row.Positions)
	}

	// cells still pair with their labels
	for i, r := range p.YLabels {
		for j, c := range p.XLabels {
			want, _ := m.Cell(r, c)
			if p.Values[i][j] != want {
				t.Errorf("cell (%s,%s) = %v, want %v", r, c, p.Values[i][j], want)
			}
		}
	}
}

func TestBuildDendrogramReindexesUnorderedInput(t *testing.T) {
	m := sample()
	shuffled, _ := m.Reorder([]string{"r4", "r3", "r2", "r1"}, []string{"c2", "c3", "c1"})
	opts := Options{Dendrogram: true, Metric: cluster.MetricEuclidean, Method: cluster.MethodAverage}

	a, _ := NewBuilder(nil, nil).Build(context.Background(), m, opts)
	b, _ := NewBuilder(nil, nil).Build(context.Background(), shuffled, opts)

	if !a.HasDendrograms() || !b.HasDendrograms() {
		t.Fatal("expected dendrogram mode")
	}
	if !slices.Equal(b.YLabels, b.Dendrograms.Row.Leaves) {
		t.Errorf("rows not reindexed to leaves: %v vs %v", b.YLabels, b.Dendrograms.Row.Leaves)
	}
}

func TestBuildFallback(t *testing.T) {
	tests := []struct {
		name string
		m    matrix.Matrix
		opts Options
		want string
	}{
		{
			name: "invalid combination",
			m:    sample(),
			opts: Options{Dendrogram: true, Metric: cluster.MetricCityblock, Method: cluster.MethodWard},
			want: "column dendrogram",
		},
		{
			name: "non-finite row distances",
			m: matrix.Matrix{
				RowLabels: []string{"a", "b"},
				ColLabels: []string{"x", "y"},
				Values:    [][]float64{{0, 0}, {1, 2}},
			},
			opts: Options{Dendrogram: true, Metric: cluster.MetricCosine, Method: cluster.MethodAverage},
			want: "dendrogram",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewBuilder(nil, nil).Build(context.Background(), tt.m, tt.opts)
			if err != nil {
				t.Fatalf("Build error: %v", err)
			}
			if p.HasDendrograms() {
				t.Fatal("expected plain fallback")
			}
			if p.XTicks != nil || p.YTicks != nil {
				t.Error("fallback must not keep numeric ticks")
			}
			if !strings.Contains(p.Fallback, tt.want) {
				t.Errorf("Fallback = %q, want it to mention %q", p.Fallback, tt.want)
			}
			if !slices.Equal(p.YLabels, tt.m.RowLabels) {
				t.Errorf("fallback changed row order: %v", p.YLabels)
			}
		})
	}
}

func TestBuildSingleItemAxis(t *testing.T) {
	tests := []struct {
		name string
		m    matrix.Matrix
	}{
		{"single row", matrix.Matrix{
			RowLabels: []string{"only"},
			ColLabels: []string{"b", "a", "c"},
			Values:    [][]float64{{3, 1, 2}},
		}},
		{"single column", matrix.Matrix{
			RowLabels: []string{"x", "y", "z"},
			ColLabels: []string{"only"},
			Values:    [][]float64{{1}, {5}, {2}},
		}},
	}
	opts := Options{Dendrogram: true, Metric: cluster.MetricEuclidean, Method: cluster.MethodAverage}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewBuilder(nil, nil).Build(context.Background(), tt.m, opts)
			if err != nil {
				t.Fatalf("Build error: %v", err)
			}
			if p.HasDendrograms() {
				t.Error("a single-item axis must not get a dendrogram figure")
			}
			if p.Fallback != "" {
				t.Errorf("Fallback = %q, want a silent plain layout", p.Fallback)
			}
			if !slices.Equal(p.XLabels, tt.m.ColLabels) || !slices.Equal(p.YLabels, tt.m.RowLabels) {
				t.Errorf("labels changed: %v / %v", p.XLabels, p.YLabels)
			}
		})
	}
}

// countingOrderer counts Tree calls on the wrapped orderer.
type countingOrderer struct {
	inner cluster.Orderer
	calls int
}

func (c *countingOrderer) Tree(ctx context.Context, req cluster.Request) (*cluster.Tree, error) {
	c.calls++
	return c.inner.Tree(ctx, req)
}

func TestBuildUsesGivenTrees(t *testing.T) {
	m := sample()
	h := cluster.NewHierarchical(nil)
	req := func(labels []string, vectors [][]float64) cluster.Request {
		return cluster.Request{Labels: labels, Vectors: vectors, Metric: cluster.MetricEuclidean, Method: cluster.MethodAverage}
	}
	rowTree, err := h.Tree(context.Background(), req(m.RowLabels, m.RowVectors()))
	if err != nil {
		t.Fatal(err)
	}
	colTree, err := h.Tree(context.Background(), req(m.ColLabels, m.ColVectors()))
	if err != nil {
		t.Fatal(err)
	}

	counter := &countingOrderer{inner: h}
	p, err := NewBuilder(counter, nil).Build(context.Background(), m, Options{
		Dendrogram: true,
		Metric:     cluster.MetricEuclidean,
		Method:     cluster.MethodAverage,
		RowTree:    rowTree,
		ColTree:    colTree,
	})
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if counter.calls != 0 {
		t.Errorf("orderer called %d times, want 0 with trees supplied", counter.calls)
	}
	if !p.HasDendrograms() {
		t.Fatalf("expected dendrogram mode, fallback = %q", p.Fallback)
	}
	if !slices.Equal(p.YLabels, rowTree.Leaves()) || !slices.Equal(p.XLabels, colTree.Leaves()) {
		t.Errorf("labels %v / %v do not follow the given trees", p.YLabels, p.XLabels)
	}

	// a tree for a different axis size is rejected and the figure falls back
	p, _ = NewBuilder(counter, nil).Build(context.Background(), m, Options{
		Dendrogram: true,
		Metric:     cluster.MetricEuclidean,
		Method:     cluster.MethodAverage,
		RowTree:    colTree,
	})
	if p.HasDendrograms() || p.Fallback == "" {
		t.Errorf("mismatched tree should fall back, got dendrograms=%v fallback=%q", p.HasDendrograms(), p.Fallback)
	}
}

func TestBuildRejectsInvalidMatrix(t *testing.T) {
	m := matrix.Matrix{RowLabels: []string{"a"}, ColLabels: []string{"x"}}
	if _, err := NewBuilder(nil, nil).Build(context.Background(), m, Options{}); err == nil {
		t.Error("Build should reject a malformed matrix")
	}
}

func TestComputeDomains(t *testing.T) {
	d := ComputeDomains(300, 100, 100)
	if d.RowX != (Domain{0, 0.25}) || d.HeatmapX != (Domain{0.25, 1}) {
		t.Errorf("x domains = %v / %v", d.RowX, d.HeatmapX)
	}
	if d.ColumnY != (Domain{0, 0.5}) || d.HeatmapY != (Domain{0.5, 1}) {
		t.Errorf("y domains = %v / %v", d.ColumnY, d.HeatmapY)
	}

	// the strip keeps its pixel size as the panel grows
	for _, w := range []float64{100, 400, 2000} {
		d := ComputeDomains(w, w, 120)
		total := w + 120
		if px := d.RowX[1] * total; math.Abs(px-120) > 1e-9 {
			t.Errorf("strip at width %v is %v px", w, px)
		}
	}
}

func TestPanel(t *testing.T) {
	m := sample()
	p, _ := NewBuilder(nil, nil).Build(context.Background(), m, Options{})
	if w, h := p.Panel(); w != DefaultMinSize || h != DefaultMinSize {
		t.Errorf("plain panel = %vx%v, want %vx%v", w, h, DefaultMinSize, DefaultMinSize)
	}

	opts := Options{Dendrogram: true, Metric: cluster.MetricEuclidean, Method: cluster.MethodAverage}
	p, _ = NewBuilder(nil, nil).Build(context.Background(), m, opts)
	if w, h := p.Panel(); w != DefaultMinSize || h != DefaultMinSize {
		t.Errorf("dendrogram panel = %vx%v, strip must not shrink the cells", w, h)
	}
}
