// Package heatmap assembles the render-ready heatmap payload.
//
// A payload holds the final cell matrix, its axis labels, the figure size,
// the color scale, and optionally the geometry of a column dendrogram drawn
// above the cells and a row dendrogram drawn to their left.
//
// # Alignment
//
// In dendrogram mode both panels share one coordinate system per axis: leaf k
// of a dendrogram sits at cluster.LeafOffset + k*cluster.LeafSpacing, and the
// heatmap places cell k at exactly that tick value. The matrix is reindexed
// to each dendrogram's own leaf order, so the dendrogram is the single source
// of truth for the displayed order.
//
// The dendrogram strips have a fixed pixel thickness that does not depend on
// the data. The heatmap panel takes the remaining space, so panel domains are
// fractions recomputed for every figure size.
//
// # Fallback
//
// If either dendrogram cannot be computed, the whole payload is built in
// plain mode instead. A payload never mixes a dendrogram on one axis with a
// plain axis on the other. An axis with a single item has no tree to draw,
// so such a matrix is always laid out in plain mode.
package heatmap

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/clustermap/pkg/cluster"
	"github.com/matzehuels/clustermap/pkg/colorscale"
	"github.com/matzehuels/clustermap/pkg/errors"
	"github.com/matzehuels/clustermap/pkg/matrix"
	"github.com/matzehuels/clustermap/pkg/observability"
)

// Default sizing constants, in pixels.
const (
	DefaultCellSize     = 20.0
	DefaultMinSize      = 400.0
	DefaultLabelMargin  = 160.0
	DefaultDendrogramPx = 120.0
)

// Sizing controls figure dimensions.
type Sizing struct {
	CellSize     float64 `json:"cell_size"`
	MinSize      float64 `json:"min_size"`
	LabelMargin  float64 `json:"label_margin"`
	DendrogramPx float64 `json:"dendrogram_px"`
}

// DefaultSizing returns the standard sizing.
func DefaultSizing() Sizing {
	return Sizing{
		CellSize:     DefaultCellSize,
		MinSize:      DefaultMinSize,
		LabelMargin:  DefaultLabelMargin,
		DendrogramPx: DefaultDendrogramPx,
	}
}

func (s Sizing) withDefaults() Sizing {
	d := DefaultSizing()
	if s.CellSize <= 0 {
		s.CellSize = d.CellSize
	}
	if s.MinSize <= 0 {
		s.MinSize = d.MinSize
	}
	if s.LabelMargin <= 0 {
		s.LabelMargin = d.LabelMargin
	}
	if s.DendrogramPx <= 0 {
		s.DendrogramPx = d.DendrogramPx
	}
	return s
}

// Domain is a [start, end] fraction of the plotting area along one axis.
type Domain [2]float64

// Domains places the three panels of a dendrogram figure. Fractions are
// relative to the plotting area; the label margin lies outside it. Y
// fractions are measured from the top.
type Domains struct {
	HeatmapX Domain `json:"heatmap_x"`
	HeatmapY Domain `json:"heatmap_y"`
	// ColumnY is the vertical extent of the strip above the cells.
	ColumnY Domain `json:"column_y"`
	// RowX is the horizontal extent of the strip left of the cells.
	RowX Domain `json:"row_x"`
}

// Dendrograms carries both trees drawn around the cells.
type Dendrograms struct {
	Column  cluster.Dendrogram `json:"column"`
	Row     cluster.Dendrogram `json:"row"`
	Domains Domains            `json:"domains"`
}

// Payload is the render-ready heatmap description.
type Payload struct {
	Values  [][]float64 `json:"values"`
	XLabels []string    `json:"x_labels"`
	YLabels []string    `json:"y_labels"`

	// XTicks and YTicks are set in dendrogram mode and hold the numeric
	// leaf positions shared with the dendrogram panels.
	XTicks []float64 `json:"x_tickvals,omitempty"`
	YTicks []float64 `json:"y_tickvals,omitempty"`

	Width      float64          `json:"width"`
	Height     float64          `json:"height"`
	Sizing     Sizing           `json:"sizing"`
	ColorScale colorscale.Scale `json:"colorscale"`

	Dendrograms *Dendrograms `json:"dendrograms,omitempty"`

	// Fallback explains why dendrogram mode was requested but not used.
	Fallback string `json:"fallback,omitempty"`
}

// HasDendrograms reports whether the payload is in dendrogram mode.
func (p Payload) HasDendrograms() bool { return p.Dendrograms != nil }

// Panel returns the pixel size of the cell panel.
func (p Payload) Panel() (w, h float64) {
	w, h = p.Width-p.Sizing.LabelMargin, p.Height-p.Sizing.LabelMargin
	if p.HasDendrograms() {
		w -= p.Sizing.DendrogramPx
		h -= p.Sizing.DendrogramPx
	}
	return w, h
}

// Rows returns the number of rows.
func (p Payload) Rows() int { return len(p.YLabels) }

// Cols returns the number of columns.
func (p Payload) Cols() int { return len(p.XLabels) }

// Options configures one Build call.
type Options struct {
	// Dendrogram requests dendrogram mode.
	Dendrogram bool
	Metric     string
	Method     string
	Scale      colorscale.Scale
	Sizing     Sizing

	// RowTree and ColTree are trees already built for m's rows and columns.
	// A nil tree is computed with the builder's orderer.
	RowTree *cluster.Tree
	ColTree *cluster.Tree
}

// Builder builds payloads. Trees for dendrogram mode come from Orderer,
// which is normally the same cached orderer the pipeline used for ordering.
type Builder struct {
	Orderer cluster.Orderer
	Logger  *log.Logger
}

// NewBuilder creates a builder. A nil orderer uses cluster.Hierarchical.
func NewBuilder(o cluster.Orderer, logger *log.Logger) *Builder {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	if o == nil {
		o = cluster.NewHierarchical(logger)
	}
	return &Builder{Orderer: o, Logger: logger}
}

// Build assembles the payload for m. It only fails if m itself is invalid;
// dendrogram problems fall back to plain mode.
func (b *Builder) Build(ctx context.Context, m matrix.Matrix, opts Options) (Payload, error) {
	if err := m.Validate(); err != nil {
		return Payload{}, err
	}
	sz := opts.Sizing.withDefaults()

	start := time.Now()
	observability.Pipeline().OnStageStart(ctx, observability.StageLayout)

	var p Payload
	var err error
	if opts.Dendrogram {
		p, err = b.withDendrograms(ctx, m, opts, sz)
		switch {
		case errors.Is(err, errors.ErrCodeDegenerateDimension):
			b.Logger.Debug("single-item axis, using plain heatmap", "rows", m.Rows(), "cols", m.Cols())
			p = plain(m, opts.Scale, sz)
		case err != nil:
			b.Logger.Warn("dendrogram layout failed, using plain heatmap", "err", err)
			observability.Pipeline().OnDegraded(ctx, observability.StageLayout, err.Error())
			p = plain(m, opts.Scale, sz)
			p.Fallback = err.Error()
		}
	} else {
		p = plain(m, opts.Scale, sz)
	}

	observability.Pipeline().OnStageComplete(ctx, observability.StageLayout, time.Since(start), nil)
	return p, nil
}

// plain builds a payload with categorical axes.
func plain(m matrix.Matrix, scale colorscale.Scale, sz Sizing) Payload {
	c := m.Clone()
	return Payload{
		Values:     c.Values,
		XLabels:    c.ColLabels,
		YLabels:    c.RowLabels,
		Width:      extent(m.Cols(), sz) + sz.LabelMargin,
		Height:     extent(m.Rows(), sz) + sz.LabelMargin,
		Sizing:     sz,
		ColorScale: scale,
	}
}

// extent is the pixel size of the cell panel along an axis with n items.
func extent(n int, sz Sizing) float64 {
	return max(sz.MinSize, float64(n)*sz.CellSize)
}

func (b *Builder) withDendrograms(ctx context.Context, m matrix.Matrix, opts Options, sz Sizing) (Payload, error) {
	if m.Rows() < 2 || m.Cols() < 2 {
		return Payload{}, errors.New(errors.ErrCodeDegenerateDimension,
			"%dx%d matrix has no dendrogram on a single-item axis", m.Rows(), m.Cols())
	}
	colTree, err := b.tree(ctx, opts.ColTree, m.ColLabels, m.ColVectors(), opts)
	if err != nil {
		return Payload{}, fmt.Errorf("column dendrogram: %w", err)
	}
	rowTree, err := b.tree(ctx, opts.RowTree, m.RowLabels, m.RowVectors(), opts)
	if err != nil {
		return Payload{}, fmt.Errorf("row dendrogram: %w", err)
	}

	colDg := colTree.Dendrogram()
	rowDg := rowTree.Dendrogram()

	ordered, err := m.Reorder(rowDg.Leaves, colDg.Leaves)
	if err != nil {
		return Payload{}, fmt.Errorf("reindex to dendrogram leaves: %w", err)
	}

	cellW := extent(m.Cols(), sz)
	cellH := extent(m.Rows(), sz)
	p := plain(ordered, opts.Scale, sz)
	p.XTicks = colDg.Positions
	p.YTicks = rowDg.Positions
	p.Width = cellW + sz.DendrogramPx + sz.LabelMargin
	p.Height = cellH + sz.DendrogramPx + sz.LabelMargin
	p.Dendrograms = &Dendrograms{
		Column:  colDg,
		Row:     rowDg,
		Domains: ComputeDomains(cellW, cellH, sz.DendrogramPx),
	}
	b.Logger.Debug("dendrogram layout", "rows", m.Rows(), "cols", m.Cols(),
		"width", p.Width, "height", p.Height)
	return p, nil
}

// tree returns given when it covers the axis, otherwise builds one.
func (b *Builder) tree(ctx context.Context, given *cluster.Tree, labels []string, vectors [][]float64, opts Options) (*cluster.Tree, error) {
	if given != nil {
		if given.N() != len(labels) {
			return nil, errors.New(errors.ErrCodeInternal, "tree has %d leaves for %d items", given.N(), len(labels))
		}
		return given, nil
	}
	return b.Orderer.Tree(ctx, cluster.Request{
		Labels:  labels,
		Vectors: vectors,
		Metric:  opts.Metric,
		Method:  opts.Method,
	})
}

// ComputeDomains splits a plotting area of (cellW+strip) x (cellH+strip)
// pixels into a fixed strip and the remaining heatmap panel on each axis.
func ComputeDomains(cellW, cellH, strip float64) Domains {
	fx := strip / (cellW + strip)
	fy := strip / (cellH + strip)
	return Domains{
		RowX:     Domain{0, fx},
		HeatmapX: Domain{fx, 1},
		ColumnY:  Domain{0, fy},
		HeatmapY: Domain{fy, 1},
	}
}
