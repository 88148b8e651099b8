package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/clustermap/pkg/cache"
	"github.com/matzehuels/clustermap/pkg/cluster"
	"github.com/matzehuels/clustermap/pkg/colorscale"
	"github.com/matzehuels/clustermap/pkg/errors"
	"github.com/matzehuels/clustermap/pkg/heatmap"
	"github.com/matzehuels/clustermap/pkg/loader"
	"github.com/matzehuels/clustermap/pkg/matrix"
	"github.com/matzehuels/clustermap/pkg/observability"
	"github.com/matzehuels/clustermap/pkg/report"
)

// DefaultScratchDir is used when Runner.ScratchDir is empty.
var DefaultScratchDir = filepath.Join(os.TempDir(), "clustermap")

// Runner encapsulates pipeline execution with caching.
// Both CLI and HTTP service use it.
//
// The Runner is stateless except for the cache, the orderer and the logger.
// Multiple goroutines can safely use the same Runner with different options.
type Runner struct {
	Cache   cache.Cache
	Keyer   cache.Keyer
	Orderer cluster.Orderer
	Logger  *log.Logger

	// ScratchDir receives report directories.
	ScratchDir string

	// MaxLeaves is the item limit of Orderer, set by WithMaxLeaves. Zero
	// means cluster.DefaultMaxLeaves.
	MaxLeaves int
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
// The orderer is a cached hierarchical orderer over the same cache.
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:      c,
		Keyer:      keyer,
		Orderer:    cluster.NewCachedOrderer(cluster.NewHierarchical(logger), c, keyer),
		Logger:     logger,
		ScratchDir: DefaultScratchDir,
	}
}

// WithMaxLeaves replaces the orderer with one that rejects axes larger
// than n. It returns r.
func (r *Runner) WithMaxLeaves(n int) *Runner {
	h := cluster.NewHierarchical(r.Logger)
	h.MaxLeaves = n
	r.Orderer = cluster.NewCachedOrderer(h, r.Cache, r.Keyer)
	r.MaxLeaves = n
	return r
}

// ExecuteParams parses a request map and runs the full pipeline.
// Unrecognized keys are logged and reported as warnings.
func (r *Runner) ExecuteParams(ctx context.Context, params map[string]any) (*Result, error) {
	opts, unknown, err := ParseParams(params)
	if err != nil {
		return nil, err
	}
	for _, k := range unknown {
		r.Logger.Warn("ignoring unexpected parameter", "key", k)
	}
	result, err := r.Execute(ctx, opts)
	if err != nil {
		return nil, err
	}
	for _, k := range unknown {
		result.Warnings = append(result.Warnings, fmt.Sprintf("unexpected parameter %q ignored", k))
	}
	return result, nil
}

// Execute runs the complete load → select → cluster → layout → render
// pipeline and writes the report.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	result, err := r.Build(ctx, opts)
	if err != nil {
		return nil, err
	}

	hooks := observability.Pipeline()
	renderStart := time.Now()
	hooks.OnStageStart(ctx, observability.StageRender)
	dir, err := report.Write(r.scratch(), result.Payload, report.Options{
		Title:   opts.Title,
		Summary: opts.Summary,
	})
	result.Stats.RenderTime = time.Since(renderStart)
	hooks.OnStageComplete(ctx, observability.StageRender, result.Stats.RenderTime, err)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	result.Dir = dir

	r.Logger.Info("wrote report",
		"dir", dir,
		"dendrogram", result.Payload.HasDendrograms(),
		"duration", result.Stats.RenderTime)
	return result, nil
}

// Build runs the pipeline up to the payload without writing a report.
func (r *Runner) Build(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	hooks := observability.Pipeline()
	result := &Result{}

	// Stage 1: Load
	loadStart := time.Now()
	hooks.OnStageStart(ctx, observability.StageLoad)
	m, err := loader.Load(opts.TSVFilePath)
	result.Stats.LoadTime = time.Since(loadStart)
	hooks.OnStageComplete(ctx, observability.StageLoad, result.Stats.LoadTime, err)
	if err != nil {
		return nil, err
	}
	result.Stats.InputRows, result.Stats.InputCols = m.Rows(), m.Cols()
	r.Logger.Info("loaded matrix",
		"path", opts.TSVFilePath,
		"rows", m.Rows(),
		"cols", m.Cols(),
		"duration", result.Stats.LoadTime)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keyOpts := opts.PayloadKeyOpts()
	keyOpts.MaxLeaves = r.maxLeaves()
	cacheKey := r.Keyer.PayloadKey(cache.HashJSON(m), keyOpts)
	if p, ok := r.cachedPayload(ctx, cacheKey); ok {
		result.Payload = p
		result.CacheInfo.PayloadHit = true
		result.Stats.Rows, result.Stats.Cols = p.Rows(), p.Cols()
		if p.Fallback != "" {
			result.Warnings = append(result.Warnings, "dendrograms unavailable: "+p.Fallback)
		}
		return result, nil
	}

	p, err := r.compute(ctx, m, opts, result)
	if err != nil {
		return nil, err
	}
	result.Payload = p
	result.Stats.Rows, result.Stats.Cols = p.Rows(), p.Cols()

	if len(result.Warnings) == 0 {
		if data, err := json.Marshal(p); err == nil {
			_ = r.Cache.Set(ctx, cacheKey, data, cache.TTLPayload)
		}
	}
	return result, nil
}

func (r *Runner) cachedPayload(ctx context.Context, key string) (heatmap.Payload, bool) {
	data, hit, err := r.Cache.Get(ctx, key)
	if err != nil || !hit {
		return heatmap.Payload{}, false
	}
	var p heatmap.Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return heatmap.Payload{}, false
	}
	return p, true
}

// compute runs stages 2 to 4 on a loaded matrix.
func (r *Runner) compute(ctx context.Context, m matrix.Matrix, opts Options, result *Result) (heatmap.Payload, error) {
	hooks := observability.Pipeline()

	// Stage 2: Select
	if opts.ShouldSelect() {
		start := time.Now()
		hooks.OnStageStart(ctx, observability.StageSelect)
		selected, err := m.SelectTop(opts.TopPercent)
		result.Stats.SelectTime = time.Since(start)
		hooks.OnStageComplete(ctx, observability.StageSelect, result.Stats.SelectTime, err)
		if err != nil {
			return heatmap.Payload{}, err
		}
		r.Logger.Info("selected rows",
			"top_percent", opts.TopPercent,
			"kept", selected.Rows(),
			"of", m.Rows())
		m = selected
	}

	// Stage 3: Cluster
	dendrogram := opts.Dendrogram && opts.ShouldCluster()
	if dendrogram && (m.Rows() < 2 || m.Cols() < 2) {
		r.Logger.Debug("single-item axis, drawing without dendrograms", "rows", m.Rows(), "cols", m.Cols())
		dendrogram = false
	}
	var trees axisTrees
	if opts.ShouldCluster() {
		start := time.Now()
		hooks.OnStageStart(ctx, observability.StageCluster)
		ordered, t, clean, err := r.cluster(ctx, m, opts, result)
		result.Stats.ClusterTime = time.Since(start)
		hooks.OnStageComplete(ctx, observability.StageCluster, result.Stats.ClusterTime, err)
		if err != nil {
			return heatmap.Payload{}, err
		}
		m, trees = ordered, t
		dendrogram = dendrogram && clean
		r.Logger.Info("clustered matrix",
			"metric", opts.DistMetric,
			"method", opts.LinkageMethod,
			"duration", result.Stats.ClusterTime)
	}

	// Stage 4: Layout
	start := time.Now()
	builder := heatmap.NewBuilder(r.Orderer, r.Logger)
	p, err := builder.Build(ctx, m, heatmap.Options{
		Dendrogram: dendrogram,
		Metric:     opts.DistMetric,
		Method:     opts.LinkageMethod,
		Scale:      colorscale.Select(opts.CenteredBy, m.Values),
		RowTree:    trees.rows,
		ColTree:    trees.cols,
	})
	result.Stats.LayoutTime = time.Since(start)
	if err != nil {
		return heatmap.Payload{}, fmt.Errorf("layout: %w", err)
	}
	if p.Fallback != "" {
		if opts.Strict {
			return heatmap.Payload{}, errors.New(errors.ErrCodeClusteringFailed, "dendrogram: %s", p.Fallback)
		}
		result.Warnings = append(result.Warnings, "dendrograms unavailable: "+p.Fallback)
	}
	r.Logger.Info("computed layout",
		"rows", p.Rows(),
		"cols", p.Cols(),
		"dendrogram", p.HasDendrograms(),
		"duration", result.Stats.LayoutTime)
	return p, nil
}

// axisTrees holds the trees stage 3 built, so the layout can draw them
// without clustering again. A nil tree means the axis was not clustered.
type axisTrees struct {
	rows, cols *cluster.Tree
}

// cluster orders both axes. An axis that fails to cluster keeps its order;
// clean is false if that happened on either axis.
func (r *Runner) cluster(ctx context.Context, m matrix.Matrix, opts Options, result *Result) (matrix.Matrix, axisTrees, bool, error) {
	clean := true
	axis := func(name string, labels []string, vectors [][]float64) ([]string, *cluster.Tree, error) {
		if len(labels) == 1 {
			return labels, nil, nil
		}
		tree, err := r.Orderer.Tree(ctx, cluster.Request{
			Labels:  labels,
			Vectors: vectors,
			Metric:  opts.DistMetric,
			Method:  opts.LinkageMethod,
		})
		switch {
		case err == nil:
			return tree.Leaves(), tree, nil
		case errors.Is(err, errors.ErrCodeDegenerateDimension):
			r.Logger.Debug("skipping clustering of degenerate axis", "axis", name)
		case errors.IsRecoverable(err) && !opts.Strict:
			r.Logger.Warn("clustering failed, keeping original order", "axis", name, "err", err)
			observability.Pipeline().OnDegraded(ctx, observability.StageCluster, err.Error())
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s not clustered: %s", name, errors.UserMessage(err)))
			clean = false
		default:
			return nil, nil, fmt.Errorf("cluster %s: %w", name, err)
		}
		return labels, nil, nil
	}

	var trees axisTrees
	rowOrder, rowTree, err := axis("rows", m.RowLabels, m.RowVectors())
	if err != nil {
		return matrix.Matrix{}, trees, false, err
	}
	colOrder, colTree, err := axis("columns", m.ColLabels, m.ColVectors())
	if err != nil {
		return matrix.Matrix{}, trees, false, err
	}
	ordered, err := m.Reorder(rowOrder, colOrder)
	if err != nil {
		return matrix.Matrix{}, trees, false, errors.Wrap(errors.ErrCodeInternal, err, "reorder")
	}
	trees.rows, trees.cols = rowTree, colTree
	return ordered, trees, clean, nil
}

func (r *Runner) maxLeaves() int {
	if r.MaxLeaves > 0 {
		return r.MaxLeaves
	}
	return cluster.DefaultMaxLeaves
}

func (r *Runner) scratch() string {
	if r.ScratchDir != "" {
		return r.ScratchDir
	}
	return DefaultScratchDir
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}
