package cluster

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/clustermap/pkg/cache"
	"github.com/matzehuels/clustermap/pkg/errors"
	"github.com/matzehuels/clustermap/pkg/observability"
)

// Request describes one axis to cluster: a label per item and the feature
// vector the distance metric is computed over.
type Request struct {
	Labels  []string
	Vectors [][]float64
	Metric  string
	Method  string
}

// Orderer builds cluster trees.
type Orderer interface {
	Tree(ctx context.Context, req Request) (*Tree, error)
}

// Order returns the leaf order of the tree built for req. A single item is
// returned as-is without computing any distances.
func Order(ctx context.Context, o Orderer, req Request) ([]string, error) {
	if len(req.Labels) == 1 {
		return []string{req.Labels[0]}, nil
	}
	t, err := o.Tree(ctx, req)
	if err != nil {
		return nil, err
	}
	return t.Leaves(), nil
}

// Hierarchical computes trees directly with [Pdist] and [Linkage].
type Hierarchical struct {
	// MaxLeaves rejects requests with more items. Zero means DefaultMaxLeaves.
	MaxLeaves int
	Logger    *log.Logger
}

// NewHierarchical creates an orderer with default limits.
func NewHierarchical(logger *log.Logger) *Hierarchical {
	if logger == nil {
		logger = log.Default()
	}
	return &Hierarchical{MaxLeaves: DefaultMaxLeaves, Logger: logger}
}

// Tree validates req and builds its cluster tree.
func (h *Hierarchical) Tree(ctx context.Context, req Request) (*Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := len(req.Labels)
	if n != len(req.Vectors) {
		return nil, errors.New(errors.ErrCodeClusteringFailed,
			"%d labels for %d vectors", n, len(req.Vectors))
	}
	if n == 0 {
		return nil, errors.New(errors.ErrCodeDegenerateDimension, "nothing to cluster")
	}
	if n == 1 {
		return &Tree{Labels: []string{req.Labels[0]}}, nil
	}
	if err := h.Admit(req); err != nil {
		return nil, err
	}
	if err := CheckCombination(req.Metric, req.Method); err != nil {
		return nil, err
	}

	start := time.Now()
	dist, err := Pdist(req.Vectors, req.Metric)
	if err != nil {
		return nil, err
	}
	links, err := Linkage(dist, n, req.Method)
	if err != nil {
		return nil, err
	}
	t, err := NewTree(req.Labels, links)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "build tree")
	}
	if h.Logger != nil {
		h.Logger.Debug("clustered", "items", n, "metric", req.Metric, "method", req.Method,
			"duration", time.Since(start))
	}
	return t, nil
}

// Admit rejects requests with more items than MaxLeaves.
func (h *Hierarchical) Admit(req Request) error {
	limit := h.MaxLeaves
	if limit <= 0 {
		limit = DefaultMaxLeaves
	}
	if n := len(req.Labels); n > limit {
		return errors.New(errors.ErrCodeClusteringFailed,
			"%d items exceed the clustering limit of %d", n, limit)
	}
	return nil
}

// admitter is implemented by orderers with limits that hold even when the
// tree is already cached.
type admitter interface {
	Admit(req Request) error
}

// CachedOrderer memoizes trees in a cache and collapses concurrent builds of
// the same tree into one.
type CachedOrderer struct {
	Inner Orderer
	Cache cache.Cache
	Keyer cache.Keyer
	TTL   time.Duration

	group singleflight.Group
}

// NewCachedOrderer wraps inner. A nil cache disables caching and a nil
// keyer uses cache.DefaultKeyer.
func NewCachedOrderer(inner Orderer, c cache.Cache, keyer cache.Keyer) *CachedOrderer {
	if c == nil {
		c = cache.NewNullCache()
	}
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	return &CachedOrderer{Inner: inner, Cache: c, Keyer: keyer, TTL: cache.TTLTree}
}

type cachedTreeInput struct {
	Labels  []string    `json:"labels"`
	Vectors [][]float64 `json:"vectors"`
}

// Tree returns the cached tree for req or builds and stores it.
func (c *CachedOrderer) Tree(ctx context.Context, req Request) (*Tree, error) {
	if a, ok := c.Inner.(admitter); ok {
		if err := a.Admit(req); err != nil {
			return nil, err
		}
	}
	hash := cache.HashJSON(cachedTreeInput{Labels: req.Labels, Vectors: req.Vectors})
	if hash == "" {
		return c.Inner.Tree(ctx, req)
	}
	key := c.Keyer.TreeKey(hash, cache.TreeKeyOpts{Metric: req.Metric, Method: req.Method})

	if data, hit, err := c.Cache.Get(ctx, key); err == nil && hit {
		var t Tree
		if err := json.Unmarshal(data, &t); err == nil {
			observability.Cache().OnCacheHit(ctx, "tree")
			return &t, nil
		}
	}
	observability.Cache().OnCacheMiss(ctx, "tree")

	v, err, _ := c.group.Do(key, func() (any, error) {
		t, err := c.Inner.Tree(ctx, req)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(t); err == nil {
			if c.Cache.Set(ctx, key, data, c.TTL) == nil {
				observability.Cache().OnCacheSet(ctx, "tree", len(data))
			}
		}
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Tree), nil
}

var (
	_ Orderer = (*Hierarchical)(nil)
	_ Orderer = (*CachedOrderer)(nil)
)
