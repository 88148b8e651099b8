// Package cache provides the memoization hook for expensive pipeline stages.
//
// Caching is optional and never relied upon for correctness: every caller
// treats a cache error as a miss. The main consumer is cluster tree
// computation, which is quadratic in the number of rows and is frequently
// repeated for the same matrix with different display options.
//
// # Backends
//
//   - [NullCache]: disables caching
//   - [MemoryCache]: in-process map, one per service instance
//   - [FileCache]: JSON files under a directory, used by the CLI
//   - [RedisCache]: shared cache for multi-instance deployments
//
// # Keys
//
// Keys are built by a [Keyer] so that backends never need to understand the
// shape of a request. [ScopedKeyer] adds a namespace prefix.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque byte payloads under string keys.
type Cache interface {
	// Get returns the payload and true on a hit, or nil and false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a payload. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Default time-to-live values per stage.
const (
	TTLTree    = 7 * 24 * time.Hour
	TTLPayload = 24 * time.Hour
)

// Keyer builds cache keys for each cached stage.
type Keyer interface {
	// TreeKey identifies a cluster tree by the hash of its input vectors.
	TreeKey(vectorsHash string, opts TreeKeyOpts) string

	// PayloadKey identifies a heatmap payload by the hash of its matrix.
	PayloadKey(matrixHash string, opts PayloadKeyOpts) string
}

// TreeKeyOpts are the options that change a cluster tree.
type TreeKeyOpts struct {
	Metric string `json:"metric"`
	Method string `json:"method"`
}

// PayloadKeyOpts are the options that change a heatmap payload.
type PayloadKeyOpts struct {
	Cluster    bool     `json:"cluster"`
	SortBySum  bool     `json:"sort_by_sum"`
	TopPercent float64  `json:"top_percent"`
	CenteredBy *float64 `json:"centered_by,omitempty"`
	Metric     string   `json:"metric"`
	Method     string   `json:"method"`
	Dendrogram bool     `json:"dendrogram"`
	MaxLeaves  int      `json:"max_leaves"`
}

// DefaultKeyer is the standard Keyer.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the standard keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// TreeKey returns "tree:<hash>".
func (DefaultKeyer) TreeKey(vectorsHash string, opts TreeKeyOpts) string {
	return hashKey("tree", vectorsHash, opts)
}

// PayloadKey returns "payload:<hash>".
func (DefaultKeyer) PayloadKey(matrixHash string, opts PayloadKeyOpts) string {
	return hashKey("payload", matrixHash, opts)
}

var _ Keyer = DefaultKeyer{}
