package cache

import (
	"context"
	"time"
)

// CappedCache bounds the time-to-live of every entry written through it.
type CappedCache struct {
	Cache
	MaxTTL time.Duration
}

// WithMaxTTL wraps c so that no entry outlives maxTTL. A zero maxTTL returns
// c unchanged.
func WithMaxTTL(c Cache, maxTTL time.Duration) Cache {
	if maxTTL <= 0 {
		return c
	}
	return &CappedCache{Cache: c, MaxTTL: maxTTL}
}

// Set stores data with the smaller of ttl and MaxTTL. A ttl of zero, which
// would mean no expiry, is capped as well.
func (c *CappedCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 || ttl > c.MaxTTL {
		ttl = c.MaxTTL
	}
	return c.Cache.Set(ctx, key, data, ttl)
}
