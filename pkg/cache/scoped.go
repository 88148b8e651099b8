package cache

// ScopedKeyer wraps a Keyer with a prefix so that several deployments can
// share one Redis database without colliding.
//
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "staging:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// If inner is nil, a DefaultKeyer is used.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// TreeKey generates a prefixed key for cluster tree caching.
func (k *ScopedKeyer) TreeKey(vectorsHash string, opts TreeKeyOpts) string {
	return k.prefix + k.inner.TreeKey(vectorsHash, opts)
}

// PayloadKey generates a prefixed key for payload caching.
func (k *ScopedKeyer) PayloadKey(matrixHash string, opts PayloadKeyOpts) string {
	return k.prefix + k.inner.PayloadKey(matrixHash, opts)
}
