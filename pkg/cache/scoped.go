package cache

// ScopedKeyer wraps a Keyer with a prefix so several workspaces can share
// one store without seeing each other's entries.
//
// Example usage:
//
//	// One namespace per repository root on a shared Redis
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "studio:/mnt/packages:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// ResolveKey generates a prefixed key for resolution results.
func (k *ScopedKeyer) ResolveKey(digest string, roots []string) string {
	return k.prefix + k.inner.ResolveKey(digest, roots)
}

// DocumentKey generates a prefixed key for document results.
func (k *ScopedKeyer) DocumentKey(uri string, content []byte) string {
	return k.prefix + k.inner.DocumentKey(uri, content)
}
