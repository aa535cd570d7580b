// Package cache provides the caches that sit between discovery, validation
// and resolution.
//
// Two families live here. The in-memory tiers ([Tier], [Documents],
// [Descriptors], [Resolutions]) hold typed values stamped with the snapshot
// generation they were computed against; an entry from an older generation
// or past its TTL is a miss, never served stale. The byte stores ([Cache]
// with [NullCache], [FileCache] and [RedisCache]) persist encoded results
// across processes, keyed by a [Keyer].
package cache

import (
	"context"
	"slices"
	"strings"
	"time"
)

// Cache is a byte store with per-entry expiration.
type Cache interface {
	// Get returns the stored data and whether the key was present and live.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A zero ttl never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the store's resources.
	Close() error
}

// Keyer builds byte store keys.
type Keyer interface {
	// ResolveKey keys a resolution of roots against repository content
	// identified by digest.
	ResolveKey(digest string, roots []string) string

	// DocumentKey keys the diagnostics of a document's content.
	DocumentKey(uri string, content []byte) string
}

// DefaultKeyer hashes key components so keys have a fixed length.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the default keyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// ResolveKey returns "resolve:<hash>" over the digest and the sorted roots.
func (DefaultKeyer) ResolveKey(digest string, roots []string) string {
	return hashKey("resolve", digest, RootsKey(roots))
}

// DocumentKey returns "document:<hash>" over the URI and content hash.
func (DefaultKeyer) DocumentKey(uri string, content []byte) string {
	return hashKey("document", uri, Hash(content))
}

// RootsKey canonicalizes a root requirement multiset: the order of roots
// does not matter, repeats do.
func RootsKey(roots []string) string {
	sorted := slices.Clone(roots)
	slices.Sort(sorted)
	return strings.Join(sorted, "\x00")
}
