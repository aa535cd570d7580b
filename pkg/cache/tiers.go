package cache

import (
	"context"
	"io/fs"
	"time"

	"github.com/matzehuels/rezls/pkg/manifest"
	"github.com/matzehuels/rezls/pkg/observability"
)

// Tier names reported to the cache hooks.
const (
	TierDocuments   = "document"
	TierDescriptors = "descriptor"
	TierResolutions = "resolution"
)

// =============================================================================
// Documents
// =============================================================================

type document[V any] struct {
	fingerprint string
	value       V
}

// Documents caches a per-document result keyed by URI. The entry remembers
// the content it was computed from, so any edit is a miss regardless of TTL.
type Documents[V any] struct {
	tier *Tier[string, document[V]]
}

// NewDocuments creates the document tier.
func NewDocuments[V any](ttl time.Duration, opts ...Option) *Documents[V] {
	return &Documents[V]{tier: NewTier[string, document[V]](TierDocuments, ttl, opts...)}
}

// Get returns the result for uri if it was computed from content at
// generation.
func (d *Documents[V]) Get(ctx context.Context, uri string, content []byte, generation uint64) (V, bool) {
	fp := Hash(content)
	doc, ok := d.tier.GetValid(ctx, uri, generation, func(doc document[V]) bool {
		return doc.fingerprint == fp
	})
	return doc.value, ok
}

// Put stores the result computed from content.
func (d *Documents[V]) Put(ctx context.Context, uri string, content []byte, generation uint64, value V) {
	d.tier.Put(ctx, uri, document[V]{fingerprint: Hash(content), value: value}, generation)
}

// Invalidate drops the entry for uri, typically when the document closes.
func (d *Documents[V]) Invalidate(uri string) { d.tier.Delete(uri) }

// Prune drops entries from other generations.
func (d *Documents[V]) Prune(generation uint64) int { return d.tier.Prune(generation) }

// Clear drops every entry.
func (d *Documents[V]) Clear() { d.tier.Clear() }

// Len returns the number of stored entries.
func (d *Documents[V]) Len() int { return d.tier.Len() }

// =============================================================================
// Descriptors
// =============================================================================

// Stamp fingerprints a manifest file without reading it.
type Stamp struct {
	Size    int64
	ModTime time.Time
}

// StampOf returns the stamp of a stat result.
func StampOf(fi fs.FileInfo) Stamp {
	return Stamp{Size: fi.Size(), ModTime: fi.ModTime()}
}

// Parsed is the outcome of loading one manifest.
type Parsed struct {
	Descriptor *manifest.Descriptor
	Warnings   []*manifest.ParseError
	// Err is set when the manifest was excluded; Descriptor is then nil.
	Err   error
	Stamp Stamp
}

// Descriptors caches parsed manifests by file path. Since a manifest lives
// at searchpath/name/version/package.py, the path identifies one name and
// version of one search path.
//
// A scan for a new generation reuses an entry whose file stamp is unchanged
// and re-stamps it with that generation; a changed stamp, an expired TTL or
// a missing entry means the file is parsed again.
type Descriptors struct {
	tier *Tier[string, Parsed]
}

// NewDescriptors creates the descriptor tier.
func NewDescriptors(ttl time.Duration, opts ...Option) *Descriptors {
	return &Descriptors{tier: NewTier[string, Parsed](TierDescriptors, ttl, opts...)}
}

// Reuse returns the cached parse of path if the file still has stamp, and
// re-stamps it with generation.
func (c *Descriptors) Reuse(ctx context.Context, path string, stamp Stamp, generation uint64) (Parsed, bool) {
	e, ok := c.tier.Peek(path)
	if !ok || !e.Value.Stamp.ModTime.Equal(stamp.ModTime) || e.Value.Stamp.Size != stamp.Size {
		observability.Cache().OnCacheMiss(ctx, TierDescriptors)
		return Parsed{}, false
	}
	if e.Generation != generation && !c.tier.Restamp(path, generation) {
		observability.Cache().OnCacheMiss(ctx, TierDescriptors)
		return Parsed{}, false
	}
	observability.Cache().OnCacheHit(ctx, TierDescriptors)
	return e.Value, true
}

// Get returns the parse of path made or reused at generation.
func (c *Descriptors) Get(ctx context.Context, path string, generation uint64) (Parsed, bool) {
	return c.tier.Get(ctx, path, generation)
}

// Put stores a fresh parse of path.
func (c *Descriptors) Put(ctx context.Context, path string, p Parsed, generation uint64) {
	c.tier.Put(ctx, path, p, generation)
}

// Prune drops manifests not seen by the scan for generation, such as
// deleted files.
func (c *Descriptors) Prune(generation uint64) int { return c.tier.Prune(generation) }

// Clear drops every entry.
func (c *Descriptors) Clear() { c.tier.Clear() }

// Len returns the number of stored entries.
func (c *Descriptors) Len() int { return c.tier.Len() }

// =============================================================================
// Resolutions
// =============================================================================

// Resolutions caches resolver results by root requirement multiset.
type Resolutions[V any] struct {
	tier *Tier[string, V]
}

// NewResolutions creates the resolution tier.
func NewResolutions[V any](ttl time.Duration, opts ...Option) *Resolutions[V] {
	return &Resolutions[V]{tier: NewTier[string, V](TierResolutions, ttl, opts...)}
}

// Get returns the result for roots computed at generation.
func (r *Resolutions[V]) Get(ctx context.Context, roots []string, generation uint64) (V, bool) {
	return r.tier.Get(ctx, RootsKey(roots), generation)
}

// Put stores the result for roots.
func (r *Resolutions[V]) Put(ctx context.Context, roots []string, generation uint64, value V) {
	r.tier.Put(ctx, RootsKey(roots), value, generation)
}

// Prune drops entries from other generations.
func (r *Resolutions[V]) Prune(generation uint64) int { return r.tier.Prune(generation) }

// Clear drops every entry.
func (r *Resolutions[V]) Clear() { r.tier.Clear() }

// Len returns the number of stored entries.
func (r *Resolutions[V]) Len() int { return r.tier.Len() }
