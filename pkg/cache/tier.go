package cache

import (
	"context"
	"sync"
	"time"

	"github.com/matzehuels/rezls/pkg/observability"
)

// Entry is a cached value with the metadata that decides whether it may be
// served.
type Entry[V any] struct {
	Value      V
	CreatedAt  time.Time
	TTL        time.Duration
	Generation uint64
}

// Expired reports whether the entry is older than its TTL at now. A zero TTL
// never expires.
func (e Entry[V]) Expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.CreatedAt) >= e.TTL
}

// Option configures a tier.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Tier is an in-memory map of entries checked lazily at lookup: an entry
// from another generation or past its TTL is dropped and reported as a
// miss. Each Put replaces the whole entry under the lock, so readers see
// either the old or the new value. Safe for concurrent use.
type Tier[K comparable, V any] struct {
	name    string
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
	entries map[K]Entry[V]
}

// NewTier creates a tier. name labels hit/miss events.
func NewTier[K comparable, V any](name string, ttl time.Duration, opts ...Option) *Tier[K, V] {
	o := buildOptions(opts)
	return &Tier[K, V]{
		name:    name,
		ttl:     ttl,
		now:     o.now,
		entries: make(map[K]Entry[V]),
	}
}

// Name returns the tier's label.
func (t *Tier[K, V]) Name() string { return t.name }

// TTL returns the lifetime given to new entries.
func (t *Tier[K, V]) TTL() time.Duration { return t.ttl }

// Get returns the value under key if it was computed against generation and
// has not expired.
func (t *Tier[K, V]) Get(ctx context.Context, key K, generation uint64) (V, bool) {
	return t.GetValid(ctx, key, generation, nil)
}

// GetValid is [Tier.Get] with an extra check on the stored value. An entry
// rejected by valid is a miss.
func (t *Tier[K, V]) GetValid(ctx context.Context, key K, generation uint64, valid func(V) bool) (V, bool) {
	e, ok := t.entry(key, func(e Entry[V]) bool {
		return e.Generation == generation && (valid == nil || valid(e.Value))
	})
	if !ok {
		observability.Cache().OnCacheMiss(ctx, t.name)
		var zero V
		return zero, false
	}
	observability.Cache().OnCacheHit(ctx, t.name)
	return e.Value, true
}

// Put stores value under key for generation, replacing any previous entry.
func (t *Tier[K, V]) Put(ctx context.Context, key K, value V, generation uint64) {
	t.mu.Lock()
	t.entries[key] = Entry[V]{Value: value, CreatedAt: t.now(), TTL: t.ttl, Generation: generation}
	t.mu.Unlock()
	observability.Cache().OnCacheSet(ctx, t.name, 1)
}

// Peek returns the live entry under key whatever its generation, or false
// if it is absent or expired. It does not report hits or misses.
func (t *Tier[K, V]) Peek(key K) (Entry[V], bool) {
	return t.entry(key, func(Entry[V]) bool { return true })
}

// Restamp moves a live entry to generation without resetting its age.
func (t *Tier[K, V]) Restamp(key K, generation uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok || e.Expired(t.now()) {
		return false
	}
	e.Generation = generation
	t.entries[key] = e
	return true
}

// Delete removes key.
func (t *Tier[K, V]) Delete(key K) {
	t.mu.Lock()
	delete(t.entries, key)
	t.mu.Unlock()
}

// Prune removes every entry not stamped with generation and returns how
// many were dropped.
func (t *Tier[K, V]) Prune(generation uint64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for k, e := range t.entries {
		if e.Generation != generation {
			delete(t.entries, k)
			n++
		}
	}
	return n
}

// Clear removes every entry.
func (t *Tier[K, V]) Clear() {
	t.mu.Lock()
	clear(t.entries)
	t.mu.Unlock()
}

// Len returns the number of stored entries, including ones that would be
// rejected at lookup.
func (t *Tier[K, V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Tier[K, V]) entry(key K, accept func(Entry[V]) bool) (Entry[V], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		return Entry[V]{}, false
	}
	if e.Expired(t.now()) {
		delete(t.entries, key)
		return Entry[V]{}, false
	}
	if !accept(e) {
		return Entry[V]{}, false
	}
	return e, true
}
