package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matzehuels/rezls/pkg/manifest"
	"github.com/matzehuels/rezls/pkg/observability"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type countingHooks struct {
	observability.NoopCacheHooks
	mu           sync.Mutex
	hits, misses int
}

func (h *countingHooks) OnCacheHit(context.Context, string) {
	h.mu.Lock()
	h.hits++
	h.mu.Unlock()
}

func (h *countingHooks) OnCacheMiss(context.Context, string) {
	h.mu.Lock()
	h.misses++
	h.mu.Unlock()
}

func TestTierTTLAndGeneration(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	tier := NewTier[string, int]("test", time.Minute, WithClock(clock.Now))

	tier.Put(ctx, "a", 1, 5)

	tests := []struct {
		name       string
		advance    time.Duration
		generation uint64
		wantOK     bool
	}{
		{"fresh", 0, 5, true},
		{"younger than ttl", 59 * time.Second, 5, true},
		{"stale generation", 0, 6, false},
		{"expired", time.Second, 5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock.Advance(tt.advance)
			v, ok := tier.Get(ctx, "a", tt.generation)
			if ok != tt.wantOK {
				t.Fatalf("Get() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && v != 1 {
				t.Errorf("Get() = %d, want 1", v)
			}
		})
	}

	if tier.Len() != 0 {
		t.Errorf("expired entry kept: Len() = %d", tier.Len())
	}
}

func TestTierZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	tier := NewTier[string, string]("test", 0, WithClock(clock.Now))
	tier.Put(ctx, "k", "v", 1)
	clock.Advance(24 * 365 * time.Hour)
	if _, ok := tier.Get(ctx, "k", 1); !ok {
		t.Error("zero TTL entry expired")
	}
}

func TestTierReplaceAndPrune(t *testing.T) {
	ctx := context.Background()
	tier := NewTier[string, int]("test", time.Hour)
	tier.Put(ctx, "a", 1, 1)
	tier.Put(ctx, "b", 2, 1)
	tier.Put(ctx, "a", 3, 2)

	if v, ok := tier.Get(ctx, "a", 2); !ok || v != 3 {
		t.Errorf("Get(a) = %d, %v after replace", v, ok)
	}
	if n := tier.Prune(2); n != 1 {
		t.Errorf("Prune() dropped %d entries, want 1", n)
	}
	if _, ok := tier.Peek("b"); ok {
		t.Error("Prune() kept entry from old generation")
	}

	if !tier.Restamp("a", 3) {
		t.Fatal("Restamp() failed on live entry")
	}
	if _, ok := tier.Get(ctx, "a", 3); !ok {
		t.Error("restamped entry not served at new generation")
	}
}

func TestTierHooks(t *testing.T) {
	ctx := context.Background()
	hooks := &countingHooks{}
	observability.SetCacheHooks(hooks)
	defer observability.Reset()

	tier := NewTier[string, int]("test", time.Hour)
	tier.Get(ctx, "a", 1)
	tier.Put(ctx, "a", 1, 1)
	tier.Get(ctx, "a", 1)

	if hooks.hits != 1 || hooks.misses != 1 {
		t.Errorf("hits = %d, misses = %d", hooks.hits, hooks.misses)
	}
}

func TestTierConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	tier := NewTier[int, int]("test", time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tier.Put(ctx, j, i, 1)
				tier.Get(ctx, j, 1)
			}
		}(i)
	}
	wg.Wait()
	if tier.Len() != 100 {
		t.Errorf("Len() = %d", tier.Len())
	}
}

func TestDocumentsFingerprint(t *testing.T) {
	ctx := context.Background()
	docs := NewDocuments[int](time.Hour)
	docs.Put(ctx, "file:///a/package.py", []byte("name = 'a'"), 1, 42)

	if v, ok := docs.Get(ctx, "file:///a/package.py", []byte("name = 'a'"), 1); !ok || v != 42 {
		t.Errorf("Get() = %d, %v", v, ok)
	}
	if _, ok := docs.Get(ctx, "file:///a/package.py", []byte("name = 'b'"), 1); ok {
		t.Error("edited content served from cache")
	}
	docs.Invalidate("file:///a/package.py")
	if docs.Len() != 0 {
		t.Error("Invalidate() kept entry")
	}
}

func TestDescriptorsReuse(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	descs := NewDescriptors(10*time.Minute, WithClock(clock.Now))

	stamp := Stamp{Size: 10, ModTime: clock.Now()}
	parsed := Parsed{Descriptor: &manifest.Descriptor{Name: "foo"}, Stamp: stamp}
	descs.Put(ctx, "/repo/foo/1/package.py", parsed, 1)

	got, ok := descs.Reuse(ctx, "/repo/foo/1/package.py", stamp, 2)
	if !ok || got.Descriptor.Name != "foo" {
		t.Fatalf("Reuse() = %+v, %v", got, ok)
	}
	if _, ok := descs.Get(ctx, "/repo/foo/1/package.py", 2); !ok {
		t.Error("Reuse() did not re-stamp the entry")
	}
	if _, ok := descs.Get(ctx, "/repo/foo/1/package.py", 1); ok {
		t.Error("old generation still served")
	}

	changed := Stamp{Size: 11, ModTime: stamp.ModTime}
	if _, ok := descs.Reuse(ctx, "/repo/foo/1/package.py", changed, 3); ok {
		t.Error("Reuse() ignored a changed file size")
	}

	clock.Advance(10 * time.Minute)
	if _, ok := descs.Reuse(ctx, "/repo/foo/1/package.py", stamp, 3); ok {
		t.Error("Reuse() served an expired entry")
	}
}

func TestResolutionsRootOrder(t *testing.T) {
	ctx := context.Background()
	res := NewResolutions[string](time.Hour)
	res.Put(ctx, []string{"foo", "bar-1"}, 4, "ok")

	if v, ok := res.Get(ctx, []string{"bar-1", "foo"}, 4); !ok || v != "ok" {
		t.Errorf("Get() with reordered roots = %q, %v", v, ok)
	}
	if _, ok := res.Get(ctx, []string{"bar-1", "foo", "foo"}, 4); ok {
		t.Error("repeated root matched a different multiset")
	}
	if _, ok := res.Get(ctx, []string{"foo", "bar-1"}, 5); ok {
		t.Error("entry from generation 4 served at generation 5")
	}
}

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}
	data, hit, err := c.Get(ctx, "key")
	if err != nil || hit || data != nil {
		t.Errorf("Get() = %q, %v, %v; want miss", data, hit, err)
	}
	if err := c.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
}

func TestFileCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	fc := c.(*FileCache)
	clock := newFakeClock()
	fc.now = clock.Now

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if data, ok, err := c.Get(ctx, "k"); err != nil || !ok || string(data) != "v" {
		t.Errorf("Get() = %q, %v, %v", data, ok, err)
	}

	clock.Advance(2 * time.Minute)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("expired entry served")
	}

	_ = c.Set(ctx, "a", []byte("1"), 0)
	if err := fc.Clear(); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(ctx, "a"); ok {
		t.Error("Clear() kept entry")
	}
	if err := c.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete(missing) = %v", err)
	}
}

func TestHash(t *testing.T) {
	h1 := Hash([]byte("hello"))
	if h1 != Hash([]byte("hello")) {
		t.Error("Hash should be deterministic")
	}
	if h1 == Hash([]byte("world")) {
		t.Error("Different inputs should produce different hashes")
	}
	if len(h1) != 64 {
		t.Errorf("Hash length should be 64, got %d", len(h1))
	}

	joined, split := hashKey("resolve", "a b"), hashKey("resolve", "a", "b")
	if joined == split {
		t.Error("hashKey should keep parts apart")
	}
	if !strings.HasPrefix(joined, "resolve:") {
		t.Errorf("hashKey() = %q, want the prefix", joined)
	}
}

func TestDefaultKeyer(t *testing.T) {
	k := NewDefaultKeyer()

	k1 := k.ResolveKey("digest", []string{"foo", "bar"})
	if !strings.HasPrefix(k1, "resolve:") {
		t.Errorf("ResolveKey unexpected: %s", k1)
	}
	if k1 != k.ResolveKey("digest", []string{"bar", "foo"}) {
		t.Error("ResolveKey depends on root order")
	}
	if k1 == k.ResolveKey("other", []string{"foo", "bar"}) {
		t.Error("ResolveKey ignores the digest")
	}

	d1 := k.DocumentKey("file:///a", []byte("x"))
	if d1 == k.DocumentKey("file:///a", []byte("y")) {
		t.Error("DocumentKey ignores content")
	}
}

func TestScopedKeyer(t *testing.T) {
	inner := NewDefaultKeyer()
	scoped := NewScopedKeyer(inner, "ws:1:")
	if got, want := scoped.ResolveKey("d", []string{"foo"}), "ws:1:"+inner.ResolveKey("d", []string{"foo"}); got != want {
		t.Errorf("ResolveKey = %s, want %s", got, want)
	}
	if got := NewScopedKeyer(nil, "p:").DocumentKey("u", nil); !strings.HasPrefix(got, "p:document:") {
		t.Errorf("nil inner keyer: %s", got)
	}
}

func TestRetryableError(t *testing.T) {
	if Retryable(nil) != nil {
		t.Error("Retryable(nil) should return nil")
	}
	err := Retryable(ErrNetwork)
	if !IsRetryable(err) {
		t.Error("IsRetryable should return true for wrapped error")
	}
	if err.Error() != ErrNetwork.Error() {
		t.Errorf("Error message should be preserved: %s", err.Error())
	}
	if IsRetryable(ErrNetwork) {
		t.Error("IsRetryable should return false for unwrapped error")
	}
}

func TestRetry(t *testing.T) {
	ctx := context.Background()
	permanent := errors.New("permanent")

	calls := 0
	err := Retry(ctx, 3, time.Millisecond, func() error {
		calls++
		return permanent
	})
	if err != permanent || calls != 1 {
		t.Errorf("non-retryable: err = %v, calls = %d", err, calls)
	}

	calls = 0
	err = Retry(ctx, 3, time.Millisecond, func() error {
		calls++
		if calls < 2 {
			return Retryable(ErrNetwork)
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Errorf("retryable: err = %v, calls = %d", err, calls)
	}

	calls = 0
	err = Retry(ctx, 3, time.Millisecond, func() error {
		calls++
		return Retryable(ErrNetwork)
	})
	if !errors.Is(err, ErrNetwork) || calls != 3 {
		t.Errorf("exhausted: err = %v, calls = %d", err, calls)
	}
}

func TestRetryWithBackoffContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryWithBackoff(ctx, func() error {
		return Retryable(ErrNetwork)
	})
	if err != context.Canceled {
		t.Errorf("Should return context error: %v", err)
	}
}
