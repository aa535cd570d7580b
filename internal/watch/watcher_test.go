package watch

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"
)

func mkpkg(t *testing.T, root, name, ver string) string {
	t.Helper()
	dir := filepath.Join(root, name, ver)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "package.py")
	if err := os.WriteFile(path, []byte("name = \""+name+"\"\nversion = \""+ver+"\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func start(t *testing.T, w *Watcher) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errCh; err != nil {
			t.Errorf("Run() error: %v", err)
		}
	})
	return cancel
}

func TestWatcherDebounce(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	manifest := mkpkg(t, root, "foo", "1.0")

	var (
		mu        sync.Mutex
		calls     int
		collected []string
	)
	done := make(chan struct{}, 1)

	w, err := New(Config{
		Roots:    []string{root},
		Debounce: 100 * time.Millisecond,
		OnChange: func(_ context.Context, changed []string) error {
			mu.Lock()
			defer mu.Unlock()
			calls++
			collected = append(collected, changed...)
			select {
			case done <- struct{}{}:
			default:
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	start(t, w)

	for i := range 3 {
		body := []byte("name = \"foo\"\nversion = \"1.0\"\n" + string(rune('a'+i)) + " = 1\n")
		if err := os.WriteFile(manifest, body, 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("callbacks = %d, want 1", calls)
	}
	if !slices.Contains(collected, manifest) {
		t.Errorf("changed = %v, want %s", collected, manifest)
	}
}

func TestWatcherIgnoresNoise(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	mkpkg(t, root, "foo", "1.0")

	fired := make(chan []string, 10)
	w, err := New(Config{
		Roots:    []string{root},
		Debounce: 50 * time.Millisecond,
		OnChange: func(_ context.Context, changed []string) error {
			fired <- changed
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	start(t, w)

	dir := filepath.Join(root, "foo", "1.0")
	for _, name := range []string{"context.rxt", "package.py.swp", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case changed := <-fired:
		t.Errorf("callback fired for ignored files: %v", changed)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestWatcherNewVersion(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	mkpkg(t, root, "foo", "1.0")

	fired := make(chan []string, 10)
	w, err := New(Config{
		Roots:    []string{root},
		Debounce: 50 * time.Millisecond,
		OnChange: func(_ context.Context, changed []string) error {
			fired <- changed
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	start(t, w)

	mkpkg(t, root, "foo", "2.0")

	select {
	case changed := <-fired:
		if !slices.Contains(changed, filepath.Join(root, "foo", "2.0")) {
			t.Errorf("changed = %v, want the new version directory", changed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

func TestNewSkipsMissingRoots(t *testing.T) {
	root := t.TempDir()
	w, err := New(Config{Roots: []string{filepath.Join(root, "missing"), root}})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer w.fsw.Close()
	if got := w.Roots(); len(got) != 1 || got[0] != root {
		t.Errorf("Roots() = %v", got)
	}
}

func TestNewInvalidPattern(t *testing.T) {
	if _, err := New(Config{Patterns: []string{"[unclosed"}}); err == nil {
		t.Error("New accepted an invalid pattern")
	}
	if _, err := New(Config{Ignore: []string{"{a,b"}}); err == nil {
		t.Error("New accepted an invalid ignore pattern")
	}
}

func TestRunTwice(t *testing.T) {
	w, err := New(Config{Roots: []string{t.TempDir()}})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if err := w.Run(ctx); err == nil {
		t.Error("second Run succeeded")
	}
}

func TestDefaultIgnores(t *testing.T) {
	w := &Watcher{ignores: DefaultIgnores(), patterns: defaultPatterns}
	tests := []struct {
		rel     string
		ignored bool
		matches bool
	}{
		{"foo/1.0/package.py", false, true},
		{"foo/1.0", false, true},
		{"foo", false, true},
		{"foo/1.0/.git/HEAD", true, false},
		{"foo/1.0/build/context.rxt", true, false},
		{"foo/1.0/__pycache__/package.cpython-311.pyc", true, false},
		{"foo/1.0/package.py~", true, false},
		{"foo/1.0/python/foo/__init__.py", false, false},
	}
	for _, tt := range tests {
		if got := w.isIgnored(tt.rel); got != tt.ignored {
			t.Errorf("isIgnored(%q) = %v, want %v", tt.rel, got, tt.ignored)
		}
		if got := w.matches(tt.rel); got != tt.matches {
			t.Errorf("matches(%q) = %v, want %v", tt.rel, got, tt.matches)
		}
	}
}
