// Package workspace is the single owner of the repository snapshot, the
// caches and the open documents.
//
// Readers capture the current snapshot and never block the owner: a rescan
// builds a new snapshot off the request path and publishes it with one
// atomic swap. Concurrent rescan triggers share the scan in flight unless
// the search paths changed after it started.
package workspace

import (
	"context"
	"io"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/rezls/internal/watch"
	"github.com/matzehuels/rezls/pkg/cache"
	"github.com/matzehuels/rezls/pkg/discovery"
	rerrors "github.com/matzehuels/rezls/pkg/errors"
	"github.com/matzehuels/rezls/pkg/pipeline"
	"github.com/matzehuels/rezls/pkg/repo"
	"github.com/matzehuels/rezls/pkg/resolve"
	"github.com/matzehuels/rezls/pkg/validate"
)

// Defaults for zero Options fields.
const (
	DefaultDebounce      = 300 * time.Millisecond
	DefaultDescriptorTTL = time.Hour
	DefaultDocumentTTL   = 5 * time.Minute
	DefaultResolveTTL    = 10 * time.Minute
)

// Options configures a Workspace.
type Options struct {
	SearchPaths []string
	Validation  validate.Options
	// Debounce delays validation after an edit.
	Debounce       time.Duration
	ResolveTimeout time.Duration

	DescriptorTTL time.Duration
	DocumentTTL   time.Duration
	ResolveTTL    time.Duration

	// Store persists resolutions across processes. Nil disables it.
	Store cache.Cache
	Keyer cache.Keyer

	// Publisher receives diagnostics. Nil drops them.
	Publisher Publisher
	Logger    *log.Logger
}

// Settings is the part of the configuration an editor may change at
// runtime.
type Settings struct {
	SearchPaths []string         `json:"search_paths"`
	Validation  validate.Options `json:"validation"`
}

// Workspace coordinates scans, validation, queries and resolutions.
type Workspace struct {
	logger *log.Logger
	runner *pipeline.Runner

	snap       atomic.Pointer[repo.Snapshot]
	generation atomic.Uint64
	scans      singleflight.Group

	descriptors *cache.Descriptors
	documents   *cache.Documents[*validate.Report]
	resolutions *cache.Resolutions[*resolve.Resolution]
	last        atomic.Pointer[resolve.Resolution]

	publisher      Publisher
	debounce       time.Duration
	resolveTimeout time.Duration
	resolveTTL     time.Duration

	mu          sync.Mutex
	closed      bool
	searchPaths []string
	validator   *validate.Validator
	docs        map[string]*document
	tasks       map[string]*Task

	// pathsChanged tells a running Watch to follow new search paths.
	pathsChanged chan struct{}

	// publishMu orders publications so an older version never overwrites
	// a newer one.
	publishMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a workspace holding the empty snapshot. Call [Workspace.Reload]
// to scan.
func New(opts Options) *Workspace {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = resolve.DefaultTimeout
	}
	if opts.DescriptorTTL <= 0 {
		opts.DescriptorTTL = DefaultDescriptorTTL
	}
	if opts.DocumentTTL <= 0 {
		opts.DocumentTTL = DefaultDocumentTTL
	}
	if opts.ResolveTTL <= 0 {
		opts.ResolveTTL = DefaultResolveTTL
	}
	if opts.Publisher == nil {
		opts.Publisher = discard{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Workspace{
		logger:         opts.Logger,
		runner:         pipeline.NewRunner(opts.Store, opts.Keyer, opts.Logger),
		descriptors:    cache.NewDescriptors(opts.DescriptorTTL),
		documents:      cache.NewDocuments[*validate.Report](opts.DocumentTTL),
		resolutions:    cache.NewResolutions[*resolve.Resolution](opts.ResolveTTL),
		publisher:      opts.Publisher,
		debounce:       opts.Debounce,
		resolveTimeout: opts.ResolveTimeout,
		resolveTTL:     opts.ResolveTTL,
		searchPaths:    slices.Clone(opts.SearchPaths),
		validator:      validate.New(opts.Validation),
		docs:           make(map[string]*document),
		tasks:          make(map[string]*Task),
		pathsChanged:   make(chan struct{}, 1),
		ctx:            ctx,
		cancel:         cancel,
	}
	w.snap.Store(repo.Empty())
	return w
}

// Snapshot returns the current snapshot. It is never nil.
func (w *Workspace) Snapshot() *repo.Snapshot { return w.snap.Load() }

// SearchPaths returns the configured search paths.
func (w *Workspace) SearchPaths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.searchPaths)
}

// Settings returns the runtime settings.
func (w *Workspace) Settings() Settings {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Settings{SearchPaths: slices.Clone(w.searchPaths), Validation: w.validator.Options()}
}

// Reload rescans the search paths and publishes the new snapshot. Calls
// made while a scan runs share its result, unless that scan read search
// paths that have changed since; then a fresh scan follows. The scan itself
// is not bound to ctx, so a caller giving up does not abort it for the
// others.
func (w *Workspace) Reload(ctx context.Context) (*repo.Snapshot, error) {
	for {
		ch := w.scans.DoChan("scan", func() (any, error) {
			return w.scan()
		})
		select {
		case r := <-ch:
			if r.Err != nil {
				return nil, r.Err
			}
			res := r.Val.(scanResult)
			if slices.Equal(res.paths, w.SearchPaths()) {
				return res.snap, nil
			}
			w.logger.Debug("search paths changed during scan, rescanning")
		case <-ctx.Done():
			return nil, rerrors.Wrap(rerrors.ErrCodeCanceled, ctx.Err(), "reload")
		}
	}
}

// scanResult is a published snapshot with the search paths it was built
// from.
type scanResult struct {
	snap  *repo.Snapshot
	paths []string
}

func (w *Workspace) scan() (res scanResult, err error) {
	defer w.recoverPanic("scan", &err)

	paths := w.SearchPaths()
	gen := w.generation.Add(1)
	scanner := discovery.NewScanner(paths,
		discovery.WithDescriptorCache(w.descriptors),
		discovery.WithLogger(w.logger))
	snap, err := scanner.Scan(w.ctx, gen)
	if err != nil {
		return scanResult{}, err
	}

	w.snap.Store(snap)
	w.descriptors.Prune(gen)
	w.documents.Prune(gen)
	w.resolutions.Prune(gen)

	w.logger.Info("scanned repository",
		"generation", gen,
		"packages", snap.Len(),
		"warnings", len(snap.Warnings()))
	w.revalidateAll()
	return scanResult{snap: snap, paths: paths}, nil
}

// Configure applies new settings. Changed search paths trigger a rescan;
// open documents are revalidated either way.
func (w *Workspace) Configure(ctx context.Context, s Settings) error {
	for _, p := range s.SearchPaths {
		if err := rerrors.ValidateSearchPath(p); err != nil {
			return err
		}
	}
	w.mu.Lock()
	changed := !slices.Equal(w.searchPaths, s.SearchPaths)
	w.searchPaths = slices.Clone(s.SearchPaths)
	w.validator = validate.New(s.Validation)
	w.mu.Unlock()

	// Reports were computed with the old options.
	w.documents.Clear()
	if changed {
		select {
		case w.pathsChanged <- struct{}{}:
		default:
		}
		_, err := w.Reload(ctx)
		return err
	}
	w.revalidateAll()
	return nil
}

// Restart cancels running work, drops every cache and rescans.
func (w *Workspace) Restart(ctx context.Context) (*repo.Snapshot, error) {
	w.mu.Lock()
	for key, t := range w.tasks {
		t.cancel()
		delete(w.tasks, key)
	}
	w.mu.Unlock()

	w.descriptors.Clear()
	w.documents.Clear()
	w.resolutions.Clear()
	w.last.Store(nil)
	return w.Reload(ctx)
}

// Watch rescans whenever manifests under the search paths change, until ctx
// ends. When [Workspace.Configure] changes the search paths the watcher is
// restarted on the new ones.
func (w *Workspace) Watch(ctx context.Context, debounce time.Duration) error {
	for {
		wctx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		roots := w.SearchPaths()
		go func() { done <- w.watch(wctx, roots, debounce) }()

		select {
		case err := <-done:
			cancel()
			return err
		case <-w.pathsChanged:
			cancel()
			if err := <-done; err != nil {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Debug("search paths changed, restarting watcher", "paths", w.SearchPaths())
		}
	}
}

func (w *Workspace) watch(ctx context.Context, roots []string, debounce time.Duration) error {
	wt, err := watch.New(watch.Config{
		Roots:    roots,
		Debounce: debounce,
		Logger:   w.logger,
		OnChange: func(ctx context.Context, changed []string) error {
			w.logger.Debug("rescanning after change", "paths", len(changed))
			_, err := w.Reload(ctx)
			return err
		},
	})
	if err != nil {
		return err
	}
	return wt.Run(ctx)
}

// Close cancels pending validations and resolutions and waits for them.
func (w *Workspace) Close() error {
	w.cancel()
	w.mu.Lock()
	w.closed = true
	for _, d := range w.docs {
		w.stop(d)
	}
	for _, t := range w.tasks {
		t.cancel()
	}
	w.mu.Unlock()
	w.wg.Wait()
	return w.runner.Close()
}

// Stats describes the workspace state.
type Stats struct {
	Generation  uint64    `json:"generation"`
	Packages    int       `json:"packages"`
	Names       int       `json:"names"`
	Warnings    int       `json:"warnings"`
	ScannedAt   time.Time `json:"scanned_at"`
	Documents   int       `json:"documents"`
	Tasks       int       `json:"tasks"`
	Descriptors int       `json:"cached_descriptors"`
	Reports     int       `json:"cached_reports"`
	Resolutions int       `json:"cached_resolutions"`
}

// Stats returns a summary of the current state.
func (w *Workspace) Stats() Stats {
	snap := w.Snapshot()
	w.mu.Lock()
	docs, tasks := len(w.docs), len(w.tasks)
	w.mu.Unlock()
	return Stats{
		Generation:  snap.Generation(),
		Packages:    snap.Len(),
		Names:       len(snap.Names()),
		Warnings:    len(snap.Warnings()),
		ScannedAt:   snap.CreatedAt(),
		Documents:   docs,
		Tasks:       tasks,
		Descriptors: w.descriptors.Len(),
		Reports:     w.documents.Len(),
		Resolutions: w.resolutions.Len(),
	}
}

// recoverPanic turns a panic into an INTERNAL error. Shared state is only
// written after the work that may panic, so it stays consistent.
func (w *Workspace) recoverPanic(op string, err *error) {
	if r := recover(); r != nil {
		w.logger.Error("internal error", "op", op, "panic", r, "stack", string(debug.Stack()))
		*err = rerrors.New(rerrors.ErrCodeInternal, "%s: internal error: %v", op, r)
	}
}

// safely runs fn with panic recovery.
func safely[T any](w *Workspace, op string, fn func() T) (out T, err error) {
	defer w.recoverPanic(op, &err)
	return fn(), nil
}
