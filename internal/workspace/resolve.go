package workspace

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/rezls/pkg/cache"
	rerrors "github.com/matzehuels/rezls/pkg/errors"
	"github.com/matzehuels/rezls/pkg/pipeline"
	"github.com/matzehuels/rezls/pkg/resolve"
	"github.com/matzehuels/rezls/pkg/version"
)

// Task is a running resolution.
type Task struct {
	ID        string    `json:"id"`
	Roots     []string  `json:"roots"`
	StartedAt time.Time `json:"started_at"`

	cancel context.CancelFunc
}

// ResolveOptions tunes one resolution.
type ResolveOptions struct {
	// Refresh bypasses the caches.
	Refresh bool
}

// ResolveResult is a resolution and where it came from.
type ResolveResult struct {
	TaskID     string
	Resolution *resolve.Resolution
	// Cached is set when no resolver ran.
	Cached bool
}

// Resolve resolves roots against the current snapshot.
//
// It runs as a cancellable task bounded by the resolve timeout. A newer
// request for the same set of roots cancels this one, which then fails with
// a CANCELED error. Results are cached per generation in memory and, when a
// store is configured, by snapshot digest across processes.
func (w *Workspace) Resolve(ctx context.Context, roots []string, opts ResolveOptions) (*ResolveResult, error) {
	if _, err := version.ParseRequirements(roots); err != nil {
		return nil, err
	}
	snap := w.Snapshot()

	if !opts.Refresh {
		if res, ok := w.resolutions.Get(ctx, roots, snap.Generation()); ok {
			w.last.Store(res)
			return &ResolveResult{Resolution: res, Cached: true}, nil
		}
	}

	task, ctx := w.startTask(ctx, roots)
	defer w.finishTask(task)

	w.logger.Debug("resolving", "task", task.ID, "roots", roots, "generation", snap.Generation())
	res, hit, err := safely2(w, "resolve", func() (*resolve.Resolution, bool, error) {
		return w.runner.ResolveWithCacheInfo(ctx, snap, pipeline.Options{
			Roots:   roots,
			Timeout: w.resolveTimeout,
			TTL:     w.resolveTTL,
			Refresh: opts.Refresh,
		})
	})
	if err != nil {
		w.logger.Debug("resolve failed", "task", task.ID, "code", rerrors.GetCode(err), "err", err)
		return nil, err
	}

	w.resolutions.Put(ctx, roots, snap.Generation(), res)
	w.last.Store(res)
	return &ResolveResult{TaskID: task.ID, Resolution: res, Cached: hit}, nil
}

// LastResolution returns the most recent successful resolution, if any.
func (w *Workspace) LastResolution() *resolve.Resolution { return w.last.Load() }

// Tasks returns the running resolutions, oldest first.
func (w *Workspace) Tasks() []Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Task, 0, len(w.tasks))
	for _, t := range w.tasks {
		out = append(out, Task{ID: t.ID, Roots: slices.Clone(t.Roots), StartedAt: t.StartedAt})
	}
	slices.SortFunc(out, func(a, b Task) int { return a.StartedAt.Compare(b.StartedAt) })
	return out
}

// CancelTask cancels the running resolution with the given ID.
func (w *Workspace) CancelTask(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, t := range w.tasks {
		if t.ID == id {
			t.cancel()
			return true
		}
	}
	return false
}

// startTask registers a task for roots, canceling the one it supersedes.
func (w *Workspace) startTask(parent context.Context, roots []string) (*Task, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	stopOnClose := context.AfterFunc(w.ctx, cancel)
	t := &Task{
		ID:        uuid.NewString(),
		Roots:     slices.Clone(roots),
		StartedAt: time.Now(),
		cancel: func() {
			stopOnClose()
			cancel()
		},
	}

	key := cache.RootsKey(roots)
	w.mu.Lock()
	if prev, ok := w.tasks[key]; ok {
		w.logger.Debug("superseding resolve", "task", prev.ID, "by", t.ID)
		prev.cancel()
	}
	w.tasks[key] = t
	w.mu.Unlock()
	return t, ctx
}

func (w *Workspace) finishTask(t *Task) {
	key := cache.RootsKey(t.Roots)
	w.mu.Lock()
	if cur, ok := w.tasks[key]; ok && cur == t {
		delete(w.tasks, key)
	}
	w.mu.Unlock()
	t.cancel()
}

// safely2 is [safely] for functions returning a pair and an error.
func safely2[A, B any](w *Workspace, op string, fn func() (A, B, error)) (a A, b B, err error) {
	defer w.recoverPanic(op, &err)
	return fn()
}
