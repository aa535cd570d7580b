// Package watch monitors package search paths and reports manifest changes
// after a debounce period.
//
// Events within the debounce window are coalesced so the callback fires once
// with the full set of changed paths.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/matzehuels/rezls/pkg/manifest"
	"github.com/matzehuels/rezls/pkg/validate"
)

const defaultDebounce = 500 * time.Millisecond

// defaultPatterns select the files a rescan depends on. Removing a version
// directory also matches, since its events name the directory itself.
var defaultPatterns = []string{
	"**/" + manifest.FileName,
	"*/*",
	"*",
}

// defaultIgnores are never watched: VCS metadata, bytecode caches, editor
// swap files and resolved-context files, which discovery does not read.
var defaultIgnores = []string{
	"**/.git/**",
	"**/__pycache__/**",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/.DS_Store",
	"**/*" + validate.ContextExt,
}

type (
	// Config holds the parameters for a Watcher.
	Config struct {
		// Roots are the directories to watch, usually the search paths.
		// Roots that do not exist are skipped.
		Roots []string

		// Patterns are doublestar globs, relative to a root, selecting the
		// paths that trigger callbacks. Empty means the default manifest
		// patterns.
		Patterns []string

		// Ignore are extra doublestar globs merged with the default ignores.
		Ignore []string

		// Debounce is the quiet period after the last event. Zero or negative
		// values fall back to 500ms.
		Debounce time.Duration

		// OnChange receives the deduplicated absolute paths that changed.
		OnChange func(ctx context.Context, changed []string) error

		Logger *log.Logger
	}

	// Watcher monitors roots and fires a debounced callback when matching
	// paths change. Run must be called exactly once.
	Watcher struct {
		cfg      Config
		fsw      *fsnotify.Watcher
		roots    []string
		patterns []string
		ignores  []string
		debounce time.Duration
		logger   *log.Logger
		started  atomic.Bool
	}
)

// New creates a Watcher and registers every non-ignored directory under the
// roots.
func New(cfg Config) (*Watcher, error) {
	patterns := cfg.Patterns
	if len(patterns) == 0 {
		patterns = defaultPatterns
	}
	if err := validatePatterns(patterns, "watch"); err != nil {
		return nil, err
	}
	if err := validatePatterns(cfg.Ignore, "ignore"); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		patterns: patterns,
		ignores:  append(slices.Clone(defaultIgnores), cfg.Ignore...),
		debounce: debounce,
		logger:   logger,
	}

	for _, root := range cfg.Roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			fsw.Close() //nolint:errcheck
			return nil, fmt.Errorf("watch: resolve %q: %w", root, err)
		}
		if fi, err := os.Stat(abs); err != nil || !fi.IsDir() {
			logger.Debug("skipping missing search path", "path", abs)
			continue
		}
		w.roots = append(w.roots, abs)
		if err := w.addDirectories(abs); err != nil {
			fsw.Close() //nolint:errcheck
			return nil, err
		}
	}
	return w, nil
}

// Roots returns the watched roots.
func (w *Watcher) Roots() []string { return slices.Clone(w.roots) }

// Run processes events until ctx is canceled. It returns nil on
// cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watch: Run called more than once")
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		running atomic.Bool
	)

	// fire skips when a callback is still running and retries after another
	// debounce period, so pending events are not lost.
	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !running.CompareAndSwap(false, true) {
			mu.Lock()
			if timer != nil {
				timer.Reset(w.debounce)
			}
			mu.Unlock()
			return
		}
		defer running.Store(false)

		mu.Lock()
		if len(pending) == 0 {
			mu.Unlock()
			return
		}
		changed := slices.Sorted(maps.Keys(pending))
		clear(pending)
		mu.Unlock()

		w.logger.Debug("manifests changed", "paths", len(changed))
		if w.cfg.OnChange != nil {
			if err := w.cfg.OnChange(ctx, changed); err != nil {
				w.logger.Warn("watch callback failed", "err", err)
			}
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("close watcher", "err", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: event channel closed unexpectedly")
			}
			if evt.Has(fsnotify.Chmod) && !evt.Has(fsnotify.Write) {
				continue
			}
			rel, ok := w.relative(evt.Name)
			if !ok || w.isIgnored(rel) {
				continue
			}
			if evt.Has(fsnotify.Create) {
				w.maybeAddDir(evt.Name)
			}
			if !w.matches(rel) {
				continue
			}

			mu.Lock()
			pending[evt.Name] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: error channel closed unexpectedly")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// Events were dropped; report a change so callers rescan.
				mu.Lock()
				for _, r := range w.roots {
					pending[r] = struct{}{}
				}
				if timer == nil {
					timer = time.AfterFunc(w.debounce, fire)
				} else {
					timer.Reset(w.debounce)
				}
				mu.Unlock()
			}
			w.logger.Warn("watch error", "err", err)
		}
	}
}

// addDirectories registers every non-ignored directory under root.
// Unreadable directories are skipped.
func (w *Watcher) addDirectories(root string) error {
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			w.logger.Debug("skipping inaccessible path", "path", path, "err", walkErr)
			return nil //nolint:nilerr
		}
		if !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil //nolint:nilerr
		}
		if rel != "." && (w.isIgnored(rel) || w.isIgnored(rel+"/")) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add directory %q: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch: walk %s: %w", root, err)
	}
	return nil
}

// maybeAddDir extends the watch to a directory created after startup,
// such as a newly released version.
func (w *Watcher) maybeAddDir(path string) {
	fi, err := os.Stat(path)
	if err != nil || !fi.IsDir() {
		return
	}
	rel, ok := w.relative(path)
	if !ok || w.isIgnored(rel) || w.isIgnored(rel+"/") {
		return
	}
	if err := w.addDirectories(path); err != nil {
		w.logger.Warn("watch new directory", "path", path, "err", err)
	}
}

// relative returns path relative to the root containing it.
func (w *Watcher) relative(path string) (string, bool) {
	for _, root := range w.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}
		return filepath.ToSlash(rel), true
	}
	return "", false
}

func (w *Watcher) isIgnored(rel string) bool {
	return matchAny(w.ignores, filepath.ToSlash(rel))
}

func (w *Watcher) matches(rel string) bool {
	return matchAny(w.patterns, rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, pat := range patterns {
		if ok, err := doublestar.Match(pat, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// DefaultIgnores returns a copy of the built-in ignore patterns.
func DefaultIgnores() []string { return slices.Clone(defaultIgnores) }

func validatePatterns(patterns []string, label string) error {
	for _, pat := range patterns {
		if !doublestar.ValidatePattern(pat) {
			return fmt.Errorf("watch: invalid %s pattern %q", label, pat)
		}
	}
	return nil
}
