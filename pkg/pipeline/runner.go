package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/rezls/pkg/cache"
	"github.com/matzehuels/rezls/pkg/discovery"
	"github.com/matzehuels/rezls/pkg/io"
	"github.com/matzehuels/rezls/pkg/repo"
	"github.com/matzehuels/rezls/pkg/resolve"
	"github.com/matzehuels/rezls/pkg/version"
)

// Runner encapsulates pipeline execution with caching.
//
// The Runner is stateless except for the cache and logger, so multiple
// goroutines can use the same Runner with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner. A nil keyer selects the default keyer and a
// nil cache disables caching.
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{Cache: c, Keyer: keyer, Logger: logger}
}

// Execute runs scan, resolve and render.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	logger := r.logger(opts)
	result := &Result{Artifacts: make(map[string][]byte)}

	// Stage 1: Scan
	snap := opts.Snapshot
	if snap == nil {
		start := time.Now()
		var err error
		snap, err = discovery.NewScanner(opts.SearchPaths, discovery.WithLogger(logger)).Scan(ctx, 1)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		result.Stats.ScanTime = time.Since(start)
		for _, w := range snap.Warnings() {
			logger.Warn(w.Message, "code", w.Code, "path", w.Path)
		}
	}
	result.Snapshot = snap

	// Stage 2: Resolve
	start := time.Now()
	res, hit, err := r.ResolveWithCacheInfo(ctx, snap, opts)
	if err != nil {
		return nil, err
	}
	result.Resolution = res
	result.Context = io.FromResolution(res)
	result.CacheInfo.ResolveHit = hit
	result.Stats.Packages = len(res.Packages)
	result.Stats.Steps = res.Steps
	result.Stats.ResolveTime = time.Since(start)

	logger.Info("resolved",
		"roots", opts.Roots,
		"packages", len(res.Packages),
		"cached", hit,
		"duration", result.Stats.ResolveTime)

	// Stage 3: Render
	start = time.Now()
	artifacts, err := Render(ctx, result.Context, res, opts)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	result.Artifacts = artifacts
	result.Stats.RenderTime = time.Since(start)
	if len(artifacts) > 0 {
		logger.Debug("rendered outputs", "formats", opts.Formats, "duration", result.Stats.RenderTime)
	}
	return result, nil
}

// ResolveWithCacheInfo resolves opts.Roots against snap, reading and
// writing the byte cache. It reports whether the result came from cache.
func (r *Runner) ResolveWithCacheInfo(ctx context.Context, snap *repo.Snapshot, opts Options) (*resolve.Resolution, bool, error) {
	roots, err := version.ParseRequirements(opts.Roots)
	if err != nil {
		return nil, false, err
	}
	key := r.Keyer.ResolveKey(snap.Digest(), opts.Roots)

	if !opts.Refresh {
		if data, hit, err := r.Cache.Get(ctx, key); err == nil && hit {
			if res, err := fromCache(data, roots, snap); err == nil {
				return res, true, nil
			}
			// Unreadable or out of step with the snapshot: recompute.
		} else if err != nil {
			r.logger(opts).Warn("cache unavailable", "err", err)
		}
	}

	res, err := resolve.New(resolve.Options{Timeout: opts.Timeout, Logger: r.logger(opts)}).Resolve(ctx, roots, snap)
	if err != nil {
		return nil, false, err
	}

	var buf bytes.Buffer
	if err := io.Write(io.FromResolution(res), &buf); err == nil {
		if err := r.Cache.Set(ctx, key, buf.Bytes(), opts.TTL); err != nil {
			r.logger(opts).Warn("cache write failed", "err", err)
		}
	}
	return res, false, nil
}

// fromCache rebuilds a resolution from a cached context, binding every
// package to the snapshot's descriptor.
func fromCache(data []byte, roots []version.Requirement, snap *repo.Snapshot) (*resolve.Resolution, error) {
	c, err := io.Read(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	g, err := c.DAG()
	if err != nil {
		return nil, err
	}
	res := &resolve.Resolution{
		Roots:      roots,
		Generation: snap.Generation(),
		Digest:     snap.Digest(),
		Packages:   make([]resolve.Choice, len(c.Packages)),
		Graph:      g,
	}
	for i, p := range c.Packages {
		v, err := version.Parse(p.Version)
		if err != nil {
			return nil, err
		}
		d, ok := snap.Lookup(p.Name, v)
		if !ok {
			return nil, fmt.Errorf("cached package %s not in snapshot", p.ID())
		}
		variant := -1
		if p.Variant != nil {
			variant = *p.Variant
		}
		res.Packages[i] = resolve.Choice{Descriptor: d, Variant: variant}
	}
	return res, nil
}

// Close releases the cache.
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

func (r *Runner) logger(opts Options) *log.Logger {
	if opts.Logger != nil {
		return opts.Logger
	}
	return r.Logger
}
