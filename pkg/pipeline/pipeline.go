// Package pipeline runs one-shot resolutions for the command line and the
// HTTP surface.
//
// A run has three stages:
//
//  1. Scan: discover packages on the search paths (skipped when a snapshot
//     is supplied)
//  2. Resolve: select packages for the root requirements, consulting the
//     persistent byte cache first
//  3. Render: produce the requested artifacts (resolved context, DOT, SVG,
//     PDF, PNG)
//
// Resolutions are cached as resolved-context documents under a key built
// from the snapshot digest and the sorted roots, so separate processes that
// see the same repository content share results through a file or Redis
// cache.
//
// # Usage
//
//	runner := pipeline.NewRunner(c, nil, logger)
//	result, err := runner.Execute(ctx, pipeline.Options{
//	    Roots:       []string{"maya-2024", "python-3"},
//	    SearchPaths: discovery.SearchPathsFromEnv(),
//	    Formats:     []string{pipeline.FormatRXT, pipeline.FormatSVG},
//	})
//	if err != nil {
//	    return err
//	}
//	svg := result.Artifacts[pipeline.FormatSVG]
package pipeline

import (
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/rezls/pkg/io"
	"github.com/matzehuels/rezls/pkg/repo"
	"github.com/matzehuels/rezls/pkg/resolve"
)

// DefaultResolveTTL is how long a cached resolution is kept in the byte
// store. Entries are keyed by content, so a long lifetime never serves a
// stale result.
const DefaultResolveTTL = 24 * time.Hour

// Format constants for output artifacts.
const (
	FormatRXT = "rxt"
	FormatDOT = "dot"
	FormatSVG = "svg"
	FormatPNG = "png"
	FormatPDF = "pdf"
)

// ValidFormats is the set of supported output formats.
var ValidFormats = map[string]bool{
	FormatRXT: true,
	FormatDOT: true,
	FormatSVG: true,
	FormatPNG: true,
	FormatPDF: true,
}

// =============================================================================
// Options
// =============================================================================

// Options configures a pipeline run. It supports JSON for API requests.
type Options struct {
	Roots []string `json:"roots"`
	// SearchPaths are scanned when Snapshot is nil.
	SearchPaths []string `json:"search_paths,omitempty"`
	Formats     []string `json:"formats,omitempty"`
	// Detailed adds variants, source paths and requirement labels to graphs.
	Detailed bool `json:"detailed,omitempty"`
	// Refresh skips the cache lookup; the fresh result is still stored.
	Refresh bool          `json:"refresh,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty"`

	Snapshot *repo.Snapshot `json:"-"`
	TTL      time.Duration  `json:"-"`
	Logger   *log.Logger    `json:"-"`
}

// Validate checks required fields and applies defaults.
func (o *Options) Validate() error {
	if len(o.Roots) == 0 {
		return fmt.Errorf("at least one root requirement is required")
	}
	if err := ValidateFormats(o.Formats); err != nil {
		return err
	}
	if o.TTL == 0 {
		o.TTL = DefaultResolveTTL
	}
	if o.Timeout == 0 {
		o.Timeout = resolve.DefaultTimeout
	}
	return nil
}

// Wants reports whether format was requested.
func (o Options) Wants(format string) bool { return slices.Contains(o.Formats, format) }

// Result contains the outputs of a pipeline run.
type Result struct {
	Snapshot   *repo.Snapshot
	Resolution *resolve.Resolution
	// Context is the resolved-context form of Resolution.
	Context   *io.Context
	Artifacts map[string][]byte
	Stats     Stats
	CacheInfo CacheInfo
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Packages    int
	Steps       int
	ScanTime    time.Duration
	ResolveTime time.Duration
	RenderTime  time.Duration
}

// CacheInfo tracks cache hits per stage.
type CacheInfo struct {
	ResolveHit bool
}

// ValidateFormat checks that a format is valid.
func ValidateFormat(format string) error {
	if !ValidFormats[format] {
		return fmt.Errorf("invalid format: %q (must be one of: rxt, dot, svg, png, pdf)", format)
	}
	return nil
}

// ValidateFormats checks that all formats are valid.
func ValidateFormats(formats []string) error {
	for _, f := range formats {
		if err := ValidateFormat(f); err != nil {
			return err
		}
	}
	return nil
}
