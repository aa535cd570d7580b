// Package discovery scans package search paths and builds repository
// snapshots.
//
// A search path is a directory of name/version/package.py subtrees. Paths
// are scanned in priority order: when the same name and version appears
// under several paths, the first one wins and the rest are reported as
// warnings. Problems with individual manifests never abort a scan; the
// affected package is left out and a [repo.Warning] explains why.
//
// Manifests are parsed in parallel, but the snapshot is assembled in
// directory order, so the same tree always yields the same snapshot.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/rezls/pkg/cache"
	rerrors "github.com/matzehuels/rezls/pkg/errors"
	"github.com/matzehuels/rezls/pkg/manifest"
	"github.com/matzehuels/rezls/pkg/observability"
	"github.com/matzehuels/rezls/pkg/repo"
)

// Warning codes.
const (
	// WarnUnreadable marks a search path, directory or manifest that could
	// not be read.
	WarnUnreadable = "D001"
	// WarnDuplicate marks a name and version already provided by an earlier
	// search path.
	WarnDuplicate = "D002"
	// WarnInvalid marks a manifest excluded because its name or version is
	// missing or invalid.
	WarnInvalid = "D003"
	// WarnField marks a field of an included manifest that was dropped or
	// read only in part.
	WarnField = "D004"
)

// Scanner builds snapshots from a fixed list of search paths. It is safe
// for concurrent use; concurrent scans share the descriptor cache.
type Scanner struct {
	searchPaths []string
	descriptors *cache.Descriptors
	concurrency int
	logger      *log.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithDescriptorCache reuses parsed manifests whose files did not change
// since an earlier scan.
func WithDescriptorCache(c *cache.Descriptors) Option {
	return func(s *Scanner) { s.descriptors = c }
}

// WithConcurrency bounds the number of manifests parsed at once.
func WithConcurrency(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets the logger. Scans log nothing by default.
func WithLogger(l *log.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScanner creates a scanner over searchPaths, highest priority first.
func NewScanner(searchPaths []string, opts ...Option) *Scanner {
	s := &Scanner{
		searchPaths: append([]string(nil), searchPaths...),
		concurrency: runtime.GOMAXPROCS(0),
		logger:      log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SearchPaths returns the scanned paths in priority order.
func (s *Scanner) SearchPaths() []string {
	return append([]string(nil), s.searchPaths...)
}

// candidate is one name/version/package.py found while walking.
type candidate struct {
	path   string
	stamp  cache.Stamp
	parsed cache.Parsed
	err    error
}

// Scan walks every search path and returns the snapshot for generation. It
// fails only when ctx is done.
func (s *Scanner) Scan(ctx context.Context, generation uint64) (snap *repo.Snapshot, err error) {
	start := time.Now()
	observability.Scan().OnScanStart(ctx, s.searchPaths)
	defer func() {
		packages, warnings := 0, 0
		if snap != nil {
			packages, warnings = snap.Len(), len(snap.Warnings())
		}
		observability.Scan().OnScanComplete(ctx, generation, packages, warnings, time.Since(start), err)
	}()

	b := repo.NewBuilder(s.searchPaths)
	var found []*candidate
	for _, sp := range s.searchPaths {
		found = append(found, s.walk(sp, b)...)
	}

	if err := s.parse(ctx, found, generation); err != nil {
		return nil, err
	}

	for _, c := range found {
		switch {
		case c.err != nil:
			b.Warn(repo.Warning{Code: WarnUnreadable, Path: c.path, Message: c.err.Error()})
		case c.parsed.Err != nil:
			b.Warn(repo.Warning{Code: WarnInvalid, Path: c.path, Message: rerrors.UserMessage(c.parsed.Err)})
		default:
			prev, ok := b.Add(c.parsed.Descriptor)
			if !ok {
				b.Warn(repo.Warning{
					Code:    WarnDuplicate,
					Path:    c.path,
					Message: fmt.Sprintf("%s is already provided by %s", c.parsed.Descriptor.ID(), prev.SourcePath),
				})
				continue
			}
			for _, pe := range c.parsed.Warnings {
				b.Warn(repo.Warning{Code: WarnField, Path: c.path, Message: pe.Error()})
			}
		}
	}

	snap = b.Build(generation)
	if s.descriptors != nil {
		s.descriptors.Prune(generation)
	}

	s.logger.Info("scanned repository",
		"generation", generation,
		"packages", snap.Len(),
		"families", len(snap.Names()),
		"warnings", len(snap.Warnings()),
		"duration", time.Since(start))
	for _, w := range snap.Warnings() {
		s.logger.Debug("scan warning", "code", w.Code, "path", w.Path, "message", w.Message)
	}
	return snap, nil
}

// walk lists the manifests under one search path in directory order.
func (s *Scanner) walk(searchPath string, b *repo.Builder) []*candidate {
	names, err := os.ReadDir(searchPath)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, fs.ErrNotExist) {
			msg = "search path does not exist"
		}
		b.Warn(repo.Warning{Code: WarnUnreadable, Path: searchPath, Message: msg})
		return nil
	}

	var out []*candidate
	for _, ne := range names {
		if hidden(ne.Name()) || !isDir(searchPath, ne) {
			continue
		}
		nameDir := filepath.Join(searchPath, ne.Name())
		versions, err := os.ReadDir(nameDir)
		if err != nil {
			b.Warn(repo.Warning{Code: WarnUnreadable, Path: nameDir, Message: err.Error()})
			continue
		}
		for _, ve := range versions {
			if hidden(ve.Name()) || !isDir(nameDir, ve) {
				continue
			}
			path := filepath.Join(nameDir, ve.Name(), manifest.FileName)
			fi, err := os.Stat(path)
			switch {
			case errors.Is(err, fs.ErrNotExist):
				continue
			case err != nil:
				out = append(out, &candidate{path: path, err: err})
			case fi.IsDir():
				out = append(out, &candidate{path: path, err: fmt.Errorf("%s is a directory", manifest.FileName)})
			default:
				out = append(out, &candidate{path: path, stamp: cache.StampOf(fi)})
			}
		}
	}
	return out
}

// parse loads every readable candidate, reusing cached parses.
func (s *Scanner) parse(ctx context.Context, found []*candidate, generation uint64) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, c := range found {
		if c.err != nil {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if s.descriptors != nil {
				if p, ok := s.descriptors.Reuse(gctx, c.path, c.stamp, generation); ok {
					c.parsed = p
					return nil
				}
			}
			d, warnings, err := manifest.ReadFile(c.path)
			if rerrors.Is(err, rerrors.ErrCodeIO) {
				c.err = errors.Unwrap(err)
				return nil
			}
			c.parsed = cache.Parsed{Descriptor: d, Warnings: warnings, Err: err, Stamp: c.stamp}
			if s.descriptors != nil {
				s.descriptors.Put(gctx, c.path, c.parsed, generation)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return rerrors.Wrap(rerrors.ErrCodeTimeout, err, "scan timed out")
		}
		return rerrors.Wrap(rerrors.ErrCodeCanceled, err, "scan canceled")
	}
	return nil
}

func hidden(name string) bool { return strings.HasPrefix(name, ".") }

// isDir follows symlinks, which package repositories commonly use.
func isDir(parent string, e fs.DirEntry) bool {
	if e.IsDir() {
		return true
	}
	if e.Type()&fs.ModeSymlink == 0 {
		return false
	}
	fi, err := os.Stat(filepath.Join(parent, e.Name()))
	return err == nil && fi.IsDir()
}
