package repo

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
	"time"

	"github.com/matzehuels/rezls/pkg/manifest"
	"github.com/matzehuels/rezls/pkg/version"
)

// Builder collects descriptors for a new snapshot. It is not safe for
// concurrent use.
type Builder struct {
	searchPaths []string
	packages    map[string][]*manifest.Descriptor
	seen        map[string]*manifest.Descriptor
	warnings    []Warning
	now         func() time.Time
}

// NewBuilder starts a snapshot over the given search paths.
func NewBuilder(searchPaths []string) *Builder {
	return &Builder{
		searchPaths: slices.Clone(searchPaths),
		packages:    make(map[string][]*manifest.Descriptor),
		seen:        make(map[string]*manifest.Descriptor),
		now:         time.Now,
	}
}

// Add records d unless the same name and version was added before, in
// which case the earlier descriptor is returned and d is dropped. Versions
// collide by token sequence, so "1.0" and "1-0" are the same version.
func (b *Builder) Add(d *manifest.Descriptor) (existing *manifest.Descriptor, added bool) {
	key := d.Name + "-" + strings.Join(d.Version.Tokens(), ".")
	if prev, ok := b.seen[key]; ok {
		return prev, false
	}
	b.seen[key] = d
	b.packages[d.Name] = append(b.packages[d.Name], d)
	return nil, true
}

// Warn records a scan warning.
func (b *Builder) Warn(w Warning) {
	b.warnings = append(b.warnings, w)
}

// Build freezes the collected descriptors into a snapshot. The builder must
// not be used afterwards.
func (b *Builder) Build(generation uint64) *Snapshot {
	names := make([]string, 0, len(b.packages))
	for name, ds := range b.packages {
		slices.SortStableFunc(ds, func(x, y *manifest.Descriptor) int {
			return y.Version.Compare(x.Version)
		})
		names = append(names, name)
	}
	slices.Sort(names)

	return &Snapshot{
		digest:      digest(names, b.packages),
		generation:  generation,
		createdAt:   b.now(),
		searchPaths: b.searchPaths,
		names:       names,
		packages:    b.packages,
		warnings:    b.warnings,
	}
}

// digest hashes what resolution depends on: every name, version and
// requirement list, in snapshot order. Two scans of the same tree produce the
// same digest regardless of generation.
func digest(names []string, packages map[string][]*manifest.Descriptor) string {
	h := sha256.New()
	line := func(parts ...string) {
		h.Write([]byte(strings.Join(parts, " ")))
		h.Write([]byte{'\n'})
	}
	reqs := func(rs []version.Requirement) []string {
		out := make([]string, len(rs))
		for i, r := range rs {
			out[i] = r.String()
		}
		return out
	}
	for _, name := range names {
		for _, d := range packages[name] {
			line(d.Name, d.Version.String())
			line(append([]string{"requires"}, reqs(d.Requires)...)...)
			for _, v := range d.Variants {
				line(append([]string{"variant"}, reqs(v)...)...)
			}
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
