// Package repo holds the repository snapshot: an immutable, generation
// numbered view of every package version found on the search paths.
//
// A [Snapshot] is built once by a [Builder] and never modified afterwards,
// so readers may share it freely across goroutines. A rescan produces a new
// snapshot with a higher generation.
package repo

import (
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/matzehuels/rezls/pkg/manifest"
	"github.com/matzehuels/rezls/pkg/version"
)

// Warning is a non-fatal problem found while scanning.
type Warning struct {
	Code    string `json:"code"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

// String formats the warning as "path: code message".
func (w Warning) String() string {
	return w.Path + ": " + w.Code + " " + w.Message
}

// Snapshot maps package names to their descriptors, highest version first.
type Snapshot struct {
	generation  uint64
	digest      string
	createdAt   time.Time
	searchPaths []string
	names       []string
	packages    map[string][]*manifest.Descriptor
	warnings    []Warning
}

// Empty returns the generation 0 snapshot with no packages.
func Empty() *Snapshot {
	return &Snapshot{packages: map[string][]*manifest.Descriptor{}}
}

// Generation returns the snapshot's generation number.
func (s *Snapshot) Generation() uint64 { return s.generation }

// Digest identifies the snapshot's resolvable content. Unlike the
// generation it is stable across processes, so it can key shared caches.
func (s *Snapshot) Digest() string { return s.digest }

// CreatedAt returns when the snapshot was built.
func (s *Snapshot) CreatedAt() time.Time { return s.createdAt }

// SearchPaths returns the scanned search paths in priority order.
func (s *Snapshot) SearchPaths() []string { return slices.Clone(s.searchPaths) }

// Warnings returns the scan warnings.
func (s *Snapshot) Warnings() []Warning { return slices.Clone(s.warnings) }

// Names returns every package name in sorted order.
func (s *Snapshot) Names() []string { return slices.Clone(s.names) }

// Has reports whether any version of name exists.
func (s *Snapshot) Has(name string) bool { return len(s.packages[name]) > 0 }

// Len returns the number of package versions.
func (s *Snapshot) Len() int {
	n := 0
	for _, ds := range s.packages {
		n += len(ds)
	}
	return n
}

// Packages returns the descriptors of name, highest version first.
func (s *Snapshot) Packages(name string) []*manifest.Descriptor {
	return slices.Clone(s.packages[name])
}

// Versions returns the versions of name, highest first.
func (s *Snapshot) Versions(name string) []version.Version {
	ds := s.packages[name]
	out := make([]version.Version, len(ds))
	for i, d := range ds {
		out[i] = d.Version
	}
	return out
}

// Lookup returns the descriptor of name at exactly v.
func (s *Snapshot) Lookup(name string, v version.Version) (*manifest.Descriptor, bool) {
	ds := s.packages[name]
	i := sort.Search(len(ds), func(i int) bool { return ds[i].Version.Compare(v) <= 0 })
	if i < len(ds) && ds[i].Version.Equal(v) {
		return ds[i], true
	}
	return nil, false
}

// Latest returns the highest version of name.
func (s *Snapshot) Latest(name string) (*manifest.Descriptor, bool) {
	ds := s.packages[name]
	if len(ds) == 0 {
		return nil, false
	}
	return ds[0], true
}

// Matching returns the descriptors of r.Name whose versions r allows,
// highest first.
func (s *Snapshot) Matching(r version.Requirement) []*manifest.Descriptor {
	var out []*manifest.Descriptor
	for _, d := range s.packages[r.Name] {
		if r.Range.Matches(d.Version) {
			out = append(out, d)
		}
	}
	return out
}

// Best returns the highest version matching r, if any.
func (s *Snapshot) Best(r version.Requirement) (*manifest.Descriptor, bool) {
	for _, d := range s.packages[r.Name] {
		if r.Range.Matches(d.Version) {
			return d, true
		}
	}
	return nil, false
}

// Search returns the names containing query, case-insensitively; names
// starting with it come first.
func (s *Snapshot) Search(query string) []string {
	q := strings.ToLower(query)
	var prefix, rest []string
	for _, name := range s.names {
		lower := strings.ToLower(name)
		switch {
		case strings.HasPrefix(lower, q):
			prefix = append(prefix, name)
		case strings.Contains(lower, q):
			rest = append(rest, name)
		}
	}
	return append(prefix, rest...)
}

// Each calls fn for every descriptor, by name then descending version,
// until fn returns false.
func (s *Snapshot) Each(fn func(*manifest.Descriptor) bool) {
	for _, name := range s.names {
		for _, d := range s.packages[name] {
			if !fn(d) {
				return
			}
		}
	}
}
