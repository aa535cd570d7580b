package query

import (
	"github.com/matzehuels/rezls/pkg/manifest"
	"github.com/matzehuels/rezls/pkg/repo"
	"github.com/matzehuels/rezls/pkg/resolve"
	"github.com/matzehuels/rezls/pkg/version"
)

// Location is a place in a manifest on disk.
type Location struct {
	Path string `json:"path"`
	// Package is the ID of the package whose manifest Path is.
	Package string `json:"package"`
	// Field is the requirement field of a reference; "" for definitions.
	Field string             `json:"field,omitempty"`
	Span  manifest.Span      `json:"span"`
	Range manifest.TextRange `json:"range"`
}

// Definition returns the manifests of the packages matching the
// requirement at offset, highest version first. A package chosen by
// resolved comes first.
func Definition(snap *repo.Snapshot, src []byte, offset int, resolved *resolve.Resolution) []Location {
	req, ok := requirementAt(src, offset)
	if !ok {
		return nil
	}
	var matches []*manifest.Descriptor
	if req.Conflict {
		matches = snap.Packages(req.Name)
	} else {
		matches = snap.Matching(req)
	}

	var out []Location
	if d, chosen := describe(snap, req, resolved); chosen {
		out = append(out, Location{Path: d.SourcePath, Package: d.ID()})
	}
	for _, d := range matches {
		if len(out) > 0 && out[0].Package == d.ID() {
			continue
		}
		out = append(out, Location{Path: d.SourcePath, Package: d.ID()})
	}
	return out
}

// References returns every requirement on name across the manifests in
// snap, ordered by package then position.
func References(snap *repo.Snapshot, name string) []Location {
	var out []Location
	snap.Each(func(d *manifest.Descriptor) bool {
		for _, ref := range d.Refs {
			if ref.Requirement.Name != name {
				continue
			}
			out = append(out, Location{
				Path:    d.SourcePath,
				Package: d.ID(),
				Field:   ref.Field,
				Span:    ref.Span,
				Range:   ref.Range,
			})
		}
		return true
	})
	return out
}

// ReferencesAt returns the references to the package named by the
// requirement at offset, or by the document's own name field when the
// cursor is on it.
func ReferencesAt(snap *repo.Snapshot, src []byte, offset int) []Location {
	if req, ok := requirementAt(src, offset); ok {
		return References(snap, req.Name)
	}
	c := locate(src, offset)
	if c.inString && c.key == manifest.FieldName {
		return References(snap, c.text(src))
	}
	return nil
}

func requirementAt(src []byte, offset int) (version.Requirement, bool) {
	c := locate(src, offset)
	if !c.inRequirement() {
		return version.Requirement{}, false
	}
	req, err := version.ParseRequirement(c.text(src))
	return req, err == nil
}
