package query

import (
	"fmt"
	"strings"

	"github.com/matzehuels/rezls/pkg/manifest"
	"github.com/matzehuels/rezls/pkg/repo"
	"github.com/matzehuels/rezls/pkg/resolve"
	"github.com/matzehuels/rezls/pkg/version"
)

// HoverInfo is the hover content for a token.
type HoverInfo struct {
	// Contents is Markdown.
	Contents string             `json:"contents"`
	Span     manifest.Span      `json:"span"`
	Range    manifest.TextRange `json:"range"`
	// Package is the ID of the described package, if any.
	Package    string `json:"package,omitempty"`
	PackageURL string `json:"purl,omitempty"`
}

// maxHoverVersions limits the version list shown on hover.
const maxHoverVersions = 10

// Hover describes the token at offset. On a requirement it shows the
// package chosen by resolved, when that choice satisfies the requirement,
// or else the highest version matching it. On a recognized field name it
// shows the field's documentation.
func Hover(snap *repo.Snapshot, src []byte, offset int, resolved *resolve.Resolution) (*HoverInfo, bool) {
	c := locate(src, offset)
	lines := manifest.NewLineIndex(src)

	if c.onKey(src) {
		doc, ok := manifest.FieldDocs[c.key]
		if !ok {
			return nil, false
		}
		span := manifest.Span{Start: c.lineStart, End: c.lineStart + len(c.key)}
		return &HoverInfo{
			Contents: fmt.Sprintf("**%s**\n\n%s", c.key, doc),
			Span:     span,
			Range:    lines.Range(span),
		}, true
	}

	if !c.inRequirement() {
		return nil, false
	}
	req, err := version.ParseRequirement(c.text(src))
	if err != nil {
		return nil, false
	}
	span := manifest.Span{Start: c.start, End: c.end}
	h := &HoverInfo{Span: span, Range: lines.Range(span)}

	d, chosen := describe(snap, req, resolved)
	if d == nil {
		h.Contents = fmt.Sprintf("**%s**\n\nNo package on the search paths satisfies `%s`.", req.Name, req)
		return h, true
	}
	h.Package = d.ID()
	h.PackageURL = PackageURL(d)
	h.Contents = markdown(snap, d, chosen, h.PackageURL)
	return h, true
}

// describe picks the descriptor a hover on req shows.
func describe(snap *repo.Snapshot, req version.Requirement, resolved *resolve.Resolution) (*manifest.Descriptor, bool) {
	if resolved != nil {
		if ch, ok := resolved.Lookup(req.Name); ok && req.Allows(ch.Descriptor.Version) {
			return ch.Descriptor, true
		}
	}
	if req.Conflict {
		d, _ := snap.Latest(req.Name)
		return d, false
	}
	d, _ := snap.Best(req)
	return d, false
}

func markdown(snap *repo.Snapshot, d *manifest.Descriptor, chosen bool, purl string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** `%s`", d.Name, d.Version)
	if chosen {
		b.WriteString(" (resolved)")
	}
	b.WriteString("\n\n")
	if d.Description != "" {
		b.WriteString(d.Description)
		b.WriteString("\n\n")
	}

	versions := snap.Versions(d.Name)
	texts := make([]string, 0, min(len(versions), maxHoverVersions))
	for _, v := range versions[:min(len(versions), maxHoverVersions)] {
		texts = append(texts, v.String())
	}
	more := ""
	if len(versions) > maxHoverVersions {
		more = fmt.Sprintf(" (+%d more)", len(versions)-maxHoverVersions)
	}
	fmt.Fprintf(&b, "- Versions: %s%s\n", strings.Join(texts, ", "), more)

	if len(d.Requires) > 0 {
		reqs := make([]string, len(d.Requires))
		for i, r := range d.Requires {
			reqs[i] = r.String()
		}
		fmt.Fprintf(&b, "- Requires: %s\n", strings.Join(reqs, ", "))
	}
	if len(d.Variants) > 0 {
		fmt.Fprintf(&b, "- Variants: %d\n", len(d.Variants))
	}
	if len(d.Tools) > 0 {
		fmt.Fprintf(&b, "- Tools: %s\n", strings.Join(d.Tools, ", "))
	}
	if len(d.Authors) > 0 {
		fmt.Fprintf(&b, "- Authors: %s\n", strings.Join(d.Authors, ", "))
	}
	if d.SourcePath != "" {
		fmt.Fprintf(&b, "- Source: %s\n", d.SourcePath)
	}
	fmt.Fprintf(&b, "- PURL: `%s`\n", purl)
	return b.String()
}
