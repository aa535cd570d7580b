package query

import (
	"slices"
	"strings"

	"github.com/matzehuels/rezls/pkg/manifest"
	"github.com/matzehuels/rezls/pkg/repo"
)

// SymbolKind classifies symbols.
type SymbolKind string

const (
	SymbolField       SymbolKind = "field"
	SymbolFunction    SymbolKind = "function"
	SymbolRequirement SymbolKind = "requirement"
	SymbolPackage     SymbolKind = "package"
)

// Symbol is an outline entry.
type Symbol struct {
	Name     string             `json:"name"`
	Kind     SymbolKind         `json:"kind"`
	Detail   string             `json:"detail,omitempty"`
	Path     string             `json:"path,omitempty"`
	Span     manifest.Span      `json:"span"`
	Range    manifest.TextRange `json:"range"`
	Children []Symbol           `json:"children,omitempty"`
}

const maxDetail = 60

// DocumentSymbols outlines a manifest: one symbol per top-level assignment
// and function, in source order, with the requirement strings of
// requirement fields as children.
func DocumentSymbols(src []byte) []Symbol {
	f := manifest.Parse(src)
	var out []Symbol
	for _, a := range f.Assignments {
		s := Symbol{
			Name:  a.Key,
			Kind:  SymbolField,
			Span:  a.Span,
			Range: f.Lines.Range(a.Span),
		}
		if a.Err == nil {
			s.Detail = shorten(a.Value.Raw(src))
			if manifest.IsRequirementField(a.Key) {
				s.Children = requirementSymbols(a.Value, src, f.Lines)
			}
		}
		out = append(out, s)
	}
	for _, fn := range f.Functions {
		out = append(out, Symbol{Name: fn.Name, Kind: SymbolFunction, Span: fn.Span, Range: f.Lines.Range(fn.Span)})
	}
	slices.SortStableFunc(out, func(a, b Symbol) int { return a.Span.Start - b.Span.Start })
	return out
}

func requirementSymbols(v manifest.Value, src []byte, lines *manifest.LineIndex) []Symbol {
	var out []Symbol
	for _, it := range v.Items {
		switch {
		case it.Kind == manifest.KindString:
			span := contentSpan(it, src)
			out = append(out, Symbol{Name: it.Str, Kind: SymbolRequirement, Span: span, Range: lines.Range(span)})
		case it.IsSequence():
			out = append(out, requirementSymbols(it, src, lines)...)
		}
	}
	return out
}

// contentSpan returns the span of a string literal without its quotes.
func contentSpan(v manifest.Value, src []byte) manifest.Span {
	closing := 1
	if v.ContentStart-v.Span.Start >= 3 && v.Span.End-3 >= v.ContentStart {
		tail := src[v.Span.End-3 : v.Span.End]
		if tail[0] == tail[1] && tail[1] == tail[2] && (tail[0] == '"' || tail[0] == '\'') {
			closing = 3
		}
	}
	return manifest.Span{Start: v.ContentStart, End: max(v.ContentStart, v.Span.End-closing)}
}

func shorten(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxDetail {
		return s[:maxDetail-3] + "..."
	}
	return s
}

// WorkspaceSymbols returns one symbol per package whose name contains
// query, names starting with it first, pointing at the latest version.
func WorkspaceSymbols(snap *repo.Snapshot, query string) []Symbol {
	var out []Symbol
	for _, name := range snap.Search(query) {
		d, ok := snap.Latest(name)
		if !ok {
			continue
		}
		out = append(out, Symbol{
			Name:   name,
			Kind:   SymbolPackage,
			Detail: d.Version.String(),
			Path:   d.SourcePath,
		})
	}
	return out
}
