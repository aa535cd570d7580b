package query

import (
	"strings"

	"github.com/matzehuels/rezls/pkg/manifest"
	"github.com/matzehuels/rezls/pkg/repo"
)

// ItemKind classifies completion items.
type ItemKind string

const (
	ItemPackage ItemKind = "package"
	ItemVersion ItemKind = "version"
	ItemField   ItemKind = "field"
)

// CompletionItem is one completion candidate. Applying it replaces Span
// with InsertText.
type CompletionItem struct {
	Label         string             `json:"label"`
	Kind          ItemKind           `json:"kind"`
	Detail        string             `json:"detail,omitempty"`
	Documentation string             `json:"documentation,omitempty"`
	InsertText    string             `json:"insert_text"`
	Span          manifest.Span      `json:"span"`
	Range         manifest.TextRange `json:"range"`
}

// Completion returns candidates for the cursor at offset in src, in rank
// order.
//
// Inside a requirement string it completes package names (names starting
// with the typed text first, then names containing it) or, once a name and
// a version separator are typed, that package's versions starting with the
// typed text, highest first. At the start of a top-level line it completes
// recognized field names.
func Completion(snap *repo.Snapshot, src []byte, offset int) []CompletionItem {
	c := locate(src, offset)
	lines := manifest.NewLineIndex(src)

	if c.inRequirement() {
		typed := c.typed(src)
		nameStart, name, rest := token(typed)
		if rest == "" {
			span := manifest.Span{Start: c.start + nameStart, End: c.offset}
			return packageItems(snap, name, span, lines)
		}
		partial := versionPartial(rest)
		span := manifest.Span{Start: c.offset - len(partial), End: c.offset}
		return versionItems(snap, name, partial, span, lines)
	}

	if prefix, ok := c.fieldPrefix(src); ok {
		return fieldItems(prefix, manifest.Span{Start: c.lineStart, End: c.offset}, lines)
	}
	return nil
}

// versionPartial returns the version text being typed after a name: the
// text after the separator or the last range operator.
func versionPartial(rest string) string {
	body := strings.TrimPrefix(rest, "-")
	return body[strings.LastIndexAny(body, "+<>=")+1:]
}

func packageItems(snap *repo.Snapshot, prefix string, span manifest.Span, lines *manifest.LineIndex) []CompletionItem {
	names := snap.Search(prefix)
	items := make([]CompletionItem, 0, len(names))
	for _, name := range names {
		item := CompletionItem{
			Label:      name,
			Kind:       ItemPackage,
			InsertText: name,
			Span:       span,
			Range:      lines.Range(span),
		}
		if latest, ok := snap.Latest(name); ok {
			item.Detail = "latest: " + latest.Version.String()
			item.Documentation = latest.Description
		}
		items = append(items, item)
	}
	return items
}

func versionItems(snap *repo.Snapshot, name, prefix string, span manifest.Span, lines *manifest.LineIndex) []CompletionItem {
	var items []CompletionItem
	for _, d := range snap.Packages(name) {
		v := d.Version.String()
		if !strings.HasPrefix(v, prefix) {
			continue
		}
		items = append(items, CompletionItem{
			Label:         v,
			Kind:          ItemVersion,
			Detail:        d.ID(),
			Documentation: d.Description,
			InsertText:    v,
			Span:          span,
			Range:         lines.Range(span),
		})
	}
	return items
}

func fieldItems(prefix string, span manifest.Span, lines *manifest.LineIndex) []CompletionItem {
	var items []CompletionItem
	for _, f := range manifest.RecognizedFields() {
		if !strings.HasPrefix(f, prefix) {
			continue
		}
		items = append(items, CompletionItem{
			Label:         f,
			Kind:          ItemField,
			Documentation: manifest.FieldDocs[f],
			InsertText:    f + " = ",
			Span:          span,
			Range:         lines.Range(span),
		})
	}
	return items
}
