// Package query answers editor questions about manifests: completion,
// hover, definition, references and symbols.
//
// Every function is a pure read over a [repo.Snapshot], the text of the
// document being edited and, where it helps, the last resolution. None of
// them scans the filesystem or starts a resolution, so they stay fast enough
// to run on every keystroke.
//
// Positions are byte offsets into the document; results carry both byte
// spans and line/character ranges so callers can use either coordinate
// system.
//
// Cursor analysis is lexical rather than syntactic. The document is usually
// mid-edit, e.g. `requires = ["fo` with an unterminated string, so the
// functions here scan strings, comments and brackets up to the cursor
// instead of relying on a successful parse.
//
// [repo.Snapshot]: github.com/matzehuels/rezls/pkg/repo.Snapshot
package query
