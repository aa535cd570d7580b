package workspace

import (
	rerrors "github.com/matzehuels/rezls/pkg/errors"
	"github.com/matzehuels/rezls/pkg/manifest"
	"github.com/matzehuels/rezls/pkg/query"
	"github.com/matzehuels/rezls/pkg/repo"
	"github.com/matzehuels/rezls/pkg/resolve"
)

// Queries read an open document's current text and the snapshot current
// at the call. None of them resolves.

// Completion returns completion candidates at a byte offset.
func (w *Workspace) Completion(uri string, offset int) ([]query.CompletionItem, error) {
	src, snap, err := w.view(uri)
	if err != nil {
		return nil, err
	}
	return safely(w, "completion", func() []query.CompletionItem {
		return query.Completion(snap, src, clamp(offset, src))
	})
}

// Hover describes the token at a byte offset. It returns nil when there is
// nothing to show.
func (w *Workspace) Hover(uri string, offset int) (*query.HoverInfo, error) {
	src, snap, err := w.view(uri)
	if err != nil {
		return nil, err
	}
	resolved := w.resolvedFor(snap)
	return safely(w, "hover", func() *query.HoverInfo {
		h, _ := query.Hover(snap, src, clamp(offset, src), resolved)
		return h
	})
}

// Definition returns the manifests the requirement at offset refers to.
func (w *Workspace) Definition(uri string, offset int) ([]query.Location, error) {
	src, snap, err := w.view(uri)
	if err != nil {
		return nil, err
	}
	resolved := w.resolvedFor(snap)
	return safely(w, "definition", func() []query.Location {
		return query.Definition(snap, src, clamp(offset, src), resolved)
	})
}

// References returns the requirements on the package named at offset.
func (w *Workspace) References(uri string, offset int) ([]query.Location, error) {
	src, snap, err := w.view(uri)
	if err != nil {
		return nil, err
	}
	return safely(w, "references", func() []query.Location {
		return query.ReferencesAt(snap, src, clamp(offset, src))
	})
}

// PackageReferences returns the requirements on name across the snapshot.
func (w *Workspace) PackageReferences(name string) ([]query.Location, error) {
	snap := w.Snapshot()
	return safely(w, "references", func() []query.Location {
		return query.References(snap, name)
	})
}

// DocumentSymbols outlines an open document.
func (w *Workspace) DocumentSymbols(uri string) ([]query.Symbol, error) {
	src, _, err := w.view(uri)
	if err != nil {
		return nil, err
	}
	return safely(w, "symbols", func() []query.Symbol { return query.DocumentSymbols(src) })
}

// WorkspaceSymbols finds packages by name.
func (w *Workspace) WorkspaceSymbols(q string) ([]query.Symbol, error) {
	snap := w.Snapshot()
	return safely(w, "symbols", func() []query.Symbol { return query.WorkspaceSymbols(snap, q) })
}

// OffsetAt converts a line and UTF-16 character position in an open
// document to a byte offset.
func (w *Workspace) OffsetAt(uri string, pos manifest.Position) (int, error) {
	src, _, err := w.view(uri)
	if err != nil {
		return 0, err
	}
	return manifest.NewLineIndex(src).Offset(pos), nil
}

func (w *Workspace) view(uri string) ([]byte, *repo.Snapshot, error) {
	d, ok := w.Document(uri)
	if !ok {
		return nil, nil, rerrors.New(rerrors.ErrCodeDocumentNotFound, "document %s is not open", uri)
	}
	return d.Text, w.Snapshot(), nil
}

// resolvedFor returns the last resolution if it was made against snap.
func (w *Workspace) resolvedFor(snap *repo.Snapshot) *resolve.Resolution {
	if res := w.last.Load(); res != nil && res.Generation == snap.Generation() {
		return res
	}
	return nil
}

func clamp(offset int, src []byte) int {
	return max(0, min(offset, len(src)))
}
