package workspace

import (
	"bytes"
	"context"
	"slices"
	"time"

	rerrors "github.com/matzehuels/rezls/pkg/errors"
	"github.com/matzehuels/rezls/pkg/manifest"
	"github.com/matzehuels/rezls/pkg/observability"
	"github.com/matzehuels/rezls/pkg/validate"
)

// Publisher receives the diagnostics of a document version. A nil slice
// clears the document's diagnostics.
type Publisher interface {
	Publish(uri string, version int, diags []validate.Diagnostic)
}

// PublisherFunc adapts a function to [Publisher].
type PublisherFunc func(uri string, version int, diags []validate.Diagnostic)

// Publish calls f.
func (f PublisherFunc) Publish(uri string, version int, diags []validate.Diagnostic) {
	f(uri, version, diags)
}

type discard struct{}

func (discard) Publish(string, int, []validate.Diagnostic) {}

// Change is one edit to an open document. A nil Range replaces the whole
// text.
type Change struct {
	Range *manifest.TextRange `json:"range,omitempty"`
	Text  string              `json:"text"`
}

// Document is an open document's current state.
type Document struct {
	URI     string `json:"uri"`
	Version int    `json:"version"`
	Text    []byte `json:"-"`
}

// document text is never modified in place: edits build a new slice, so a
// validation may keep the slice it started with.
type document struct {
	uri     string
	version int
	text    []byte

	timer  *time.Timer
	cancel context.CancelFunc
}

// Open starts tracking a document and schedules its validation.
func (w *Workspace) Open(uri string, version int, text []byte) error {
	if _, err := rerrors.DocumentPath(uri); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if d, ok := w.docs[uri]; ok {
		w.stop(d)
	}
	d := &document{uri: uri, version: version, text: bytes.Clone(text)}
	w.docs[uri] = d
	w.schedule(d)
	return nil
}

// Change applies edits in order and schedules validation of the result.
// Versions must increase; a stale version is rejected unchanged.
func (w *Workspace) Change(uri string, version int, changes []Change) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, ok := w.docs[uri]
	if !ok {
		return rerrors.New(rerrors.ErrCodeDocumentNotFound, "document %s is not open", uri)
	}
	if version <= d.version {
		return rerrors.New(rerrors.ErrCodeInvalidInput, "stale version %d of %s (have %d)", version, uri, d.version)
	}
	text := d.text
	for _, c := range changes {
		text = apply(text, c)
	}
	d.text = text
	d.version = version
	w.schedule(d)
	return nil
}

// CloseDocument stops tracking uri and clears its diagnostics.
func (w *Workspace) CloseDocument(uri string) {
	w.mu.Lock()
	d, ok := w.docs[uri]
	if ok {
		w.stop(d)
		delete(w.docs, uri)
	}
	w.mu.Unlock()
	if !ok {
		return
	}
	w.documents.Invalidate(uri)
	w.publishMu.Lock()
	w.publisher.Publish(uri, d.version, nil)
	w.publishMu.Unlock()
}

// Document returns the open document at uri.
func (w *Workspace) Document(uri string) (Document, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, ok := w.docs[uri]
	if !ok {
		return Document{}, false
	}
	return Document{URI: d.uri, Version: d.version, Text: d.text}, true
}

// Documents returns the URIs of the open documents, sorted.
func (w *Workspace) Documents() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	uris := make([]string, 0, len(w.docs))
	for uri := range w.docs {
		uris = append(uris, uri)
	}
	slices.Sort(uris)
	return uris
}

// Diagnostics validates the current text of an open document now, without
// waiting for the debounce.
func (w *Workspace) Diagnostics(ctx context.Context, uri string) ([]validate.Diagnostic, int, error) {
	w.mu.Lock()
	d, ok := w.docs[uri]
	if !ok {
		w.mu.Unlock()
		return nil, 0, rerrors.New(rerrors.ErrCodeDocumentNotFound, "document %s is not open", uri)
	}
	text, version, v := d.text, d.version, w.validator
	w.mu.Unlock()

	r, err := w.report(ctx, uri, text, v)
	if err != nil {
		return nil, 0, err
	}
	return r.Diagnostics, version, nil
}

// Validate validates text as the document uri names, open or not.
func (w *Workspace) Validate(ctx context.Context, uri string, text []byte) (*validate.Report, error) {
	w.mu.Lock()
	v := w.validator
	w.mu.Unlock()
	return w.report(ctx, uri, text, v)
}

// report returns the cached report for text or computes it.
func (w *Workspace) report(ctx context.Context, uri string, text []byte, v *validate.Validator) (*validate.Report, error) {
	gen := w.Snapshot().Generation()
	if r, ok := w.documents.Get(ctx, uri, text, gen); ok {
		return r, nil
	}
	start := time.Now()
	r, err := safely(w, "validate", func() *validate.Report { return v.Document(uri, text) })
	if err != nil {
		return nil, err
	}
	observability.Validation().OnValidate(ctx, uri, len(r.Diagnostics), time.Since(start))
	w.documents.Put(ctx, uri, text, gen, r)
	return r, nil
}

// schedule starts the debounce for d's current version, superseding any
// pending or running validation. It must be called with w.mu held.
func (w *Workspace) schedule(d *document) {
	w.stop(d)
	if w.closed {
		return
	}
	ctx, cancel := context.WithCancel(w.ctx)
	d.cancel = cancel
	uri, version, text, v := d.uri, d.version, d.text, w.validator

	w.wg.Add(1)
	d.timer = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.validateVersion(ctx, uri, version, text, v)
	})
}

// stop cancels d's pending validation. It must be called with w.mu held.
func (w *Workspace) stop(d *document) {
	if d.timer != nil && d.timer.Stop() {
		w.wg.Done()
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.timer, d.cancel = nil, nil
}

// validateVersion validates one version and publishes the result unless a
// newer version or a close superseded it.
func (w *Workspace) validateVersion(ctx context.Context, uri string, version int, text []byte, v *validate.Validator) {
	r, err := w.report(ctx, uri, text, v)
	if err != nil {
		w.logger.Warn("validation failed", "uri", uri, "err", err)
		return
	}
	if ctx.Err() != nil {
		return
	}

	w.publishMu.Lock()
	defer w.publishMu.Unlock()
	w.mu.Lock()
	d, ok := w.docs[uri]
	current := ok && d.version == version && ctx.Err() == nil
	w.mu.Unlock()
	if !current {
		w.logger.Debug("dropping stale diagnostics", "uri", uri, "version", version)
		return
	}
	w.publisher.Publish(uri, version, r.Diagnostics)
}

// revalidateAll reschedules every open document, e.g. after a rescan.
func (w *Workspace) revalidateAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, d := range w.docs {
		w.schedule(d)
	}
}

// apply returns text with c applied. Positions past the end clamp.
func apply(text []byte, c Change) []byte {
	if c.Range == nil {
		return []byte(c.Text)
	}
	lines := manifest.NewLineIndex(text)
	start, end := lines.Offset(c.Range.Start), lines.Offset(c.Range.End)
	if end < start {
		start, end = end, start
	}
	out := make([]byte, 0, len(text)-(end-start)+len(c.Text))
	out = append(out, text[:start]...)
	out = append(out, c.Text...)
	return append(out, text[end:]...)
}
