// Package validate checks manifests and resolved-context files and reports
// findings as diagnostics with stable codes.
//
// Manifests go through two passes. The structural pass works on raw text
// and the parser's scan (indentation, brackets, quotes) and runs on any
// input. The semantic pass checks the recognized fields and only runs when
// the structural scan found nothing, so a half-typed bracket does not
// cascade into field errors.
//
// Findings never surface as Go errors.
package validate

import (
	"path"
	"strings"

	rerrors "github.com/matzehuels/rezls/pkg/errors"
	"github.com/matzehuels/rezls/pkg/manifest"
)

// Options toggles optional checks.
type Options struct {
	// RecommendedFields reports missing description and authors (R101).
	RecommendedFields bool `json:"recommended_fields"`
	// Style enables trailing whitespace, line length and version style checks.
	Style bool `json:"style"`
	// MaxLineLength is the W501 limit.
	MaxLineLength int `json:"max_line_length"`
	// MaxDiagnostics caps each report; the cap is marked with V001.
	MaxDiagnostics int `json:"max_diagnostics"`
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{MaxLineLength: 100, MaxDiagnostics: 100}
}

// DocumentKind classifies a document by its file name.
type DocumentKind int

const (
	KindUnknown DocumentKind = iota
	KindManifest
	KindContext
)

func (k DocumentKind) String() string {
	switch k {
	case KindManifest:
		return "manifest"
	case KindContext:
		return "context"
	}
	return "unknown"
}

// ContextExt is the extension of resolved-context files.
const ContextExt = ".rxt"

// KindOf returns the kind of the document at uri or path.
func KindOf(uri string) DocumentKind {
	base := path.Base(strings.ReplaceAll(uri, "\\", "/"))
	switch {
	case base == manifest.FileName:
		return KindManifest
	case strings.HasSuffix(base, ContextExt):
		return KindContext
	}
	return KindUnknown
}

// Report is the outcome of validating one document.
type Report struct {
	URI         string
	Kind        DocumentKind
	Diagnostics []Diagnostic
	// File and Descriptor are set for manifests. Descriptor is nil when name
	// or version are unusable.
	File       *manifest.File
	Descriptor *manifest.Descriptor
}

// Validator runs the checks selected by its options.
type Validator struct {
	opts Options
}

// New returns a validator. Zero limits fall back to the defaults.
func New(opts Options) *Validator {
	def := DefaultOptions()
	if opts.MaxLineLength <= 0 {
		opts.MaxLineLength = def.MaxLineLength
	}
	if opts.MaxDiagnostics <= 0 {
		opts.MaxDiagnostics = def.MaxDiagnostics
	}
	return &Validator{opts: opts}
}

// Options returns the effective options.
func (v *Validator) Options() Options { return v.opts }

// Document validates text as the kind of document uri names. Unknown kinds
// are validated as manifests.
func (v *Validator) Document(uri string, text []byte) *Report {
	kind := KindOf(uri)
	if kind == KindContext {
		return &Report{URI: uri, Kind: kind, Diagnostics: v.limit(Context(text), manifest.NewLineIndex(text))}
	}
	r := v.Manifest(uri, text)
	r.Kind = kind
	return r
}

// Manifest runs both passes over a manifest.
func (v *Validator) Manifest(uri string, text []byte) *Report {
	f := manifest.Parse(text)
	diags := Structural(f, v.opts)
	if f.OK() {
		diags = append(diags, Semantic(f, documentPath(uri), v.opts)...)
	}
	d, _, _ := f.Descriptor(documentPath(uri))
	return &Report{
		URI:         uri,
		Kind:        KindManifest,
		Diagnostics: v.limit(diags, f.Lines),
		File:        f,
		Descriptor:  d,
	}
}

// limit sorts and caps diagnostics.
func (v *Validator) limit(diags []Diagnostic, lines *manifest.LineIndex) []Diagnostic {
	Sort(diags)
	if len(diags) <= v.opts.MaxDiagnostics {
		return diags
	}
	total := len(diags)
	diags = diags[:v.opts.MaxDiagnostics]
	b := newBuilder(lines)
	b.add(SeverityInformation, CodeTruncated, manifest.Span{}, "Too many problems: showing %d of %d", v.opts.MaxDiagnostics, total)
	return append(diags, b.diags...)
}

func documentPath(uri string) string {
	p, err := rerrors.DocumentPath(uri)
	if err != nil {
		return uri
	}
	return p
}
