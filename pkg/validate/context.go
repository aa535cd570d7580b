package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/matzehuels/rezls/pkg/manifest"
	"github.com/matzehuels/rezls/pkg/version"
)

// Top-level keys every resolved-context file carries.
var contextKeys = []string{"serialize_version", "requests", "resolved_packages"}

type contextPackage struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Context validates a resolved-context (.rxt) document: a JSON object with
// the keys above whose resolved_packages entries name valid, distinct
// packages.
func Context(src []byte) []Diagnostic {
	lines := manifest.NewLineIndex(src)
	b := newBuilder(lines)

	dec := json.NewDecoder(bytes.NewReader(src))
	fail := func(err error) []Diagnostic {
		off := int(dec.InputOffset())
		var se *json.SyntaxError
		var te *json.UnmarshalTypeError
		switch {
		case errors.As(err, &se):
			off = int(se.Offset)
		case errors.As(err, &te):
			off = int(te.Offset)
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			off = len(src)
		}
		off = min(max(off-1, 0), len(src))
		b.add(SeverityError, CodeContextJSON, manifest.Span{Start: off, End: min(off+1, len(src))}, "Invalid JSON: %v", err)
		return b.diags
	}

	tok, err := dec.Token()
	if err != nil {
		return fail(err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		b.add(SeverityError, CodeContextJSON, manifest.Span{Start: 0, End: min(1, len(src))}, "Resolved context must be a JSON object")
		return b.diags
	}

	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fail(err)
		}
		key, _ := tok.(string)
		seen[key] = true
		if key != "resolved_packages" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return fail(err)
			}
			continue
		}
		if err := packages(dec, src, b); err != nil {
			return fail(err)
		}
	}
	if _, err := dec.Token(); err != nil {
		return fail(err)
	}
	if _, err := dec.Token(); err != io.EOF {
		off := int(dec.InputOffset())
		b.add(SeverityError, CodeContextJSON, manifest.Span{Start: off, End: len(src)}, "Unexpected data after JSON object")
	}

	for _, key := range contextKeys {
		if !seen[key] {
			b.add(SeverityError, CodeContextKey, manifest.Span{Start: 0, End: min(1, len(src))}, "Missing required key %q", key)
		}
	}
	return b.diags
}

// packages walks the resolved_packages array, recording the span of every
// entry.
func packages(dec *json.Decoder, src []byte, b *builder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	d, isDelim := tok.(json.Delim)
	if !isDelim || d != '[' {
		off := int(dec.InputOffset())
		b.add(SeverityError, CodeContextPackage, manifest.Span{Start: off, End: off}, "resolved_packages must be a list")
		if isDelim {
			return skipRest(dec, d)
		}
		return nil
	}

	seen := make(map[string]bool)
	for dec.More() {
		start := skipSpace(src, int(dec.InputOffset()))
		var pkg contextPackage
		if err := dec.Decode(&pkg); err != nil {
			var te *json.UnmarshalTypeError
			if !errors.As(err, &te) {
				return err
			}
			b.add(SeverityError, CodeContextPackage, manifest.Span{Start: start, End: int(dec.InputOffset())}, "Package entry must be an object with string name and version")
			continue
		}
		span := manifest.Span{Start: start, End: int(dec.InputOffset())}
		if !version.IsValidName(pkg.Name) {
			b.add(SeverityError, CodeContextPackage, span, "Invalid package name %q", pkg.Name)
			continue
		}
		if _, err := version.Parse(pkg.Version); err != nil {
			b.add(SeverityError, CodeContextPackage, span, "Invalid version %q of %s: %s", pkg.Version, pkg.Name, reason(err))
		}
		if seen[pkg.Name] {
			b.add(SeverityError, CodeContextDuplicate, span, "Package %q is resolved more than once", pkg.Name)
		}
		seen[pkg.Name] = true
	}
	_, err = dec.Token()
	return err
}

// skipRest consumes the remainder of a container whose opening delimiter was
// already read.
func skipRest(dec *json.Decoder, open json.Delim) error {
	var skip json.RawMessage
	for dec.More() {
		if open == '{' {
			if _, err := dec.Token(); err != nil {
				return err
			}
		}
		if err := dec.Decode(&skip); err != nil {
			return err
		}
	}
	_, err := dec.Token()
	return err
}

// skipSpace advances past JSON whitespace and a separating comma.
func skipSpace(src []byte, i int) int {
	for i < len(src) {
		switch src[i] {
		case ' ', '\t', '\r', '\n', ',':
			i++
		default:
			return i
		}
	}
	return i
}
