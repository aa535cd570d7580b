package validate

import (
	"bytes"
	"unicode/utf8"

	"github.com/matzehuels/rezls/pkg/manifest"
)

// Structural reports the parser's scan errors plus line checks. It runs on
// any input, parsable or not.
func Structural(f *manifest.File, opts Options) []Diagnostic {
	b := newBuilder(f.Lines)
	for _, pe := range f.Errors {
		b.diags = append(b.diags, FromParseError(f.Lines, pe))
	}

	cont := continuationLines(f)
	var style byte // indentation character of the first indented line
	for n := range f.Lines.LineCount() {
		line := f.Lines.Line(n)
		start := f.Lines.LineStart(n)
		trimmed := bytes.TrimLeft(line, " \t")
		indent := line[:len(line)-len(trimmed)]

		if !cont[n] && len(indent) > 0 && len(trimmed) > 0 && trimmed[0] != '#' {
			span := manifest.Span{Start: start, End: start + len(indent)}
			switch {
			case bytes.ContainsRune(indent, ' ') && bytes.ContainsRune(indent, '\t'):
				b.add(SeverityError, CodeMixedIndent, span, "Mixed tabs and spaces in indentation")
			case style == 0:
				style = indent[0]
			case indent[0] != style:
				b.add(SeverityError, CodeMixedIndent, span, "Indentation uses %s but earlier lines use %s", indentName(indent[0]), indentName(style))
			}
		}

		if !opts.Style {
			continue
		}
		if end := bytes.TrimRight(line, " \t"); len(end) < len(line) {
			b.add(SeverityWarning, CodeTrailingSpace, manifest.Span{Start: start + len(end), End: start + len(line)}, "Trailing whitespace")
		}
		if count := utf8.RuneCount(line); count > opts.MaxLineLength {
			cut := runeOffset(line, opts.MaxLineLength)
			b.add(SeverityWarning, CodeLineTooLong, manifest.Span{Start: start + cut, End: start + len(line)}, "Line too long (%d > %d characters)", count, opts.MaxLineLength)
		}
	}
	return b.diags
}

// continuationLines marks lines that begin inside a multi-line assignment
// value, where indentation is free.
func continuationLines(f *manifest.File) map[int]bool {
	out := make(map[int]bool)
	for _, a := range f.Assignments {
		first := f.Lines.Position(a.Span.Start).Line
		last := f.Lines.Position(a.Span.End).Line
		for n := first + 1; n <= last; n++ {
			out[n] = true
		}
	}
	return out
}

func indentName(c byte) string {
	if c == '\t' {
		return "tabs"
	}
	return "spaces"
}

// runeOffset returns the byte offset of the n-th rune of b.
func runeOffset(b []byte, n int) int {
	off := 0
	for i := 0; i < n && off < len(b); i++ {
		_, size := utf8.DecodeRune(b[off:])
		off += size
	}
	return off
}
