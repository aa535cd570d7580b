package validate

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/matzehuels/rezls/pkg/manifest"
)

// Severity ranks a diagnostic. Values match the editor protocol.
type Severity int

const (
	SeverityError       Severity = 1
	SeverityWarning     Severity = 2
	SeverityInformation Severity = 3
	SeverityHint        Severity = 4
)

// String returns the lower-case severity name.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInformation:
		return "info"
	case SeverityHint:
		return "hint"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Code is a stable diagnostic identifier that quick fixes and filters can
// address.
type Code string

// Structural codes.
const (
	CodeMixedIndent        Code = "E101"
	CodeUnexpectedIndent   Code = "E113"
	CodeUnterminatedString Code = "E902"
	CodeBracket            Code = "E999"
	CodeTrailingSpace      Code = "W291"
	CodeLineTooLong        Code = "W501"
)

// Semantic codes.
const (
	CodeMissingField    Code = "R001"
	CodeInvalidName     Code = "R002"
	CodeInvalidVersion  Code = "R003"
	CodeInvalidRequire  Code = "R004"
	CodeInvalidTool     Code = "R005"
	CodeDuplicateField  Code = "R006"
	CodeTypeMismatch    Code = "R007"
	CodeInvalidUUID     Code = "R008"
	CodeLocation        Code = "R009"
	CodeComputedValue   Code = "R010"
	CodeRecommended     Code = "R101"
	CodeReservedName    Code = "R102"
	CodeVersionStyle    Code = "R103"
	CodeDuplicateReq    Code = "R105"
	CodeDeprecatedField Code = "R201"
)

// Resolved-context codes.
const (
	CodeContextJSON      Code = "C001"
	CodeContextKey       Code = "C002"
	CodeContextPackage   Code = "C003"
	CodeContextDuplicate Code = "C004"
)

// CodeTruncated marks a capped diagnostic list.
const CodeTruncated Code = "V001"

// Source names the producer of every diagnostic.
const Source = "rezls"

// Diagnostic is one finding about a document.
type Diagnostic struct {
	Severity Severity           `json:"severity"`
	Span     manifest.Span      `json:"span"`
	Range    manifest.TextRange `json:"range"`
	Message  string             `json:"message"`
	Code     Code               `json:"code"`
	Source   string             `json:"source"`
	Fix      *Fix               `json:"fix,omitempty"`
}

// String formats the diagnostic as "line:col: severity code: message" with
// one-based line and column.
func (d Diagnostic) String() string {
	return fmt.Sprintf("%d:%d: %s %s: %s", d.Range.Start.Line+1, d.Range.Start.Character+1, d.Severity, d.Code, d.Message)
}

// Fix is a suggested quick fix.
type Fix struct {
	Title string     `json:"title"`
	Edits []TextEdit `json:"edits"`
}

// TextEdit replaces the text in Span with NewText.
type TextEdit struct {
	Span    manifest.Span      `json:"span"`
	Range   manifest.TextRange `json:"range"`
	NewText string             `json:"new_text"`
}

// builder accumulates diagnostics for one source.
type builder struct {
	lines *manifest.LineIndex
	diags []Diagnostic
}

func newBuilder(lines *manifest.LineIndex) *builder {
	return &builder{lines: lines}
}

func (b *builder) add(sev Severity, code Code, span manifest.Span, format string, args ...any) *Diagnostic {
	if span.End < span.Start {
		span.End = span.Start
	}
	b.diags = append(b.diags, Diagnostic{
		Severity: sev,
		Span:     span,
		Range:    b.lines.Range(span),
		Message:  fmt.Sprintf(format, args...),
		Code:     code,
		Source:   Source,
	})
	return &b.diags[len(b.diags)-1]
}

func (b *builder) insert(at int, text string) TextEdit {
	span := manifest.Span{Start: at, End: at}
	return TextEdit{Span: span, Range: b.lines.Range(span), NewText: text}
}

// Sort orders diagnostics by position, then severity, then code.
func Sort(diags []Diagnostic) {
	slices.SortStableFunc(diags, func(a, b Diagnostic) int {
		return cmp.Or(
			cmp.Compare(a.Span.Start, b.Span.Start),
			cmp.Compare(a.Severity, b.Severity),
			cmp.Compare(a.Code, b.Code),
		)
	})
}

// HasErrors reports whether any diagnostic is an error.
func HasErrors(diags []Diagnostic) bool {
	return slices.ContainsFunc(diags, func(d Diagnostic) bool { return d.Severity == SeverityError })
}

// Counts tallies diagnostics by severity.
func Counts(diags []Diagnostic) map[Severity]int {
	out := make(map[Severity]int)
	for _, d := range diags {
		out[d.Severity]++
	}
	return out
}

// FromParseError converts a manifest parse error into a diagnostic.
func FromParseError(lines *manifest.LineIndex, pe *manifest.ParseError) Diagnostic {
	b := newBuilder(lines)
	span := manifest.Span{Start: pe.Offset, End: max(pe.End, pe.Offset)}
	code := CodeBracket
	switch {
	case pe.Reason == manifest.ReasonUnterminatedString:
		code = CodeUnterminatedString
	case pe.Reason == manifest.ReasonUnexpectedIndent:
		code = CodeUnexpectedIndent
	case !pe.Structural:
		code = CodeTypeMismatch
	}
	b.add(SeverityError, code, span, "%s", parseMessage(pe))
	return b.diags[0]
}

func parseMessage(pe *manifest.ParseError) string {
	msg := pe.Reason
	if pe.Err != nil {
		msg += ": " + pe.Err.Error()
	}
	if pe.Field != "" && !pe.Structural {
		msg = pe.Field + ": " + msg
	}
	return capitalize(msg)
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
