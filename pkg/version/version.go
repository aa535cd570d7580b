// Package version implements package version ordering and requirement ranges.
//
// A [Version] is a sequence of alphanumeric tokens separated by '.' or '-'
// ("2.1.0beta", "1-2", "3.9"). Versions are totally ordered:
//
//   - two numeric tokens (digits only) compare as integers
//   - two non-numeric tokens compare byte-wise
//   - a non-numeric token orders before a numeric one, so "1.0.beta" < "1.0.0"
//   - a version that is a strict prefix of another orders first: "1.0" < "1.0.0"
//
// Numeric tokens with the same value but different spellings ("01" and "1")
// are ordered byte-wise, which keeps the order strict over distinct texts.
//
// A [Range] restricts the versions a [Requirement] accepts. Every range is
// convex: applied to a sorted version list it selects a contiguous run.
package version

import (
	"slices"
	"strings"
)

// Version is a parsed, immutable version identifier.
// The zero value is the empty version, which [Parse] never returns.
type Version struct {
	text   string
	tokens []token
}

type token struct {
	text    string
	numeric bool
}

// Parse parses a version string. Empty input, empty tokens ("1..2", "1.")
// and characters outside [A-Za-z0-9_] fail with a [*ParseError].
func Parse(text string) (Version, error) {
	return parseAt(text, text, 0)
}

// MustParse is like [Parse] but panics on malformed input.
// It is intended for tests and package-level fixtures.
func MustParse(text string) Version {
	v, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return v
}

// parseAt parses text, reporting errors relative to input at base.
func parseAt(input, text string, base int) (Version, error) {
	if text == "" {
		return Version{}, &ParseError{Input: input, Offset: base, Reason: "empty version"}
	}

	var tokens []token
	start := 0
	for i := 0; i <= len(text); i++ {
		if i < len(text) && isTokenByte(text[i]) {
			continue
		}
		if i < len(text) && !isSeparator(text[i]) {
			return Version{}, &ParseError{
				Input:  input,
				Offset: base + i,
				Text:   text[i : i+1],
				Reason: "invalid character in version",
			}
		}
		if i == start {
			return Version{}, &ParseError{
				Input:  input,
				Offset: base + max(i-1, 0),
				Text:   text[max(i-1, 0):min(i+1, len(text))],
				Reason: "empty version token",
			}
		}
		tokens = append(tokens, newToken(text[start:i]))
		start = i + 1
	}
	return Version{text: text, tokens: tokens}, nil
}

func newToken(s string) token {
	numeric := true
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			numeric = false
			break
		}
	}
	return token{text: s, numeric: numeric}
}

func isTokenByte(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isSeparator(c byte) bool { return c == '.' || c == '-' }

// String returns the version text exactly as parsed.
func (v Version) String() string { return v.text }

// IsZero reports whether v is the empty version.
func (v Version) IsZero() bool { return len(v.tokens) == 0 }

// Tokens returns the version's tokens in order.
func (v Version) Tokens() []string {
	out := make([]string, len(v.tokens))
	for i, t := range v.tokens {
		out[i] = t.text
	}
	return out
}

// Compare returns -1, 0 or +1 as v orders before, equal to or after o.
// Versions are equal only when their token sequences are identical, so
// "1.0" and "1-0" are equal while "1.0" and "1.0.0" are not.
func (v Version) Compare(o Version) int {
	n := min(len(v.tokens), len(o.tokens))
	for i := 0; i < n; i++ {
		if c := compareTokens(v.tokens[i], o.tokens[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(v.tokens) < len(o.tokens):
		return -1
	case len(v.tokens) > len(o.tokens):
		return 1
	}
	return 0
}

// Less reports whether v orders strictly before o.
func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

// Equal reports whether v and o have identical token sequences.
func (v Version) Equal(o Version) bool { return v.Compare(o) == 0 }

// HasPrefix reports whether p's tokens are a prefix of v's tokens.
// Every version has itself as a prefix; the empty version is a prefix of all.
func (v Version) HasPrefix(p Version) bool {
	if len(p.tokens) > len(v.tokens) {
		return false
	}
	for i, t := range p.tokens {
		if compareTokens(t, v.tokens[i]) != 0 {
			return false
		}
	}
	return true
}

// Compare is the free-function form of [Version.Compare], usable with
// slices.SortFunc.
func Compare(a, b Version) int { return a.Compare(b) }

func compareTokens(a, b token) int {
	switch {
	case a.numeric && b.numeric:
		if c := compareNumeric(a.text, b.text); c != 0 {
			return c
		}
		return strings.Compare(a.text, b.text)
	case a.numeric:
		return 1
	case b.numeric:
		return -1
	}
	return strings.Compare(a.text, b.text)
}

// compareNumeric compares two digit strings by value without overflow.
func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// Sort sorts versions in ascending order.
func Sort(vs []Version) {
	slices.SortStableFunc(vs, Compare)
}

// SortDescending sorts versions highest first.
func SortDescending(vs []Version) {
	slices.SortStableFunc(vs, func(a, b Version) int { return b.Compare(a) })
}
