package version

import "strings"

// Requirement names a package and the versions of it that are acceptable.
//
// Textual forms:
//
//	foo           any version of foo
//	foo-1.2       the 1.2 family
//	foo-1+<2      1 (inclusive) up to 2 (exclusive)
//	foo>=1<2      the same, operator form
//	foo==1.2.3    exactly 1.2.3
//	~foo-1+       weak: only constrains foo if something else requires it
//	!foo-2+       conflict: foo must not be selected in the range
type Requirement struct {
	Name     string
	Range    Range
	Weak     bool
	Conflict bool
}

// ParseRequirement parses a requirement string. Malformed text fails with a
// [*ParseError] whose offset is relative to text.
func ParseRequirement(text string) (Requirement, error) {
	var req Requirement
	i := 0
	if i < len(text) {
		switch text[i] {
		case '~':
			req.Weak = true
			i++
		case '!':
			req.Conflict = true
			i++
		}
	}

	start := i
	if i >= len(text) || !isNameStart(text[i]) {
		pe := &ParseError{Input: text, Offset: i, Reason: "expected package name"}
		if i < len(text) {
			pe.Text = text[i : i+1]
		}
		return Requirement{}, pe
	}
	for i < len(text) && isNameByte(text[i]) {
		i++
	}
	req.Name = text[start:i]

	rest := text[i:]
	switch {
	case rest == "":
		return req, nil
	case rest[0] == '-':
		if len(rest) == 1 {
			return Requirement{}, &ParseError{Input: text, Offset: i, Text: "-", Reason: "missing version after '-'"}
		}
		r, err := parseRangeAt(text, rest[1:], i+1)
		if err != nil {
			return Requirement{}, err
		}
		req.Range = r
	case rest[0] == '=' || rest[0] == '<' || rest[0] == '>':
		r, err := parseRangeAt(text, rest, i)
		if err != nil {
			return Requirement{}, err
		}
		req.Range = r
	default:
		return Requirement{}, &ParseError{Input: text, Offset: i, Text: rest[:1], Reason: "invalid character in package name"}
	}
	return req, nil
}

// MustParseRequirement is like [ParseRequirement] but panics on error.
func MustParseRequirement(text string) Requirement {
	r, err := ParseRequirement(text)
	if err != nil {
		panic(err)
	}
	return r
}

// ParseRequirements parses a list of requirement strings, stopping at the
// first malformed entry.
func ParseRequirements(texts []string) ([]Requirement, error) {
	out := make([]Requirement, 0, len(texts))
	for _, t := range texts {
		r, err := ParseRequirement(t)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func isNameStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isNameByte(c byte) bool {
	return isNameStart(c) || c >= '0' && c <= '9'
}

// IsValidName reports whether name matches [A-Za-z_][A-Za-z0-9_]*.
func IsValidName(name string) bool {
	if name == "" || !isNameStart(name[0]) {
		return false
	}
	for i := 1; i < len(name); i++ {
		if !isNameByte(name[i]) {
			return false
		}
	}
	return true
}

// Positive reports whether the requirement forces its package into a
// resolution (it is neither weak nor a conflict).
func (r Requirement) Positive() bool { return !r.Weak && !r.Conflict }

// Allows reports whether selecting version v of r.Name is compatible with r.
// For conflict requirements this is the complement of the range.
func (r Requirement) Allows(v Version) bool {
	if r.Conflict {
		return !r.Range.Matches(v)
	}
	return r.Range.Matches(v)
}

// String returns the canonical requirement text.
func (r Requirement) String() string {
	var b strings.Builder
	switch {
	case r.Weak:
		b.WriteByte('~')
	case r.Conflict:
		b.WriteByte('!')
	}
	b.WriteString(r.Name)
	rs := r.Range.String()
	if rs != "" && isTokenByte(rs[0]) {
		b.WriteByte('-')
	}
	b.WriteString(rs)
	return b.String()
}
