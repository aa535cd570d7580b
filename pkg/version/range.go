package version

import "strings"

// Bound is one end of a [Range]. The zero Bound is unbounded.
type Bound struct {
	Version   Version
	Inclusive bool
}

// IsZero reports whether the bound is absent.
func (b Bound) IsZero() bool { return b.Version.IsZero() }

// Range is a convex set of versions. The zero Range matches every version.
//
// Supported forms:
//
//	""        any version
//	"==V"     exactly V
//	">=V"     V or later (canonical form "V+")
//	">V"      later than V
//	"<=V"     V or earlier
//	"<V"      earlier than V
//	"V+<U"    from V (inclusive) up to U (exclusive); "V+<=U" includes U
//	">=V<U"   any lower operator followed by any upper operator
//	"V"       the V family: V itself and every version with V as token prefix
type Range struct {
	Lower  Bound
	Upper  Bound
	Family Version
}

// Any is the unconstrained range.
var Any = Range{}

// Exact returns the range containing only v.
func Exact(v Version) Range {
	return Range{Lower: Bound{v, true}, Upper: Bound{v, true}}
}

// AtLeast returns the range ">=v".
func AtLeast(v Version) Range { return Range{Lower: Bound{v, true}} }

// Below returns the range "<v".
func Below(v Version) Range { return Range{Upper: Bound{v, false}} }

// Between returns the range "lo+<hi".
func Between(lo, hi Version) Range {
	return Range{Lower: Bound{lo, true}, Upper: Bound{hi, false}}
}

// ParseRange parses the range part of a requirement (the text after the
// package name and its '-' separator, or starting at a comparison operator).
// Malformed text fails with a [*ParseError] carrying the offending substring.
func ParseRange(text string) (Range, error) {
	return parseRangeAt(text, text, 0)
}

func parseRangeAt(input, text string, base int) (Range, error) {
	if text == "" {
		return Any, nil
	}

	switch {
	case strings.HasPrefix(text, "=="):
		v, err := parseAt(input, text[2:], base+2)
		if err != nil {
			return Range{}, err
		}
		return Exact(v), nil

	case text[0] == '>':
		lower, rest, restBase, err := parseOperand(input, text, base)
		if err != nil {
			return Range{}, err
		}
		r := Range{Lower: lower}
		if rest == "" {
			return r, nil
		}
		if rest[0] != '<' {
			return Range{}, unexpected(input, rest, restBase)
		}
		upper, tail, tailBase, err := parseOperand(input, rest, restBase)
		if err != nil {
			return Range{}, err
		}
		if tail != "" {
			return Range{}, unexpected(input, tail, tailBase)
		}
		r.Upper = upper
		return r, nil

	case text[0] == '<':
		upper, rest, restBase, err := parseOperand(input, text, base)
		if err != nil {
			return Range{}, err
		}
		if rest != "" {
			return Range{}, unexpected(input, rest, restBase)
		}
		return Range{Upper: upper}, nil

	case text[0] == '=':
		return Range{}, &ParseError{Input: input, Offset: base, Text: "=", Reason: "use '==' for an exact version"}
	}

	end := strings.IndexAny(text, "+<>=")
	if end < 0 {
		v, err := parseAt(input, text, base)
		if err != nil {
			return Range{}, err
		}
		return Range{Family: v}, nil
	}
	if text[end] != '+' {
		return Range{}, unexpected(input, text[end:], base+end)
	}

	lo, err := parseAt(input, text[:end], base)
	if err != nil {
		return Range{}, err
	}
	r := Range{Lower: Bound{lo, true}}
	rest, restBase := text[end+1:], base+end+1
	if rest == "" {
		return r, nil
	}
	if rest[0] != '<' {
		return Range{}, unexpected(input, rest, restBase)
	}
	upper, tail, tailBase, err := parseOperand(input, rest, restBase)
	if err != nil {
		return Range{}, err
	}
	if tail != "" {
		return Range{}, unexpected(input, tail, tailBase)
	}
	r.Upper = upper
	return r, nil
}

// parseOperand parses one "<op><version>" prefix of text and returns the
// remaining text. The operand version ends at the next '<' or '>'.
func parseOperand(input, text string, base int) (Bound, string, int, error) {
	opLen := 1
	inclusive := false
	if len(text) > 1 && text[1] == '=' {
		opLen = 2
		inclusive = true
	}
	body := text[opLen:]
	end := strings.IndexAny(body, "<>")
	if end < 0 {
		end = len(body)
	}
	v, err := parseAt(input, body[:end], base+opLen)
	if err != nil {
		return Bound{}, "", 0, err
	}
	return Bound{v, inclusive}, body[end:], base + opLen + end, nil
}

func unexpected(input, rest string, offset int) *ParseError {
	return &ParseError{Input: input, Offset: offset, Text: rest, Reason: "unexpected text in range"}
}

// IsAny reports whether r matches every version.
func (r Range) IsAny() bool {
	return r.Lower.IsZero() && r.Upper.IsZero() && r.Family.IsZero()
}

// IsExact reports whether r is an "==V" range.
func (r Range) IsExact() bool {
	return !r.Lower.IsZero() && r.Lower.Inclusive && r.Upper.Inclusive &&
		r.Lower.Version.Equal(r.Upper.Version) && r.Family.IsZero()
}

// Matches reports whether v lies inside r.
func (r Range) Matches(v Version) bool {
	if !r.Family.IsZero() && !v.HasPrefix(r.Family) {
		return false
	}
	if !r.Lower.IsZero() {
		c := v.Compare(r.Lower.Version)
		if c < 0 || c == 0 && !r.Lower.Inclusive {
			return false
		}
	}
	if !r.Upper.IsZero() {
		c := v.Compare(r.Upper.Version)
		if c > 0 || c == 0 && !r.Upper.Inclusive {
			return false
		}
	}
	return true
}

// Filter returns the versions of vs that r matches, preserving order.
func (r Range) Filter(vs []Version) []Version {
	var out []Version
	for _, v := range vs {
		if r.Matches(v) {
			out = append(out, v)
		}
	}
	return out
}

// String returns the canonical text of r; "" for [Any].
func (r Range) String() string {
	if !r.Family.IsZero() {
		return r.Family.String()
	}
	if r.IsExact() {
		return "==" + r.Lower.Version.String()
	}

	var b strings.Builder
	switch {
	case r.Lower.IsZero():
	case r.Lower.Inclusive:
		b.WriteString(r.Lower.Version.String() + "+")
	default:
		b.WriteString(">" + r.Lower.Version.String())
	}
	if !r.Upper.IsZero() {
		if r.Upper.Inclusive {
			b.WriteString("<=")
		} else {
			b.WriteString("<")
		}
		b.WriteString(r.Upper.Version.String())
	}
	return b.String()
}
