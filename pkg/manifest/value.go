package manifest

// Kind identifies the shape of a decoded value.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindNone
	KindList
	KindTuple
	KindDict
	// KindExpr is any right-hand side that is not a literal.
	KindExpr
)

var kindNames = map[Kind]string{
	KindString: "string",
	KindNumber: "number",
	KindBool:   "bool",
	KindNone:   "None",
	KindList:   "list",
	KindTuple:  "tuple",
	KindDict:   "dict",
	KindExpr:   "expression",
}

// String returns a readable kind name for messages.
func (k Kind) String() string { return kindNames[k] }

// Value is a decoded right-hand side.
type Value struct {
	Kind Kind
	Span Span

	// Str holds the decoded text of a string, or the raw text of a number.
	Str string
	// ContentStart is the byte offset of the first character inside the
	// quotes of a string literal.
	ContentStart int
	Bool         bool

	// Items holds list and tuple elements, or dict values.
	Items []Value
	// Keys holds dict keys, parallel to Items.
	Keys []Value
}

// IsSequence reports whether v is a list or tuple.
func (v Value) IsSequence() bool { return v.Kind == KindList || v.Kind == KindTuple }

// Strings returns the elements of a sequence of strings. ok is false when v
// is not a sequence or an element is not a string.
func (v Value) Strings() (out []string, ok bool) {
	if !v.IsSequence() {
		return nil, false
	}
	out = make([]string, 0, len(v.Items))
	for _, it := range v.Items {
		if it.Kind != KindString {
			return nil, false
		}
		out = append(out, it.Str)
	}
	return out, true
}

// Raw returns the source text of the value.
func (v Value) Raw(src []byte) string {
	if v.Span.Start < 0 || v.Span.End > len(src) || v.Span.Start > v.Span.End {
		return ""
	}
	return string(src[v.Span.Start:v.Span.End])
}

// Assignment is one top-level "key = value" statement.
type Assignment struct {
	Key     string
	KeySpan Span
	Value   Value
	// Span covers the whole statement, from the key to the end of the value.
	Span Span
	// Err is set when the value could not be scanned; Value is then unusable.
	Err *ParseError
}

// Function is a top-level def block.
type Function struct {
	Name string
	Span Span
}
