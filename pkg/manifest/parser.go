package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// File is the result of the structural pass over a manifest.
type File struct {
	Source      []byte
	Lines       *LineIndex
	Assignments []Assignment
	Functions   []Function
	// Errors holds structural problems. Parsing resumed after each one.
	Errors []*ParseError
}

// Lookup returns the last assignment to key, the one that takes effect.
func (f *File) Lookup(key string) (Assignment, bool) {
	for i := len(f.Assignments) - 1; i >= 0; i-- {
		if f.Assignments[i].Key == key {
			return f.Assignments[i], true
		}
	}
	return Assignment{}, false
}

// AssignmentAt returns the assignment whose statement contains offset.
func (f *File) AssignmentAt(offset int) (Assignment, bool) {
	for _, a := range f.Assignments {
		if a.Span.Contains(offset) {
			return a, true
		}
	}
	return Assignment{}, false
}

// OK reports whether the structural pass found no problems.
func (f *File) OK() bool { return len(f.Errors) == 0 }

var errNotLiteral = errors.New("not a literal")

var blockKeywords = map[string]bool{
	"def": true, "class": true, "if": true, "elif": true, "else": true,
	"for": true, "while": true, "with": true, "try": true, "except": true,
	"finally": true, "async": true,
}

var skipKeywords = map[string]bool{
	"import": true, "from": true, "pass": true, "return": true, "del": true,
	"global": true, "assert": true, "raise": true,
}

var closers = map[byte]byte{'(': ')', '[': ']', '{': '}'}

type parser struct {
	src   []byte
	pos   int
	depth int
	file  *File
}

// Parse runs the structural pass over src. It never fails; problems are
// collected in [File.Errors].
func Parse(src []byte) *File {
	p := &parser{src: src, file: &File{Source: src, Lines: NewLineIndex(src)}}
	for p.pos < len(p.src) {
		p.statement()
	}
	return p.file
}

func (p *parser) statement() {
	start := p.pos
	i := p.skipIndent(start)
	if i >= len(p.src) {
		p.pos = i
		return
	}
	switch p.src[i] {
	case '\n', '\r':
		p.pos = i + 1
		return
	case '#':
		p.pos = p.lineEnd(i)
		return
	}

	if i > start {
		p.file.Errors = append(p.file.Errors, &ParseError{
			Offset: start, End: i, Reason: ReasonUnexpectedIndent, Structural: true,
		})
		p.pos = p.skipStatement(i)
		return
	}
	if !isNameStart(p.src[i]) {
		p.pos = p.skipStatement(i)
		return
	}

	word, wordEnd := p.ident(i)
	switch {
	case blockKeywords[word]:
		p.block(word, i, wordEnd)
	case skipKeywords[word]:
		p.pos = p.skipStatement(i)
	default:
		p.assignment(word, i, wordEnd)
	}
}

// assignment handles "key = value"; any other statement starting with an
// identifier is skipped.
func (p *parser) assignment(key string, start, keyEnd int) {
	eq := p.skipSpace(keyEnd, false)
	if eq >= len(p.src) || p.src[eq] != '=' || eq+1 < len(p.src) && p.src[eq+1] == '=' {
		p.pos = p.skipStatement(start)
		return
	}

	a := Assignment{Key: key, KeySpan: Span{start, keyEnd}}
	valueStart := p.skipSpace(eq+1, false)
	if valueStart >= len(p.src) || p.src[valueStart] == '\n' || p.src[valueStart] == '\r' || p.src[valueStart] == '#' {
		a.Err = &ParseError{Field: key, Offset: eq, End: eq + 1, Reason: ReasonMissingValue}
		a.Span = Span{start, eq + 1}
		p.file.Assignments = append(p.file.Assignments, a)
		p.pos = valueStart
		return
	}

	p.pos = valueStart
	v, err := p.value()
	if err == nil {
		k := p.skipSpace(p.pos, false)
		if k >= len(p.src) || p.src[k] == '\n' || p.src[k] == '\r' || p.src[k] == '#' {
			a.Value = v
			a.Span = Span{start, p.pos}
			p.file.Assignments = append(p.file.Assignments, a)
			p.pos = k
			return
		}
		err = errNotLiteral
	}

	var perr *ParseError
	if !errors.As(err, &perr) {
		// Not a literal: keep the raw expression text.
		end, serr := p.scanLogical(valueStart)
		if serr == nil {
			a.Value = Value{Kind: KindExpr, Span: Span{valueStart, end}}
			a.Span = Span{start, end}
			p.file.Assignments = append(p.file.Assignments, a)
			p.pos = end
			return
		}
		perr = serr
	}

	perr.Field = key
	a.Err = perr
	a.Span = Span{start, max(perr.End, perr.Offset+1)}
	p.file.Assignments = append(p.file.Assignments, a)
	p.file.Errors = append(p.file.Errors, perr)
	p.pos = p.resync(perr.Offset)
}

// block skips a compound statement header and its indented body.
func (p *parser) block(word string, start, wordEnd int) {
	var name string
	if word == "def" {
		j := p.skipSpace(wordEnd, false)
		if j < len(p.src) && isNameStart(p.src[j]) {
			name, _ = p.ident(j)
		}
	}

	end, err := p.scanLogical(start)
	if err != nil {
		p.file.Errors = append(p.file.Errors, err)
		p.pos = p.resync(err.Offset)
		return
	}

	bodyEnd := end
	i := p.nextLineStart(end)
	for i < len(p.src) {
		j := p.skipIndent(i)
		if j >= len(p.src) {
			i = j
			break
		}
		if c := p.src[j]; c == '\n' || c == '\r' || c == '#' {
			i = p.nextLineStart(j)
			continue
		}
		if j == i {
			break
		}
		e, err := p.scanLogical(j)
		if err != nil {
			p.file.Errors = append(p.file.Errors, err)
			i = p.resync(err.Offset)
			break
		}
		bodyEnd = e
		i = p.nextLineStart(e)
	}

	if name != "" {
		p.file.Functions = append(p.file.Functions, Function{Name: name, Span: Span{start, bodyEnd}})
	}
	p.pos = i
}

// skipStatement scans past one logical line, recording structural errors.
func (p *parser) skipStatement(from int) int {
	end, err := p.scanLogical(from)
	if err != nil {
		p.file.Errors = append(p.file.Errors, err)
		return p.resync(err.Offset)
	}
	return end
}

// scanLogical scans one logical line starting at from: it ends at a newline
// outside brackets and strings. The returned offset is just past the last
// code byte (trailing blanks and comments excluded).
func (p *parser) scanLogical(from int) (int, *ParseError) {
	var stack []int
	last := from
	i := from
	for i < len(p.src) {
		c := p.src[i]
		switch {
		case c == '#':
			i = p.lineEnd(i)
			continue
		case c == '\\' && i+1 < len(p.src) && (p.src[i+1] == '\n' || p.src[i+1] == '\r'):
			i = p.nextLineStart(i + 1)
			continue
		case c == '\n':
			if len(stack) == 0 {
				return last, nil
			}
		case c == '"' || c == '\'':
			end, _, err := p.scanString(i, false)
			if err != nil {
				return 0, err
			}
			i, last = end, end
			continue
		case c == '(' || c == '[' || c == '{':
			stack = append(stack, i)
		case c == ')' || c == ']' || c == '}':
			if len(stack) == 0 {
				return 0, &ParseError{Offset: i, End: i + 1, Reason: fmt.Sprintf("unmatched closing %q", c), Structural: true}
			}
			open := stack[len(stack)-1]
			if closers[p.src[open]] != c {
				return 0, p.mismatch(i, open)
			}
			stack = stack[:len(stack)-1]
		}
		if c != ' ' && c != '\t' && c != '\r' && c != '\n' {
			last = i + 1
		}
		i++
	}
	if len(stack) > 0 {
		return 0, p.unclosed(stack[len(stack)-1])
	}
	return last, nil
}

// scanString scans the string literal whose opening quote is at start and
// returns the offset past its closing quote and its decoded text.
func (p *parser) scanString(start int, raw bool) (int, string, *ParseError) {
	q := p.src[start]
	triple := start+2 < len(p.src) && p.src[start+1] == q && p.src[start+2] == q
	i := start + 1
	if triple {
		i = start + 3
	}

	var b strings.Builder
	for i < len(p.src) {
		c := p.src[i]
		switch {
		case c == '\\' && i+1 < len(p.src):
			if raw {
				b.WriteByte(c)
				b.WriteByte(p.src[i+1])
			} else {
				writeEscape(&b, p.src[i+1])
			}
			i += 2
			continue
		case c == q && !triple:
			return i + 1, b.String(), nil
		case c == q && i+2 < len(p.src) && p.src[i+1] == q && p.src[i+2] == q:
			return i + 3, b.String(), nil
		case c == '\n' && !triple:
			return 0, "", &ParseError{Offset: start, End: i, Reason: ReasonUnterminatedString, Structural: true}
		}
		b.WriteByte(c)
		i++
	}
	return 0, "", &ParseError{Offset: start, End: len(p.src), Reason: ReasonUnterminatedString, Structural: true}
}

func writeEscape(b *strings.Builder, c byte) {
	switch c {
	case 'n':
		b.WriteByte('\n')
	case 't':
		b.WriteByte('\t')
	case 'r':
		b.WriteByte('\r')
	case '0':
		b.WriteByte(0)
	case '\\', '\'', '"':
		b.WriteByte(c)
	case '\n':
	default:
		b.WriteByte('\\')
		b.WriteByte(c)
	}
}

// value decodes a literal at p.pos. Non-literals yield errNotLiteral;
// structural problems yield a *ParseError.
func (p *parser) value() (Value, error) {
	i := p.pos
	if i >= len(p.src) {
		return Value{}, errNotLiteral
	}
	c := p.src[i]
	switch {
	case c == '"' || c == '\'':
		return p.stringValue(i, i, false)
	case c == '[':
		return p.sequence(i, KindList)
	case c == '(':
		return p.sequence(i, KindTuple)
	case c == '{':
		return p.dict(i)
	case isDigit(c) || (c == '-' || c == '+' || c == '.') && i+1 < len(p.src) && (isDigit(p.src[i+1]) || p.src[i+1] == '.'):
		return p.number(i), nil
	case isNameStart(c):
		word, end := p.ident(i)
		if end < len(p.src) && (p.src[end] == '"' || p.src[end] == '\'') && isStringPrefix(word) {
			return p.stringValue(i, end, strings.ContainsAny(word, "rR"))
		}
		switch word {
		case "True", "False":
			p.pos = end
			return Value{Kind: KindBool, Bool: word == "True", Span: Span{i, end}}, nil
		case "None":
			p.pos = end
			return Value{Kind: KindNone, Span: Span{i, end}}, nil
		}
	}
	return Value{}, errNotLiteral
}

func (p *parser) stringValue(start, quote int, raw bool) (Value, error) {
	end, s, err := p.scanString(quote, raw)
	if err != nil {
		return Value{}, err
	}
	v := Value{Kind: KindString, Str: s, ContentStart: quote + quoteLen(p.src, quote), Span: Span{start, end}}
	p.pos = end

	// Adjacent literals concatenate.
	for {
		j := p.skipSpace(p.pos, p.depth > 0)
		if j >= len(p.src) || p.src[j] != '"' && p.src[j] != '\'' {
			return v, nil
		}
		end, s, err := p.scanString(j, false)
		if err != nil {
			return Value{}, err
		}
		v.Str += s
		v.Span.End = end
		p.pos = end
	}
}

func (p *parser) sequence(open int, kind Kind) (Value, error) {
	p.depth++
	defer func() { p.depth-- }()

	closer := closers[p.src[open]]
	v := Value{Kind: kind}
	comma := false
	i := open + 1
	for {
		i = p.skipSpace(i, true)
		if i >= len(p.src) {
			return Value{}, p.unclosed(open)
		}
		if p.src[i] == closer {
			break
		}
		if isCloser(p.src[i]) {
			return Value{}, p.mismatch(i, open)
		}

		p.pos = i
		item, err := p.value()
		if err != nil {
			return Value{}, err
		}
		v.Items = append(v.Items, item)

		i = p.skipSpace(p.pos, true)
		if i >= len(p.src) {
			return Value{}, p.unclosed(open)
		}
		switch c := p.src[i]; {
		case c == ',':
			comma = true
			i++
		case c == closer:
		case isCloser(c):
			return Value{}, p.mismatch(i, open)
		default:
			return Value{}, errNotLiteral
		}
	}

	p.pos = i + 1
	if kind == KindTuple && len(v.Items) == 1 && !comma {
		return v.Items[0], nil
	}
	v.Span = Span{open, i + 1}
	return v, nil
}

func (p *parser) dict(open int) (Value, error) {
	p.depth++
	defer func() { p.depth-- }()

	v := Value{Kind: KindDict}
	i := open + 1
	for {
		i = p.skipSpace(i, true)
		if i >= len(p.src) {
			return Value{}, p.unclosed(open)
		}
		if p.src[i] == '}' {
			break
		}
		if isCloser(p.src[i]) {
			return Value{}, p.mismatch(i, open)
		}

		p.pos = i
		key, err := p.value()
		if err != nil {
			return Value{}, err
		}
		i = p.skipSpace(p.pos, true)
		if i >= len(p.src) || p.src[i] != ':' {
			return Value{}, errNotLiteral
		}
		p.pos = p.skipSpace(i+1, true)
		val, err := p.value()
		if err != nil {
			return Value{}, err
		}
		v.Keys = append(v.Keys, key)
		v.Items = append(v.Items, val)

		i = p.skipSpace(p.pos, true)
		if i >= len(p.src) {
			return Value{}, p.unclosed(open)
		}
		switch c := p.src[i]; {
		case c == ',':
			i++
		case c == '}':
		case isCloser(c):
			return Value{}, p.mismatch(i, open)
		default:
			return Value{}, errNotLiteral
		}
	}

	p.pos = i + 1
	v.Span = Span{open, i + 1}
	return v, nil
}

func (p *parser) number(start int) Value {
	j := start
	if p.src[j] == '-' || p.src[j] == '+' {
		j++
	}
	for j < len(p.src) {
		c := p.src[j]
		if isNameByte(c) || c == '.' || (c == '-' || c == '+') && (p.src[j-1] == 'e' || p.src[j-1] == 'E') {
			j++
			continue
		}
		break
	}
	p.pos = j
	return Value{Kind: KindNumber, Str: string(p.src[start:j]), Span: Span{start, j}}
}

func (p *parser) mismatch(at, open int) *ParseError {
	return &ParseError{
		Offset:     at,
		End:        at + 1,
		Reason:     fmt.Sprintf("mismatched closing %q, expected %q", p.src[at], closers[p.src[open]]),
		Structural: true,
	}
}

func (p *parser) unclosed(open int) *ParseError {
	return &ParseError{Offset: open, End: open + 1, Reason: fmt.Sprintf("unclosed %q", p.src[open]), Structural: true}
}

// resync returns the start of the next line after off that begins a new
// top-level statement.
func (p *parser) resync(off int) int {
	i := p.nextLineStart(off)
	for i < len(p.src) {
		if isNameStart(p.src[i]) || p.src[i] == '@' {
			return i
		}
		i = p.nextLineStart(i)
	}
	return len(p.src)
}

func (p *parser) ident(i int) (string, int) {
	j := i
	for j < len(p.src) && isNameByte(p.src[j]) {
		j++
	}
	return string(p.src[i:j]), j
}

func (p *parser) skipIndent(i int) int {
	for i < len(p.src) && (p.src[i] == ' ' || p.src[i] == '\t') {
		i++
	}
	return i
}

// skipSpace skips blanks and line continuations; inside brackets it also
// skips newlines and comments.
func (p *parser) skipSpace(i int, newlines bool) int {
	for i < len(p.src) {
		switch c := p.src[i]; {
		case c == ' ' || c == '\t':
			i++
		case c == '\\' && i+1 < len(p.src) && (p.src[i+1] == '\n' || p.src[i+1] == '\r'):
			i = p.nextLineStart(i + 1)
		case newlines && (c == '\n' || c == '\r'):
			i++
		case newlines && c == '#':
			i = p.lineEnd(i)
		default:
			return i
		}
	}
	return i
}

func (p *parser) lineEnd(i int) int {
	if j := bytes.IndexByte(p.src[i:], '\n'); j >= 0 {
		return i + j
	}
	return len(p.src)
}

func (p *parser) nextLineStart(i int) int {
	return min(p.lineEnd(i)+1, len(p.src))
}

func quoteLen(src []byte, i int) int {
	q := src[i]
	if i+2 < len(src) && src[i+1] == q && src[i+2] == q {
		return 3
	}
	return 1
}

func isStringPrefix(word string) bool {
	switch strings.ToLower(word) {
	case "r", "u", "b", "f", "rb", "br", "fr", "rf":
		return true
	}
	return false
}

func isCloser(c byte) bool { return c == ')' || c == ']' || c == '}' }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isNameStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isNameByte(c byte) bool { return isNameStart(c) || isDigit(c) }
