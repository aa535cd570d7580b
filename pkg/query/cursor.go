package query

import "github.com/matzehuels/rezls/pkg/manifest"

// cursor describes what surrounds an offset in a manifest.
type cursor struct {
	offset int
	// key is the top-level assignment the offset belongs to, or "".
	key       string
	depth     int
	lineStart int
	inComment bool

	// Set when the offset is inside a string literal. start and end delimit
	// the literal's content; end is the closing quote, or the end of the
	// line for an unterminated literal.
	inString bool
	start    int
	end      int
}

// text returns the literal content.
func (c cursor) text(src []byte) string { return string(src[c.start:c.end]) }

// typed returns the literal content up to the cursor.
func (c cursor) typed(src []byte) string { return string(src[c.start:c.offset]) }

// inRequirement reports whether the cursor is inside a string of a
// requirement list.
func (c cursor) inRequirement() bool {
	return c.inString && manifest.IsRequirementField(c.key)
}

// onKey reports whether the cursor is on the key of a top-level assignment.
func (c cursor) onKey(src []byte) bool {
	return !c.inString && !c.inComment && c.depth == 0 && c.key != "" &&
		keyAt(src, c.lineStart) == c.key && c.offset <= c.lineStart+len(c.key)
}

// fieldPrefix returns the identifier typed at the start of a top-level
// line, and whether the cursor is in such a position.
func (c cursor) fieldPrefix(src []byte) (string, bool) {
	if c.inString || c.inComment || c.depth != 0 {
		return "", false
	}
	word := string(src[c.lineStart:c.offset])
	for i := 0; i < len(word); i++ {
		if !isNameByte(word[i]) || i == 0 && !isNameStart(word[i]) {
			return "", false
		}
	}
	return word, true
}

// locate scans src up to offset.
func locate(src []byte, offset int) cursor {
	offset = min(max(offset, 0), len(src))
	c := cursor{offset: offset, key: keyAt(src, 0)}

	for i := 0; i < offset; {
		ch := src[i]
		switch ch {
		case '\n':
			i++
			c.lineStart = i
			if c.depth == 0 {
				c.key = keyAt(src, i)
			}
			continue
		case '#':
			end := lineEnd(src, i)
			if offset <= end {
				c.inComment = true
				return c
			}
			i = end
			continue
		case '"', '\'':
			q := quoteLen(src, i)
			start := i + q
			end, closed := stringEnd(src, start, ch, q)
			if offset >= start && offset <= end {
				c.inString, c.start, c.end = true, start, end
				return c
			}
			if closed {
				i = end + q
			} else {
				i = end
			}
			continue
		case '(', '[', '{':
			c.depth++
		case ')', ']', '}':
			if c.depth > 0 {
				c.depth--
			}
		}
		i++
	}
	return c
}

// keyAt returns the identifier assigned at i, which must be a line start.
func keyAt(src []byte, i int) string {
	if i >= len(src) || !isNameStart(src[i]) {
		return ""
	}
	j := i
	for j < len(src) && isNameByte(src[j]) {
		j++
	}
	k := j
	for k < len(src) && (src[k] == ' ' || src[k] == '\t') {
		k++
	}
	if k < len(src) && src[k] == '=' && (k+1 >= len(src) || src[k+1] != '=') {
		return string(src[i:j])
	}
	return ""
}

func quoteLen(src []byte, i int) int {
	if i+2 < len(src) && src[i+1] == src[i] && src[i+2] == src[i] {
		return 3
	}
	return 1
}

// stringEnd finds the closing quote of a literal whose content starts at
// start. Single-quoted literals end at the line end when unterminated.
func stringEnd(src []byte, start int, quote byte, q int) (int, bool) {
	for j := start; j < len(src); j++ {
		switch {
		case src[j] == '\\':
			j++
		case src[j] == '\n' && q == 1:
			return j, false
		case src[j] == quote:
			if q == 1 || j+2 < len(src) && src[j+1] == quote && src[j+2] == quote {
				return j, true
			}
		}
	}
	return len(src), false
}

func lineEnd(src []byte, i int) int {
	for i < len(src) && src[i] != '\n' {
		i++
	}
	return i
}

func isNameStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isNameByte(c byte) bool { return isNameStart(c) || c >= '0' && c <= '9' }

// token splits requirement text into its flag prefix, the package name and
// the rest, returning the byte offset of the name within text.
func token(text string) (nameStart int, name, rest string) {
	if text != "" && (text[0] == '~' || text[0] == '!') {
		nameStart = 1
	}
	j := nameStart
	for j < len(text) && isNameByte(text[j]) {
		j++
	}
	return nameStart, text[nameStart:j], text[j:]
}
