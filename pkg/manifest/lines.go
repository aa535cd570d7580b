package manifest

import (
	"sort"
	"unicode/utf8"
)

// Position is a zero-based line and character (UTF-16 code unit) position,
// the coordinate system editors use.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// TextRange is a half-open range between two positions.
type TextRange struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Span is a half-open range of byte offsets.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bytes covered.
func (s Span) Len() int { return s.End - s.Start }

// Contains reports whether offset lies inside the span; the end offset is
// included so a cursor placed right after a token still hits it.
func (s Span) Contains(offset int) bool { return offset >= s.Start && offset <= s.End }

// LineIndex converts between byte offsets and positions.
type LineIndex struct {
	src    []byte
	starts []int
}

// NewLineIndex indexes the line starts of src.
func NewLineIndex(src []byte) *LineIndex {
	starts := []int{0}
	for i, c := range src {
		if c == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &LineIndex{src: src, starts: starts}
}

// LineCount returns the number of lines; an empty source has one line.
func (li *LineIndex) LineCount() int { return len(li.starts) }

// LineStart returns the byte offset of the first byte of line n.
func (li *LineIndex) LineStart(n int) int {
	if n < 0 {
		return 0
	}
	if n >= len(li.starts) {
		return len(li.src)
	}
	return li.starts[n]
}

// Line returns the contents of line n without its line terminator.
func (li *LineIndex) Line(n int) []byte {
	if n < 0 || n >= len(li.starts) {
		return nil
	}
	end := len(li.src)
	if n+1 < len(li.starts) {
		end = li.starts[n+1] - 1
	}
	line := li.src[li.starts[n]:end]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	return line
}

// Position converts a byte offset to a position. Offsets past the end clamp
// to the end of the source.
func (li *LineIndex) Position(offset int) Position {
	offset = max(0, min(offset, len(li.src)))
	line := sort.Search(len(li.starts), func(i int) bool { return li.starts[i] > offset }) - 1
	return Position{Line: line, Character: utf16Len(li.src[li.starts[line]:offset])}
}

// Range converts a span to a text range.
func (li *LineIndex) Range(s Span) TextRange {
	return TextRange{Start: li.Position(s.Start), End: li.Position(s.End)}
}

// Offset converts a position to a byte offset. Characters past the end of
// the line clamp to the line end; lines past the end clamp to the source end.
func (li *LineIndex) Offset(p Position) int {
	if p.Line < 0 {
		return 0
	}
	if p.Line >= len(li.starts) {
		return len(li.src)
	}
	start := li.starts[p.Line]
	line := li.Line(p.Line)
	units := 0
	for i := 0; i < len(line); {
		if units >= p.Character {
			return start + i
		}
		r, size := utf8.DecodeRune(line[i:])
		units += utf16Units(r)
		i += size
	}
	return start + len(line)
}

func utf16Len(b []byte) int {
	n := 0
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		n += utf16Units(r)
		b = b[size:]
	}
	return n
}

func utf16Units(r rune) int {
	if r >= 0x10000 {
		return 2
	}
	return 1
}
