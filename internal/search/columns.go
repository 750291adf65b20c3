package search

import (
	"strings"
	"unicode/utf16"

	"github.com/altinukshini/condense/internal/model"
)

// UTF16Len returns the length of s in UTF-16 code units.
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// ByteOffset converts a UTF-16 column within s back to a byte offset.
// Columns past the end of s clamp to len(s).
func ByteOffset(s string, col int) int {
	n := 0
	for i, r := range s {
		if n >= col {
			return i
		}
		n += utf16.RuneLen(r)
	}
	return len(s)
}

// appendSpans locates each occurrence by searching for its text just after
// the end of the previous one, so repeated substrings land on distinct spans.
func appendSpans(spans []model.HighlightSpan, line int, text string, found []string) []model.HighlightSpan {
	pos, col := 0, 0
	for _, occ := range found {
		if occ == "" {
			continue
		}
		i := strings.Index(text[pos:], occ)
		if i < 0 {
			continue
		}
		start := pos + i
		startCol := col + UTF16Len(text[pos:start])
		endCol := startCol + UTF16Len(occ)
		spans = append(spans, model.HighlightSpan{Line: line, StartCol: startCol, EndCol: endCol})
		pos, col = start+len(occ), endCol
	}
	return spans
}
