package model

// Document is a read-only, line-indexed text source. Indices are zero-based.
type Document interface {
	LineCount() int
	LineText(index int) string
}

// LineRange is an inclusive block of lines that collapses as a unit.
type LineRange struct {
	Start int
	End   int
}

// Len returns the number of lines covered by the range.
func (r LineRange) Len() int {
	return r.End - r.Start + 1
}

// HighlightSpan marks one match occurrence. Columns are UTF-16 code units.
type HighlightSpan struct {
	Line     int
	StartCol int
	EndCol   int
}
