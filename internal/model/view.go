package model

// Scan error texts surfaced to the user.
const (
	MsgInvalidPattern = "not a valid regular expression"
	MsgAborted        = "aborted"
	MsgTooManyHits    = "too many hits - make it simpler"
	MsgNoMatches      = "no matches"
)

// View is the outcome of scanning one document against one pattern.
// Either Error is set, or Ranges/Highlights/Matches describe the result.
type View struct {
	Ranges     []LineRange
	Highlights []HighlightSpan
	Matches    int // number of lines with at least one match
	Error      string
}

func (v View) Failed() bool {
	return v.Error != ""
}

// Aborted reports whether the scan stopped on cancellation.
func (v View) Aborted() bool {
	return v.Error == MsgAborted
}
