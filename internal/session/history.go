package session

// DefaultHistorySize bounds the number of accepted filters kept per session.
const DefaultHistorySize = 100

// History holds accepted filters, most recent first, and a browsing cursor.
// A cursor of -1 means no entry is selected.
type History struct {
	entries []string
	cursor  int
	limit   int
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	return &History{cursor: -1, limit: limit}
}

// Commit moves text to the head of the history. Empty text is ignored and
// an existing copy is moved rather than duplicated. The cursor resets.
func (h *History) Commit(text string) {
	h.cursor = -1
	if text == "" {
		return
	}
	if len(h.entries) > 0 && h.entries[0] == text {
		return
	}
	for i, e := range h.entries {
		if e == text {
			h.entries = append(h.entries[:i], h.entries[i+1:]...)
			break
		}
	}
	h.entries = append([]string{text}, h.entries...)
	if len(h.entries) > h.limit {
		h.entries = h.entries[:h.limit]
	}
}

// Prev steps towards older entries and returns the selected filter. It stops
// at the oldest entry. With no entries it returns "".
func (h *History) Prev() string {
	if len(h.entries) == 0 {
		return ""
	}
	if h.cursor < len(h.entries)-1 {
		h.cursor++
	}
	return h.entries[h.cursor]
}

// Next steps towards newer entries. Stepping past the newest entry selects
// nothing and returns "".
func (h *History) Next() string {
	if h.cursor > -1 {
		h.cursor--
	}
	if h.cursor < 0 {
		return ""
	}
	return h.entries[h.cursor]
}

func (h *History) Reset() {
	h.cursor = -1
}

func (h *History) Cursor() int {
	return h.cursor
}

// Entries returns a copy, most recent first.
func (h *History) Entries() []string {
	out := make([]string, len(h.entries))
	copy(out, h.entries)
	return out
}
