package session

import (
	"context"
	"sync/atomic"

	"github.com/altinukshini/condense/internal/model"
)

// request is one scheduled scan. Pointer identity tells a fired timer
// whether it is still the current request.
type request struct {
	filter string
}

// Session is the condensing state of one open document. All fields except
// abort are guarded by the owning Coordinator's mutex.
type Session struct {
	id  string
	doc model.Document

	filter string
	view   *model.View
	err    string

	history *History

	timer   Timer
	pending *request
	busy    bool
	abort   atomic.Bool
	cancel  context.CancelFunc
	closed  bool
}

func newSession(id string, doc model.Document, historySize int) *Session {
	return &Session{
		id:      id,
		doc:     doc,
		history: NewHistory(historySize),
	}
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		ID:      s.id,
		Filter:  s.filter,
		Error:   s.err,
		Busy:    s.busy,
		Pending: s.pending != nil,
		History: s.history.Entries(),
		Cursor:  s.history.Cursor(),
	}
	if s.view != nil {
		v := *s.view
		v.Ranges = append([]model.LineRange(nil), s.view.Ranges...)
		v.Highlights = append([]model.HighlightSpan(nil), s.view.Highlights...)
		snap.View = &v
	}
	return snap
}

func (s *Session) active() bool {
	return s.view != nil && len(s.view.Ranges) > 0
}

// Snapshot is a consistent copy of a session's state.
type Snapshot struct {
	ID      string
	Filter  string      // last filter actually scanned
	View    *model.View // nil when nothing is condensed
	Error   string
	Busy    bool
	Pending bool
	History []string
	Cursor  int
}

// Message is the text the input surface should show under the filter.
// Errors stay hidden while another scan is already scheduled.
func (s Snapshot) Message() string {
	if s.Pending {
		return ""
	}
	return s.Error
}

func (s Snapshot) Active() bool {
	return s.View != nil && len(s.View.Ranges) > 0
}

func (s Snapshot) Matches() int {
	if s.View == nil {
		return 0
	}
	return s.View.Matches
}
