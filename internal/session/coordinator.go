package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/altinukshini/condense/internal/model"
	"github.com/altinukshini/condense/internal/search"
)

var (
	ErrSessionExists = errors.New("session already open")
	ErrNoSession     = errors.New("no such session")
)

const (
	DefaultInputDelay    = 300 * time.Millisecond
	DefaultHistoryDelay  = 600 * time.Millisecond
	DefaultExpediteDelay = 0
)

// Delays are the debounce periods for the three kinds of scheduled scans.
type Delays struct {
	Input    time.Duration // typing
	History  time.Duration // stepping through history
	Expedite time.Duration // re-running a request queued while busy
}

func DefaultDelays() Delays {
	return Delays{
		Input:    DefaultInputDelay,
		History:  DefaultHistoryDelay,
		Expedite: DefaultExpediteDelay,
	}
}

// Scanner is the scan engine as seen by the coordinator.
type Scanner interface {
	Validate(pattern string) error
	Scan(ctx context.Context, doc model.Document, pattern string, onProgress search.ProgressFunc) model.View
}

// Notifier receives session changes. Refresh fires after every settled scan
// or stop; renderers then query Ranges and Highlights again. Progress fires
// from the scanning goroutine at engine checkpoints.
type Notifier interface {
	Refresh(id string)
	Progress(id, message string, increment float64)
}

type nopNotifier struct{}

func (nopNotifier) Refresh(string)                   {}
func (nopNotifier) Progress(string, string, float64) {}

// Coordinator owns one Session per open document and serializes the scans
// requested against it. Scans run on their own goroutines; every state
// transition happens under a single mutex.
type Coordinator struct {
	mu       sync.Mutex
	sessions map[string]*Session

	scanner     Scanner
	notifier    Notifier
	clock       Clock
	delays      Delays
	historySize int

	scans sync.WaitGroup
}

func New(scanner Scanner, notifier Notifier, delays Delays) *Coordinator {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Coordinator{
		sessions:    make(map[string]*Session),
		scanner:     scanner,
		notifier:    notifier,
		clock:       realClock{},
		delays:      delays,
		historySize: DefaultHistorySize,
	}
}

func (c *Coordinator) withClock(clock Clock) *Coordinator {
	c.clock = clock
	return c
}

// Open creates the session for a newly opened document.
func (c *Coordinator) Open(id string, doc model.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sessions[id]; ok {
		return fmt.Errorf("open %s: %w", id, ErrSessionExists)
	}
	c.sessions[id] = newSession(id, doc, c.historySize)
	log.Printf("%s: created", id)
	return nil
}

// Close cancels any scheduled or running scan and discards the session.
func (c *Coordinator) Close(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok {
		return fmt.Errorf("close %s: %w", id, ErrNoSession)
	}
	c.stopLocked(s)
	s.closed = true
	delete(c.sessions, id)
	log.Printf("%s: disposed", id)
	return nil
}

// Shutdown closes every session and waits for running scans to return.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	for id, s := range c.sessions {
		c.stopLocked(s)
		s.closed = true
		delete(c.sessions, id)
	}
	c.mu.Unlock()
	c.scans.Wait()
}

func (c *Coordinator) Session(id string) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok {
		return Snapshot{}, fmt.Errorf("session %s: %w", id, ErrNoSession)
	}
	return s.snapshot(), nil
}

func (c *Coordinator) IDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Actives lists the sessions that currently condense their document.
func (c *Coordinator) Actives() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for id, s := range c.sessions {
		if s.active() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Ranges returns the blocks to fold for id. The result is never nil: an
// empty slice is how a renderer learns to drop a previous result.
func (c *Coordinator) Ranges(id string) []model.LineRange {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok || s.view == nil {
		return []model.LineRange{}
	}
	out := make([]model.LineRange, len(s.view.Ranges))
	copy(out, s.view.Ranges)
	return out
}

func (c *Coordinator) Highlights(id string) []model.HighlightSpan {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok || s.view == nil {
		return []model.HighlightSpan{}
	}
	out := make([]model.HighlightSpan, len(s.view.Highlights))
	copy(out, s.view.Highlights)
	return out
}

// Activate starts condensing from the input surface. The input is seeded
// with seed, or the current filter when seed is empty, and scanned at once
// in place of any scheduled or running scan. It returns the seeded input text.
func (c *Coordinator) Activate(id, seed string) (string, error) {
	c.mu.Lock()
	s, ok := c.sessions[id]
	if !ok {
		c.mu.Unlock()
		return "", fmt.Errorf("activate %s: %w", id, ErrNoSession)
	}
	s.history.Reset()
	text := seed
	if text == "" {
		text = s.filter
	}
	c.stopLocked(s)
	settled := c.analyzeLocked(s, text)
	c.mu.Unlock()
	if settled {
		c.notifier.Refresh(id)
	}
	return text, nil
}

// Change reports new input text; the scan runs once input is quiet.
func (c *Coordinator) Change(id, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok {
		return fmt.Errorf("change %s: %w", id, ErrNoSession)
	}
	c.scheduleLocked(s, text, c.delays.Input)
	return nil
}

// Accept commits text. Empty text stops condensing; anything else drops any
// scheduled scan, rescans when text differs from the current filter and
// records text in the history.
func (c *Coordinator) Accept(id, text string) error {
	if text == "" {
		return c.Stop(id)
	}
	c.mu.Lock()
	s, ok := c.sessions[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("accept %s: %w", id, ErrNoSession)
	}
	c.stopLocked(s)
	var settled bool
	if s.filter != text {
		settled = c.analyzeLocked(s, text)
	}
	s.history.Commit(text)
	c.mu.Unlock()
	if settled {
		c.notifier.Refresh(id)
	}
	return nil
}

// HistoryPrev selects the next older accepted filter and returns it.
func (c *Coordinator) HistoryPrev(id string) (string, error) {
	return c.browse(id, (*History).Prev)
}

// HistoryNext selects the next newer accepted filter; past the newest entry
// the input is empty.
func (c *Coordinator) HistoryNext(id string) (string, error) {
	return c.browse(id, (*History).Next)
}

func (c *Coordinator) browse(id string, step func(*History) string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok {
		return "", fmt.Errorf("history %s: %w", id, ErrNoSession)
	}
	text := step(s.history)
	if text == s.filter {
		// back on the current filter: nothing older may land after it
		c.stopLocked(s)
		return text, nil
	}
	c.scheduleLocked(s, text, c.delays.History)
	return text, nil
}

// Stop ends condensing: scheduled and running scans are dropped and the
// view is cleared. History is kept.
func (c *Coordinator) Stop(id string) error {
	c.mu.Lock()
	s, ok := c.sessions[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("stop %s: %w", id, ErrNoSession)
	}
	c.stopLocked(s)
	s.view = nil
	s.filter = ""
	s.err = ""
	c.mu.Unlock()
	c.notifier.Refresh(id)
	return nil
}

// Cancel is the progress surface's cancel button: it aborts the running
// scan and drops a scheduled one, leaving the rest to the scan's outcome.
func (c *Coordinator) Cancel(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok {
		return fmt.Errorf("cancel %s: %w", id, ErrNoSession)
	}
	c.stopLocked(s)
	return nil
}

func (c *Coordinator) scheduleLocked(s *Session, filter string, delay time.Duration) {
	log.Printf("%s: schedule a scan", s.id)
	c.stopLocked(s)
	c.armLocked(s, &request{filter: filter}, delay)
}

func (c *Coordinator) armLocked(s *Session, req *request, delay time.Duration) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.pending = req
	s.timer = c.clock.AfterFunc(delay, func() { c.fire(s, req) })
}

func (c *Coordinator) stopLocked(s *Session) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.abort.Store(true)
	if s.cancel != nil {
		s.cancel()
	}
	s.pending = nil
}

func (c *Coordinator) fire(s *Session, req *request) {
	c.mu.Lock()
	if s.closed || s.pending != req {
		c.mu.Unlock()
		return
	}
	log.Printf("%s: run a scheduled scan", s.id)
	s.pending = nil
	s.timer = nil
	settled := c.analyzeLocked(s, req.filter)
	c.mu.Unlock()
	if settled {
		c.notifier.Refresh(s.id)
	}
}

// analyzeLocked handles one scan request. It reports true when the session
// settled synchronously; otherwise a scan goroutine (or a rescheduled
// request) will finish the job.
func (c *Coordinator) analyzeLocked(s *Session, filter string) bool {
	if s.busy {
		log.Printf("%s: analyze: busy - request rescheduled", s.id)
		c.scheduleLocked(s, filter, c.delays.Input)
		return false
	}
	s.busy = true
	s.abort.Store(false)

	switch {
	case s.filter == filter:
	case filter == "":
		s.view = nil
		s.filter = ""
		s.err = ""
	default:
		if err := c.scanner.Validate(filter); err != nil {
			s.view = nil
			s.filter = filter
			s.err = model.MsgInvalidPattern
			break
		}
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		c.scans.Add(1)
		go c.runScan(ctx, s, filter, uuid.NewString())
		return false
	}
	c.logStateLocked(s)
	c.settleLocked(s)
	return true
}

func (c *Coordinator) runScan(ctx context.Context, s *Session, filter, run string) {
	defer c.scans.Done()
	log.Printf("%s: analyze: started [%s] run=%s", s.id, filter, run)

	scanned := 0
	view := c.scanner.Scan(ctx, s.doc, filter, func(line, lines, matches int) bool {
		c.notifier.Progress(s.id, fmt.Sprintf("line %d - %d matches found", line, matches), 100*float64(line-scanned)/float64(lines))
		scanned = line
		return s.abort.Load()
	})

	c.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.abort.Load() {
		view = model.View{Error: model.MsgAborted}
	}
	msg := view.Error
	if msg == "" {
		msg = "completed"
	}
	log.Printf("%s: analyze: %s run=%s", s.id, msg, run)

	switch {
	case view.Aborted():
		// superseded or cancelled: the previous filter and view stay
	case view.Failed():
		s.view = nil
		s.filter = filter
		s.err = view.Error
	case view.Matches == 0:
		s.view = nil
		s.filter = filter
		s.err = model.MsgNoMatches
	default:
		s.view = &view
		s.filter = filter
		s.err = ""
	}
	c.logStateLocked(s)
	closed := s.closed
	c.settleLocked(s)
	c.mu.Unlock()
	if !closed {
		c.notifier.Refresh(s.id)
	}
}

func (c *Coordinator) settleLocked(s *Session) {
	s.busy = false
	if s.pending != nil && !s.closed {
		log.Printf("%s: analyze: expedite next pending scan", s.id)
		c.armLocked(s, s.pending, c.delays.Expedite)
	}
}

func (c *Coordinator) logStateLocked(s *Session) {
	var matches, ranges, highlights int
	if s.view != nil {
		matches, ranges, highlights = s.view.Matches, len(s.view.Ranges), len(s.view.Highlights)
	}
	log.Printf("%s: analyze: filter=[%s] error=[%s] matches=%d ranges=%d highlights=%d",
		s.id, s.filter, s.err, matches, ranges, highlights)
}
