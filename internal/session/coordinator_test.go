package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altinukshini/condense/internal/model"
	"github.com/altinukshini/condense/internal/search"
)

type lines []string

func (l lines) LineCount() int            { return len(l) }
func (l lines) LineText(index int) string { return l[index] }

// manualClock fires timers only from Advance, in deadline order.
type manualClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (c *manualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var next *manualTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at > target {
				continue
			}
			if next == nil || t.at < next.at {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		c.now = next.at
		c.mu.Unlock()
		next.f()
	}
}

type scanCall struct {
	pattern string
	at      time.Duration
}

type fakeScanner struct {
	clock *manualClock

	mu         sync.Mutex
	calls      []scanCall
	running    int
	maxRunning int
	gate       chan struct{}
	views      map[string]model.View
	progress   bool
}

func (f *fakeScanner) Validate(pattern string) error {
	if pattern == "(" {
		return errors.New("missing )")
	}
	return nil
}

func (f *fakeScanner) Scan(ctx context.Context, doc model.Document, pattern string, onProgress search.ProgressFunc) model.View {
	f.mu.Lock()
	f.calls = append(f.calls, scanCall{pattern: pattern, at: f.clock.Now()})
	f.running++
	if f.running > f.maxRunning {
		f.maxRunning = f.running
	}
	gate, progress := f.gate, f.progress
	view, ok := f.views[pattern]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.running--
		f.mu.Unlock()
	}()

	if progress {
		onProgress(doc.LineCount()/2, doc.LineCount(), 1)
	}
	if gate != nil {
		<-gate
	}
	if ok {
		return view
	}
	return model.View{
		Ranges:     []model.LineRange{{Start: 0, End: 1}},
		Highlights: []model.HighlightSpan{{Line: 2, StartCol: 0, EndCol: len(pattern)}},
		Matches:    1,
	}
}

func (f *fakeScanner) patterns() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.pattern)
	}
	return out
}

type progressReport struct {
	id, message string
	increment   float64
}

type recordingNotifier struct {
	refresh chan string

	mu       sync.Mutex
	progress []progressReport
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{refresh: make(chan string, 64)}
}

func (n *recordingNotifier) Refresh(id string) {
	n.refresh <- id
}

func (n *recordingNotifier) Progress(id, message string, increment float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.progress = append(n.progress, progressReport{id, message, increment})
}

func (n *recordingNotifier) wait(t *testing.T) string {
	t.Helper()
	select {
	case id := <-n.refresh:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for refresh")
		return ""
	}
}

func (n *recordingNotifier) assertQuiet(t *testing.T) {
	t.Helper()
	select {
	case id := <-n.refresh:
		t.Fatalf("unexpected refresh for %s", id)
	default:
	}
}

type fixture struct {
	clock    *manualClock
	scanner  *fakeScanner
	notifier *recordingNotifier
	coord    *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &manualClock{}
	f := &fixture{
		clock:    clock,
		scanner:  &fakeScanner{clock: clock, views: map[string]model.View{}},
		notifier: newRecordingNotifier(),
	}
	f.coord = New(f.scanner, f.notifier, DefaultDelays()).withClock(clock)
	require.NoError(t, f.coord.Open("doc", lines{"foo", "bar", "baz foo", "qux"}))
	return f
}

func (f *fixture) snapshot(t *testing.T) Snapshot {
	t.Helper()
	snap, err := f.coord.Session("doc")
	require.NoError(t, err)
	return snap
}

func TestCoordinatorDebouncesInput(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.coord.Change("doc", "a"))
	f.clock.Advance(50 * time.Millisecond)
	require.NoError(t, f.coord.Change("doc", "ab"))
	f.clock.Advance(270 * time.Millisecond)
	require.NoError(t, f.coord.Change("doc", "abc"))
	f.clock.Advance(299 * time.Millisecond)
	assert.Empty(t, f.scanner.patterns())

	f.clock.Advance(time.Millisecond)
	assert.Equal(t, "doc", f.notifier.wait(t))

	require.Len(t, f.scanner.calls, 1)
	assert.Equal(t, scanCall{pattern: "abc", at: 620 * time.Millisecond}, f.scanner.calls[0])
	snap := f.snapshot(t)
	assert.Equal(t, "abc", snap.Filter)
	assert.True(t, snap.Active())
	assert.False(t, snap.Busy)
}

func TestCoordinatorQueuesRequestWhileBusy(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.scanner.gate = gate

	require.NoError(t, f.coord.Change("doc", "a"))
	f.clock.Advance(300 * time.Millisecond)

	require.NoError(t, f.coord.Change("doc", "b"))
	f.clock.Advance(300 * time.Millisecond)
	require.Eventually(t, func() bool { return len(f.scanner.patterns()) == 1 }, 2*time.Second, time.Millisecond)

	snap := f.snapshot(t)
	assert.True(t, snap.Busy)
	assert.True(t, snap.Pending)

	gate <- struct{}{}
	f.notifier.wait(t)

	// the queued request is re-armed with no delay
	f.clock.Advance(0)
	gate <- struct{}{}
	f.notifier.wait(t)

	assert.Equal(t, []string{"a", "b"}, f.scanner.patterns())
	assert.Equal(t, 600*time.Millisecond, f.scanner.calls[1].at)
	assert.Equal(t, 1, f.scanner.maxRunning)
	assert.Equal(t, "b", f.snapshot(t).Filter)
}

func TestCoordinatorSupersededScanLeavesPreviousView(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.Activate("doc", "a")
	require.NoError(t, err)
	f.notifier.wait(t)

	gate := make(chan struct{})
	f.scanner.mu.Lock()
	f.scanner.gate = gate
	f.scanner.mu.Unlock()

	require.NoError(t, f.coord.Change("doc", "b"))
	f.clock.Advance(300 * time.Millisecond)
	require.NoError(t, f.coord.Cancel("doc"))
	gate <- struct{}{}
	f.notifier.wait(t)

	snap := f.snapshot(t)
	assert.Equal(t, "a", snap.Filter)
	assert.Empty(t, snap.Error)
	require.NotNil(t, snap.View)
	assert.Equal(t, 1, snap.Matches())
}

func TestCoordinatorNoMatches(t *testing.T) {
	f := newFixture(t)
	f.scanner.views["zzz"] = model.View{}

	_, err := f.coord.Activate("doc", "zzz")
	require.NoError(t, err)
	f.notifier.wait(t)

	snap := f.snapshot(t)
	assert.Equal(t, "zzz", snap.Filter)
	assert.Equal(t, model.MsgNoMatches, snap.Error)
	assert.Nil(t, snap.View)
	assert.NotNil(t, f.coord.Ranges("doc"))
	assert.Empty(t, f.coord.Ranges("doc"))
	assert.Empty(t, f.coord.Actives())
}

func TestCoordinatorEngineError(t *testing.T) {
	f := newFixture(t)
	f.scanner.views["(a+)+"] = model.View{Error: model.MsgTooManyHits}

	_, err := f.coord.Activate("doc", "(a+)+")
	require.NoError(t, err)
	f.notifier.wait(t)

	snap := f.snapshot(t)
	assert.Equal(t, model.MsgTooManyHits, snap.Error)
	assert.Nil(t, snap.View)
}

func TestCoordinatorInvalidPattern(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.Activate("doc", "(")
	require.NoError(t, err)
	f.notifier.wait(t)

	snap := f.snapshot(t)
	assert.Equal(t, model.MsgInvalidPattern, snap.Error)
	assert.Equal(t, model.MsgInvalidPattern, snap.Message())
	assert.Empty(t, f.scanner.patterns())

	require.NoError(t, f.coord.Change("doc", "x"))
	snap = f.snapshot(t)
	assert.True(t, snap.Pending)
	assert.Empty(t, snap.Message())
}

func TestCoordinatorActivateSeedsFromFilter(t *testing.T) {
	f := newFixture(t)

	text, err := f.coord.Activate("doc", "foo")
	require.NoError(t, err)
	assert.Equal(t, "foo", text)
	f.notifier.wait(t)

	text, err = f.coord.Activate("doc", "")
	require.NoError(t, err)
	assert.Equal(t, "foo", text)
	f.notifier.wait(t)

	assert.Equal(t, []string{"foo"}, f.scanner.patterns())
}

func TestCoordinatorStop(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.coord.Accept("doc", "foo"))
	f.notifier.wait(t)
	assert.Equal(t, []string{"doc"}, f.coord.Actives())
	assert.Len(t, f.coord.Highlights("doc"), 1)

	require.NoError(t, f.coord.Change("doc", "bar"))
	require.NoError(t, f.coord.Stop("doc"))
	f.notifier.wait(t)
	f.clock.Advance(time.Second)

	snap := f.snapshot(t)
	assert.Empty(t, snap.Filter)
	assert.Nil(t, snap.View)
	assert.False(t, snap.Pending)
	assert.Equal(t, []string{"foo"}, snap.History)
	assert.Empty(t, f.coord.Actives())
	assert.Empty(t, f.coord.Highlights("doc"))
	assert.Equal(t, []string{"foo"}, f.scanner.patterns())
}

func TestCoordinatorAcceptEmptyStops(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.coord.Accept("doc", "foo"))
	f.notifier.wait(t)
	require.NoError(t, f.coord.Accept("doc", ""))
	f.notifier.wait(t)

	snap := f.snapshot(t)
	assert.Nil(t, snap.View)
	assert.Equal(t, []string{"foo"}, snap.History)
}

func TestCoordinatorAcceptDropsScheduledScan(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.coord.Accept("doc", "foo"))
	f.notifier.wait(t)

	require.NoError(t, f.coord.Change("doc", "fo"))
	require.NoError(t, f.coord.Accept("doc", "foo"))
	f.clock.Advance(time.Second)
	f.notifier.assertQuiet(t)

	assert.Equal(t, []string{"foo"}, f.scanner.patterns())
	assert.Equal(t, []string{"foo"}, f.snapshot(t).History)
}

func TestCoordinatorHistoryNavigation(t *testing.T) {
	f := newFixture(t)
	for _, text := range []string{"x", "y", "x"} {
		require.NoError(t, f.coord.Accept("doc", text))
		f.notifier.wait(t)
	}
	assert.Equal(t, []string{"x", "y"}, f.snapshot(t).History)

	text, err := f.coord.HistoryPrev("doc")
	require.NoError(t, err)
	assert.Equal(t, "x", text)
	assert.False(t, f.snapshot(t).Pending)

	text, _ = f.coord.HistoryPrev("doc")
	assert.Equal(t, "y", text)
	text, _ = f.coord.HistoryPrev("doc")
	assert.Equal(t, "y", text)
	assert.Equal(t, 1, f.snapshot(t).Cursor)
	assert.True(t, f.snapshot(t).Pending)

	f.clock.Advance(599 * time.Millisecond)
	assert.Equal(t, []string{"x", "y", "x"}, f.scanner.patterns())
	f.clock.Advance(time.Millisecond)
	f.notifier.wait(t)
	assert.Equal(t, "y", f.snapshot(t).Filter)

	text, _ = f.coord.HistoryNext("doc")
	assert.Equal(t, "x", text)
	text, _ = f.coord.HistoryNext("doc")
	assert.Equal(t, "", text)
	f.clock.Advance(600 * time.Millisecond)
	f.notifier.wait(t)

	snap := f.snapshot(t)
	assert.Equal(t, -1, snap.Cursor)
	assert.Empty(t, snap.Filter)
	assert.Nil(t, snap.View)
}

func TestCoordinatorProgress(t *testing.T) {
	f := newFixture(t)
	f.scanner.progress = true

	_, err := f.coord.Activate("doc", "foo")
	require.NoError(t, err)
	f.notifier.wait(t)

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	require.Len(t, f.notifier.progress, 1)
	assert.Equal(t, progressReport{"doc", "line 2 - 1 matches found", 50}, f.notifier.progress[0])
}

func TestCoordinatorSessionLifecycle(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.coord.Open("doc", lines{}), ErrSessionExists)
	assert.ErrorIs(t, f.coord.Close("nope"), ErrNoSession)
	assert.ErrorIs(t, f.coord.Change("nope", "x"), ErrNoSession)
	_, err := f.coord.Session("nope")
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Empty(t, f.coord.Ranges("nope"))

	require.NoError(t, f.coord.Open("other", lines{"a"}))
	assert.Equal(t, []string{"doc", "other"}, f.coord.IDs())

	require.NoError(t, f.coord.Change("doc", "foo"))
	require.NoError(t, f.coord.Close("doc"))
	f.clock.Advance(time.Second)
	assert.Empty(t, f.scanner.patterns())
	assert.Equal(t, []string{"other"}, f.coord.IDs())

	require.NoError(t, f.coord.Open("doc", lines{"foo"}))
	assert.Empty(t, f.snapshot(t).History)
}

func TestCoordinatorCloseWhileScanning(t *testing.T) {
	f := newFixture(t)
	gate := make(chan struct{})
	f.scanner.gate = gate

	_, err := f.coord.Activate("doc", "foo")
	require.NoError(t, err)
	require.NoError(t, f.coord.Close("doc"))
	gate <- struct{}{}
	f.coord.scans.Wait()

	f.notifier.assertQuiet(t)
	assert.Empty(t, f.coord.IDs())
}

func TestCoordinatorWithEngine(t *testing.T) {
	n := newRecordingNotifier()
	c := New(search.New(search.DefaultOptions()), n, Delays{Input: 5 * time.Millisecond, History: 5 * time.Millisecond})
	t.Cleanup(c.Shutdown)
	require.NoError(t, c.Open("doc", lines{"foo", "bar", "baz foo", "qux", "foo end"}))

	require.NoError(t, c.Change("doc", "foo"))
	n.wait(t)

	assert.Equal(t, []model.LineRange{{Start: 0, End: 1}, {Start: 2, End: 3}}, c.Ranges("doc"))
	assert.Len(t, c.Highlights("doc"), 3)
	snap, err := c.Session("doc")
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Matches())
}

func TestCoordinatorHistoryBackToFilterDropsPendingScan(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.coord.Accept("doc", "x"))
	f.notifier.wait(t)

	require.NoError(t, f.coord.Change("doc", "xy"))
	text, err := f.coord.HistoryPrev("doc")
	require.NoError(t, err)
	assert.Equal(t, "x", text)
	assert.False(t, f.snapshot(t).Pending)

	f.clock.Advance(time.Second)
	f.notifier.assertQuiet(t)
	assert.Equal(t, []string{"x"}, f.scanner.patterns())
	assert.Equal(t, "x", f.snapshot(t).Filter)
}

func TestCoordinatorHistoryBackToFilterAbortsRunningScan(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.coord.Accept("doc", "x"))
	f.notifier.wait(t)

	gate := make(chan struct{})
	f.scanner.mu.Lock()
	f.scanner.gate = gate
	f.scanner.mu.Unlock()

	require.NoError(t, f.coord.Change("doc", "xy"))
	f.clock.Advance(300 * time.Millisecond)
	require.Eventually(t, func() bool { return len(f.scanner.patterns()) == 2 }, 2*time.Second, time.Millisecond)

	text, err := f.coord.HistoryPrev("doc")
	require.NoError(t, err)
	assert.Equal(t, "x", text)
	gate <- struct{}{}
	f.notifier.wait(t)

	f.clock.Advance(time.Second)
	f.notifier.assertQuiet(t)
	snap := f.snapshot(t)
	assert.Equal(t, "x", snap.Filter)
	assert.NotNil(t, snap.View)
	assert.False(t, snap.Busy)
	assert.Equal(t, []string{"x", "xy"}, f.scanner.patterns())
}

func TestCoordinatorActivateDropsPendingScan(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.coord.Accept("doc", "x"))
	f.notifier.wait(t)

	// typed, then the input was dismissed and reopened
	require.NoError(t, f.coord.Change("doc", "xy"))
	text, err := f.coord.Activate("doc", "")
	require.NoError(t, err)
	assert.Equal(t, "x", text)
	f.notifier.wait(t)

	f.clock.Advance(time.Second)
	f.notifier.assertQuiet(t)
	snap := f.snapshot(t)
	assert.Equal(t, "x", snap.Filter)
	assert.False(t, snap.Pending)
	assert.Equal(t, []string{"x"}, f.scanner.patterns())
}

// gatedLines blocks the first read of line gate until release is closed and
// counts the reads of every line.
type gatedLines struct {
	text    []string
	gate    int
	reached chan struct{}
	release chan struct{}

	mu    sync.Mutex
	reads []int
	held  bool
}

func newGatedLines(text []string, gate int) *gatedLines {
	return &gatedLines{
		text:    text,
		gate:    gate,
		reached: make(chan struct{}),
		release: make(chan struct{}),
		reads:   make([]int, len(text)),
	}
}

func (g *gatedLines) LineCount() int { return len(g.text) }

func (g *gatedLines) LineText(index int) string {
	g.mu.Lock()
	g.reads[index]++
	hold := index == g.gate && !g.held
	if hold {
		g.held = true
	}
	g.mu.Unlock()
	if hold {
		close(g.reached)
		<-g.release
	}
	return g.text[index]
}

func (g *gatedLines) readCounts() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int(nil), g.reads...)
}

func TestCoordinatorEngineAbortsSupersededScan(t *testing.T) {
	text := make([]string, 20)
	for i := range text {
		text[i] = "foo"
	}
	text[12] = "bar"
	doc := newGatedLines(text, 5)

	opts := search.DefaultOptions()
	opts.CheckEvery = 1
	opts.Grace = 0
	opts.Interval = 0
	n := newRecordingNotifier()
	c := New(search.New(opts), n, Delays{Input: 5 * time.Millisecond, History: 5 * time.Millisecond})
	t.Cleanup(c.Shutdown)
	require.NoError(t, c.Open("doc", doc))

	require.NoError(t, c.Change("doc", "foo"))
	select {
	case <-doc.reached:
	case <-time.After(2 * time.Second):
		t.Fatal("scan never started")
	}

	require.NoError(t, c.Change("doc", "bar"))
	close(doc.release)

	require.Eventually(t, func() bool {
		snap, err := c.Session("doc")
		return err == nil && snap.Filter == "bar" && !snap.Busy && !snap.Pending
	}, 2*time.Second, time.Millisecond)

	// the first scan stopped at the next checkpoint: lines past the gate
	// were read by the second scan only
	reads := doc.readCounts()
	for i := 0; i <= 5; i++ {
		assert.Equal(t, 2, reads[i], "line %d", i)
	}
	for i := 6; i < len(reads); i++ {
		assert.Equal(t, 1, reads[i], "line %d", i)
	}

	assert.Equal(t, []model.LineRange{{Start: 0, End: 11}, {Start: 12, End: 19}}, c.Ranges("doc"))
	snap, err := c.Session("doc")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Matches())
	assert.Empty(t, snap.Error)
}

func TestCoordinatorSnapshotViewIsACopy(t *testing.T) {
	f := newFixture(t)
	_, err := f.coord.Activate("doc", "foo")
	require.NoError(t, err)
	f.notifier.wait(t)

	snap := f.snapshot(t)
	require.NotNil(t, snap.View)
	assert.Equal(t, f.coord.Ranges("doc"), snap.View.Ranges)
	assert.Equal(t, f.coord.Highlights("doc"), snap.View.Highlights)

	snap.View.Ranges[0].End = 99
	snap.View.Highlights[0].Line = 99
	assert.Equal(t, []model.LineRange{{Start: 0, End: 1}}, f.coord.Ranges("doc"))
	assert.Equal(t, 2, f.coord.Highlights("doc")[0].Line)
}
