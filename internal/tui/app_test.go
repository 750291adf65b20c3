package tui

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altinukshini/condense/internal/document"
	"github.com/altinukshini/condense/internal/model"
	"github.com/altinukshini/condense/internal/search"
	"github.com/altinukshini/condense/internal/session"
	"github.com/altinukshini/condense/internal/tui/confirm"
	"github.com/altinukshini/condense/internal/ui"
)

var fastDelays = session.Delays{Input: 5 * time.Millisecond, History: 5 * time.Millisecond}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newTestApp(t *testing.T, scanner session.Scanner, opts Options, docs ...document.Source) *App {
	t.Helper()
	bridge := NewBridge()
	coord := session.New(scanner, bridge, fastDelays)
	t.Cleanup(func() {
		coord.Shutdown()
		bridge.Close()
	})
	app := NewApp(coord, bridge, docs, opts)
	m, _ := app.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return m.(*App)
}

func engine() session.Scanner {
	return search.New(search.DefaultOptions())
}

func logDoc(id string) *document.Buffer {
	return document.NewBuffer(id, id+".log", document.Lines{
		"starting", "step one", "ERROR disk full", "retrying", "step two", "ERROR again", "done",
	})
}

func send(app *App, msg tea.Msg) (*App, tea.Cmd) {
	m, cmd := app.Update(msg)
	return m.(*App), cmd
}

// deliver feeds bridge events into app until cond holds.
func deliver(t *testing.T, app *App, cond func(*App) bool) *App {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond(app) {
		msgs := make(chan tea.Msg, 1)
		go func() { msgs <- app.bridge.Wait()() }()
		select {
		case msg := <-msgs:
			app, _ = send(app, msg)
		case <-deadline:
			t.Fatal("condition not met before timeout")
		}
	}
	return app
}

func TestAppCondensesOnAccept(t *testing.T) {
	app := newTestApp(t, engine(), Options{}, logDoc("a"))

	app, cmd := send(app, runes("/"))
	assert.NotNil(t, cmd)
	require.True(t, app.inputOn)

	app, _ = send(app, runes("ERROR"))
	assert.Equal(t, "ERROR", app.input.Value())
	app, _ = send(app, tea.KeyMsg{Type: tea.KeyEnter})
	assert.False(t, app.inputOn)

	app = deliver(t, app, func(a *App) bool { return a.tabs[0].view.Folded() })
	assert.Equal(t, []int{2, 5}, app.tabs[0].view.MatchLines())
	assert.Equal(t, app.coord.Ranges("a"), app.tabs[0].view.Ranges())
	assert.Contains(t, app.status, `"ERROR": 2 matching lines`)
	assert.Contains(t, app.View(), "1/1 condensed")
	assert.Equal(t, []string{"a"}, app.coord.Actives())
}

func TestAppDebouncedTyping(t *testing.T) {
	app := newTestApp(t, engine(), Options{}, logDoc("a"))

	app, _ = send(app, runes("/"))
	app, _ = send(app, runes("step"))

	app = deliver(t, app, func(a *App) bool { return a.tabs[0].view.Folded() })
	assert.True(t, app.inputOn)
	assert.Equal(t, []int{1, 4}, app.tabs[0].view.MatchLines())
}

func TestAppInvalidPatternShowsMessage(t *testing.T) {
	app := newTestApp(t, engine(), Options{}, logDoc("a"))

	app, _ = send(app, runes("/"))
	app, _ = send(app, runes("("))
	app, _ = send(app, tea.KeyMsg{Type: tea.KeyEnter})

	app = deliver(t, app, func(a *App) bool { return a.message != "" })
	assert.Equal(t, model.MsgInvalidPattern, app.message)
	assert.Contains(t, app.status, model.MsgInvalidPattern)
	assert.False(t, app.tabs[0].view.Folded())
}

func TestAppStopClearsView(t *testing.T) {
	app := newTestApp(t, engine(), Options{Filter: "ERROR"}, logDoc("a"))
	app = deliver(t, app, func(a *App) bool { return a.tabs[0].view.Folded() })

	app, _ = send(app, runes("x"))
	app = deliver(t, app, func(a *App) bool { return !a.tabs[0].view.Folded() })
	assert.Empty(t, app.input.Value())
	assert.Equal(t, "Press / to condense", app.status)
	assert.Empty(t, app.coord.Actives())
}

func TestAppHistoryKeys(t *testing.T) {
	app := newTestApp(t, engine(), Options{Filter: "ERROR"}, logDoc("a"))
	app = deliver(t, app, func(a *App) bool { return a.tabs[0].view.Folded() })

	app, _ = send(app, runes("/"))
	assert.Equal(t, "ERROR", app.input.Value())

	app, _ = send(app, tea.KeyMsg{Type: tea.KeyDown})
	assert.Empty(t, app.input.Value())
	app, _ = send(app, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, "ERROR", app.input.Value())

	app, _ = send(app, tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, app.inputOn)
}

func TestAppSwitchesAndClosesDocuments(t *testing.T) {
	app := newTestApp(t, engine(), Options{}, logDoc("a"), logDoc("b"))
	require.Len(t, app.tabs, 2)
	assert.Contains(t, app.View(), "[2] b.log")

	app, _ = send(app, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, 1, app.current)

	app, _ = send(app, runes("w"))
	require.Len(t, app.tabs, 1)
	assert.Equal(t, 0, app.current)
	assert.Equal(t, []string{"a"}, app.coord.IDs())
	assert.Equal(t, "Closed b.log", app.status)
}

func TestAppDuplicateDocument(t *testing.T) {
	app := newTestApp(t, engine(), Options{}, logDoc("a"), logDoc("a"))
	assert.Len(t, app.tabs, 1)
	assert.Contains(t, app.status, "session already open")
}

func TestAppDocumentsLoadedLater(t *testing.T) {
	app := newTestApp(t, engine(), Options{Load: func() tea.Msg { return nil }})
	assert.Equal(t, "Loading job logs...", app.status)
	assert.Contains(t, app.View(), "No documents open")

	app, _ = send(app, ui.DocumentsLoadedMsg{Docs: []document.Source{logDoc("job")}})
	require.Len(t, app.tabs, 1)
	assert.Contains(t, app.status, "Opened 1 documents")
}

// blockingScanner holds every scan until its context ends.
type blockingScanner struct{}

func (blockingScanner) Validate(string) error { return nil }

func (blockingScanner) Scan(ctx context.Context, _ model.Document, _ string, _ search.ProgressFunc) model.View {
	<-ctx.Done()
	return model.View{Error: model.MsgAborted}
}

func TestAppConfirmsClosingBusyDocument(t *testing.T) {
	app := newTestApp(t, blockingScanner{}, Options{Filter: "ERROR"}, logDoc("a"))

	app, _ = send(app, runes("w"))
	require.True(t, app.confirmDialog.IsActive())
	assert.Contains(t, app.View(), "still being scanned")

	app, cmd := send(app, runes("y"))
	require.NotNil(t, cmd)
	result, ok := cmd().(confirm.ResultMsg)
	require.True(t, ok)
	assert.True(t, result.Confirmed)

	app, _ = send(app, result)
	assert.Empty(t, app.tabs)
	assert.Empty(t, app.coord.IDs())
}

func TestAppProgressEvents(t *testing.T) {
	app := newTestApp(t, blockingScanner{}, Options{}, logDoc("a"))

	app, _ = send(app, ui.EventsMsg{
		ui.ScanProgressMsg{ID: "a", Message: "line 3 - 1 matches found", Increment: 40},
		ui.ScanProgressMsg{ID: "a", Message: "line 6 - 2 matches found", Increment: 70},
	})
	assert.Equal(t, float64(100), app.tabs[0].progress)
	assert.Contains(t, app.statusLine(), "line 6 - 2 matches found")

	app, _ = send(app, ui.EventsMsg{ui.SessionRefreshMsg{ID: "a"}})
	assert.Zero(t, app.tabs[0].progress)
	assert.NotContains(t, app.statusLine(), "matches found")
}

func TestAppHelp(t *testing.T) {
	app := newTestApp(t, engine(), Options{}, logDoc("a"))

	app, _ = send(app, runes("?"))
	require.True(t, app.showHelp)
	assert.Contains(t, app.View(), "expand all")

	app, _ = send(app, runes("j"))
	assert.False(t, app.showHelp)
}

func TestAppViewFitsTerminal(t *testing.T) {
	doc := make(document.Lines, 500)
	for i := range doc {
		doc[i] = strings.Repeat("x", 300)
	}
	app := newTestApp(t, engine(), Options{}, document.NewBuffer("big", "big.log", doc))

	lines := strings.Split(app.View(), "\n")
	assert.LessOrEqual(t, len(lines), 30)
}

func TestAppReloadsFollowedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo"), 0o644))
	f, err := document.OpenFile(path)
	require.NoError(t, err)
	fw, err := document.NewFollower(10 * time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { fw.Close() })

	app := newTestApp(t, engine(), Options{Follower: fw}, f)
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree"), 0o644))

	msgs := make(chan tea.Msg, 1)
	go func() { msgs <- app.waitForChange()() }()
	select {
	case msg := <-msgs:
		app, _ = send(app, msg)
	case <-time.After(5 * time.Second):
		t.Fatal("no change delivered")
	}
	assert.Equal(t, "Reloaded app.log", app.status)
	assert.Contains(t, app.View(), "three")
}

func TestBridgeBatchesEvents(t *testing.T) {
	b := NewBridge()
	b.Refresh("a")
	b.Progress("a", "line 1 - 0 matches found", 10)

	msg := b.Wait()()
	assert.Equal(t, ui.EventsMsg{
		ui.SessionRefreshMsg{ID: "a"},
		ui.ScanProgressMsg{ID: "a", Message: "line 1 - 0 matches found", Increment: 10},
	}, msg)

	b.Close()
	b.Refresh("a")
	assert.Nil(t, b.Wait()())
}
