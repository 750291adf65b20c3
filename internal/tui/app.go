package tui

import (
	"fmt"
	"log"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/altinukshini/condense/internal/document"
	"github.com/altinukshini/condense/internal/model"
	"github.com/altinukshini/condense/internal/session"
	"github.com/altinukshini/condense/internal/tui/condensed"
	"github.com/altinukshini/condense/internal/tui/confirm"
	"github.com/altinukshini/condense/internal/ui"
)

const actionCloseDoc = "close-doc"

// tab is one open document with its renderer and the progress of its
// running scan.
type tab struct {
	src      document.Source
	view     condensed.Model
	progress float64 // percent
	scanMsg  string
}

type Options struct {
	Repo     string // owner/repo when job logs are open
	Filter   string // accepted on every document as it opens
	Load     tea.Cmd
	Follower *document.Follower
}

type App struct {
	coord    *session.Coordinator
	bridge   *Bridge
	follower *document.Follower
	load     tea.Cmd
	repo     string
	seed     string

	tabs    []tab
	current int

	// Input surface
	input   textinput.Model
	inputOn bool
	message string // validation message under the input

	progressBar   progress.Model
	help          help.Model
	confirmDialog confirm.Model

	width    int
	height   int
	status   string
	showHelp bool
}

func NewApp(coord *session.Coordinator, bridge *Bridge, docs []document.Source, opts Options) App {
	ti := textinput.New()
	ti.Prompt = "/"
	ti.Placeholder = "regular expression"
	ti.CharLimit = 1024
	ti.SetValue(opts.Filter)

	a := App{
		coord:       coord,
		bridge:      bridge,
		follower:    opts.Follower,
		load:        opts.Load,
		repo:        opts.Repo,
		seed:        opts.Filter,
		input:       ti,
		progressBar: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage(), progress.WithWidth(20)),
		help:        help.New(),
		status:      "Press / to condense",
	}
	if opts.Load != nil {
		a.status = "Loading job logs..."
	}
	for _, d := range docs {
		a.openDocument(d)
	}
	return a
}

func (a App) Init() tea.Cmd {
	cmds := []tea.Cmd{a.bridge.Wait()}
	if a.follower != nil {
		cmds = append(cmds, a.waitForChange())
	}
	if a.load != nil {
		cmds = append(cmds, a.load)
	}
	return tea.Batch(cmds...)
}

func (a App) waitForChange() tea.Cmd {
	changes := a.follower.Changes()
	return func() tea.Msg {
		id, ok := <-changes
		if !ok {
			return nil
		}
		return ui.DocumentChangedMsg{ID: id}
	}
}

// --- Documents ---

func (a *App) openDocument(src document.Source) {
	id := src.ID()
	if err := a.coord.Open(id, src); err != nil {
		a.status = fmt.Sprintf("Error: %v", err)
		return
	}
	t := tab{src: src, view: condensed.New()}
	t.view.SetDocument(src.Title(), src)
	a.tabs = append(a.tabs, t)
	a.propagateSize()

	if f, ok := src.(*document.File); ok && a.follower != nil {
		if err := a.follower.Add(f); err != nil {
			log.Printf("follow %s: %v", f.Path(), err)
			a.status = fmt.Sprintf("Not following %s: %v", f.Title(), err)
		}
	}
	if a.seed != "" {
		if err := a.coord.Accept(id, a.seed); err != nil {
			a.status = fmt.Sprintf("Error: %v", err)
		}
	}
}

func (a *App) closeDocument(id string) {
	i := a.indexOf(id)
	if i < 0 {
		return
	}
	if err := a.coord.Close(id); err != nil {
		a.status = fmt.Sprintf("Error: %v", err)
		return
	}
	title := a.tabs[i].src.Title()
	if f, ok := a.tabs[i].src.(*document.File); ok && a.follower != nil {
		a.follower.Remove(f)
	}
	a.tabs = append(a.tabs[:i], a.tabs[i+1:]...)
	if a.current >= len(a.tabs) {
		a.current = len(a.tabs) - 1
	}
	if a.current < 0 {
		a.current = 0
	}
	a.syncInput()
	if len(a.tabs) == 0 {
		a.status = fmt.Sprintf("Closed %s - no documents left, q to quit", title)
		return
	}
	a.status = fmt.Sprintf("Closed %s", title)
}

func (a App) indexOf(id string) int {
	for i, t := range a.tabs {
		if t.src.ID() == id {
			return i
		}
	}
	return -1
}

func (a App) currentID() string {
	if len(a.tabs) == 0 {
		return ""
	}
	return a.tabs[a.current].src.ID()
}

// syncInput shows the current document's filter in the input.
func (a *App) syncInput() {
	id := a.currentID()
	if id == "" {
		a.input.SetValue("")
		a.message = ""
		return
	}
	snap, err := a.coord.Session(id)
	if err != nil {
		return
	}
	a.input.SetValue(snap.Filter)
	a.message = snap.Message()
}

// refreshStatus describes the current document's session in the status bar.
func (a *App) refreshStatus() {
	id := a.currentID()
	if id == "" {
		return
	}
	snap, err := a.coord.Session(id)
	if err != nil {
		a.status = fmt.Sprintf("Error: %v", err)
		return
	}
	a.message = snap.Message()
	switch {
	case snap.Busy:
		a.status = "Scanning..."
	case a.message != "":
		a.status = fmt.Sprintf("%q: %s", snap.Filter, a.message)
	case snap.Filter == "":
		a.status = "Press / to condense"
	default:
		a.status = fmt.Sprintf("%q: %d matching lines in %d ranges",
			snap.Filter, snap.Matches(), len(a.tabs[a.current].view.Ranges()))
	}
}

// --- Update ---

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// Handle confirm dialog result (arrives AFTER dialog deactivates itself)
	if result, ok := msg.(confirm.ResultMsg); ok {
		if result.Confirmed && result.Action == actionCloseDoc {
			a.closeDocument(result.Target)
		}
		return &a, nil
	}

	if a.confirmDialog.IsActive() {
		var cmd tea.Cmd
		a.confirmDialog, cmd = a.confirmDialog.Update(msg)
		return &a, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.propagateSize()
		return &a, nil

	case ui.EventsMsg:
		for _, ev := range msg {
			a.handleEvent(ev)
		}
		return &a, a.bridge.Wait()

	case ui.DocumentsLoadedMsg:
		if msg.Err != nil {
			a.status = fmt.Sprintf("Error loading documents: %v", msg.Err)
			return &a, nil
		}
		for _, d := range msg.Docs {
			a.openDocument(d)
		}
		if a.seed == "" {
			a.status = fmt.Sprintf("Opened %d documents - press / to condense", len(msg.Docs))
		}
		return &a, nil

	case ui.DocumentChangedMsg:
		if a.follower == nil {
			return &a, nil
		}
		if i := a.indexOf(msg.ID); i >= 0 {
			a.tabs[i].view.Reload()
			if i == a.current {
				a.status = fmt.Sprintf("Reloaded %s", a.tabs[i].src.Title())
			}
		}
		return &a, a.waitForChange()

	case ui.StatusMsg:
		a.status = msg.Text
		return &a, nil

	case tea.KeyMsg:
		if a.showHelp {
			a.showHelp = false
			return &a, nil
		}
		if a.inputOn {
			return a.updateInput(msg)
		}
		return a.updateKeys(msg)
	}

	// Cursor blink and friends
	if a.inputOn {
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		return &a, cmd
	}
	return &a, nil
}

func (a *App) handleEvent(msg tea.Msg) {
	switch msg := msg.(type) {
	case ui.SessionRefreshMsg:
		i := a.indexOf(msg.ID)
		if i < 0 {
			return
		}
		t := &a.tabs[i]
		ranges, highlights := []model.LineRange{}, []model.HighlightSpan{}
		if snap, err := a.coord.Session(msg.ID); err == nil && snap.View != nil {
			ranges, highlights = snap.View.Ranges, snap.View.Highlights
		}
		t.view.SetView(ranges, highlights)
		t.progress, t.scanMsg = 0, ""
		if i == a.current {
			a.refreshStatus()
		}

	case ui.ScanProgressMsg:
		i := a.indexOf(msg.ID)
		if i < 0 {
			return
		}
		t := &a.tabs[i]
		t.progress += msg.Increment
		if t.progress > 100 {
			t.progress = 100
		}
		t.scanMsg = msg.Message
	}
}

// updateInput handles keys while the filter input has focus.
func (a App) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	id := a.currentID()
	switch {
	case msg.String() == "ctrl+c":
		return &a, tea.Quit

	case key.Matches(msg, ui.Keys.Accept):
		text := a.input.Value()
		if err := a.coord.Accept(id, text); err != nil {
			a.status = fmt.Sprintf("Error: %v", err)
		}
		a.hideInput()
		return &a, nil

	case key.Matches(msg, ui.Keys.Dismiss):
		a.hideInput()
		return &a, nil

	case key.Matches(msg, ui.Keys.HistoryPrev):
		if text, err := a.coord.HistoryPrev(id); err == nil {
			a.input.SetValue(text)
			a.input.CursorEnd()
			a.message = ""
		}
		return &a, nil

	case key.Matches(msg, ui.Keys.HistoryNext):
		if text, err := a.coord.HistoryNext(id); err == nil {
			a.input.SetValue(text)
			a.input.CursorEnd()
			a.message = ""
		}
		return &a, nil

	case key.Matches(msg, ui.Keys.CancelScan):
		if err := a.coord.Cancel(id); err == nil {
			a.status = "Scan cancelled"
		}
		return &a, nil
	}

	before := a.input.Value()
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	if text := a.input.Value(); text != before {
		if err := a.coord.Change(id, text); err != nil {
			a.status = fmt.Sprintf("Error: %v", err)
		}
		a.message = ""
	}
	return &a, cmd
}

func (a *App) showInput() {
	a.inputOn = true
	a.input.Focus()
	a.propagateSize()
}

func (a *App) hideInput() {
	a.inputOn = false
	a.input.Blur()
	a.propagateSize()
}

func (a App) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, ui.Keys.Quit):
		return &a, tea.Quit

	case key.Matches(msg, ui.Keys.Help):
		a.showHelp = true
		return &a, nil
	}

	if len(a.tabs) == 0 {
		return &a, nil
	}
	id := a.currentID()

	switch {
	case key.Matches(msg, ui.Keys.Filter):
		text, err := a.coord.Activate(id, "")
		if err != nil {
			a.status = fmt.Sprintf("Error: %v", err)
			return &a, nil
		}
		a.input.SetValue(text)
		a.input.CursorEnd()
		a.showInput()
		return &a, textinput.Blink

	case key.Matches(msg, ui.Keys.Stop):
		if err := a.coord.Stop(id); err == nil {
			a.input.SetValue("")
			a.message = ""
		}
		return &a, nil

	case key.Matches(msg, ui.Keys.CancelScan):
		if err := a.coord.Cancel(id); err == nil {
			a.status = "Scan cancelled"
		}
		return &a, nil

	case key.Matches(msg, ui.Keys.NextDoc):
		a.current = (a.current + 1) % len(a.tabs)
		a.syncInput()
		a.refreshStatus()
		return &a, nil

	case key.Matches(msg, ui.Keys.PrevDoc):
		a.current = (a.current - 1 + len(a.tabs)) % len(a.tabs)
		a.syncInput()
		a.refreshStatus()
		return &a, nil

	case key.Matches(msg, ui.Keys.CloseDoc):
		snap, err := a.coord.Session(id)
		if err == nil && (snap.Busy || snap.Pending) {
			a.confirmDialog = confirm.New("Close document",
				fmt.Sprintf("%s is still being scanned. Close it anyway?", a.tabs[a.current].src.Title()),
				actionCloseDoc, id)
			return &a, nil
		}
		a.closeDocument(id)
		return &a, nil
	}

	var cmd tea.Cmd
	a.tabs[a.current].view, cmd = a.tabs[a.current].view.Update(msg)
	return &a, cmd
}

// contentHeight is what is left of the terminal for the document pane.
//
//	header(1) + tabs(1) + status(1) + pane border(2) [+ input(1)]
func (a App) contentHeight() int {
	h := a.height - 5
	if a.inputOn {
		h--
	}
	if h < 1 {
		h = 1
	}
	return h
}

func (a *App) propagateSize() {
	if a.width == 0 {
		return
	}
	h := a.contentHeight()
	for i := range a.tabs {
		a.tabs[i].view, _ = a.tabs[i].view.Update(
			tea.WindowSizeMsg{Width: a.width - 4, Height: h})
	}
	a.input.Width = a.width / 2
	a.help.Width = a.width / 2
}

// --- View ---

func (a App) View() string {
	header := RenderHeader(a.repo, len(a.coord.Actives()), len(a.tabs), a.width)
	tabs := a.renderTabs()

	contentH := a.contentHeight()
	pane := ui.StylePaneFocused.Width(a.width - 2).Height(contentH)
	var content string
	switch {
	case a.showHelp:
		content = a.renderHelp()
	case a.confirmDialog.IsActive():
		content = a.confirmDialog.View()
	case len(a.tabs) == 0:
		content = pane.Render("\n  No documents open")
	default:
		content = pane.Render(a.tabs[a.current].view.View())
	}

	// Hard clamp: ensure content never overflows the terminal.
	maxContentLines := contentH + 2
	if maxContentLines > 0 {
		lines := strings.Split(content, "\n")
		if len(lines) > maxContentLines {
			lines = lines[:maxContentLines]
			content = strings.Join(lines, "\n")
		}
	}

	parts := []string{header, tabs, content}
	if a.inputOn {
		parts = append(parts, a.renderInput())
	}
	parts = append(parts, RenderStatusBar(a.statusLine(), a.contextHints(), a.width))
	return strings.Join(parts, "\n")
}

func (a App) renderInput() string {
	line := "  " + a.input.View()
	if a.message != "" {
		line += "  " + ui.StyleFailure.Render(a.message)
	}
	return line
}

func (a App) statusLine() string {
	if len(a.tabs) == 0 {
		return a.status
	}
	t := a.tabs[a.current]
	if t.scanMsg != "" {
		return a.progressBar.ViewAs(t.progress/100) + " " + t.scanMsg
	}
	return a.status
}

func (a App) renderTabs() string {
	tabStyle := lipgloss.NewStyle().Padding(0, 2)
	activeTab := tabStyle.Bold(true).Foreground(ui.ColorPrimary)
	inactiveTab := tabStyle.Foreground(ui.ColorMuted)

	parts := make([]string, 0, len(a.tabs))
	for i, t := range a.tabs {
		label := fmt.Sprintf("[%d] %s", i+1, t.src.Title())
		style := inactiveTab
		if jl, ok := t.src.(*document.JobLog); ok {
			state := string(jl.Job.Conclusion)
			if state == "" {
				state = string(jl.Job.Status)
			}
			if icon := ui.StatusIcon(state); icon != "" {
				label = icon + " " + label
			}
			style = tabStyle.Foreground(ui.ConclusionStyle(state).GetForeground())
		}
		if i == a.current {
			style = activeTab
		}
		parts = append(parts, style.Render(label))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (a App) contextHints() string {
	if a.confirmDialog.IsActive() {
		return "y/n:confirm  esc:cancel"
	}
	if a.inputOn {
		return a.help.ShortHelpView(ui.Keys.InputKeys())
	}
	return a.help.ShortHelpView(ui.Keys.ShortHelp())
}

func (a App) renderHelp() string {
	bold := lipgloss.NewStyle().Bold(true)

	var b strings.Builder
	b.WriteString("\n" + bold.Render("  Keys") + "\n\n")
	full := a.help
	full.Width = a.width - 4
	full.ShowAll = true
	b.WriteString(full.View(ui.Keys))
	b.WriteString("\n\n" + lipgloss.NewStyle().Foreground(ui.ColorMuted).Render("  Press any key to close") + "\n")

	style := ui.StylePaneFocused.Width(a.width - 2).Height(a.contentHeight())
	return style.Render(b.String())
}
