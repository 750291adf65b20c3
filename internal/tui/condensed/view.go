// Package condensed renders a document folded down to the ranges of a
// condense scan, with every match occurrence highlighted.
package condensed

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/altinukshini/condense/internal/model"
	"github.com/altinukshini/condense/internal/search"
	"github.com/altinukshini/condense/internal/ui"
)

// row is one rendered line: a document line, or a fold marker standing in
// for hidden lines.
type row struct {
	index  int // document line, -1 for a fold marker
	hidden int
}

type Model struct {
	viewport viewport.Model
	doc      model.Document
	title    string
	width    int
	height   int
	ready    bool

	ranges     []model.LineRange
	highlights map[int][]model.HighlightSpan
	matchLines []int // document lines with highlights, ascending
	matchIndex int   // -1 = none
	expanded   bool

	rows   []row
	rowOf  map[int]int // document line -> row
	gutter int
}

func New() Model {
	return Model{matchIndex: -1}
}

// SetDocument shows doc unfolded and forgets any previous result.
func (m *Model) SetDocument(title string, doc model.Document) {
	m.title = title
	m.doc = doc
	m.ranges = nil
	m.highlights = nil
	m.matchLines = nil
	m.matchIndex = -1
	m.expanded = false
	m.refresh()
	if m.ready {
		m.viewport.GotoTop()
	}
}

// SetView replaces the folding ranges and highlights. An empty ranges slice
// clears the previous result.
func (m *Model) SetView(ranges []model.LineRange, highlights []model.HighlightSpan) {
	m.ranges = ranges
	m.highlights = make(map[int][]model.HighlightSpan)
	for _, h := range highlights {
		m.highlights[h.Line] = append(m.highlights[h.Line], h)
	}
	m.matchLines = make([]int, 0, len(m.highlights))
	for line := range m.highlights {
		m.matchLines = append(m.matchLines, line)
	}
	sort.Ints(m.matchLines)
	m.matchIndex = -1
	m.expanded = false
	m.refresh()
	if m.ready {
		m.viewport.GotoTop()
	}
}

// Reload re-renders after the document changed underneath, keeping the
// scroll position. A viewport at the bottom stays at the bottom.
func (m *Model) Reload() {
	if !m.ready {
		m.refresh()
		return
	}
	wasAtBottom := m.viewport.AtBottom()
	prevOffset := m.viewport.YOffset
	m.refresh()
	if wasAtBottom {
		m.viewport.GotoBottom()
		return
	}
	maxOffset := m.viewport.TotalLineCount() - m.viewport.VisibleLineCount()
	if maxOffset < 0 {
		maxOffset = 0
	}
	if prevOffset > maxOffset {
		m.viewport.GotoBottom()
	} else {
		m.viewport.SetYOffset(prevOffset)
	}
}

func (m *Model) ExpandAll() {
	m.expanded = true
	m.refresh()
	m.scrollToMatch()
}

func (m *Model) CollapseAll() {
	m.expanded = false
	m.refresh()
	m.scrollToMatch()
}

// Folded reports whether hidden lines are currently collapsed.
func (m Model) Folded() bool {
	return len(m.ranges) > 0 && !m.expanded
}

func (m Model) Ranges() []model.LineRange {
	return m.ranges
}

// MatchLines returns the document lines holding highlighted matches.
func (m Model) MatchLines() []int {
	return m.matchLines
}

// CurrentMatch returns the document line n/N last moved to, or -1.
func (m Model) CurrentMatch() int {
	if m.matchIndex < 0 || m.matchIndex >= len(m.matchLines) {
		return -1
	}
	return m.matchLines[m.matchIndex]
}

// YOffset is the first visible row.
func (m Model) YOffset() int {
	return m.viewport.YOffset
}

func (m *Model) NextMatch() {
	if len(m.matchLines) == 0 {
		return
	}
	m.matchIndex = (m.matchIndex + 1) % len(m.matchLines)
	m.refresh()
	m.scrollToMatch()
}

func (m *Model) PrevMatch() {
	if len(m.matchLines) == 0 {
		return
	}
	if m.matchIndex < 0 {
		m.matchIndex = 0
	}
	m.matchIndex = (m.matchIndex - 1 + len(m.matchLines)) % len(m.matchLines)
	m.refresh()
	m.scrollToMatch()
}

func (m *Model) scrollToMatch() {
	if !m.ready {
		return
	}
	if r, ok := m.rowOf[m.CurrentMatch()]; ok {
		m.viewport.SetYOffset(r)
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, ui.Keys.NextMatch):
			m.NextMatch()
			return m, nil
		case key.Matches(msg, ui.Keys.PrevMatch):
			m.PrevMatch()
			return m, nil
		case key.Matches(msg, ui.Keys.ExpandAll):
			m.ExpandAll()
			return m, nil
		case key.Matches(msg, ui.Keys.CollapseAll):
			m.CollapseAll()
			return m, nil
		case key.Matches(msg, ui.Keys.Top):
			m.viewport.GotoTop()
			return m, nil
		case key.Matches(msg, ui.Keys.Bottom):
			m.viewport.GotoBottom()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		h := msg.Height - 1
		if h < 1 {
			h = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, h)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = h
		}
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// refresh rebuilds the row layout and the viewport content.
func (m *Model) refresh() {
	m.rows, m.rowOf = m.layout()
	m.gutter = 1
	if m.doc != nil {
		m.gutter = len(strconv.Itoa(m.doc.LineCount()))
	}
	if !m.ready {
		return
	}
	lines := make([]string, len(m.rows))
	for i, r := range m.rows {
		lines[i] = m.renderRow(r)
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
}

// layout lays out the document. Each folded range keeps its first line
// visible followed by a marker for the rest; lines outside every range show
// as they are.
func (m Model) layout() ([]row, map[int]int) {
	if m.doc == nil {
		return nil, nil
	}
	n := m.doc.LineCount()
	rows := make([]row, 0, n)
	rowOf := make(map[int]int)
	add := func(i int) {
		rowOf[i] = len(rows)
		rows = append(rows, row{index: i})
	}
	if !m.Folded() {
		for i := 0; i < n; i++ {
			add(i)
		}
		return rows, rowOf
	}

	next := 0
	for _, r := range m.ranges {
		// ranges from before a reload may reach past the end
		if r.Start >= n {
			break
		}
		for ; next < r.Start; next++ {
			add(next)
		}
		add(r.Start)
		end := r.End
		if end >= n {
			end = n - 1
		}
		if hidden := (model.LineRange{Start: r.Start, End: end}).Len() - 1; hidden > 0 {
			rows = append(rows, row{index: -1, hidden: hidden})
		}
		next = end + 1
	}
	for ; next < n; next++ {
		add(next)
	}
	return rows, rowOf
}

func (m Model) renderRow(r row) string {
	if r.index < 0 {
		label := fmt.Sprintf("··· %d lines", r.hidden)
		if r.hidden == 1 {
			label = "··· 1 line"
		}
		return strings.Repeat(" ", m.gutter+1) + ui.StyleFold.Render(label)
	}
	num := ui.StyleGutter.Render(fmt.Sprintf("%*d ", m.gutter, r.index+1))
	return num + m.renderLine(r.index, m.width-m.gutter-1)
}

// renderLine truncates a document line to width cells and styles its match
// spans. Spans are UTF-16 columns.
func (m Model) renderLine(index, width int) string {
	text := m.doc.LineText(index)
	visible, tail := text, ""
	if width > 1 && runewidth.StringWidth(text) > width {
		visible = runewidth.Truncate(text, width-1, "")
		tail = "…"
	}

	spans := m.highlights[index]
	if len(spans) == 0 {
		return visible + tail
	}
	style := ui.StyleMatch
	if index == m.CurrentMatch() {
		style = ui.StyleCurrentMatch
	}

	var b strings.Builder
	pos := 0
	for _, sp := range spans {
		start := search.ByteOffset(text, sp.StartCol)
		end := search.ByteOffset(text, sp.EndCol)
		if start >= len(visible) {
			break
		}
		if end > len(visible) {
			end = len(visible)
		}
		if start < pos || end <= start {
			continue
		}
		b.WriteString(visible[pos:start])
		b.WriteString(style.Render(visible[start:end]))
		pos = end
	}
	b.WriteString(visible[pos:])
	b.WriteString(tail)
	return b.String()
}

func (m Model) View() string {
	if m.doc == nil {
		return "\n  No document"
	}

	headerParts := fmt.Sprintf(" %s  %3.f%%", m.title, m.viewport.ScrollPercent()*100)
	switch {
	case len(m.ranges) == 0:
	case m.expanded:
		headerParts += fmt.Sprintf("  [expanded, %d ranges]", len(m.ranges))
	default:
		headerParts += fmt.Sprintf("  [condensed, %d ranges]", len(m.ranges))
	}
	if len(m.matchLines) > 0 {
		if m.matchIndex >= 0 {
			headerParts += fmt.Sprintf("  [%d/%d]", m.matchIndex+1, len(m.matchLines))
		} else {
			headerParts += fmt.Sprintf("  [%d match lines]", len(m.matchLines))
		}
	}
	header := lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.Color("#F9FAFB")).
		Render(headerParts)

	return header + "\n" + m.viewport.View()
}
