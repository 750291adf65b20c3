package ui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	Quit        key.Binding
	Help        key.Binding
	Filter      key.Binding
	Accept      key.Binding
	Dismiss     key.Binding
	HistoryPrev key.Binding
	HistoryNext key.Binding
	Stop        key.Binding
	CancelScan  key.Binding
	ExpandAll   key.Binding
	CollapseAll key.Binding
	NextMatch   key.Binding
	PrevMatch   key.Binding
	NextDoc     key.Binding
	PrevDoc     key.Binding
	CloseDoc    key.Binding
	Top         key.Binding
	Bottom      key.Binding
	PageUp      key.Binding
	PageDown    key.Binding
}

var Keys = KeyMap{
	Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Help:        key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Filter:      key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "condense")),
	Accept:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "accept")),
	Dismiss:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "hide input")),
	HistoryPrev: key.NewBinding(key.WithKeys("up", "ctrl+p"), key.WithHelp("up", "older filter")),
	HistoryNext: key.NewBinding(key.WithKeys("down", "ctrl+n"), key.WithHelp("down", "newer filter")),
	Stop:        key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop condensing")),
	CancelScan:  key.NewBinding(key.WithKeys("ctrl+x"), key.WithHelp("ctrl+x", "cancel scan")),
	ExpandAll:   key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "expand all")),
	CollapseAll: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "collapse all")),
	NextMatch:   key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next match")),
	PrevMatch:   key.NewBinding(key.WithKeys("N"), key.WithHelp("N", "prev match")),
	NextDoc:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next document")),
	PrevDoc:     key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("S-tab", "prev document")),
	CloseDoc:    key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "close document")),
	Top:         key.NewBinding(key.WithKeys("g", "home"), key.WithHelp("g", "top")),
	Bottom:      key.NewBinding(key.WithKeys("G", "end"), key.WithHelp("G", "bottom")),
	PageUp:      key.NewBinding(key.WithKeys("pgup", "ctrl+u"), key.WithHelp("pgup", "page up")),
	PageDown:    key.NewBinding(key.WithKeys("pgdown", "ctrl+d"), key.WithHelp("pgdn", "page down")),
}

// ShortHelp and FullHelp make KeyMap a help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Filter, k.NextMatch, k.PrevMatch, k.ExpandAll, k.CollapseAll, k.NextDoc, k.Help, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Filter, k.Accept, k.Dismiss, k.HistoryPrev, k.HistoryNext, k.Stop, k.CancelScan},
		{k.NextMatch, k.PrevMatch, k.ExpandAll, k.CollapseAll, k.Top, k.Bottom, k.PageUp, k.PageDown},
		{k.NextDoc, k.PrevDoc, k.CloseDoc, k.Help, k.Quit},
	}
}

// InputKeys is the subset shown while the filter input has focus.
func (k KeyMap) InputKeys() []key.Binding {
	return []key.Binding{k.Accept, k.Dismiss, k.HistoryPrev, k.HistoryNext, k.CancelScan}
}
