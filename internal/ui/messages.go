package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/altinukshini/condense/internal/document"
)

// Coordinator events
type SessionRefreshMsg struct {
	ID string
}

type ScanProgressMsg struct {
	ID        string
	Message   string
	Increment float64 // percent of the document scanned since the last report
}

// EventsMsg carries coordinator events queued since the last delivery.
type EventsMsg []tea.Msg

// Document messages
type DocumentsLoadedMsg struct {
	Docs []document.Source
	Err  error
}

// DocumentChangedMsg reports a followed file that was reloaded.
type DocumentChangedMsg struct {
	ID string
}

type StatusMsg struct {
	Text string
}
