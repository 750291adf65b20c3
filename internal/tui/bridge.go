package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/altinukshini/condense/internal/ui"
)

// Bridge is the coordinator's Notifier inside a Bubble Tea program. Events
// arrive on scan goroutines and are queued without blocking; Wait delivers
// everything queued so far as one ui.EventsMsg.
type Bridge struct {
	mu     sync.Mutex
	queue  []tea.Msg
	closed bool
	signal chan struct{}
	done   chan struct{}
}

func NewBridge() *Bridge {
	return &Bridge{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (b *Bridge) Refresh(id string) {
	b.push(ui.SessionRefreshMsg{ID: id})
}

func (b *Bridge) Progress(id, message string, increment float64) {
	b.push(ui.ScanProgressMsg{ID: id, Message: message, Increment: increment})
}

func (b *Bridge) push(msg tea.Msg) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.queue = append(b.queue, msg)
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// Wait returns a command that blocks until events are queued. The program
// issues it again after handling each delivery.
func (b *Bridge) Wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-b.signal:
		case <-b.done:
			return nil
		}
		b.mu.Lock()
		msgs := b.queue
		b.queue = nil
		b.mu.Unlock()
		return ui.EventsMsg(msgs)
	}
}

// Close drops queued events and releases a pending Wait.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.queue = nil
	close(b.done)
}
