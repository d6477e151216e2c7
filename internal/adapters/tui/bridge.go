// Package tui is the terminal front end: a bubbletea program that draws
// the session and forwards key presses to it.
package tui

import (
	"errors"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dkeye/roomview/internal/core"
	"github.com/gammazero/deque"
)

var ErrNotAttached = errors.New("renderer not attached to a program")

type renderMsg struct {
	snap   core.RosterSnapshot
	layout core.LayoutState
}

type indicatorsMsg struct {
	snap core.RosterSnapshot
}

type clearMsg struct{}

type connMsg struct {
	tr core.Transition
}

type toastMsg struct {
	text string
}

type bannerMsg struct {
	text string
}

// Bridge implements core.Renderer and core.Notifier by queueing messages for
// the running program. A forwarder goroutine feeds the queue to the program in
// order, so callers return even while the program is busy.
type Bridge struct {
	mu     sync.Mutex
	send   func(tea.Msg)
	queue  deque.Deque[tea.Msg]
	wake   chan struct{}
	done   chan struct{}
	closed bool
}

func NewBridge() *Bridge {
	return &Bridge{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Attach routes everything to p. Call before p.Run.
func (b *Bridge) Attach(p *tea.Program) {
	b.AttachFunc(p.Send)
}

// AttachFunc sets the delivery function and starts the forwarder on first use.
func (b *Bridge) AttachFunc(send func(tea.Msg)) {
	b.mu.Lock()
	start := b.send == nil && !b.closed
	b.send = send
	b.mu.Unlock()
	if start {
		go b.forward()
	}
}

// Close stops the forwarder. Queued messages are dropped.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.queue.Clear()
	close(b.done)
}

func (b *Bridge) post(msg tea.Msg) error {
	b.mu.Lock()
	if b.send == nil || b.closed {
		b.mu.Unlock()
		return ErrNotAttached
	}
	b.queue.PushBack(msg)
	b.mu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
	return nil
}

func (b *Bridge) forward() {
	for {
		select {
		case <-b.wake:
		case <-b.done:
			return
		}
		for {
			b.mu.Lock()
			if b.closed || b.queue.Len() == 0 {
				b.mu.Unlock()
				break
			}
			msg := b.queue.PopFront()
			send := b.send
			b.mu.Unlock()
			send(msg)
		}
	}
}

func (b *Bridge) Render(snap core.RosterSnapshot, layout core.LayoutState) error {
	return b.post(renderMsg{snap: snap, layout: layout})
}

func (b *Bridge) RenderIndicatorsOnly(snap core.RosterSnapshot) error {
	return b.post(indicatorsMsg{snap: snap})
}

func (b *Bridge) RemoveAll() error {
	return b.post(clearMsg{})
}

func (b *Bridge) ConnectionStatus(tr core.Transition) {
	_ = b.post(connMsg{tr: tr})
}

func (b *Bridge) Toast(msg string) {
	_ = b.post(toastMsg{text: msg})
}

func (b *Bridge) PermissionWarning(msg string) {
	_ = b.post(bannerMsg{text: msg})
}
