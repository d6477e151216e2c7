package app

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/dkeye/roomview/internal/core"
	"github.com/gammazero/deque"
	"github.com/rs/zerolog/log"
)

// Mailbox runs posted closures one at a time, in order, on its own
// goroutine. Posting never blocks.
type Mailbox struct {
	mu     sync.Mutex
	queue  deque.Deque[func()]
	wake   chan struct{}
	closed bool
	done   chan struct{}
}

func NewMailbox() *Mailbox {
	m := &Mailbox{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	m.queue.SetMinCapacity(5)
	go m.run()
	return m
}

// Post enqueues fn. Returns false once the mailbox is closed.
func (m *Mailbox) Post(fn func()) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue.PushBack(fn)
	m.mu.Unlock()
	m.signal()
	return true
}

// Do posts fn and waits for it to finish. Must not be called from inside
// the mailbox goroutine.
func (m *Mailbox) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !m.Post(func() {
		defer close(finished)
		fn()
	}) {
		return core.ErrSessionClosed
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work. Already queued closures still run.
func (m *Mailbox) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.signal()
}

// Done is closed when the loop has drained and exited.
func (m *Mailbox) Done() <-chan struct{} { return m.done }

func (m *Mailbox) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Mailbox) run() {
	defer close(m.done)
	for {
		m.mu.Lock()
		if m.queue.Len() == 0 {
			closed := m.closed
			m.mu.Unlock()
			if closed {
				return
			}
			<-m.wake
			continue
		}
		fn := m.queue.PopFront()
		m.mu.Unlock()
		m.exec(fn)
	}
}

func (m *Mailbox) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "app.mailbox").Interface("panic", r).Bytes("stack", debug.Stack()).Msg("handler panicked")
		}
	}()
	fn()
}
