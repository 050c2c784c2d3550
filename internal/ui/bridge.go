package ui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Bridge turns controller callbacks, which arrive on arbitrary goroutines,
// into program messages. It also answers password prompts through the UI.
//
// Controller calls made from inside Update would deadlock on a direct
// Program.Send, so messages are queued and delivered in order by a pump
// goroutine. A PageChanged or ViewChanged equal to one still waiting in the
// queue is dropped, since both only ask for a redraw. Messages
// sent before a program is attached are dropped.
type Bridge struct {
	mu     sync.Mutex
	send   func(tea.Msg)
	queue  []tea.Msg
	wake   chan struct{}
	done   chan struct{}
	closed bool
}

// NewBridge creates a detached Bridge.
func NewBridge() *Bridge {
	return &Bridge{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Attach routes messages to p.
func (b *Bridge) Attach(p *tea.Program) {
	b.SetSend(p.Send)
}

// SetSend routes messages to fn and starts delivery.
func (b *Bridge) SetSend(fn func(tea.Msg)) {
	b.mu.Lock()
	start := b.send == nil && !b.closed
	b.send = fn
	b.mu.Unlock()
	if start {
		go b.pump()
	}
}

// Close stops delivery. Queued messages are discarded.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		b.queue = nil
		close(b.done)
	}
}

// Send queues msg for delivery if a program is attached.
func (b *Bridge) Send(msg tea.Msg) {
	b.mu.Lock()
	if b.send == nil || b.closed {
		b.mu.Unlock()
		return
	}
	if b.waiting(msg) {
		b.mu.Unlock()
		return
	}
	b.queue = append(b.queue, msg)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// waiting reports whether msg only triggers a redraw and an equal message
// is already queued. Caller holds b.mu.
func (b *Bridge) waiting(msg tea.Msg) bool {
	switch msg.(type) {
	case PageChanged, ViewChanged:
	default:
		return false
	}
	for _, q := range b.queue {
		if q == msg {
			return true
		}
	}
	return false
}

func (b *Bridge) pump() {
	for {
		select {
		case <-b.done:
			return
		case <-b.wake:
		}
		for {
			b.mu.Lock()
			if len(b.queue) == 0 || b.closed {
				b.mu.Unlock()
				break
			}
			msg := b.queue[0]
			b.queue = b.queue[1:]
			send := b.send
			b.mu.Unlock()
			send(msg)
		}
	}
}

func (b *Bridge) PageChanged(page int)    { b.Send(PageChanged{Page: page}) }
func (b *Bridge) ViewChanged()            { b.Send(ViewChanged{}) }
func (b *Bridge) DocumentError(err error) { b.Send(DocError{Err: err}) }
func (b *Bridge) SearchStatus(msg string) { b.Send(SearchStatus{Msg: msg}) }

// Password asks the UI for a password and waits for the answer.
func (b *Bridge) Password(ctx context.Context, retry bool) (string, bool) {
	b.mu.Lock()
	attached := b.send != nil && !b.closed
	b.mu.Unlock()
	if !attached {
		return "", false
	}

	reply := make(chan PasswordReply, 1)
	b.Send(PasswordRequest{Retry: retry, Reply: reply})
	select {
	case r := <-reply:
		return r.Password, r.OK
	case <-ctx.Done():
		return "", false
	case <-b.done:
		return "", false
	}
}
