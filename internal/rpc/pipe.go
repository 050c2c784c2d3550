package rpc

import (
	"context"
	"sync"
)

// Conn is a bidirectional message transport.
type Conn interface {
	Send(ctx context.Context, m Message) error
	Recv(ctx context.Context) (Message, error)
	Close() error
}

// pipeBuffer is how many messages may sit in each direction before Send blocks.
const pipeBuffer = 64

// pipeShared is the state both ends of a pipe observe.
type pipeShared struct {
	done chan struct{}
	once sync.Once
}

type pipeEnd struct {
	in     <-chan Message
	out    chan<- Message
	shared *pipeShared
}

// Pipe returns two connected in-process ends. Messages are handed over by
// reference: byte-slice arguments move to the receiving goroutine without a
// copy, so senders must not touch them afterwards. Closing either end closes
// both.
func Pipe() (Conn, Conn) {
	a := make(chan Message, pipeBuffer)
	b := make(chan Message, pipeBuffer)
	shared := &pipeShared{done: make(chan struct{})}
	return &pipeEnd{in: a, out: b, shared: shared}, &pipeEnd{in: b, out: a, shared: shared}
}

func (p *pipeEnd) Send(ctx context.Context, m Message) error {
	select {
	case <-p.shared.done:
		return ErrClosed
	default:
	}
	select {
	case p.out <- m:
		return nil
	case <-p.shared.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Recv(ctx context.Context) (Message, error) {
	select {
	case m := <-p.in:
		return m, nil
	case <-p.shared.done:
		return Message{}, ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.shared.once.Do(func() { close(p.shared.done) })
	return nil
}
