package rpc

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abelbrown/folio/internal/logging"
	"github.com/abelbrown/folio/internal/otel"
)

// reply resolves one pending call.
type reply struct {
	value any
	err   error
}

// Client is the calling side of the channel. Goroutine-safe.
type Client struct {
	conn   Conn
	events *otel.Logger

	mu      sync.Mutex
	nextSeq uint64
	pending map[uint64]chan reply // in-flight table; buffered(1) so late replies never block
	closed  bool
	ops     map[string]bool
	opList  []string

	protocolErrs atomic.Uint64
	done         chan struct{} // closed when readLoop exits
}

// Option configures a Client.
type Option func(*Client)

// WithEvents attaches an event logger. Per-call events are only emitted
// when tracing is enabled; protocol errors always are.
func WithEvents(l *otel.Logger) Option {
	return func(c *Client) { c.events = l }
}

// Dial waits for the processor's init message and returns a ready Client.
// No call can be issued before the handshake completes.
func Dial(ctx context.Context, conn Conn, opts ...Option) (*Client, error) {
	c := &Client{
		conn:    conn,
		pending: make(map[uint64]chan reply),
		ops:     make(map[string]bool),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	msg, err := conn.Recv(ctx)
	if err != nil {
		return nil, fmt.Errorf("rpc: waiting for init: %w", err)
	}
	if msg.Kind != KindInit {
		return nil, &ProtocolError{Seq: msg.Seq, Reason: fmt.Sprintf("expected init, got %q", msg.Kind)}
	}
	names, ok := msg.Value.([]string)
	if !ok {
		return nil, &ProtocolError{Reason: fmt.Sprintf("init carries %T, want []string", msg.Value)}
	}
	for _, name := range names {
		c.ops[name] = true
	}
	c.opList = slices.Sorted(maps.Keys(c.ops))

	logging.Debug("rpc: handshake complete", "operations", len(names))
	go c.readLoop()
	return c, nil
}

// Has reports whether the processor announced op.
func (c *Client) Has(op string) bool {
	return c.ops[op]
}

// Operations returns the announced operation names, sorted.
func (c *Client) Operations() []string {
	return slices.Clone(c.opList)
}

// Pending returns the number of calls awaiting a response.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// ProtocolErrors returns how many malformed or unmatched messages arrived.
func (c *Client) ProtocolErrors() uint64 {
	return c.protocolErrs.Load()
}

// Call issues op and waits for its response.
//
// Byte-slice arguments are handed to the processor without copying; the
// caller gives up ownership. Cancelling ctx abandons the wait, but the
// processor still runs the call to completion and its late response is
// absorbed by the in-flight table.
func (c *Client) Call(ctx context.Context, op string, args ...any) (any, error) {
	if !c.ops[op] {
		return nil, fmt.Errorf("%w: %s", ErrNotAnnounced, op)
	}

	ch := make(chan reply, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.nextSeq++
	seq := c.nextSeq
	c.pending[seq] = ch
	c.mu.Unlock()

	start := time.Now()
	if otel.TraceEnabled() {
		c.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindRPCCall, Comp: "rpc", Op: op, Seq: seq})
	}

	if err := c.conn.Send(ctx, Message{Kind: KindCall, Op: op, Seq: seq, Args: args}); err != nil {
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return nil, fmt.Errorf("rpc: send %s: %w", op, err)
	}

	select {
	case r := <-ch:
		if otel.TraceEnabled() {
			e := otel.Event{Level: otel.LevelDebug, Kind: otel.KindRPCResult, Comp: "rpc", Op: op, Seq: seq, Dur: time.Since(start)}
			if r.err != nil {
				e.Kind = otel.KindRPCError
				e.Err = r.err.Error()
			}
			c.events.Emit(e)
		}
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invoke calls op and asserts the result type. A result of the wrong type
// is a protocol error; a nil result yields the zero value.
func Invoke[T any](ctx context.Context, c *Client, op string, args ...any) (T, error) {
	var zero T
	v, err := c.Call(ctx, op, args...)
	if err != nil || v == nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		pe := &ProtocolError{Reason: fmt.Sprintf("%s returned %T, want %T", op, v, zero)}
		c.protocolViolation(pe)
		return zero, pe
	}
	return t, nil
}

// Close shuts the channel down. Pending calls fail with ErrClosed.
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		msg, err := c.conn.Recv(context.Background())
		if err != nil {
			c.shutdown(err)
			return
		}
		c.dispatch(msg)
	}
}

// dispatch routes one incoming message. It must never take the loop down.
func (c *Client) dispatch(msg Message) {
	defer func() {
		if r := recover(); r != nil {
			c.protocolViolation(&ProtocolError{Seq: msg.Seq, Reason: fmt.Sprintf("handler panic: %v", r)})
		}
	}()

	var rep reply
	switch msg.Kind {
	case KindResult:
		rep.value = msg.Value
	case KindError:
		rerr := msg.Err
		if rerr == nil {
			rerr = &RemoteError{Name: "Error", Message: "processor reported an error without details"}
		}
		rep.err = rerr
	default:
		pe := &ProtocolError{Seq: msg.Seq, Reason: fmt.Sprintf("unexpected message kind %q", msg.Kind)}
		c.protocolViolation(pe)
		rep.err = pe
	}

	c.mu.Lock()
	ch, ok := c.pending[msg.Seq]
	if ok {
		delete(c.pending, msg.Seq)
	}
	c.mu.Unlock()

	if !ok {
		if msg.Kind == KindResult || msg.Kind == KindError {
			c.protocolViolation(&ProtocolError{Seq: msg.Seq, Reason: "response for unknown sequence"})
		}
		return
	}
	ch <- rep
}

func (c *Client) protocolViolation(pe *ProtocolError) {
	c.protocolErrs.Add(1)
	logging.Warn("rpc: protocol violation", "seq", pe.Seq, "reason", pe.Reason)
	c.events.Emit(otel.Event{Level: otel.LevelWarn, Kind: otel.KindRPCProtocol, Comp: "rpc", Seq: pe.Seq, Msg: pe.Reason})
}

// shutdown rejects every pending call once the transport is gone.
func (c *Client) shutdown(cause error) {
	c.mu.Lock()
	c.closed = true
	pending := c.pending
	c.pending = make(map[uint64]chan reply)
	c.mu.Unlock()

	if len(pending) > 0 {
		logging.Info("rpc: channel closed with calls in flight", "pending", len(pending), "cause", cause)
	}
	for _, ch := range pending {
		ch <- reply{err: ErrClosed}
	}
}
