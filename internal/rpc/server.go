package rpc

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/abelbrown/folio/internal/logging"
)

// Handler executes one operation. args are the call's arguments in order.
type Handler func(ctx context.Context, args []any) (any, error)

// Server is the processor side of the channel. It runs each call to
// completion before reading the next, so operations never overlap.
type Server struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewServer creates a Server with no operations.
func NewServer() *Server {
	return &Server{handlers: make(map[string]Handler)}
}

// Handle registers h for op, replacing any previous handler.
func (s *Server) Handle(op string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[op] = h
}

// Operations returns the registered operation names, sorted.
func (s *Server) Operations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.handlers))
}

// Serve announces the operations and then answers calls in arrival order
// until ctx is done or conn closes. A closed conn is a normal exit.
func (s *Server) Serve(ctx context.Context, conn Conn) error {
	if err := conn.Send(ctx, Message{Kind: KindInit, Value: s.Operations()}); err != nil {
		return fmt.Errorf("rpc: send init: %w", err)
	}

	for {
		msg, err := conn.Recv(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("rpc: recv: %w", err)
		}

		resp := s.execute(ctx, msg)
		if err := conn.Send(ctx, resp); err != nil {
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("rpc: send %s response: %w", msg.Op, err)
		}
	}
}

// execute runs one call and builds its response. Handler panics become
// error responses; the server keeps serving.
func (s *Server) execute(ctx context.Context, msg Message) (resp Message) {
	resp = Message{Kind: KindResult, Seq: msg.Seq}

	if msg.Kind != KindCall {
		resp.Kind = KindError
		resp.Err = &RemoteError{Name: "ProtocolError", Message: fmt.Sprintf("invalid message: %s", msg.Kind)}
		return resp
	}

	s.mu.RLock()
	h, ok := s.handlers[msg.Op]
	s.mu.RUnlock()
	if !ok {
		resp.Kind = KindError
		resp.Err = &RemoteError{Name: "UnknownOperation", Message: msg.Op}
		return resp
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Error("rpc: handler panicked", "op", msg.Op, "seq", msg.Seq, "panic", r)
			resp = Message{
				Kind: KindError,
				Seq:  msg.Seq,
				Err:  &RemoteError{Name: "panic", Message: fmt.Sprint(r), Stack: string(debug.Stack())},
			}
		}
	}()

	value, err := h(ctx, msg.Args)
	if err != nil {
		resp.Kind = KindError
		resp.Err = toRemote(err)
		return resp
	}
	resp.Value = value
	return resp
}

// ArgError reports a call argument of the wrong type or a missing one.
type ArgError struct {
	Index int
	Want  string
	Got   string
}

func (e *ArgError) Error() string {
	return fmt.Sprintf("argument %d: got %s, want %s", e.Index, e.Got, e.Want)
}

// Name implements Named.
func (e *ArgError) Name() string { return "ArgumentError" }

// Arg extracts args[i] as T.
func Arg[T any](args []any, i int) (T, error) {
	var zero T
	if i >= len(args) {
		return zero, &ArgError{Index: i, Want: fmt.Sprintf("%T", zero), Got: "nothing"}
	}
	v, ok := args[i].(T)
	if !ok {
		return zero, &ArgError{Index: i, Want: fmt.Sprintf("%T", zero), Got: fmt.Sprintf("%T", args[i])}
	}
	return v, nil
}
