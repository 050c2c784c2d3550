// Package rpc multiplexes typed calls to a background processor over a
// single message channel.
//
// The processor announces its operations in an init message, then executes
// call messages one at a time in arrival order. The client correlates
// responses to calls by sequence number, so several calls may be
// outstanding at once and may complete in any order.
//
//	call   {Op, Seq, Args}
//	result {Seq, Value}
//	error  {Seq, Err{Name, Message, Stack}}
//	init   {Seq: 0, Value: []string operation names}
package rpc

import (
	"errors"
	"fmt"
)

// Kind tags a message.
type Kind string

const (
	KindCall   Kind = "call"
	KindResult Kind = "result"
	KindError  Kind = "error"
	KindInit   Kind = "init"
)

// Message is the only shape that crosses a Conn.
type Message struct {
	Kind  Kind
	Op    string       // call only
	Seq   uint64       // zero for init
	Args  []any        // call only
	Value any          // result, init
	Err   *RemoteError // error only
}

var (
	// ErrClosed is returned for calls on a closed channel and for calls
	// still pending when the channel shuts down.
	ErrClosed = errors.New("rpc: channel closed")

	// ErrNotAnnounced is returned for an operation the processor did not
	// list in its init message.
	ErrNotAnnounced = errors.New("rpc: operation not announced")
)

// RemoteError is a failure reported by the processor. Name carries the
// processor's error category so callers can branch on it.
type RemoteError struct {
	Name    string
	Message string
	Stack   string
}

func (e *RemoteError) Error() string {
	return e.Name + ": " + e.Message
}

// ProtocolError is a malformed or unmatched message. It fails only the call
// it refers to; the channel stays usable.
type ProtocolError struct {
	Seq    uint64
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("rpc: protocol error (seq %d): %s", e.Seq, e.Reason)
}

// Named lets handler errors choose the Name of the RemoteError they become.
type Named interface {
	Name() string
}

// toRemote converts a handler error into its wire form.
func toRemote(err error) *RemoteError {
	var re *RemoteError
	if errors.As(err, &re) {
		return re
	}
	name := "Error"
	var n Named
	if errors.As(err, &n) {
		name = n.Name()
	}
	return &RemoteError{Name: name, Message: err.Error()}
}
