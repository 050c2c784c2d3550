// Package otel provides structured observability for folio.
//
// Events are typed structs serialized as JSONL lines. The Logger writes
// events asynchronously via a buffered channel and background drain goroutine.
// An optional RingBuffer keeps recent events in memory for the debug overlay.
package otel

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EventKind identifies the category of an observability event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// RPC channel events
	KindRPCCall     EventKind = "rpc.call"
	KindRPCResult   EventKind = "rpc.result"
	KindRPCError    EventKind = "rpc.error"
	KindRPCProtocol EventKind = "rpc.protocol"

	// Page unit events
	KindPageLoad        EventKind = "page.load"
	KindPageLoadError   EventKind = "page.load_error"
	KindPageRender      EventKind = "page.render"
	KindPageStale       EventKind = "page.stale"
	KindPageRenderError EventKind = "page.render_error"
	KindPageSearch      EventKind = "page.search"

	// Viewport events
	KindViewRefresh EventKind = "view.refresh"

	// Document events
	KindDocOpen  EventKind = "doc.open"
	KindDocClose EventKind = "doc.close"
	KindDocError EventKind = "doc.error"

	// Search traversal events
	KindSearchStart EventKind = "search.start"
	KindSearchHit   EventKind = "search.hit"
	KindSearchMiss  EventKind = "search.miss"
	KindSearchAbort EventKind = "search.abort"

	// System events
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
	KindError    EventKind = "sys.error"
)

// Event is the universal observability record. Every field except Kind and
// Time is optional. Serialized as a single JSONL line.
type Event struct {
	Time      time.Time      `json:"t"`
	Level     Level          `json:"level,omitempty"`
	Kind      EventKind      `json:"kind"`
	Comp      string         `json:"comp,omitempty"`       // component: "rpc", "page", "view", "doc", "ui"
	SessionID string         `json:"session_id,omitempty"` // random hex, same for entire app run
	Op        string         `json:"op,omitempty"`         // processor operation name
	Seq       uint64         `json:"seq,omitempty"`        // rpc sequence number
	Page      *int           `json:"page,omitempty"`       // zero-based page; pointer so page 0 survives omitempty
	Zoom      int            `json:"zoom,omitempty"`
	Rotation  int            `json:"rotation,omitempty"`
	Needle    string         `json:"needle,omitempty"`
	Dur       time.Duration  `json:"-"`                // not serialized directly
	DurMs     float64        `json:"dur_ms,omitempty"` // computed from Dur at marshal time
	Count     int            `json:"count,omitempty"`
	Err       string         `json:"err,omitempty"`
	Msg       string         `json:"msg,omitempty"`   // free text
	Extra     map[string]any `json:"extra,omitempty"` // escape hatch for unusual fields
}

// PageNum returns a pointer for Event.Page.
func PageNum(n int) *int {
	return &n
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}
