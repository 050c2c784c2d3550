package otel

import (
	"os"
	"sync/atomic"
)

// traceEnabled is set once at package init; atomic so tests can flip it.
var traceEnabled atomic.Bool

func init() {
	traceEnabled.Store(os.Getenv("FOLIO_TRACE") != "")
}

// TraceEnabled reports whether FOLIO_TRACE is set or tracing was enabled
// from config. When false, per-RPC events are not emitted.
func TraceEnabled() bool {
	return traceEnabled.Load()
}

// EnableTrace turns per-RPC tracing on (config `trace: true`).
func EnableTrace() {
	traceEnabled.Store(true)
}

// setTraceEnabled overrides the flag for testing.
func setTraceEnabled(v bool) {
	traceEnabled.Store(v)
}
