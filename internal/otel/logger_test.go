package otel

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestEmitWritesJSONL(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	l.Emit(Event{Kind: KindRPCCall, Level: LevelDebug, Comp: "rpc", Op: "rasterize", Seq: 7})
	l.Close()

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	got := lines[0]
	if got["kind"] != "rpc.call" || got["op"] != "rasterize" || got["seq"] != float64(7) {
		t.Errorf("unexpected event: %v", got)
	}
	if sid, _ := got["session_id"].(string); len(sid) != 16 {
		t.Errorf("session_id should be 16 hex chars, got %q", sid)
	}
}

func TestPageZeroIsSerialized(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	l.Page(KindPageRender, 0, 96, 0, nil)
	l.Close()

	lines := decodeLines(t, &buf)
	if v, ok := lines[0]["page"]; !ok || v != float64(0) {
		t.Errorf("page 0 missing from %v", lines[0])
	}
	if lines[0]["level"] != "debug" {
		t.Errorf("level = %v, want debug", lines[0]["level"])
	}
}

func TestPageErrorRaisesLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	l.Page(KindPageRenderError, 3, 96, 90, errors.New("corrupt page"))
	l.Close()

	got := decodeLines(t, &buf)[0]
	if got["level"] != "warn" || got["err"] != "corrupt page" || got["rotation"] != float64(90) {
		t.Errorf("unexpected event: %v", got)
	}
}

func TestDurToMs(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	l.Emit(Event{Kind: KindRPCResult, Dur: 1500 * time.Millisecond})
	l.Close()

	if got := decodeLines(t, &buf)[0]["dur_ms"]; got != float64(1500) {
		t.Errorf("dur_ms = %v, want 1500", got)
	}
}

func TestOmitempty(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	l.Emit(Event{Kind: KindStartup})
	l.Close()

	line := buf.String()
	for _, field := range []string{"dur_ms", "count", "op", "seq", "page", "needle", "err", "msg", "extra"} {
		if strings.Contains(line, `"`+field+`"`) {
			t.Errorf("field %q should be omitted: %s", field, line)
		}
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Emit(Event{Kind: KindStartup})
	l.Info(KindStartup, "main", "x")
	l.Page(KindPageLoad, 1, 96, 0, nil)
	l.Attach(NewRingBuffer(4))
	l.Close()
	if l.Dropped() != 0 {
		t.Error("nil logger reports drops")
	}
}

func TestConcurrentEmit(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Emit(Event{Kind: KindRPCCall, Comp: "test"})
		}()
	}
	wg.Wait()
	l.Close()

	if n := len(decodeLines(t, &buf)); n != 100 {
		t.Errorf("expected 100 lines, got %d", n)
	}
}

func TestEmitAfterCloseIsDropped(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)
	l.Close()
	l.Close() // idempotent

	l.Emit(Event{Kind: KindShutdown})
	if l.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", l.Dropped())
	}
}

type blockingWriter struct {
	started chan struct{}
	block   chan struct{}
	once    sync.Once
}

func (w *blockingWriter) Write(p []byte) (int, error) {
	w.once.Do(func() {
		close(w.started)
		<-w.block
	})
	return len(p), nil
}

func TestDropCounterWhenChannelFull(t *testing.T) {
	bw := &blockingWriter{started: make(chan struct{}), block: make(chan struct{})}
	l := NewLogger(bw)

	l.Emit(Event{Kind: KindRPCCall})
	<-bw.started // drain is now stuck in Write

	for i := 0; i < writerChanSize+10; i++ {
		l.Emit(Event{Kind: KindRPCCall})
	}
	if l.Dropped() == 0 {
		t.Error("expected drops when channel is full")
	}

	close(bw.block)
	l.Close()
}

func TestConvenienceHelpers(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	l.Info(KindDocOpen, "doc", "opened")
	l.Warn(KindSearchAbort, "doc", "needle cleared")
	l.Error(KindDocError, "doc", errors.New("bad file"))
	l.Close()

	lines := decodeLines(t, &buf)
	want := []struct{ level, kind string }{
		{"info", "doc.open"},
		{"warn", "search.abort"},
		{"error", "doc.error"},
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d", len(want), len(lines))
	}
	for i, w := range want {
		if lines[i]["level"] != w.level || lines[i]["kind"] != w.kind {
			t.Errorf("line %d = %v, want level=%s kind=%s", i, lines[i], w.level, w.kind)
		}
	}
}
