package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestHelpersAreNilSafe(t *testing.T) {
	saved := Logger
	Logger = nil
	defer func() { Logger = saved }()

	// Must not panic before Init.
	Info("x")
	Debug("x")
	Warn("x")
	Error("x")
	if WithPrefix("p") != nil {
		t.Error("WithPrefix before Init should be nil")
	}
}

func TestSetOutputRespectsLevel(t *testing.T) {
	saved := Logger
	defer func() { Logger = saved }()

	var buf bytes.Buffer
	SetOutput(&buf, "warn")

	Info("hidden message")
	Warn("visible message", "page", 3)

	out := buf.String()
	if strings.Contains(out, "hidden message") {
		t.Error("info line written at warn level")
	}
	if !strings.Contains(out, "visible message") || !strings.Contains(out, "page=3") {
		t.Errorf("warn line missing or without key/value: %q", out)
	}
}

func TestInitCreatesDatedFile(t *testing.T) {
	saved := Logger
	defer func() { Logger = saved }()

	dir := t.TempDir()
	if err := Init(dir, "debug"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	Debug("render fresh", "page", 1)
	Close()

	name := "folio-" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "render fresh") {
		t.Errorf("log file missing debug line: %q", data)
	}
}
