package acquire

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestLoadFromURL(t *testing.T) {
	body := strings.Repeat("folio ", 10000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/docs/guide.md" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Write([]byte(body))
	}))
	defer srv.Close()

	var calls [][2]int64
	f := NewFetcher(WithClient(srv.Client()))
	doc, err := f.Load(context.Background(), srv.URL+"/docs/guide.md?auth=x", func(done, total int64) {
		calls = append(calls, [2]int64{done, total})
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(doc.Data) != body {
		t.Error("body mismatch")
	}
	if doc.Name != "guide.md" || doc.ContentType != "text/markdown" {
		t.Errorf("Name = %q ContentType = %q", doc.Name, doc.ContentType)
	}
	sum := sha256.Sum256([]byte(body))
	if doc.Digest != hex.EncodeToString(sum[:]) {
		t.Error("digest mismatch")
	}
	if len(calls) == 0 {
		t.Fatal("no progress reported")
	}
	last := calls[len(calls)-1]
	if last[0] != int64(len(body)) || last[1] != int64(len(body)) {
		t.Errorf("final progress = %v, want %d/%d", last, len(body), len(body))
	}
	for i := 1; i < len(calls); i++ {
		if calls[i][0] < calls[i-1][0] {
			t.Errorf("progress went backwards: %v", calls)
		}
	}
}

func TestLoadHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewFetcher(WithClient(srv.Client())).Load(context.Background(), srv.URL+"/missing.pdf", nil)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("err = %v, want a 404", err)
	}
}

func TestLoadTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer srv.Close()

	_, err := NewFetcher(WithClient(srv.Client()), WithMaxBytes(1024)).Load(context.Background(), srv.URL+"/big.txt", nil)
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("err = %v, want ErrTooLarge", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(name, []byte("plain text"), 0o644); err != nil {
		t.Fatal(err)
	}

	var final int64
	doc, err := NewFetcher().Load(context.Background(), name, func(done, total int64) { final = done })
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Name != "notes.txt" || string(doc.Data) != "plain text" || final != 10 {
		t.Errorf("doc = %q %q, final progress %d", doc.Name, doc.Data, final)
	}
	if !strings.HasPrefix(doc.ContentType, "text/plain") {
		t.Errorf("ContentType = %q", doc.ContentType)
	}

	if _, err := NewFetcher().Load(context.Background(), filepath.Join(dir, "absent.md"), nil); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v", err)
	}
	if _, err := NewFetcher().Load(context.Background(), dir, nil); err == nil {
		t.Error("loading a directory succeeded")
	}
}

func TestLoadCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewFetcher().Load(ctx, "anything.md", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNameFromURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://example.com/a/b/report.pdf", "report.pdf"},
		{"https://example.com/a/My%20Notes.md?auth=abc", "My Notes.md"},
		{"https://example.com/a/b/", "https://example.com/a/b/"},
		{"https://example.com", "https://example.com"},
		{"https://example.com/download", "https://example.com/download"},
	}
	for _, tt := range tests {
		if got := NameFromURL(tt.in); got != tt.want {
			t.Errorf("NameFromURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsURL(t *testing.T) {
	if !IsURL("http://x.org/a.md") || !IsURL("https://x.org") {
		t.Error("http URLs not recognised")
	}
	if IsURL("/tmp/a.md") || IsURL("C:\\docs\\a.md") || IsURL("file:///a.md") {
		t.Error("non-http location treated as URL")
	}
}
