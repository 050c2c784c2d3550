package store

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpen(t *testing.T) {
	st := openTest(t)

	var name string
	err := st.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='views'").Scan(&name)
	if err != nil {
		t.Fatalf("views table not created: %v", err)
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "folio.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := st.SaveView(View{Digest: "d1", Name: "a.md", Location: "/tmp/a.md", Page: 3}); err != nil {
		t.Fatal(err)
	}
	st.Close()

	st, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer st.Close()
	v, ok, err := st.LoadView("d1")
	if err != nil || !ok || v.Page != 3 {
		t.Errorf("LoadView after reopen = %+v, %v, %v", v, ok, err)
	}
}

func TestSaveAndLoadView(t *testing.T) {
	st := openTest(t)
	opened := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	want := View{Digest: "abc", Name: "guide.md", Location: "https://x/guide.md", Page: 4, Zoom: 144, Rotation: 90, Opened: opened}

	if err := st.SaveView(want); err != nil {
		t.Fatalf("SaveView: %v", err)
	}
	got, ok, err := st.LoadView("abc")
	if err != nil || !ok {
		t.Fatalf("LoadView = %v, %v", ok, err)
	}
	if !got.Opened.Equal(opened) {
		t.Errorf("Opened = %v, want %v", got.Opened, opened)
	}
	got.Opened = want.Opened
	if got != want {
		t.Errorf("LoadView = %+v, want %+v", got, want)
	}
}

func TestSaveViewReplaces(t *testing.T) {
	st := openTest(t)
	st.SaveView(View{Digest: "abc", Name: "old.md", Page: 1})
	st.SaveView(View{Digest: "abc", Name: "new.md", Page: 9})

	v, _, _ := st.LoadView("abc")
	if v.Name != "new.md" || v.Page != 9 {
		t.Errorf("view = %+v", v)
	}
	views, _ := st.Recent(10)
	if len(views) != 1 {
		t.Errorf("Recent returned %d views, want 1", len(views))
	}
}

func TestSaveViewRequiresDigest(t *testing.T) {
	st := openTest(t)
	if err := st.SaveView(View{Name: "x"}); err == nil {
		t.Error("expected error for empty digest")
	}
}

func TestLoadViewMissing(t *testing.T) {
	st := openTest(t)
	_, ok, err := st.LoadView("nope")
	if ok || err != nil {
		t.Errorf("LoadView = %v, %v; want not found, no error", ok, err)
	}
}

func TestRecentOrderAndLimit(t *testing.T) {
	st := openTest(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		st.SaveView(View{Digest: fmt.Sprintf("d%d", i), Name: fmt.Sprintf("%d.md", i), Opened: base.Add(time.Duration(i) * time.Hour)})
	}

	views, err := st.Recent(3)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"d4", "d3", "d2"}
	if len(views) != len(want) {
		t.Fatalf("got %d views", len(views))
	}
	for i, v := range views {
		if v.Digest != want[i] {
			t.Errorf("views[%d] = %s, want %s", i, v.Digest, want[i])
		}
	}
}

func TestForgetAndPrune(t *testing.T) {
	st := openTest(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 4 {
		st.SaveView(View{Digest: fmt.Sprintf("d%d", i), Opened: base.Add(time.Duration(i) * time.Minute)})
	}

	if err := st.Forget("d3"); err != nil {
		t.Fatal(err)
	}
	n, err := st.Prune(2)
	if err != nil || n != 1 {
		t.Errorf("Prune = %d, %v; want 1", n, err)
	}
	views, _ := st.Recent(10)
	if len(views) != 2 || views[0].Digest != "d2" || views[1].Digest != "d1" {
		t.Errorf("remaining = %+v", views)
	}
}

func TestConcurrentSaves(t *testing.T) {
	st := openTest(t)
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := st.SaveView(View{Digest: fmt.Sprintf("d%d", i%5), Page: i}); err != nil {
				t.Errorf("SaveView: %v", err)
			}
		}()
	}
	wg.Wait()
	views, _ := st.Recent(100)
	if len(views) != 5 {
		t.Errorf("got %d views, want 5", len(views))
	}
}
