package document

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/abelbrown/folio/internal/debounce"
	"github.com/abelbrown/folio/internal/processor"
	"github.com/abelbrown/folio/internal/rpc"
	"github.com/abelbrown/folio/internal/textdoc"
)

// fakeProc serves a document of equal 100x100 point pages.
type fakeProc struct {
	mu       sync.Mutex
	pages    int
	password string
	hits     map[int]int // page -> hit count for any needle
	failText map[int]bool
	failOpen error
	failCnt  error
	closed   []processor.Handle
	searched []int
	rendered []int
}

func newFakeProc(pages int) *fakeProc {
	return &fakeProc{pages: pages, hits: map[int]int{}, failText: map[int]bool{}}
}

func (f *fakeProc) Open(ctx context.Context, data []byte, magic string) (processor.Handle, error) {
	if f.failOpen != nil {
		return 0, f.failOpen
	}
	return 7, nil
}

func (f *fakeProc) NeedsPassword(ctx context.Context, h processor.Handle) (bool, error) {
	return f.password != "", nil
}

func (f *fakeProc) Authenticate(ctx context.Context, h processor.Handle, pw string) (bool, error) {
	return pw == f.password, nil
}

func (f *fakeProc) Close(ctx context.Context, h processor.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, h)
	return nil
}

func (f *fakeProc) Title(ctx context.Context, h processor.Handle) (string, error) { return "", nil }

func (f *fakeProc) CountPages(ctx context.Context, h processor.Handle) (int, error) {
	if f.failCnt != nil {
		return 0, f.failCnt
	}
	return f.pages, nil
}

func (f *fakeProc) PageSize(ctx context.Context, h processor.Handle, n int) (processor.Size, error) {
	return processor.Size{Width: 100, Height: 100}, nil
}

func (f *fakeProc) PageText(ctx context.Context, h processor.Handle, n int) (*processor.TextPage, error) {
	if f.failText[n] {
		return nil, fmt.Errorf("%w: page %d", processor.ErrCorrupt, n)
	}
	return &processor.TextPage{}, nil
}

func (f *fakeProc) PageLinks(ctx context.Context, h processor.Handle, n int) ([]processor.Link, error) {
	return nil, nil
}

func (f *fakeProc) Search(ctx context.Context, h processor.Handle, n int, needle string) ([]processor.Rect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searched = append(f.searched, n)
	return make([]processor.Rect, f.hits[n]), nil
}

func (f *fakeProc) Outline(ctx context.Context, h processor.Handle) ([]processor.OutlineItem, error) {
	return nil, nil
}

func (f *fakeProc) Rasterize(ctx context.Context, h processor.Handle, n int, dpi float64, rotation int) (*image.RGBA, error) {
	f.mu.Lock()
	f.rendered = append(f.rendered, n)
	f.mu.Unlock()
	return image.NewRGBA(image.Rect(0, 0, 1, 1)), nil
}

func (f *fakeProc) searchLog() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.searched)
}

// recorder is a Listener that keeps what it was told and can run a hook
// on each status message.
type recorder struct {
	NopListener
	mu       sync.Mutex
	statuses []string
	errs     []error
	onStatus func(string)
}

func (r *recorder) SearchStatus(msg string) {
	r.mu.Lock()
	r.statuses = append(r.statuses, msg)
	hook := r.onStatus
	r.mu.Unlock()
	if hook != nil {
		hook(msg)
	}
}

func (r *recorder) DocumentError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) errCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

type idleTimer struct{}

func (idleTimer) Stop() bool { return true }

// newTestController opens a fakeProc document at zoom 72 (one pixel per
// point) with a 10px gap and a 200x100 window. Debounced refreshes never
// fire on their own; tests call Flush.
func newTestController(t *testing.T, f *fakeProc) (*Controller, *recorder) {
	t.Helper()
	rec := &recorder{}
	c := New(f, Options{Zoom: 72, PageGap: 10, Listener: rec})
	c.Tracker().Scheduler().After = func(time.Duration, func()) debounce.Timer { return idleTimer{} }
	if err := c.Open(context.Background(), []byte("doc"), "text/plain", "doc.txt", nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	c.SetViewport(200, 100)
	return c, rec
}

func TestZoomIsClamped(t *testing.T) {
	c, _ := newTestController(t, newFakeProc(3))

	if !c.SetZoom(1000) || c.Zoom() != MaxZoom {
		t.Errorf("SetZoom(1000) -> %d, want %d", c.Zoom(), MaxZoom)
	}
	if c.ZoomIn() {
		t.Error("ZoomIn at the maximum reported a change")
	}
	c.SetZoom(1)
	if c.Zoom() != MinZoom {
		t.Errorf("SetZoom(1) -> %d, want %d", c.Zoom(), MinZoom)
	}
	if c.SetZoom(MinZoom) {
		t.Error("setting the same zoom reported a change")
	}
	c.ZoomIn()
	if c.Zoom() != MinZoom+ZoomStep {
		t.Errorf("ZoomIn -> %d", c.Zoom())
	}
	c.ResetZoom()
	if c.Zoom() != 72 {
		t.Errorf("ResetZoom -> %d, want 72", c.Zoom())
	}
	for _, p := range c.Pages() {
		if p.Zoom() != 72 {
			t.Errorf("page %d zoom = %d", p.Number(), p.Zoom())
		}
	}
}

func TestZoomKeepsMostVisiblePage(t *testing.T) {
	c, _ := newTestController(t, newFakeProc(5))
	c.GoToPage(2)
	if got := c.CurrentPage(); got != 2 {
		t.Fatalf("CurrentPage = %d, want 2", got)
	}
	// page 2 spans [230, 330); the midpoint 270 is 40% into it.
	c.SetZoom(144)
	if got := c.CurrentPage(); got != 2 {
		t.Errorf("CurrentPage after zoom = %d, want 2", got)
	}
	// page 2 now spans [430, 630); 40% in is 510, so the top is 460.
	if top := c.Layout().Window.Top; math.Abs(top-460) > 1e-6 {
		t.Errorf("window top = %v, want 460", top)
	}
}

func TestRotateAllNormalizes(t *testing.T) {
	c, _ := newTestController(t, newFakeProc(2))
	c.RotateAll(90)
	c.RotateAll(270)
	if c.Rotation() != 0 {
		t.Errorf("Rotation = %d, want 0", c.Rotation())
	}
	c.RotateAll(-90)
	if c.Rotation() != 270 {
		t.Errorf("Rotation = %d, want 270", c.Rotation())
	}
	for _, p := range c.Pages() {
		if p.Rotation() != 270 {
			t.Errorf("page %d rotation = %d", p.Number(), p.Rotation())
		}
	}
	if c.SetRotation(-90) {
		t.Error("same rotation reported a change")
	}
}

func TestRunSearchForward(t *testing.T) {
	f := newFakeProc(5)
	f.hits[3] = 2
	c, rec := newTestController(t, f)
	c.SetSearchNeedle("foo")

	res, err := c.RunSearch(context.Background(), 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusFound || res.Page != 3 || res.Hits != 2 {
		t.Errorf("result = %+v", res)
	}
	if got := f.searchLog(); !slices.Equal(got, []int{0, 1, 2, 3}) {
		t.Errorf("searched %v, want [0 1 2 3]", got)
	}
	if c.CurrentPage() != 3 {
		t.Errorf("CurrentPage = %d, want 3", c.CurrentPage())
	}
	if last := rec.statuses[len(rec.statuses)-1]; last != "2 hits on page 4." {
		t.Errorf("status = %q", last)
	}
}

func TestRunSearchStepSkipsCurrentPage(t *testing.T) {
	f := newFakeProc(5)
	f.hits[0] = 1
	f.hits[3] = 1
	c, _ := newTestController(t, f)
	c.SetSearchNeedle("foo")

	res, _ := c.RunSearch(context.Background(), 1, 1)
	if res.Page != 3 {
		t.Errorf("page = %d, want 3", res.Page)
	}
	if got := f.searchLog(); !slices.Equal(got, []int{1, 2, 3}) {
		t.Errorf("searched %v, want [1 2 3]", got)
	}
}

func TestRunSearchBackward(t *testing.T) {
	f := newFakeProc(5)
	f.hits[3] = 1
	c, _ := newTestController(t, f)
	c.GoToPage(4)
	c.SetSearchNeedle("foo")

	res, _ := c.RunSearch(context.Background(), -1, 0)
	if res.Status != StatusFound || res.Page != 3 {
		t.Errorf("result = %+v", res)
	}
	if got := f.searchLog(); !slices.Equal(got, []int{4, 3}) {
		t.Errorf("searched %v, want [4 3]", got)
	}
}

func TestRunSearchExhausted(t *testing.T) {
	f := newFakeProc(3)
	c, rec := newTestController(t, f)
	c.SetSearchNeedle("foo")

	res, _ := c.RunSearch(context.Background(), 1, 0)
	if res.Status != StatusNoMoreHits || res.Page != -1 {
		t.Errorf("result = %+v", res)
	}
	if last := rec.statuses[len(rec.statuses)-1]; last != "No more search hits." {
		t.Errorf("status = %q", last)
	}

	// Results are cached per needle; a second pass searches nothing again.
	c.RunSearch(context.Background(), 1, 0)
	if n := len(f.searchLog()); n != 3 {
		t.Errorf("search calls = %d, want 3", n)
	}
}

func TestRunSearchStopsWhenNeedleCleared(t *testing.T) {
	f := newFakeProc(5)
	f.hits[4] = 1
	c, rec := newTestController(t, f)
	c.SetSearchNeedle("foo")
	rec.onStatus = func(msg string) {
		if msg == "Searching page 2." {
			c.SetSearchNeedle("")
		}
	}

	res, _ := c.RunSearch(context.Background(), 1, 0)
	if res.Status != StatusEmptyNeedle {
		t.Errorf("status = %q, want %q", res.Status, StatusEmptyNeedle)
	}
	// page 1 clears locally, so only page 0 reached the processor.
	if got := f.searchLog(); !slices.Equal(got, []int{0}) {
		t.Errorf("searched %v, want [0]", got)
	}
}

func TestRunSearchStopsWhenNeedleChanged(t *testing.T) {
	f := newFakeProc(5)
	f.hits[1] = 3
	c, rec := newTestController(t, f)
	c.SetSearchNeedle("foo")
	rec.onStatus = func(msg string) {
		if msg == "Searching page 2." {
			c.SetSearchNeedle("bar")
		}
	}

	res, _ := c.RunSearch(context.Background(), 1, 0)
	// page 1 has hits, but for "bar", not the needle the scan started with.
	if res.Status != StatusNeedleChanged {
		t.Errorf("status = %q, want %q", res.Status, StatusNeedleChanged)
	}
}

func TestRunSearchWithoutDocument(t *testing.T) {
	c := New(newFakeProc(1), Options{})
	if _, err := c.RunSearch(context.Background(), 1, 0); !errors.Is(err, ErrNoDocument) {
		t.Errorf("err = %v, want ErrNoDocument", err)
	}
}

func TestOpenFailureLeavesNoPages(t *testing.T) {
	f := newFakeProc(3)
	f.failCnt = processor.ErrCorrupt
	rec := &recorder{}
	c := New(f, Options{Listener: rec})

	err := c.Open(context.Background(), []byte("x"), "text/plain", "x.txt", nil)
	if !errors.Is(err, processor.ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
	if c.PageCount() != 0 || c.IsOpen() {
		t.Error("failed open installed pages")
	}
	if !slices.Equal(f.closed, []processor.Handle{7}) {
		t.Errorf("closed = %v, want the handle closed once", f.closed)
	}
	if rec.errCount() != 1 {
		t.Errorf("document errors = %d, want 1", rec.errCount())
	}
}

func TestOpenAsksUntilPasswordAccepted(t *testing.T) {
	f := newFakeProc(2)
	f.password = "hunter2"
	c := New(f, Options{})

	var retries []bool
	answers := []string{"guess", "hunter2"}
	auth := AuthFunc(func(ctx context.Context, retry bool) (string, bool) {
		retries = append(retries, retry)
		pw := answers[0]
		answers = answers[1:]
		return pw, true
	})
	if err := c.Open(context.Background(), nil, "", "locked.md", auth); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !slices.Equal(retries, []bool{false, true}) {
		t.Errorf("retry flags = %v", retries)
	}
	if c.PageCount() != 2 || c.Title() != "locked.md" {
		t.Errorf("pages = %d title = %q", c.PageCount(), c.Title())
	}
}

func TestOpenCancelledAtPasswordPrompt(t *testing.T) {
	f := newFakeProc(2)
	f.password = "hunter2"
	c := New(f, Options{})

	auth := AuthFunc(func(context.Context, bool) (string, bool) { return "", false })
	err := c.Open(context.Background(), nil, "", "locked.md", auth)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if c.PageCount() != 0 || len(f.closed) != 1 {
		t.Errorf("pages = %d closed = %v", c.PageCount(), f.closed)
	}
}

func TestRefreshDisplaysVisiblePages(t *testing.T) {
	f := newFakeProc(10)
	c, _ := newTestController(t, f)
	if !c.Flush() {
		t.Fatal("no refresh pending after open")
	}
	// window [0,100) grown to [-25,200) covers pages 0 and 1.
	for _, p := range c.Pages()[:2] {
		if _, fresh := p.Bitmap(); !fresh {
			t.Errorf("page %d not rendered", p.Number())
		}
	}
	if _, fresh := c.Pages()[5].Bitmap(); fresh {
		t.Error("off-screen page was rendered")
	}
}

func TestRefreshRendersInAscendingOrder(t *testing.T) {
	f := newFakeProc(30)
	c, _ := newTestController(t, f)
	c.SetViewport(200, 1000)
	c.Tracker().Trigger()
	c.Flush()

	f.mu.Lock()
	got := slices.Clone(f.rendered)
	f.mu.Unlock()
	if len(got) < 10 {
		t.Fatalf("rendered = %v, want the pages of a 1000px window", got)
	}
	if !slices.IsSorted(got) {
		t.Errorf("render order = %v, want ascending", got)
	}
}

func TestLoadErrorReportedOnce(t *testing.T) {
	f := newFakeProc(3)
	f.failText[1] = true
	c, rec := newTestController(t, f)
	c.Flush()
	c.Tracker().Trigger()
	c.Flush()
	if rec.errCount() != 1 {
		t.Errorf("document errors = %d, want 1", rec.errCount())
	}
	if _, fresh := c.Pages()[0].Bitmap(); !fresh {
		t.Error("a bad page stopped its neighbour from rendering")
	}
}

func TestFollowLink(t *testing.T) {
	c, _ := newTestController(t, newFakeProc(5))

	ext, err := c.FollowLink("#page3")
	if err != nil || ext != "" {
		t.Fatalf("FollowLink = %q, %v", ext, err)
	}
	if c.CurrentPage() != 2 {
		t.Errorf("CurrentPage = %d, want 2", c.CurrentPage())
	}
	if ext, _ := c.FollowLink("https://example.com"); ext != "https://example.com" {
		t.Errorf("external = %q", ext)
	}
	if _, err := c.FollowLink("#page99"); !errors.Is(err, ErrBadLink) {
		t.Errorf("err = %v, want ErrBadLink", err)
	}
}

func TestScrollIsClamped(t *testing.T) {
	c, _ := newTestController(t, newFakeProc(2))
	// total = 10 + 100 + 10 + 100 + 10 = 230
	c.ScrollTo(1e6)
	if top := c.Layout().Window.Top; top != 130 {
		t.Errorf("top = %v, want 130", top)
	}
	c.ScrollBy(-1e6)
	if top := c.Layout().Window.Top; top != 0 {
		t.Errorf("top = %v, want 0", top)
	}
	if n, dy, ok := c.PageAt(125); !ok || n != 1 || dy != 5 {
		t.Errorf("PageAt(125) = %d, %v, %v", n, dy, ok)
	}
	if _, _, ok := c.PageAt(115); ok {
		t.Error("PageAt found a page in the gap")
	}
}

func TestCloseDropsPages(t *testing.T) {
	f := newFakeProc(2)
	c, _ := newTestController(t, f)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if c.PageCount() != 0 || c.IsOpen() || len(c.Tracker().Visible()) != 0 {
		t.Error("Close left state behind")
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

const sample = `# Guide

Intro with a [jump](#page2).

---

## Second

The needle is here.
`

// TestOverProcessorChannel drives the controller through the real
// processor client and text backend.
func TestOverProcessorChannel(t *testing.T) {
	srv := rpc.NewServer()
	processor.Register(srv, textdoc.New())
	clientEnd, serverEnd := rpc.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx, serverEnd)
	rc, err := rpc.Dial(ctx, clientEnd)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		rc.Close()
		cancel()
	})
	pc, err := processor.NewClient(rc)
	if err != nil {
		t.Fatal(err)
	}

	c := New(pc, Options{})
	c.Tracker().Scheduler().After = func(time.Duration, func()) debounce.Timer { return idleTimer{} }
	if err := c.Open(ctx, []byte(sample), "text/markdown", "guide.md", nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	c.SetViewport(800, 600)

	if c.PageCount() != 2 || c.Title() != "Guide" {
		t.Errorf("pages = %d title = %q", c.PageCount(), c.Title())
	}
	if len(c.Outline()) == 0 {
		t.Error("no outline")
	}

	c.SetSearchNeedle("NEEDLE")
	res, err := c.RunSearch(ctx, 1, 0)
	if err != nil || res.Status != StatusFound || res.Page != 1 {
		t.Errorf("RunSearch = %+v, %v", res, err)
	}

	text, err := c.PageText(ctx, 1)
	if err != nil || text == "" {
		t.Errorf("PageText = %q, %v", text, err)
	}
}
