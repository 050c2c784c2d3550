package processor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/abelbrown/folio/internal/rpc"
)

// mockBackend serves a single fixed three-page document.
type mockBackend struct {
	opened []byte
	closed bool
}

func (m *mockBackend) Open(ctx context.Context, data []byte, magic string) (Handle, error) {
	if magic != "text/plain" {
		return 0, fmt.Errorf("%w: %s", ErrUnsupported, magic)
	}
	m.opened = data
	return 1, nil
}

func (m *mockBackend) check(h Handle) error {
	if h != 1 || m.closed {
		return fmt.Errorf("%w: handle %d", ErrNoDocument, h)
	}
	return nil
}

func (m *mockBackend) checkPage(h Handle, page int) error {
	if err := m.check(h); err != nil {
		return err
	}
	if page < 0 || page >= 3 {
		return fmt.Errorf("%w: %d", ErrPageRange, page)
	}
	return nil
}

func (m *mockBackend) NeedsPassword(ctx context.Context, h Handle) (bool, error) {
	return false, m.check(h)
}

func (m *mockBackend) Authenticate(ctx context.Context, h Handle, pw string) (bool, error) {
	return pw == "secret", m.check(h)
}

func (m *mockBackend) Close(ctx context.Context, h Handle) error {
	if err := m.check(h); err != nil {
		return err
	}
	m.closed = true
	return nil
}

func (m *mockBackend) Title(ctx context.Context, h Handle) (string, error) {
	return "Mock", m.check(h)
}

func (m *mockBackend) CountPages(ctx context.Context, h Handle) (int, error) {
	return 3, m.check(h)
}

func (m *mockBackend) PageSize(ctx context.Context, h Handle, page int) (Size, error) {
	if err := m.checkPage(h, page); err != nil {
		return Size{}, err
	}
	return Size{Width: 612, Height: 792}, nil
}

func (m *mockBackend) PageText(ctx context.Context, h Handle, page int) (*TextPage, error) {
	if err := m.checkPage(h, page); err != nil {
		return nil, err
	}
	return &TextPage{Blocks: []Block{{Lines: []Line{{Spans: []Span{{Text: "hello"}, {Text: " world"}}}}}}}, nil
}

func (m *mockBackend) PageLinks(ctx context.Context, h Handle, page int) ([]Link, error) {
	return []Link{{Href: "#page2"}}, m.checkPage(h, page)
}

func (m *mockBackend) Search(ctx context.Context, h Handle, page int, needle string) ([]Rect, error) {
	if err := m.checkPage(h, page); err != nil {
		return nil, err
	}
	if page == 2 && needle == "foo" {
		return []Rect{{X: 1, Y: 2, W: 3, H: 4}}, nil
	}
	return nil, nil
}

func (m *mockBackend) Outline(ctx context.Context, h Handle) ([]OutlineItem, error) {
	return nil, m.check(h)
}

func (m *mockBackend) Rasterize(ctx context.Context, h Handle, page int, dpi float64, rotation int) (*image.RGBA, error) {
	if err := m.checkPage(h, page); err != nil {
		return nil, err
	}
	w, hgt := int(612*dpi/72), int(792*dpi/72)
	if rotation == 90 || rotation == 270 {
		w, hgt = hgt, w
	}
	return image.NewRGBA(image.Rect(0, 0, w, hgt)), nil
}

func startProcessor(t *testing.T, b Backend) *Client {
	t.Helper()
	srv := rpc.NewServer()
	Register(srv, b)

	clientEnd, serverEnd := rpc.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx, serverEnd)

	rc, err := rpc.Dial(ctx, clientEnd)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() {
		rc.Close()
		cancel()
	})
	c, err := NewClient(rc)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestRegisterAnnouncesEveryOperation(t *testing.T) {
	srv := rpc.NewServer()
	Register(srv, &mockBackend{})
	got := map[string]bool{}
	for _, op := range srv.Operations() {
		got[op] = true
	}
	for _, op := range Operations {
		if !got[op] {
			t.Errorf("operation %q not registered", op)
		}
	}
}

func TestNewClientRequiresAllOperations(t *testing.T) {
	srv := rpc.NewServer()
	srv.Handle(OpOpen, func(context.Context, []any) (any, error) { return Handle(1), nil })

	clientEnd, serverEnd := rpc.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx, serverEnd)

	rc, err := rpc.Dial(ctx, clientEnd)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer rc.Close()

	if _, err := NewClient(rc); !errors.Is(err, rpc.ErrNotAnnounced) {
		t.Errorf("NewClient err = %v, want ErrNotAnnounced", err)
	}
}

func TestClientRoundTrip(t *testing.T) {
	b := &mockBackend{}
	c := startProcessor(t, b)
	ctx := context.Background()

	h, err := c.Open(ctx, []byte("data"), "text/plain")
	if err != nil || h != 1 {
		t.Fatalf("Open = %d, %v", h, err)
	}
	if string(b.opened) != "data" {
		t.Errorf("backend received %q", b.opened)
	}

	if n, err := c.CountPages(ctx, h); n != 3 || err != nil {
		t.Errorf("CountPages = %d, %v", n, err)
	}
	if title, _ := c.Title(ctx, h); title != "Mock" {
		t.Errorf("Title = %q", title)
	}
	if ok, _ := c.Authenticate(ctx, h, "secret"); !ok {
		t.Error("Authenticate rejected the right password")
	}
	if ok, _ := c.Authenticate(ctx, h, "nope"); ok {
		t.Error("Authenticate accepted a wrong password")
	}

	size, err := c.PageSize(ctx, h, 0)
	if err != nil || size != (Size{612, 792}) {
		t.Errorf("PageSize = %v, %v", size, err)
	}
	text, err := c.PageText(ctx, h, 1)
	if err != nil || text.String() != "hello world\n" {
		t.Errorf("PageText = %q, %v", text.String(), err)
	}
	hits, err := c.Search(ctx, h, 2, "foo")
	if err != nil || len(hits) != 1 {
		t.Errorf("Search = %v, %v", hits, err)
	}
	img, err := c.Rasterize(ctx, h, 0, 144, 90)
	if err != nil || img.Bounds().Dx() != 1584 || img.Bounds().Dy() != 1224 {
		t.Errorf("Rasterize bounds = %v, %v", img.Bounds(), err)
	}
	outline, err := c.Outline(ctx, h)
	if err != nil || outline != nil {
		t.Errorf("Outline = %v, %v", outline, err)
	}

	if err := c.Close(ctx, h); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestErrorCategoriesSurviveTheChannel(t *testing.T) {
	c := startProcessor(t, &mockBackend{})
	ctx := context.Background()

	if _, err := c.Open(ctx, nil, "image/png"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Open err = %v, want ErrUnsupported", err)
	}

	h, _ := c.Open(ctx, []byte("x"), "text/plain")
	_, err := c.PageSize(ctx, h, 9)
	if !errors.Is(err, ErrPageRange) {
		t.Errorf("PageSize err = %v, want ErrPageRange", err)
	}
	var re *rpc.RemoteError
	if !errors.As(err, &re) || re.Name != "PageRange" {
		t.Errorf("remote details lost: %v", err)
	}

	if _, err := c.CountPages(ctx, 42); !errors.Is(err, ErrNoDocument) {
		t.Errorf("CountPages err = %v, want ErrNoDocument", err)
	}
	if errors.Is(err, ErrCorrupt) {
		t.Error("error matched the wrong category")
	}
}

func TestTextPageString(t *testing.T) {
	tp := &TextPage{Blocks: []Block{
		{Lines: []Line{{Spans: []Span{{Text: "a"}}}, {Spans: []Span{{Text: "b"}}}}},
		{Lines: []Line{{Spans: []Span{{Text: "c"}}}}},
	}}
	if got := tp.String(); got != "a\nb\n\nc\n" {
		t.Errorf("String() = %q", got)
	}
	var nilPage *TextPage
	if nilPage.String() != "" {
		t.Error("nil page should be empty")
	}
}
