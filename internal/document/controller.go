// Package document owns the pages of the open document and the view state
// shared by all of them: zoom, rotation, scroll position and the search
// needle. It turns user intent into page operations and lets the viewport
// tracker decide which pages actually do work.
package document

import (
	"context"
	"errors"
	"fmt"
	"image"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/abelbrown/folio/internal/logging"
	"github.com/abelbrown/folio/internal/otel"
	"github.com/abelbrown/folio/internal/page"
	"github.com/abelbrown/folio/internal/processor"
	"github.com/abelbrown/folio/internal/viewport"
)

// Zoom limits in DPI-equivalent units.
const (
	MinZoom     = 48
	MaxZoom     = 384
	ZoomStep    = 12
	DefaultZoom = 96
)

// DefaultPageGap is the space between pages in display pixels.
const DefaultPageGap = 16

var (
	ErrNoDocument = errors.New("document: no document open")
	ErrCancelled  = errors.New("document: opening cancelled")
	ErrBadLink    = errors.New("document: bad internal link")
)

// Processor is the set of remote operations the controller needs.
// *processor.Client satisfies it, as does any processor.Backend.
type Processor interface {
	Open(ctx context.Context, data []byte, magic string) (processor.Handle, error)
	NeedsPassword(ctx context.Context, h processor.Handle) (bool, error)
	Authenticate(ctx context.Context, h processor.Handle, password string) (bool, error)
	Close(ctx context.Context, h processor.Handle) error
	Title(ctx context.Context, h processor.Handle) (string, error)
	CountPages(ctx context.Context, h processor.Handle) (int, error)
	PageSize(ctx context.Context, h processor.Handle, page int) (processor.Size, error)
	PageText(ctx context.Context, h processor.Handle, page int) (*processor.TextPage, error)
	PageLinks(ctx context.Context, h processor.Handle, page int) ([]processor.Link, error)
	Search(ctx context.Context, h processor.Handle, page int, needle string) ([]processor.Rect, error)
	Outline(ctx context.Context, h processor.Handle) ([]processor.OutlineItem, error)
	Rasterize(ctx context.Context, h processor.Handle, page int, dpi float64, rotation int) (*image.RGBA, error)
}

// boundSource is the processor as seen by the pages of one handle.
type boundSource struct {
	proc Processor
	h    processor.Handle
}

func (s boundSource) PageSize(ctx context.Context, n int) (processor.Size, error) {
	return s.proc.PageSize(ctx, s.h, n)
}

func (s boundSource) PageText(ctx context.Context, n int) (*processor.TextPage, error) {
	return s.proc.PageText(ctx, s.h, n)
}

func (s boundSource) PageLinks(ctx context.Context, n int) ([]processor.Link, error) {
	return s.proc.PageLinks(ctx, s.h, n)
}

func (s boundSource) Search(ctx context.Context, n int, needle string) ([]processor.Rect, error) {
	return s.proc.Search(ctx, s.h, n, needle)
}

func (s boundSource) Rasterize(ctx context.Context, n int, dpi float64, rotation int) (*image.RGBA, error) {
	return s.proc.Rasterize(ctx, s.h, n, dpi, rotation)
}

// Authenticator supplies passwords for locked documents. retry is true
// after a wrong password. Returning false cancels the open.
type Authenticator interface {
	Password(ctx context.Context, retry bool) (string, bool)
}

// AuthFunc adapts a function to Authenticator.
type AuthFunc func(ctx context.Context, retry bool) (string, bool)

func (f AuthFunc) Password(ctx context.Context, retry bool) (string, bool) { return f(ctx, retry) }

// Listener receives controller notifications. Calls arrive on arbitrary
// goroutines, never with controller locks held.
type Listener interface {
	PageChanged(page int)
	ViewChanged()
	DocumentError(err error)
	SearchStatus(msg string)
}

// NopListener ignores everything. Embed it to implement part of Listener.
type NopListener struct{}

func (NopListener) PageChanged(int)     {}
func (NopListener) ViewChanged()        {}
func (NopListener) DocumentError(error) {}
func (NopListener) SearchStatus(string) {}

// Options configures a Controller. Zero values take defaults.
type Options struct {
	Zoom             int
	DevicePixelRatio float64
	PageGap          float64
	Margins          viewport.Margins
	Debounce         time.Duration
	Listener         Listener
	Events           *otel.Logger
}

// Search outcomes.
const (
	StatusFound         = "found"
	StatusNoMoreHits    = "no more hits"
	StatusEmptyNeedle   = "empty needle"
	StatusNeedleChanged = "needle changed"
)

// SearchResult is the outcome of RunSearch. Page is zero-based and -1 when
// nothing was found.
type SearchResult struct {
	Status string
	Page   int
	Hits   int
}

// Layout is the scroll geometry at one instant.
type Layout struct {
	Bounds []viewport.Bounds
	Total  float64
	Window viewport.Window
	Width  float64
}

// Controller is the document view. Goroutine-safe.
//
// Lock order is c.mu then a page's own lock. The listener and the tracker's
// refresh always run without c.mu held.
type Controller struct {
	proc     Processor
	opts     Options
	listener Listener
	events   *otel.Logger
	tracker  *viewport.Tracker

	mu         sync.Mutex
	gen        uint64
	open       bool
	handle     processor.Handle
	pages      []*page.Page
	title      string
	outline    []processor.OutlineItem
	zoom       int
	rotation   int
	needle     string
	searchPage int
	window     viewport.Window
	width      float64
	reported   map[int]bool
}

// New creates a Controller with no document open.
func New(proc Processor, opts Options) *Controller {
	if opts.Zoom == 0 {
		opts.Zoom = DefaultZoom
	}
	opts.Zoom = clampZoom(opts.Zoom)
	if opts.DevicePixelRatio <= 0 {
		opts.DevicePixelRatio = 1
	}
	if opts.PageGap <= 0 {
		opts.PageGap = DefaultPageGap
	}
	if opts.Listener == nil {
		opts.Listener = NopListener{}
	}
	c := &Controller{
		proc:     proc,
		opts:     opts,
		listener: opts.Listener,
		events:   opts.Events,
		zoom:     opts.Zoom,
		reported: make(map[int]bool),
	}
	c.tracker = viewport.NewTracker(viewport.Config{
		Margins:  opts.Margins,
		Debounce: opts.Debounce,
		Refresh:  c.refresh,
		Events:   opts.Events,
	})
	return c
}

// Tracker exposes the viewport tracker.
func (c *Controller) Tracker() *viewport.Tracker { return c.tracker }

func clampZoom(z int) int {
	return min(max(z, MinZoom), MaxZoom)
}

// Open opens data as the current document, closing any previous one. A
// locked document asks auth for passwords until one is accepted. On any
// failure the handle is closed and no pages are installed.
func (c *Controller) Open(ctx context.Context, data []byte, magic, name string, auth Authenticator) error {
	c.Close()
	start := time.Now()

	h, err := c.proc.Open(ctx, data, magic)
	if err != nil {
		return c.openFailed(fmt.Errorf("document: open %s: %w", name, err))
	}

	st, err := c.prepare(ctx, h, name, auth)
	if err != nil {
		if cerr := c.proc.Close(context.WithoutCancel(ctx), h); cerr != nil {
			logging.Warn("document: close after failed open", "err", cerr)
		}
		return c.openFailed(err)
	}

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.open = true
	c.handle = h
	c.title = st.title
	c.outline = st.outline
	c.rotation = 0
	c.needle = ""
	c.searchPage = 0
	c.window.Top = 0
	clear(c.reported)
	c.pages = make([]*page.Page, st.count)
	src := boundSource{proc: c.proc, h: h}
	for i := range c.pages {
		c.pages[i] = page.New(page.Config{
			Number:           i,
			Source:           src,
			DefaultSize:      st.size,
			Zoom:             c.zoom,
			DevicePixelRatio: c.opts.DevicePixelRatio,
			IsVisible:        c.tracker.IsVisible,
			OnChange:         func(n int) { c.pageChanged(gen, n) },
			Events:           c.events,
		})
	}
	c.mu.Unlock()

	logging.Info("document: opened", "title", st.title, "pages", st.count)
	c.events.Emit(otel.Event{
		Level: otel.LevelInfo, Kind: otel.KindDocOpen, Comp: "doc",
		Count: st.count, Msg: st.title, Dur: time.Since(start),
	})
	c.scan()
	c.listener.ViewChanged()
	return nil
}

type openState struct {
	title   string
	count   int
	size    processor.Size
	outline []processor.OutlineItem
}

func (c *Controller) prepare(ctx context.Context, h processor.Handle, name string, auth Authenticator) (openState, error) {
	var st openState
	locked, err := c.proc.NeedsPassword(ctx, h)
	if err != nil {
		return st, fmt.Errorf("document: needsPassword: %w", err)
	}
	if locked {
		if err := c.unlock(ctx, h, auth); err != nil {
			return st, err
		}
	}

	if st.count, err = c.proc.CountPages(ctx, h); err != nil {
		return st, fmt.Errorf("document: countPages: %w", err)
	}
	if st.count > 0 {
		// The cover is often sized differently, so page 1 sets the default.
		ref := 0
		if st.count > 1 {
			ref = 1
		}
		if st.size, err = c.proc.PageSize(ctx, h, ref); err != nil {
			return st, fmt.Errorf("document: getPageSize: %w", err)
		}
	}
	if st.outline, err = c.proc.Outline(ctx, h); err != nil {
		return st, fmt.Errorf("document: outline: %w", err)
	}
	st.title, err = c.proc.Title(ctx, h)
	if err != nil {
		logging.Warn("document: title", "err", err)
	}
	if strings.TrimSpace(st.title) == "" {
		st.title = name
	}
	return st, nil
}

func (c *Controller) unlock(ctx context.Context, h processor.Handle, auth Authenticator) error {
	if auth == nil {
		return fmt.Errorf("%w: password required", ErrCancelled)
	}
	retry := false
	for {
		pw, ok := auth.Password(ctx, retry)
		if !ok {
			return ErrCancelled
		}
		good, err := c.proc.Authenticate(ctx, h, pw)
		if err != nil {
			return fmt.Errorf("document: authenticate: %w", err)
		}
		if good {
			return nil
		}
		logging.Info("document: wrong password")
		retry = true
	}
}

func (c *Controller) openFailed(err error) error {
	logging.Error("document: open failed", "err", err)
	c.events.Error(otel.KindDocError, "doc", err)
	c.listener.DocumentError(err)
	return err
}

// Close closes the current document. Closing with nothing open is a no-op.
func (c *Controller) Close() error {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return nil
	}
	h := c.handle
	c.gen++
	c.open = false
	c.pages = nil
	c.outline = nil
	c.title = ""
	c.needle = ""
	c.window.Top = 0
	c.mu.Unlock()

	c.tracker.Reset()
	err := c.proc.Close(context.Background(), h)
	if err != nil {
		logging.Warn("document: close", "err", err)
	}
	c.events.Info(otel.KindDocClose, "doc", "closed")
	c.listener.ViewChanged()
	return err
}

// IsOpen reports whether a document is open.
func (c *Controller) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// refresh brings every visible page up to date, one page at a time in
// ascending order so the processor sees the topmost page first. Loads
// inside a page still run concurrently.
func (c *Controller) refresh(nums []int) {
	c.mu.Lock()
	pages, gen := c.pages, c.gen
	c.mu.Unlock()

	ctx := context.Background()
	for _, n := range nums {
		if n < 0 || n >= len(pages) {
			continue
		}
		if err := pages[n].EnsureDisplayed(ctx); err != nil {
			c.loadFailed(gen, n, err)
		}
	}
}

// loadFailed reports a page load error once per page and document.
func (c *Controller) loadFailed(gen uint64, n int, err error) {
	c.mu.Lock()
	if gen != c.gen || c.reported[n] {
		c.mu.Unlock()
		return
	}
	c.reported[n] = true
	c.mu.Unlock()

	err = fmt.Errorf("document: page %d: %w", n+1, err)
	c.events.Error(otel.KindDocError, "doc", err)
	c.listener.DocumentError(err)
}

func (c *Controller) pageChanged(gen uint64, n int) {
	c.mu.Lock()
	live := gen == c.gen
	c.mu.Unlock()
	if !live {
		return
	}
	// A load may have replaced the default size.
	c.scan()
	c.listener.PageChanged(n)
}

// layoutLocked stacks the pages at their live display sizes.
func (c *Controller) layoutLocked() ([]viewport.Bounds, float64) {
	heights := make([]float64, len(c.pages))
	for i, p := range c.pages {
		_, h := p.DisplaySize()
		heights[i] = float64(h)
	}
	return viewport.Stack(heights, c.opts.PageGap)
}

func (c *Controller) clampTopLocked(total float64) {
	c.window.Top = max(0, min(c.window.Top, total-c.window.Height))
}

// scan reports the current geometry to the tracker.
func (c *Controller) scan() {
	c.mu.Lock()
	bounds, total := c.layoutLocked()
	c.clampTopLocked(total)
	w := c.window
	c.mu.Unlock()
	c.tracker.Scan(bounds, w)
}

func (c *Controller) mostVisibleLocked(bounds []viewport.Bounds) int {
	if p, ok := viewport.MostVisible(bounds, c.tracker.Visible(), c.window); ok && p < len(bounds) {
		return p
	}
	mid := c.window.Mid()
	for i, b := range bounds {
		if mid < b.Bottom {
			return i
		}
	}
	return max(0, len(bounds)-1)
}

// anchor remembers where the window midpoint sits inside the most visible
// page so a geometry change can put it back.
type anchor struct {
	page int
	frac float64
	ok   bool
}

func (c *Controller) anchorLocked() anchor {
	bounds, _ := c.layoutLocked()
	if len(bounds) == 0 {
		return anchor{}
	}
	p := c.mostVisibleLocked(bounds)
	b := bounds[p]
	frac := 0.0
	if b.Bottom > b.Top {
		frac = (c.window.Mid() - b.Top) / (b.Bottom - b.Top)
	}
	return anchor{page: p, frac: min(max(frac, 0), 1), ok: true}
}

func (c *Controller) restoreLocked(a anchor) {
	bounds, total := c.layoutLocked()
	if a.ok && a.page < len(bounds) {
		b := bounds[a.page]
		c.window.Top = b.Top + a.frac*(b.Bottom-b.Top) - c.window.Height/2
	}
	c.clampTopLocked(total)
}

// viewChanged rescans, schedules a refresh of every visible page and tells
// the listener.
func (c *Controller) viewChanged() {
	c.scan()
	c.tracker.Trigger()
	c.listener.ViewChanged()
}

// SetZoom sets the zoom, clamped to [MinZoom, MaxZoom], keeping the most
// visible page in place. Returns false if the zoom did not change.
func (c *Controller) SetZoom(zoom int) bool {
	zoom = clampZoom(zoom)
	c.mu.Lock()
	if zoom == c.zoom {
		c.mu.Unlock()
		return false
	}
	a := c.anchorLocked()
	c.zoom = zoom
	for _, p := range c.pages {
		p.SetZoom(zoom)
	}
	c.restoreLocked(a)
	c.mu.Unlock()

	logging.Debug("document: zoom", "zoom", zoom)
	c.viewChanged()
	return true
}

func (c *Controller) ZoomIn() bool    { return c.SetZoom(c.Zoom() + ZoomStep) }
func (c *Controller) ZoomOut() bool   { return c.SetZoom(c.Zoom() - ZoomStep) }
func (c *Controller) ResetZoom() bool { return c.SetZoom(c.opts.Zoom) }

func (c *Controller) Zoom() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zoom
}

// RotateAll turns every page by delta degrees clockwise.
func (c *Controller) RotateAll(delta int) bool {
	c.mu.Lock()
	r := c.rotation + delta
	c.mu.Unlock()
	return c.SetRotation(r)
}

// SetRotation sets the absolute rotation of every page, normalized to a
// multiple of 90. Returns false if unchanged.
func (c *Controller) SetRotation(angle int) bool {
	r := page.NormalizeRotation(angle)
	c.mu.Lock()
	if r == c.rotation {
		c.mu.Unlock()
		return false
	}
	a := c.anchorLocked()
	c.rotation = r
	for _, p := range c.pages {
		p.SetRotation(r)
	}
	c.restoreLocked(a)
	c.mu.Unlock()

	logging.Debug("document: rotation", "rotation", r)
	c.viewChanged()
	return true
}

func (c *Controller) Rotation() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rotation
}

// SetSearchNeedle hands needle to every page. Results are fetched lazily,
// by the next refresh for visible pages or by RunSearch.
func (c *Controller) SetSearchNeedle(needle string) {
	c.mu.Lock()
	c.needle = needle
	for _, p := range c.pages {
		p.SetSearch(needle)
	}
	c.mu.Unlock()

	c.listener.SearchStatus("")
	c.tracker.Trigger()
}

func (c *Controller) Needle() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.needle
}

// RunSearch looks for the next page with hits for the current needle,
// starting at the most visible page, or the page after it in direction
// when step is non-zero. The first page with hits is scrolled into view.
// The needle is checked before every page; if it was cleared or replaced
// in the meantime the scan stops.
func (c *Controller) RunSearch(ctx context.Context, direction, step int) (SearchResult, error) {
	if direction >= 0 {
		direction = 1
	} else {
		direction = -1
	}

	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return SearchResult{Page: -1}, ErrNoDocument
	}
	needle := c.needle
	pages := c.pages
	bounds, _ := c.layoutLocked()
	c.searchPage = c.mostVisibleLocked(bounds)
	next := c.searchPage
	c.mu.Unlock()

	if step != 0 {
		next += direction
	}
	c.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindSearchStart, Comp: "doc", Page: otel.PageNum(next), Needle: needle})

	for next >= 0 && next < len(pages) {
		live := c.Needle()
		if live == "" {
			c.listener.SearchStatus("")
			c.events.Warn(otel.KindSearchAbort, "doc", "needle cleared")
			return SearchResult{Status: StatusEmptyNeedle, Page: -1}, nil
		}
		if live != needle {
			c.events.Warn(otel.KindSearchAbort, "doc", "needle changed")
			return SearchResult{Status: StatusNeedleChanged, Page: -1}, nil
		}
		if err := ctx.Err(); err != nil {
			return SearchResult{Page: -1}, err
		}

		c.listener.SearchStatus(fmt.Sprintf("Searching page %d.", next+1))
		p := pages[next]
		if p.LoadedNeedle() != p.Needle() {
			if err := p.EnsureSearchLoaded(ctx); err != nil {
				c.listener.SearchStatus(fmt.Sprintf("Search failed on page %d.", next+1))
				return SearchResult{Page: next}, fmt.Errorf("document: search page %d: %w", next+1, err)
			}
		}

		if hits, loaded := p.Hits(); loaded == needle && len(hits) > 0 {
			c.mu.Lock()
			c.searchPage = next
			c.mu.Unlock()
			c.GoToPage(next)
			c.listener.SearchStatus(fmt.Sprintf("%d hits on page %d.", len(hits), next+1))
			c.events.Emit(otel.Event{
				Level: otel.LevelInfo, Kind: otel.KindSearchHit, Comp: "doc",
				Page: otel.PageNum(next), Needle: needle, Count: len(hits),
			})
			return SearchResult{Status: StatusFound, Page: next, Hits: len(hits)}, nil
		}
		next += direction
	}

	c.listener.SearchStatus("No more search hits.")
	c.events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindSearchMiss, Comp: "doc", Needle: needle})
	return SearchResult{Status: StatusNoMoreHits, Page: -1}, nil
}

// SearchPage returns the page the last search stopped on.
func (c *Controller) SearchPage() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.searchPage
}

// SetViewport sets the window size in display pixels.
func (c *Controller) SetViewport(width, height float64) {
	c.mu.Lock()
	if c.width == width && c.window.Height == height {
		c.mu.Unlock()
		return
	}
	c.width = width
	c.window.Height = max(0, height)
	c.mu.Unlock()
	c.scan()
	c.listener.ViewChanged()
}

// ScrollTo moves the window top to y, clamped to the document.
func (c *Controller) ScrollTo(y float64) {
	c.mu.Lock()
	c.window.Top = y
	c.mu.Unlock()
	c.scan()
	c.listener.ViewChanged()
}

func (c *Controller) ScrollBy(dy float64) {
	c.mu.Lock()
	y := c.window.Top + dy
	c.mu.Unlock()
	c.ScrollTo(y)
}

// GoToPage scrolls so page n (zero-based, clamped) starts at the top of the
// window.
func (c *Controller) GoToPage(n int) {
	c.mu.Lock()
	bounds, _ := c.layoutLocked()
	if len(bounds) == 0 {
		c.mu.Unlock()
		return
	}
	n = min(max(n, 0), len(bounds)-1)
	y := bounds[n].Top - c.opts.PageGap
	c.mu.Unlock()
	c.ScrollTo(y)
}

// CurrentPage returns the most visible page, zero-based.
func (c *Controller) CurrentPage() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	bounds, _ := c.layoutLocked()
	return c.mostVisibleLocked(bounds)
}

// Layout returns the live scroll geometry.
func (c *Controller) Layout() Layout {
	c.mu.Lock()
	defer c.mu.Unlock()
	bounds, total := c.layoutLocked()
	return Layout{Bounds: bounds, Total: total, Window: c.window, Width: c.width}
}

// Pages returns the pages of the open document.
func (c *Controller) Pages() []*page.Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.pages)
}

func (c *Controller) PageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pages)
}

func (c *Controller) Title() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.title
}

// Outline returns the document outline, nil if it has none.
func (c *Controller) Outline() []processor.OutlineItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.outline)
}

// FollowLink navigates internal links of the form "#pageN" (one-based) and
// returns any other href unchanged for the caller to open.
func (c *Controller) FollowLink(href string) (external string, err error) {
	rest, ok := strings.CutPrefix(href, "#page")
	if !ok {
		return href, nil
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 || n > c.PageCount() {
		return "", fmt.Errorf("%w: %q", ErrBadLink, href)
	}
	c.GoToPage(n - 1)
	return "", nil
}

// PageText loads page n if needed and returns its plain text.
func (c *Controller) PageText(ctx context.Context, n int) (string, error) {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return "", ErrNoDocument
	}
	if n < 0 || n >= len(c.pages) {
		c.mu.Unlock()
		return "", fmt.Errorf("document: page %d out of range", n+1)
	}
	p := c.pages[n]
	c.mu.Unlock()

	if err := p.EnsureLoaded(ctx); err != nil {
		return "", err
	}
	return p.Text().String(), nil
}

// PageAt returns the page under display y and the offset into it.
func (c *Controller) PageAt(y float64) (n int, dy float64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bounds, _ := c.layoutLocked()
	i, found := slices.BinarySearchFunc(bounds, y, func(b viewport.Bounds, y float64) int {
		switch {
		case b.Bottom <= y:
			return -1
		case b.Top > y:
			return 1
		}
		return 0
	})
	if !found {
		return 0, 0, false
	}
	return i, y - bounds[i].Top, true
}

// Flush runs any pending refresh now.
func (c *Controller) Flush() bool { return c.tracker.Flush() }
