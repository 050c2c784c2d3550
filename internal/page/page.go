// Package page holds the per-page state machine: geometry, bitmap, text
// and link overlays, and search results for one page of an open document.
//
// Every "ensure" operation is idempotent and may be called from any
// goroutine. Remote work is never cancelled; a result that comes back for
// a zoom, rotation or needle that is no longer current is dropped and the
// work is reissued for the live value.
package page

import (
	"context"
	"errors"
	"image"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/abelbrown/folio/internal/logging"
	"github.com/abelbrown/folio/internal/otel"
	"github.com/abelbrown/folio/internal/processor"
	"github.com/abelbrown/folio/internal/stale"
)

// Source is the processor as seen by a single page.
type Source interface {
	PageSize(ctx context.Context, page int) (processor.Size, error)
	PageText(ctx context.Context, page int) (*processor.TextPage, error)
	PageLinks(ctx context.Context, page int) ([]processor.Link, error)
	Search(ctx context.Context, page int, needle string) ([]processor.Rect, error)
	Rasterize(ctx context.Context, page int, dpi float64, rotation int) (*image.RGBA, error)
}

// Params is what a bitmap or overlay set was produced for.
type Params struct {
	Zoom     int
	Rotation int
}

// LoadState tracks geometry, text and link loading.
type LoadState int

const (
	Unloaded LoadState = iota
	Loading
	Loaded
)

func (s LoadState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	}
	return "unloaded"
}

// Config configures a Page.
type Config struct {
	Number      int
	Source      Source
	DefaultSize processor.Size // used until the real size loads
	Zoom        int
	Rotation    int

	// DevicePixelRatio multiplies the zoom to get the rasterization DPI.
	// Zero means 1.
	DevicePixelRatio float64

	// IsVisible decides whether a stale render is reissued. Nil means
	// always visible.
	IsVisible func(page int) bool

	// OnChange runs after any committed state change, without locks held.
	OnChange func(page int)

	Events *otel.Logger
}

// Page is one page's state machine.
type Page struct {
	number    int
	src       Source
	dpr       float64
	isVisible func(int) bool
	onChange  func(int)
	events    *otel.Logger

	loads singleflight.Group

	mu       sync.Mutex
	size     processor.Size
	zoom     int
	rotation int

	loadState LoadState
	loadErr   error
	text      *processor.TextPage
	links     []processor.Link

	render stale.Guard[Params]
	bitmap *image.RGBA

	overlays      overlaySet
	overlayTag    Params
	overlaysOK    bool
	searchLayer   []Overlay
	searchTag     Params
	searchLayerOK bool

	search       stale.Guard[string]
	needle       string
	loadedNeedle string
	shownNeedle  string
	hits         []processor.Rect
}

type overlaySet struct {
	text  []Overlay
	links []Overlay
}

// New creates a Page in the unloaded state.
func New(cfg Config) *Page {
	dpr := cfg.DevicePixelRatio
	if dpr <= 0 {
		dpr = 1
	}
	return &Page{
		number:    cfg.Number,
		src:       cfg.Source,
		dpr:       dpr,
		isVisible: cfg.IsVisible,
		onChange:  cfg.OnChange,
		events:    cfg.Events,
		size:      cfg.DefaultSize,
		zoom:      cfg.Zoom,
		rotation:  NormalizeRotation(cfg.Rotation),
	}
}

// NormalizeRotation rounds angle to the nearest multiple of 90 in [0, 360).
func NormalizeRotation(angle int) int {
	a := ((angle % 360) + 360) % 360
	return (int(math.Round(float64(a)/90)) * 90) % 360
}

func (p *Page) params() Params {
	return Params{Zoom: p.zoom, Rotation: p.rotation}
}

func (p *Page) changed() {
	if p.onChange != nil {
		p.onChange(p.number)
	}
}

func (p *Page) visible() bool {
	return p.isVisible == nil || p.isVisible(p.number)
}

// SetZoom sets the zoom in DPI-equivalent units. Returns false if unchanged.
func (p *Page) SetZoom(zoom int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if zoom == p.zoom {
		return false
	}
	p.zoom = zoom
	return true
}

// SetRotation sets the rotation after normalizing it. Returns false if the
// normalized value is unchanged.
func (p *Page) SetRotation(angle int) bool {
	r := NormalizeRotation(angle)
	p.mu.Lock()
	defer p.mu.Unlock()
	if r == p.rotation {
		return false
	}
	p.rotation = r
	return true
}

// SetSearch sets the search needle. Nothing is fetched until
// EnsureSearchLoaded.
func (p *Page) SetSearch(needle string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.needle = needle
}

// EnsureLoaded loads size, text and links once. Concurrent callers share
// the same load. A failed load is remembered and returned to later callers
// instead of being retried.
func (p *Page) EnsureLoaded(ctx context.Context) error {
	p.mu.Lock()
	switch {
	case p.loadState == Loaded:
		p.mu.Unlock()
		return nil
	case p.loadErr != nil:
		err := p.loadErr
		p.mu.Unlock()
		return err
	}
	p.loadState = Loading
	p.mu.Unlock()

	ch := p.loads.DoChan("load", func() (any, error) {
		return nil, p.load(context.WithoutCancel(ctx))
	})
	select {
	case r := <-ch:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Page) load(ctx context.Context) error {
	p.mu.Lock()
	done := p.loadState == Loaded
	p.mu.Unlock()
	if done {
		return nil
	}

	start := time.Now()
	var (
		size  processor.Size
		text  *processor.TextPage
		links []processor.Link
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		size, err = p.src.PageSize(gctx, p.number)
		return err
	})
	g.Go(func() (err error) {
		text, err = p.src.PageText(gctx, p.number)
		return err
	})
	g.Go(func() (err error) {
		links, err = p.src.PageLinks(gctx, p.number)
		return err
	})
	err := g.Wait()

	p.mu.Lock()
	zoom, rotation := p.zoom, p.rotation
	if err != nil {
		p.loadState = Unloaded
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			p.loadErr = err
		}
		p.mu.Unlock()
		logging.Warn("page: load failed", "page", p.number, "err", err)
		p.events.Page(otel.KindPageLoadError, p.number, zoom, rotation, err)
		return err
	}
	p.size = size
	p.text = text
	p.links = links
	p.loadState = Loaded
	p.overlaysOK = false
	p.mu.Unlock()

	p.events.Emit(otel.Event{
		Level: otel.LevelDebug, Kind: otel.KindPageLoad, Comp: "page",
		Page: otel.PageNum(p.number), Zoom: zoom, Rotation: rotation, Dur: time.Since(start),
	})
	p.changed()
	return nil
}

// EnsureRendered makes the bitmap match the live zoom and rotation.
//
// It returns at once if the bitmap is fresh or a render is already in
// flight; the in-flight render rechecks the live target when it completes
// and renders again if the target moved, as long as the page is visible.
// So there is never more than one rasterize call outstanding per page.
func (p *Page) EnsureRendered(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	for {
		p.mu.Lock()
		target := p.params()
		if !p.render.Begin(target) {
			p.mu.Unlock()
			return nil
		}
		p.mu.Unlock()

		start := time.Now()
		bmp, err := p.src.Rasterize(ctx, p.number, float64(target.Zoom)*p.dpr, target.Rotation)

		p.mu.Lock()
		if err != nil {
			p.render.Abort()
			p.mu.Unlock()
			logging.Warn("page: render failed", "page", p.number, "zoom", target.Zoom, "rotation", target.Rotation, "err", err)
			p.events.Page(otel.KindPageRenderError, p.number, target.Zoom, target.Rotation, err)
			return err
		}
		if p.render.Finish(p.params()) {
			p.bitmap = bmp
			p.mu.Unlock()
			p.events.Emit(otel.Event{
				Level: otel.LevelDebug, Kind: otel.KindPageRender, Comp: "page",
				Page: otel.PageNum(p.number), Zoom: target.Zoom, Rotation: target.Rotation, Dur: time.Since(start),
			})
			p.changed()
			return nil
		}
		p.mu.Unlock()

		p.events.Page(otel.KindPageStale, p.number, target.Zoom, target.Rotation, nil)
		if !p.visible() {
			return nil
		}
	}
}

// EnsureSearchLoaded fetches results for the live needle if the loaded
// results are for a different one. An empty needle clears results without
// a remote call. If a search is already in flight the caller waits for it
// and then checks again.
func (p *Page) EnsureSearchLoaded(ctx context.Context) error {
	for {
		p.mu.Lock()
		needle := p.needle
		if p.loadedNeedle == needle {
			p.mu.Unlock()
			return nil
		}
		if needle == "" {
			p.hits = nil
			p.loadedNeedle = ""
			p.search.Invalidate()
			p.mu.Unlock()
			p.changed()
			return nil
		}
		if wait := p.search.Wait(); wait != nil {
			p.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if !p.search.Begin(needle) {
			// Committed results already match.
			p.loadedNeedle = needle
			p.mu.Unlock()
			return nil
		}
		p.mu.Unlock()

		hits, err := p.src.Search(context.WithoutCancel(ctx), p.number, needle)

		p.mu.Lock()
		if err != nil {
			p.search.Abort()
			p.mu.Unlock()
			logging.Warn("page: search failed", "page", p.number, "err", err)
			p.events.Page(otel.KindPageSearch, p.number, 0, 0, err)
			return err
		}
		if p.search.Finish(p.needle) {
			p.hits = hits
			p.loadedNeedle = needle
			p.mu.Unlock()
			p.events.Emit(otel.Event{
				Level: otel.LevelDebug, Kind: otel.KindPageSearch, Comp: "page",
				Page: otel.PageNum(p.number), Needle: needle, Count: len(hits),
			})
			p.changed()
			return nil
		}
		p.mu.Unlock()
	}
}

// EnsureDisplayed brings everything the page shows up to date: load, then
// bitmap, overlays and search results. Only a load failure is returned;
// render and search failures are logged and retried on the next call.
func (p *Page) EnsureDisplayed(ctx context.Context) error {
	if err := p.EnsureLoaded(ctx); err != nil {
		return err
	}

	var g errgroup.Group
	g.Go(func() error {
		p.EnsureRendered(ctx)
		return nil
	})
	g.Go(func() error {
		p.EnsureSearchLoaded(ctx)
		return nil
	})

	p.mu.Lock()
	rebuilt := p.rebuildOverlays()
	p.mu.Unlock()

	g.Wait()

	p.mu.Lock()
	rebuilt = p.rebuildSearchLayer() || rebuilt
	p.mu.Unlock()
	if rebuilt {
		p.changed()
	}
	return nil
}
