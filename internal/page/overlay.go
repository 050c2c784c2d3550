package page

import (
	"image"
	"math"
	"slices"

	"github.com/abelbrown/folio/internal/processor"
)

// OverlayKind says what an overlay box marks.
type OverlayKind int

const (
	TextOverlay OverlayKind = iota
	LinkOverlay
	SearchOverlay
)

// Overlay is a box in display pixels, origin at the top-left of the
// rotated, zoomed page.
type Overlay struct {
	Kind OverlayKind
	Rect processor.Rect
	Text string // span text for TextOverlay
	Href string // target for LinkOverlay
}

// toDisplay maps a box in page points to display pixels for pr. Caller
// holds p.mu.
func (p *Page) toDisplay(r processor.Rect, pr Params) processor.Rect {
	w, h := p.size.Width, p.size.Height
	var out processor.Rect
	switch pr.Rotation {
	case 90:
		out = processor.Rect{X: h - r.Y - r.H, Y: r.X, W: r.H, H: r.W}
	case 180:
		out = processor.Rect{X: w - r.X - r.W, Y: h - r.Y - r.H, W: r.W, H: r.H}
	case 270:
		out = processor.Rect{X: r.Y, Y: w - r.X - r.W, W: r.H, H: r.W}
	default:
		out = r
	}
	s := float64(pr.Zoom) / 72
	return processor.Rect{X: out.X * s, Y: out.Y * s, W: out.W * s, H: out.H * s}
}

// rebuildOverlays recomputes text and link overlays if they were built for
// other params. Caller holds p.mu.
func (p *Page) rebuildOverlays() bool {
	pr := p.params()
	if p.loadState != Loaded || (p.overlaysOK && p.overlayTag == pr) {
		return false
	}
	var set overlaySet
	if p.text != nil {
		for _, blk := range p.text.Blocks {
			for _, ln := range blk.Lines {
				for _, sp := range ln.Spans {
					set.text = append(set.text, Overlay{Kind: TextOverlay, Rect: p.toDisplay(sp.BBox, pr), Text: sp.Text})
				}
			}
		}
	}
	for _, l := range p.links {
		set.links = append(set.links, Overlay{Kind: LinkOverlay, Rect: p.toDisplay(l.Rect, pr), Href: l.Href})
	}
	p.overlays = set
	p.overlayTag = pr
	p.overlaysOK = true
	return true
}

// rebuildSearchLayer recomputes search highlight boxes if the loaded
// needle or the params moved since they were built. Caller holds p.mu.
func (p *Page) rebuildSearchLayer() bool {
	pr := p.params()
	if p.searchLayerOK && p.shownNeedle == p.loadedNeedle && p.searchTag == pr {
		return false
	}
	layer := make([]Overlay, 0, len(p.hits))
	for _, h := range p.hits {
		layer = append(layer, Overlay{Kind: SearchOverlay, Rect: p.toDisplay(h, pr)})
	}
	p.searchLayer = layer
	p.shownNeedle = p.loadedNeedle
	p.searchTag = pr
	p.searchLayerOK = true
	return true
}

// Number returns the zero-based page number.
func (p *Page) Number() int { return p.number }

// Size returns the page size in points; the default until loaded.
func (p *Page) Size() processor.Size {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// DisplaySize returns the on-screen size in pixels for the live zoom and
// rotation.
func (p *Page) DisplaySize() (w, h int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := float64(p.zoom) / 72
	w = int(math.Floor(p.size.Width * s))
	h = int(math.Floor(p.size.Height * s))
	if p.rotation == 90 || p.rotation == 270 {
		w, h = h, w
	}
	return w, h
}

// Zoom returns the live zoom.
func (p *Page) Zoom() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.zoom
}

// Rotation returns the live rotation in degrees.
func (p *Page) Rotation() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rotation
}

// LoadState reports how far loading got.
func (p *Page) LoadState() LoadState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadState
}

// LoadErr returns the error that stopped loading, if any.
func (p *Page) LoadErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadErr
}

// Rendering reports whether a rasterize call is in flight.
func (p *Page) Rendering() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.render.Busy()
}

// RenderTag returns the params of the committed bitmap.
func (p *Page) RenderTag() (Params, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.render.Tag()
}

// Bitmap returns the committed bitmap and whether it matches the live
// zoom and rotation.
func (p *Page) Bitmap() (*image.RGBA, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bitmap, p.render.Fresh(p.params())
}

// Needle returns the requested search needle.
func (p *Page) Needle() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.needle
}

// LoadedNeedle returns the needle the current hits were fetched for.
func (p *Page) LoadedNeedle() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadedNeedle
}

// ShownNeedle returns the needle the search overlay was built for.
func (p *Page) ShownNeedle() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shownNeedle
}

// Hits returns the search hits in page points and the needle they are for.
func (p *Page) Hits() ([]processor.Rect, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.hits), p.loadedNeedle
}

// Text returns the structured text, nil until loaded.
func (p *Page) Text() *processor.TextPage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.text
}

// Links returns the page links in page points.
func (p *Page) Links() []processor.Link {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.links)
}

// Overlays returns the current overlays of kind, in display pixels.
func (p *Page) Overlays(kind OverlayKind) []Overlay {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch kind {
	case TextOverlay:
		return slices.Clone(p.overlays.text)
	case LinkOverlay:
		return slices.Clone(p.overlays.links)
	}
	return slices.Clone(p.searchLayer)
}

// LinkAt returns the href of the link under display point (x, y).
func (p *Page) LinkAt(x, y float64) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, o := range p.overlays.links {
		if x >= o.Rect.X && x < o.Rect.X+o.Rect.W && y >= o.Rect.Y && y < o.Rect.Y+o.Rect.H {
			return o.Href, true
		}
	}
	return "", false
}
