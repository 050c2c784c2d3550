// Package viewport decides which pages are near the screen and tells the
// document when to refresh them.
//
// Page positions are in display pixels along one vertical scroll axis.
// A page counts as visible while it intersects the window grown by a
// prefetch margin, so rendering starts before the page scrolls into view.
package viewport

import (
	"sync"
	"time"

	"github.com/abelbrown/folio/internal/debounce"
	"github.com/abelbrown/folio/internal/otel"
	"github.com/abelbrown/folio/internal/sortedset"
)

// DefaultDebounce is the refresh coalescing window.
const DefaultDebounce = 50 * time.Millisecond

// Window is the visible part of the scroll area.
type Window struct {
	Top    float64
	Height float64
}

// Mid returns the vertical midpoint.
func (w Window) Mid() float64 { return w.Top + w.Height/2 }

// Margins extend the window by fractions of its height.
type Margins struct {
	Above float64
	Below float64
}

// DefaultMargins prefetches a quarter screen above and a full screen below.
func DefaultMargins() Margins {
	return Margins{Above: 0.25, Below: 1.0}
}

// Bounds is a page's vertical extent in scroll coordinates.
type Bounds struct {
	Top    float64
	Bottom float64
}

func (b Bounds) intersects(lo, hi float64) bool {
	return b.Bottom > lo && b.Top < hi
}

// Entry reports a page entering or leaving the grown window.
type Entry struct {
	Page         int
	Intersecting bool
}

// Stack lays pages out top to bottom with gap pixels before each page.
// It returns each page's bounds and the total scroll height.
func Stack(heights []float64, gap float64) ([]Bounds, float64) {
	bounds := make([]Bounds, len(heights))
	y := 0.0
	for i, h := range heights {
		y += gap
		bounds[i] = Bounds{Top: y, Bottom: y + h}
		y += h
	}
	return bounds, y + gap
}

// MostVisible picks the page to keep in place across a zoom or rotation:
// the visible page straddling the window midpoint, else the first visible
// page on screen, else the first visible page.
func MostVisible(bounds []Bounds, visible []int, w Window) (int, bool) {
	mid := w.Mid()
	for _, p := range visible {
		if p >= 0 && p < len(bounds) && bounds[p].Top <= mid && mid < bounds[p].Bottom {
			return p, true
		}
	}
	for _, p := range visible {
		if p >= 0 && p < len(bounds) && bounds[p].intersects(w.Top, w.Top+w.Height) {
			return p, true
		}
	}
	if len(visible) > 0 {
		return visible[0], true
	}
	return 0, false
}

// Config configures a Tracker.
type Config struct {
	Margins  Margins
	Debounce time.Duration

	// Refresh receives the visible pages in ascending order. It runs on
	// the debounce timer's goroutine, or the caller's for Flush.
	Refresh func(pages []int)

	Events *otel.Logger
}

// Tracker keeps the visible set and schedules coalesced refreshes.
// Goroutine-safe.
type Tracker struct {
	margins Margins
	refresh func([]int)
	events  *otel.Logger
	sched   *debounce.Scheduler

	mu      sync.Mutex
	visible *sortedset.Set
	last    map[int]bool // intersection state from the previous Scan
}

// NewTracker creates a Tracker with an empty visible set.
func NewTracker(cfg Config) *Tracker {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Margins == (Margins{}) {
		cfg.Margins = DefaultMargins()
	}
	return &Tracker{
		margins: cfg.Margins,
		refresh: cfg.Refresh,
		events:  cfg.Events,
		sched:   debounce.New(cfg.Debounce),
		visible: sortedset.New(),
		last:    make(map[int]bool),
	}
}

// Scheduler exposes the refresh scheduler, mainly so tests can swap its
// clock.
func (t *Tracker) Scheduler() *debounce.Scheduler { return t.sched }

// Margins returns the prefetch margins.
func (t *Tracker) Margins() Margins { return t.margins }

// Observe applies a batch of intersection changes and schedules one
// refresh for the whole batch.
func (t *Tracker) Observe(entries []Entry) {
	t.mu.Lock()
	for _, e := range entries {
		if e.Intersecting {
			t.visible.Add(e.Page)
		} else {
			t.visible.Delete(e.Page)
		}
		t.last[e.Page] = e.Intersecting
	}
	t.mu.Unlock()
	t.Trigger()
}

// Scan computes intersections for all pages against w and observes the
// ones that changed since the last scan. Nothing is scheduled when no
// page changed.
func (t *Tracker) Scan(bounds []Bounds, w Window) {
	lo := w.Top - t.margins.Above*w.Height
	hi := w.Top + w.Height + t.margins.Below*w.Height

	t.mu.Lock()
	var changed []Entry
	for p, b := range bounds {
		in := b.intersects(lo, hi)
		if t.last[p] != in {
			changed = append(changed, Entry{Page: p, Intersecting: in})
		}
	}
	for p := range t.last {
		if p >= len(bounds) && t.last[p] {
			changed = append(changed, Entry{Page: p, Intersecting: false})
		}
	}
	t.mu.Unlock()

	if len(changed) > 0 {
		t.Observe(changed)
	}
}

// Trigger schedules a refresh without changing the visible set, for
// changes such as zoom that affect every visible page.
func (t *Tracker) Trigger() {
	t.sched.Schedule(t.fire)
}

// Flush runs any pending refresh now. Returns false if none was pending.
func (t *Tracker) Flush() bool {
	if !t.sched.Cancel() {
		return false
	}
	t.fire()
	return true
}

func (t *Tracker) fire() {
	pages := t.Visible()
	t.events.Emit(otel.Event{Level: otel.LevelDebug, Kind: otel.KindViewRefresh, Comp: "view", Count: len(pages)})
	if t.refresh != nil {
		t.refresh(pages)
	}
}

// Visible returns the visible pages in ascending order.
func (t *Tracker) Visible() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.visible.Slice()
}

// IsVisible reports whether page is in the visible set.
func (t *Tracker) IsVisible(page int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.visible.Has(page)
}

// Reset empties the visible set and drops any pending refresh.
func (t *Tracker) Reset() {
	t.sched.Cancel()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.visible.Clear()
	clear(t.last)
}
