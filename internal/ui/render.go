package ui

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"golang.org/x/image/draw"

	"github.com/abelbrown/folio/internal/page"
	"github.com/abelbrown/folio/internal/viewport"
)

// pageView is the part of a page the renderer reads.
type pageView interface {
	DisplaySize() (w, h int)
	Bitmap() (*image.RGBA, bool)
	Overlays(kind page.OverlayKind) []page.Overlay
}

// strip describes what to paint: pages stacked at bounds, seen through win.
type strip struct {
	bounds []viewport.Bounds
	win    viewport.Window
	pages  []pageView
	cellPx float64 // display pixels per canvas pixel
	panX   int     // canvas pixels the strip is shifted left
}

// paint draws the visible part of the strip onto a canvas of cols x rows*2
// pixels. Each terminal cell shows two vertically stacked canvas pixels.
func paint(s strip, cols, rows int) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, cols, rows*2))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(canvasBackground), image.Point{}, draw.Src)
	if s.cellPx <= 0 {
		return canvas
	}
	bottom := s.win.Top + s.win.Height
	for i, b := range s.bounds {
		if i >= len(s.pages) || b.Bottom <= s.win.Top || b.Top >= bottom {
			continue
		}
		p := s.pages[i]
		w, h := p.DisplaySize()
		cw := int(math.Round(float64(w) / s.cellPx))
		ch := int(math.Round(float64(h) / s.cellPx))
		left := (cols-cw)/2 - s.panX
		top := int(math.Round((b.Top - s.win.Top) / s.cellPx))
		dr := image.Rect(left, top, left+cw, top+ch)

		if bmp, _ := p.Bitmap(); bmp != nil {
			// A stale bitmap is stretched to the live size until the fresh one lands.
			draw.ApproxBiLinear.Scale(canvas, dr, bmp, bmp.Bounds(), draw.Src, nil)
		} else {
			draw.Draw(canvas, dr, image.NewUniform(pagePlaceholder), image.Point{}, draw.Src)
		}

		hl := image.NewUniform(searchHighlight)
		for _, o := range p.Overlays(page.SearchOverlay) {
			r := image.Rect(
				left+int(math.Floor(o.Rect.X/s.cellPx)),
				top+int(math.Floor(o.Rect.Y/s.cellPx)),
				left+int(math.Ceil((o.Rect.X+o.Rect.W)/s.cellPx)),
				top+int(math.Ceil((o.Rect.Y+o.Rect.H)/s.cellPx)),
			)
			draw.Draw(canvas, r.Intersect(dr), hl, image.Point{}, draw.Over)
		}
	}
	return canvas
}

// halfBlocks renders canvas as terminal rows of upper-half blocks with
// 24-bit colors, the top pixel as foreground and the bottom as background.
func halfBlocks(canvas *image.RGBA) string {
	b := canvas.Bounds()
	var sb strings.Builder
	for y := b.Min.Y; y < b.Max.Y; y += 2 {
		var fg, bg color.RGBA
		first := true
		for x := b.Min.X; x < b.Max.X; x++ {
			top := canvas.RGBAAt(x, y)
			bot := canvasBackground
			if y+1 < b.Max.Y {
				bot = canvas.RGBAAt(x, y+1)
			}
			if first || top != fg {
				fmt.Fprintf(&sb, "\x1b[38;2;%d;%d;%dm", top.R, top.G, top.B)
				fg = top
			}
			if first || bot != bg {
				fmt.Fprintf(&sb, "\x1b[48;2;%d;%d;%dm", bot.R, bot.G, bot.B)
				bg = bot
			}
			first = false
			sb.WriteString("▀")
		}
		sb.WriteString("\x1b[0m")
		if y+2 < b.Max.Y {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
