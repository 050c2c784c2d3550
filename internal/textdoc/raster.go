package textdoc

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

var (
	ink      = image.NewUniform(color.RGBA{0x1f, 0x1f, 0x1f, 0xff})
	linkInk  = image.NewUniform(color.RGBA{0x1a, 0x4f, 0xd6, 0xff})
	pageFill = image.NewUniform(color.White)
)

// rasterize draws p at dpi and rotates the result clockwise by rotation,
// which must be 0, 90, 180 or 270. Caller holds fc.mu.
func rasterize(p *page, dpi float64, rotation int, fc *faceCache) *image.RGBA {
	scale := dpi / 72
	w := int(math.Ceil(PageWidth * scale))
	h := int(math.Ceil(PageHeight * scale))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), pageFill, image.Point{}, draw.Src)

	for _, blk := range p.blocks {
		for _, ln := range blk {
			for _, sp := range ln.spans {
				src := ink
				if sp.Href != "" {
					src = linkInk
				}
				d := font.Drawer{
					Dst:  img,
					Src:  src,
					Face: fc.face(sp.v, sp.Font.Size, dpi),
					Dot:  fixed.Point26_6{X: toFixed(sp.BBox.X * scale), Y: toFixed(sp.baseline * scale)},
				}
				d.DrawString(sp.Text)
				if sp.Href != "" {
					y := int(sp.baseline*scale) + int(math.Max(1, scale))
					underline := image.Rect(int(sp.BBox.X*scale), y, int((sp.BBox.X+sp.BBox.W)*scale), y+int(math.Max(1, scale/2)))
					draw.Draw(img, underline, src, image.Point{}, draw.Src)
				}
			}
		}
	}
	return rotate(img, rotation)
}

// rotate returns src turned clockwise by rotation degrees.
func rotate(src *image.RGBA, rotation int) *image.RGBA {
	if rotation == 0 {
		return src
	}
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	var dst *image.RGBA
	if rotation == 180 {
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	} else {
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := src.RGBAAt(x, y)
			switch rotation {
			case 90:
				dst.SetRGBA(h-1-y, x, c)
			case 180:
				dst.SetRGBA(w-1-x, h-1-y, c)
			case 270:
				dst.SetRGBA(y, w-1-x, c)
			}
		}
	}
	return dst
}
