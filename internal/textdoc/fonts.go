package textdoc

import (
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/abelbrown/folio/internal/logging"
)

type variant int

const (
	regular variant = iota
	bold
	italic
	boldItalic
	mono
	numVariants
)

// style is how a run of text is set.
type style struct {
	size   float64
	bold   bool
	italic bool
	mono   bool
}

func (s style) variant() variant {
	switch {
	case s.mono:
		return mono
	case s.bold && s.italic:
		return boldItalic
	case s.bold:
		return bold
	case s.italic:
		return italic
	}
	return regular
}

func (v variant) family() string {
	if v == mono {
		return "Go Mono"
	}
	return "Go"
}

func (v variant) weight() string {
	if v == bold || v == boldItalic {
		return "bold"
	}
	return "normal"
}

func (v variant) slant() string {
	if v == italic || v == boldItalic {
		return "italic"
	}
	return "normal"
}

// parsed Go fonts, indexed by variant. A nil entry falls back to basicfont.
var goFonts = sync.OnceValue(func() [numVariants]*opentype.Font {
	var out [numVariants]*opentype.Font
	for v, ttf := range [numVariants][]byte{goregular.TTF, gobold.TTF, goitalic.TTF, gobolditalic.TTF, gomono.TTF} {
		f, err := opentype.Parse(ttf)
		if err != nil {
			logging.Error("textdoc: parse font", "variant", v, "err", err)
			continue
		}
		out[v] = f
	}
	return out
})

type faceKey struct {
	v    variant
	size float64
	dpi  float64
}

// maxFaces bounds the face cache; zooming walks through many DPIs.
const maxFaces = 128

// faceCache hands out sized faces. Faces are not safe for concurrent use,
// so callers hold mu for as long as they use one.
type faceCache struct {
	mu    sync.Mutex
	faces map[faceKey]font.Face
}

func newFaceCache() *faceCache {
	return &faceCache{faces: make(map[faceKey]font.Face)}
}

// face returns the face for v at size points and dpi. Caller holds mu.
func (c *faceCache) face(v variant, size, dpi float64) font.Face {
	key := faceKey{v: v, size: size, dpi: dpi}
	if f, ok := c.faces[key]; ok {
		return f
	}
	otf := goFonts()[v]
	if otf == nil {
		return basicfont.Face7x13
	}
	f, err := opentype.NewFace(otf, &opentype.FaceOptions{Size: size, DPI: dpi, Hinting: font.HintingNone})
	if err != nil {
		logging.Warn("textdoc: new face", "size", size, "dpi", dpi, "err", err)
		return basicfont.Face7x13
	}
	if len(c.faces) >= maxFaces {
		for k, old := range c.faces {
			old.Close()
			delete(c.faces, k)
		}
	}
	c.faces[key] = f
	return f
}

// measure returns the advance width of s in points. Caller holds mu.
func (c *faceCache) measure(v variant, size float64, s string) float64 {
	if s == "" {
		return 0
	}
	return toFloat(font.MeasureString(c.face(v, size, 72), s))
}

// ascent returns the face ascent in points. Caller holds mu.
func (c *faceCache) ascent(v variant, size float64) float64 {
	return toFloat(c.face(v, size, 72).Metrics().Ascent)
}

func toFloat(x fixed.Int26_6) float64 { return float64(x) / 64 }

func toFixed(x float64) fixed.Int26_6 { return fixed.Int26_6(x * 64) }
