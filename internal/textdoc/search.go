package textdoc

import (
	"slices"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/abelbrown/folio/internal/processor"
)

// foldedRune is one rune of case-folded line text and the byte range of
// the source rune it came from.
type foldedRune struct {
	r          rune
	span       int
	start, end int
}

// fold returns the case-folded, NFC-normalized runes of s.
func fold(c cases.Caser, s string) []rune {
	return []rune(c.String(norm.NFC.String(s)))
}

// search finds needle on p, case-insensitively. Matches never cross lines.
// Caller holds fc.mu.
func search(p *page, needle string, fc *faceCache) []processor.Rect {
	c := cases.Fold()
	want := fold(c, needle)
	if len(want) == 0 {
		return nil
	}

	var hits []processor.Rect
	for _, blk := range p.blocks {
		for _, ln := range blk {
			line := foldLine(c, ln)
			for i := 0; i+len(want) <= len(line); {
				if !matchAt(line[i:], want) {
					i++
					continue
				}
				first, last := line[i], line[i+len(want)-1]
				x0 := spanX(fc, ln.spans[first.span], first.start)
				x1 := spanX(fc, ln.spans[last.span], last.end)
				hits = append(hits, processor.Rect{X: x0, Y: ln.bbox.Y, W: x1 - x0, H: ln.bbox.H})
				i += len(want)
			}
		}
	}
	return hits
}

func foldLine(c cases.Caser, ln placedLine) []foldedRune {
	var out []foldedRune
	for si, sp := range ln.spans {
		for off, r := range sp.Text {
			end := off + utf8.RuneLen(r)
			for _, fr := range fold(c, string(r)) {
				out = append(out, foldedRune{r: fr, span: si, start: off, end: end})
			}
		}
	}
	return out
}

func matchAt(line []foldedRune, want []rune) bool {
	return slices.EqualFunc(line[:len(want)], want, func(f foldedRune, r rune) bool { return f.r == r })
}

// spanX is the x position of byte offset off within sp.
func spanX(fc *faceCache, sp placedSpan, off int) float64 {
	return sp.BBox.X + fc.measure(sp.v, sp.Font.Size, sp.Text[:off])
}
