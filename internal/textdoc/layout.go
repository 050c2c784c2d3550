package textdoc

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/abelbrown/folio/internal/processor"
)

// Page geometry in points: US Letter with one-inch margins.
const (
	PageWidth   = 612.0
	PageHeight  = 792.0
	Margin      = 72.0
	lineSpacing = 1.3
)

type placedSpan struct {
	processor.Span
	v        variant
	baseline float64
}

type placedLine struct {
	bbox  processor.Rect
	spans []placedSpan
}

type page struct {
	blocks [][]placedLine
}

func (p *page) empty() bool { return len(p.blocks) == 0 }

// heading records where a heading landed, for the title and outline.
type heading struct {
	level int
	text  string
	page  int
}

// token is an unbreakable piece of text. lead means whitespace preceded it.
type token struct {
	text string
	st   style
	href string
	lead bool
}

// word is a run of tokens with no whitespace between them, such as
// "**bold**text". Lines only break between words.
type word []token

type lineToks struct {
	toks   []token
	height float64
	ascent float64
	size   float64
}

type layouter struct {
	fc       *faceCache
	pages    []*page
	cur      *page
	block    []placedLine
	y        float64
	headings []heading
}

// layout places paragraphs onto pages. The result always has at least
// one page. Caller holds fc.mu.
func layout(paras []para, fc *faceCache) ([]*page, []heading) {
	l := &layouter{fc: fc}
	l.newPage()
	for _, p := range paras {
		if p.pageBreak {
			l.flushBlock()
			if !l.cur.empty() {
				l.newPage()
			}
			continue
		}
		lines := l.wrap(p)
		if len(lines) == 0 {
			continue
		}
		if l.y > Margin {
			l.y += p.gapBefore
		}
		for i, ln := range lines {
			if l.y+ln.height > PageHeight-Margin && l.y > Margin {
				l.newPage()
			}
			if i == 0 && p.heading > 0 {
				l.headings = append(l.headings, heading{level: p.heading, text: runText(p.runs), page: len(l.pages) - 1})
			}
			l.place(ln, p.indent)
		}
		l.flushBlock()
	}
	l.flushBlock()
	if n := len(l.pages); n > 1 && l.pages[n-1].empty() {
		l.pages = l.pages[:n-1]
	}
	return l.pages, l.headings
}

func (l *layouter) newPage() {
	l.flushBlock()
	l.cur = &page{}
	l.pages = append(l.pages, l.cur)
	l.y = Margin
}

func (l *layouter) flushBlock() {
	if len(l.block) > 0 {
		l.cur.blocks = append(l.cur.blocks, l.block)
		l.block = nil
	}
}

func (l *layouter) wrap(p para) []lineToks {
	maxW := PageWidth - 2*Margin - p.indent
	if p.pre {
		return l.wrapPre(p, maxW)
	}

	var lines []lineToks
	var cur []token
	curW := 0.0
	for _, w := range tokenize(p.runs) {
		ww := l.wordWidth(w)
		sp := 0.0
		if len(cur) > 0 {
			sp = l.fc.measure(w[0].st.variant(), w[0].st.size, " ")
		}
		if len(cur) > 0 && curW+sp+ww > maxW {
			lines = append(lines, l.metrics(cur, bodyStyle))
			cur, curW, sp = nil, 0, 0
		}
		if len(cur) == 0 && len(w) == 1 && ww > maxW {
			chunks := l.chop(w[0], maxW)
			for _, c := range chunks[:len(chunks)-1] {
				lines = append(lines, l.metrics([]token{c}, bodyStyle))
			}
			last := chunks[len(chunks)-1]
			cur = []token{last}
			curW = l.fc.measure(last.st.variant(), last.st.size, last.text)
			continue
		}
		cur = append(cur, w...)
		curW += sp + ww
	}
	if len(cur) > 0 {
		lines = append(lines, l.metrics(cur, bodyStyle))
	}
	return lines
}

func (l *layouter) wrapPre(p para, maxW float64) []lineToks {
	var lines []lineToks
	for _, r := range p.runs {
		for _, src := range strings.Split(r.text, "\n") {
			src = strings.ReplaceAll(src, "\t", "    ")
			if strings.TrimSpace(src) == "" {
				lines = append(lines, l.metrics(nil, r.st))
				continue
			}
			for _, c := range l.chop(token{text: src, st: r.st, href: r.href}, maxW) {
				lines = append(lines, l.metrics([]token{c}, r.st))
			}
		}
	}
	return lines
}

// chop splits t into pieces no wider than maxW, at least one rune each.
func (l *layouter) chop(t token, maxW float64) []token {
	v, size := t.st.variant(), t.st.size
	var out []token
	rest := t.text
	for l.fc.measure(v, size, rest) > maxW && utf8.RuneCountInString(rest) > 1 {
		cut := 0
		for i := range rest {
			if i > 0 && l.fc.measure(v, size, rest[:i]) > maxW {
				break
			}
			cut = i
		}
		if cut == 0 {
			_, cut = utf8.DecodeRuneInString(rest)
		}
		piece := t
		piece.text = rest[:cut]
		out = append(out, piece)
		rest = rest[cut:]
		t.lead = false
	}
	t.text = rest
	return append(out, t)
}

func (l *layouter) wordWidth(w word) float64 {
	total := 0.0
	for _, t := range w {
		total += l.fc.measure(t.st.variant(), t.st.size, t.text)
	}
	return total
}

// metrics sizes a line from its tallest token; an empty line takes fallback.
func (l *layouter) metrics(toks []token, fallback style) lineToks {
	ln := lineToks{toks: toks, size: fallback.size}
	if len(toks) > 0 {
		ln.size = 0
	}
	for _, t := range toks {
		ln.size = max(ln.size, t.st.size)
		ln.ascent = max(ln.ascent, l.fc.ascent(t.st.variant(), t.st.size))
	}
	if len(toks) == 0 {
		ln.ascent = l.fc.ascent(fallback.variant(), fallback.size)
	}
	ln.height = ln.size * lineSpacing
	return ln
}

func (l *layouter) place(ln lineToks, indent float64) {
	top := l.y
	l.y += ln.height
	if len(ln.toks) == 0 {
		return
	}

	left := Margin + indent
	baseline := top + (ln.height-ln.size)/2 + ln.ascent
	x := left
	var spans []placedSpan
	for i, t := range ln.toks {
		s := t.text
		if t.lead && i > 0 {
			s = " " + s
		}
		v := t.st.variant()
		w := l.fc.measure(v, t.st.size, s)
		if n := len(spans); n > 0 && spans[n-1].v == v && spans[n-1].Font.Size == t.st.size && spans[n-1].Href == t.href {
			spans[n-1].Text += s
			spans[n-1].BBox.W += w
		} else {
			spans = append(spans, placedSpan{
				Span: processor.Span{
					BBox: processor.Rect{X: x, Y: top, W: w, H: ln.height},
					Font: processor.Font{Family: v.family(), Size: t.st.size, Weight: v.weight(), Style: v.slant()},
					Text: s,
					Href: t.href,
				},
				v:        v,
				baseline: baseline,
			})
		}
		x += w
	}
	l.block = append(l.block, placedLine{
		bbox:  processor.Rect{X: left, Y: top, W: x - left, H: ln.height},
		spans: spans,
	})
}

func tokenize(runs []run) []word {
	var words []word
	space := false
	emit := func(text string, r run) {
		t := token{text: text, st: r.st, href: r.href, lead: space}
		if space || len(words) == 0 {
			words = append(words, word{t})
		} else {
			words[len(words)-1] = append(words[len(words)-1], t)
		}
		space = false
	}
	for _, r := range runs {
		start := -1
		for i, ch := range r.text {
			if unicode.IsSpace(ch) {
				if start >= 0 {
					emit(r.text[start:i], r)
					start = -1
				}
				space = true
				continue
			}
			if start < 0 {
				start = i
			}
		}
		if start >= 0 {
			emit(r.text[start:], r)
		}
	}
	return words
}

func runText(runs []run) string {
	var b strings.Builder
	for _, r := range runs {
		b.WriteString(r.text)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// textPage converts a laid-out page to its wire form.
func (p *page) textPage() *processor.TextPage {
	tp := &processor.TextPage{}
	for _, blk := range p.blocks {
		b := processor.Block{}
		for i, ln := range blk {
			l := processor.Line{BBox: ln.bbox}
			for _, sp := range ln.spans {
				l.Spans = append(l.Spans, sp.Span)
			}
			b.Lines = append(b.Lines, l)
			if i == 0 {
				b.BBox = ln.bbox
			} else {
				b.BBox = union(b.BBox, ln.bbox)
			}
		}
		tp.Blocks = append(tp.Blocks, b)
	}
	return tp
}

func (p *page) links() []processor.Link {
	var out []processor.Link
	for _, blk := range p.blocks {
		for _, ln := range blk {
			for _, sp := range ln.spans {
				if sp.Href != "" {
					out = append(out, processor.Link{Rect: sp.BBox, Href: sp.Href})
				}
			}
		}
	}
	return out
}

func union(a, b processor.Rect) processor.Rect {
	x0, y0 := min(a.X, b.X), min(a.Y, b.Y)
	x1, y1 := max(a.X+a.W, b.X+b.W), max(a.Y+a.H, b.Y+b.H)
	return processor.Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// nest builds an outline tree from headings in document order.
func nest(hs []heading) []processor.OutlineItem {
	var out []processor.OutlineItem
	for i := 0; i < len(hs); {
		j := i + 1
		for j < len(hs) && hs[j].level > hs[i].level {
			j++
		}
		out = append(out, processor.OutlineItem{Title: hs[i].text, Page: hs[i].page, Children: nest(hs[i+1 : j])})
		i = j
	}
	return out
}
