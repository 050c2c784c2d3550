package textdoc

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const (
	bodySize    = 11.0
	codeSize    = 10.0
	listIndent  = 18.0
	quoteIndent = 18.0
)

var headingSizes = [...]float64{22, 17, 14, 12}

// run is a piece of inline text in one style.
type run struct {
	text string
	st   style
	href string
}

// para is a block-level unit of layout.
type para struct {
	runs      []run
	indent    float64
	heading   int  // heading level, 0 for body text
	pre       bool // keep source line breaks, no wrapping
	pageBreak bool
	gapBefore float64
}

var (
	bodyStyle = style{size: bodySize}
	codeStyle = style{size: codeSize, mono: true}
)

// parseMarkdown turns Markdown into paragraphs. A thematic break starts a
// new page.
func parseMarkdown(src []byte) []para {
	root := goldmark.New().Parser().Parse(text.NewReader(src))
	p := &mdParser{src: src}
	p.blocks(root, 0)
	return p.paras
}

type mdParser struct {
	src   []byte
	paras []para
}

func (p *mdParser) blocks(n ast.Node, indent float64) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch b := c.(type) {
		case *ast.Heading:
			size := headingSizes[min(b.Level, len(headingSizes))-1]
			st := style{size: size, bold: true}
			p.paras = append(p.paras, para{runs: p.inlines(b, st, ""), heading: b.Level, indent: indent, gapBefore: size * 0.8})
		case *ast.Paragraph, *ast.TextBlock:
			p.paras = append(p.paras, para{runs: p.inlines(c, bodyStyle, ""), indent: indent, gapBefore: bodySize * 0.6})
		case *ast.List:
			p.list(b, indent)
		case *ast.Blockquote:
			p.blocks(b, indent+quoteIndent)
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			p.code(c, indent)
		case *ast.ThematicBreak:
			p.paras = append(p.paras, para{pageBreak: true})
		default:
			if c.Type() == ast.TypeBlock && c.HasChildren() {
				p.blocks(c, indent)
			}
		}
	}
}

func (p *mdParser) list(l *ast.List, indent float64) {
	n := l.Start
	for item := l.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "•"
		if l.IsOrdered() {
			marker = fmt.Sprintf("%d.", n)
			n++
		}
		first := len(p.paras)
		p.blocks(item, indent+listIndent)
		m := run{text: marker + " ", st: bodyStyle}
		if first < len(p.paras) && !p.paras[first].pageBreak && !p.paras[first].pre {
			p.paras[first].runs = append([]run{m}, p.paras[first].runs...)
			continue
		}
		p.paras = append(p.paras[:first], append([]para{{runs: []run{m}, indent: indent + listIndent}}, p.paras[first:]...)...)
	}
}

func (p *mdParser) code(n ast.Node, indent float64) {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(p.src))
	}
	body := strings.TrimRight(b.String(), "\n")
	p.paras = append(p.paras, para{runs: []run{{text: body, st: codeStyle}}, pre: true, indent: indent, gapBefore: bodySize * 0.6})
}

func (p *mdParser) inlines(n ast.Node, st style, href string) []run {
	var out []run
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch in := c.(type) {
		case *ast.Text:
			out = append(out, run{text: string(in.Segment.Value(p.src)), st: st, href: href})
			if in.SoftLineBreak() || in.HardLineBreak() {
				out = append(out, run{text: " ", st: st, href: href})
			}
		case *ast.String:
			out = append(out, run{text: string(in.Value), st: st, href: href})
		case *ast.CodeSpan:
			cs := st
			cs.mono = true
			out = append(out, p.inlines(in, cs, href)...)
		case *ast.Emphasis:
			es := st
			if in.Level >= 2 {
				es.bold = true
			} else {
				es.italic = true
			}
			out = append(out, p.inlines(in, es, href)...)
		case *ast.Link:
			out = append(out, p.inlines(in, st, string(in.Destination))...)
		case *ast.AutoLink:
			out = append(out, run{text: string(in.Label(p.src)), st: st, href: string(in.URL(p.src))})
		case *ast.Image:
			// alt text
			out = append(out, p.inlines(in, st, href)...)
		}
	}
	return out
}

// parsePlain keeps plain text as preformatted blocks separated by blank
// lines. A form feed starts a new page.
func parsePlain(src string) []para {
	var out []para
	for i, chunk := range strings.Split(src, "\f") {
		if i > 0 {
			out = append(out, para{pageBreak: true})
		}
		for _, block := range strings.Split(chunk, "\n\n") {
			block = strings.Trim(block, "\n")
			if strings.TrimSpace(block) == "" {
				continue
			}
			out = append(out, para{runs: []run{{text: block, st: codeStyle}}, pre: true, gapBefore: codeSize})
		}
	}
	return out
}
