// Package textdoc is a document processor for Markdown and plain text.
//
// Documents are laid out onto US Letter pages in the Go fonts and
// rasterized on demand. A Markdown thematic break or a plain-text form
// feed starts a new page. A document whose first line is
//
//	%lock <bcrypt hash>
//
// stays locked until Authenticate succeeds with the matching password.
package textdoc

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"

	"github.com/abelbrown/folio/internal/logging"
	"github.com/abelbrown/folio/internal/processor"
)

// Magic strings understood by Open. An empty magic means Markdown.
const (
	MagicMarkdown = "text/markdown"
	MagicPlain    = "text/plain"
)

const lockPrefix = "%lock "

// maxDPI bounds rasterization so a bad scale cannot exhaust memory.
const maxDPI = 2400

type doc struct {
	body     string
	markdown bool
	lockHash []byte
	unlocked bool

	pages   []*page
	title   string
	outline []processor.OutlineItem
}

// Backend implements processor.Backend.
type Backend struct {
	mu   sync.Mutex
	next processor.Handle
	docs map[processor.Handle]*doc
	fc   *faceCache
}

var _ processor.Backend = (*Backend)(nil)

// New creates an empty Backend.
func New() *Backend {
	return &Backend{docs: make(map[processor.Handle]*doc), fc: newFaceCache()}
}

// Magic guesses the magic string for a file name.
func Magic(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".txt"), strings.HasSuffix(lower, ".text"):
		return MagicPlain
	}
	return MagicMarkdown
}

func (b *Backend) Open(ctx context.Context, data []byte, magic string) (processor.Handle, error) {
	d := &doc{}
	switch magic {
	case "", MagicMarkdown, "text/x-markdown":
		d.markdown = true
	case MagicPlain:
	default:
		return 0, fmt.Errorf("%w: %q", processor.ErrUnsupported, magic)
	}
	if !utf8.Valid(data) {
		return 0, fmt.Errorf("%w: not UTF-8 text", processor.ErrCorrupt)
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if strings.HasPrefix(text, lockPrefix) {
		line, rest, _ := strings.Cut(text, "\n")
		hash := []byte(strings.TrimSpace(strings.TrimPrefix(line, lockPrefix)))
		if _, err := bcrypt.Cost(hash); err != nil {
			return 0, fmt.Errorf("%w: bad lock line: %v", processor.ErrCorrupt, err)
		}
		d.lockHash = hash
		text = rest
	} else {
		d.unlocked = true
	}
	d.body = norm.NFC.String(text)

	b.mu.Lock()
	defer b.mu.Unlock()
	if d.unlocked {
		b.build(d)
	}
	b.next++
	b.docs[b.next] = d
	logging.Debug("textdoc: opened", "handle", b.next, "bytes", len(data), "locked", !d.unlocked, "pages", len(d.pages))
	return b.next, nil
}

// build lays out d. Caller holds b.mu.
func (b *Backend) build(d *doc) {
	var paras []para
	if d.markdown {
		paras = parseMarkdown([]byte(d.body))
	} else {
		paras = parsePlain(d.body)
	}
	b.fc.mu.Lock()
	pages, headings := layout(paras, b.fc)
	b.fc.mu.Unlock()

	d.pages = pages
	for _, h := range headings {
		if h.level == 1 {
			d.title = h.text
			break
		}
	}
	d.outline = nest(headings)
}

// get returns the document for h. Locked documents are only returned when
// allowLocked is set. Caller holds b.mu.
func (b *Backend) get(h processor.Handle, allowLocked bool) (*doc, error) {
	d, ok := b.docs[h]
	if !ok {
		return nil, fmt.Errorf("%w: handle %d", processor.ErrNoDocument, h)
	}
	if !d.unlocked && !allowLocked {
		return nil, processor.ErrLocked
	}
	return d, nil
}

func (b *Backend) page(h processor.Handle, n int) (*page, error) {
	d, err := b.get(h, false)
	if err != nil {
		return nil, err
	}
	if n < 0 || n >= len(d.pages) {
		return nil, fmt.Errorf("%w: page %d of %d", processor.ErrPageRange, n, len(d.pages))
	}
	return d.pages[n], nil
}

func (b *Backend) NeedsPassword(ctx context.Context, h processor.Handle) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, err := b.get(h, true)
	if err != nil {
		return false, err
	}
	return d.lockHash != nil, nil
}

// Authenticate unlocks h when password matches. An unlocked document
// accepts any password.
func (b *Backend) Authenticate(ctx context.Context, h processor.Handle, password string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, err := b.get(h, true)
	if err != nil {
		return false, err
	}
	if d.unlocked {
		return true, nil
	}
	if err := bcrypt.CompareHashAndPassword(d.lockHash, []byte(password)); err != nil {
		logging.Debug("textdoc: wrong password", "handle", h)
		return false, nil
	}
	d.unlocked = true
	b.build(d)
	return true, nil
}

func (b *Backend) Close(ctx context.Context, h processor.Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.docs[h]; !ok {
		return fmt.Errorf("%w: handle %d", processor.ErrNoDocument, h)
	}
	delete(b.docs, h)
	return nil
}

// Title returns the first level-one heading, or "".
func (b *Backend) Title(ctx context.Context, h processor.Handle) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, err := b.get(h, false)
	if err != nil {
		return "", err
	}
	return d.title, nil
}

func (b *Backend) CountPages(ctx context.Context, h processor.Handle) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, err := b.get(h, false)
	if err != nil {
		return 0, err
	}
	return len(d.pages), nil
}

func (b *Backend) PageSize(ctx context.Context, h processor.Handle, n int) (processor.Size, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.page(h, n); err != nil {
		return processor.Size{}, err
	}
	return processor.Size{Width: PageWidth, Height: PageHeight}, nil
}

func (b *Backend) PageText(ctx context.Context, h processor.Handle, n int) (*processor.TextPage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.page(h, n)
	if err != nil {
		return nil, err
	}
	return p.textPage(), nil
}

func (b *Backend) PageLinks(ctx context.Context, h processor.Handle, n int) ([]processor.Link, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.page(h, n)
	if err != nil {
		return nil, err
	}
	return p.links(), nil
}

func (b *Backend) Search(ctx context.Context, h processor.Handle, n int, needle string) ([]processor.Rect, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.page(h, n)
	if err != nil {
		return nil, err
	}
	b.fc.mu.Lock()
	defer b.fc.mu.Unlock()
	return search(p, needle, b.fc), nil
}

// Outline returns the heading tree, or nil when there are no headings.
func (b *Backend) Outline(ctx context.Context, h processor.Handle) ([]processor.OutlineItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, err := b.get(h, false)
	if err != nil {
		return nil, err
	}
	return d.outline, nil
}

func (b *Backend) Rasterize(ctx context.Context, h processor.Handle, n int, dpi float64, rotation int) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if dpi <= 0 || dpi > maxDPI {
		return nil, fmt.Errorf("textdoc: dpi %v out of range", dpi)
	}
	if rotation%90 != 0 {
		return nil, fmt.Errorf("textdoc: rotation %d is not a multiple of 90", rotation)
	}
	rotation = ((rotation % 360) + 360) % 360

	b.mu.Lock()
	defer b.mu.Unlock()
	p, err := b.page(h, n)
	if err != nil {
		return nil, err
	}
	b.fc.mu.Lock()
	defer b.fc.mu.Unlock()
	return rasterize(p, dpi, rotation, b.fc), nil
}
