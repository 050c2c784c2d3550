// Package processor defines the document-processing operations served over
// the rpc channel and a typed client for them.
package processor

import (
	"errors"
	"strings"

	"github.com/abelbrown/folio/internal/rpc"
)

// Operation names announced by a processor.
const (
	OpOpen          = "open"
	OpNeedsPassword = "needsPassword"
	OpAuthenticate  = "authenticate"
	OpClose         = "close"
	OpTitle         = "title"
	OpCountPages    = "countPages"
	OpPageSize      = "getPageSize"
	OpPageText      = "getPageText"
	OpPageLinks     = "getPageLinks"
	OpSearch        = "search"
	OpOutline       = "outline"
	OpRasterize     = "rasterize"
)

// Operations lists every operation a complete processor announces.
var Operations = []string{
	OpOpen, OpNeedsPassword, OpAuthenticate, OpClose, OpTitle, OpCountPages,
	OpPageSize, OpPageText, OpPageLinks, OpSearch, OpOutline, OpRasterize,
}

// Handle identifies an open document inside the processor.
type Handle int

// Size is a page size in points.
type Size struct {
	Width  float64
	Height float64
}

// Rect is an axis-aligned box in page points, origin top-left.
type Rect struct {
	X, Y, W, H float64
}

// Font describes the face a span was set in.
type Font struct {
	Family string
	Size   float64
	Weight string // "normal" or "bold"
	Style  string // "normal" or "italic"
}

// Span is a run of text in a single font.
type Span struct {
	BBox Rect
	Font Font
	Text string
	Href string // set when the span is link text
}

// Line is a row of spans sharing a baseline.
type Line struct {
	BBox  Rect
	Spans []Span
}

// Block is a paragraph-like group of lines.
type Block struct {
	BBox  Rect
	Lines []Line
}

// TextPage is the structured text of one page.
type TextPage struct {
	Blocks []Block
}

// String returns the page text with one line per Line and a blank line
// between blocks.
func (t *TextPage) String() string {
	if t == nil {
		return ""
	}
	var b strings.Builder
	for i, blk := range t.Blocks {
		if i > 0 {
			b.WriteByte('\n')
		}
		for _, ln := range blk.Lines {
			for _, sp := range ln.Spans {
				b.WriteString(sp.Text)
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Link is a clickable area on a page. Internal links have the form "#pageN"
// with N one-based.
type Link struct {
	Rect Rect
	Href string
}

// OutlineItem is one entry of a document's table of contents. Page is
// zero-based, or -1 when the entry has no target.
type OutlineItem struct {
	Title    string
	Page     int
	Children []OutlineItem
}

// Error is a processor failure category. It crosses the channel by name.
type Error struct {
	name string
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Name implements rpc.Named.
func (e *Error) Name() string { return e.name }

// Failure categories a Backend reports by wrapping these values.
var (
	ErrNoDocument  = &Error{name: "NoDocument", msg: "no such document"}
	ErrPageRange   = &Error{name: "PageRange", msg: "page out of range"}
	ErrLocked      = &Error{name: "DocumentLocked", msg: "document requires a password"}
	ErrUnsupported = &Error{name: "UnsupportedFormat", msg: "unsupported document format"}
	ErrCorrupt     = &Error{name: "CorruptDocument", msg: "document is corrupt"}
)

var categories = []*Error{ErrNoDocument, ErrPageRange, ErrLocked, ErrUnsupported, ErrCorrupt}

// remoteFailure keeps both the category and the remote details reachable
// through errors.Is / errors.As.
type remoteFailure struct {
	category *Error
	remote   *rpc.RemoteError
}

func (e *remoteFailure) Error() string   { return e.remote.Message }
func (e *remoteFailure) Unwrap() []error { return []error{e.category, e.remote} }

// fromRemote maps a RemoteError onto its failure category, if any.
func fromRemote(err error) error {
	var re *rpc.RemoteError
	if !errors.As(err, &re) {
		return err
	}
	for _, c := range categories {
		if c.name == re.Name {
			return &remoteFailure{category: c, remote: re}
		}
	}
	return err
}
