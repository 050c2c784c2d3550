package processor

import (
	"context"
	"fmt"
	"image"

	"github.com/abelbrown/folio/internal/rpc"
)

// Client is the typed front end of an rpc.Client talking to a processor.
type Client struct {
	rpc *rpc.Client
}

// NewClient wraps c after checking that every operation was announced.
func NewClient(c *rpc.Client) (*Client, error) {
	for _, op := range Operations {
		if !c.Has(op) {
			return nil, fmt.Errorf("processor: %w: %s", rpc.ErrNotAnnounced, op)
		}
	}
	return &Client{rpc: c}, nil
}

// RPC returns the underlying channel.
func (c *Client) RPC() *rpc.Client { return c.rpc }

func invoke[T any](ctx context.Context, c *Client, op string, args ...any) (T, error) {
	v, err := rpc.Invoke[T](ctx, c.rpc, op, args...)
	if err != nil {
		return v, fromRemote(err)
	}
	return v, nil
}

// Open hands data to the processor. The processor owns data afterwards.
func (c *Client) Open(ctx context.Context, data []byte, magic string) (Handle, error) {
	return invoke[Handle](ctx, c, OpOpen, data, magic)
}

func (c *Client) NeedsPassword(ctx context.Context, h Handle) (bool, error) {
	return invoke[bool](ctx, c, OpNeedsPassword, h)
}

// Authenticate reports whether password unlocked the document.
func (c *Client) Authenticate(ctx context.Context, h Handle, password string) (bool, error) {
	return invoke[bool](ctx, c, OpAuthenticate, h, password)
}

func (c *Client) Close(ctx context.Context, h Handle) error {
	_, err := c.rpc.Call(ctx, OpClose, h)
	return fromRemote(err)
}

func (c *Client) Title(ctx context.Context, h Handle) (string, error) {
	return invoke[string](ctx, c, OpTitle, h)
}

func (c *Client) CountPages(ctx context.Context, h Handle) (int, error) {
	return invoke[int](ctx, c, OpCountPages, h)
}

func (c *Client) PageSize(ctx context.Context, h Handle, page int) (Size, error) {
	return invoke[Size](ctx, c, OpPageSize, h, page)
}

func (c *Client) PageText(ctx context.Context, h Handle, page int) (*TextPage, error) {
	return invoke[*TextPage](ctx, c, OpPageText, h, page)
}

func (c *Client) PageLinks(ctx context.Context, h Handle, page int) ([]Link, error) {
	return invoke[[]Link](ctx, c, OpPageLinks, h, page)
}

// Search returns the hit boxes of needle on page.
func (c *Client) Search(ctx context.Context, h Handle, page int, needle string) ([]Rect, error) {
	return invoke[[]Rect](ctx, c, OpSearch, h, page, needle)
}

// Outline returns nil when the document has no outline.
func (c *Client) Outline(ctx context.Context, h Handle) ([]OutlineItem, error) {
	return invoke[[]OutlineItem](ctx, c, OpOutline, h)
}

// Rasterize renders page at dpi dots per inch, rotated clockwise by rotation
// degrees.
func (c *Client) Rasterize(ctx context.Context, h Handle, page int, dpi float64, rotation int) (*image.RGBA, error) {
	return invoke[*image.RGBA](ctx, c, OpRasterize, h, page, dpi, rotation)
}
