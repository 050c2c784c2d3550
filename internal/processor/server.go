package processor

import (
	"context"
	"image"

	"github.com/abelbrown/folio/internal/rpc"
)

// Backend does the actual document work. Implementations are called from a
// single goroutine, one operation at a time.
type Backend interface {
	Open(ctx context.Context, data []byte, magic string) (Handle, error)
	NeedsPassword(ctx context.Context, h Handle) (bool, error)
	Authenticate(ctx context.Context, h Handle, password string) (bool, error)
	Close(ctx context.Context, h Handle) error
	Title(ctx context.Context, h Handle) (string, error)
	CountPages(ctx context.Context, h Handle) (int, error)
	PageSize(ctx context.Context, h Handle, page int) (Size, error)
	PageText(ctx context.Context, h Handle, page int) (*TextPage, error)
	PageLinks(ctx context.Context, h Handle, page int) ([]Link, error)
	Search(ctx context.Context, h Handle, page int, needle string) ([]Rect, error)
	Outline(ctx context.Context, h Handle) ([]OutlineItem, error)
	Rasterize(ctx context.Context, h Handle, page int, dpi float64, rotation int) (*image.RGBA, error)
}

// Register exposes every Backend operation on srv.
func Register(srv *rpc.Server, b Backend) {
	srv.Handle(OpOpen, func(ctx context.Context, args []any) (any, error) {
		data, err := rpc.Arg[[]byte](args, 0)
		if err != nil {
			return nil, err
		}
		magic, err := rpc.Arg[string](args, 1)
		if err != nil {
			return nil, err
		}
		return b.Open(ctx, data, magic)
	})
	srv.Handle(OpNeedsPassword, handleOp(func(ctx context.Context, h Handle, _ []any) (any, error) {
		return b.NeedsPassword(ctx, h)
	}))
	srv.Handle(OpAuthenticate, handleOp(func(ctx context.Context, h Handle, args []any) (any, error) {
		pw, err := rpc.Arg[string](args, 1)
		if err != nil {
			return nil, err
		}
		return b.Authenticate(ctx, h, pw)
	}))
	srv.Handle(OpClose, handleOp(func(ctx context.Context, h Handle, _ []any) (any, error) {
		return nil, b.Close(ctx, h)
	}))
	srv.Handle(OpTitle, handleOp(func(ctx context.Context, h Handle, _ []any) (any, error) {
		return b.Title(ctx, h)
	}))
	srv.Handle(OpCountPages, handleOp(func(ctx context.Context, h Handle, _ []any) (any, error) {
		return b.CountPages(ctx, h)
	}))
	srv.Handle(OpOutline, handleOp(func(ctx context.Context, h Handle, _ []any) (any, error) {
		return b.Outline(ctx, h)
	}))
	srv.Handle(OpPageSize, pageOp(func(ctx context.Context, h Handle, page int, _ []any) (any, error) {
		return b.PageSize(ctx, h, page)
	}))
	srv.Handle(OpPageText, pageOp(func(ctx context.Context, h Handle, page int, _ []any) (any, error) {
		return b.PageText(ctx, h, page)
	}))
	srv.Handle(OpPageLinks, pageOp(func(ctx context.Context, h Handle, page int, _ []any) (any, error) {
		return b.PageLinks(ctx, h, page)
	}))
	srv.Handle(OpSearch, pageOp(func(ctx context.Context, h Handle, page int, args []any) (any, error) {
		needle, err := rpc.Arg[string](args, 2)
		if err != nil {
			return nil, err
		}
		return b.Search(ctx, h, page, needle)
	}))
	srv.Handle(OpRasterize, pageOp(func(ctx context.Context, h Handle, page int, args []any) (any, error) {
		dpi, err := rpc.Arg[float64](args, 2)
		if err != nil {
			return nil, err
		}
		rotation, err := rpc.Arg[int](args, 3)
		if err != nil {
			return nil, err
		}
		return b.Rasterize(ctx, h, page, dpi, rotation)
	}))
}

// handleOp adapts an operation whose first argument is a Handle.
func handleOp(fn func(ctx context.Context, h Handle, args []any) (any, error)) rpc.Handler {
	return func(ctx context.Context, args []any) (any, error) {
		h, err := rpc.Arg[Handle](args, 0)
		if err != nil {
			return nil, err
		}
		return fn(ctx, h, args)
	}
}

// pageOp adapts an operation taking (Handle, page, ...).
func pageOp(fn func(ctx context.Context, h Handle, page int, args []any) (any, error)) rpc.Handler {
	return handleOp(func(ctx context.Context, h Handle, args []any) (any, error) {
		page, err := rpc.Arg[int](args, 1)
		if err != nil {
			return nil, err
		}
		return fn(ctx, h, page, args)
	})
}
