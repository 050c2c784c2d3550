// Package acquire reads document bytes from a local path or an http(s) URL,
// reporting progress as it goes.
package acquire

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/abelbrown/folio/internal/logging"
)

// DefaultMaxBytes caps how much a single document may occupy in memory.
const DefaultMaxBytes = 256 << 20

// ErrTooLarge is returned when a document exceeds the size cap.
var ErrTooLarge = errors.New("acquire: document too large")

// Progress receives bytes read so far and the expected total, or -1 when the
// total is unknown. Calls are throttled; the final call always happens.
type Progress func(done, total int64)

// Document is a fetched document.
type Document struct {
	Name        string // file name for display
	Location    string // path or URL it came from
	ContentType string // from the server or the file extension, may be empty
	Data        []byte
	Digest      string // hex SHA-256 of Data
}

// Fetcher loads documents.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	every    time.Duration
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithMaxBytes sets the size cap.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) { f.maxBytes = n }
}

// WithProgressInterval sets the minimum time between progress calls.
func WithProgressInterval(d time.Duration) Option {
	return func(f *Fetcher) { f.every = d }
}

// NewFetcher creates a Fetcher with a 60 second HTTP timeout.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   &http.Client{Timeout: 60 * time.Second},
		maxBytes: DefaultMaxBytes,
		every:    100 * time.Millisecond,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// IsURL reports whether location should be fetched over HTTP.
func IsURL(location string) bool {
	u, err := url.Parse(location)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Load reads location, which is either a URL or a file path.
func (f *Fetcher) Load(ctx context.Context, location string, progress Progress) (*Document, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	start := time.Now()
	var (
		doc *Document
		err error
	)
	if IsURL(location) {
		doc, err = f.fetch(ctx, location, progress)
	} else {
		doc, err = f.readFile(ctx, location, progress)
	}
	if err != nil {
		logging.Warn("acquire: load failed", "location", location, "err", err)
		return nil, err
	}
	sum := sha256.Sum256(doc.Data)
	doc.Digest = hex.EncodeToString(sum[:])
	logging.Info("acquire: loaded", "name", doc.Name, "bytes", len(doc.Data), "took", time.Since(start))
	return doc, nil
}

func (f *Fetcher) fetch(ctx context.Context, location string, progress Progress) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("acquire: create request: %w", err)
	}
	req.Header.Set("User-Agent", "folio/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("acquire: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("acquire: HTTP error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	data, err := f.read(ctx, resp.Body, resp.ContentLength, progress)
	if err != nil {
		return nil, err
	}
	ctype := ""
	if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil {
		ctype = mt
	}
	return &Document{
		Name:        NameFromURL(location),
		Location:    location,
		ContentType: ctype,
		Data:        data,
	}, nil
}

func (f *Fetcher) readFile(ctx context.Context, name string, progress Progress) (*Document, error) {
	fh, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("acquire: %w", err)
	}
	defer fh.Close()

	total := int64(-1)
	if st, err := fh.Stat(); err == nil {
		if st.IsDir() {
			return nil, fmt.Errorf("acquire: %s is a directory", name)
		}
		total = st.Size()
	}
	data, err := f.read(ctx, fh, total, progress)
	if err != nil {
		return nil, err
	}
	return &Document{
		Name:        filepath.Base(name),
		Location:    name,
		ContentType: mime.TypeByExtension(filepath.Ext(name)),
		Data:        data,
	}, nil
}

// read drains r, enforcing the size cap and reporting progress.
func (f *Fetcher) read(ctx context.Context, r io.Reader, total int64, progress Progress) ([]byte, error) {
	if total > f.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, total)
	}
	pr := &progressReader{
		ctx:     ctx,
		r:       io.LimitReader(r, f.maxBytes+1),
		total:   total,
		fn:      progress,
		limiter: rate.NewLimiter(rate.Every(f.every), 1),
	}
	data, err := io.ReadAll(pr)
	if err != nil {
		return nil, fmt.Errorf("acquire: read: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)
	}
	if progress != nil {
		progress(int64(len(data)), total)
	}
	return data, nil
}

type progressReader struct {
	ctx     context.Context
	r       io.Reader
	done    int64
	total   int64
	fn      Progress
	limiter *rate.Limiter
}

func (p *progressReader) Read(b []byte) (int, error) {
	if err := p.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := p.r.Read(b)
	p.done += int64(n)
	if p.fn != nil && n > 0 && err == nil && p.limiter.Allow() {
		p.fn(p.done, p.total)
	}
	return n, err
}

// NameFromURL returns the last path segment of a URL if it looks like a file
// name, without any query. Otherwise it returns the URL unchanged.
func NameFromURL(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		if u.Path == "" {
			return raw
		}
		if base := path.Base(u.Path); strings.Contains(base, ".") {
			return base
		}
		return raw
	}
	seg := raw[strings.LastIndex(raw, "/")+1:]
	seg, _, _ = strings.Cut(seg, "?")
	if dec, err := url.PathUnescape(seg); err == nil {
		seg = dec
	}
	if strings.Contains(seg, ".") {
		return seg
	}
	return raw
}
