package provider

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
)

// StaticPage describes one page of an in-memory document.
type StaticPage struct {
	Text   string
	Width  float64 // intrinsic size at scale 1.0; defaults to 612x792
	Height float64
	Fill   color.Color // page background; defaults to white

	// RenderErr and TextErr, when set, make the corresponding operation
	// fail. Used to exercise failure paths.
	RenderErr error
	TextErr   error

	// RenderDelay and TextDelay, when non-nil, are received from before
	// the operation completes. Lets tests hold work in flight.
	RenderDelay <-chan struct{}
	TextDelay   <-chan struct{}
}

// StaticDocument is an in-memory Document for tests, examples and
// self-checks. It counts render and extraction calls per page so callers
// can assert at-most-once and supersede behavior.
type StaticDocument struct {
	mu     sync.Mutex
	pages  []StaticPage
	closed bool

	renderCalls []int64
	textCalls   []int64
}

var _ Document = (*StaticDocument)(nil)

// NewStaticDocument builds an in-memory document from the given pages.
func NewStaticDocument(pages []StaticPage) *StaticDocument {
	return &StaticDocument{
		pages:       pages,
		renderCalls: make([]int64, len(pages)),
		textCalls:   make([]int64, len(pages)),
	}
}

func (d *StaticDocument) PageCount() int { return len(d.pages) }

func (d *StaticDocument) Page(pageNumber int) (Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDocumentClosed
	}
	if pageNumber < 1 || pageNumber > len(d.pages) {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, pageNumber, len(d.pages))
	}
	return &staticPage{doc: d, number: pageNumber}, nil
}

func (d *StaticDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// RenderCalls reports how many times the 1-indexed page was rendered.
func (d *StaticDocument) RenderCalls(pageNumber int) int64 {
	return atomic.LoadInt64(&d.renderCalls[pageNumber-1])
}

// TextCalls reports how many times text was extracted for the 1-indexed page.
func (d *StaticDocument) TextCalls(pageNumber int) int64 {
	return atomic.LoadInt64(&d.textCalls[pageNumber-1])
}

type staticPage struct {
	doc    *StaticDocument
	number int
}

func (p *staticPage) spec() *StaticPage { return &p.doc.pages[p.number-1] }

func (p *staticPage) Size(scale float64) (float64, float64) {
	s := p.spec()
	w, h := s.Width, s.Height
	if w <= 0 {
		w = 612
	}
	if h <= 0 {
		h = 792
	}
	return w * scale, h * scale
}

func (p *staticPage) Render(ctx context.Context, scale float64) (image.Image, error) {
	atomic.AddInt64(&p.doc.renderCalls[p.number-1], 1)
	s := p.spec()
	if s.RenderDelay != nil {
		select {
		case <-s.RenderDelay:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.RenderErr != nil {
		return nil, s.RenderErr
	}
	w, h := p.Size(scale)
	img := image.NewRGBA(image.Rect(0, 0, int(w+0.5), int(h+0.5)))
	fill := s.Fill
	if fill == nil {
		fill = color.White
	}
	r, g, b, a := fill.RGBA()
	c := color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img, nil
}

func (p *staticPage) Text(ctx context.Context) (string, error) {
	atomic.AddInt64(&p.doc.textCalls[p.number-1], 1)
	s := p.spec()
	if s.TextDelay != nil {
		select {
		case <-s.TextDelay:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.TextErr != nil {
		return "", s.TextErr
	}
	return s.Text, nil
}

func (p *staticPage) Close() error { return nil }
