package provider

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/gen2brain/go-fitz"
	"golang.org/x/image/draw"
)

// baseDPI is the rendering resolution that corresponds to scale 1.0.
const baseDPI = 72.0

// defaultMaxRenderDPI caps the resolution handed to MuPDF; requests above
// it render at the cap and are resampled up to the exact target size.
const defaultMaxRenderDPI = 288.0

// FitzOption configures a fitz-backed document.
type FitzOption func(*fitzDocument)

// WithTextFallback installs an alternate text extraction path, consulted
// when MuPDF returns only whitespace for a page.
func WithTextFallback(tf TextFallback) FitzOption {
	return func(d *fitzDocument) { d.fallback = tf }
}

// WithMaxRenderDPI bounds the resolution passed to MuPDF. Values <= 0 keep
// the default.
func WithMaxRenderDPI(dpi float64) FitzOption {
	return func(d *fitzDocument) {
		if dpi > 0 {
			d.maxDPI = dpi
		}
	}
}

type fitzDocument struct {
	mu       sync.Mutex // MuPDF contexts are not safe for concurrent use
	doc      *fitz.Document
	fallback TextFallback
	maxDPI   float64
	closed   bool
	count    int
}

// OpenFitz opens a document through the MuPDF backend.
func OpenFitz(path string, opts ...FitzOption) (Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("provider: open %s: %w", path, err)
	}
	return newFitzDocument(doc, opts...), nil
}

// OpenFitzMemory opens an in-memory document through the MuPDF backend.
func OpenFitzMemory(data []byte, opts ...FitzOption) (Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("provider: open memory document: %w", err)
	}
	return newFitzDocument(doc, opts...), nil
}

func newFitzDocument(doc *fitz.Document, opts ...FitzOption) *fitzDocument {
	d := &fitzDocument{doc: doc, maxDPI: defaultMaxRenderDPI}
	for _, opt := range opts {
		opt(d)
	}
	d.count = doc.NumPage()
	return d
}

func (d *fitzDocument) PageCount() int { return d.count }

func (d *fitzDocument) Page(pageNumber int) (Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDocumentClosed
	}
	if pageNumber < 1 || pageNumber > d.count {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, pageNumber, d.count)
	}
	bounds, err := d.doc.Bound(pageNumber - 1)
	if err != nil {
		return nil, fmt.Errorf("provider: page %d bounds: %w", pageNumber, err)
	}
	return &fitzPage{doc: d, number: pageNumber, bounds: bounds}, nil
}

func (d *fitzDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.fallback != nil {
		d.fallback.Close()
	}
	return d.doc.Close()
}

type fitzPage struct {
	doc    *fitzDocument
	number int
	bounds image.Rectangle
}

func (p *fitzPage) Size(scale float64) (float64, float64) {
	return float64(p.bounds.Dx()) * scale, float64(p.bounds.Dy()) * scale
}

func (p *fitzPage) Render(ctx context.Context, scale float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dpi := baseDPI * scale
	renderDPI := dpi
	if renderDPI > p.doc.maxDPI {
		renderDPI = p.doc.maxDPI
	}

	p.doc.mu.Lock()
	if p.doc.closed {
		p.doc.mu.Unlock()
		return nil, ErrDocumentClosed
	}
	img, err := p.doc.doc.ImageDPI(p.number-1, renderDPI)
	p.doc.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("provider: render page %d: %w", p.number, err)
	}
	if renderDPI == dpi {
		return img, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w, h := p.Size(scale)
	dst := image.NewRGBA(image.Rect(0, 0, int(w+0.5), int(h+0.5)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst, nil
}

func (p *fitzPage) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.doc.mu.Lock()
	if p.doc.closed {
		p.doc.mu.Unlock()
		return "", ErrDocumentClosed
	}
	text, err := p.doc.doc.Text(p.number - 1)
	fallback := p.doc.fallback
	p.doc.mu.Unlock()
	if err == nil && strings.TrimSpace(text) != "" {
		return text, nil
	}
	if fallback != nil {
		if alt, ferr := fallback.PageText(p.number); ferr == nil && strings.TrimSpace(alt) != "" {
			return alt, nil
		}
	}
	if err != nil {
		return "", fmt.Errorf("provider: extract page %d: %w", p.number, err)
	}
	return text, nil
}

func (p *fitzPage) Close() error { return nil }
