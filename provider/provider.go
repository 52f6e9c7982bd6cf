// Package provider defines the document surface the viewer engine consumes:
// page count, per-page intrinsic size, rasterization at a scale, and plain
// text extraction. Implementations own all format-specific concerns
// (parsing, decryption, font handling); the engine never sees past this
// boundary.
package provider

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrPageOutOfRange reports a page number outside [1, PageCount].
	ErrPageOutOfRange = errors.New("provider: page number out of range")
	// ErrDocumentClosed reports use of a document after Close.
	ErrDocumentClosed = errors.New("provider: document closed")
)

// Document is an ordered sequence of pages. Implementations must be safe
// for concurrent use; the engine renders and extracts from multiple
// goroutines.
type Document interface {
	// PageCount reports the number of pages.
	PageCount() int
	// Page returns the 1-indexed page. The page stays valid until the
	// document is closed.
	Page(pageNumber int) (Page, error)
	// Close releases all document resources. Pages obtained earlier must
	// not be used afterwards.
	Close() error
}

// Page is one immutable page of a document.
type Page interface {
	// Size reports the page dimensions in pixels at the given scale,
	// where scale 1.0 is the intrinsic size.
	Size(scale float64) (width, height float64)
	// Render rasterizes the page at the given scale.
	Render(ctx context.Context, scale float64) (image.Image, error)
	// Text extracts the plain text of the page in reading order.
	Text(ctx context.Context) (string, error)
	// Close releases per-page resources. Safe to call more than once.
	Close() error
}

// TextFallback supplies page text from an alternate extraction path when
// the primary backend yields nothing usable.
type TextFallback interface {
	PageText(pageNumber int) (string, error)
	Close() error
}
