package provider

import (
	"fmt"
	"os"
	"sync"

	"github.com/ledongthuc/pdf"
)

// plainTextFallback extracts page text with a pure-Go PDF reader. MuPDF
// occasionally yields nothing for pages with unusual encodings; this path
// often still recovers the text.
type plainTextFallback struct {
	mu     sync.Mutex
	file   *os.File
	reader *pdf.Reader
}

// NewPlainTextFallback opens path with the pure-Go reader for use as a
// TextFallback on a fitz document.
func NewPlainTextFallback(path string) (TextFallback, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("provider: open text fallback %s: %w", path, err)
	}
	return &plainTextFallback{file: file, reader: reader}, nil
}

func (f *plainTextFallback) PageText(pageNumber int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reader == nil {
		return "", ErrDocumentClosed
	}
	if pageNumber < 1 || pageNumber > f.reader.NumPage() {
		return "", fmt.Errorf("%w: %d", ErrPageOutOfRange, pageNumber)
	}
	page := f.reader.Page(pageNumber)
	if page.V.IsNull() {
		return "", nil
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("provider: fallback extract page %d: %w", pageNumber, err)
	}
	return text, nil
}

func (f *plainTextFallback) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	f.reader = nil
	return err
}
