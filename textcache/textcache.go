// Package textcache lazily extracts and memoizes per-page text.
// Extraction runs at most once per page per document lifetime; a failed
// extraction is cached as empty text and never retried automatically.
package textcache

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wudi/pdfview/observability"
	"github.com/wudi/pdfview/provider"
)

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the cache logger.
func WithLogger(log observability.Logger) Option {
	return func(c *Cache) { c.log = log }
}

// WithMetrics sets the cache metrics sink.
func WithMetrics(m observability.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// Cache memoizes extracted page text. Safe for concurrent use.
type Cache struct {
	log     observability.Logger
	metrics observability.Metrics

	mu      sync.Mutex
	doc     provider.Document
	docGen  uint64
	entries map[int]string

	group       singleflight.Group
	extractions int64
}

// New creates a text cache over doc. doc may be nil; load one with Reset.
func New(doc provider.Document, opts ...Option) *Cache {
	c := &Cache{
		log:     observability.NopLogger{},
		metrics: observability.NopMetrics(),
		doc:     doc,
		entries: make(map[int]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Text returns the page's extracted text, extracting on first access.
// Concurrent callers for the same page share one extraction. The error is
// non-nil only when ctx expires before the text is available; extraction
// failures surface as cached empty text.
func (c *Cache) Text(ctx context.Context, pageNumber int) (string, error) {
	c.mu.Lock()
	if text, ok := c.entries[pageNumber]; ok {
		c.mu.Unlock()
		return text, nil
	}
	doc := c.doc
	gen := c.docGen
	c.mu.Unlock()
	if doc == nil {
		return "", nil
	}

	// The flight runs detached from ctx: one caller giving up must not
	// abort the extraction for others, and a cancelled flight would
	// otherwise be miscached as a failed page. The key carries the
	// document generation so a caller arriving after a Reset never joins
	// a flight still extracting from the replaced document.
	key := strconv.FormatUint(gen, 10) + ":" + strconv.Itoa(pageNumber)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.extract(doc, pageNumber), nil
	})
	select {
	case res := <-ch:
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Cache) extract(doc provider.Document, pageNumber int) string {
	start := time.Now()
	atomic.AddInt64(&c.extractions, 1)
	text, err := c.extractOnce(doc, pageNumber)
	if err != nil {
		// Failed pages are cached as empty so search finds no matches
		// there; a retry only happens on document reload.
		c.metrics.Count(observability.MetricExtractFailed, 1)
		c.log.Warn("text extraction failed",
			observability.Int("page", pageNumber),
			observability.Error("err", err))
		text = ""
	}
	c.mu.Lock()
	// A Reset between flight start and commit means the text belongs to
	// a replaced document; drop it.
	if c.doc == doc {
		c.entries[pageNumber] = text
	}
	c.mu.Unlock()
	c.metrics.Observe(observability.MetricExtractTime, time.Since(start))
	return text
}

func (c *Cache) extractOnce(doc provider.Document, pageNumber int) (string, error) {
	page, err := doc.Page(pageNumber)
	if err != nil {
		return "", err
	}
	defer page.Close()
	return page.Text(context.Background())
}

// Len reports the number of cached pages.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// ExtractionCount reports how many extractions have run, including
// failures. Retained across Reset.
func (c *Cache) ExtractionCount() int64 {
	return atomic.LoadInt64(&c.extractions)
}

// Reset drops every entry and installs doc as the new document. Called on
// document replacement, always together with the search query cache.
func (c *Cache) Reset(doc provider.Document) {
	c.mu.Lock()
	c.doc = doc
	c.docGen++
	c.entries = make(map[int]string)
	c.mu.Unlock()
}
