// Package pdfview is a page-virtualization engine for large paginated
// documents: it decides which pages to rasterize, bounds and cancels
// rendering work, caches bitmaps and extracted text, and serves
// incremental full-text search with deterministic match ordering.
//
// The document itself comes from a provider.Document; display, input
// handling and styling stay with the caller.
package pdfview

import (
	"context"
	"errors"
	"sync"

	"github.com/wudi/pdfview/observability"
	"github.com/wudi/pdfview/provider"
	"github.com/wudi/pdfview/render"
	"github.com/wudi/pdfview/search"
	"github.com/wudi/pdfview/textcache"
	"github.com/wudi/pdfview/thumbnail"
	"github.com/wudi/pdfview/viewport"
)

// ErrNoDocument reports an operation before any document was loaded.
var ErrNoDocument = errors.New("pdfview: no document loaded")

// Viewer is one viewing session. It owns the loaded document and all
// engine components; replacing the document releases everything the old
// one held.
type Viewer struct {
	log observability.Logger

	tracker *viewport.Tracker
	sched   *render.Scheduler
	texts   *textcache.Cache
	engine  *search.Engine
	thumbs  *thumbnail.Manager

	mu     sync.Mutex
	doc    provider.Document
	scale  float64
	window viewport.Window
}

// New creates a Viewer with no document loaded.
func New(opts ...Option) *Viewer {
	cfg := config{
		scale:       DefaultScale,
		margin:      DefaultMargin,
		concurrency: DefaultConcurrency,
		budget:      render.DefaultBitmapBudget,
		thumbScale:  thumbnail.DefaultScale,
		eagerThumbs: thumbnail.DefaultEager,
		log:         observability.NopLogger{},
		tracer:      observability.NopTracer(),
		metrics:     observability.NopMetrics(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	tracker := viewport.NewTracker(cfg.margin, cfg.scroller)
	sched := render.NewScheduler(nil,
		render.WithConcurrency(cfg.concurrency),
		render.WithBitmapBudget(cfg.budget),
		render.WithLogger(cfg.log),
		render.WithTracer(cfg.tracer),
		render.WithMetrics(cfg.metrics),
	)
	texts := textcache.New(nil,
		textcache.WithLogger(cfg.log),
		textcache.WithMetrics(cfg.metrics),
	)
	engine := search.New(0, texts,
		search.WithLogger(cfg.log),
		search.WithTracer(cfg.tracer),
		search.WithMetrics(cfg.metrics),
		search.WithScroller(tracker),
	)
	thumbs := thumbnail.NewManager(sched, 0,
		thumbnail.WithScale(cfg.thumbScale),
		thumbnail.WithEager(cfg.eagerThumbs),
		thumbnail.WithLogger(cfg.log),
	)
	return &Viewer{
		log:     cfg.log,
		tracker: tracker,
		sched:   sched,
		texts:   texts,
		engine:  engine,
		thumbs:  thumbs,
		scale:   cfg.scale,
	}
}

// Load replaces the current document. The old document's render tasks
// are cancelled, its bitmap cache is dropped, and the text cache and
// search query cache are cleared together; then the old document is
// closed. Eager thumbnails start in the background. On error the viewer
// reverts to holding no document and doc is closed.
func (v *Viewer) Load(ctx context.Context, doc provider.Document) error {
	v.mu.Lock()
	old := v.doc
	v.doc = doc
	scale := v.scale
	v.window = viewport.Window{}
	v.mu.Unlock()

	count := 0
	if doc != nil {
		count = doc.PageCount()
	}
	v.sched.Reset(doc)
	// Text and query caches are only ever cleared together.
	v.texts.Reset(doc)
	v.engine.Reset(count)
	v.thumbs.Reset(count)

	if old != nil {
		if err := old.Close(); err != nil {
			v.log.Warn("closing replaced document", observability.Error("err", err))
		}
	}
	if doc == nil {
		v.tracker.SetLayout(nil)
		return nil
	}
	if _, err := v.tracker.LayoutFromDocument(doc, scale); err != nil {
		// Roll back to the no-document state; a failed Load must not
		// leave a half-loaded document the caller can still render from.
		v.mu.Lock()
		v.doc = nil
		v.mu.Unlock()
		v.sched.Reset(nil)
		v.texts.Reset(nil)
		v.engine.Reset(0)
		v.thumbs.Reset(0)
		v.tracker.SetLayout(nil)
		if cerr := doc.Close(); cerr != nil {
			v.log.Warn("closing unloadable document", observability.Error("err", cerr))
		}
		return err
	}
	go func() {
		if err := v.thumbs.Warm(context.Background()); err != nil {
			v.log.Warn("thumbnail warmup aborted", observability.Error("err", err))
		}
	}()
	v.log.Info("document loaded", observability.Int("pages", count))
	return nil
}

// SetScale changes the display scale and recomputes the whole layout;
// page heights all change, so cumulative offsets rebuild from scratch.
// Stale-scale bitmaps age out of the cache by key and budget.
func (v *Viewer) SetScale(scale float64) error {
	if scale <= 0 {
		return errors.New("pdfview: scale must be positive")
	}
	v.mu.Lock()
	doc := v.doc
	v.scale = scale
	v.mu.Unlock()
	if doc == nil {
		return ErrNoDocument
	}
	_, err := v.tracker.LayoutFromDocument(doc, scale)
	return err
}

// Scale returns the current display scale.
func (v *Viewer) Scale() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.scale
}

// SetViewport reports the current scroll position and viewport height.
// It recomputes the visible window, retains its pages against cache
// eviction, and releases pages that just left the extended region.
func (v *Viewer) SetViewport(scrollOffset, viewportHeight float64) viewport.Window {
	window := v.tracker.SetViewport(scrollOffset, viewportHeight)

	v.mu.Lock()
	prev := v.window
	v.window = window
	v.mu.Unlock()

	v.sched.Retain(window.First, window.Last)
	for page := prev.First; page <= prev.Last && page > 0; page++ {
		if !window.Contains(page) {
			v.sched.Release(page)
			v.thumbs.PageHidden(page)
		}
	}
	return window
}

// RequestPage renders the page at the current scale for the surface.
func (v *Viewer) RequestPage(ctx context.Context, pageNumber int, surface render.SurfaceID) *render.Handle {
	v.mu.Lock()
	scale := v.scale
	v.mu.Unlock()
	return v.sched.Request(ctx, pageNumber, scale, surface)
}

// ScrollToPage commands a jump to the given page.
func (v *Viewer) ScrollToPage(pageNumber int) error {
	return v.tracker.ScrollToPage(pageNumber)
}

// Search runs a full-text query over the loaded document.
func (v *Viewer) Search(ctx context.Context, query string) (search.Result, error) {
	return v.engine.Search(ctx, query)
}

// NextMatch advances to the next match, wrapping, and scrolls to it.
func (v *Viewer) NextMatch() (search.Match, bool) { return v.engine.Next() }

// PreviousMatch moves to the previous match, wrapping, and scrolls to it.
func (v *Viewer) PreviousMatch() (search.Match, bool) { return v.engine.Previous() }

// Thumbnails exposes the thumbnail manager.
func (v *Viewer) Thumbnails() *thumbnail.Manager { return v.thumbs }

// Renders exposes the render scheduler.
func (v *Viewer) Renders() *render.Scheduler { return v.sched }

// Viewport exposes the viewport tracker.
func (v *Viewer) Viewport() *viewport.Tracker { return v.tracker }

// Texts exposes the text cache.
func (v *Viewer) Texts() *textcache.Cache { return v.texts }

// Close releases the document and every cache and cancels outstanding
// work. The viewer is unusable afterwards.
func (v *Viewer) Close() error {
	v.mu.Lock()
	doc := v.doc
	v.doc = nil
	v.mu.Unlock()

	v.sched.Close()
	v.texts.Reset(nil)
	v.engine.Reset(0)
	v.thumbs.Reset(0)
	if doc != nil {
		return doc.Close()
	}
	return nil
}
