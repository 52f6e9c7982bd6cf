// Package render schedules page rasterization. It bounds concurrent work
// with a FIFO-fair ceiling, guarantees that each display surface ends up
// showing the most recently requested (page, scale) pair, and caches
// encoded bitmaps under a byte budget.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/wudi/pdfview/observability"
	"github.com/wudi/pdfview/provider"
)

// ErrNoDocument reports a render request before any document was loaded.
var ErrNoDocument = errors.New("render: no document loaded")

// DefaultConcurrency is the global ceiling on simultaneously running
// rasterization tasks. Requests beyond it queue in FIFO order.
const DefaultConcurrency = 3

// DefaultBitmapBudget bounds the encoded bitmap cache.
const DefaultBitmapBudget = 64 << 20

// SurfaceID identifies one display surface. At most one render task is
// active per surface; a newer request for the surface cancels the older
// task.
type SurfaceID string

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithConcurrency sets the global render ceiling. Values < 1 keep the
// default.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n >= 1 {
			s.concurrency = n
		}
	}
}

// WithBitmapBudget sets the bitmap cache byte budget. Zero disables the
// budget.
func WithBitmapBudget(budget int64) Option {
	return func(s *Scheduler) { s.budget = budget }
}

// WithLogger sets the scheduler logger.
func WithLogger(log observability.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// WithTracer sets the scheduler tracer.
func WithTracer(tr observability.Tracer) Option {
	return func(s *Scheduler) { s.tracer = tr }
}

// WithMetrics sets the scheduler metrics sink.
func WithMetrics(m observability.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// Scheduler issues, queues and cancels render tasks and owns the bitmap
// cache. Safe for concurrent use.
type Scheduler struct {
	concurrency int
	budget      int64
	log         observability.Logger
	tracer      observability.Tracer
	metrics     observability.Metrics

	sem   *semaphore.Weighted
	cache *bitmapCache

	mu          sync.Mutex
	doc         provider.Document
	surfaces    map[SurfaceID]*surfaceState
	retainFirst int
	retainLast  int
	baseCtx     context.Context
	baseCancel  context.CancelFunc
}

// surfaceState is the per-surface slot in the task arena. Task state
// lives here, never on the surface object itself.
type surfaceState struct {
	page    int
	scale   float64
	gen     uint64
	pending bool
	cancel  context.CancelFunc
	handle  *Handle
}

// NewScheduler creates a scheduler for doc. doc may be nil; load one
// later with Reset.
func NewScheduler(doc provider.Document, opts ...Option) *Scheduler {
	s := &Scheduler{
		concurrency: DefaultConcurrency,
		budget:      DefaultBitmapBudget,
		log:         observability.NopLogger{},
		tracer:      observability.NopTracer(),
		metrics:     observability.NopMetrics(),
		doc:         doc,
		surfaces:    make(map[SurfaceID]*surfaceState),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sem = semaphore.NewWeighted(int64(s.concurrency))
	s.cache = newBitmapCache(s.budget)
	s.cache.evicted = func(n int) { s.metrics.Count(observability.MetricBitmapEvicted, int64(n)) }
	s.baseCtx, s.baseCancel = context.WithCancel(context.Background())
	return s
}

// Request asks for the page at the given scale on the given surface.
//
// A cache hit settles immediately. A pending request with identical
// arguments returns the already-pending handle instead of starting a
// second task. Anything else supersedes the surface's previous task
// (best-effort cancellation, failures swallowed) and starts a new one,
// queueing FIFO behind the concurrency ceiling.
func (s *Scheduler) Request(ctx context.Context, pageNumber int, scale float64, surface SurfaceID) *Handle {
	_, span := s.tracer.StartSpan(ctx, "render.request")
	defer span.Finish()
	span.SetTag("page", pageNumber)
	span.SetTag("scale", scale)

	key := cacheKey{page: pageNumber, scale: scale}

	s.mu.Lock()
	if s.doc == nil {
		s.mu.Unlock()
		return resolvedHandle(Result{Status: StatusFailed, Page: pageNumber, Scale: scale, Err: ErrNoDocument})
	}
	prev := s.surfaces[surface]
	if prev != nil && prev.pending && prev.page == pageNumber && prev.scale == scale {
		h := prev.handle
		s.mu.Unlock()
		return h
	}
	var gen uint64 = 1
	if prev != nil {
		gen = prev.gen + 1
	}
	if data, ok := s.cache.get(key); ok {
		s.supersedeLocked(prev)
		h := resolvedHandle(Result{Status: StatusCached, Page: pageNumber, Scale: scale, PNG: data})
		s.surfaces[surface] = &surfaceState{page: pageNumber, scale: scale, gen: gen, handle: h}
		s.mu.Unlock()
		s.metrics.Count(observability.MetricBitmapCacheHit, 1)
		return h
	}
	s.supersedeLocked(prev)
	taskCtx, cancel := context.WithCancel(s.baseCtx)
	h := newHandle()
	s.surfaces[surface] = &surfaceState{
		page:    pageNumber,
		scale:   scale,
		gen:     gen,
		pending: true,
		cancel:  cancel,
		handle:  h,
	}
	doc := s.doc
	s.mu.Unlock()

	s.metrics.Count(observability.MetricBitmapCacheMiss, 1)
	s.metrics.Count(observability.MetricRenderQueued, 1)
	go s.run(taskCtx, cancel, doc, pageNumber, scale, surface, gen, h)
	return h
}

// supersedeLocked cancels the surface's pending task, if any, and
// settles its handle as superseded. Callers hold s.mu.
func (s *Scheduler) supersedeLocked(st *surfaceState) {
	if st == nil || !st.pending {
		return
	}
	st.pending = false
	if st.cancel != nil {
		st.cancel()
	}
	st.handle.resolve(Result{Status: StatusSuperseded, Page: st.page, Scale: st.scale})
}

func (s *Scheduler) run(ctx context.Context, cancel context.CancelFunc, doc provider.Document, pageNumber int, scale float64, surface SurfaceID, gen uint64, h *Handle) {
	defer cancel()
	start := time.Now()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.settle(surface, gen, h, Result{Status: StatusSuperseded, Page: pageNumber, Scale: scale})
		s.metrics.Count(observability.MetricRenderCancelled, 1)
		return
	}
	defer s.sem.Release(1)

	data, err := s.rasterize(ctx, doc, pageNumber, scale)
	if err != nil {
		if ctx.Err() != nil {
			s.settle(surface, gen, h, Result{Status: StatusSuperseded, Page: pageNumber, Scale: scale})
			s.metrics.Count(observability.MetricRenderCancelled, 1)
			return
		}
		s.settle(surface, gen, h, Result{Status: StatusFailed, Page: pageNumber, Scale: scale, Err: err})
		s.metrics.Count(observability.MetricRenderFailed, 1)
		s.log.Warn("render failed",
			observability.Int("page", pageNumber),
			observability.Float64("scale", scale),
			observability.Error("err", err))
		return
	}

	// Commit only while still the surface's current generation; a late
	// completion of a superseded task must not touch the cache.
	s.mu.Lock()
	cur := s.surfaces[surface]
	current := cur != nil && cur.gen == gen && cur.pending
	if current {
		cur.pending = false
	}
	first, last := s.retainFirst, s.retainLast
	s.mu.Unlock()

	if !current {
		h.resolve(Result{Status: StatusSuperseded, Page: pageNumber, Scale: scale})
		s.metrics.Count(observability.MetricRenderCancelled, 1)
		return
	}
	s.cache.put(cacheKey{page: pageNumber, scale: scale}, data, func(page int) bool {
		return first != 0 && page >= first && page <= last
	})
	h.resolve(Result{Status: StatusRendered, Page: pageNumber, Scale: scale, PNG: data})
	s.metrics.Observe(observability.MetricRenderTime, time.Since(start))
}

func (s *Scheduler) rasterize(ctx context.Context, doc provider.Document, pageNumber int, scale float64) ([]byte, error) {
	page, err := doc.Page(pageNumber)
	if err != nil {
		return nil, fmt.Errorf("render: page %d: %w", pageNumber, err)
	}
	defer page.Close()
	img, err := page.Render(ctx, scale)
	if err != nil {
		return nil, fmt.Errorf("render: page %d at %g: %w", pageNumber, scale, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("render: encode page %d: %w", pageNumber, err)
	}
	return buf.Bytes(), nil
}

func (s *Scheduler) settle(surface SurfaceID, gen uint64, h *Handle, res Result) {
	s.mu.Lock()
	if st := s.surfaces[surface]; st != nil && st.gen == gen {
		st.pending = false
	}
	s.mu.Unlock()
	h.resolve(res)
}

// Release drops the cached bitmaps for every scale of the page and
// cancels any active task targeting it, on any surface. Called when a
// page leaves the extended viewport.
func (s *Scheduler) Release(pageNumber int) {
	s.cache.dropPage(pageNumber)
	s.mu.Lock()
	for _, st := range s.surfaces {
		if st.pending && st.page == pageNumber {
			s.supersedeLocked(st)
		}
	}
	s.mu.Unlock()
}

// Retain marks the inclusive page range whose cache entries must survive
// budget eviction. Zeroes clear the range.
func (s *Scheduler) Retain(first, last int) {
	s.mu.Lock()
	s.retainFirst, s.retainLast = first, last
	s.mu.Unlock()
}

// Cached reports whether a bitmap for (page, scale) is present.
func (s *Scheduler) Cached(pageNumber int, scale float64) bool {
	_, ok := s.cache.get(cacheKey{page: pageNumber, scale: scale})
	return ok
}

// CacheBytes reports the bitmap cache footprint.
func (s *Scheduler) CacheBytes() int64 { return s.cache.bytes() }

// Reset cancels every outstanding task, clears the bitmap cache, and
// installs doc as the new document. Reset(nil) just tears down.
func (s *Scheduler) Reset(doc provider.Document) {
	s.mu.Lock()
	for _, st := range s.surfaces {
		s.supersedeLocked(st)
	}
	s.surfaces = make(map[SurfaceID]*surfaceState)
	s.doc = doc
	s.retainFirst, s.retainLast = 0, 0
	s.mu.Unlock()
	s.cache.clear()
}

// Close cancels all work. The scheduler is unusable afterwards.
func (s *Scheduler) Close() {
	s.Reset(nil)
	s.baseCancel()
}
