package pdfview

import (
	"github.com/wudi/pdfview/observability"
	"github.com/wudi/pdfview/viewport"
)

// Defaults mirror the values the engine was tuned with; every one of
// them is overridable because the right numbers depend on the document
// provider's actual rasterization cost.
const (
	DefaultScale       = 1.0
	DefaultMargin      = 1
	DefaultConcurrency = 3
)

// Option configures a Viewer.
type Option func(*config)

type config struct {
	scale       float64
	margin      int
	concurrency int
	budget      int64
	thumbScale  float64
	eagerThumbs int
	scroller    viewport.Scroller
	log         observability.Logger
	tracer      observability.Tracer
	metrics     observability.Metrics
}

// WithScale sets the initial display scale.
func WithScale(scale float64) Option {
	return func(c *config) {
		if scale > 0 {
			c.scale = scale
		}
	}
}

// WithRenderMargin sets how many pages outside the viewport stay
// pre-rendered on each side.
func WithRenderMargin(pages int) Option {
	return func(c *config) {
		if pages >= 0 {
			c.margin = pages
		}
	}
}

// WithMaxConcurrentRenders sets the global rasterization ceiling.
func WithMaxConcurrentRenders(n int) Option {
	return func(c *config) {
		if n >= 1 {
			c.concurrency = n
		}
	}
}

// WithBitmapBudget sets the bitmap cache byte budget. Zero disables it.
func WithBitmapBudget(budget int64) Option {
	return func(c *config) { c.budget = budget }
}

// WithThumbnailScale sets the thumbnail rasterization scale.
func WithThumbnailScale(scale float64) Option {
	return func(c *config) {
		if scale > 0 {
			c.thumbScale = scale
		}
	}
}

// WithEagerThumbnails sets how many leading thumbnails render on load.
func WithEagerThumbnails(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.eagerThumbs = n
		}
	}
}

// WithScroller connects the display surface's scroll command sink.
func WithScroller(s viewport.Scroller) Option {
	return func(c *config) { c.scroller = s }
}

// WithLogger sets the logger shared by all components.
func WithLogger(log observability.Logger) Option {
	return func(c *config) { c.log = log }
}

// WithTracer sets the tracer shared by all components.
func WithTracer(tr observability.Tracer) Option {
	return func(c *config) { c.tracer = tr }
}

// WithMetrics sets the metrics sink shared by all components.
func WithMetrics(m observability.Metrics) Option {
	return func(c *config) { c.metrics = m }
}
