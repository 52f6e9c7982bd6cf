package render

import (
	"context"
	"sync"
)

// Status classifies how a render request settled.
type Status int

const (
	// StatusRendered means the task ran and produced a fresh bitmap.
	StatusRendered Status = iota
	// StatusCached means the bitmap was already in the cache.
	StatusCached
	// StatusSuperseded means a newer request for the same surface
	// replaced this one. Not an error; callers treat it as a no-op.
	StatusSuperseded
	// StatusFailed means rasterization failed. Per-page and non-fatal;
	// callers show a placeholder.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusRendered:
		return "rendered"
	case StatusCached:
		return "cached"
	case StatusSuperseded:
		return "superseded"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Result is the settled outcome of a render request. PNG is set only for
// StatusRendered and StatusCached; Err only for StatusFailed.
type Result struct {
	Status Status
	Page   int
	Scale  float64
	PNG    []byte
	Err    error
}

// Handle is a pending render outcome. Identical concurrent requests for a
// surface share one handle.
type Handle struct {
	once sync.Once
	done chan struct{}
	res  Result
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

func resolvedHandle(r Result) *Handle {
	h := newHandle()
	h.resolve(r)
	return h
}

func (h *Handle) resolve(r Result) {
	h.once.Do(func() {
		h.res = r
		close(h.done)
	})
}

// Done is closed once the request has settled.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the request settles or ctx expires. The error is
// non-nil only for ctx expiry; all render outcomes, including failures,
// arrive inside the Result.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		return h.res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
