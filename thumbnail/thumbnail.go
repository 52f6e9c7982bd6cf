// Package thumbnail layers an eager-then-lazy policy over the render
// scheduler at a small fixed scale: the first few pages render on load,
// every other page renders when it first becomes visible. Failed pages
// show a placeholder and retry only after leaving and re-entering view.
package thumbnail

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wudi/pdfview/observability"
	"github.com/wudi/pdfview/render"
)

// DefaultScale is the thumbnail rasterization scale.
const DefaultScale = 0.2

// DefaultEager is how many leading pages render on document load.
const DefaultEager = 3

// State is the display state of one thumbnail.
type State int

const (
	// StateMissing means the page has not been rendered yet.
	StateMissing State = iota
	// StateReady means a bitmap is available.
	StateReady
	// StatePlaceholder means rendering failed; show a placeholder and do
	// not retry until the page re-enters visibility.
	StatePlaceholder
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StatePlaceholder:
		return "placeholder"
	}
	return "missing"
}

// Option configures a Manager.
type Option func(*Manager)

// WithScale sets the thumbnail scale. Values <= 0 keep the default.
func WithScale(scale float64) Option {
	return func(m *Manager) {
		if scale > 0 {
			m.scale = scale
		}
	}
}

// WithEager sets how many leading pages Warm renders. Negative values
// keep the default.
func WithEager(n int) Option {
	return func(m *Manager) {
		if n >= 0 {
			m.eager = n
		}
	}
}

// WithLogger sets the manager logger.
func WithLogger(log observability.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// Manager tracks per-page thumbnail state. Safe for concurrent use.
type Manager struct {
	sched *render.Scheduler
	scale float64
	eager int
	log   observability.Logger

	mu    sync.Mutex
	count int
	pages map[int]*pageState
}

type pageState struct {
	state   State
	png     []byte
	visible bool
}

// NewManager creates a thumbnail manager over sched for a document with
// pageCount pages.
func NewManager(sched *render.Scheduler, pageCount int, opts ...Option) *Manager {
	m := &Manager{
		sched: sched,
		scale: DefaultScale,
		eager: DefaultEager,
		log:   observability.NopLogger{},
		count: pageCount,
		pages: map[int]*pageState{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func surfaceFor(pageNumber int) render.SurfaceID {
	return render.SurfaceID(fmt.Sprintf("thumb-%d", pageNumber))
}

// Warm eagerly renders the first pages of the document. Each page's
// failure is recorded as a placeholder; Warm itself only fails on ctx
// expiry.
func (m *Manager) Warm(ctx context.Context) error {
	n := m.eager
	m.mu.Lock()
	if n > m.count {
		n = m.count
	}
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for page := 1; page <= n; page++ {
		page := page
		g.Go(func() error {
			// Eager pages count as visible from the start.
			_, err := m.render(gctx, page)
			return err
		})
	}
	return g.Wait()
}

// PageVisible signals that the page entered the expanded viewport region
// and returns its resulting state. A missing thumbnail renders now; a
// placeholder retries only when this call is a hidden-to-visible
// transition.
func (m *Manager) PageVisible(ctx context.Context, pageNumber int) (State, error) {
	m.mu.Lock()
	st := m.stateLocked(pageNumber)
	wasHidden := !st.visible
	st.visible = true
	switch {
	case st.state == StateReady:
		m.mu.Unlock()
		return StateReady, nil
	case st.state == StatePlaceholder && !wasHidden:
		m.mu.Unlock()
		return StatePlaceholder, nil
	}
	m.mu.Unlock()
	return m.render(ctx, pageNumber)
}

// PageHidden signals that the page left the expanded viewport region,
// re-arming the failure retry.
func (m *Manager) PageHidden(pageNumber int) {
	m.mu.Lock()
	if st, ok := m.pages[pageNumber]; ok {
		st.visible = false
	}
	m.mu.Unlock()
}

func (m *Manager) render(ctx context.Context, pageNumber int) (State, error) {
	res, err := m.sched.Request(ctx, pageNumber, m.scale, surfaceFor(pageNumber)).Wait(ctx)
	if err != nil {
		return StateMissing, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.stateLocked(pageNumber)
	st.visible = true
	switch res.Status {
	case render.StatusRendered, render.StatusCached:
		st.state = StateReady
		st.png = res.PNG
	case render.StatusFailed:
		st.state = StatePlaceholder
		st.png = nil
		m.log.Warn("thumbnail render failed",
			observability.Int("page", pageNumber),
			observability.Error("err", res.Err))
	case render.StatusSuperseded:
		// A newer request for the same cell owns the outcome.
	}
	return st.state, nil
}

func (m *Manager) stateLocked(pageNumber int) *pageState {
	st, ok := m.pages[pageNumber]
	if !ok {
		st = &pageState{}
		m.pages[pageNumber] = st
	}
	return st
}

// Thumbnail returns the encoded bitmap for the page and its state.
func (m *Manager) Thumbnail(pageNumber int) ([]byte, State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.pages[pageNumber]
	if !ok {
		return nil, StateMissing
	}
	return st.png, st.state
}

// Reset drops all thumbnail state and adopts a new page count. Called on
// document replacement.
func (m *Manager) Reset(pageCount int) {
	m.mu.Lock()
	m.count = pageCount
	m.pages = map[int]*pageState{}
	m.mu.Unlock()
}
