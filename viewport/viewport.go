// Package viewport computes which pages of a document are visible for a
// given scroll position, expanded by a rendering margin, and turns page
// jumps into scroll commands.
package viewport

import (
	"fmt"
	"sort"
	"sync"

	"github.com/wudi/pdfview/provider"
)

// Window is an inclusive 1-indexed range of pages to keep rendered. The
// zero Window means no document is laid out.
type Window struct {
	First int
	Last  int
}

// Contains reports whether the 1-indexed page falls inside the window.
func (w Window) Contains(pageNumber int) bool {
	return w.First != 0 && pageNumber >= w.First && pageNumber <= w.Last
}

// Layout holds cumulative page offsets for one document at one scale.
// It is an immutable value; scale changes build a new Layout from scratch.
type Layout struct {
	offsets []float64 // offsets[i] is the top of page i+1; last entry is total height
}

// NewLayout computes cumulative offsets for the given page heights.
func NewLayout(heights []float64) Layout {
	offsets := make([]float64, len(heights)+1)
	for i, h := range heights {
		offsets[i+1] = offsets[i] + h
	}
	return Layout{offsets: offsets}
}

func (l Layout) PageCount() int {
	if len(l.offsets) == 0 {
		return 0
	}
	return len(l.offsets) - 1
}

func (l Layout) TotalHeight() float64 {
	if len(l.offsets) == 0 {
		return 0
	}
	return l.offsets[len(l.offsets)-1]
}

// OffsetOf returns the scroll offset at which the 1-indexed page begins,
// clamped to the document: pages before the first report 0, pages past
// the last report the total height.
func (l Layout) OffsetOf(pageNumber int) float64 {
	if pageNumber < 1 || l.PageCount() == 0 {
		return 0
	}
	if pageNumber > l.PageCount() {
		return l.TotalHeight()
	}
	return l.offsets[pageNumber-1]
}

// pageAt returns the 1-indexed page containing the given offset, clamped
// to [1, PageCount].
func (l Layout) pageAt(offset float64) int {
	n := l.PageCount()
	if n == 0 {
		return 0
	}
	// First index whose page top is strictly past offset; the page before
	// it contains the offset.
	i := sort.Search(n, func(i int) bool { return l.offsets[i+1] > offset })
	if i >= n {
		return n
	}
	return i + 1
}

// Window returns the pages intersecting [scrollOffset, scrollOffset+
// viewportHeight), expanded by margin pages on both sides and clamped to
// the document.
func (l Layout) Window(scrollOffset, viewportHeight float64, margin int) Window {
	n := l.PageCount()
	if n == 0 {
		return Window{}
	}
	if scrollOffset < 0 {
		scrollOffset = 0
	}
	first := l.pageAt(scrollOffset) - margin
	last := l.pageAt(scrollOffset+viewportHeight) + margin
	if first < 1 {
		first = 1
	}
	if last > n {
		last = n
	}
	return Window{First: first, Last: last}
}

// Scroller receives scroll commands computed by the tracker. The display
// surface implements it.
type Scroller interface {
	ScrollTo(offset float64)
}

// Tracker owns the current layout and viewport geometry. It recomputes
// the visible window on every scroll or resize and emits scroll commands
// for page jumps.
type Tracker struct {
	mu       sync.Mutex
	layout   Layout
	margin   int
	scroller Scroller

	scrollOffset   float64
	viewportHeight float64
	window         Window
}

// NewTracker creates a tracker with the given rendering margin (pages
// pre-rendered on each side of the viewport).
func NewTracker(margin int, scroller Scroller) *Tracker {
	if margin < 0 {
		margin = 0
	}
	return &Tracker{margin: margin, scroller: scroller, layout: NewLayout(nil)}
}

// SetLayout installs a new document layout. Called on document load and
// on every scale change, since changing the scale alters all heights.
func (t *Tracker) SetLayout(heights []float64) Window {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.layout = NewLayout(heights)
	t.window = t.layout.Window(t.scrollOffset, t.viewportHeight, t.margin)
	return t.window
}

// LayoutFromDocument measures every page of doc at the given scale and
// installs the resulting layout.
func (t *Tracker) LayoutFromDocument(doc provider.Document, scale float64) (Window, error) {
	heights := make([]float64, doc.PageCount())
	for i := range heights {
		page, err := doc.Page(i + 1)
		if err != nil {
			return Window{}, fmt.Errorf("viewport: measure page %d: %w", i+1, err)
		}
		_, h := page.Size(scale)
		heights[i] = h
		page.Close()
	}
	return t.SetLayout(heights), nil
}

// SetViewport records the current scroll offset and viewport height and
// returns the recomputed window.
func (t *Tracker) SetViewport(scrollOffset, viewportHeight float64) Window {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scrollOffset = scrollOffset
	t.viewportHeight = viewportHeight
	t.window = t.layout.Window(scrollOffset, viewportHeight, t.margin)
	return t.window
}

// Window returns the last computed window.
func (t *Tracker) Window() Window {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.window
}

// TotalHeight returns the document height at the current scale.
func (t *Tracker) TotalHeight() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.layout.TotalHeight()
}

// ScrollToPage commands the scroller to bring the 1-indexed page to the
// top of the viewport. It is a one-shot command, not a poll.
func (t *Tracker) ScrollToPage(pageNumber int) error {
	t.mu.Lock()
	if pageNumber < 1 || pageNumber > t.layout.PageCount() {
		t.mu.Unlock()
		return fmt.Errorf("viewport: page %d out of range 1..%d", pageNumber, t.layout.PageCount())
	}
	offset := t.layout.OffsetOf(pageNumber)
	scroller := t.scroller
	t.mu.Unlock()
	if scroller != nil {
		scroller.ScrollTo(offset)
	}
	return nil
}
