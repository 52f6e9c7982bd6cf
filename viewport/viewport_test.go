package viewport

import (
	"testing"

	"github.com/wudi/pdfview/provider"
)

type recordingScroller struct {
	offsets []float64
}

func (s *recordingScroller) ScrollTo(offset float64) {
	s.offsets = append(s.offsets, offset)
}

func TestLayoutOffsets(t *testing.T) {
	l := NewLayout([]float64{100, 200, 300})
	if l.PageCount() != 3 {
		t.Fatalf("PageCount = %d, want 3", l.PageCount())
	}
	if got := l.TotalHeight(); got != 600 {
		t.Fatalf("TotalHeight = %v, want 600", got)
	}
	for i, want := range []float64{0, 100, 300} {
		if got := l.OffsetOf(i + 1); got != want {
			t.Errorf("OffsetOf(%d) = %v, want %v", i+1, got, want)
		}
	}
}

func TestLayoutOffsetOfClamps(t *testing.T) {
	l := NewLayout([]float64{100, 200})
	if got := l.OffsetOf(0); got != 0 {
		t.Errorf("OffsetOf(0) = %v, want 0", got)
	}
	if got := l.OffsetOf(-3); got != 0 {
		t.Errorf("OffsetOf(-3) = %v, want 0", got)
	}
	if got := l.OffsetOf(3); got != 300 {
		t.Errorf("OffsetOf(3) = %v, want total height", got)
	}
	if got := NewLayout(nil).OffsetOf(1); got != 0 {
		t.Errorf("empty layout OffsetOf(1) = %v, want 0", got)
	}
}

func TestLayoutWindow(t *testing.T) {
	// Five pages, 100 units each.
	l := NewLayout([]float64{100, 100, 100, 100, 100})
	tests := []struct {
		name           string
		scroll, height float64
		margin         int
		want           Window
	}{
		{"top of document", 0, 100, 0, Window{1, 2}},
		{"top with margin", 0, 100, 1, Window{1, 3}},
		{"middle", 150, 100, 0, Window{2, 3}},
		{"middle with margin", 150, 100, 1, Window{1, 4}},
		{"bottom clamped", 450, 100, 1, Window{4, 5}},
		{"past the end", 10000, 100, 1, Window{4, 5}},
		{"negative scroll clamped", -50, 100, 0, Window{1, 2}},
		{"viewport taller than document", 0, 10000, 0, Window{1, 5}},
		{"exact page boundary", 100, 100, 0, Window{2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := l.Window(tt.scroll, tt.height, tt.margin); got != tt.want {
				t.Fatalf("Window(%v, %v, %d) = %+v, want %+v", tt.scroll, tt.height, tt.margin, got, tt.want)
			}
		})
	}
}

func TestLayoutWindowEmptyDocument(t *testing.T) {
	l := NewLayout(nil)
	if got := l.Window(0, 100, 1); got != (Window{}) {
		t.Fatalf("Window = %+v, want zero", got)
	}
}

func TestWindowContains(t *testing.T) {
	w := Window{First: 2, Last: 4}
	for page, want := range map[int]bool{1: false, 2: true, 3: true, 4: true, 5: false} {
		if got := w.Contains(page); got != want {
			t.Errorf("Contains(%d) = %v, want %v", page, got, want)
		}
	}
	if (Window{}).Contains(0) {
		t.Error("zero window should contain nothing")
	}
}

func TestTrackerScaleChangeRecomputesWindow(t *testing.T) {
	tr := NewTracker(1, nil)
	tr.SetLayout([]float64{100, 100, 100, 100})
	w := tr.SetViewport(150, 100)
	if w != (Window{1, 3}) {
		t.Fatalf("window = %+v, want {1 3}", w)
	}
	// Zooming to 2x doubles every height; same scroll offset now lands
	// inside page 1.
	w = tr.SetLayout([]float64{200, 200, 200, 200})
	if w != (Window{1, 3}) {
		t.Fatalf("window after zoom = %+v, want {1 3}", w)
	}
	if tr.TotalHeight() != 800 {
		t.Fatalf("TotalHeight = %v, want 800", tr.TotalHeight())
	}
}

func TestTrackerScrollToPage(t *testing.T) {
	s := &recordingScroller{}
	tr := NewTracker(1, s)
	tr.SetLayout([]float64{100, 150, 100})
	if err := tr.ScrollToPage(3); err != nil {
		t.Fatal(err)
	}
	if len(s.offsets) != 1 || s.offsets[0] != 250 {
		t.Fatalf("scroll commands = %v, want [250]", s.offsets)
	}
	if err := tr.ScrollToPage(4); err == nil {
		t.Fatal("ScrollToPage(4) should fail on a 3-page layout")
	}
	if len(s.offsets) != 1 {
		t.Fatalf("out-of-range jump must not scroll, got %v", s.offsets)
	}
}

func TestTrackerLayoutFromDocument(t *testing.T) {
	doc := provider.NewStaticDocument([]provider.StaticPage{
		{Width: 100, Height: 200},
		{Width: 100, Height: 300},
	})
	tr := NewTracker(0, nil)
	if _, err := tr.LayoutFromDocument(doc, 2.0); err != nil {
		t.Fatal(err)
	}
	if got := tr.TotalHeight(); got != 1000 {
		t.Fatalf("TotalHeight = %v, want 1000", got)
	}
	w := tr.SetViewport(0, 500)
	if w != (Window{1, 2}) {
		t.Fatalf("window = %+v, want {1 2}", w)
	}
}
