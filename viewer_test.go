package pdfview

import (
	"context"
	"testing"
	"time"

	"github.com/wudi/pdfview/provider"
	"github.com/wudi/pdfview/render"
)

type recordingScroller struct {
	offsets []float64
}

func (s *recordingScroller) ScrollTo(offset float64) {
	s.offsets = append(s.offsets, offset)
}

func textPages(texts ...string) []provider.StaticPage {
	pages := make([]provider.StaticPage, len(texts))
	for i, text := range texts {
		pages[i] = provider.StaticPage{Text: text, Width: 10, Height: 100}
	}
	return pages
}

func TestLoadRenderSearchRoundTrip(t *testing.T) {
	v := New(WithMaxConcurrentRenders(2))
	defer v.Close()
	ctx := context.Background()

	doc := provider.NewStaticDocument(textPages("alpha", "beta alpha", "gamma"))
	if err := v.Load(ctx, doc); err != nil {
		t.Fatal(err)
	}

	res, err := v.RequestPage(ctx, 2, "main").Wait(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != render.StatusRendered {
		t.Fatalf("render status = %v", res.Status)
	}

	found, err := v.Search(ctx, "alpha")
	if err != nil {
		t.Fatal(err)
	}
	if len(found.Matches) != 2 || found.Matches[0].Page != 1 || found.Matches[1].Page != 2 {
		t.Fatalf("matches = %+v", found.Matches)
	}
}

func TestSearchNavigationScrolls(t *testing.T) {
	scroller := &recordingScroller{}
	v := New(WithScroller(scroller))
	defer v.Close()
	ctx := context.Background()

	doc := provider.NewStaticDocument(textPages("hit", "miss", "hit"))
	if err := v.Load(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if _, err := v.Search(ctx, "hit"); err != nil {
		t.Fatal(err)
	}
	match, ok := v.NextMatch()
	if !ok || match.Page != 3 {
		t.Fatalf("NextMatch = %+v, %v; want page 3", match, ok)
	}
	// Page 3 starts at offset 200 (two 100-unit pages above it).
	if len(scroller.offsets) != 1 || scroller.offsets[0] != 200 {
		t.Fatalf("scroll offsets = %v, want [200]", scroller.offsets)
	}
}

func TestLoadReplacementClearsBothSearchCaches(t *testing.T) {
	v := New()
	defer v.Close()
	ctx := context.Background()

	first := provider.NewStaticDocument(textPages("needle"))
	if err := v.Load(ctx, first); err != nil {
		t.Fatal(err)
	}
	if res, err := v.Search(ctx, "needle"); err != nil || len(res.Matches) != 1 {
		t.Fatalf("first search = %+v, %v", res, err)
	}

	second := provider.NewStaticDocument(textPages("haystack", "haystack"))
	if err := v.Load(ctx, second); err != nil {
		t.Fatal(err)
	}
	// The cached "needle" result belongs to the replaced document.
	res, err := v.Search(ctx, "needle")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Matches) != 0 || res.CurrentIndex != -1 {
		t.Fatalf("stale query after reload = %+v", res)
	}
	if second.TextCalls(1) != 1 || second.TextCalls(2) != 1 {
		t.Fatal("reload must rescan the new document")
	}
	// Old document was closed by the swap.
	if _, err := first.Page(1); err == nil {
		t.Fatal("replaced document should be closed")
	}
}

func TestSetViewportReleasesDepartedPages(t *testing.T) {
	v := New(WithRenderMargin(0))
	defer v.Close()
	ctx := context.Background()

	doc := provider.NewStaticDocument(textPages("a", "b", "c", "d", "e"))
	if err := v.Load(ctx, doc); err != nil {
		t.Fatal(err)
	}
	// Pages are 100 units tall; viewport shows one page plus the edge
	// of the next.
	w := v.SetViewport(0, 100)
	if w.First != 1 || w.Last != 2 {
		t.Fatalf("window = %+v, want {1 2}", w)
	}
	if res, _ := v.RequestPage(ctx, 1, "main").Wait(ctx); res.Status != render.StatusRendered {
		t.Fatalf("page 1 = %v", res.Status)
	}
	if !v.Renders().Cached(1, 1.0) {
		t.Fatal("page 1 should be cached while visible")
	}

	// Scroll three pages down: page 1 leaves the window and is released.
	w = v.SetViewport(300, 100)
	if w.First != 4 || w.Last != 5 {
		t.Fatalf("window = %+v, want {4 5}", w)
	}
	if v.Renders().Cached(1, 1.0) {
		t.Fatal("page 1 should have been released after leaving the window")
	}
}

func TestSetScaleRebuildsLayout(t *testing.T) {
	v := New()
	defer v.Close()
	ctx := context.Background()

	doc := provider.NewStaticDocument(textPages("a", "b"))
	if err := v.Load(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if got := v.Viewport().TotalHeight(); got != 200 {
		t.Fatalf("TotalHeight = %v, want 200", got)
	}
	if err := v.SetScale(2.0); err != nil {
		t.Fatal(err)
	}
	if got := v.Viewport().TotalHeight(); got != 400 {
		t.Fatalf("TotalHeight after zoom = %v, want 400", got)
	}
	if v.Scale() != 2.0 {
		t.Fatalf("Scale = %v, want 2", v.Scale())
	}
}

func TestEagerThumbnailsRenderOnLoad(t *testing.T) {
	v := New(WithEagerThumbnails(2), WithThumbnailScale(0.1))
	defer v.Close()
	ctx := context.Background()

	doc := provider.NewStaticDocument(textPages("a", "b", "c"))
	if err := v.Load(ctx, doc); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for doc.RenderCalls(1) == 0 || doc.RenderCalls(2) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("eager thumbnails never rendered")
		}
		time.Sleep(time.Millisecond)
	}
	if doc.RenderCalls(3) != 0 {
		t.Fatal("page 3 thumbnail must wait for a visibility signal")
	}
}

func TestFailedLoadRevertsToNoDocument(t *testing.T) {
	v := New()
	defer v.Close()
	ctx := context.Background()

	good := provider.NewStaticDocument(textPages("alpha"))
	if err := v.Load(ctx, good); err != nil {
		t.Fatal(err)
	}

	// A closed document fails page measurement during Load.
	bad := provider.NewStaticDocument(textPages("beta"))
	bad.Close()
	if err := v.Load(ctx, bad); err == nil {
		t.Fatal("Load of a closed document should fail")
	}

	// The viewer must be back in the no-document state, not half-loaded.
	if err := v.SetScale(2.0); err != ErrNoDocument {
		t.Fatalf("SetScale err = %v, want ErrNoDocument", err)
	}
	if got := v.Viewport().TotalHeight(); got != 0 {
		t.Fatalf("TotalHeight = %v, want 0", got)
	}
	if res, _ := v.RequestPage(ctx, 1, "main").Wait(ctx); res.Status != render.StatusFailed {
		t.Fatalf("render after failed Load = %v, want failed", res.Status)
	}
	// The replaced document was still closed by the swap.
	if _, err := good.Page(1); err == nil {
		t.Fatal("previous document should be closed")
	}
}

func TestOperationsWithoutDocument(t *testing.T) {
	v := New()
	defer v.Close()
	ctx := context.Background()

	if err := v.SetScale(2.0); err != ErrNoDocument {
		t.Fatalf("SetScale err = %v, want ErrNoDocument", err)
	}
	res, err := v.Search(ctx, "anything")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Matches) != 0 {
		t.Fatalf("search without document = %+v", res)
	}
	if r, _ := v.RequestPage(ctx, 1, "main").Wait(ctx); r.Status != render.StatusFailed {
		t.Fatalf("render without document = %v, want failed", r.Status)
	}
}
