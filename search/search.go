// Package search implements incremental full-text search over a paginated
// document. Queries are Unicode-normalized and case-folded, matches are
// totally ordered by page then offset, and result lists are cached per
// query so repeated searches never re-scan.
package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/wudi/pdfview/observability"
	"github.com/wudi/pdfview/textcache"
)

// ErrSuperseded reports that a newer Search call replaced this scan
// before it finished. The superseded call committed nothing.
var ErrSuperseded = errors.New("search: superseded by a newer query")

// Match is one located occurrence. Offset and Length are rune counts
// into the case-folded page text.
type Match struct {
	Page   int
	Offset int
	Length int
}

// Result is an ordered match list plus the current navigation position.
// CurrentIndex is -1 when there are no matches.
type Result struct {
	Matches      []Match
	CurrentIndex int
}

// PageScroller receives scroll-to-page commands issued by navigation.
type PageScroller interface {
	ScrollToPage(pageNumber int) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log observability.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithTracer sets the engine tracer.
func WithTracer(tr observability.Tracer) Option {
	return func(e *Engine) { e.tracer = tr }
}

// WithMetrics sets the engine metrics sink.
func WithMetrics(m observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithScroller makes navigation issue scroll commands to ps.
func WithScroller(ps PageScroller) Option {
	return func(e *Engine) { e.scroller = ps }
}

// Engine owns the per-query match cache and the navigation cursor. Safe
// for concurrent use; a newer Search abandons an older in-flight scan.
type Engine struct {
	log      observability.Logger
	tracer   observability.Tracer
	metrics  observability.Metrics
	scroller PageScroller

	texts *textcache.Cache

	mu           sync.Mutex
	pageCount    int
	queries      map[string][]Match
	current      []Match
	currentIndex int
	gen          uint64
}

// New creates a search engine over a document with pageCount pages whose
// text is served by texts.
func New(pageCount int, texts *textcache.Cache, opts ...Option) *Engine {
	e := &Engine{
		log:          observability.NopLogger{},
		tracer:       observability.NopTracer(),
		metrics:      observability.NopMetrics(),
		texts:        texts,
		pageCount:    pageCount,
		queries:      make(map[string][]Match),
		currentIndex: -1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// normalize canonicalizes text for matching: NFC then full case folding.
func normalize(s string) string {
	return cases.Fold().String(norm.NFC.String(s))
}

// Search scans the document for query. Empty or whitespace-only queries
// return an empty result without touching any cache. Repeated identical
// queries are served from the query cache without re-extraction.
func (e *Engine) Search(ctx context.Context, query string) (Result, error) {
	_, span := e.tracer.StartSpan(ctx, "search")
	defer span.Finish()

	if strings.TrimSpace(query) == "" {
		return Result{CurrentIndex: -1}, nil
	}
	needle := normalize(query)
	start := time.Now()

	e.mu.Lock()
	if matches, ok := e.queries[needle]; ok {
		e.current = matches
		e.currentIndex = startIndex(matches)
		res := resultOf(matches, e.currentIndex)
		e.mu.Unlock()
		e.metrics.Count(observability.MetricSearchCacheHit, 1)
		return res, nil
	}
	e.gen++
	gen := e.gen
	pageCount := e.pageCount
	e.mu.Unlock()

	var matches []Match
	for page := 1; page <= pageCount; page++ {
		if err := ctx.Err(); err != nil {
			return Result{CurrentIndex: -1}, err
		}
		if e.staleGen(gen) {
			e.metrics.Count(observability.MetricSearchSuperseded, 1)
			return Result{CurrentIndex: -1}, ErrSuperseded
		}
		text, err := e.texts.Text(ctx, page)
		if err != nil {
			return Result{CurrentIndex: -1}, err
		}
		matches = appendPageMatches(matches, page, normalize(text), needle)
	}

	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		e.metrics.Count(observability.MetricSearchSuperseded, 1)
		return Result{CurrentIndex: -1}, ErrSuperseded
	}
	e.queries[needle] = matches
	e.current = matches
	e.currentIndex = startIndex(matches)
	res := resultOf(matches, e.currentIndex)
	e.mu.Unlock()

	e.metrics.Observe(observability.MetricSearchTime, time.Since(start))
	e.log.Debug("search scanned document",
		observability.String("query", needle),
		observability.Int("matches", len(matches)))
	return res, nil
}

func (e *Engine) staleGen(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return gen != e.gen
}

func startIndex(matches []Match) int {
	if len(matches) == 0 {
		return -1
	}
	return 0
}

func resultOf(matches []Match, index int) Result {
	out := make([]Match, len(matches))
	copy(out, matches)
	return Result{Matches: out, CurrentIndex: index}
}

// appendPageMatches appends every non-overlapping occurrence of needle in
// the folded page text, in offset order. Offsets are rune counts.
func appendPageMatches(matches []Match, page int, folded, needle string) []Match {
	if needle == "" {
		return matches
	}
	needleRunes := utf8.RuneCountInString(needle)
	byteOff, runeOff := 0, 0
	for {
		i := strings.Index(folded[byteOff:], needle)
		if i < 0 {
			return matches
		}
		runeOff += utf8.RuneCountInString(folded[byteOff : byteOff+i])
		matches = append(matches, Match{Page: page, Offset: runeOff, Length: needleRunes})
		runeOff += needleRunes
		byteOff += i + len(needle)
	}
}

// Next advances the cursor, wrapping past the last match, scrolls to the
// new match's page, and returns it. ok is false when no matches exist.
func (e *Engine) Next() (Match, bool) { return e.step(1) }

// Previous moves the cursor back, wrapping before the first match,
// scrolls to the new match's page, and returns it. ok is false when no
// matches exist.
func (e *Engine) Previous() (Match, bool) { return e.step(-1) }

func (e *Engine) step(delta int) (Match, bool) {
	e.mu.Lock()
	if len(e.current) == 0 {
		e.mu.Unlock()
		return Match{}, false
	}
	n := len(e.current)
	e.currentIndex = ((e.currentIndex+delta)%n + n) % n
	match := e.current[e.currentIndex]
	scroller := e.scroller
	e.mu.Unlock()
	if scroller != nil {
		// The jump is best-effort; a failed scroll leaves the cursor moved.
		_ = scroller.ScrollToPage(match.Page)
	}
	return match, true
}

// CurrentIndex reports the cursor position, -1 when no matches.
func (e *Engine) CurrentIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentIndex
}

// Reset drops every cached query and the cursor and adopts a new page
// count. Called on document replacement, always together with the text
// cache.
func (e *Engine) Reset(pageCount int) {
	e.mu.Lock()
	e.pageCount = pageCount
	e.queries = make(map[string][]Match)
	e.current = nil
	e.currentIndex = -1
	e.gen++
	e.mu.Unlock()
}
