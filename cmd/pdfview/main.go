// Command pdfview exercises the viewer engine against a real PDF: it
// renders a page range to PNG files, warms thumbnails, and runs search
// queries, printing matches as page:offset pairs.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wudi/pdfview"
	"github.com/wudi/pdfview/provider"
	"github.com/wudi/pdfview/render"
)

type options struct {
	pdfPath   string
	outDir    string
	pages     string
	scale     float64
	query     string
	thumbs    bool
	fallback  bool
	renderers int
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pdfview: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "pdfview: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var opts options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: pdfview [flags] <pdf>\n")
		flag.PrintDefaults()
	}
	flag.StringVar(&opts.outDir, "out", "pdfview_output", "Directory for rendered pages")
	flag.StringVar(&opts.pages, "pages", "", "Page range to render, e.g. 1-5 or 3")
	flag.Float64Var(&opts.scale, "scale", 1.0, "Render scale (1.0 = 72 DPI)")
	flag.StringVar(&opts.query, "search", "", "Search query; matches print as page:offset")
	flag.BoolVar(&opts.thumbs, "thumbs", false, "Warm eager thumbnails and report their states")
	flag.BoolVar(&opts.fallback, "fallback", false, "Enable the pure-Go text extraction fallback")
	flag.IntVar(&opts.renderers, "renderers", pdfview.DefaultConcurrency, "Concurrent render ceiling")
	flag.Parse()

	if flag.NArg() != 1 {
		return opts, fmt.Errorf("expected exactly one PDF path")
	}
	opts.pdfPath = flag.Arg(0)
	if opts.scale <= 0 {
		return opts, fmt.Errorf("scale must be positive")
	}
	return opts, nil
}

func run(opts options) error {
	ctx := context.Background()

	var fitzOpts []provider.FitzOption
	if opts.fallback {
		tf, err := provider.NewPlainTextFallback(opts.pdfPath)
		if err != nil {
			return err
		}
		fitzOpts = append(fitzOpts, provider.WithTextFallback(tf))
	}
	doc, err := provider.OpenFitz(opts.pdfPath, fitzOpts...)
	if err != nil {
		return err
	}

	viewer := pdfview.New(
		pdfview.WithScale(opts.scale),
		pdfview.WithMaxConcurrentRenders(opts.renderers),
	)
	defer viewer.Close()
	if err := viewer.Load(ctx, doc); err != nil {
		return err
	}
	fmt.Printf("%s: %d pages\n", filepath.Base(opts.pdfPath), doc.PageCount())

	if opts.pages != "" {
		first, last, err := parseRange(opts.pages, doc.PageCount())
		if err != nil {
			return err
		}
		if err := renderRange(ctx, viewer, opts.outDir, first, last); err != nil {
			return err
		}
	}
	if opts.thumbs {
		if err := reportThumbnails(ctx, viewer, doc.PageCount()); err != nil {
			return err
		}
	}
	if opts.query != "" {
		if err := runSearch(ctx, viewer, opts.query); err != nil {
			return err
		}
	}
	return nil
}

func parseRange(spec string, pageCount int) (int, int, error) {
	first, last := 0, 0
	if i := strings.IndexByte(spec, '-'); i >= 0 {
		a, errA := strconv.Atoi(spec[:i])
		b, errB := strconv.Atoi(spec[i+1:])
		if errA != nil || errB != nil {
			return 0, 0, fmt.Errorf("invalid page range %q", spec)
		}
		first, last = a, b
	} else {
		n, err := strconv.Atoi(spec)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid page %q", spec)
		}
		first, last = n, n
	}
	if first < 1 || last < first || last > pageCount {
		return 0, 0, fmt.Errorf("page range %q outside 1..%d", spec, pageCount)
	}
	return first, last, nil
}

func renderRange(ctx context.Context, viewer *pdfview.Viewer, outDir string, first, last int) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	handles := make(map[int]*render.Handle, last-first+1)
	for page := first; page <= last; page++ {
		surface := render.SurfaceID(fmt.Sprintf("cli-%d", page))
		handles[page] = viewer.RequestPage(ctx, page, surface)
	}
	for page := first; page <= last; page++ {
		res, err := handles[page].Wait(ctx)
		if err != nil {
			return err
		}
		switch res.Status {
		case render.StatusRendered, render.StatusCached:
			name := filepath.Join(outDir, fmt.Sprintf("page-%04d.png", page))
			if err := os.WriteFile(name, res.PNG, 0o644); err != nil {
				return err
			}
			fmt.Printf("rendered %s (%d bytes)\n", name, len(res.PNG))
		case render.StatusFailed:
			fmt.Printf("page %d failed: %v (placeholder)\n", page, res.Err)
		case render.StatusSuperseded:
			fmt.Printf("page %d superseded\n", page)
		}
	}
	return nil
}

func reportThumbnails(ctx context.Context, viewer *pdfview.Viewer, pageCount int) error {
	thumbs := viewer.Thumbnails()
	if err := thumbs.Warm(ctx); err != nil {
		return err
	}
	for page := 1; page <= pageCount; page++ {
		png, state := thumbs.Thumbnail(page)
		fmt.Printf("thumbnail %d: %s (%d bytes)\n", page, state, len(png))
	}
	return nil
}

func runSearch(ctx context.Context, viewer *pdfview.Viewer, query string) error {
	res, err := viewer.Search(ctx, query)
	if err != nil {
		return err
	}
	fmt.Printf("%d matches for %q\n", len(res.Matches), query)
	for _, m := range res.Matches {
		fmt.Printf("  %d:%d (+%d)\n", m.Page, m.Offset, m.Length)
	}
	return nil
}
