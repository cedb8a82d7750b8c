package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// DefaultDensity is the rendering resolution in DPI.
const DefaultDensity = 300

// PageCount returns the number of pages in a PDF.
func PageCount(pdfPath string) (int, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	n, err := api.PageCount(f, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return n, nil
}

// SelectPages returns the 1-based page numbers to render. A nil or empty
// request selects every page. Requested pages are sorted, de-duplicated and
// filtered to 1..total.
func SelectPages(requested []int, total int) []int {
	if len(requested) == 0 {
		pages := make([]int, total)
		for i := range pages {
			pages[i] = i + 1
		}
		return pages
	}

	seen := make(map[int]bool, len(requested))
	pages := make([]int, 0, len(requested))
	for _, p := range requested {
		if p < 1 || p > total || seen[p] {
			continue
		}
		seen[p] = true
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

// RasterizeOptions controls PDF page rendering.
type RasterizeOptions struct {
	Runner  Runner
	PDFPath string
	OutDir  string
	Pages   []int // 1-based, already selected
	Density int   // DPI (default: 300)
	Height  int   // Optional output height in pixels; width keeps aspect
}

// Rasterize renders the selected pages to PNG files and returns their
// paths in page order.
func Rasterize(ctx context.Context, opts RasterizeOptions) ([]string, error) {
	density := opts.Density
	if density <= 0 {
		density = DefaultDensity
	}

	type result struct {
		index int
		path  string
		err   error
	}

	results := make(chan result, len(opts.Pages))
	sem := make(chan struct{}, runtime.NumCPU())

	for i, page := range opts.Pages {
		select {
		case sem <- struct{}{}: // acquire
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		go func(index, page int) {
			defer func() { <-sem }() // release
			path, err := renderPage(ctx, opts, density, page)
			results <- result{index: index, path: path, err: err}
		}(i, page)
	}

	paths := make([]string, len(opts.Pages))
	var firstErr error
	for range opts.Pages {
		r := <-results
		if r.err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to render page %d: %w", opts.Pages[r.index], r.err)
		}
		paths[r.index] = r.path
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return paths, nil
}

// renderPage renders a single page with pdftoppm (poppler-utils).
func renderPage(ctx context.Context, opts RasterizeOptions, density, page int) (string, error) {
	base := filepath.Base(opts.PDFPath)
	base = base[:len(base)-len(filepath.Ext(base))]
	prefix := filepath.Join(opts.OutDir, fmt.Sprintf("%s_page_%04d", base, page))

	pageStr := strconv.Itoa(page)
	args := []string{
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", strconv.Itoa(density),
	}
	if opts.Height > 0 {
		args = append(args, "-scale-to-y", strconv.Itoa(opts.Height), "-scale-to-x", "-1")
	}
	args = append(args, "-singlefile", opts.PDFPath, prefix)

	_, stderr, err := opts.Runner.Run(ctx, "pdftoppm", args...)
	if err != nil {
		return "", fmt.Errorf("pdftoppm failed: %w (output: %s)", err, truncate(string(stderr), 1<<10))
	}

	// pdftoppm with -singlefile creates: <prefix>.png
	out := prefix + ".png"
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}
	return out, nil
}
