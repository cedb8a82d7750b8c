package document

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Page is one unit of a loaded document.
type Page struct {
	Number int    // 1-based page (or sheet) number in the source
	Image  []byte // Encoded page image; nil for structured pages
	Text   string // Already-textual content for structured pages
}

// Document is a loaded input.
type Document struct {
	Kind       Kind
	SourcePath string // Local copy inside the scratch dir
	Pages      []Page
}

// Structured reports whether the pages are already textual and skip
// recognition.
func (d *Document) Structured() bool {
	return d.Kind == KindSpreadsheet
}

// Images returns the page images in order.
func (d *Document) Images() [][]byte {
	out := make([][]byte, 0, len(d.Pages))
	for _, p := range d.Pages {
		if p.Image != nil {
			out = append(out, p.Image)
		}
	}
	return out
}

// LoadOptions controls how a document becomes pages.
type LoadOptions struct {
	// Dir is the scratch directory. It must exist.
	Dir string
	// Pages selects 1-based PDF pages; empty means all.
	Pages   []int
	Density int
	Height  int
}

// Loader turns a source path or URL into a Document.
type Loader interface {
	Load(ctx context.Context, source string, opts LoadOptions) (*Document, error)
}

// FileLoader is the default Loader.
type FileLoader struct {
	Runner     Runner       // Default: ExecRunner
	HTTPClient *http.Client // Default: 5 minute timeout
	Logger     *slog.Logger
}

// NewFileLoader creates a loader using real external commands.
func NewFileLoader(logger *slog.Logger) *FileLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileLoader{
		Runner:     ExecRunner{Logger: logger},
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
		Logger:     logger,
	}
}

// Load fetches, classifies and converts source.
func (l *FileLoader) Load(ctx context.Context, source string, opts LoadOptions) (*Document, error) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runner := l.Runner
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}

	start := time.Now()
	fetched, err := Fetch(ctx, l.HTTPClient, source, opts.Dir)
	if err != nil {
		return nil, err
	}
	head, err := readHead(fetched.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", fetched.Path, err)
	}
	kind, err := DetectKind(head, fetched.ContentType, fetched.Ext)
	if err != nil {
		return nil, err
	}
	logger.Debug("document fetched", "kind", kind, "path", fetched.Path, "duration", time.Since(start))

	doc := &Document{Kind: kind, SourcePath: fetched.Path}

	switch kind {
	case KindSpreadsheet:
		path := fetched.Path
		if fetched.Ext == ".xls" || fetched.Ext == ".xlsb" {
			if path, err = ToXLSX(ctx, runner, path, opts.Dir); err != nil {
				return nil, err
			}
		}
		sheets, err := Sheets(path)
		if err != nil {
			return nil, err
		}
		for i, s := range sheets {
			doc.Pages = append(doc.Pages, Page{Number: i + 1, Text: s.Content})
		}
		return doc, nil

	case KindImage:
		return doc, l.addImages(doc, []string{fetched.Path}, []int{1})

	case KindHEIC:
		jpg, err := HEICToJPEG(ctx, runner, fetched.Path, opts.Dir)
		if err != nil {
			return nil, err
		}
		return doc, l.addImages(doc, []string{jpg}, []int{1})

	case KindOffice:
		pdf, err := ToPDF(ctx, runner, fetched.Path, opts.Dir)
		if err != nil {
			return nil, err
		}
		return doc, l.rasterize(ctx, runner, doc, pdf, opts)

	case KindPDF:
		return doc, l.rasterize(ctx, runner, doc, fetched.Path, opts)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, kind)
}

func (l *FileLoader) rasterize(ctx context.Context, runner Runner, doc *Document, pdfPath string, opts LoadOptions) error {
	total, err := PageCount(pdfPath)
	if err != nil {
		return err
	}
	pages := SelectPages(opts.Pages, total)
	if len(pages) == 0 {
		return fmt.Errorf("no pages selected (document has %d pages)", total)
	}

	outDir := filepath.Join(opts.Dir, "pages")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create pages directory: %w", err)
	}

	paths, err := Rasterize(ctx, RasterizeOptions{
		Runner:  runner,
		PDFPath: pdfPath,
		OutDir:  outDir,
		Pages:   pages,
		Density: opts.Density,
		Height:  opts.Height,
	})
	if err != nil {
		return err
	}
	return l.addImages(doc, paths, pages)
}

func (l *FileLoader) addImages(doc *Document, paths []string, numbers []int) error {
	for i, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read page image: %w", err)
		}
		doc.Pages = append(doc.Pages, Page{Number: numbers[i], Image: data})
	}
	return nil
}

var _ Loader = (*FileLoader)(nil)
