// Package pipeline turns a document into markdown and structured data by
// fanning its pages out to vision-language models.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jackzampolin/folio/internal/document"
	"github.com/jackzampolin/folio/internal/imaging"
	"github.com/jackzampolin/folio/internal/orientation"
	"github.com/jackzampolin/folio/internal/providers"
	"github.com/jackzampolin/folio/internal/workdir"
)

// run holds the state shared by the phases of one Process call.
type run struct {
	cfg         Config
	logger      *slog.Logger
	recognizer  providers.Model
	extractor   providers.Model
	normalizer  *imaging.Normalizer
	doc         *document.Document
	sections    [][][]byte // normalized images per page, filled lazily
	sectionErrs []error
	sectionOnce []sync.Once
}

// Process converts the document at cfg.FilePath and, when a schema is set,
// extracts structured data from it.
func Process(ctx context.Context, cfg Config) (*Output, error) {
	start := time.Now()
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger.With("component", "pipeline")

	recognizer, extractor, err := cfg.models()
	if err != nil {
		return nil, err
	}

	pool := startOrientation(ctx, cfg, logger)
	if pool != nil {
		defer func() {
			if err := pool.Shutdown(); err != nil {
				logger.Warn("failed to release orientation workers", "error", err)
			}
		}()
	}

	scratch, err := workdir.NewRun(cfg.TempDir, !cfg.Cleanup)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := scratch.Cleanup(); err != nil {
			logger.Warn("failed to clean up scratch directory", "path", scratch.Path(), "error", err)
		}
	}()

	loader := cfg.Loader
	if loader == nil {
		loader = document.NewFileLoader(cfg.Logger)
	}
	loadStart := time.Now()
	doc, err := loader.Load(ctx, cfg.FilePath, document.LoadOptions{
		Dir:     scratch.SourceDir(),
		Pages:   cfg.PagesToConvertAsImages,
		Density: cfg.ImageDensity,
		Height:  cfg.ImageHeight,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	logger.Info("document loaded",
		"kind", doc.Kind,
		"pages", len(doc.Pages),
		"duration", time.Since(loadStart))

	var detector imaging.OrientationDetector
	if pool != nil && !doc.Structured() {
		if err := pool.EnsureCapacity(ctx, len(doc.Pages)); err != nil {
			logger.Warn("failed to grow orientation pool", "error", err)
		}
		detector = pool
	}

	r := &run{
		cfg:         cfg,
		logger:      logger,
		recognizer:  recognizer,
		extractor:   extractor,
		normalizer:  imaging.NewNormalizer(imaging.NormalizerConfig{Detector: detector, Logger: cfg.Logger}),
		doc:         doc,
		sections:    make([][][]byte, len(doc.Pages)),
		sectionErrs: make([]error, len(doc.Pages)),
		sectionOnce: make([]sync.Once, len(doc.Pages)),
	}

	out := &Output{FileName: fileName(cfg.FilePath)}
	var recLogprobs, extLogprobs []LogprobPage

	// Structured pages are already text, so extract-only runs keep them.
	if !cfg.ExtractOnly || doc.Structured() {
		phaseStart := time.Now()
		rec, err := r.recognize(ctx)
		if err != nil {
			return nil, err
		}
		out.Pages = rec.pages
		if !cfg.ExtractOnly {
			out.Summary.Recognition = &rec.counts
		}
		recLogprobs = rec.logprobs
		for _, p := range rec.pages {
			out.InputTokens += p.InputTokens
			out.OutputTokens += p.OutputTokens
		}
		logger.Info("recognition complete",
			"successful", rec.counts.Successful,
			"failed", rec.counts.Failed,
			"duration", time.Since(phaseStart))
	}

	if cfg.Schema != nil {
		phaseStart := time.Now()
		ext, err := r.extract(ctx, out.Pages)
		if err != nil {
			return nil, err
		}
		out.Extracted = ext.values
		out.Issues = ext.issues
		out.Summary.Extracted = &ext.counts
		out.InputTokens += ext.inputTokens
		out.OutputTokens += ext.outputTokens
		extLogprobs = ext.logprobs
		attachPageValues(out.Pages, ext.perPage)
		logger.Info("extraction complete",
			"successful", ext.counts.Successful,
			"failed", ext.counts.Failed,
			"duration", time.Since(phaseStart))
	}

	if len(recLogprobs) > 0 || len(extLogprobs) > 0 {
		out.Logprobs = &Logprobs{Recognition: recLogprobs, Extracted: extLogprobs}
	}

	out.Summary.TotalPages = len(out.Pages)
	if cfg.ExtractOnly {
		out.Summary.TotalPages = len(doc.Pages)
	}

	if cfg.OutputDir != "" {
		if err := writeMarkdown(cfg.OutputDir, out); err != nil {
			return nil, err
		}
	}

	out.CompletionTime = time.Since(start).Milliseconds()
	logger.Info("document processed",
		"file", out.FileName,
		"pages", out.Summary.TotalPages,
		"input_tokens", out.InputTokens,
		"output_tokens", out.OutputTokens,
		"duration", time.Since(start))
	return out, nil
}

// startOrientation creates the orientation pool with its first batch of
// workers. It returns nil when correction is off or no worker can start,
// in which case pages are sent as rendered.
func startOrientation(ctx context.Context, cfg Config, logger *slog.Logger) *orientation.Pool {
	if !cfg.CorrectOrientation {
		return nil
	}
	maxWorkers := cfg.MaxOrientationWorkers
	if maxWorkers < 0 {
		maxWorkers = 0
	}
	pool := orientation.NewPool(orientation.PoolConfig{
		Factory:    cfg.OrientationFactory,
		MaxWorkers: maxWorkers,
		Logger:     cfg.Logger,
	})

	initial := orientation.DefaultStartingWorkers
	if maxWorkers > 0 && maxWorkers < initial {
		initial = maxWorkers
	}
	if err := pool.EnsureCapacity(ctx, initial); err != nil {
		logger.Warn("orientation correction disabled", "error", err)
		_ = pool.Shutdown()
		return nil
	}
	return pool
}

// pageImages returns the normalized sections of page i, normalizing it on
// first use.
func (r *run) pageImages(ctx context.Context, i int) ([][]byte, error) {
	r.sectionOnce[i].Do(func() {
		page := r.doc.Pages[i]
		start := time.Now()
		r.sections[i], r.sectionErrs[i] = r.normalizer.Normalize(ctx, page.Image, imaging.Options{
			TrimEdges:          r.cfg.TrimEdges,
			CorrectOrientation: r.cfg.CorrectOrientation,
			MaxSizeMB:          r.cfg.MaxImageSizeMB,
		})
		if r.sectionErrs[i] == nil {
			r.logger.Debug("page normalized",
				"page", page.Number,
				"sections", len(r.sections[i]),
				"duration", time.Since(start))
		}
	})
	return r.sections[i], r.sectionErrs[i]
}

func writeMarkdown(dir string, out *Output) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, out.FileName+".md")
	if err := os.WriteFile(path, []byte(out.Markdown()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
