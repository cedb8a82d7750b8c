// Package orientation detects the upright rotation of page images using a
// lazily grown pool of OCR workers.
package orientation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/folio/internal/imaging"
)

const (
	// DefaultStartingWorkers is the batch created when a pool starts.
	DefaultStartingWorkers = 3

	// DefaultMinConfidence is the mean word confidence (0..1) a rotation
	// needs before it is trusted over leaving the image alone.
	DefaultMinConfidence = 0.6
)

// Rotations are the candidate clockwise rotations, in preference order.
var Rotations = [4]int{0, 90, 180, 270}

// ErrPoolClosed is returned for work submitted after Shutdown.
var ErrPoolClosed = errors.New("orientation pool is closed")

// Worker scores how readable an image is. Each worker handles one image at
// a time; the pool never shares a worker between jobs.
type Worker interface {
	Confidence(ctx context.Context, png []byte) (float64, error)
	Close() error
}

// WorkerFactory creates a new Worker.
type WorkerFactory func() (Worker, error)

// PoolConfig configures a Pool.
type PoolConfig struct {
	Factory       WorkerFactory // Default: tesseract with English
	MaxWorkers    int           // <= 0 means no cap
	MinConfidence float64       // Default: DefaultMinConfidence
	Logger        *slog.Logger
}

// Pool owns a set of OCR workers pulling from one shared job queue. Workers
// are added in batches by EnsureCapacity and released by Shutdown.
type Pool struct {
	factory       WorkerFactory
	maxWorkers    int
	minConfidence float64
	logger        *slog.Logger

	mu     sync.RWMutex
	jobs   chan job
	size   int
	closed bool

	wg        sync.WaitGroup
	errMu     sync.Mutex
	closeErrs []error
}

type job struct {
	ctx    context.Context
	png    []byte
	result chan jobResult
}

type jobResult struct {
	confidence float64
	err        error
}

// NewPool creates an empty pool. Call EnsureCapacity to start workers.
func NewPool(cfg PoolConfig) *Pool {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	factory := cfg.Factory
	if factory == nil {
		factory = TesseractFactory("eng")
	}
	minConfidence := cfg.MinConfidence
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}

	return &Pool{
		factory:       factory,
		maxWorkers:    cfg.MaxWorkers,
		minConfidence: minConfidence,
		logger:        logger.With("component", "orientation"),
		jobs:          make(chan job),
	}
}

// Size returns the number of live workers.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.size
}

// EnsureCapacity grows the pool to n workers, bounded by MaxWorkers. The
// missing workers are created together as one batch.
func (p *Pool) EnsureCapacity(ctx context.Context, n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	if p.maxWorkers > 0 && n > p.maxWorkers {
		n = p.maxWorkers
	}
	missing := n - p.size
	if missing <= 0 {
		return nil
	}

	batch := make([]Worker, missing)
	g, _ := errgroup.WithContext(ctx)
	for i := range batch {
		g.Go(func() error {
			w, err := p.factory()
			if err != nil {
				return err
			}
			batch[i] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, w := range batch {
			if w != nil {
				_ = w.Close()
			}
		}
		return fmt.Errorf("failed to create orientation worker: %w", err)
	}

	for _, w := range batch {
		p.size++
		p.wg.Add(1)
		go p.run(p.size, w)
	}
	p.logger.Debug("orientation pool grown", "added", missing, "workers", p.size)
	return nil
}

// run serves jobs until the queue is closed, then releases the worker.
func (p *Pool) run(id int, w Worker) {
	defer p.wg.Done()
	for j := range p.jobs {
		conf, err := w.Confidence(j.ctx, j.png)
		j.result <- jobResult{confidence: conf, err: err}
	}
	if err := w.Close(); err != nil {
		p.errMu.Lock()
		p.closeErrs = append(p.closeErrs, fmt.Errorf("worker %d: %w", id, err))
		p.errMu.Unlock()
	}
}

// Shutdown stops accepting work, waits for in-flight jobs and closes every
// worker. It is safe to call more than once.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobs)
	size := p.size
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Debug("orientation pool shut down", "workers", size)

	p.errMu.Lock()
	defer p.errMu.Unlock()
	return errors.Join(p.closeErrs...)
}

// score runs one confidence job on the next free worker.
func (p *Pool) score(ctx context.Context, png []byte) (float64, error) {
	if p.Size() == 0 {
		if err := p.EnsureCapacity(ctx, 1); err != nil {
			return 0, err
		}
	}

	res := make(chan jobResult, 1)
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return 0, ErrPoolClosed
	}
	select {
	case p.jobs <- job{ctx: ctx, png: png, result: res}:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return 0, ctx.Err()
	}

	select {
	case r := <-res:
		return r.confidence, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// DetectRotation scores all four rotations of png in parallel and returns
// the clockwise rotation that reads best, or 0 when no rotation is
// confident enough.
func (p *Pool) DetectRotation(ctx context.Context, png []byte) (int, error) {
	img, _, err := image.Decode(bytes.NewReader(png))
	if err != nil {
		return 0, fmt.Errorf("failed to decode image: %w", err)
	}

	var scores [len(Rotations)]float64
	g, gctx := errgroup.WithContext(ctx)
	for i, degrees := range Rotations {
		g.Go(func() error {
			candidate := png
			if degrees != 0 {
				encoded, err := imaging.EncodePNG(imaging.Rotate(img, degrees))
				if err != nil {
					return fmt.Errorf("failed to encode rotation %d: %w", degrees, err)
				}
				candidate = encoded
			}
			conf, err := p.score(gctx, candidate)
			if err != nil {
				return fmt.Errorf("rotation %d: %w", degrees, err)
			}
			scores[i] = conf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	byRotation := make(map[int]float64, len(Rotations))
	for i, degrees := range Rotations {
		byRotation[degrees] = scores[i]
	}
	rotation := Vote(byRotation, p.minConfidence)
	p.logger.Debug("orientation vote", "scores", byRotation, "rotation", rotation)
	return rotation, nil
}

// Vote picks the rotation with the highest confidence. It returns 0 when the
// best score is below minConfidence or does not beat the unrotated score.
func Vote(scores map[int]float64, minConfidence float64) int {
	best, bestScore := 0, scores[0]
	for _, degrees := range Rotations {
		if s, ok := scores[degrees]; ok && s > bestScore {
			best, bestScore = degrees, s
		}
	}
	if bestScore < minConfidence {
		return 0
	}
	return best
}
