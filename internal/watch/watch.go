// Package watch reports documents dropped into a directory once they stop
// changing.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
)

// DefaultDebounce is how long a file must be quiet before it is handled.
const DefaultDebounce = 2 * time.Second

// Config configures a directory watch.
type Config struct {
	Dir         string
	Extensions  []string // with or without the leading dot; empty = all files
	Debounce    time.Duration
	InitialScan bool // handle files already present at start
	Logger      *slog.Logger
}

// Handler processes one settled file. Errors are logged and do not stop
// the watch.
type Handler func(ctx context.Context, path string) error

type watcher struct {
	cfg    Config
	exts   map[string]struct{}
	logger *slog.Logger
	handle Handler
	ready  chan string

	mu      sync.Mutex
	pending map[string]*quiet
}

// quiet is the debounce timer for one path. Each touch replaces it, so a
// timer that already fired can tell it has been superseded.
type quiet struct {
	timer *time.Timer
}

// Run watches cfg.Dir and calls handle once for each file that was created
// or written and then left alone for cfg.Debounce. Files are handled one at
// a time in the order they settle. Run blocks until ctx is cancelled.
func Run(ctx context.Context, cfg Config, handle Handler) error {
	if cfg.Dir == "" {
		return errors.New("no directory to watch")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	w := &watcher{
		cfg:     cfg,
		exts:    normalizeExts(cfg.Extensions),
		logger:  cfg.Logger,
		handle:  handle,
		ready:   make(chan string, 64),
		pending: make(map[string]*quiet),
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(cfg.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", cfg.Dir, err)
	}
	w.logger.Info("watching directory", "dir", cfg.Dir, "debounce", cfg.Debounce)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.dispatch(gctx) })
	g.Go(func() error { return w.events(gctx, fw) })

	if cfg.InitialScan {
		if err := w.scan(gctx); err != nil {
			w.logger.Warn("initial scan failed", "dir", cfg.Dir, "error", err)
		}
	}

	err = g.Wait()
	w.stopTimers()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (w *watcher) events(ctx context.Context, fw *fsnotify.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !e.Has(fsnotify.Create) && !e.Has(fsnotify.Write) {
				continue
			}
			if w.allowed(e.Name) {
				w.touch(ctx, e.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// touch (re)starts the quiet timer for path.
func (w *watcher) touch(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.schedule(ctx, path)
}

// schedule replaces any pending timer for path. w.mu must be held.
func (w *watcher) schedule(ctx context.Context, path string) {
	if prev, ok := w.pending[path]; ok {
		prev.timer.Stop()
	}
	q := &quiet{}
	w.pending[path] = q
	q.timer = time.AfterFunc(w.cfg.Debounce, func() {
		w.mu.Lock()
		if w.pending[path] != q {
			w.mu.Unlock()
			return
		}
		delete(w.pending, path)
		w.mu.Unlock()

		select {
		case w.ready <- path:
		case <-ctx.Done():
		}
	})
}

func (w *watcher) dispatch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case path := <-w.ready:
			info, err := os.Stat(path)
			if err != nil || info.IsDir() {
				continue
			}
			w.logger.Info("processing file", "path", path)
			start := time.Now()
			if err := w.handle(ctx, path); err != nil {
				w.logger.Error("failed to process file", "path", path, "error", err)
				continue
			}
			w.logger.Info("processed file", "path", path, "elapsed", time.Since(start))
		}
	}
}

func (w *watcher) scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		path := filepath.Join(w.cfg.Dir, e.Name())
		if e.IsDir() || !w.allowed(path) {
			continue
		}
		select {
		case w.ready <- path:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (w *watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, q := range w.pending {
		q.timer.Stop()
		delete(w.pending, path)
	}
}

func (w *watcher) allowed(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
		return false
	}
	if len(w.exts) == 0 {
		return true
	}
	_, ok := w.exts[strings.ToLower(filepath.Ext(name))]
	return ok
}

func normalizeExts(exts []string) map[string]struct{} {
	out := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out[e] = struct{}{}
	}
	return out
}
