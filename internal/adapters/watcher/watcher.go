// Package watcher provides drop-directory watching for batch conversion.
package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jobrunner/verto/internal/domain"
)

// BatchHandler is called with the stable set of dropped vector files once no
// member of the set has changed for the debounce window. Companion files of a
// multi-file format that arrive within the window end up in the same batch.
type BatchHandler func(ctx context.Context, paths []string) error

// Watcher watches drop directories for incoming vector files.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	handler   BatchHandler
	logger    *slog.Logger
	paths     []string
	debounce  time.Duration
	mu        sync.Mutex
	pending   map[string]time.Time
}

// Config holds watcher configuration.
type Config struct {
	Paths    []string
	Debounce time.Duration
}

// New creates a new drop-directory watcher.
func New(cfg Config, handler BatchHandler, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if cfg.Debounce == 0 {
		cfg.Debounce = 2 * time.Second
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		handler:   handler,
		logger:    logger,
		paths:     cfg.Paths,
		debounce:  cfg.Debounce,
		pending:   make(map[string]time.Time),
	}, nil
}

// Start starts watching the configured paths.
func (w *Watcher) Start(ctx context.Context) error {
	for _, path := range w.paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			w.logger.Warn("invalid watch path", "path", path, "error", err)
			continue
		}

		if err := w.fsWatcher.Add(absPath); err != nil {
			w.logger.Warn("failed to watch path", "path", absPath, "error", err)
			continue
		}

		w.logger.Info("watching drop directory", "path", absPath)
	}

	go w.eventLoop(ctx)
	go w.debounceLoop(ctx)

	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.fsWatcher.Close()
}

// eventLoop processes fsnotify events.
func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// handleFsEvent records or drops a single fsnotify event.
func (w *Watcher) handleFsEvent(event fsnotify.Event) {
	// Only files with a catalogued vector extension enter a batch
	if !domain.KnownExtension(event.Name) {
		return
	}

	w.logger.Debug("file event", "path", event.Name, "op", event.Op.String())

	w.mu.Lock()
	defer w.mu.Unlock()

	if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		// The file is gone from the drop directory, never convert it
		delete(w.pending, event.Name)
		return
	}

	// Create and Write both restart the stability window for the whole batch
	w.pending[event.Name] = time.Now()
}

// debounceLoop periodically checks the pending batch for stability.
func (w *Watcher) debounceLoop(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			w.flushStable(ctx)
		}
	}
}

// flushStable fires the handler when every pending file has been quiet for
// the full debounce window. A partially written bundle keeps the batch open.
func (w *Watcher) flushStable(ctx context.Context) {
	w.mu.Lock()

	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}

	now := time.Now()
	for _, last := range w.pending {
		if now.Sub(last) < w.debounce {
			w.mu.Unlock()
			return
		}
	}

	batch := make([]string, 0, len(w.pending))
	for path := range w.pending {
		batch = append(batch, path)
	}
	w.pending = make(map[string]time.Time)
	w.mu.Unlock()

	sort.Strings(batch)

	w.logger.Info("processing dropped batch", "files", len(batch))

	// Call handler in goroutine to not block the debounce loop
	go func(paths []string) {
		if err := w.handler(ctx, paths); err != nil {
			w.logger.Error("batch handler error", "files", len(paths), "error", err)
		}
	}(batch)
}

// AddPath adds a path to watch.
func (w *Watcher) AddPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	if err := w.fsWatcher.Add(absPath); err != nil {
		return err
	}

	w.logger.Info("added watch path", "path", absPath)
	return nil
}

// RemovePath removes a path from watching.
func (w *Watcher) RemovePath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	if err := w.fsWatcher.Remove(absPath); err != nil {
		return err
	}

	w.logger.Info("removed watch path", "path", absPath)
	return nil
}
