package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	dErrors "screener/pkg/domain-errors"
)

const DefaultDebounce = 500 * time.Millisecond

// Reloader watches a snapshot file and refreshes the store after it changes.
// The directory is watched so editors that replace the file are still seen.
type Reloader struct {
	watcher  *fsnotify.Watcher
	path     string
	loader   *Loader
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	pending *time.Timer
}

func NewReloader(path string, loader *Loader, logger *slog.Logger, debounce time.Duration) (*Reloader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve snapshot path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", abs, err)
	}

	return &Reloader{
		watcher:  watcher,
		path:     abs,
		loader:   loader,
		logger:   logger,
		debounce: debounce,
	}, nil
}

// Run blocks until ctx is cancelled. Reload failures are logged and the
// previous snapshot stays active.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()
	defer r.stopPending()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				r.schedule(ctx)
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.ErrorContext(ctx, "snapshot watcher error", "error", err)
		}
	}
}

func (r *Reloader) schedule(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending != nil {
		r.pending.Stop()
	}
	r.pending = time.AfterFunc(r.debounce, func() {
		r.reload(ctx)
	})
}

func (r *Reloader) reload(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	snap, _, err := r.loader.Refresh(ctx)
	switch {
	case err == nil:
		r.logger.InfoContext(ctx, "snapshot hot-reload applied", "snapshot_version", snap.Version())
	case dErrors.HasCode(err, dErrors.CodeConflict):
		r.logger.InfoContext(ctx, "snapshot hot-reload skipped", "reason", err.Error())
	default:
		r.logger.ErrorContext(ctx, "snapshot hot-reload failed", "path", r.path, "error", err)
	}
}

func (r *Reloader) stopPending() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending != nil {
		r.pending.Stop()
	}
}
