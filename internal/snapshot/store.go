// Package snapshot owns the current reference snapshot and the adapters that
// load new generations of it from ingestion.
package snapshot

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"screener/internal/domain"
	dErrors "screener/pkg/domain-errors"
)

// SwapHook observes a successful swap. prev is nil for the first snapshot.
type SwapHook func(prev, next *domain.Snapshot)

// Store holds the active snapshot. Readers never block; a screening that took
// a snapshot keeps using it even if a newer one is swapped in mid-flight.
type Store struct {
	current atomic.Pointer[domain.Snapshot]
	swapMu  sync.Mutex
	hooks   []SwapHook
	logger  *slog.Logger
}

type StoreOption func(*Store)

func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = l
	}
}

// WithSwapHook registers fn to run after each successful swap. Hooks run in
// swap order while the swap lock is held and must not call Swap.
func WithSwapHook(fn SwapHook) StoreOption {
	return func(s *Store) {
		if fn != nil {
			s.hooks = append(s.hooks, fn)
		}
	}
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the active snapshot.
func (s *Store) Current() (*domain.Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, dErrors.New(dErrors.CodeSnapshotUnavailable, "no reference snapshot loaded")
	}
	return snap, nil
}

// Loaded reports whether any snapshot has been swapped in.
func (s *Store) Loaded() bool {
	return s.current.Load() != nil
}

// Swap installs next. Versions must strictly increase.
func (s *Store) Swap(next *domain.Snapshot) error {
	if next == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "cannot install a nil snapshot")
	}

	s.swapMu.Lock()
	defer s.swapMu.Unlock()
	prev := s.current.Load()
	if prev != nil && next.Version() <= prev.Version() {
		return dErrors.Newf(dErrors.CodeConflict,
			"snapshot version %d is not newer than active version %d", next.Version(), prev.Version())
	}
	s.current.Store(next)

	if s.logger != nil {
		s.logger.Info("reference snapshot swapped",
			"snapshot_version", next.Version(),
			"entries", next.Len(),
			"aliases", next.AliasCount(),
			"sources", next.Sources(),
		)
	}
	for _, hook := range s.hooks {
		hook(prev, next)
	}
	return nil
}
