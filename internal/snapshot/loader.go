package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"screener/internal/domain"
	dErrors "screener/pkg/domain-errors"
)

// Loader pulls a document from a source, builds it and swaps it in.
type Loader struct {
	source  Source
	builder *Builder
	store   *Store
	logger  *slog.Logger
}

func NewLoader(src Source, b *Builder, st *Store, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{source: src, builder: b, store: st, logger: logger}
}

// Refresh loads and installs the source's current document. A document whose
// version is not newer than the active one fails with a conflict error and
// leaves the active snapshot in place.
func (l *Loader) Refresh(ctx context.Context) (*domain.Snapshot, BuildReport, error) {
	doc, err := l.source.Load(ctx)
	if err != nil {
		return nil, BuildReport{}, fmt.Errorf("load snapshot from %s: %w", l.source.Name(), err)
	}
	snap, report, err := l.builder.Build(doc)
	if err != nil {
		return nil, report, fmt.Errorf("build snapshot from %s: %w", l.source.Name(), err)
	}
	if err := l.store.Swap(snap); err != nil {
		return nil, report, err
	}

	l.logger.InfoContext(ctx, "reference snapshot loaded",
		"source", l.source.Name(),
		"snapshot_version", snap.Version(),
		"normalization_version", snap.NormalizationVersion(),
		"entries", report.Entries,
		"aliases", report.Aliases,
		"rejected", len(report.Rejected),
	)
	return snap, report, nil
}

// Poll refreshes every interval until ctx is cancelled. An unchanged source
// version is not an error; other failures are logged and the active snapshot
// stays in place.
func (l *Loader) Poll(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return dErrors.Newf(dErrors.CodeConfiguration, "poll interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_, _, err := l.Refresh(ctx)
			switch {
			case err == nil, dErrors.HasCode(err, dErrors.CodeConflict):
			case ctx.Err() != nil:
				return nil
			default:
				l.logger.ErrorContext(ctx, "snapshot poll failed", "source", l.source.Name(), "error", err)
			}
		}
	}
}
