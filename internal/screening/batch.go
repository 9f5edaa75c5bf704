package screening

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"screener/internal/domain"
	dErrors "screener/pkg/domain-errors"
	"screener/pkg/platform/audit"
	"screener/pkg/requestcontext"
)

// BatchResult is the outcome of one query in a batch. Exactly one of Decision
// and Err is set.
type BatchResult struct {
	Index    int
	Query    string
	Decision *domain.Decision
	Err      error
}

// BatchSummary counts a batch's outcomes.
type BatchSummary struct {
	Total    int `json:"total"`
	Blocked  int `json:"blocked"`
	Escalate int `json:"escalated"`
	Cleared  int `json:"cleared"`
	Rejected int `json:"rejected"`
}

// Summarize counts results by outcome.
func Summarize(results []BatchResult) BatchSummary {
	sum := BatchSummary{Total: len(results)}
	for _, r := range results {
		if r.Err != nil || r.Decision == nil {
			sum.Rejected++
			continue
		}
		switch r.Decision.Action {
		case domain.ActionBlock:
			sum.Blocked++
		case domain.ActionEscalate:
			sum.Escalate++
		case domain.ActionClear:
			sum.Cleared++
		}
	}
	return sum
}

// ScreenBatch screens raws against one snapshot, so every decision in the
// batch carries the same snapshot version. Results come back in input order.
// A query that fails normalization keeps its error in its result; snapshot,
// configuration and audit failures abort the whole batch.
func (s *Service) ScreenBatch(ctx context.Context, raws []string) ([]BatchResult, error) {
	ctx, span := s.tracer.Start(ctx, "screening.ScreenBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("batch.size", len(raws)))

	start := time.Now()
	snap, err := s.currentSnapshot()
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}

	results := make([]BatchResult, len(raws))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchConcurrency)
	for i, raw := range raws {
		g.Go(func() error {
			results[i] = BatchResult{Index: i, Query: raw}

			query, err := s.normalizer.Normalize(raw)
			if err != nil {
				results[i].Err = asInvalidInput(err)
				s.metrics.IncError(string(dErrors.CodeInvalidInput))
				return nil
			}
			d, err := s.screen(gctx, query, snap)
			if err != nil {
				if haltsBatch(err) {
					return err
				}
				results[i].Err = err
				s.metrics.IncError(string(dErrors.CodeOf(err)))
				return nil
			}
			results[i].Decision = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, s.fail(ctx, span, err)
	}

	sum := Summarize(results)
	s.metrics.ObserveBatch(len(raws))
	s.emitBatchSummary(ctx, snap, sum, time.Since(start))
	return results, nil
}

func (s *Service) emitBatchSummary(ctx context.Context, snap *domain.Snapshot, sum BatchSummary, elapsed time.Duration) {
	payload, err := json.Marshal(sum)
	if err != nil {
		s.logger.ErrorContext(ctx, "encode batch summary", "error", err)
		return
	}
	s.logger.InfoContext(ctx, "batch screened",
		"request_id", requestcontext.RequestID(ctx),
		"snapshot_version", snap.Version(),
		"total", sum.Total,
		"blocked", sum.Blocked,
		"escalated", sum.Escalate,
		"rejected", sum.Rejected,
	)
	s.emitOps(ctx, audit.Event{
		Action:          string(audit.EventBatchScreened),
		RequestID:       requestcontext.RequestID(ctx),
		SnapshotVersion: snap.Version(),
		DurationMS:      float64(elapsed.Microseconds()) / 1000,
		Payload:         payload,
	})
}

func haltsBatch(err error) bool {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeConfiguration, dErrors.CodeSnapshotUnavailable, dErrors.CodeAuditUnavailable:
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
