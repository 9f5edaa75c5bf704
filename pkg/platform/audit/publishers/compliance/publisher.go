// Package compliance provides a fail-closed audit publisher for regulatory events.
//
// Publisher emits compliance events with synchronous, fail-closed semantics.
// The caller blocks until the store accepts the event. If the write fails an
// error carrying CodeAuditUnavailable is returned and the calling operation
// MUST fail.
//
// Use for: decision_made, snapshot_swapped
package compliance

import (
	"context"
	"log/slog"
	"time"

	dErrors "screener/pkg/domain-errors"
	audit "screener/pkg/platform/audit"
)

// Publisher emits compliance events with fail-closed semantics.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithClock overrides the timestamp source for events emitted without one.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

// New creates a compliance publisher.
func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit synchronously writes a compliance event to the audit store.
// Returns error if persistence fails - the caller MUST fail its operation.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	start := time.Now()

	if event.Action == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "compliance event requires Action")
	}
	if audit.AuditEvent(event.Action) == audit.EventDecisionMade && (event.Decision == "" || event.RuleFired == "") {
		return dErrors.New(dErrors.CodeInvalidInput, "decision event requires Decision and RuleFired")
	}

	event.Category = audit.CategoryCompliance
	event.Normalize(p.now)

	if err := p.store.Append(ctx, event); err != nil {
		p.metrics.IncPersistFailures()
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "CRITICAL: compliance audit failed",
				"action", event.Action,
				"event_id", event.ID,
				"request_id", event.RequestID,
				"error", err,
			)
		}
		return dErrors.Wrap(err, dErrors.CodeAuditUnavailable, "compliance audit persistence failed")
	}

	p.metrics.ObservePersistDuration(time.Since(start))
	p.metrics.IncEventsEmitted()
	return nil
}

// Close is a no-op for the synchronous compliance publisher.
func (p *Publisher) Close() error {
	return nil
}
