// Package ops provides the fail-open publisher for operational audit events
// (scoring diagnostics, batch summaries). Unlike compliance events these
// never fail a screening: when the sink is unhealthy the circuit opens and
// events are dropped and counted.
package ops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	audit "screener/pkg/platform/audit"
	"screener/pkg/platform/circuit"
	"screener/pkg/platform/sentinel"
)

var (
	ErrCircuitOpen = fmt.Errorf("ops audit circuit open: %w", sentinel.ErrUnavailable)
	ErrSampledOut  = errors.New("ops audit event sampled out")
)

// Tracker emits operational events through a circuit breaker and sampler.
type Tracker struct {
	store   audit.Store
	breaker *circuit.Breaker
	sampler *Sampler
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Tracker)

func WithBreaker(b *circuit.Breaker) Option {
	return func(t *Tracker) {
		if b != nil {
			t.breaker = b
		}
	}
}

func WithSampler(s *Sampler) Option {
	return func(t *Tracker) {
		if s != nil {
			t.sampler = s
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(t *Tracker) {
		t.metrics = m
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = l
	}
}

func New(store audit.Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:   store,
		breaker: circuit.New("ops-audit", circuit.WithFailureThreshold(5), circuit.WithCooldown(time.Minute)),
		sampler: NewSampler(1),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Emit records event unless it is sampled out or the circuit is open, in
// which case the matching sentinel error is returned so callers can log it.
func (t *Tracker) Emit(ctx context.Context, event audit.Event) error {
	event.Category = audit.CategoryOperations
	event.Normalize(t.now)

	if !t.sampler.ShouldSample(event.Action) {
		t.metrics.IncSampled()
		return ErrSampledOut
	}
	if !t.breaker.Allow() {
		t.metrics.IncCircuitBreakerDropped()
		return ErrCircuitOpen
	}

	if err := t.store.Append(ctx, event); err != nil {
		t.metrics.IncPersistFailures()
		if _, change := t.breaker.RecordFailure(); change.Opened {
			t.metrics.SetCircuitBreakerState(true)
			t.logger.WarnContext(ctx, "ops audit circuit opened", "error", err)
		}
		return fmt.Errorf("append ops audit event: %w", err)
	}

	if _, change := t.breaker.RecordSuccess(); change.Closed {
		t.metrics.SetCircuitBreakerState(false)
		t.logger.InfoContext(ctx, "ops audit circuit closed")
	}
	t.metrics.IncTracked()
	return nil
}
