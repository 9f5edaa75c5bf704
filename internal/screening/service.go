// Package screening sequences one screening request: normalize the query,
// rank the current reference snapshot against it, apply the decision ladder
// and record the outcome with the audit collaborator.
package screening

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"screener/internal/cache"
	"screener/internal/decision"
	"screener/internal/domain"
	"screener/internal/filter"
	"screener/internal/matcher"
	"screener/internal/screening/metrics"
	"screener/internal/screening/ports"
	dErrors "screener/pkg/domain-errors"
	"screener/pkg/platform/audit"
	"screener/pkg/platform/audit/publishers/ops"
	"screener/pkg/requestcontext"
)

const tracerName = "screener/internal/screening"

type Service struct {
	normalizer ports.Normalizer
	snapshots  ports.SnapshotProvider
	matcher    ports.Matcher
	engine     ports.Engine

	filter     ports.CandidateFilter
	auditor    ports.Auditor
	opsAuditor ports.OpsAuditor
	cache      ports.CandidateCache

	logger           *slog.Logger
	metrics          *metrics.Metrics
	tracer           trace.Tracer
	now              func() time.Time
	batchConcurrency int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAuditor sets the compliance auditor. decision_made events go here and
// an emit failure fails the screening.
func WithAuditor(a ports.Auditor) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

// WithOpsAuditor sets the sink for scoring diagnostics and batch summaries.
// Without one they go to the compliance auditor, still fail-open.
func WithOpsAuditor(a ports.OpsAuditor) Option {
	return func(s *Service) {
		s.opsAuditor = a
	}
}

// WithCandidateFilter removes weak candidates after matching. Cached results
// are stored unfiltered and filtered on every read.
func WithCandidateFilter(f ports.CandidateFilter) Option {
	return func(s *Service) {
		s.filter = f
	}
}

func WithCandidateCache(c ports.CandidateCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithBatchConcurrency bounds how many queries of one batch run at once.
func WithBatchConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchConcurrency = n
		}
	}
}

// New wires the pipeline. Every stage is required.
func New(normalizer ports.Normalizer, snapshots ports.SnapshotProvider, m ports.Matcher, engine ports.Engine, opts ...Option) (*Service, error) {
	switch {
	case normalizer == nil:
		return nil, dErrors.New(dErrors.CodeConfiguration, "normalizer is required")
	case snapshots == nil:
		return nil, dErrors.New(dErrors.CodeConfiguration, "snapshot provider is required")
	case m == nil:
		return nil, dErrors.New(dErrors.CodeConfiguration, "matcher is required")
	case engine == nil:
		return nil, dErrors.New(dErrors.CodeConfiguration, "decision engine is required")
	}

	svc := &Service{
		normalizer:       normalizer,
		snapshots:        snapshots,
		matcher:          m,
		engine:           engine,
		logger:           slog.Default(),
		tracer:           otel.Tracer(tracerName),
		now:              func() time.Time { return time.Now().UTC() },
		batchConcurrency: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Screen screens one raw name against the current snapshot. The snapshot is
// read once, so a concurrent swap never affects this call.
func (s *Service) Screen(ctx context.Context, raw string) (*domain.Decision, error) {
	ctx, span := s.tracer.Start(ctx, "screening.Screen")
	defer span.End()

	query, err := s.normalizer.Normalize(raw)
	if err != nil {
		return nil, s.fail(ctx, span, asInvalidInput(err))
	}

	snap, err := s.currentSnapshot()
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}

	d, err := s.screen(ctx, query, snap)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	return d, nil
}

func (s *Service) screen(ctx context.Context, query domain.NormalizedName, snap *domain.Snapshot) (*domain.Decision, error) {
	start := time.Now()
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Int64("snapshot.version", int64(snap.Version()))) //nolint:gosec // versions fit in int64

	candidates, failures, err := s.candidates(ctx, query, snap)
	if err != nil {
		return nil, err
	}
	s.reportFailures(ctx, query, snap, failures)
	candidates, removed := s.applyFilter(ctx, query, candidates)

	_, decideSpan := s.tracer.Start(ctx, "screening.decide")
	d, err := s.engine.Decide(decision.Input{
		Query:                query.Original(),
		NormalizationVersion: query.Version(),
		SnapshotVersion:      snap.Version(),
		Candidates:           candidates,
		Timestamp:            s.timestamp(ctx),
	})
	if err != nil {
		decideSpan.RecordError(err)
		decideSpan.SetStatus(codes.Error, "decide")
		decideSpan.End()
		return nil, err
	}
	decideSpan.SetAttributes(
		attribute.String("decision.action", string(d.Action)),
		attribute.String("decision.rule", d.RuleFired),
	)
	decideSpan.End()

	risk := decision.RiskLevelFor(domain.TopScore(d.MatchedCandidates), s.engine.Thresholds(), s.matcher.Floor())
	route := decision.Routing(d.Action, decision.PriorityFor(d, risk))
	elapsed := time.Since(start)

	if err := s.auditDecision(ctx, d, risk, route, removed, elapsed); err != nil {
		return nil, err
	}

	s.metrics.ObserveScreen(string(d.Action), elapsed)
	s.metrics.ObserveCandidates(len(d.MatchedCandidates))
	span.SetAttributes(
		attribute.String("decision.action", string(d.Action)),
		attribute.String("decision.rule", d.RuleFired),
	)
	s.logger.InfoContext(ctx, "screening decided",
		"request_id", requestcontext.RequestID(ctx),
		"snapshot_version", snap.Version(),
		"action", d.Action,
		"rule", d.RuleFired,
		"candidates", len(d.MatchedCandidates),
		"filtered", len(removed),
		"queue", route.Queue,
		"duration_ms", float64(elapsed.Microseconds())/1000,
	)
	return &d, nil
}

// candidates returns the ranked candidates for query, from the cache when the
// same query was already matched against this snapshot with these options.
// Results with scoring failures are never cached so their diagnostics are
// reported on every call.
func (s *Service) candidates(ctx context.Context, query domain.NormalizedName, snap *domain.Snapshot) ([]domain.Candidate, []matcher.ScoringFailure, error) {
	ctx, span := s.tracer.Start(ctx, "screening.match")
	defer span.End()

	var key string
	if s.cache != nil {
		key = cache.Key(snap.Version(), s.matcher.Fingerprint(), query.Version(), query.Value())
		cached, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			s.metrics.IncCacheLookup("error")
			s.logger.WarnContext(ctx, "candidate cache lookup failed", "error", err)
		case ok:
			s.metrics.IncCacheLookup("hit")
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return cached, nil, nil
		default:
			s.metrics.IncCacheLookup("miss")
		}
	}

	res, err := s.matcher.Match(ctx, query, snap)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "match")
		return nil, nil, err
	}
	span.SetAttributes(
		attribute.Int("match.scanned", res.Scanned),
		attribute.Int("match.prefiltered", res.Prefiltered),
		attribute.Int("match.candidates", len(res.Candidates)),
	)

	if s.cache != nil && len(res.Failures) == 0 {
		if err := s.cache.Put(ctx, key, res.Candidates); err != nil {
			s.logger.WarnContext(ctx, "candidate cache write failed", "error", err)
		}
	}
	return res.Candidates, res.Failures, nil
}

func (s *Service) applyFilter(ctx context.Context, query domain.NormalizedName, candidates []domain.Candidate) ([]domain.Candidate, []filter.Removed) {
	if s.filter == nil || len(candidates) == 0 {
		return candidates, nil
	}
	kept, removed := s.filter.Apply(query, candidates)
	if len(removed) == 0 {
		return kept, nil
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int("filter.removed", len(removed)))
	for _, r := range removed {
		s.metrics.IncFiltered(string(r.Reason))
		s.logger.DebugContext(ctx, "candidate filtered",
			"request_id", requestcontext.RequestID(ctx),
			"entry_id", r.EntryID,
			"aggregate_score", r.AggregateScore,
			"reason", r.Reason,
		)
	}
	return kept, removed
}

func (s *Service) reportFailures(ctx context.Context, query domain.NormalizedName, snap *domain.Snapshot, failures []matcher.ScoringFailure) {
	if len(failures) == 0 {
		return
	}
	s.metrics.AddScoringFailures(len(failures))
	for _, f := range failures {
		s.logger.ErrorContext(ctx, "candidate scoring failed",
			"request_id", requestcontext.RequestID(ctx),
			"snapshot_version", snap.Version(),
			"entry_id", f.EntryID,
			"error", f.Err,
		)
		s.emitOps(ctx, audit.Event{
			Action:               string(audit.EventCandidateScoringFailed),
			RequestID:            requestcontext.RequestID(ctx),
			Query:                query.Value(),
			NormalizationVersion: query.Version(),
			SnapshotVersion:      snap.Version(),
			EntryIDs:             []string{f.EntryID},
			Reason:               f.Err.Error(),
		})
	}
}

type decisionPayload struct {
	Decision json.RawMessage  `json:"decision"`
	Route    decision.Route   `json:"route"`
	Filtered []filter.Removed `json:"filtered,omitempty"`
}

func (s *Service) auditDecision(ctx context.Context, d domain.Decision, risk domain.RiskLevel, route decision.Route, removed []filter.Removed, elapsed time.Duration) error {
	if s.auditor == nil {
		return nil
	}

	body, err := json.Marshal(d)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode decision")
	}
	payload, err := json.Marshal(decisionPayload{Decision: body, Route: route, Filtered: removed})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode decision payload")
	}

	err = s.auditor.Emit(ctx, audit.Event{
		Action:               string(audit.EventDecisionMade),
		Timestamp:            d.Timestamp,
		RequestID:            requestcontext.RequestID(ctx),
		Query:                d.Query,
		NormalizationVersion: d.NormalizationVersion,
		SnapshotVersion:      d.SnapshotVersion,
		Decision:             string(d.Action),
		RuleFired:            d.RuleFired,
		RiskLevel:            string(risk),
		Route:                route.Queue,
		EntryIDs:             d.EntryIDs(),
		Reason:               d.Rationale,
		DurationMS:           float64(elapsed.Microseconds()) / 1000,
		Payload:              payload,
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeAuditUnavailable) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeAuditUnavailable, "decision audit failed")
	}
	return nil
}

// emitOps sends an operational event. Failures are logged, never returned.
func (s *Service) emitOps(ctx context.Context, event audit.Event) {
	sink := s.opsAuditor
	if sink == nil {
		if s.auditor == nil {
			return
		}
		sink = s.auditor
	}
	err := sink.Emit(ctx, event)
	if err == nil || errors.Is(err, ops.ErrSampledOut) {
		return
	}
	s.logger.ErrorContext(ctx, "ops audit emit failed",
		"action", event.Action,
		"request_id", event.RequestID,
		"error", err,
	)
}

func (s *Service) currentSnapshot() (*domain.Snapshot, error) {
	snap, err := s.snapshots.Current()
	if err != nil {
		if dErrors.IsSnapshotUnavailable(err) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeSnapshotUnavailable, "reference snapshot unavailable")
	}
	if snap == nil {
		return nil, dErrors.New(dErrors.CodeSnapshotUnavailable, "no reference snapshot loaded")
	}
	return snap, nil
}

func (s *Service) timestamp(ctx context.Context) time.Time {
	if t, ok := requestcontext.RequestTime(ctx); ok {
		return t.UTC()
	}
	return s.now().UTC()
}

func (s *Service) fail(ctx context.Context, span trace.Span, err error) error {
	code := dErrors.CodeOf(err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		code = dErrors.CodeTimeout
	}
	s.metrics.IncError(string(code))
	span.RecordError(err)
	span.SetStatus(codes.Error, string(code))
	level := slog.LevelError
	if code == dErrors.CodeInvalidInput {
		level = slog.LevelInfo
	}
	s.logger.Log(ctx, level, "screening failed",
		"request_id", requestcontext.RequestID(ctx),
		"code", code,
		"error", err,
	)
	return err
}

func asInvalidInput(err error) error {
	if dErrors.IsInvalidInput(err) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInvalidInput, "query rejected")
}
