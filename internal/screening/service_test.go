package screening

//go:generate mockgen -source=ports/ports.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"screener/internal/cache"
	"screener/internal/decision"
	"screener/internal/domain"
	"screener/internal/filter"
	"screener/internal/matcher"
	"screener/internal/screening/metrics"
	"screener/internal/screening/mocks"
	dErrors "screener/pkg/domain-errors"
	"screener/pkg/platform/audit"
	"screener/pkg/requestcontext"
)

// =============================================================================
// Screening Service Test Suite
// =============================================================================
// The pipeline stages are mocked so the tests pin down sequencing, error
// propagation and audit emission without depending on scoring arithmetic.

type ServiceSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	normalizer *mocks.MockNormalizer
	snapshots  *mocks.MockSnapshotProvider
	matcher    *mocks.MockMatcher
	engine     *mocks.MockEngine
	auditor    *mocks.MockAuditor
	opsAuditor *mocks.MockOpsAuditor
	cache      *mocks.MockCandidateCache
	metrics    *metrics.Metrics
	service    *Service

	query domain.NormalizedName
	snap  *domain.Snapshot
	at    time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.normalizer = mocks.NewMockNormalizer(s.ctrl)
	s.snapshots = mocks.NewMockSnapshotProvider(s.ctrl)
	s.matcher = mocks.NewMockMatcher(s.ctrl)
	s.engine = mocks.NewMockEngine(s.ctrl)
	s.auditor = mocks.NewMockAuditor(s.ctrl)
	s.opsAuditor = mocks.NewMockOpsAuditor(s.ctrl)
	s.cache = mocks.NewMockCandidateCache(s.ctrl)
	s.metrics = metrics.NewWith(prometheus.NewRegistry())

	s.query = domain.NewNormalizedName("John Smith", "john smith", domain.ScriptLatin, "v1")
	s.snap = domain.NewSnapshot(3, nil, time.Unix(0, 0))
	s.at = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	s.matcher.EXPECT().Floor().Return(0.5).AnyTimes()
	s.matcher.EXPECT().Fingerprint().Return("fp").AnyTimes()
	s.engine.EXPECT().Thresholds().Return(decision.DefaultThresholds()).AnyTimes()

	svc, err := New(s.normalizer, s.snapshots, s.matcher, s.engine,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithAuditor(s.auditor),
		WithOpsAuditor(s.opsAuditor),
		WithClock(func() time.Time { return s.at }),
	)
	s.Require().NoError(err)
	s.service = svc
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) clearDecision(in decision.Input) (domain.Decision, error) {
	return domain.Decision{
		Query:                in.Query,
		NormalizationVersion: in.NormalizationVersion,
		SnapshotVersion:      in.SnapshotVersion,
		Action:               domain.ActionClear,
		MatchedCandidates:    in.Candidates,
		RuleFired:            decision.RuleNoMatchClear,
		Rationale:            "no candidates above the similarity floor",
		Timestamp:            in.Timestamp,
	}, nil
}

func (s *ServiceSuite) expectPipeline() {
	s.normalizer.EXPECT().Normalize("John Smith").Return(s.query, nil)
	s.snapshots.EXPECT().Current().Return(s.snap, nil)
}

// =============================================================================
// Constructor
// =============================================================================

func (s *ServiceSuite) TestNew() {
	s.Run("nil collaborators are configuration errors", func() {
		cases := []struct {
			name string
			fn   func() (*Service, error)
		}{
			{"normalizer", func() (*Service, error) { return New(nil, s.snapshots, s.matcher, s.engine) }},
			{"snapshots", func() (*Service, error) { return New(s.normalizer, nil, s.matcher, s.engine) }},
			{"matcher", func() (*Service, error) { return New(s.normalizer, s.snapshots, nil, s.engine) }},
			{"engine", func() (*Service, error) { return New(s.normalizer, s.snapshots, s.matcher, nil) }},
		}
		for _, tc := range cases {
			svc, err := tc.fn()
			s.Nil(svc, tc.name)
			s.True(dErrors.IsConfiguration(err), tc.name)
		}
	})

	s.Run("options are applied", func() {
		svc, err := New(s.normalizer, s.snapshots, s.matcher, s.engine, WithBatchConcurrency(3), WithCandidateCache(s.cache))
		s.Require().NoError(err)
		s.Equal(3, svc.batchConcurrency)
		s.Equal(s.cache, svc.cache)
	})
}

// =============================================================================
// Screen
// =============================================================================

func (s *ServiceSuite) TestScreen_EchoesInputAndAudits() {
	s.expectPipeline()
	s.matcher.EXPECT().Match(gomock.Any(), s.query, s.snap).Return(&matcher.Result{Scanned: 0}, nil)
	s.engine.EXPECT().Decide(gomock.Any()).DoAndReturn(func(in decision.Input) (domain.Decision, error) {
		s.Equal("John Smith", in.Query)
		s.Equal("v1", in.NormalizationVersion)
		s.Equal(uint64(3), in.SnapshotVersion)
		s.Equal(s.at, in.Timestamp)
		return s.clearDecision(in)
	})
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
		s.Equal(string(audit.EventDecisionMade), e.Action)
		s.Equal("CLEAR", e.Decision)
		s.Equal(decision.RuleNoMatchClear, e.RuleFired)
		s.Equal("req-7", e.RequestID)
		s.Equal("auto_processed", e.Route)
		s.Equal(string(domain.RiskNone), e.RiskLevel)
		s.Contains(string(e.Payload), `"rule_fired":"no-match-clear"`)
		return nil
	})

	ctx := requestcontext.WithRequestID(context.Background(), "req-7")
	d, err := s.service.Screen(ctx, "John Smith")
	s.Require().NoError(err)
	s.Equal(domain.ActionClear, d.Action)
	s.Equal(uint64(3), d.SnapshotVersion)
	s.Equal(1, testutil.CollectAndCount(s.metrics.ScreenDuration))
}

func (s *ServiceSuite) TestScreen_PinnedRequestTime() {
	pinned := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	s.expectPipeline()
	s.matcher.EXPECT().Match(gomock.Any(), gomock.Any(), gomock.Any()).Return(&matcher.Result{}, nil)
	s.engine.EXPECT().Decide(gomock.Any()).DoAndReturn(func(in decision.Input) (domain.Decision, error) {
		s.Equal(pinned, in.Timestamp)
		return s.clearDecision(in)
	})
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

	_, err := s.service.Screen(requestcontext.WithTime(context.Background(), pinned), "John Smith")
	s.NoError(err)
}

func (s *ServiceSuite) TestScreen_InvalidInput() {
	s.normalizer.EXPECT().Normalize("  ").Return(domain.NormalizedName{}, errors.New("blank"))

	d, err := s.service.Screen(context.Background(), "  ")
	s.Nil(d)
	s.True(dErrors.IsInvalidInput(err))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Errors.WithLabelValues(string(dErrors.CodeInvalidInput))))
}

func (s *ServiceSuite) TestScreen_SnapshotUnavailable() {
	s.normalizer.EXPECT().Normalize("John Smith").Return(s.query, nil)
	s.snapshots.EXPECT().Current().Return(nil, dErrors.New(dErrors.CodeSnapshotUnavailable, "empty"))

	_, err := s.service.Screen(context.Background(), "John Smith")
	s.True(dErrors.IsSnapshotUnavailable(err))
}

func (s *ServiceSuite) TestScreen_EngineErrorPropagates() {
	s.expectPipeline()
	s.matcher.EXPECT().Match(gomock.Any(), gomock.Any(), gomock.Any()).Return(&matcher.Result{}, nil)
	s.engine.EXPECT().Decide(gomock.Any()).Return(domain.Decision{}, dErrors.New(dErrors.CodeConfiguration, "not initialized"))

	d, err := s.service.Screen(context.Background(), "John Smith")
	s.Nil(d)
	s.True(dErrors.IsConfiguration(err))
}

func (s *ServiceSuite) TestScreen_AuditFailureFailsRequest() {
	s.expectPipeline()
	s.matcher.EXPECT().Match(gomock.Any(), gomock.Any(), gomock.Any()).Return(&matcher.Result{}, nil)
	s.engine.EXPECT().Decide(gomock.Any()).DoAndReturn(s.clearDecision)
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	d, err := s.service.Screen(context.Background(), "John Smith")
	s.Nil(d)
	s.True(dErrors.HasCode(err, dErrors.CodeAuditUnavailable))
	s.ErrorContains(err, "disk full")
}

func (s *ServiceSuite) TestScreen_ScoringFailuresAreReported() {
	s.expectPipeline()
	s.matcher.EXPECT().Match(gomock.Any(), gomock.Any(), gomock.Any()).Return(&matcher.Result{
		Failures: []matcher.ScoringFailure{
			{EntryID: "eu-9", Err: dErrors.New(dErrors.CodeScoringFailed, "panic")},
			{EntryID: "un-4", Err: dErrors.New(dErrors.CodeScoringFailed, "panic")},
		},
	}, nil)
	s.engine.EXPECT().Decide(gomock.Any()).DoAndReturn(s.clearDecision)

	var reported []string
	s.opsAuditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
		s.Equal(string(audit.EventCandidateScoringFailed), e.Action)
		reported = append(reported, e.EntryIDs...)
		return errors.New("sink down")
	}).Times(2)
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

	d, err := s.service.Screen(context.Background(), "John Smith")
	s.Require().NoError(err, "ops sink failures never fail a screening")
	s.Equal(domain.ActionClear, d.Action)
	s.Equal([]string{"eu-9", "un-4"}, reported)
	s.Equal(2.0, testutil.ToFloat64(s.metrics.ScoringFailures))
}

// =============================================================================
// Candidate cache
// =============================================================================

func (s *ServiceSuite) TestScreen_FilterRunsBeforeTheLadder() {
	filterMock := mocks.NewMockCandidateFilter(s.ctrl)
	svc, err := New(s.normalizer, s.snapshots, s.matcher, s.engine,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithAuditor(s.auditor),
		WithCandidateFilter(filterMock),
	)
	s.Require().NoError(err)

	strong := domain.Candidate{EntryID: "strong", AggregateScore: 0.9}
	weak := domain.Candidate{EntryID: "weak", MatchedAlias: "jon", AggregateScore: 0.6}
	s.expectPipeline()
	s.matcher.EXPECT().Match(gomock.Any(), s.query, s.snap).
		Return(&matcher.Result{Candidates: []domain.Candidate{strong, weak}}, nil)
	filterMock.EXPECT().Apply(s.query, []domain.Candidate{strong, weak}).Return(
		[]domain.Candidate{strong},
		[]filter.Removed{{EntryID: "weak", MatchedAlias: "jon", AggregateScore: 0.6, Reason: filter.ReasonShortName}},
	)
	s.engine.EXPECT().Decide(gomock.Any()).DoAndReturn(func(in decision.Input) (domain.Decision, error) {
		s.Equal([]domain.Candidate{strong}, in.Candidates)
		return s.clearDecision(in)
	})
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
		s.Equal([]string{"strong"}, e.EntryIDs)
		s.Contains(string(e.Payload), `"filtered":[{"entry_id":"weak","matched_alias":"jon","aggregate_score":0.6,"reason":"short_name"}]`)
		return nil
	})

	d, err := svc.Screen(context.Background(), "John Smith")
	s.Require().NoError(err)
	s.Equal([]string{"strong"}, d.EntryIDs())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Filtered.WithLabelValues("short_name")))
}

func (s *ServiceSuite) TestScreen_CacheHitSkipsMatching() {
	s.service.cache = s.cache
	cached := []domain.Candidate{{EntryID: "ofac-1", AggregateScore: 0.6}}
	key := cache.Key(3, "fp", "v1", "john smith")

	s.expectPipeline()
	s.cache.EXPECT().Get(gomock.Any(), key).Return(cached, true, nil)
	s.engine.EXPECT().Decide(gomock.Any()).DoAndReturn(func(in decision.Input) (domain.Decision, error) {
		s.Equal(cached, in.Candidates)
		return s.clearDecision(in)
	})
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

	_, err := s.service.Screen(context.Background(), "John Smith")
	s.NoError(err)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CacheLookups.WithLabelValues("hit")))
}

func (s *ServiceSuite) TestScreen_CacheMissStoresCleanResults() {
	s.service.cache = s.cache
	res := &matcher.Result{Candidates: []domain.Candidate{{EntryID: "ofac-1", AggregateScore: 0.6}}}

	s.expectPipeline()
	s.cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, false, errors.New("redis down"))
	s.matcher.EXPECT().Match(gomock.Any(), gomock.Any(), gomock.Any()).Return(res, nil)
	s.cache.EXPECT().Put(gomock.Any(), cache.Key(3, "fp", "v1", "john smith"), res.Candidates).Return(nil)
	s.engine.EXPECT().Decide(gomock.Any()).DoAndReturn(s.clearDecision)
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

	_, err := s.service.Screen(context.Background(), "John Smith")
	s.NoError(err)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.CacheLookups.WithLabelValues("error")))
}

func (s *ServiceSuite) TestScreen_ResultsWithFailuresAreNotCached() {
	s.service.cache = s.cache

	s.expectPipeline()
	s.cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, false, nil)
	s.matcher.EXPECT().Match(gomock.Any(), gomock.Any(), gomock.Any()).Return(&matcher.Result{
		Failures: []matcher.ScoringFailure{{EntryID: "eu-9", Err: errors.New("boom")}},
	}, nil)
	s.opsAuditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)
	s.engine.EXPECT().Decide(gomock.Any()).DoAndReturn(s.clearDecision)
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

	_, err := s.service.Screen(context.Background(), "John Smith")
	s.NoError(err)
}

// =============================================================================
// Batch
// =============================================================================

func (s *ServiceSuite) TestScreenBatch_SnapshotTakenOnce() {
	s.snapshots.EXPECT().Current().Return(s.snap, nil).Times(1)
	s.normalizer.EXPECT().Normalize(gomock.Any()).DoAndReturn(func(raw string) (domain.NormalizedName, error) {
		if raw == "" {
			return domain.NormalizedName{}, dErrors.New(dErrors.CodeInvalidInput, "empty")
		}
		return domain.NewNormalizedName(raw, raw, domain.ScriptLatin, "v1"), nil
	}).Times(3)
	s.matcher.EXPECT().Match(gomock.Any(), gomock.Any(), s.snap).Return(&matcher.Result{}, nil).Times(2)
	s.engine.EXPECT().Decide(gomock.Any()).DoAndReturn(s.clearDecision).Times(2)
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	s.opsAuditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
		s.Equal(string(audit.EventBatchScreened), e.Action)
		s.JSONEq(`{"total":3,"blocked":0,"escalated":0,"cleared":2,"rejected":1}`, string(e.Payload))
		return nil
	})

	results, err := s.service.ScreenBatch(context.Background(), []string{"anna", "", "boris"})
	s.Require().NoError(err)
	s.Require().Len(results, 3)
	s.Equal("anna", results[0].Decision.Query)
	s.True(dErrors.IsInvalidInput(results[1].Err))
	s.Equal("boris", results[2].Decision.Query)
}

func (s *ServiceSuite) TestScreenBatch_AuditFailureHaltsBatch() {
	s.snapshots.EXPECT().Current().Return(s.snap, nil)
	s.normalizer.EXPECT().Normalize(gomock.Any()).Return(s.query, nil).AnyTimes()
	s.matcher.EXPECT().Match(gomock.Any(), gomock.Any(), gomock.Any()).Return(&matcher.Result{}, nil).AnyTimes()
	s.engine.EXPECT().Decide(gomock.Any()).DoAndReturn(s.clearDecision).AnyTimes()
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("unavailable")).AnyTimes()

	results, err := s.service.ScreenBatch(context.Background(), []string{"a b", "c d"})
	s.Nil(results)
	s.True(dErrors.HasCode(err, dErrors.CodeAuditUnavailable))
}

func (s *ServiceSuite) TestScreenBatch_NoSnapshot() {
	s.snapshots.EXPECT().Current().Return(nil, dErrors.New(dErrors.CodeSnapshotUnavailable, "empty"))

	_, err := s.service.ScreenBatch(context.Background(), []string{"anna"})
	s.True(dErrors.IsSnapshotUnavailable(err))
}

func TestSummarize(t *testing.T) {
	sum := Summarize([]BatchResult{
		{Decision: &domain.Decision{Action: domain.ActionBlock}},
		{Decision: &domain.Decision{Action: domain.ActionEscalate}},
		{Decision: &domain.Decision{Action: domain.ActionClear}},
		{Err: errors.New("x")},
	})
	if sum != (BatchSummary{Total: 4, Blocked: 1, Escalate: 1, Cleared: 1, Rejected: 1}) {
		t.Fatalf("unexpected summary %+v", sum)
	}
}
