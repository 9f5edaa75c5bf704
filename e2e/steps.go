// Package e2e runs the screening acceptance features in-process against the
// full pipeline: normalizer, snapshot store, matcher, candidate filter,
// decision engine and audit publishers.
package e2e

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/cucumber/godog"

	"screener/e2e/steps/screening"
	"screener/internal/cache"
	"screener/internal/decision"
	"screener/internal/domain"
	"screener/internal/filter"
	"screener/internal/matcher"
	"screener/internal/normalize"
	screeningsvc "screener/internal/screening"
	"screener/internal/snapshot"
	"screener/pkg/platform/audit"
	"screener/pkg/platform/audit/publishers/compliance"
	"screener/pkg/platform/audit/publishers/ops"
	"screener/pkg/platform/audit/store/memory"
	"screener/pkg/requestcontext"
)

// TestContext owns one scenario's pipeline. The service is built lazily on
// the first screen so thresholds can be set by earlier steps.
type TestContext struct {
	thresholds decision.Thresholds
	normalizer *normalize.Normalizer
	store      *snapshot.Store
	audit      *memory.InMemoryStore
	service    *screeningsvc.Service

	lastDecision *domain.Decision
	lastErr      error
}

func newTestContext() *TestContext {
	return &TestContext{
		thresholds: decision.DefaultThresholds(),
		normalizer: normalize.New(),
		store:      snapshot.NewStore(),
		audit:      memory.NewInMemoryStore(),
	}
}

func (tc *TestContext) SetThresholds(t decision.Thresholds) {
	tc.thresholds = t
}

func (tc *TestContext) InstallSnapshot(doc snapshot.Document) error {
	b, err := snapshot.NewBuilder(tc.normalizer)
	if err != nil {
		return err
	}
	snap, _, err := b.Build(doc)
	if err != nil {
		return err
	}
	return tc.store.Swap(snap)
}

func (tc *TestContext) Screen(ctx context.Context, raw string) error {
	if tc.service == nil {
		if err := tc.build(); err != nil {
			return err
		}
	}
	ctx = requestcontext.WithRequestID(ctx, "e2e")
	tc.lastDecision, tc.lastErr = tc.service.Screen(ctx, raw)
	return nil
}

func (tc *TestContext) build() error {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m, err := matcher.New(matcher.DefaultOptions())
	if err != nil {
		return err
	}
	engine, err := decision.NewEngine(tc.thresholds)
	if err != nil {
		return err
	}
	f, err := filter.New(filter.DefaultOptions())
	if err != nil {
		return err
	}
	tc.service, err = screeningsvc.New(tc.normalizer, tc.store, m, engine,
		screeningsvc.WithLogger(logger),
		screeningsvc.WithAuditor(compliance.New(tc.audit, compliance.WithLogger(logger))),
		screeningsvc.WithOpsAuditor(ops.New(tc.audit, ops.WithLogger(logger))),
		screeningsvc.WithCandidateCache(cache.NewMemoryCache()),
		screeningsvc.WithCandidateFilter(f),
		screeningsvc.WithClock(func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }),
	)
	return err
}

func (tc *TestContext) LastDecision() *domain.Decision { return tc.lastDecision }
func (tc *TestContext) LastError() error               { return tc.lastErr }

func (tc *TestContext) AuditEvents(ctx context.Context) ([]audit.Event, error) {
	return tc.audit.ListAll(ctx)
}

// InitializeScenario runs once per scenario, so each gets a fresh pipeline.
func InitializeScenario(sc *godog.ScenarioContext) {
	RegisterSteps(sc, newTestContext())
}

// RegisterSteps registers all step definitions from modular packages.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	screening.RegisterSteps(ctx, tc)
}
