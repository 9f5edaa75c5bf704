// Package ports defines the collaborators the screening service depends on.
// The concrete pipeline stages live in normalize, matcher, decision and
// snapshot; adapters for audit and caching live in pkg/platform/audit and
// internal/cache.
package ports

import (
	"context"

	"screener/internal/decision"
	"screener/internal/domain"
	"screener/internal/filter"
	"screener/internal/matcher"
	"screener/pkg/platform/audit"
)

// Normalizer canonicalizes a raw name.
type Normalizer interface {
	Normalize(raw string) (domain.NormalizedName, error)
	Version() string
}

// SnapshotProvider hands out the current reference snapshot.
type SnapshotProvider interface {
	Current() (*domain.Snapshot, error)
}

// Matcher ranks a snapshot against a query.
type Matcher interface {
	Match(ctx context.Context, query domain.NormalizedName, snap *domain.Snapshot) (*matcher.Result, error)
	// Fingerprint identifies the options that affect a match result.
	Fingerprint() string
	Floor() float64
}

// CandidateFilter removes weak candidates before the decision ladder runs.
type CandidateFilter interface {
	Apply(query domain.NormalizedName, cands []domain.Candidate) ([]domain.Candidate, []filter.Removed)
}

// Engine turns ranked candidates into a decision.
type Engine interface {
	Decide(in decision.Input) (domain.Decision, error)
	Thresholds() decision.Thresholds
}

// Auditor receives compliance events. An error means the event was not
// persisted and the screening must fail.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

// OpsAuditor receives operational diagnostics. Errors are logged only.
type OpsAuditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

// CandidateCache stores ranked candidate lists by cache.Key.
type CandidateCache interface {
	Get(ctx context.Context, key string) ([]domain.Candidate, bool, error)
	Put(ctx context.Context, key string, candidates []domain.Candidate) error
}
