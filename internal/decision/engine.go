// Package decision maps ranked candidates onto exactly one risk action through
// a fixed, ordered rule ladder. Evaluation is pure: no I/O, no clock, no state
// beyond the thresholds fixed at construction.
package decision

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"screener/internal/decision/metrics"
	"screener/internal/domain"
	"screener/internal/similarity"
	dErrors "screener/pkg/domain-errors"
)

const (
	DefaultBlockThreshold    = 0.85
	DefaultEscalateThreshold = 0.70
	DefaultClusterMargin     = 0.05
	DefaultClusterSize       = 2
)

// Thresholds configure the rule ladder. Block and Escalate are inclusive.
type Thresholds struct {
	Block         float64 `yaml:"block" json:"block"`
	Escalate      float64 `yaml:"escalate" json:"escalate"`
	ClusterMargin float64 `yaml:"cluster_margin" json:"cluster_margin"`
	ClusterSize   int     `yaml:"cluster_size" json:"cluster_size"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Block:         DefaultBlockThreshold,
		Escalate:      DefaultEscalateThreshold,
		ClusterMargin: DefaultClusterMargin,
		ClusterSize:   DefaultClusterSize,
	}
}

// Validate requires 1 >= Block > Escalate > 0, 0 <= ClusterMargin < Escalate
// and ClusterSize >= 2.
func (t Thresholds) Validate() error {
	names := [...]string{"block", "escalate", "cluster_margin"}
	for i, v := range [...]float64{t.Block, t.Escalate, t.ClusterMargin} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return dErrors.Newf(dErrors.CodeConfiguration, "threshold %s must be a finite number", names[i])
		}
	}
	if t.Block > 1 || t.Block <= t.Escalate || t.Escalate <= 0 {
		return dErrors.Newf(dErrors.CodeConfiguration,
			"thresholds must satisfy 1 >= block > escalate > 0, got block=%v escalate=%v", t.Block, t.Escalate)
	}
	if t.ClusterMargin < 0 || t.ClusterMargin >= t.Escalate {
		return dErrors.Newf(dErrors.CodeConfiguration,
			"cluster margin must be in [0, escalate), got %v", t.ClusterMargin)
	}
	if t.ClusterSize < 2 {
		return dErrors.Newf(dErrors.CodeConfiguration, "cluster size must be at least 2, got %d", t.ClusterSize)
	}
	return nil
}

func (t Thresholds) clusterFloor() float64 {
	return t.Escalate - t.ClusterMargin
}

// Input is everything a decision depends on.
type Input struct {
	Query                string
	NormalizationVersion string
	SnapshotVersion      uint64
	Candidates           []domain.Candidate
	Timestamp            time.Time
}

// Engine evaluates the rule ladder. It is immutable after NewEngine and safe
// for concurrent use.
type Engine struct {
	thresholds Thresholds
	rules      []Rule
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine validates t and builds the ladder. No engine exists for invalid
// thresholds.
func NewEngine(t Thresholds, opts ...Option) (*Engine, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{thresholds: t, rules: ladder()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

// RuleIDs lists the ladder in evaluation order.
func (e *Engine) RuleIDs() []string {
	ids := make([]string, len(e.rules))
	for i, r := range e.rules {
		ids[i] = r.ID
	}
	return ids
}

// Decide returns the action of the first applicable rule. The last rule always
// applies, so an initialized engine never fails.
func (e *Engine) Decide(in Input) (domain.Decision, error) {
	if e == nil || len(e.rules) == 0 {
		return domain.Decision{}, dErrors.New(dErrors.CodeConfiguration, "decision engine is not initialized")
	}

	in.Candidates = slices.Clone(in.Candidates)
	slices.SortFunc(in.Candidates, similarity.Compare)

	for _, rule := range e.rules {
		if !rule.Applies(e.thresholds, in) {
			continue
		}
		d := domain.Decision{
			Query:                in.Query,
			NormalizationVersion: in.NormalizationVersion,
			SnapshotVersion:      in.SnapshotVersion,
			Action:               rule.Action,
			MatchedCandidates:    in.Candidates,
			RuleFired:            rule.ID,
			Rationale:            rule.Explain(e.thresholds, in),
			Timestamp:            in.Timestamp,
		}
		e.metrics.IncrementOutcome(string(d.Action), d.RuleFired)
		e.metrics.ObserveTopScore(domain.TopScore(in.Candidates))
		return d, nil
	}

	// unreachable while the ladder ends with an unconditional rule
	if e.logger != nil {
		e.logger.Error("decision ladder exhausted", "rules", e.RuleIDs())
	}
	return domain.Decision{}, dErrors.New(dErrors.CodeInternal, fmt.Sprintf("no rule applied to query %q", in.Query))
}

// RiskLevelFor buckets a top score against the thresholds and the candidate
// floor.
func RiskLevelFor(score float64, t Thresholds, floor float64) domain.RiskLevel {
	switch {
	case score >= t.Block:
		return domain.RiskHigh
	case score >= t.Escalate:
		return domain.RiskMedium
	case score >= floor && score > 0:
		return domain.RiskLow
	default:
		return domain.RiskNone
	}
}
