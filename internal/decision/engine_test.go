package decision

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screener/internal/decision/metrics"
	"screener/internal/domain"
	dErrors "screener/pkg/domain-errors"
)

func candidate(id string, score float64) domain.Candidate {
	return domain.Candidate{
		EntryID:        id,
		Source:         domain.SourceOFAC,
		MatchedAlias:   id + " alias",
		AggregateScore: score,
		Scores: []domain.SimilarityScore{
			{Algorithm: domain.AlgorithmEditDistance, Value: score},
			{Algorithm: domain.AlgorithmTokenSet, Value: score},
			{Algorithm: domain.AlgorithmPhonetic, Value: score},
		},
	}
}

func newEngine(t *testing.T, th Thresholds) *Engine {
	t.Helper()
	e, err := NewEngine(th)
	require.NoError(t, err)
	return e
}

func TestDecide_Ladder(t *testing.T) {
	e := newEngine(t, DefaultThresholds())
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		candidates []domain.Candidate
		action     domain.Action
		rule       string
		mentions   []string
	}{
		{"no candidates clears", nil, domain.ActionClear, RuleNoMatchClear, []string{"no candidates"}},
		{"weak candidates clear", []domain.Candidate{candidate("a", 0.55)}, domain.ActionClear, RuleNoMatchClear, []string{"0.5500"}},
		{"block threshold is inclusive", []domain.Candidate{candidate("a", 0.85)}, domain.ActionBlock, RuleTopScoreBlock, []string{"a (OFAC)"}},
		{"single strong candidate escalates", []domain.Candidate{candidate("a", 0.75), candidate("b", 0.5)}, domain.ActionEscalate, RuleTopScoreEscalate, []string{"a (OFAC)"}},
		{"escalate threshold is inclusive", []domain.Candidate{candidate("a", 0.70)}, domain.ActionEscalate, RuleTopScoreEscalate, nil},
		{
			"cluster of near-threshold candidates escalates",
			[]domain.Candidate{candidate("a", 0.68), candidate("b", 0.66)},
			domain.ActionEscalate, RuleClusterEscalate,
			[]string{"a (OFAC)", "b (OFAC)"},
		},
		{
			"cluster rationale lists every member",
			[]domain.Candidate{candidate("b", 0.80), candidate("a", 0.78), candidate("c", 0.40)},
			domain.ActionEscalate, RuleClusterEscalate,
			[]string{"a (OFAC)", "b (OFAC)"},
		},
		{"block wins over cluster", []domain.Candidate{candidate("a", 0.9), candidate("b", 0.8)}, domain.ActionBlock, RuleTopScoreBlock, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := e.Decide(Input{
				Query:                "query",
				NormalizationVersion: "v1",
				SnapshotVersion:      4,
				Candidates:           tt.candidates,
				Timestamp:            ts,
			})
			require.NoError(t, err)
			require.NoError(t, d.Validate())
			assert.Equal(t, tt.action, d.Action)
			assert.Equal(t, tt.rule, d.RuleFired)
			assert.Equal(t, uint64(4), d.SnapshotVersion)
			assert.Equal(t, ts, d.Timestamp)
			for _, m := range tt.mentions {
				assert.Contains(t, d.Rationale, m)
			}
		})
	}
}

func TestDecide_SortsCandidatesWithoutMutatingInput(t *testing.T) {
	e := newEngine(t, DefaultThresholds())
	in := []domain.Candidate{candidate("low", 0.6), candidate("high", 0.9)}

	d, err := e.Decide(Input{Candidates: in})
	require.NoError(t, err)
	assert.Equal(t, []string{"high", "low"}, d.EntryIDs())
	assert.Equal(t, "low", in[0].EntryID)
	assert.Equal(t, RuleTopScoreBlock, d.RuleFired)
}

func TestDecide_Total(t *testing.T) {
	e := newEngine(t, DefaultThresholds())
	rng := rand.New(rand.NewPCG(1, 2))

	for i := range 500 {
		n := rng.IntN(6)
		cands := make([]domain.Candidate, n)
		for j := range cands {
			cands[j] = candidate(fmt.Sprintf("e%d", j), rng.Float64())
		}
		d, err := e.Decide(Input{Candidates: cands})
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, d.Validate())
		assert.Contains(t, e.RuleIDs(), d.RuleFired)
	}
}

func TestDecide_MonotonicInBlockThreshold(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	blocks := []float64{0.99, 0.95, 0.9, 0.85, 0.8, 0.75, 0.71}

	for range 200 {
		cands := []domain.Candidate{candidate("a", rng.Float64()), candidate("b", rng.Float64())}
		blocked := false
		for _, b := range blocks {
			th := DefaultThresholds()
			th.Block = b
			d, err := newEngine(t, th).Decide(Input{Candidates: cands})
			require.NoError(t, err)
			if blocked {
				assert.Equal(t, domain.ActionBlock, d.Action, "lowering block to %v lost a BLOCK", b)
			}
			blocked = d.Action == domain.ActionBlock
		}
	}
}

func TestNewEngine_RejectsInconsistentThresholds(t *testing.T) {
	for label, th := range map[string]Thresholds{
		"block below escalate":  {Block: 0.6, Escalate: 0.7, ClusterMargin: 0.05, ClusterSize: 2},
		"block equals escalate": {Block: 0.7, Escalate: 0.7, ClusterMargin: 0.05, ClusterSize: 2},
		"block above one":       {Block: 1.2, Escalate: 0.7, ClusterMargin: 0.05, ClusterSize: 2},
		"escalate zero":         {Block: 0.8, Escalate: 0, ClusterMargin: 0, ClusterSize: 2},
		"negative margin":       {Block: 0.85, Escalate: 0.7, ClusterMargin: -0.1, ClusterSize: 2},
		"margin too wide":       {Block: 0.85, Escalate: 0.7, ClusterMargin: 0.7, ClusterSize: 2},
		"cluster of one":        {Block: 0.85, Escalate: 0.7, ClusterMargin: 0.05, ClusterSize: 1},
	} {
		t.Run(label, func(t *testing.T) {
			e, err := NewEngine(th)
			require.Error(t, err)
			assert.Nil(t, e)
			assert.True(t, dErrors.IsConfiguration(err))
		})
	}
}

func TestThresholds_ValidateReportsFirstNonFiniteField(t *testing.T) {
	th := Thresholds{Block: math.NaN(), Escalate: math.Inf(1), ClusterMargin: math.NaN(), ClusterSize: 2}
	for range 20 {
		assert.ErrorContains(t, th.Validate(), "threshold block")
	}
}

func TestDecide_NilEngine(t *testing.T) {
	var e *Engine
	_, err := e.Decide(Input{})
	assert.True(t, dErrors.IsConfiguration(err))
}

func TestDecide_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWith(reg)
	e, err := NewEngine(DefaultThresholds(), WithMetrics(m))
	require.NoError(t, err)

	_, err = e.Decide(Input{Candidates: []domain.Candidate{candidate("a", 0.95)}})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("BLOCK", RuleTopScoreBlock)))
}

func TestRiskLevelFor(t *testing.T) {
	th := DefaultThresholds()
	assert.Equal(t, domain.RiskHigh, RiskLevelFor(0.85, th, 0.5))
	assert.Equal(t, domain.RiskMedium, RiskLevelFor(0.7, th, 0.5))
	assert.Equal(t, domain.RiskLow, RiskLevelFor(0.5, th, 0.5))
	assert.Equal(t, domain.RiskNone, RiskLevelFor(0.3, th, 0.5))
	assert.Equal(t, domain.RiskNone, RiskLevelFor(0, th, 0))
}

func TestRouting(t *testing.T) {
	block := domain.Decision{Action: domain.ActionBlock, MatchedCandidates: []domain.Candidate{{EntryID: "a", Exact: true}}}
	p := PriorityFor(block, domain.RiskHigh)
	assert.Equal(t, PriorityCritical, p)

	r := Routing(domain.ActionBlock, p)
	assert.Equal(t, "immediate_action", r.Queue)
	assert.Equal(t, 0, r.SLAHours)
	assert.True(t, r.RequiresApproval)

	r = Routing(domain.ActionEscalate, PriorityFor(domain.Decision{Action: domain.ActionEscalate}, domain.RiskMedium))
	assert.Equal(t, "senior_analyst", r.Queue)
	assert.Equal(t, 12, r.SLAHours)
	assert.Equal(t, "compliance_manager", r.EscalationPath)

	r = Routing(domain.ActionClear, PriorityLow)
	assert.Equal(t, "auto_processed", r.Queue)
	assert.False(t, r.RequiresApproval)
	assert.Zero(t, r.SLAHours)
}

func TestPriorityFor_RaisesForPriorityLists(t *testing.T) {
	top := func(src domain.SourceList) domain.Decision {
		return domain.Decision{
			Action:            domain.ActionEscalate,
			MatchedCandidates: []domain.Candidate{{EntryID: "x", Source: src}},
		}
	}
	cases := []struct {
		src  domain.SourceList
		risk domain.RiskLevel
		want Priority
	}{
		{domain.SourceOFAC, domain.RiskMedium, PriorityHigh},
		{domain.SourceUN, domain.RiskHigh, PriorityCritical},
		{domain.SourceHMT, domain.RiskMedium, PriorityMedium},
		{domain.SourceEU, domain.RiskLow, PriorityLow},
		{"LOCAL", domain.RiskHigh, PriorityHigh},
	}
	for _, tc := range cases {
		t.Run(string(tc.src), func(t *testing.T) {
			assert.Equal(t, tc.want, PriorityFor(top(tc.src), tc.risk))
		})
	}

	clear := top(domain.SourceOFAC)
	clear.Action = domain.ActionClear
	assert.Equal(t, PriorityLow, PriorityFor(clear, domain.RiskLow), "cleared decisions are never raised")
}
