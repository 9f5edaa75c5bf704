package decision

import (
	"fmt"
	"strings"

	"screener/internal/domain"
)

const (
	RuleTopScoreBlock    = "top-score-block"
	RuleClusterEscalate  = "candidate-cluster-escalate"
	RuleTopScoreEscalate = "top-score-escalate"
	RuleNoMatchClear     = "no-match-clear"
)

// Rule is one rung of the ladder. Applies and Explain receive candidates
// already sorted by similarity.Compare.
type Rule struct {
	ID      string
	Action  domain.Action
	applies func(Thresholds, Input) bool
	explain func(Thresholds, Input) string
}

func (r Rule) Applies(t Thresholds, in Input) bool { return r.applies(t, in) }
func (r Rule) Explain(t Thresholds, in Input) string { return r.explain(t, in) }

// ladder is ordered by severity; first match wins.
//  1. top score at or above the block threshold
//  2. several strong candidates close to the escalate threshold
//  3. top score at or above the escalate threshold
//  4. everything else clears
func ladder() []Rule {
	return []Rule{
		{
			ID:     RuleTopScoreBlock,
			Action: domain.ActionBlock,
			applies: func(t Thresholds, in Input) bool {
				return domain.TopScore(in.Candidates) >= t.Block
			},
			explain: func(t Thresholds, in Input) string {
				return fmt.Sprintf("top candidate %s scored %.4f, at or above block threshold %.4f",
					describe(in.Candidates[0]), in.Candidates[0].AggregateScore, t.Block)
			},
		},
		{
			ID:     RuleClusterEscalate,
			Action: domain.ActionEscalate,
			applies: func(t Thresholds, in Input) bool {
				return len(cluster(t, in.Candidates)) >= t.ClusterSize
			},
			explain: func(t Thresholds, in Input) string {
				members := cluster(t, in.Candidates)
				return fmt.Sprintf("%d candidates scored at or above %.4f (escalate %.4f minus margin %.4f): %s",
					len(members), t.clusterFloor(), t.Escalate, t.ClusterMargin, describeAll(members))
			},
		},
		{
			ID:     RuleTopScoreEscalate,
			Action: domain.ActionEscalate,
			applies: func(t Thresholds, in Input) bool {
				return domain.TopScore(in.Candidates) >= t.Escalate
			},
			explain: func(t Thresholds, in Input) string {
				msg := fmt.Sprintf("top candidate %s scored %.4f, at or above escalate threshold %.4f and below block %.4f",
					describe(in.Candidates[0]), in.Candidates[0].AggregateScore, t.Escalate, t.Block)
				if band := cluster(t, in.Candidates); len(band) > 1 {
					msg += "; nearby: " + describeAll(band[1:])
				}
				return msg
			},
		},
		{
			ID:      RuleNoMatchClear,
			Action:  domain.ActionClear,
			applies: func(Thresholds, Input) bool { return true },
			explain: func(t Thresholds, in Input) string {
				if len(in.Candidates) == 0 {
					return "no candidates above the similarity floor"
				}
				return fmt.Sprintf("%d candidates, highest score %.4f below escalate threshold %.4f",
					len(in.Candidates), in.Candidates[0].AggregateScore, t.Escalate)
			},
		},
	}
}

func cluster(t Thresholds, cands []domain.Candidate) []domain.Candidate {
	floor := t.clusterFloor()
	for i, c := range cands {
		if c.AggregateScore < floor {
			return cands[:i]
		}
	}
	return cands
}

func describe(c domain.Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s) alias %q aggregate %.4f [", c.EntryID, c.Source, c.MatchedAlias, c.AggregateScore)
	for i, s := range c.Scores {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%.4f", s.Algorithm, s.Value)
	}
	b.WriteByte(']')
	return b.String()
}

func describeAll(cands []domain.Candidate) string {
	parts := make([]string, len(cands))
	for i, c := range cands {
		parts[i] = describe(c)
	}
	return strings.Join(parts, "; ")
}
