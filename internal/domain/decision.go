package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Action is the risk action a screening decision carries.
type Action string

const (
	ActionBlock    Action = "BLOCK"
	ActionEscalate Action = "ESCALATE"
	ActionClear    Action = "CLEAR"
)

func (a Action) Valid() bool {
	switch a {
	case ActionBlock, ActionEscalate, ActionClear:
		return true
	}
	return false
}

// RiskLevel buckets the top score for reporting.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "HIGH"
	RiskMedium RiskLevel = "MEDIUM"
	RiskLow    RiskLevel = "LOW"
	RiskNone   RiskLevel = "NONE"
)

// Decision is the auditable output of one screening. Once returned it is only
// read; candidates are ordered by aggregate score descending.
type Decision struct {
	Query                string
	NormalizationVersion string
	SnapshotVersion      uint64
	Action               Action
	MatchedCandidates    []Candidate
	RuleFired            string
	Rationale            string
	Timestamp            time.Time
}

// Validate enforces that every decision names the rule that produced it.
func (d *Decision) Validate() error {
	if !d.Action.Valid() {
		return fmt.Errorf("decision has unknown action %q", d.Action)
	}
	if d.RuleFired == "" {
		return fmt.Errorf("decision has no rule identifier")
	}
	if d.Rationale == "" {
		return fmt.Errorf("decision has no rationale")
	}
	return nil
}

// EntryIDs returns the matched entry identifiers in ranking order.
func (d *Decision) EntryIDs() []string {
	ids := make([]string, len(d.MatchedCandidates))
	for i, c := range d.MatchedCandidates {
		ids[i] = c.EntryID
	}
	return ids
}

type decisionCandidateJSON struct {
	EntryID            string          `json:"entry_id"`
	AggregateScore     float64         `json:"aggregate_score"`
	PerAlgorithmScores json.RawMessage `json:"per_algorithm_scores"`
}

type decisionJSON struct {
	Query                string                  `json:"query"`
	NormalizationVersion string                  `json:"normalization_version"`
	SnapshotVersion      uint64                  `json:"snapshot_version"`
	Action               Action                  `json:"action"`
	MatchedCandidates    []decisionCandidateJSON `json:"matched_candidates"`
	RuleFired            string                  `json:"rule_fired"`
	Rationale            string                  `json:"rationale"`
	Timestamp            string                  `json:"timestamp"`
}

// MarshalJSON renders the audit wire form. Per-algorithm scores are written as
// an object in canonical algorithm order so the output is byte-stable.
func (d Decision) MarshalJSON() ([]byte, error) {
	out := decisionJSON{
		Query:                d.Query,
		NormalizationVersion: d.NormalizationVersion,
		SnapshotVersion:      d.SnapshotVersion,
		Action:               d.Action,
		MatchedCandidates:    make([]decisionCandidateJSON, 0, len(d.MatchedCandidates)),
		RuleFired:            d.RuleFired,
		Rationale:            d.Rationale,
		Timestamp:            d.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	for _, c := range d.MatchedCandidates {
		scores, err := marshalScores(c.Scores)
		if err != nil {
			return nil, err
		}
		out.MatchedCandidates = append(out.MatchedCandidates, decisionCandidateJSON{
			EntryID:            c.EntryID,
			AggregateScore:     c.AggregateScore,
			PerAlgorithmScores: scores,
		})
	}
	return json.Marshal(out)
}

func marshalScores(scores []SimilarityScore) (json.RawMessage, error) {
	ordered := slices.Clone(scores)
	rank := func(a Algorithm) int {
		return slices.Index(Algorithms(), a)
	}
	slices.SortStableFunc(ordered, func(a, b SimilarityScore) int {
		return rank(a.Algorithm) - rank(b.Algorithm)
	})

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, s := range ordered {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(string(s.Algorithm))
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(s.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
