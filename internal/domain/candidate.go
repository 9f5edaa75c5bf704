package domain

// Algorithm names one similarity measure.
type Algorithm string

const (
	AlgorithmEditDistance Algorithm = "edit_distance"
	AlgorithmTokenSet     Algorithm = "token_set"
	AlgorithmPhonetic     Algorithm = "phonetic"
)

// Algorithms returns the fixed set of measures in canonical order.
func Algorithms() []Algorithm {
	return []Algorithm{AlgorithmEditDistance, AlgorithmTokenSet, AlgorithmPhonetic}
}

// SimilarityScore is one measure's value in [0, 1].
type SimilarityScore struct {
	Algorithm Algorithm `json:"algorithm"`
	Value     float64   `json:"value"`
}

// Candidate pairs the query with one reference entry. Candidates live only for
// the duration of a single screening call (or a cache entry keyed by snapshot).
type Candidate struct {
	EntryID        string            `json:"entry_id"`
	Source         SourceList        `json:"source"`
	MatchedAlias   string            `json:"matched_alias"`
	AggregateScore float64           `json:"aggregate_score"`
	Scores         []SimilarityScore `json:"scores"`
	Exact          bool              `json:"exact"`
}

// Score returns the value of one measure, or 0 when absent.
func (c Candidate) Score(alg Algorithm) float64 {
	for _, s := range c.Scores {
		if s.Algorithm == alg {
			return s.Value
		}
	}
	return 0
}

// TopScore returns the aggregate score of the first candidate, or 0.
func TopScore(candidates []Candidate) float64 {
	if len(candidates) == 0 {
		return 0
	}
	return candidates[0].AggregateScore
}
