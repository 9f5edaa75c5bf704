package similarity

import (
	"cmp"
	"errors"
	"math"

	"screener/internal/domain"
	dErrors "screener/pkg/domain-errors"
	pstrings "screener/pkg/platform/strings"
)

var (
	// ErrVersionMismatch reports names normalized under different versions.
	ErrVersionMismatch = errors.New("normalization versions differ")
	// ErrInvalidScore reports a measure outside [0, 1] or not finite.
	ErrInvalidScore = errors.New("similarity score out of range")
)

// Breakdown holds the per-measure scores of one comparison.
type Breakdown struct {
	EditDistance float64
	TokenSet     float64
	Phonetic     float64
}

// Scores returns the breakdown in canonical algorithm order.
func (b Breakdown) Scores() []domain.SimilarityScore {
	return []domain.SimilarityScore{
		{Algorithm: domain.AlgorithmEditDistance, Value: b.EditDistance},
		{Algorithm: domain.AlgorithmTokenSet, Value: b.TokenSet},
		{Algorithm: domain.AlgorithmPhonetic, Value: b.Phonetic},
	}
}

func (b Breakdown) validate() error {
	for _, s := range b.Scores() {
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) || s.Value < 0 || s.Value > 1 {
			return dErrors.Wrap(ErrInvalidScore, dErrors.CodeScoringFailed, string(s.Algorithm))
		}
	}
	return nil
}

// Prepared caches the derived forms of a name that every measure needs, so a
// query is tokenized and encoded once per screening rather than once per alias.
type Prepared struct {
	Name   domain.NormalizedName
	tokens []string
	key    string

	ascii       string
	asciiTokens []string
}

// Prepare derives tokens, the transliterated form and the phonetic key of name.
func Prepare(name domain.NormalizedName) Prepared {
	ascii := asciiFold(name.Value())
	return Prepared{
		Name:        name,
		tokens:      name.Tokens(),
		key:         phoneticKey(name.Value()),
		ascii:       ascii,
		asciiTokens: pstrings.UniqueFields(ascii),
	}
}

// Score compares query and ref with every measure.
func Score(query, ref domain.NormalizedName) (Breakdown, error) {
	return ScorePrepared(Prepare(query), Prepare(ref))
}

// ScorePrepared is Score over prepared names. Names written in different
// scripts are compared by their ASCII transliterations.
func ScorePrepared(query, ref Prepared) (Breakdown, error) {
	if query.Name.Version() != ref.Name.Version() {
		return Breakdown{}, dErrors.Wrap(ErrVersionMismatch, dErrors.CodeScoringFailed,
			"query "+query.Name.Version()+" vs reference "+ref.Name.Version())
	}
	qv, rv := query.Name.Value(), ref.Name.Value()
	qt, rt := query.tokens, ref.tokens
	if crossScript(query.Name.Script(), ref.Name.Script()) {
		qv, rv = query.ascii, ref.ascii
		qt, rt = query.asciiTokens, ref.asciiTokens
	}
	b := Breakdown{
		EditDistance: EditSimilarity(qv, rv),
		TokenSet:     TokenSetSimilarity(qt, rt),
		Phonetic:     EditSimilarity(query.key, ref.key),
	}
	if err := b.validate(); err != nil {
		return Breakdown{}, err
	}
	return b, nil
}

// Aggregate is the weighted sum of b, clamped to [0, 1].
func Aggregate(b Breakdown, w Weights) float64 {
	sum := b.EditDistance*w.EditDistance + b.TokenSet*w.TokenSet + b.Phonetic*w.Phonetic
	switch {
	case math.IsNaN(sum) || sum < 0:
		return 0
	case sum > 1:
		return 1
	}
	return sum
}

// Compare is the total order on candidates: aggregate score descending, then
// edit-distance score descending, then entry ID ascending.
func Compare(a, b domain.Candidate) int {
	if c := cmp.Compare(b.AggregateScore, a.AggregateScore); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Score(domain.AlgorithmEditDistance), a.Score(domain.AlgorithmEditDistance)); c != 0 {
		return c
	}
	return cmp.Compare(a.EntryID, b.EntryID)
}
