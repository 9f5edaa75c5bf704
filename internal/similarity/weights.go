package similarity

import (
	"fmt"
	"math"

	dErrors "screener/pkg/domain-errors"
)

const weightTolerance = 1e-6

// Weights combine the per-measure scores into the aggregate score.
type Weights struct {
	EditDistance float64 `yaml:"edit_distance" json:"edit_distance"`
	TokenSet     float64 `yaml:"token_set" json:"token_set"`
	Phonetic     float64 `yaml:"phonetic" json:"phonetic"`
}

// DefaultWeights favour spelling and token overlap slightly over sound.
func DefaultWeights() Weights {
	return Weights{EditDistance: 0.35, TokenSet: 0.35, Phonetic: 0.30}
}

// Validate requires non-negative finite weights summing to 1.
func (w Weights) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"edit_distance", w.EditDistance},
		{"token_set", w.TokenSet},
		{"phonetic", w.Phonetic},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v < 0 {
			return dErrors.Newf(dErrors.CodeConfiguration, "weight %s must be a non-negative number, got %v", f.name, f.v)
		}
	}
	if sum := w.EditDistance + w.TokenSet + w.Phonetic; math.Abs(sum-1) > weightTolerance {
		return dErrors.Newf(dErrors.CodeConfiguration, "weights must sum to 1, got %.6f", sum)
	}
	return nil
}

func (w Weights) String() string {
	return fmt.Sprintf("edit=%.4f token=%.4f phonetic=%.4f", w.EditDistance, w.TokenSet, w.Phonetic)
}
