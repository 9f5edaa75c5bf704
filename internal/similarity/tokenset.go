package similarity

import (
	"slices"
)

// TokenSetSimilarity compares two names as sets of tokens, ignoring order and
// duplicates. Each token of the smaller set is matched to its closest token in
// the other set and the closeness is averaged; when both sets have the same
// size both directions are averaged. A subset scores 1.
func TokenSetSimilarity(a, b []string) float64 {
	sa, sb := tokenSet(a), tokenSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	switch {
	case len(sa) < len(sb):
		return bestMatchMean(sa, sb)
	case len(sb) < len(sa):
		return bestMatchMean(sb, sa)
	default:
		return (bestMatchMean(sa, sb) + bestMatchMean(sb, sa)) / 2
	}
}

// tokenSet returns the sorted distinct non-empty tokens so summation order,
// and therefore the float result, does not depend on input order.
func tokenSet(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func bestMatchMean(from, to []string) float64 {
	var sum float64
	for _, f := range from {
		best := 0.0
		for _, t := range to {
			if s := EditSimilarity(f, t); s > best {
				best = s
				if best == 1 {
					break
				}
			}
		}
		sum += best
	}
	return sum / float64(len(from))
}
