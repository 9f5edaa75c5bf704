// Package similarity holds the pure similarity measures used to compare a
// normalized query against normalized reference aliases. Every measure
// returns a value in [0, 1] and is symmetric in its arguments.
package similarity

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// EditSimilarity is 1 - levenshtein(a, b) / max(len(a), len(b)) over runes.
// Equal strings score 1; an empty side scores 0 unless both are empty.
func EditSimilarity(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 || lb == 0 {
		return 0
	}
	longest := max(la, lb)
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}
