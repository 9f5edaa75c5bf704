package similarity

import (
	"strings"

	"github.com/mozillazg/go-unidecode"

	"screener/internal/domain"
	"screener/internal/normalize"
	pstrings "screener/pkg/platform/strings"
)

// asciiFold transliterates value to lower-case ASCII letters, digits,
// hyphens and apostrophes separated by single spaces, with name variants
// folded as the normalizer folds them.
func asciiFold(value string) string {
	ascii := strings.ToLower(unidecode.Unidecode(value))
	return normalize.FoldVariants(pstrings.CollapseSpace(strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '\'':
			return r
		default:
			return ' '
		}
	}, ascii)))
}

// crossScript reports whether two names were written in different alphabets
// and have to be compared in transliterated form. Unknown scripts carry no
// letters worth transliterating.
func crossScript(a, b domain.Script) bool {
	if a == b || a == domain.ScriptUnknown || b == domain.ScriptUnknown {
		return false
	}
	return true
}
