package normalize

import "strings"

// nameVariants maps common transliterations of Arabic name parts to one
// spelling. Keys and values are case folded; no value is itself a key.
var nameVariants = map[string]string{
	"muhammad": "mohammed",
	"mohamed":  "mohammed",
	"mohammad": "mohammed",
	"abd":      "abdul",
	"abdel":    "abdul",
	"abdal":    "abdul",
	"el":       "al",
	"ul":       "al",
	"bin":      "ibn",
	"ben":      "ibn",
}

// FoldVariants rewrites each space separated token, and each hyphen joined
// part of a token, to its canonical spelling. Input must be case folded.
// Folding is idempotent.
func FoldVariants(s string) string {
	tokens := strings.Fields(s)
	for i, tok := range tokens {
		tokens[i] = foldToken(tok)
	}
	return strings.Join(tokens, " ")
}

func foldToken(tok string) string {
	if !strings.Contains(tok, "-") {
		if c, ok := nameVariants[tok]; ok {
			return c
		}
		return tok
	}
	parts := strings.Split(tok, "-")
	for i, p := range parts {
		if c, ok := nameVariants[p]; ok {
			parts[i] = c
		}
	}
	return strings.Join(parts, "-")
}
