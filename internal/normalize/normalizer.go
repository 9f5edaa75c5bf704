// Package normalize is the reference implementation of the name normalization
// contract: case folded, diacritics stripped, punctuation and honorifics
// removed, Arabic name variants folded, whitespace collapsed, word order
// untouched.
package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"screener/internal/domain"
	dErrors "screener/pkg/domain-errors"
	pstrings "screener/pkg/platform/strings"
)

// DefaultVersion tags names produced by this implementation. Bump it whenever
// the output for any input may change.
const DefaultVersion = "nfkd-fold-v2"

// DefaultMinLength is the shortest normalized name accepted, in runes.
const DefaultMinLength = 2

// Normalizer is safe for concurrent use; transformers are built per call.
type Normalizer struct {
	version    string
	minLength  int
	honorifics map[string]struct{}
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithVersion overrides the normalization version tag.
func WithVersion(v string) Option {
	return func(n *Normalizer) {
		if v != "" {
			n.version = v
		}
	}
}

// WithMinLength sets the minimum rune length of a normalized name.
func WithMinLength(l int) Option {
	return func(n *Normalizer) {
		if l > 0 {
			n.minLength = l
		}
	}
}

// WithExtraHonorifics adds titles to strip, given in any case.
func WithExtraHonorifics(titles ...string) Option {
	return func(n *Normalizer) {
		for _, t := range titles {
			n.honorifics[cases.Fold().String(strings.TrimSpace(t))] = struct{}{}
		}
	}
}

// New builds a Normalizer with the default honorific list.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		version:    DefaultVersion,
		minLength:  DefaultMinLength,
		honorifics: make(map[string]struct{}, len(defaultHonorifics)),
	}
	for _, h := range defaultHonorifics {
		n.honorifics[h] = struct{}{}
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Version returns the normalization version tag.
func (n *Normalizer) Version() string {
	return n.version
}

// Normalize canonicalizes raw. It fails with an invalid-input error when raw
// is not UTF-8, is blank, or has no letters left after normalization.
func (n *Normalizer) Normalize(raw string) (domain.NormalizedName, error) {
	if !utf8.ValidString(raw) {
		return domain.NormalizedName{}, dErrors.New(dErrors.CodeInvalidInput, "name is not valid UTF-8 text")
	}
	if strings.TrimSpace(raw) == "" {
		return domain.NormalizedName{}, dErrors.New(dErrors.CodeInvalidInput, "name is empty")
	}

	value, err := n.canonicalize(raw)
	if err != nil {
		return domain.NormalizedName{}, err
	}
	if !hasLetter(value) {
		return domain.NormalizedName{}, dErrors.Newf(dErrors.CodeInvalidInput, "name %q contains no letters", raw)
	}
	if utf8.RuneCountInString(value) < n.minLength {
		return domain.NormalizedName{}, dErrors.Newf(dErrors.CodeInvalidInput,
			"name %q is shorter than %d characters after normalization", raw, n.minLength)
	}

	return domain.NewNormalizedName(raw, value, DetectScript(raw), n.version), nil
}

func (n *Normalizer) canonicalize(raw string) (string, error) {
	fold := cases.Fold()
	strip := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	s := fold.String(raw)
	s, _, err := transform.String(strip, s)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInvalidInput, "strip diacritics")
	}
	s = fold.String(s)

	s = strings.Map(mapRune, s)
	s = compactJoiners(pstrings.CollapseSpace(s))

	tokens := strings.Fields(s)
	kept := tokens[:0]
	for _, tok := range tokens {
		tok = strings.Trim(tok, "-'")
		if tok == "" {
			continue
		}
		if _, ok := n.honorifics[tok]; ok {
			continue
		}
		kept = append(kept, foldToken(tok))
	}
	return strings.Join(kept, " "), nil
}

// mapRune keeps letters, digits and marks, canonicalizes apostrophe and hyphen
// variants, and turns everything else into a space.
func mapRune(r rune) rune {
	switch {
	case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r):
		return r
	case isApostrophe(r):
		return '\''
	case isHyphen(r):
		return '-'
	default:
		return ' '
	}
}

func isApostrophe(r rune) bool {
	switch r {
	case '\'', '‘', '’', 'ʼ', '`', '´':
		return true
	}
	return false
}

func isHyphen(r rune) bool {
	switch r {
	case '-', '‐', '‑', '‒', '–', '—', '−':
		return true
	}
	return false
}

// compactJoiners removes spaces around hyphens and apostrophes so
// "al - qaida" and "al-qaida" normalize identically.
func compactJoiners(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	rs := []rune(s)
	for i, r := range rs {
		if r == ' ' {
			prevJoiner := i > 0 && (rs[i-1] == '-' || rs[i-1] == '\'')
			nextJoiner := i+1 < len(rs) && (rs[i+1] == '-' || rs[i+1] == '\'')
			if prevJoiner || nextJoiner {
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
