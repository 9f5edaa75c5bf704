package similarity

import (
	"strings"
	"unicode"

	"screener/internal/domain"
)

// digraphs fold multi-letter spellings of one sound. Longer patterns come
// first; strings.Replacer tries them in argument order at each position.
// Upper-case outputs are final symbols and are not reclassified.
var digraphs = strings.NewReplacer(
	"dzh", "J",
	"tch", "C",
	"sch", "S",
	"sh", "S",
	"ch", "C",
	"zh", "J",
	"dj", "J",
	"kh", "k",
	"gh", "g",
	"ph", "f",
	"th", "t",
	"dh", "t",
	"ck", "k",
	"qu", "kv",
	"ts", "s",
	"tz", "s",
	"ks", "X",
	"x", "X",
	"ou", "u",
	"oo", "u",
	"ee", "i",
)

const vowelMarker = 'A'

// PhoneticKey encodes a name into a coarse sound key, one key per token joined
// by spaces. Non-Latin scripts are transliterated to ASCII first.
func PhoneticKey(name domain.NormalizedName) string {
	return phoneticKey(name.Value())
}

func phoneticKey(value string) string {
	tokens := strings.FieldsFunc(asciiFold(value), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && r != '\''
	})

	keys := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.ReplaceAll(tok, "'", "")
		if k := encodeToken(tok); k != "" {
			keys = append(keys, k)
		}
	}
	return strings.Join(keys, " ")
}

func encodeToken(tok string) string {
	src := []rune(digraphs.Replace(tok))
	out := make([]rune, 0, len(src))

	emit := func(r rune) {
		if n := len(out); n > 0 && out[n-1] == r {
			return
		}
		out = append(out, r)
	}

	for i, r := range src {
		switch {
		case unicode.IsUpper(r):
			emit(r)
		case isVowel(r):
			emit(vowelMarker)
		case r == 'h':
			if n := len(out); n > 0 && out[n-1] == vowelMarker {
				continue
			}
			emit('h')
		case r == 'c':
			if i+1 < len(src) && strings.ContainsRune("eiy", src[i+1]) {
				emit('s')
			} else {
				emit('k')
			}
		case r == 'q':
			emit('k')
		case r == 'w':
			emit('v')
		case r == 'z':
			emit('s')
		case r == 'd':
			emit('t')
		case r == 'j':
			emit('J')
		default:
			emit(r)
		}
	}
	return string(out)
}

func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u', 'y':
		return true
	}
	return false
}

// PhoneticSimilarity is the edit similarity of the two names' phonetic keys.
func PhoneticSimilarity(a, b domain.NormalizedName) float64 {
	return EditSimilarity(PhoneticKey(a), PhoneticKey(b))
}
