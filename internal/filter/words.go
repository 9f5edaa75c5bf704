package filter

// Word lists are matched against whole normalized tokens, so every entry must
// already be case folded and free of diacritics.

var defaultCommonNames = []string{
	"john smith", "mary johnson", "david brown", "michael davis",
	"james wilson", "robert miller", "william moore", "richard taylor",
}

var defaultBusinessWords = []string{
	"company", "corporation", "corp", "limited", "ltd", "inc", "llc", "plc",
	"bank", "group", "holding", "holdings", "international", "trading", "services",
	"foundation", "association", "organization", "organisation", "society",
}

// defaultTitles only matter for titles the normalizer was configured to keep.
var defaultTitles = []string{"mr", "mrs", "ms", "dr", "prof", "sir", "lady", "lord"}

var defaultGeographicWords = []string{
	"north", "south", "east", "west", "central", "new", "old",
	"city", "town", "village", "county", "state", "province",
	"republic", "kingdom", "emirates", "federation",
}

type set map[string]struct{}

func newSet(words []string) set {
	s := make(set, len(words))
	for _, w := range words {
		s[w] = struct{}{}
	}
	return s
}

func (s set) has(w string) bool {
	_, ok := s[w]
	return ok
}

func (s set) intersects(other set) bool {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for w := range small {
		if large.has(w) {
			return true
		}
	}
	return false
}
