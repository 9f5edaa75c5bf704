package normalize

import (
	"unicode"

	"screener/internal/domain"
)

var scriptTables = []struct {
	script domain.Script
	table  *unicode.RangeTable
}{
	{domain.ScriptLatin, unicode.Latin},
	{domain.ScriptCyrillic, unicode.Cyrillic},
	{domain.ScriptGreek, unicode.Greek},
	{domain.ScriptArabic, unicode.Arabic},
	{domain.ScriptHebrew, unicode.Hebrew},
	{domain.ScriptHan, unicode.Han},
	{domain.ScriptHangul, unicode.Hangul},
	{domain.ScriptDevanagari, unicode.Devanagari},
}

// DetectScript classifies the letters of s. Letters from more than one known
// script yield ScriptMixed; no recognised letters yield ScriptUnknown.
func DetectScript(s string) domain.Script {
	found := domain.ScriptUnknown
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		script := classify(r)
		if script == domain.ScriptUnknown {
			continue
		}
		if found == domain.ScriptUnknown {
			found = script
			continue
		}
		if found != script {
			return domain.ScriptMixed
		}
	}
	return found
}

func classify(r rune) domain.Script {
	for _, st := range scriptTables {
		if unicode.Is(st.table, r) {
			return st.script
		}
	}
	return domain.ScriptUnknown
}
