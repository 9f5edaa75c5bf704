package domain

import (
	"strings"
	"unicode/utf8"

	pstrings "screener/pkg/platform/strings"
)

// Script is the writing system detected in the original text of a name.
type Script string

const (
	ScriptLatin      Script = "latin"
	ScriptCyrillic   Script = "cyrillic"
	ScriptGreek      Script = "greek"
	ScriptArabic     Script = "arabic"
	ScriptHebrew     Script = "hebrew"
	ScriptHan        Script = "han"
	ScriptHangul     Script = "hangul"
	ScriptDevanagari Script = "devanagari"
	ScriptMixed      Script = "mixed"
	ScriptUnknown    Script = "unknown"
)

// NormalizedName is the canonical comparison form of a name. It is created once
// per query or alias and never mutated; all fields are unexported so the only
// way to obtain one is NewNormalizedName.
type NormalizedName struct {
	value    string
	original string
	script   Script
	version  string
	tokens   []string
}

// NewNormalizedName builds a NormalizedName. value must already be normalized;
// tokens are derived from it by splitting on spaces and hyphens.
func NewNormalizedName(original, value string, script Script, version string) NormalizedName {
	return NormalizedName{
		value:    value,
		original: original,
		script:   script,
		version:  version,
		tokens:   pstrings.UniqueFields(value),
	}
}

func (n NormalizedName) Value() string    { return n.value }
func (n NormalizedName) Original() string { return n.original }
func (n NormalizedName) Script() Script   { return n.script }
func (n NormalizedName) Version() string  { return n.version }
func (n NormalizedName) IsZero() bool     { return n.value == "" }

// Len returns the rune length of the normalized value.
func (n NormalizedName) Len() int {
	return utf8.RuneCountInString(n.value)
}

// Tokens returns the distinct tokens of the name in first-seen order.
func (n NormalizedName) Tokens() []string {
	out := make([]string, len(n.tokens))
	copy(out, n.tokens)
	return out
}

func (n NormalizedName) String() string {
	return n.value
}

// Equal reports whether two names have the same normalized value under the
// same normalization version.
func (n NormalizedName) Equal(other NormalizedName) bool {
	return n.version == other.version && strings.EqualFold(n.value, other.value)
}
