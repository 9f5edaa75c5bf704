// Package filter drops ranked candidates whose similarity rests on words that
// say little about identity: business suffixes, place words, titles, very
// short names or widespread personal names. It runs between matching and the
// decision ladder and reports why each candidate was removed.
package filter

import (
	"fmt"
	"math"

	"screener/internal/domain"
	dErrors "screener/pkg/domain-errors"
	pstrings "screener/pkg/platform/strings"
)

// Reason names the check that removed a candidate.
type Reason string

const (
	ReasonShortQuery  Reason = "short_query"
	ReasonCommonName  Reason = "common_name"
	ReasonCommonWords Reason = "common_business_words"
	ReasonShortName   Reason = "short_name"
	ReasonTitleOnly   Reason = "title_only"
	ReasonWeakPartial Reason = "weak_partial"
	ReasonGeographic  Reason = "geographic"
)

// Reasons lists every reason in evaluation order.
func Reasons() []Reason {
	return []Reason{
		ReasonShortQuery, ReasonCommonName, ReasonCommonWords, ReasonShortName,
		ReasonTitleOnly, ReasonWeakPartial, ReasonGeographic,
	}
}

// Removed records one filtered candidate.
type Removed struct {
	EntryID        string  `json:"entry_id"`
	MatchedAlias   string  `json:"matched_alias"`
	AggregateScore float64 `json:"aggregate_score"`
	Reason         Reason  `json:"reason"`
}

// Options bound each check. A candidate is only removed while its aggregate
// score stays below the ceiling of the check that matched it.
type Options struct {
	ShortQueryLength   int     `yaml:"short_query_length"`
	ShortNameLength    int     `yaml:"short_name_length"`
	ShortNameCeiling   float64 `yaml:"short_name_ceiling"`
	CommonNameCeiling  float64 `yaml:"common_name_ceiling"`
	CommonWordCeiling  float64 `yaml:"common_word_ceiling"`
	TitleOnlyCeiling   float64 `yaml:"title_only_ceiling"`
	WeakPartialCeiling float64 `yaml:"weak_partial_ceiling"`
	WeakTokenOverlap   float64 `yaml:"weak_token_overlap"`
	GeographicCeiling  float64 `yaml:"geographic_ceiling"`
}

func DefaultOptions() Options {
	return Options{
		ShortQueryLength:   3,
		ShortNameLength:    3,
		ShortNameCeiling:   0.90,
		CommonNameCeiling:  0.80,
		CommonWordCeiling:  0.75,
		TitleOnlyCeiling:   0.80,
		WeakPartialCeiling: 0.70,
		WeakTokenOverlap:   0.60,
		GeographicCeiling:  0.75,
	}
}

// Validate requires non-negative lengths and ceilings in [0, 1].
func (o Options) Validate() error {
	if o.ShortQueryLength < 0 || o.ShortNameLength < 0 {
		return dErrors.New(dErrors.CodeConfiguration, "filter lengths must not be negative")
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"short_name_ceiling", o.ShortNameCeiling},
		{"common_name_ceiling", o.CommonNameCeiling},
		{"common_word_ceiling", o.CommonWordCeiling},
		{"title_only_ceiling", o.TitleOnlyCeiling},
		{"weak_partial_ceiling", o.WeakPartialCeiling},
		{"weak_token_overlap", o.WeakTokenOverlap},
		{"geographic_ceiling", o.GeographicCeiling},
	} {
		if math.IsNaN(f.v) || f.v < 0 || f.v > 1 {
			return dErrors.Newf(dErrors.CodeConfiguration, "filter %s must be in [0, 1], got %v", f.name, f.v)
		}
	}
	return nil
}

// Fingerprint identifies every option that can change which candidates pass.
func (o Options) Fingerprint() string {
	return fmt.Sprintf("filter:q%d;n%d@%g;cn%g;cw%g;t%g;w%g/%g;g%g",
		o.ShortQueryLength, o.ShortNameLength, o.ShortNameCeiling, o.CommonNameCeiling,
		o.CommonWordCeiling, o.TitleOnlyCeiling, o.WeakPartialCeiling, o.WeakTokenOverlap, o.GeographicCeiling)
}

// Filter is immutable and safe for concurrent use.
type Filter struct {
	opts        Options
	commonNames set
	business    set
	titles      set
	geographic  set
}

// New validates opts and builds a filter over the default word lists.
func New(opts Options) (*Filter, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Filter{
		opts:        opts,
		commonNames: newSet(defaultCommonNames),
		business:    newSet(defaultBusinessWords),
		titles:      newSet(defaultTitles),
		geographic:  newSet(defaultGeographicWords),
	}, nil
}

func (f *Filter) Options() Options {
	return f.opts
}

// Apply splits cands into the candidates that survive, in their original
// order, and the removed ones with the first reason that matched. Exact alias
// matches are never removed.
func (f *Filter) Apply(query domain.NormalizedName, cands []domain.Candidate) ([]domain.Candidate, []Removed) {
	if len(cands) == 0 {
		return cands, nil
	}
	q := newSet(query.Tokens())
	top := domain.TopScore(cands)

	kept := make([]domain.Candidate, 0, len(cands))
	var removed []Removed
	for _, c := range cands {
		reason, drop := f.check(query, q, top, c)
		if !drop || c.Exact {
			kept = append(kept, c)
			continue
		}
		removed = append(removed, Removed{
			EntryID:        c.EntryID,
			MatchedAlias:   c.MatchedAlias,
			AggregateScore: c.AggregateScore,
			Reason:         reason,
		})
	}
	return kept, removed
}

func (f *Filter) check(query domain.NormalizedName, q set, top float64, c domain.Candidate) (Reason, bool) {
	o := f.opts
	score := c.AggregateScore
	alias := newSet(pstrings.UniqueFields(c.MatchedAlias))

	switch {
	case query.Len() <= o.ShortQueryLength:
		return ReasonShortQuery, true
	case f.commonNames.has(query.Value()) && top < o.CommonNameCeiling:
		return ReasonCommonName, true
	case score < o.CommonWordCeiling && q.intersects(f.business) && alias.intersects(f.business):
		return ReasonCommonWords, true
	case score < o.ShortNameCeiling && runeLen(c.MatchedAlias) <= o.ShortNameLength:
		return ReasonShortName, true
	case score < o.TitleOnlyCeiling && f.titleOnly(q, alias):
		return ReasonTitleOnly, true
	case score < o.WeakPartialCeiling && c.Score(domain.AlgorithmTokenSet) < o.WeakTokenOverlap:
		return ReasonWeakPartial, true
	case score < o.GeographicCeiling && q.intersects(f.geographic) && alias.intersects(f.geographic):
		return ReasonGeographic, true
	}
	return "", false
}

// titleOnly reports whether more than half of the tokens shared by query and
// alias are titles.
func (f *Filter) titleOnly(q, alias set) bool {
	var shared, titles int
	for tok := range q {
		if !alias.has(tok) {
			continue
		}
		shared++
		if f.titles.has(tok) {
			titles++
		}
	}
	return titles > 0 && float64(titles)/float64(shared) > 0.5
}

func runeLen(s string) int {
	return len([]rune(s))
}
