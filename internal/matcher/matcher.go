// Package matcher scores a normalized query against every entry of a reference
// snapshot and returns the ranked candidates above the floor.
package matcher

import (
	"cmp"
	"context"
	"fmt"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"screener/internal/domain"
	"screener/internal/similarity"
	dErrors "screener/pkg/domain-errors"
)

const (
	DefaultFloor         = 0.50
	DefaultMaxCandidates = 10
	DefaultLengthRatio   = 2.5
	DefaultChunkSize     = 256
)

// Options tune candidate generation. Workers and ChunkSize change throughput
// only; the result for a given query and snapshot does not depend on them.
type Options struct {
	Floor         float64
	MaxCandidates int
	LengthRatio   float64
	Workers       int
	ChunkSize     int
	Weights       similarity.Weights
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Floor:         DefaultFloor,
		MaxCandidates: DefaultMaxCandidates,
		LengthRatio:   DefaultLengthRatio,
		Workers:       runtime.GOMAXPROCS(0),
		ChunkSize:     DefaultChunkSize,
		Weights:       similarity.DefaultWeights(),
	}
}

// Validate rejects options that would make matching meaningless.
func (o Options) Validate() error {
	if o.Floor < 0 || o.Floor >= 1 {
		return dErrors.Newf(dErrors.CodeConfiguration, "candidate floor must be in [0, 1), got %v", o.Floor)
	}
	if o.MaxCandidates <= 0 {
		return dErrors.Newf(dErrors.CodeConfiguration, "max candidates must be positive, got %d", o.MaxCandidates)
	}
	if o.LengthRatio <= 0 {
		return dErrors.Newf(dErrors.CodeConfiguration, "length ratio must be positive, got %v", o.LengthRatio)
	}
	if o.Workers < 0 || o.ChunkSize < 0 {
		return dErrors.New(dErrors.CodeConfiguration, "workers and chunk size must not be negative")
	}
	return o.Weights.Validate()
}

// Fingerprint identifies every option that can change a match result.
func (o Options) Fingerprint() string {
	return fmt.Sprintf("floor=%g;max=%d;ratio=%g;%s", o.Floor, o.MaxCandidates, o.LengthRatio, o.Weights)
}

// ScoringFailure records a reference entry that could not be scored.
type ScoringFailure struct {
	EntryID string
	Err     error
}

// Result is the outcome of one Match call. Candidates may be empty.
type Result struct {
	Candidates  []domain.Candidate
	Failures    []ScoringFailure
	Scanned     int
	Prefiltered int
}

// Matcher is stateless apart from its options and safe for concurrent use.
type Matcher struct {
	opts Options
}

// New validates opts and fills zero Workers and ChunkSize with defaults.
func New(opts Options) (*Matcher, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Workers == 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	return &Matcher{opts: opts}, nil
}

// Options returns the effective options.
func (m *Matcher) Options() Options {
	return m.opts
}

// Fingerprint is Options().Fingerprint().
func (m *Matcher) Fingerprint() string {
	return m.opts.Fingerprint()
}

// Floor returns the minimum aggregate score a candidate must reach.
func (m *Matcher) Floor() float64 {
	return m.opts.Floor
}

// Match ranks the entries of snap against query. A failure scoring one entry
// excludes that entry and is reported in Result.Failures; cancellation of ctx
// aborts the whole call.
func (m *Matcher) Match(ctx context.Context, query domain.NormalizedName, snap *domain.Snapshot) (*Result, error) {
	if snap == nil {
		return nil, dErrors.New(dErrors.CodeSnapshotUnavailable, "no reference snapshot")
	}
	if query.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "query name is empty")
	}

	q := similarity.Prepare(query)
	n := snap.Len()
	chunks := (n + m.opts.ChunkSize - 1) / m.opts.ChunkSize
	partials := make([]chunkResult, chunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Workers)
	for c := range chunks {
		start := c * m.opts.ChunkSize
		end := min(start+m.opts.ChunkSize, n)
		g.Go(func() error {
			return m.scoreChunk(gctx, q, snap, start, end, &partials[c])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{Candidates: []domain.Candidate{}}
	for _, p := range partials {
		res.Candidates = append(res.Candidates, p.candidates...)
		res.Failures = append(res.Failures, p.failures...)
		res.Scanned += p.scanned
		res.Prefiltered += p.prefiltered
	}
	slices.SortFunc(res.Candidates, similarity.Compare)
	if len(res.Candidates) > m.opts.MaxCandidates {
		res.Candidates = res.Candidates[:m.opts.MaxCandidates]
	}
	return res, nil
}

type chunkResult struct {
	candidates  []domain.Candidate
	failures    []ScoringFailure
	scanned     int
	prefiltered int
}

const cancelCheckEvery = 64

func (m *Matcher) scoreChunk(ctx context.Context, q similarity.Prepared, snap *domain.Snapshot, start, end int, out *chunkResult) error {
	for i := start; i < end; i++ {
		if (i-start)%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		entry := snap.Entry(i)
		out.scanned++

		cand, prefiltered, err := m.scoreEntry(q, entry)
		switch {
		case err != nil:
			out.failures = append(out.failures, ScoringFailure{EntryID: entry.ID, Err: err})
		case prefiltered:
			out.prefiltered++
		case cand != nil && cand.AggregateScore >= m.opts.Floor:
			out.candidates = append(out.candidates, *cand)
		}
	}

	// Keeping only the chunk's top candidates bounds memory; the global
	// ordering is total so the final cut is unaffected.
	slices.SortFunc(out.candidates, similarity.Compare)
	if len(out.candidates) > m.opts.MaxCandidates {
		out.candidates = slices.Clip(out.candidates[:m.opts.MaxCandidates])
	}
	return nil
}

// scoreEntry returns the entry's best alias as a candidate. prefiltered is
// true when every alias failed the length-ratio check.
func (m *Matcher) scoreEntry(q similarity.Prepared, entry domain.ReferenceEntry) (best *domain.Candidate, prefiltered bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			best, prefiltered = nil, false
			err = dErrors.Newf(dErrors.CodeScoringFailed, "panic scoring entry %s: %v", entry.ID, r)
		}
	}()

	if len(entry.Aliases) == 0 {
		return nil, false, nil
	}

	prefiltered = true
	for _, alias := range entry.Aliases {
		if !withinLengthRatio(q.Name.Len(), alias.Len(), m.opts.LengthRatio) {
			continue
		}
		prefiltered = false

		b, scoreErr := similarity.ScorePrepared(q, similarity.Prepare(alias))
		if scoreErr != nil {
			return nil, false, dErrors.Wrap(scoreErr, dErrors.CodeScoringFailed, "score entry "+entry.ID)
		}
		cand := domain.Candidate{
			EntryID:        entry.ID,
			Source:         entry.Source,
			MatchedAlias:   alias.Value(),
			AggregateScore: similarity.Aggregate(b, m.opts.Weights),
			Scores:         b.Scores(),
			Exact:          alias.Value() == q.Name.Value(),
		}
		if best == nil || betterAlias(cand, *best) {
			best = &cand
		}
	}
	return best, prefiltered, nil
}

func betterAlias(a, b domain.Candidate) bool {
	if c := similarity.Compare(a, b); c != 0 {
		return c < 0
	}
	return cmp.Less(a.MatchedAlias, b.MatchedAlias)
}

func withinLengthRatio(a, b int, ratio float64) bool {
	lo, hi := min(a, b), max(a, b)
	if lo == 0 {
		return false
	}
	return float64(hi)/float64(lo) <= ratio
}
