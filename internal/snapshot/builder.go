package snapshot

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"screener/internal/domain"
	dErrors "screener/pkg/domain-errors"
	pstrings "screener/pkg/platform/strings"
)

const dateLayout = "2006-01-02"

// RawEntry is one sanctioned party as delivered by ingestion, before names
// are normalized.
type RawEntry struct {
	ID        string            `yaml:"id" json:"id"`
	Names     []string          `yaml:"names" json:"names"`
	Source    string            `yaml:"source" json:"source"`
	Program   string            `yaml:"program" json:"program"`
	DateAdded string            `yaml:"date_added" json:"date_added"`
	Metadata  map[string]string `yaml:"metadata" json:"metadata"`
}

// Document is a complete snapshot generation from a source.
type Document struct {
	Version uint64     `yaml:"version" json:"version"`
	Entries []RawEntry `yaml:"entries" json:"entries"`
}

// Normalizer is the subset of the normalizer the builder needs.
type Normalizer interface {
	Normalize(raw string) (domain.NormalizedName, error)
	Version() string
}

// Rejection explains why a raw entry or alias was left out of a snapshot.
type Rejection struct {
	EntryID string
	Alias   string
	Reason  string
}

// BuildReport summarizes a build.
type BuildReport struct {
	Version        uint64
	Entries        int
	Aliases        int
	DroppedAliases int
	Rejected       []Rejection
}

// Builder turns raw ingestion records into an immutable snapshot, normalizing
// every alias with the same normalizer used for queries.
type Builder struct {
	normalizer Normalizer
	clock      func() time.Time
	logger     *slog.Logger
}

type BuilderOption func(*Builder)

func WithBuilderClock(clock func() time.Time) BuilderOption {
	return func(b *Builder) {
		if clock != nil {
			b.clock = clock
		}
	}
}

func WithBuilderLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = l
	}
}

func NewBuilder(n Normalizer, opts ...BuilderOption) (*Builder, error) {
	if n == nil {
		return nil, dErrors.New(dErrors.CodeConfiguration, "snapshot builder requires a normalizer")
	}
	b := &Builder{normalizer: n, clock: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Build normalizes doc into a snapshot. Aliases that fail normalization are
// dropped; entries left with no alias, a blank ID or a duplicate ID are
// rejected. The snapshot is still built from whatever survived.
func (b *Builder) Build(doc Document) (*domain.Snapshot, BuildReport, error) {
	if doc.Version == 0 {
		return nil, BuildReport{}, dErrors.New(dErrors.CodeInvalidInput, "snapshot document has no version")
	}

	report := BuildReport{Version: doc.Version}
	entries := make([]domain.ReferenceEntry, 0, len(doc.Entries))
	seen := make(map[string]struct{}, len(doc.Entries))

	for _, raw := range doc.Entries {
		id := strings.TrimSpace(raw.ID)
		if id == "" {
			report.Rejected = append(report.Rejected, Rejection{Reason: "missing entry id"})
			continue
		}
		if _, dup := seen[id]; dup {
			report.Rejected = append(report.Rejected, Rejection{EntryID: id, Reason: "duplicate entry id"})
			continue
		}

		entry, dropped, err := b.buildEntry(id, raw)
		report.DroppedAliases += len(dropped)
		report.Rejected = append(report.Rejected, dropped...)
		if err != nil {
			report.Rejected = append(report.Rejected, Rejection{EntryID: id, Reason: err.Error()})
			continue
		}
		seen[id] = struct{}{}
		entries = append(entries, entry)
		report.Aliases += len(entry.Aliases)
	}
	report.Entries = len(entries)

	if b.logger != nil && len(report.Rejected) > 0 {
		b.logger.Warn("snapshot build rejected records",
			"snapshot_version", doc.Version,
			"rejected", len(report.Rejected),
			"dropped_aliases", report.DroppedAliases,
		)
	}
	return domain.NewSnapshot(doc.Version, entries, b.clock().UTC()), report, nil
}

func (b *Builder) buildEntry(id string, raw RawEntry) (domain.ReferenceEntry, []Rejection, error) {
	var dropped []Rejection
	entry := domain.ReferenceEntry{
		ID:       id,
		Source:   domain.SourceList(strings.ToUpper(strings.TrimSpace(raw.Source))),
		Program:  strings.TrimSpace(raw.Program),
		Metadata: raw.Metadata,
	}

	if raw.DateAdded != "" {
		t, err := time.Parse(dateLayout, raw.DateAdded)
		if err != nil {
			return domain.ReferenceEntry{}, nil, fmt.Errorf("invalid date_added %q: %w", raw.DateAdded, err)
		}
		entry.DateAdded = t
	}

	values := make(map[string]struct{})
	for _, name := range pstrings.DedupeAndTrim(raw.Names) {
		alias, err := b.normalizer.Normalize(name)
		if err != nil {
			dropped = append(dropped, Rejection{EntryID: id, Alias: name, Reason: err.Error()})
			continue
		}
		if _, dup := values[alias.Value()]; dup {
			continue
		}
		values[alias.Value()] = struct{}{}
		entry.Aliases = append(entry.Aliases, alias)
	}
	if len(entry.Aliases) == 0 {
		return domain.ReferenceEntry{}, dropped, fmt.Errorf("no usable alias")
	}
	return entry, dropped, nil
}
