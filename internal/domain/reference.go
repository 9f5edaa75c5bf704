package domain

import (
	"maps"
	"slices"
	"time"
)

// SourceList tags the sanctions authority a reference entry came from.
type SourceList string

const (
	SourceOFAC SourceList = "OFAC"
	SourceUN   SourceList = "UN"
	SourceHMT  SourceList = "HMT"
	SourceEU   SourceList = "EU"
)

// Priority ranks lists by criticality (higher is more critical). Unknown lists
// rank below every known authority.
func (s SourceList) Priority() int {
	switch s {
	case SourceOFAC:
		return 100
	case SourceUN:
		return 90
	case SourceHMT:
		return 80
	case SourceEU:
		return 70
	default:
		return 50
	}
}

// ReferenceEntry is one sanctioned person or organization with its aliases.
// Entries are owned by ingestion; the core only reads them through a Snapshot.
type ReferenceEntry struct {
	ID        string
	Aliases   []NormalizedName
	Source    SourceList
	Program   string
	DateAdded time.Time
	Metadata  map[string]string
}

func (e ReferenceEntry) clone() ReferenceEntry {
	out := e
	out.Aliases = slices.Clone(e.Aliases)
	if e.Metadata != nil {
		out.Metadata = maps.Clone(e.Metadata)
	}
	return out
}

// Snapshot is one immutable, versioned generation of the reference list.
// Concurrent screenings share a *Snapshot; nothing mutates it after NewSnapshot.
type Snapshot struct {
	version  uint64
	entries  []ReferenceEntry
	loadedAt time.Time
	sources  []SourceList
	normVer  string
}

// NewSnapshot deep-copies entries into a new immutable snapshot.
func NewSnapshot(version uint64, entries []ReferenceEntry, loadedAt time.Time) *Snapshot {
	copied := make([]ReferenceEntry, len(entries))
	seen := make(map[SourceList]struct{})
	var normVer string
	for i, e := range entries {
		copied[i] = e.clone()
		seen[e.Source] = struct{}{}
		if normVer == "" && len(e.Aliases) > 0 {
			normVer = e.Aliases[0].Version()
		}
	}

	sources := slices.Collect(maps.Keys(seen))
	slices.Sort(sources)

	return &Snapshot{
		version:  version,
		entries:  copied,
		loadedAt: loadedAt,
		sources:  sources,
		normVer:  normVer,
	}
}

func (s *Snapshot) Version() uint64     { return s.version }
func (s *Snapshot) Len() int            { return len(s.entries) }
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// NormalizationVersion returns the version of the first alias in the snapshot,
// or "" when it holds no aliases.
func (s *Snapshot) NormalizationVersion() string { return s.normVer }

// Entry returns the i-th entry. Alias slices are shared with the snapshot and
// must be treated as read-only.
func (s *Snapshot) Entry(i int) ReferenceEntry {
	return s.entries[i]
}

// Entries returns a copy of the entry list.
func (s *Snapshot) Entries() []ReferenceEntry {
	return slices.Clone(s.entries)
}

// Sources returns the distinct source lists present, sorted.
func (s *Snapshot) Sources() []SourceList {
	return slices.Clone(s.sources)
}

// AliasCount returns the total number of aliases across all entries.
func (s *Snapshot) AliasCount() int {
	n := 0
	for _, e := range s.entries {
		n += len(e.Aliases)
	}
	return n
}
