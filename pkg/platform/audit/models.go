package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance. They are
	// emitted fail-closed: if one cannot be persisted the screening fails.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers diagnostics and summaries useful for
	// operational visibility. They may be sampled or dropped under outage.
	CategoryOperations EventCategory = "operations"
)

type AuditEvent string

const (
	EventDecisionMade           AuditEvent = "decision_made"
	EventCandidateScoringFailed AuditEvent = "candidate_scoring_failed"
	EventBatchScreened          AuditEvent = "batch_screened"
	EventSnapshotSwapped        AuditEvent = "snapshot_swapped"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventDecisionMade:           CategoryCompliance,
	EventSnapshotSwapped:        CategoryCompliance,
	EventCandidateScoringFailed: CategoryOperations,
	EventBatchScreened:          CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is emitted from the screening core. It is transport-agnostic so
// stores and sinks can fan out.
type Event struct {
	ID                   uuid.UUID       `json:"id"`
	Category             EventCategory   `json:"category"`
	Action               string          `json:"action"`
	Timestamp            time.Time       `json:"timestamp"`
	RequestID            string          `json:"request_id,omitempty"`
	Query                string          `json:"query,omitempty"`
	NormalizationVersion string          `json:"normalization_version,omitempty"`
	SnapshotVersion      uint64          `json:"snapshot_version,omitempty"`
	Decision             string          `json:"decision,omitempty"`
	RuleFired            string          `json:"rule_fired,omitempty"`
	RiskLevel            string          `json:"risk_level,omitempty"`
	Route                string          `json:"route,omitempty"`
	EntryIDs             []string        `json:"entry_ids,omitempty"`
	Reason               string          `json:"reason,omitempty"`
	DurationMS           float64         `json:"duration_ms,omitempty"`
	Payload              json.RawMessage `json:"payload,omitempty"`
}

// Normalize fills the ID, category and timestamp when the emitter left them
// empty.
func (e *Event) Normalize(now func() time.Time) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Category == "" {
		e.Category = AuditEvent(e.Action).Category()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = now()
	}
	e.Timestamp = e.Timestamp.UTC()
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Reader lists persisted events.
type Reader interface {
	ListByRequest(ctx context.Context, requestID string) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
