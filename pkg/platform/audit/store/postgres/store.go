package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	audit "screener/pkg/platform/audit"
)

// Schema creates the audit table. Events are append-only; the id primary key
// makes replays idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS screening_audit_events (
	id                    UUID PRIMARY KEY,
	category              TEXT NOT NULL,
	action                TEXT NOT NULL,
	timestamp             TIMESTAMPTZ NOT NULL,
	request_id            TEXT NOT NULL DEFAULT '',
	query                 TEXT NOT NULL DEFAULT '',
	normalization_version TEXT NOT NULL DEFAULT '',
	snapshot_version      BIGINT NOT NULL DEFAULT 0,
	decision              TEXT NOT NULL DEFAULT '',
	rule_fired            TEXT NOT NULL DEFAULT '',
	risk_level            TEXT NOT NULL DEFAULT '',
	route                 TEXT NOT NULL DEFAULT '',
	entry_ids             TEXT[] NOT NULL DEFAULT '{}',
	reason                TEXT NOT NULL DEFAULT '',
	duration_ms           DOUBLE PRECISION NOT NULL DEFAULT 0,
	payload               JSONB
);
CREATE INDEX IF NOT EXISTS screening_audit_events_request_idx ON screening_audit_events (request_id);
CREATE INDEX IF NOT EXISTS screening_audit_events_timestamp_idx ON screening_audit_events (timestamp DESC);
`

const selectColumns = `
	SELECT id, category, action, timestamp, request_id, query,
	       normalization_version, snapshot_version, decision, rule_fired,
	       risk_level, route, entry_ids, reason, duration_ms, payload
	FROM screening_audit_events
`

// Store implements audit.Store and audit.Reader on PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store. The caller owns db.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply audit schema: %w", err)
	}
	return nil
}

// Append inserts event. Duplicate ids are ignored.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	var payload any
	if len(event.Payload) > 0 {
		payload = []byte(event.Payload)
	}

	query := `
		INSERT INTO screening_audit_events (
			id, category, action, timestamp, request_id, query,
			normalization_version, snapshot_version, decision, rule_fired,
			risk_level, route, entry_ids, reason, duration_ms, payload
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.Category),
		event.Action,
		event.Timestamp,
		event.RequestID,
		event.Query,
		event.NormalizationVersion,
		int64(event.SnapshotVersion), //nolint:gosec // versions fit in int64
		event.Decision,
		event.RuleFired,
		event.RiskLevel,
		event.Route,
		pq.Array(entryIDs(event.EntryIDs)),
		event.Reason,
		event.DurationMS,
		payload,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByRequest returns the events recorded for requestID, oldest first.
func (s *Store) ListByRequest(ctx context.Context, requestID string) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`WHERE request_id = $1 ORDER BY timestamp ASC, id ASC`, requestID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListRecent returns the limit most recent events, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			event    audit.Event
			category string
			version  int64
			ids      pq.StringArray
			payload  []byte
		)
		err := rows.Scan(
			&event.ID,
			&category,
			&event.Action,
			&event.Timestamp,
			&event.RequestID,
			&event.Query,
			&event.NormalizationVersion,
			&version,
			&event.Decision,
			&event.RuleFired,
			&event.RiskLevel,
			&event.Route,
			&ids,
			&event.Reason,
			&event.DurationMS,
			&payload,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Category = audit.EventCategory(category)
		event.SnapshotVersion = uint64(version) //nolint:gosec // written from uint64
		event.Timestamp = event.Timestamp.UTC()
		if len(ids) > 0 {
			event.EntryIDs = []string(ids)
		}
		if len(payload) > 0 {
			event.Payload = payload
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func entryIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
