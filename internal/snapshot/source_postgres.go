package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"screener/pkg/platform/sentinel"
)

// Schema expected by PostgresSource; ingestion owns the writes.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS reference_snapshots (
	version      BIGINT PRIMARY KEY,
	published_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS reference_entries (
	snapshot_version BIGINT NOT NULL REFERENCES reference_snapshots(version),
	id               TEXT NOT NULL,
	names            TEXT[] NOT NULL,
	source           TEXT NOT NULL,
	program          TEXT NOT NULL DEFAULT '',
	date_added       DATE,
	PRIMARY KEY (snapshot_version, id)
);`

// PostgresSource reads the newest published snapshot from PostgreSQL.
type PostgresSource struct {
	pool *pgxpool.Pool
}

func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

func (s *PostgresSource) Name() string { return "postgres" }

func (s *PostgresSource) Load(ctx context.Context) (Document, error) {
	var version int64
	err := s.pool.QueryRow(ctx, `SELECT version FROM reference_snapshots ORDER BY version DESC LIMIT 1`).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, fmt.Errorf("no published snapshot: %w", sentinel.ErrNotFound)
		}
		return Document{}, fmt.Errorf("query snapshot version: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, names, source, program, date_added
		FROM reference_entries
		WHERE snapshot_version = $1
		ORDER BY id
	`, version)
	if err != nil {
		return Document{}, fmt.Errorf("query reference entries: %w", err)
	}
	defer rows.Close()

	doc := Document{Version: uint64(version)}
	for rows.Next() {
		var (
			raw   RawEntry
			added *time.Time
		)
		if err := rows.Scan(&raw.ID, &raw.Names, &raw.Source, &raw.Program, &added); err != nil {
			return Document{}, fmt.Errorf("scan reference entry: %w", err)
		}
		if added != nil {
			raw.DateAdded = added.Format(dateLayout)
		}
		doc.Entries = append(doc.Entries, raw)
	}
	if err := rows.Err(); err != nil {
		return Document{}, fmt.Errorf("iterate reference entries: %w", err)
	}
	return doc, nil
}
