//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "screener/pkg/platform/audit"
	"screener/pkg/testutil/containers"
)

func TestStore_AppendAndList(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	store := New(pg.DB)
	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	decision := audit.Event{
		ID:              uuid.New(),
		Action:          string(audit.EventDecisionMade),
		Timestamp:       base,
		RequestID:       "req-1",
		Query:           "osama bin laden",
		SnapshotVersion: 7,
		Decision:        "BLOCK",
		RuleFired:       "top-score-block",
		EntryIDs:        []string{"ofac-1", "un-2"},
		Payload:         json.RawMessage(`{"top_score":0.9067}`),
	}
	failure := audit.Event{
		ID:        uuid.New(),
		Action:    string(audit.EventCandidateScoringFailed),
		Timestamp: base.Add(time.Second),
		RequestID: "req-1",
		EntryIDs:  []string{"eu-9"},
		Reason:    "scoring panicked",
	}
	other := audit.Event{ID: uuid.New(), Action: string(audit.EventBatchScreened), Timestamp: base.Add(2 * time.Second)}

	for _, e := range []audit.Event{decision, failure, other} {
		require.NoError(t, store.Append(ctx, e))
	}
	require.NoError(t, store.Append(ctx, decision), "duplicate ids are ignored")

	events, err := store.ListByRequest(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, decision.ID, events[0].ID)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
	assert.Equal(t, uint64(7), events[0].SnapshotVersion)
	assert.Equal(t, []string{"ofac-1", "un-2"}, events[0].EntryIDs)
	assert.JSONEq(t, `{"top_score":0.9067}`, string(events[0].Payload))
	assert.Equal(t, audit.CategoryOperations, events[1].Category)

	recent, err := store.ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, other.ID, recent[0].ID)
	assert.Empty(t, recent[0].EntryIDs)
}
