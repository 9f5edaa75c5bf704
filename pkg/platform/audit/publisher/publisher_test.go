package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "screener/pkg/platform/audit"
	"screener/pkg/platform/audit/store/memory"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	event := audit.Event{
		RequestID: "req-1",
		Action:    string(audit.EventDecisionMade),
	}

	err := pub.Emit(context.Background(), event)
	require.NoError(t, err)

	events, err := pub.List(context.Background(), "req-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventDecisionMade), events[0].Action)
	assert.Equal(t, audit.CategoryCompliance, events[0].Category)
	assert.NotEqual(t, uuid.Nil, events[0].ID)
}

func TestPublisher_AsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(10))
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{
		RequestID: "req-2",
		Action:    string(audit.EventBatchScreened),
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		events, err := pub.List(context.Background(), "req-2")
		return err == nil && len(events) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	for range 10 {
		err := pub.Emit(context.Background(), audit.Event{
			RequestID: "req-3",
			Action:    string(audit.EventDecisionMade),
		})
		require.NoError(t, err)
	}

	require.NoError(t, pub.Close())

	events, err := store.ListByRequest(context.Background(), "req-3")
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")

	assert.ErrorIs(t, pub.Emit(context.Background(), audit.Event{Action: "late"}), ErrClosed)
}

func TestPublisher_BufferFull(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pub.Emit(context.Background(), audit.Event{Action: string(audit.EventDecisionMade)})
			if err != nil {
				assert.ErrorIs(t, err, ErrBufferFull)
			}
		}()
	}
	wg.Wait()
}

func TestPublisher_SetsTimestamp(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithClock(func() time.Time { return fixed }))
	defer pub.Close()

	require.NoError(t, pub.Emit(context.Background(), audit.Event{RequestID: "req-4", Action: "x"}))

	events, err := pub.List(context.Background(), "req-4")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, fixed, events[0].Timestamp)
	assert.Equal(t, audit.CategoryOperations, events[0].Category, "unknown actions are operational")
}

func TestPublisher_PreservesExistingTimestamp(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	customTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, pub.Emit(context.Background(), audit.Event{
		RequestID: "req-5",
		Action:    string(audit.EventDecisionMade),
		Timestamp: customTime,
	}))

	events, err := pub.List(context.Background(), "req-5")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, customTime, events[0].Timestamp)
}

type failingStore struct{}

func (failingStore) Append(context.Context, audit.Event) error { return errors.New("disk full") }

func TestPublisher_SyncSurfacesStoreErrors(t *testing.T) {
	pub := NewPublisher(failingStore{})
	defer pub.Close()

	err := pub.Emit(context.Background(), audit.Event{Action: string(audit.EventDecisionMade)})
	assert.ErrorContains(t, err, "disk full")

	_, err = pub.List(context.Background(), "any")
	assert.Error(t, err, "store without reader")
}

func TestPublisher_MultipleEventsKeepOrder(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	actions := []audit.AuditEvent{audit.EventDecisionMade, audit.EventCandidateScoringFailed, audit.EventBatchScreened}
	for _, a := range actions {
		require.NoError(t, pub.Emit(context.Background(), audit.Event{RequestID: "req-6", Action: string(a)}))
	}

	result, err := pub.List(context.Background(), "req-6")
	require.NoError(t, err)
	require.Len(t, result, 3)
	for i, a := range actions {
		assert.Equal(t, string(a), result[i].Action)
	}
}
