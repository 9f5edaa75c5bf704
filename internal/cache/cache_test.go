package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screener/internal/domain"
	"screener/pkg/platform/circuit"
)

func sampleCandidates() []domain.Candidate {
	return []domain.Candidate{{
		EntryID:        "ofac-1",
		Source:         domain.SourceOFAC,
		MatchedAlias:   "usama bin ladin",
		AggregateScore: 0.9067,
		Scores:         []domain.SimilarityScore{{Algorithm: domain.AlgorithmPhonetic, Value: 1}},
	}}
}

func TestKey(t *testing.T) {
	base := Key(1, "fp", "v1", "osama bin laden")
	assert.Equal(t, base, Key(1, "fp", "v1", "osama bin laden"))
	assert.NotEqual(t, base, Key(2, "fp", "v1", "osama bin laden"), "snapshot version")
	assert.NotEqual(t, base, Key(1, "fp2", "v1", "osama bin laden"), "matcher config")
	assert.NotEqual(t, base, Key(1, "fp", "v2", "osama bin laden"), "normalization version")
	assert.NotEqual(t, Key(1, "ab", "c", "q"), Key(1, "a", "bc", "q"), "components are delimited")
	assert.Contains(t, base, keyPrefix)
}

func TestMemoryCache_GetPut(t *testing.T) {
	now := time.Unix(0, 0)
	c := NewMemoryCache(WithTTL(time.Minute), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	in := sampleCandidates()
	require.NoError(t, c.Put(ctx, "k", in))
	in[0].Scores[0].Value = 0

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1.0, got[0].Scores[0].Value, "stored value is isolated from the caller")

	now = now.Add(time.Minute)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok, "expired")
}

func TestMemoryCache_EvictsOldestFirst(t *testing.T) {
	c := NewMemoryCache(WithCapacity(2))
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "a", nil))
	require.NoError(t, c.Put(ctx, "b", nil))
	require.NoError(t, c.Put(ctx, "c", nil))

	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestMemoryCache_ExpiredKeyLeavesEvictionQueue(t *testing.T) {
	now := time.Unix(0, 0)
	c := NewMemoryCache(WithCapacity(2), WithTTL(time.Minute), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "a", sampleCandidates()))
	now = now.Add(time.Minute)
	_, ok, _ := c.Get(ctx, "a")
	require.False(t, ok)

	require.NoError(t, c.Put(ctx, "b", nil))
	require.NoError(t, c.Put(ctx, "a", sampleCandidates()))
	require.NoError(t, c.Put(ctx, "c", nil))

	_, ok, _ = c.Get(ctx, "a")
	assert.True(t, ok, "the rewritten key is the newest, not the oldest")
	_, ok, _ = c.Get(ctx, "b")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestRedisCache_FailsOpenWhenUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	breaker := circuit.New("candidate-cache", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	c := NewRedisCache(client, WithBreaker(breaker), WithRedisLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "k")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, c.Put(ctx, "k", sampleCandidates()))
	assert.True(t, breaker.IsOpen())

	_, ok, err = c.Get(ctx, "k")
	assert.NoError(t, err, "open circuit turns lookups into misses")
	assert.False(t, ok)
	assert.NoError(t, c.Put(ctx, "k", sampleCandidates()), "open circuit skips writes")
}
