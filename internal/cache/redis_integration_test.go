//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screener/pkg/testutil/containers"
)

func TestRedisCache_RoundTrip(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	c := NewRedisCache(rc.Client, WithRedisTTL(time.Minute))
	key := Key(1, "fp", "v1", "osama bin laden")

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, key, sampleCandidates()))
	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleCandidates(), got)

	ttl, err := rc.Client.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)

	require.NoError(t, c.Put(ctx, "empty", nil))
	got, ok, err = c.Get(ctx, "empty")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, got)
}
