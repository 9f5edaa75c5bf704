package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"screener/internal/domain"
	"screener/pkg/platform/circuit"
)

// RedisCache shares candidate lists across instances. Caching is optional:
// while the breaker is open every lookup misses and every write is skipped.
type RedisCache struct {
	client  redis.Cmdable
	ttl     time.Duration
	breaker *circuit.Breaker
	logger  *slog.Logger
}

type RedisOption func(*RedisCache)

func WithRedisTTL(d time.Duration) RedisOption {
	return func(c *RedisCache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) RedisOption {
	return func(c *RedisCache) {
		if b != nil {
			c.breaker = b
		}
	}
}

func WithRedisLogger(l *slog.Logger) RedisOption {
	return func(c *RedisCache) {
		c.logger = l
	}
}

func NewRedisCache(client redis.Cmdable, opts ...RedisOption) *RedisCache {
	c := &RedisCache{
		client:  client,
		ttl:     DefaultTTL,
		breaker: circuit.New("candidate-cache"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]domain.Candidate, bool, error) {
	if !c.breaker.Allow() {
		return nil, false, nil
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.recordSuccess(ctx)
		return nil, false, nil
	}
	if err != nil {
		c.recordFailure(ctx, err)
		return nil, false, fmt.Errorf("get cached candidates: %w", err)
	}
	c.recordSuccess(ctx)

	var candidates []domain.Candidate
	if err := json.Unmarshal(raw, &candidates); err != nil {
		return nil, false, fmt.Errorf("decode cached candidates: %w", err)
	}
	return candidates, true, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, candidates []domain.Candidate) error {
	if !c.breaker.Allow() {
		return nil
	}
	if candidates == nil {
		candidates = []domain.Candidate{}
	}
	raw, err := json.Marshal(candidates)
	if err != nil {
		return fmt.Errorf("encode candidates: %w", err)
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.recordFailure(ctx, err)
		return fmt.Errorf("set cached candidates: %w", err)
	}
	c.recordSuccess(ctx)
	return nil
}

func (c *RedisCache) recordFailure(ctx context.Context, err error) {
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.WarnContext(ctx, "candidate cache circuit opened", "breaker", c.breaker.Name(), "error", err)
	}
}

func (c *RedisCache) recordSuccess(ctx context.Context) {
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "candidate cache circuit closed", "breaker", c.breaker.Name())
	}
}
