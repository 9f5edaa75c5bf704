package cache

import (
	"context"
	"slices"
	"sync"
	"time"

	"screener/internal/domain"
)

const (
	DefaultCapacity = 10_000
	DefaultTTL      = 10 * time.Minute
)

type memoryItem struct {
	candidates []domain.Candidate
	expiresAt  time.Time
}

// MemoryCache is a bounded in-process cache with TTL and FIFO eviction.
type MemoryCache struct {
	mu       sync.Mutex
	items    map[string]memoryItem
	order    []string
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

type MemoryOption func(*MemoryCache)

func WithCapacity(n int) MemoryOption {
	return func(c *MemoryCache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

func WithTTL(d time.Duration) MemoryOption {
	return func(c *MemoryCache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCache) {
		if now != nil {
			c.now = now
		}
	}
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		items:    make(map[string]memoryItem),
		capacity: DefaultCapacity,
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]domain.Candidate, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(item.expiresAt) {
		c.remove(key)
		return nil, false, nil
	}
	return cloneCandidates(item.candidates), true, nil
}

func (c *MemoryCache) Put(_ context.Context, key string, candidates []domain.Candidate) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists {
		c.order = append(c.order, key)
	}
	c.items[key] = memoryItem{candidates: cloneCandidates(candidates), expiresAt: c.now().Add(c.ttl)}

	for len(c.items) > c.capacity && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.items, oldest)
	}
	return nil
}

// remove drops key from both the map and the eviction queue, so order always
// holds exactly the stored keys.
func (c *MemoryCache) remove(key string) {
	delete(c.items, key)
	if i := slices.Index(c.order, key); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func cloneCandidates(in []domain.Candidate) []domain.Candidate {
	out := make([]domain.Candidate, len(in))
	for i, c := range in {
		c.Scores = slices.Clone(c.Scores)
		out[i] = c
	}
	return out
}
