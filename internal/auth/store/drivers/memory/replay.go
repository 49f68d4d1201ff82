package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aussiebroadwan/fapiauth/internal/auth/store"
	"github.com/aussiebroadwan/fapiauth/pkg/clockx"
)

// ReplayCache is an in-process store.ReplayCache.
type ReplayCache struct {
	mu    sync.Mutex
	seen  map[string]time.Time
	clock clockx.Clock
}

var _ store.ReplayCache = (*ReplayCache)(nil)

// NewReplayCache returns an empty in-process replay cache.
func NewReplayCache(clock clockx.Clock) *ReplayCache {
	if clock == nil {
		clock = clockx.Real()
	}
	return &ReplayCache{seen: make(map[string]time.Time), clock: clock}
}

func (c *ReplayCache) Remember(ctx context.Context, key string, expiresAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if exp, ok := c.seen[key]; ok && c.clock.Now().Before(exp) {
		return store.ErrAlreadyUsed
	}
	c.seen[key] = expiresAt
	return nil
}

func (c *ReplayCache) DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, exp := range c.seen {
		if limit > 0 && n >= limit {
			break
		}
		if !now.Before(exp) {
			delete(c.seen, k)
			n++
		}
	}
	return n, nil
}

func (c *ReplayCache) Ping(ctx context.Context) error { return nil }
