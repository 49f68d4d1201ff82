// Package redis backs the replay cache with Redis so several server
// instances share one view of spent assertion and DPoP identifiers.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/fapiauth/internal/auth/store"
	"github.com/aussiebroadwan/fapiauth/pkg/clockx"
)

const keyPrefix = "fapiauth:replay:"

// ReplayCache is a store.ReplayCache using SET NX PX.
type ReplayCache struct {
	rdb   goredis.UniversalClient
	clock clockx.Clock
}

var _ store.ReplayCache = (*ReplayCache)(nil)

// NewReplayCache returns a replay cache storing keys in rdb.
func NewReplayCache(rdb goredis.UniversalClient, clock clockx.Clock) *ReplayCache {
	if clock == nil {
		clock = clockx.Real()
	}
	return &ReplayCache{rdb: rdb, clock: clock}
}

// Dial connects to a redis:// URL and checks the connection.
func Dial(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}
	return rdb, nil
}

func (c *ReplayCache) Remember(ctx context.Context, key string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(c.clock.Now())
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}

	ok, err := c.rdb.SetNX(ctx, keyPrefix+key, 1, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis: remember: %w", err)
	}
	if !ok {
		return store.ErrAlreadyUsed
	}
	return nil
}

// DeleteExpired is a no-op; Redis expires keys itself.
func (c *ReplayCache) DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	return 0, nil
}

func (c *ReplayCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
