package redis_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/fapiauth/internal/auth/store"
	"github.com/aussiebroadwan/fapiauth/internal/auth/store/drivers/redis"
	"github.com/aussiebroadwan/fapiauth/pkg/clockx"
)

func TestReplayCache(t *testing.T) {
	mr := miniredis.RunT(t)
	clock := clockx.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	rdb, err := redis.Dial(t.Context(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	cache := redis.NewReplayCache(rdb, clock)
	ctx := t.Context()

	require.NoError(t, cache.Ping(ctx))
	require.NoError(t, cache.Remember(ctx, "dpop:jti-1", clock.Now().Add(time.Minute)))
	require.ErrorIs(t, cache.Remember(ctx, "dpop:jti-1", clock.Now().Add(time.Minute)), store.ErrAlreadyUsed)

	require.Equal(t, time.Minute, mr.TTL("fapiauth:replay:dpop:jti-1"))

	// Redis expiry frees the key again.
	mr.FastForward(time.Minute)
	require.NoError(t, cache.Remember(ctx, "dpop:jti-1", clock.Now().Add(time.Minute)))
}

func TestReplayCache_PastExpiryStillRecorded(t *testing.T) {
	mr := miniredis.RunT(t)
	clock := clockx.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	cache := redis.NewReplayCache(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), clock)
	require.NoError(t, cache.Remember(t.Context(), "k", clock.Now().Add(-time.Second)))
	require.True(t, mr.Exists("fapiauth:replay:k"))
}

func TestDial_Unreachable(t *testing.T) {
	_, err := redis.Dial(t.Context(), "redis://127.0.0.1:1/0")
	require.Error(t, err)

	_, err = redis.Dial(t.Context(), "not a url")
	require.Error(t, err)
}
