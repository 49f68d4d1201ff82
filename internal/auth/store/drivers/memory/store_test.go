package memory_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/fapiauth/internal/auth/store"
	"github.com/aussiebroadwan/fapiauth/internal/auth/store/drivers/memory"
	"github.com/aussiebroadwan/fapiauth/internal/auth/store/storetest"
	"github.com/aussiebroadwan/fapiauth/pkg/clockx"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return memory.NewStore()
	})
}

func TestReplayCache(t *testing.T) {
	t.Parallel()

	clock := clockx.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	cache := memory.NewReplayCache(clock)
	ctx := t.Context()

	exp := clock.Now().Add(time.Minute)
	require.NoError(t, cache.Remember(ctx, "assertion:client-a:j1", exp))
	require.ErrorIs(t, cache.Remember(ctx, "assertion:client-a:j1", exp), store.ErrAlreadyUsed)
	require.NoError(t, cache.Remember(ctx, "assertion:client-b:j1", exp))

	clock.Advance(time.Minute)
	require.NoError(t, cache.Remember(ctx, "assertion:client-a:j1", clock.Now().Add(time.Minute)))

	n, err := cache.DeleteExpired(ctx, clock.Now(), 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
