package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/fapiauth/internal/auth/metrics"
	"github.com/aussiebroadwan/fapiauth/internal/auth/store"
	"github.com/aussiebroadwan/fapiauth/pkg/clockx"
	"github.com/aussiebroadwan/fapiauth/pkg/worker"
)

// Housekeeping defaults.
const (
	DefaultHousekeepingInterval = 5 * time.Minute
	DefaultHousekeepingBatch    = 500
	DefaultKeyCheckInterval     = time.Minute
)

// Artifact kinds swept by housekeeping.
const (
	SweepPushedRequests = "pushed_requests"
	SweepCodes          = "authorization_codes"
	SweepAccessTokens   = "access_tokens"
	SweepRefreshTokens  = "refresh_tokens"
	SweepReplay         = "replay"
)

// HousekeepingService removes expired artifacts and keeps the signing key
// schedule moving.
type HousekeepingService struct {
	Store    store.Store
	Replay   store.ReplayCache
	Rotation *KeyRotationService
	Clock    clockx.Clock
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	Interval         time.Duration
	KeyCheckInterval time.Duration
	BatchSize        int
}

type sweeper struct {
	kind string
	fn   func(ctx context.Context, now time.Time, limit int) (int, error)
}

func (s *HousekeepingService) sweepers() []sweeper {
	return []sweeper{
		{SweepPushedRequests, s.Store.PushedRequests().DeleteExpiredPushedRequests},
		{SweepCodes, s.Store.AuthorizationCodes().DeleteExpiredAuthorizationCodes},
		{SweepAccessTokens, s.Store.AccessTokens().DeleteExpiredAccessTokens},
		{SweepRefreshTokens, s.Store.RefreshTokens().DeleteExpiredRefreshTokens},
		{SweepReplay, s.Replay.DeleteExpired},
	}
}

// Sweep deletes every expired artifact in batches. A failure in one kind does
// not stop the others; the joined error is returned.
func (s *HousekeepingService) Sweep(ctx context.Context) error {
	var errs []error
	for _, sw := range s.sweepers() {
		errs = append(errs, s.sweepKind(ctx, sw))
	}
	return errors.Join(errs...)
}

func (s *HousekeepingService) sweepKind(ctx context.Context, sw sweeper) error {
	batch := s.BatchSize
	if batch <= 0 {
		batch = DefaultHousekeepingBatch
	}
	n, err := sweepAll(ctx, sw.fn, nowFrom(s.Clock), batch)
	s.Metrics.Swept(sw.kind, n)
	if err != nil {
		return fmt.Errorf("sweep %s: %w", sw.kind, err)
	}
	if n > 0 {
		s.logger().Info("housekeeping cleanup completed", "kind", sw.kind, "deleted", n)
	}
	return nil
}

func sweepAll(ctx context.Context, fn func(context.Context, time.Time, int) (int, error), now time.Time, batch int) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := fn(ctx, now, batch)
		total += n
		if err != nil || n < batch {
			return total, err
		}
	}
}

// CheckKeys rotates a due signing key and prunes an expired retiring key.
func (s *HousekeepingService) CheckKeys(ctx context.Context) error {
	if s.Rotation == nil {
		return nil
	}
	if _, err := s.Rotation.RotateIfDue(ctx); err != nil {
		return err
	}
	return s.Rotation.PruneRetired(ctx)
}

// Workers returns one background worker per artifact kind plus the key
// rotation and pruning workers. Start and stop them through the group.
func (s *HousekeepingService) Workers() worker.Group {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultHousekeepingInterval
	}
	keyInterval := s.KeyCheckInterval
	if keyInterval <= 0 {
		keyInterval = DefaultKeyCheckInterval
	}

	var group worker.Group
	add := func(name string, every time.Duration, task worker.Task) {
		p := worker.NewPeriodic(name, every, task, s.logger())
		if s.Clock != nil {
			p.Clock = s.Clock
		}
		group = append(group, p)
	}

	for _, sw := range s.sweepers() {
		add("sweep-"+sw.kind, interval, func(ctx context.Context) error {
			return s.sweepKind(ctx, sw)
		})
	}
	if s.Rotation != nil {
		add("key-rotation", keyInterval, func(ctx context.Context) error {
			_, err := s.Rotation.RotateIfDue(ctx)
			return err
		})
		add("key-prune", keyInterval, s.Rotation.PruneRetired)
	}
	return group
}

func (s *HousekeepingService) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
