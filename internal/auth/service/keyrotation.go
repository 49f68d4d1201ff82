package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/fapiauth/internal/auth/metrics"
	"github.com/aussiebroadwan/fapiauth/pkg/clockx"
	"github.com/aussiebroadwan/fapiauth/pkg/jwtx"
	"github.com/aussiebroadwan/fapiauth/pkg/slogx"
	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
)

// Rotation triggers, as recorded in logs and metrics.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// scheduledRotationTries bounds retries of a scheduled rotation within one
// worker tick; the next tick tries again.
const scheduledRotationTries = 3

// KeyRotationService drives the signing key schedule.
type KeyRotationService struct {
	Keys    *jwtx.KeyManager
	Clock   clockx.Clock
	Metrics *metrics.Metrics

	// Interval is the age at which the current key is replaced. Zero
	// disables scheduled rotation.
	Interval time.Duration

	// RetryInitialInterval is the first backoff delay for a failed scheduled
	// rotation. Defaults to the backoff package default.
	RetryInitialInterval time.Duration
}

// Rotate replaces the current key now.
func (s *KeyRotationService) Rotate(ctx context.Context, trigger string) (r jwtx.Rotation, err error) {
	ctx, span := startSpan(ctx, "KeyRotationService.Rotate", attribute.String("rotation.trigger", trigger))
	defer func() {
		s.Metrics.KeyRotated(trigger, err == nil)
		endSpan(span, err)
	}()

	r, err = s.Keys.Rotate(ctx)
	if err != nil {
		return r, fmt.Errorf("rotate signing key: %w", err)
	}
	slogx.FromContext(ctx).Info("signing_key_rotated",
		slog.String("trigger", trigger),
		slog.String("previous_kid", r.PreviousKID),
		slog.String("current_kid", r.CurrentKID),
	)
	return r, nil
}

// NextRotation is when the current key becomes due, or zero when scheduled
// rotation is disabled or there is no key.
func (s *KeyRotationService) NextRotation() time.Time {
	created, ok := s.Keys.CurrentCreatedAt()
	if !ok || s.Interval <= 0 {
		return time.Time{}
	}
	return created.Add(s.Interval)
}

// RotateIfDue rotates when the current key has reached Interval, retrying a
// failed rotation with exponential backoff. It reports whether a rotation
// happened.
func (s *KeyRotationService) RotateIfDue(ctx context.Context) (bool, error) {
	next := s.NextRotation()
	if next.IsZero() || nowFrom(s.Clock).Before(next) {
		return false, nil
	}

	log := slogx.FromContext(ctx)
	expBackoff := backoff.NewExponentialBackOff()
	if s.RetryInitialInterval > 0 {
		expBackoff.InitialInterval = s.RetryInitialInterval
	}
	_, err := backoff.Retry(ctx, func() (jwtx.Rotation, error) {
		return s.Rotate(ctx, TriggerScheduled)
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(scheduledRotationTries),
		backoff.WithNotify(func(err error, d time.Duration) {
			log.Warn("signing_key_rotation_retry", slog.Any("error", err), slog.Duration("backoff", d))
		}),
	)
	if err != nil {
		return false, err
	}
	return true, nil
}

// PruneRetired drops the retiring key once its grace window has closed.
func (s *KeyRotationService) PruneRetired(ctx context.Context) error {
	pruned, err := s.Keys.PruneRetired(ctx)
	if err != nil {
		return err
	}
	if pruned {
		slogx.FromContext(ctx).Info("signing_key_pruned")
	}
	return nil
}
