package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/fapiauth/internal/auth/domain"
	"github.com/aussiebroadwan/fapiauth/internal/auth/metrics"
	"github.com/aussiebroadwan/fapiauth/internal/auth/store"
	"github.com/aussiebroadwan/fapiauth/pkg/clockx"
	"github.com/aussiebroadwan/fapiauth/pkg/slogx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// RequestURIPrefix prefixes every request_uri issued by /par.
const RequestURIPrefix = "urn:ietf:params:oauth:request_uri:"

// PARService stores pushed authorization requests for single use.
type PARService struct {
	Store   store.Store
	Clock   clockx.Clock
	Metrics *metrics.Metrics

	// TTL defaults to domain.PushedRequestTTL.
	TTL time.Duration
}

// PushResult is returned to the client by /par.
type PushResult struct {
	RequestURI string
	ExpiresIn  time.Duration
}

// Push validates req for the authenticated client and stores it.
func (s *PARService) Push(ctx context.Context, client ClientIdentity, req AuthorizationRequest) (res PushResult, err error) {
	ctx, span := startSpan(ctx, "PARService.Push", attribute.String("client.id", client.ClientID))
	defer func() {
		s.Metrics.PushedRequest(err == nil)
		endSpan(span, err)
	}()

	if req.RequestURI != "" {
		return PushResult{}, withDetail(ErrInvalidRequest, "request_uri is not allowed in a pushed request")
	}
	if req.ClientID != "" && req.ClientID != client.ClientID {
		return PushResult{}, withDetail(ErrInvalidRequest, "client_id does not match the authenticated client")
	}
	if req.RedirectURI == "" {
		return PushResult{}, withDetail(ErrInvalidRequest, "redirect_uri is required")
	}
	if !client.Client.HasRedirectURI(req.RedirectURI) {
		return PushResult{}, withDetail(ErrInvalidRequest, "redirect_uri is not registered")
	}

	params, err := validateParams(client.Client, req)
	if err != nil {
		return PushResult{}, err
	}

	ttl := s.TTL
	if ttl <= 0 {
		ttl = domain.PushedRequestTTL
	}
	now := nowFrom(s.Clock)
	par := domain.PushedAuthorizationRequest{
		ID:                  uuid.NewString(),
		AuthorizationParams: params,
		ExpiresAt:           now.Add(ttl),
		CreatedAt:           now,
	}
	if err := s.Store.PushedRequests().CreatePushedRequest(ctx, par); err != nil {
		return PushResult{}, fmt.Errorf("store pushed request: %w", err)
	}

	slogx.FromContext(ctx).Info("pushed_request_created",
		slog.String("client_id", client.ClientID),
		slog.Time("expires_at", par.ExpiresAt),
	)
	return PushResult{RequestURI: RequestURIPrefix + par.ID, ExpiresIn: ttl}, nil
}

// Consume redeems a request_uri. It succeeds at most once; unknown, expired
// and used references all fail with ErrInvalidRequestURI. A non-empty
// clientID must match the pushing client, and a mismatch leaves the
// request unconsumed.
func (s *PARService) Consume(ctx context.Context, requestURI, clientID string) (par domain.PushedAuthorizationRequest, err error) {
	ctx, span := startSpan(ctx, "PARService.Consume")
	defer func() { endSpan(span, err) }()

	id, ok := strings.CutPrefix(requestURI, RequestURIPrefix)
	if !ok || id == "" {
		return par, withDetail(ErrInvalidRequestURI, "request_uri is malformed")
	}

	var consumeErr error
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		par, consumeErr = tx.PushedRequests().ConsumePushedRequest(ctx, id, nowFrom(s.Clock))
		if consumeErr == nil && clientID != "" && par.ClientID != clientID {
			return withDetail(ErrInvalidRequest, "client_id does not match the pushed request")
		}
		return nil
	})
	if err != nil {
		return domain.PushedAuthorizationRequest{}, err
	}

	switch {
	case consumeErr == nil:
		return par, nil
	case errors.Is(consumeErr, store.ErrAlreadyUsed):
		slogx.FromContext(ctx).Warn("pushed_request_replayed", slog.String("request_id", id))
		return domain.PushedAuthorizationRequest{}, withDetail(ErrInvalidRequestURI, "request_uri was already used")
	case errors.Is(consumeErr, store.ErrNotFound), errors.Is(consumeErr, store.ErrExpired):
		return domain.PushedAuthorizationRequest{}, withDetail(ErrInvalidRequestURI, "request_uri is unknown or expired")
	default:
		return domain.PushedAuthorizationRequest{}, fmt.Errorf("consume pushed request: %w", consumeErr)
	}
}
