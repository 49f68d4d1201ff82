package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/aussiebroadwan/fapiauth/internal/auth/directory"
	"github.com/aussiebroadwan/fapiauth/internal/auth/domain"
	"github.com/aussiebroadwan/fapiauth/internal/auth/store"
	"github.com/aussiebroadwan/fapiauth/pkg/clockx"
	"github.com/aussiebroadwan/fapiauth/pkg/cryptox"
	"github.com/aussiebroadwan/fapiauth/pkg/slogx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// AuthorizeService issues authorization codes for pushed or inline
// requests. The end user is already authenticated upstream.
type AuthorizeService struct {
	Store     store.Store
	Directory *directory.Directory
	PAR       *PARService
	Clock     clockx.Clock

	// Issuer is echoed as the iss response parameter (RFC 9207).
	Issuer string

	// CodeTTL defaults to domain.AuthorizationCodeTTL.
	CodeTTL time.Duration
}

// AuthorizeRequest is an /authorize call. Subject is the end user named by
// the upstream login component; when empty a per-client placeholder is used.
type AuthorizeRequest struct {
	AuthorizationRequest
	Subject string
}

// AuthorizeResult is a successful authorization, delivered by redirect.
type AuthorizeResult struct {
	RedirectURI string
	Code        string
	State       string
	Issuer      string
}

// Location builds the redirect target carrying code, state and iss.
func (r AuthorizeResult) Location() string {
	q := url.Values{}
	q.Set("code", r.Code)
	if r.State != "" {
		q.Set("state", r.State)
	}
	if r.Issuer != "" {
		q.Set("iss", r.Issuer)
	}
	return appendQuery(r.RedirectURI, q)
}

// RedirectError is an authorization failure that happened after the
// redirect URI was established, so it is reported to the client by
// redirect rather than to the user agent.
type RedirectError struct {
	RedirectURI string
	State       string
	Issuer      string
	Err         error
}

func (e *RedirectError) Error() string { return "authorize: " + e.Err.Error() }
func (e *RedirectError) Unwrap() error { return e.Err }

// Location builds the redirect target. code is the OAuth error code the
// caller derived from Err.
func (e *RedirectError) Location(code, description string) string {
	q := url.Values{}
	q.Set("error", code)
	if description != "" {
		q.Set("error_description", description)
	}
	if e.State != "" {
		q.Set("state", e.State)
	}
	if e.Issuer != "" {
		q.Set("iss", e.Issuer)
	}
	return appendQuery(e.RedirectURI, q)
}

func appendQuery(base string, q url.Values) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	existing := u.Query()
	for k, vs := range q {
		for _, v := range vs {
			existing.Add(k, v)
		}
	}
	u.RawQuery = existing.Encode()
	return u.String()
}

// Authorize resolves req, inline or through its request_uri, and issues a
// code. Errors before the redirect URI is known are returned bare; later
// ones are wrapped in *RedirectError.
func (s *AuthorizeService) Authorize(ctx context.Context, req AuthorizeRequest) (res *AuthorizeResult, err error) {
	ctx, span := startSpan(ctx, "AuthorizeService.Authorize",
		attribute.String("client.id", req.ClientID),
		attribute.Bool("authorize.pushed", req.RequestURI != ""),
	)
	defer func() { endSpan(span, err) }()

	var (
		client domain.Client
		params domain.AuthorizationParams
	)
	if req.RequestURI != "" {
		client, params, err = s.resolvePushed(ctx, req)
	} else {
		client, params, err = s.resolveInline(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	subject := req.Subject
	if subject == "" {
		subject = "user_" + client.ID
	}

	code, err := s.issueCode(ctx, subject, params)
	if err != nil {
		return nil, err
	}

	slogx.FromContext(ctx).Info("authorization_code_issued",
		slog.String("client_id", client.ID),
		slog.Bool("pushed", req.RequestURI != ""),
	)
	return &AuthorizeResult{
		RedirectURI: params.RedirectURI,
		Code:        code,
		State:       params.State,
		Issuer:      s.Issuer,
	}, nil
}

func (s *AuthorizeService) resolvePushed(ctx context.Context, req AuthorizeRequest) (domain.Client, domain.AuthorizationParams, error) {
	par, err := s.PAR.Consume(ctx, req.RequestURI, req.ClientID)
	if err != nil {
		return domain.Client{}, domain.AuthorizationParams{}, err
	}

	client, err := s.Directory.Client(ctx, par.ClientID)
	if err != nil {
		return domain.Client{}, domain.AuthorizationParams{}, s.clientError(err)
	}
	if !client.HasRedirectURI(par.RedirectURI) {
		return domain.Client{}, domain.AuthorizationParams{}, withDetail(ErrInvalidRequest, "redirect_uri is no longer registered")
	}

	params := par.AuthorizationParams
	if req.State != "" {
		params.State = req.State
	}
	if !client.IsActive() {
		return domain.Client{}, domain.AuthorizationParams{}, s.redirectError(params, withDetail(ErrUnauthorizedClient, "client is %s", client.Status))
	}
	return client, params, nil
}

func (s *AuthorizeService) resolveInline(ctx context.Context, req AuthorizeRequest) (domain.Client, domain.AuthorizationParams, error) {
	if req.ClientID == "" {
		return domain.Client{}, domain.AuthorizationParams{}, withDetail(ErrInvalidRequest, "client_id is required")
	}
	client, err := s.Directory.Client(ctx, req.ClientID)
	if err != nil {
		return domain.Client{}, domain.AuthorizationParams{}, s.clientError(err)
	}
	if req.RedirectURI == "" {
		return domain.Client{}, domain.AuthorizationParams{}, withDetail(ErrInvalidRequest, "redirect_uri is required")
	}
	if !client.HasRedirectURI(req.RedirectURI) {
		return domain.Client{}, domain.AuthorizationParams{}, withDetail(ErrInvalidRequest, "redirect_uri is not registered")
	}

	known := domain.AuthorizationParams{RedirectURI: req.RedirectURI, State: req.State}
	if !client.IsActive() {
		return domain.Client{}, domain.AuthorizationParams{}, s.redirectError(known, withDetail(ErrUnauthorizedClient, "client is %s", client.Status))
	}
	if client.RequirePAR {
		return domain.Client{}, domain.AuthorizationParams{}, s.redirectError(known, withDetail(ErrInvalidRequest, "pushed authorization request required"))
	}
	if req.State == "" {
		return domain.Client{}, domain.AuthorizationParams{}, s.redirectError(known, withDetail(ErrInvalidRequest, "state is required"))
	}

	params, err := validateParams(client, req.AuthorizationRequest)
	if err != nil {
		return domain.Client{}, domain.AuthorizationParams{}, s.redirectError(known, err)
	}
	return client, params, nil
}

func (s *AuthorizeService) clientError(err error) error {
	if errors.Is(err, directory.ErrUnknownClient) {
		return withDetail(ErrInvalidClient, "unknown client")
	}
	return err
}

func (s *AuthorizeService) redirectError(params domain.AuthorizationParams, err error) error {
	return &RedirectError{
		RedirectURI: params.RedirectURI,
		State:       params.State,
		Issuer:      s.Issuer,
		Err:         err,
	}
}

func (s *AuthorizeService) issueCode(ctx context.Context, subject string, params domain.AuthorizationParams) (string, error) {
	code, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	ttl := s.CodeTTL
	if ttl <= 0 {
		ttl = domain.AuthorizationCodeTTL
	}
	now := nowFrom(s.Clock)
	record := domain.AuthorizationCode{
		ID:                  uuid.NewString(),
		CodeHash:            cryptox.FingerprintToken(code),
		GrantID:             uuid.NewString(),
		ClientID:            params.ClientID,
		Subject:             subject,
		RedirectURI:         params.RedirectURI,
		Scopes:              params.Scopes,
		CodeChallenge:       params.CodeChallenge,
		CodeChallengeMethod: params.CodeChallengeMethod,
		Nonce:               params.Nonce,
		Purpose:             params.Purpose,
		Claims:              params.Claims,
		AuthTime:            now,
		ExpiresAt:           now.Add(ttl),
		CreatedAt:           now,
	}
	if err := s.Store.AuthorizationCodes().CreateAuthorizationCode(ctx, record); err != nil {
		return "", fmt.Errorf("store authorization code: %w", err)
	}
	return code, nil
}
