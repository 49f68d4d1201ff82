package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/aussiebroadwan/fapiauth/internal/auth/domain"
	"github.com/aussiebroadwan/fapiauth/internal/auth/store"
	"github.com/aussiebroadwan/fapiauth/pkg/clockx"
	"github.com/aussiebroadwan/fapiauth/pkg/jwtx"
	"go.opentelemetry.io/otel/attribute"
)

// AccessTokenValidator checks access tokens presented to this server: the
// JWT itself, then the issuance record that revocation acts on.
type AccessTokenValidator struct {
	Store    store.Store
	Verifier *jwtx.Verifier
	DPoP     *DPoPVerifier
	Clock    clockx.Clock
}

// Lookup returns the claims of an active token. Anything else, including a
// revoked or expired token, is ErrInvalidToken.
func (v *AccessTokenValidator) Lookup(ctx context.Context, token string) (*jwtx.AccessClaims, error) {
	claims, err := v.Verifier.VerifyAccessToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", withDetail(ErrInvalidToken, "access token is invalid"), err)
	}
	rec, err := v.Store.AccessTokens().GetAccessToken(ctx, claims.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, withDetail(ErrInvalidToken, "access token is unknown")
	}
	if err != nil {
		return nil, fmt.Errorf("load access token: %w", err)
	}
	if !rec.IsActive(nowFrom(v.Clock)) {
		return nil, withDetail(ErrInvalidToken, "access token is no longer active")
	}
	return claims, nil
}

// ProtectedRequest is a request to a resource served by this server.
type ProtectedRequest struct {
	// Scheme is the Authorization scheme, Bearer or DPoP.
	Scheme    string
	Token     string
	DPoPProof string
	Method    string
	Path      string
}

// Validate authorises a protected request. DPoP-bound tokens must arrive
// under the DPoP scheme with a proof from the bound key.
func (v *AccessTokenValidator) Validate(ctx context.Context, req ProtectedRequest) (claims *jwtx.AccessClaims, err error) {
	ctx, span := startSpan(ctx, "AccessTokenValidator.Validate", attribute.String("auth.scheme", req.Scheme))
	defer func() { endSpan(span, err) }()

	if req.Token == "" {
		return nil, withDetail(ErrInvalidToken, "access token is required")
	}
	claims, err = v.Lookup(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	jkt := claims.JKT()
	switch req.Scheme {
	case domain.TokenTypeBearer:
		if jkt != "" {
			return nil, withDetail(ErrInvalidToken, "DPoP-bound token presented as a bearer token")
		}
	case domain.TokenTypeDPoP:
		if jkt == "" {
			return nil, withDetail(ErrInvalidToken, "token is not DPoP-bound")
		}
		if req.DPoPProof == "" {
			return nil, withDetail(ErrInvalidDPoPProof, "DPoP proof is required")
		}
		proof, err := v.DPoP.Verify(ctx, req.DPoPProof, req.Method, req.Path, req.Token)
		if err != nil {
			return nil, err
		}
		if proof.JKT != jkt {
			return nil, withDetail(ErrInvalidToken, "DPoP key does not match the token binding")
		}
	default:
		return nil, withDetail(ErrInvalidToken, "unsupported authorization scheme")
	}

	span.SetAttributes(attribute.String("client.id", claims.ClientID))
	return claims, nil
}

// Introspection is the outcome of introspecting a token. Claims is nil when
// the token is inactive.
type Introspection struct {
	Active bool
	Claims *jwtx.AccessClaims
}

// TokenType is the token_type reported for an active token.
func (i Introspection) TokenType() string {
	if i.Claims != nil && i.Claims.JKT() != "" {
		return domain.TokenTypeDPoP
	}
	return domain.TokenTypeBearer
}

// Introspect reports whether token is active (RFC 7662). Invalid tokens are
// not errors; only storage failures are.
func (v *AccessTokenValidator) Introspect(ctx context.Context, token string) (res Introspection, err error) {
	ctx, span := startSpan(ctx, "AccessTokenValidator.Introspect")
	defer func() { endSpan(span, err) }()

	if token == "" {
		return res, withDetail(ErrInvalidRequest, "token is required")
	}
	claims, err := v.Lookup(ctx, token)
	if errors.Is(err, ErrInvalidToken) {
		span.SetAttributes(attribute.Bool("token.active", false))
		return Introspection{}, nil
	}
	if err != nil {
		return res, err
	}
	span.SetAttributes(attribute.Bool("token.active", true))
	return Introspection{Active: true, Claims: claims}, nil
}

// UserInfo is the subset of OpenID claims this server can assert.
type UserInfo struct {
	Subject           string
	PreferredUsername string
	Name              string
}

// UserInfoFor builds the userinfo response for a validated token. The
// profile claims are only released with the profile scope.
func UserInfoFor(claims *jwtx.AccessClaims) (UserInfo, error) {
	scopes := claims.Scopes()
	openid := slices.Contains(scopes, ScopeOpenID)
	profile := slices.Contains(scopes, ScopeProfile)
	if !openid && !profile {
		return UserInfo{}, withDetail(ErrInsufficientScope, "openid or profile scope required")
	}
	info := UserInfo{Subject: claims.Subject}
	if profile {
		info.PreferredUsername = claims.Subject
		info.Name = claims.Subject
	}
	return info, nil
}
