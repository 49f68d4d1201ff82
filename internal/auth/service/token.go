package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/fapiauth/internal/auth/domain"
	"github.com/aussiebroadwan/fapiauth/internal/auth/metrics"
	"github.com/aussiebroadwan/fapiauth/internal/auth/store"
	"github.com/aussiebroadwan/fapiauth/pkg/clockx"
	"github.com/aussiebroadwan/fapiauth/pkg/cryptox"
	"github.com/aussiebroadwan/fapiauth/pkg/jwtx"
	"github.com/aussiebroadwan/fapiauth/pkg/slogx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Grant types accepted by the token endpoint.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
)

// TokenPath is the path DPoP proofs for the token endpoint must name.
const TokenPath = "/token"

// TokenService exchanges authorization codes and refresh tokens.
type TokenService struct {
	Store   store.Store
	Keys    *jwtx.KeyManager
	DPoP    *DPoPVerifier
	Clock   clockx.Clock
	Metrics *metrics.Metrics
	Issuer  string

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	IDTokenTTL time.Duration
}

// CodeGrant is a grant_type=authorization_code request.
type CodeGrant struct {
	Code         string
	RedirectURI  string
	CodeVerifier string
	DPoPProof    string
}

// RefreshGrant is a grant_type=refresh_token request. Scope may narrow the
// original grant.
type RefreshGrant struct {
	RefreshToken string
	Scope        string
	DPoPProof    string
}

// ExchangeCode redeems a code for the authenticated client. A replayed code
// revokes every token issued from its grant.
func (s *TokenService) ExchangeCode(ctx context.Context, client ClientIdentity, g CodeGrant) (set domain.TokenSet, err error) {
	ctx, span := startSpan(ctx, "TokenService.ExchangeCode", attribute.String("client.id", client.ClientID))
	defer func() {
		s.observe(GrantTypeAuthorizationCode, set, err)
		endSpan(span, err)
	}()

	if g.Code == "" {
		return set, withDetail(ErrInvalidRequest, "code is required")
	}
	if g.RedirectURI == "" {
		return set, withDetail(ErrInvalidRequest, "redirect_uri is required")
	}
	if g.CodeVerifier == "" {
		return set, withDetail(ErrInvalidRequest, "code_verifier is required")
	}

	var jkt string
	if g.DPoPProof != "" {
		proof, err := s.DPoP.Verify(ctx, g.DPoPProof, "POST", TokenPath, "")
		if err != nil {
			return set, err
		}
		jkt = proof.JKT
	}

	// Consume and mint share one transaction, so a replay always sees the
	// tokens of its grant. Rejections commit the consumed code.
	var (
		code    domain.AuthorizationCode
		failure error
	)
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		code, err = tx.AuthorizationCodes().ConsumeAuthorizationCode(ctx, cryptox.FingerprintToken(g.Code), nowFrom(s.Clock))
		switch {
		case err == nil:
		case errors.Is(err, store.ErrAlreadyUsed):
			failure = withDetail(ErrInvalidGrant, "authorization code already used")
			return s.revokeGrant(ctx, tx, code)
		case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrExpired):
			failure = withDetail(ErrInvalidGrant, "authorization code is invalid or expired")
			return nil
		default:
			return fmt.Errorf("consume authorization code: %w", err)
		}

		if failure = checkCodeBinding(code, client, g); failure != nil {
			return nil
		}

		set, err = s.mint(ctx, tx, issueParams{
			GrantID:  code.GrantID,
			ClientID: code.ClientID,
			Subject:  code.Subject,
			Scopes:   code.Scopes,
			Purpose:  code.Purpose,
			Nonce:    code.Nonce,
			AuthTime: code.AuthTime,
			JKT:      jkt,
			IDToken:  slices.Contains(code.Scopes, ScopeOpenID),
		})
		return err
	})
	if err != nil {
		return domain.TokenSet{}, err
	}
	if failure != nil {
		return domain.TokenSet{}, failure
	}

	slogx.FromContext(ctx).Info("tokens_issued",
		slog.String("client_id", client.ClientID),
		slog.String("grant_type", GrantTypeAuthorizationCode),
		slog.String("grant_id", code.GrantID),
		slog.Bool("dpop", jkt != ""),
	)
	return set, nil
}

func checkCodeBinding(code domain.AuthorizationCode, client ClientIdentity, g CodeGrant) error {
	if code.ClientID != client.ClientID {
		return withDetail(ErrInvalidGrant, "authorization code was issued to another client")
	}
	if code.RedirectURI != g.RedirectURI {
		return withDetail(ErrInvalidGrant, "redirect_uri does not match the authorization request")
	}
	if code.CodeChallengeMethod != domain.CodeChallengeMethodS256 || !isVerifier(g.CodeVerifier) ||
		!cryptox.EqualConstantTime(cryptox.S256Challenge(g.CodeVerifier), code.CodeChallenge) {
		return withDetail(ErrInvalidGrant, "code_verifier does not match code_challenge")
	}
	return nil
}

// revokeGrant revokes every token issued from the grant of a replayed code.
func (s *TokenService) revokeGrant(ctx context.Context, tx store.Tx, code domain.AuthorizationCode) error {
	slogx.FromContext(ctx).Warn("code_replay_detected",
		slog.String("client_id", code.ClientID),
		slog.String("grant_id", code.GrantID),
	)
	if code.GrantID == "" {
		return nil
	}
	if _, err := tx.AccessTokens().RevokeAccessTokensByGrant(ctx, code.GrantID); err != nil {
		return fmt.Errorf("revoke grant %s: %w", code.GrantID, err)
	}
	if _, err := tx.RefreshTokens().RevokeRefreshTokensByGrant(ctx, code.GrantID); err != nil {
		return fmt.Errorf("revoke grant %s: %w", code.GrantID, err)
	}
	return nil
}

// Refresh redeems a refresh token for a new token set. The presented token
// is consumed; a failed refresh leaves it usable.
func (s *TokenService) Refresh(ctx context.Context, client ClientIdentity, g RefreshGrant) (set domain.TokenSet, err error) {
	ctx, span := startSpan(ctx, "TokenService.Refresh", attribute.String("client.id", client.ClientID))
	defer func() {
		s.observe(GrantTypeRefreshToken, set, err)
		endSpan(span, err)
	}()

	if g.RefreshToken == "" {
		return set, withDetail(ErrInvalidRequest, "refresh_token is required")
	}

	var proof *jwtx.DPoPProof
	if g.DPoPProof != "" {
		proof, err = s.DPoP.Verify(ctx, g.DPoPProof, "POST", TokenPath, "")
		if err != nil {
			return set, err
		}
	}

	var grantID string
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		now := nowFrom(s.Clock)
		rt, err := tx.RefreshTokens().ConsumeRefreshToken(ctx, cryptox.FingerprintToken(g.RefreshToken))
		if errors.Is(err, store.ErrNotFound) {
			return withDetail(ErrInvalidGrant, "refresh token is invalid")
		}
		if err != nil {
			return fmt.Errorf("consume refresh token: %w", err)
		}
		if rt.IsExpired(now) {
			return withDetail(ErrInvalidGrant, "refresh token has expired")
		}
		if rt.ClientID != client.ClientID {
			return withDetail(ErrInvalidGrant, "refresh token was issued to another client")
		}

		jkt := ""
		if proof != nil {
			jkt = proof.JKT
		}
		if rt.JKT != "" && jkt != rt.JKT {
			return withDetail(ErrInvalidDPoPProof, "refresh token is bound to a different key")
		}

		scopes := rt.Scopes
		if g.Scope != "" {
			requested := dedupe(strings.Fields(g.Scope))
			for _, sc := range requested {
				if !slices.Contains(rt.Scopes, sc) {
					return withDetail(ErrInvalidScope, "scope exceeds the original grant")
				}
			}
			scopes = requested
		}

		grantID = rt.GrantID
		set, err = s.mint(ctx, tx, issueParams{
			GrantID:  rt.GrantID,
			ClientID: rt.ClientID,
			Subject:  rt.Subject,
			Scopes:   scopes,
			Purpose:  rt.Purpose,
			Nonce:    rt.Nonce,
			AuthTime: rt.AuthTime,
			JKT:      jkt,
			IDToken:  slices.Contains(scopes, ScopeOpenID),
		})
		return err
	})
	if err != nil {
		return domain.TokenSet{}, err
	}

	slogx.FromContext(ctx).Info("tokens_issued",
		slog.String("client_id", client.ClientID),
		slog.String("grant_type", GrantTypeRefreshToken),
		slog.String("grant_id", grantID),
	)
	return set, nil
}

type issueParams struct {
	GrantID  string
	ClientID string
	Subject  string
	Scopes   []string
	Purpose  string
	Nonce    string
	AuthTime time.Time
	JKT      string
	IDToken  bool
}

// mint signs the token set for p and records the access token and refresh
// token through tx.
func (s *TokenService) mint(ctx context.Context, tx store.Tx, p issueParams) (domain.TokenSet, error) {
	signer, err := s.Keys.Signer()
	if err != nil {
		return domain.TokenSet{}, fmt.Errorf("%w: %w", ErrKeysNotReady, err)
	}
	now := nowFrom(s.Clock)
	accessTTL := orDefault(s.AccessTTL, jwtx.DefaultAccessTokenTTL)

	claims := jwtx.NewAccessClaims(s.Issuer, p.Subject, p.ClientID, joinScopes(p.Scopes), accessTTL, now)
	claims.Purpose = p.Purpose
	if p.JKT != "" {
		claims.Cnf = &jwtx.Confirmation{JKT: p.JKT}
	}
	access, err := signer.Sign(claims, jwtx.TypeAccessToken)
	if err != nil {
		return domain.TokenSet{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.TokenSet{}, fmt.Errorf("generate refresh token: %w", err)
	}

	set := domain.TokenSet{
		AccessToken:  access,
		TokenType:    domain.TokenTypeBearer,
		ExpiresIn:    accessTTL,
		RefreshToken: refresh,
		Scopes:       p.Scopes,
	}
	if p.JKT != "" {
		set.TokenType = domain.TokenTypeDPoP
	}

	if p.IDToken {
		id := jwtx.NewIDClaims(s.Issuer, p.Subject, p.ClientID, p.Nonce, p.AuthTime,
			orDefault(s.IDTokenTTL, jwtx.DefaultIDTokenTTL), now)
		id.AtHash = jwtx.TokenHash(access, signer.Alg())
		set.IDToken, err = signer.Sign(id, jwtx.TypeJWT)
		if err != nil {
			return domain.TokenSet{}, fmt.Errorf("sign id token: %w", err)
		}
	}

	record := domain.AccessTokenRecord{
		JTI:       claims.ID,
		GrantID:   p.GrantID,
		ClientID:  p.ClientID,
		Subject:   p.Subject,
		Scopes:    p.Scopes,
		Purpose:   p.Purpose,
		JKT:       p.JKT,
		IssuedAt:  now,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if err := tx.AccessTokens().CreateAccessToken(ctx, record); err != nil {
		return domain.TokenSet{}, fmt.Errorf("store access token: %w", err)
	}

	rt := domain.RefreshToken{
		ID:        uuid.NewString(),
		TokenHash: cryptox.FingerprintToken(refresh),
		GrantID:   p.GrantID,
		ClientID:  p.ClientID,
		Subject:   p.Subject,
		Scopes:    p.Scopes,
		Purpose:   p.Purpose,
		Nonce:     p.Nonce,
		JKT:       p.JKT,
		AuthTime:  p.AuthTime,
		ExpiresAt: now.Add(orDefault(s.RefreshTTL, jwtx.DefaultRefreshTokenTTL)),
		CreatedAt: now,
	}
	if err := tx.RefreshTokens().CreateRefreshToken(ctx, rt); err != nil {
		return domain.TokenSet{}, fmt.Errorf("store refresh token: %w", err)
	}
	return set, nil
}

func (s *TokenService) observe(grantType string, set domain.TokenSet, err error) {
	if err != nil {
		s.Metrics.GrantFailed(grantType, Code(err))
		return
	}
	s.Metrics.TokenIssued(grantType, set.TokenType)
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
