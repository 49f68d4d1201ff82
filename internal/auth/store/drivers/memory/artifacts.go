package memory

import (
	"context"
	"time"

	"github.com/aussiebroadwan/fapiauth/internal/auth/domain"
	"github.com/aussiebroadwan/fapiauth/internal/auth/store"
)

type pushedRequestsRepo struct{ scope }

func (r *pushedRequestsRepo) CreatePushedRequest(ctx context.Context, p domain.PushedAuthorizationRequest) error {
	defer r.lock()()
	if _, ok := r.s.pars[p.ID]; ok {
		return store.ErrAlreadyExists
	}
	put(r.scope, r.s.pars, p.ID, p)
	return nil
}

func (r *pushedRequestsRepo) ConsumePushedRequest(ctx context.Context, id string, now time.Time) (domain.PushedAuthorizationRequest, error) {
	defer r.lock()()
	p, ok := r.s.pars[id]
	switch {
	case !ok:
		return domain.PushedAuthorizationRequest{}, store.ErrNotFound
	case p.UsedAt != nil:
		return domain.PushedAuthorizationRequest{}, store.ErrAlreadyUsed
	case p.IsExpired(now):
		del(r.scope, r.s.pars, id)
		return domain.PushedAuthorizationRequest{}, store.ErrExpired
	}
	p.UsedAt = &now
	put(r.scope, r.s.pars, id, p)
	return p, nil
}

func (r *pushedRequestsRepo) DeleteExpiredPushedRequests(ctx context.Context, now time.Time, limit int) (int, error) {
	defer r.lock()()
	return sweep(r.scope, r.s.pars, limit, func(p domain.PushedAuthorizationRequest) bool {
		return p.UsedAt != nil || p.IsExpired(now)
	}), nil
}

type authorizationCodesRepo struct{ scope }

func (r *authorizationCodesRepo) CreateAuthorizationCode(ctx context.Context, code domain.AuthorizationCode) error {
	defer r.lock()()
	if _, ok := r.s.codes[code.CodeHash]; ok {
		return store.ErrAlreadyExists
	}
	put(r.scope, r.s.codes, code.CodeHash, code)
	return nil
}

func (r *authorizationCodesRepo) ConsumeAuthorizationCode(ctx context.Context, hash string, now time.Time) (domain.AuthorizationCode, error) {
	defer r.lock()()
	c, ok := r.s.codes[hash]
	switch {
	case !ok:
		return domain.AuthorizationCode{}, store.ErrNotFound
	case c.UsedAt != nil:
		del(r.scope, r.s.codes, hash)
		return c, store.ErrAlreadyUsed
	case c.IsExpired(now):
		del(r.scope, r.s.codes, hash)
		return domain.AuthorizationCode{}, store.ErrExpired
	}
	c.UsedAt = &now
	put(r.scope, r.s.codes, hash, c)
	return c, nil
}

func (r *authorizationCodesRepo) DeleteExpiredAuthorizationCodes(ctx context.Context, now time.Time, limit int) (int, error) {
	defer r.lock()()
	return sweep(r.scope, r.s.codes, limit, func(c domain.AuthorizationCode) bool {
		return c.IsExpired(now)
	}), nil
}

type accessTokensRepo struct{ scope }

func (r *accessTokensRepo) CreateAccessToken(ctx context.Context, t domain.AccessTokenRecord) error {
	defer r.lock()()
	if _, ok := r.s.access[t.JTI]; ok {
		return store.ErrAlreadyExists
	}
	put(r.scope, r.s.access, t.JTI, t)
	return nil
}

func (r *accessTokensRepo) GetAccessToken(ctx context.Context, jti string) (domain.AccessTokenRecord, error) {
	defer r.lock()()
	t, ok := r.s.access[jti]
	if !ok {
		return domain.AccessTokenRecord{}, store.ErrNotFound
	}
	return t, nil
}

func (r *accessTokensRepo) RevokeAccessTokensByGrant(ctx context.Context, grantID string) (int, error) {
	defer r.lock()()
	n := 0
	for jti, t := range r.s.access {
		if t.GrantID == grantID && !t.Revoked {
			t.Revoked = true
			put(r.scope, r.s.access, jti, t)
			n++
		}
	}
	return n, nil
}

func (r *accessTokensRepo) DeleteExpiredAccessTokens(ctx context.Context, now time.Time, limit int) (int, error) {
	defer r.lock()()
	return sweep(r.scope, r.s.access, limit, func(t domain.AccessTokenRecord) bool {
		return !now.Before(t.ExpiresAt)
	}), nil
}

type refreshTokensRepo struct{ scope }

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	defer r.lock()()
	if _, ok := r.s.refresh[t.TokenHash]; ok {
		return store.ErrAlreadyExists
	}
	put(r.scope, r.s.refresh, t.TokenHash, t)
	return nil
}

func (r *refreshTokensRepo) ConsumeRefreshToken(ctx context.Context, hash string) (domain.RefreshToken, error) {
	defer r.lock()()
	t, ok := r.s.refresh[hash]
	if !ok {
		return domain.RefreshToken{}, store.ErrNotFound
	}
	del(r.scope, r.s.refresh, hash)
	return t, nil
}

func (r *refreshTokensRepo) RevokeRefreshTokensByGrant(ctx context.Context, grantID string) (int, error) {
	defer r.lock()()
	return sweep(r.scope, r.s.refresh, 0, func(t domain.RefreshToken) bool {
		return t.GrantID == grantID
	}), nil
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time, limit int) (int, error) {
	defer r.lock()()
	return sweep(r.scope, r.s.refresh, limit, func(t domain.RefreshToken) bool {
		return t.IsExpired(now)
	}), nil
}
