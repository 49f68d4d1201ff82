package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/fapiauth/internal/auth/domain"
)

type accessTokensRepo struct {
	q dbtx
}

func (r *accessTokensRepo) CreateAccessToken(ctx context.Context, t domain.AccessTokenRecord) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO access_tokens
		(jti, grant_id, client_id, subject, scopes, purpose, jkt, issued_at, expires_at, revoked)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.JTI, t.GrantID, t.ClientID, t.Subject, joinFields(t.Scopes), t.Purpose, t.JKT,
		toMillis(t.IssuedAt), toMillis(t.ExpiresAt), t.Revoked,
	)
	return mapConstraint(err)
}

func (r *accessTokensRepo) GetAccessToken(ctx context.Context, jti string) (domain.AccessTokenRecord, error) {
	var (
		t                   domain.AccessTokenRecord
		scopes              string
		issuedAt, expiresAt int64
	)
	err := r.q.QueryRowContext(ctx, `SELECT jti, grant_id, client_id, subject, scopes, purpose, jkt,
		issued_at, expires_at, revoked FROM access_tokens WHERE jti = ?`, jti,
	).Scan(&t.JTI, &t.GrantID, &t.ClientID, &t.Subject, &scopes, &t.Purpose, &t.JKT, &issuedAt, &expiresAt, &t.Revoked)
	if err != nil {
		return domain.AccessTokenRecord{}, mapNotFound(err)
	}
	t.Scopes = splitAndFilter(scopes)
	t.IssuedAt = fromMillis(issuedAt)
	t.ExpiresAt = fromMillis(expiresAt)
	return t, nil
}

func (r *accessTokensRepo) RevokeAccessTokensByGrant(ctx context.Context, grantID string) (int, error) {
	return rowsAffected(r.q.ExecContext(ctx,
		`UPDATE access_tokens SET revoked = 1 WHERE grant_id = ? AND revoked = 0`, grantID))
}

func (r *accessTokensRepo) DeleteExpiredAccessTokens(ctx context.Context, now time.Time, limit int) (int, error) {
	return rowsAffected(r.q.ExecContext(ctx, `DELETE FROM access_tokens WHERE rowid IN (
		SELECT rowid FROM access_tokens WHERE expires_at <= ? LIMIT ?)`,
		toMillis(now), sqlLimit(limit),
	))
}

type refreshTokensRepo struct {
	q dbtx
}

const refreshTokenColumns = `id, token_hash, grant_id, client_id, subject, scopes, purpose, nonce, jkt,
	auth_time, expires_at, created_at`

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO refresh_tokens (`+refreshTokenColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.TokenHash, t.GrantID, t.ClientID, t.Subject, joinFields(t.Scopes), t.Purpose, t.Nonce, t.JKT,
		toMillis(t.AuthTime), toMillis(t.ExpiresAt), toMillis(t.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *refreshTokensRepo) ConsumeRefreshToken(ctx context.Context, hash string) (domain.RefreshToken, error) {
	var (
		t                              domain.RefreshToken
		scopes                         string
		authTime, expiresAt, createdAt int64
	)
	err := r.q.QueryRowContext(ctx,
		`DELETE FROM refresh_tokens WHERE token_hash = ? RETURNING `+refreshTokenColumns, hash,
	).Scan(&t.ID, &t.TokenHash, &t.GrantID, &t.ClientID, &t.Subject, &scopes, &t.Purpose, &t.Nonce, &t.JKT,
		&authTime, &expiresAt, &createdAt)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	t.Scopes = splitAndFilter(scopes)
	t.AuthTime = fromMillis(authTime)
	t.ExpiresAt = fromMillis(expiresAt)
	t.CreatedAt = fromMillis(createdAt)
	return t, nil
}

func (r *refreshTokensRepo) RevokeRefreshTokensByGrant(ctx context.Context, grantID string) (int, error) {
	return rowsAffected(r.q.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE grant_id = ?`, grantID))
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time, limit int) (int, error) {
	return rowsAffected(r.q.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE rowid IN (
		SELECT rowid FROM refresh_tokens WHERE expires_at <= ? LIMIT ?)`,
		toMillis(now), sqlLimit(limit),
	))
}
