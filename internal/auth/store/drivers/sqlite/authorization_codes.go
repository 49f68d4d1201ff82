package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/fapiauth/internal/auth/domain"
	"github.com/aussiebroadwan/fapiauth/internal/auth/store"
)

type authorizationCodesRepo struct {
	q dbtx
}

const authorizationCodeColumns = `id, code_hash, grant_id, client_id, subject, redirect_uri, scopes,
	code_challenge, code_challenge_method, nonce, purpose, claims, auth_time, expires_at, used_at, created_at`

func scanAuthorizationCode(row interface{ Scan(...any) error }) (domain.AuthorizationCode, error) {
	var (
		c                              domain.AuthorizationCode
		scopes                         string
		usedAt                         sql.NullInt64
		authTime, expiresAt, createdAt int64
	)
	err := row.Scan(&c.ID, &c.CodeHash, &c.GrantID, &c.ClientID, &c.Subject, &c.RedirectURI, &scopes,
		&c.CodeChallenge, &c.CodeChallengeMethod, &c.Nonce, &c.Purpose, &c.Claims,
		&authTime, &expiresAt, &usedAt, &createdAt)
	if err != nil {
		return domain.AuthorizationCode{}, err
	}
	c.Scopes = splitAndFilter(scopes)
	c.AuthTime = fromMillis(authTime)
	c.ExpiresAt = fromMillis(expiresAt)
	c.UsedAt = mapNullTimePtr(usedAt)
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}

func (r *authorizationCodesRepo) CreateAuthorizationCode(ctx context.Context, code domain.AuthorizationCode) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO authorization_codes (`+authorizationCodeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		code.ID, code.CodeHash, code.GrantID, code.ClientID, code.Subject, code.RedirectURI,
		joinFields(code.Scopes), code.CodeChallenge, code.CodeChallengeMethod, code.Nonce, code.Purpose,
		code.Claims, toMillis(code.AuthTime), toMillis(code.ExpiresAt), mapOptionalTime(code.UsedAt),
		toMillis(code.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *authorizationCodesRepo) ConsumeAuthorizationCode(ctx context.Context, hash string, now time.Time) (domain.AuthorizationCode, error) {
	row := r.q.QueryRowContext(ctx, `UPDATE authorization_codes SET used_at = ?
		WHERE code_hash = ? AND used_at IS NULL AND expires_at > ?
		RETURNING `+authorizationCodeColumns,
		toMillis(now), hash, toMillis(now),
	)
	c, err := scanAuthorizationCode(row)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.AuthorizationCode{}, err
	}

	// Used or expired: either way the row goes, and we report which.
	existing, err := scanAuthorizationCode(r.q.QueryRowContext(ctx,
		`DELETE FROM authorization_codes WHERE code_hash = ? RETURNING `+authorizationCodeColumns, hash))
	if err != nil {
		return domain.AuthorizationCode{}, mapNotFound(err)
	}
	if existing.UsedAt != nil {
		return existing, store.ErrAlreadyUsed
	}
	return domain.AuthorizationCode{}, store.ErrExpired
}

func (r *authorizationCodesRepo) DeleteExpiredAuthorizationCodes(ctx context.Context, now time.Time, limit int) (int, error) {
	return rowsAffected(r.q.ExecContext(ctx, `DELETE FROM authorization_codes WHERE rowid IN (
		SELECT rowid FROM authorization_codes WHERE expires_at <= ? LIMIT ?)`,
		toMillis(now), sqlLimit(limit),
	))
}
