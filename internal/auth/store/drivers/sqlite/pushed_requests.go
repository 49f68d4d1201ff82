package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/fapiauth/internal/auth/domain"
	"github.com/aussiebroadwan/fapiauth/internal/auth/store"
)

type pushedRequestsRepo struct {
	q dbtx
}

const pushedRequestColumns = `id, client_id, redirect_uri, scopes, state, nonce, code_challenge,
	code_challenge_method, purpose, prompt, max_age, claims, expires_at, used_at, created_at`

func scanPushedRequest(row interface{ Scan(...any) error }) (domain.PushedAuthorizationRequest, error) {
	var (
		p                    domain.PushedAuthorizationRequest
		scopes               string
		maxAge, usedAt       sql.NullInt64
		expiresAt, createdAt int64
	)
	err := row.Scan(&p.ID, &p.ClientID, &p.RedirectURI, &scopes, &p.State, &p.Nonce, &p.CodeChallenge,
		&p.CodeChallengeMethod, &p.Purpose, &p.Prompt, &maxAge, &p.Claims, &expiresAt, &usedAt, &createdAt)
	if err != nil {
		return domain.PushedAuthorizationRequest{}, err
	}
	p.Scopes = splitAndFilter(scopes)
	p.MaxAge = mapNullIntPtr(maxAge)
	p.ExpiresAt = fromMillis(expiresAt)
	p.UsedAt = mapNullTimePtr(usedAt)
	p.CreatedAt = fromMillis(createdAt)
	return p, nil
}

func (r *pushedRequestsRepo) CreatePushedRequest(ctx context.Context, p domain.PushedAuthorizationRequest) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO pushed_requests (`+pushedRequestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ClientID, p.RedirectURI, joinFields(p.Scopes), p.State, p.Nonce, p.CodeChallenge,
		p.CodeChallengeMethod, p.Purpose, p.Prompt, mapOptionalInt(p.MaxAge), p.Claims,
		toMillis(p.ExpiresAt), mapOptionalTime(p.UsedAt), toMillis(p.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *pushedRequestsRepo) ConsumePushedRequest(ctx context.Context, id string, now time.Time) (domain.PushedAuthorizationRequest, error) {
	// The conditional UPDATE is the atomic check-and-mark.
	row := r.q.QueryRowContext(ctx, `UPDATE pushed_requests SET used_at = ?
		WHERE id = ? AND used_at IS NULL AND expires_at > ?
		RETURNING `+pushedRequestColumns,
		toMillis(now), id, toMillis(now),
	)
	p, err := scanPushedRequest(row)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.PushedAuthorizationRequest{}, err
	}

	existing, err := scanPushedRequest(r.q.QueryRowContext(ctx,
		`SELECT `+pushedRequestColumns+` FROM pushed_requests WHERE id = ?`, id))
	if err != nil {
		return domain.PushedAuthorizationRequest{}, mapNotFound(err)
	}
	if existing.UsedAt != nil {
		return domain.PushedAuthorizationRequest{}, store.ErrAlreadyUsed
	}
	if _, err := r.q.ExecContext(ctx, `DELETE FROM pushed_requests WHERE id = ?`, id); err != nil {
		return domain.PushedAuthorizationRequest{}, err
	}
	return domain.PushedAuthorizationRequest{}, store.ErrExpired
}

func (r *pushedRequestsRepo) DeleteExpiredPushedRequests(ctx context.Context, now time.Time, limit int) (int, error) {
	return rowsAffected(r.q.ExecContext(ctx, `DELETE FROM pushed_requests WHERE rowid IN (
		SELECT rowid FROM pushed_requests WHERE expires_at <= ? OR used_at IS NOT NULL LIMIT ?)`,
		toMillis(now), sqlLimit(limit),
	))
}

// sqlLimit maps a non-positive limit to SQLite's "no limit".
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
