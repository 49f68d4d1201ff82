package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/fapiauth/internal/auth/domain"
	"github.com/aussiebroadwan/fapiauth/internal/auth/store"
)

type signingKeysRepo struct {
	q dbtx
}

func (r *signingKeysRepo) CreateSigningKey(ctx context.Context, key domain.SigningKey) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO signing_keys
		(kid, algorithm, private_key_encrypted, created_at, retired_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		key.Kid, key.Algorithm, key.PrivateKeyEncrypted, toMillis(key.CreatedAt),
		mapOptionalTime(key.RetiredAt), mapOptionalTime(key.ExpiresAt),
	)
	return mapConstraint(err)
}

func (r *signingKeysRepo) ListSigningKeys(ctx context.Context) ([]domain.SigningKey, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT kid, algorithm, private_key_encrypted, created_at,
		retired_at, expires_at FROM signing_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []domain.SigningKey
	for rows.Next() {
		var (
			k                domain.SigningKey
			createdAt        int64
			retired, expires sql.NullInt64
		)
		if err := rows.Scan(&k.Kid, &k.Algorithm, &k.PrivateKeyEncrypted, &createdAt, &retired, &expires); err != nil {
			return nil, err
		}
		k.CreatedAt = fromMillis(createdAt)
		k.RetiredAt = mapNullTimePtr(retired)
		k.ExpiresAt = mapNullTimePtr(expires)
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (r *signingKeysRepo) RetireSigningKey(ctx context.Context, kid string, retiredAt, expiresAt time.Time) error {
	n, err := rowsAffected(r.q.ExecContext(ctx,
		`UPDATE signing_keys SET retired_at = ?, expires_at = ? WHERE kid = ?`,
		toMillis(retiredAt), toMillis(expiresAt), kid))
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *signingKeysRepo) DeleteSigningKey(ctx context.Context, kid string) error {
	n, err := rowsAffected(r.q.ExecContext(ctx, `DELETE FROM signing_keys WHERE kid = ?`, kid))
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
