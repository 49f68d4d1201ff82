package memory

import (
	"context"
	"slices"
	"time"

	"github.com/aussiebroadwan/fapiauth/internal/auth/domain"
	"github.com/aussiebroadwan/fapiauth/internal/auth/store"
)

type signingKeysRepo struct{ scope }

func (r *signingKeysRepo) CreateSigningKey(ctx context.Context, key domain.SigningKey) error {
	defer r.lock()()
	if _, ok := r.s.keys[key.Kid]; ok {
		return store.ErrAlreadyExists
	}
	put(r.scope, r.s.keys, key.Kid, key)
	return nil
}

func (r *signingKeysRepo) ListSigningKeys(ctx context.Context) ([]domain.SigningKey, error) {
	defer r.lock()()
	out := make([]domain.SigningKey, 0, len(r.s.keys))
	for _, k := range r.s.keys {
		out = append(out, k)
	}
	slices.SortFunc(out, func(a, b domain.SigningKey) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (r *signingKeysRepo) RetireSigningKey(ctx context.Context, kid string, retiredAt, expiresAt time.Time) error {
	defer r.lock()()
	k, ok := r.s.keys[kid]
	if !ok {
		return store.ErrNotFound
	}
	k.RetiredAt = &retiredAt
	k.ExpiresAt = &expiresAt
	put(r.scope, r.s.keys, kid, k)
	return nil
}

func (r *signingKeysRepo) DeleteSigningKey(ctx context.Context, kid string) error {
	defer r.lock()()
	if _, ok := r.s.keys[kid]; !ok {
		return store.ErrNotFound
	}
	del(r.scope, r.s.keys, kid)
	return nil
}
