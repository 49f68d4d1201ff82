package store

import (
	"context"
	"time"

	"github.com/aussiebroadwan/fapiauth/internal/auth/domain"
	"github.com/aussiebroadwan/fapiauth/pkg/jwtx"
)

// KeyStoreAdapter adapts the store.Store interface to the jwtx.KeyStore interface.
// This allows the jwtx package to work with signing keys without depending on the
// domain package directly, preventing circular dependencies.
type KeyStoreAdapter struct {
	store Store
}

var _ jwtx.KeyStore = (*KeyStoreAdapter)(nil)

// NewKeyStoreAdapter creates a new adapter that implements jwtx.KeyStore using a store.Store.
func NewKeyStoreAdapter(store Store) *KeyStoreAdapter {
	return &KeyStoreAdapter{store: store}
}

// ListSigningKeys returns every stored key, retired ones included.
func (a *KeyStoreAdapter) ListSigningKeys(ctx context.Context) ([]jwtx.SigningKeyRecord, error) {
	keys, err := a.store.SigningKeys().ListSigningKeys(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]jwtx.SigningKeyRecord, len(keys))
	for i, key := range keys {
		records[i] = jwtx.SigningKeyRecord{
			KID:              key.Kid,
			Algorithm:        key.Algorithm,
			PrivateKeySealed: key.PrivateKeyEncrypted,
			CreatedAt:        key.CreatedAt,
			RetiredAt:        key.RetiredAt,
			ExpiresAt:        key.ExpiresAt,
		}
	}
	return records, nil
}

// SaveSigningKey stores a new signing key with encrypted private key material.
func (a *KeyStoreAdapter) SaveSigningKey(ctx context.Context, rec jwtx.SigningKeyRecord) error {
	return a.store.SigningKeys().CreateSigningKey(ctx, domain.SigningKey{
		Kid:                 rec.KID,
		Algorithm:           rec.Algorithm,
		PrivateKeyEncrypted: rec.PrivateKeySealed,
		CreatedAt:           rec.CreatedAt,
		RetiredAt:           rec.RetiredAt,
		ExpiresAt:           rec.ExpiresAt,
	})
}

func (a *KeyStoreAdapter) RetireSigningKey(ctx context.Context, kid string, retiredAt, expiresAt time.Time) error {
	return a.store.SigningKeys().RetireSigningKey(ctx, kid, retiredAt, expiresAt)
}

func (a *KeyStoreAdapter) DeleteSigningKey(ctx context.Context, kid string) error {
	return a.store.SigningKeys().DeleteSigningKey(ctx, kid)
}
