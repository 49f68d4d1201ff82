package jwtx

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// SigningKeyRecord is a signing key as persisted by a KeyStore. The private
// key is a PKCS8 PEM sealed with the manager's cipher.
type SigningKeyRecord struct {
	KID              string
	Algorithm        string
	PrivateKeySealed []byte
	CreatedAt        time.Time
	RetiredAt        *time.Time
	ExpiresAt        *time.Time
}

// KeyStore is the minimal persistence the KeyManager needs. It is declared
// here so jwtx does not import the store packages.
type KeyStore interface {
	ListSigningKeys(ctx context.Context) ([]SigningKeyRecord, error)
	SaveSigningKey(ctx context.Context, rec SigningKeyRecord) error
	RetireSigningKey(ctx context.Context, kid string, retiredAt, expiresAt time.Time) error
	DeleteSigningKey(ctx context.Context, kid string) error
}

func (km *KeyManager) persistRotation(ctx context.Context, next, prev, dropped *managedKey, now time.Time) error {
	pemKey, err := next.signer.PrivateKeyPEM()
	if err != nil {
		return err
	}
	sealed, err := km.cipher.Seal(pemKey)
	if err != nil {
		return fmt.Errorf("jwtx: seal signing key: %w", err)
	}

	rec := SigningKeyRecord{
		KID:              next.signer.KID(),
		Algorithm:        next.signer.Alg(),
		PrivateKeySealed: sealed,
		CreatedAt:        next.createdAt,
	}
	if err := km.store.SaveSigningKey(ctx, rec); err != nil {
		return fmt.Errorf("jwtx: save signing key: %w", err)
	}
	if prev != nil {
		if err := km.store.RetireSigningKey(ctx, prev.signer.KID(), now, now.Add(km.grace)); err != nil {
			return fmt.Errorf("jwtx: retire signing key: %w", err)
		}
	}
	if dropped != nil {
		if err := km.store.DeleteSigningKey(ctx, dropped.signer.KID()); err != nil {
			return fmt.Errorf("jwtx: delete dropped key: %w", err)
		}
	}
	return nil
}

// load restores the newest active key as current and the most recently
// retired key as retiring when its grace window is still open. Anything
// else found in the store is stale and deleted.
func (km *KeyManager) load(ctx context.Context) error {
	recs, err := km.store.ListSigningKeys(ctx)
	if err != nil {
		return fmt.Errorf("jwtx: load signing keys: %w", err)
	}
	now := km.clock.Now()

	var active, retired []SigningKeyRecord
	for _, r := range recs {
		if r.RetiredAt == nil {
			active = append(active, r)
		} else {
			retired = append(retired, r)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].CreatedAt.After(active[j].CreatedAt) })
	sort.Slice(retired, func(i, j int) bool { return retired[i].RetiredAt.After(*retired[j].RetiredAt) })

	var current, retiring *managedKey
	var stale []string

	for i, r := range active {
		if i == 0 {
			if current, err = km.restore(r); err != nil {
				return err
			}
			continue
		}
		// An older active key is left over from an interrupted rotation.
		if retiring == nil && now.Before(current.createdAt.Add(km.grace)) {
			k, err := km.restore(r)
			if err != nil {
				return err
			}
			k.retiredAt = current.createdAt
			retiring = k
			continue
		}
		stale = append(stale, r.KID)
	}

	for _, r := range retired {
		if retiring == nil && current != nil && now.Before(r.RetiredAt.Add(km.grace)) {
			k, err := km.restore(r)
			if err != nil {
				return err
			}
			k.retiredAt = *r.RetiredAt
			retiring = k
			continue
		}
		stale = append(stale, r.KID)
	}

	for _, kid := range stale {
		if err := km.store.DeleteSigningKey(ctx, kid); err != nil {
			return fmt.Errorf("jwtx: delete stale key %s: %w", kid, err)
		}
	}

	km.mu.Lock()
	km.current, km.retiring = current, retiring
	km.mu.Unlock()
	return nil
}

func (km *KeyManager) restore(r SigningKeyRecord) (*managedKey, error) {
	pemKey, err := km.cipher.Open(r.PrivateKeySealed)
	if err != nil {
		return nil, fmt.Errorf("jwtx: open key %s: %w", r.KID, err)
	}
	signer, err := NewSignerFromPEM(r.KID, r.Algorithm, pemKey)
	if err != nil {
		return nil, fmt.Errorf("jwtx: restore key %s: %w", r.KID, err)
	}
	return &managedKey{signer: signer, createdAt: r.CreatedAt}, nil
}
