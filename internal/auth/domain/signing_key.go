package domain

import "time"

// SigningKey is a server signing key at rest. The private key is sealed
// with AES-256-GCM before it reaches the store.
type SigningKey struct {
	Kid                 string
	Algorithm           string // PS256, ES256 or EdDSA
	PrivateKeyEncrypted []byte
	CreatedAt           time.Time
	RetiredAt           *time.Time // nil while current
	ExpiresAt           *time.Time // end of the verification grace window
}

// IsActive returns true if the key has not been retired.
func (k *SigningKey) IsActive() bool {
	return k.RetiredAt == nil
}

// IsExpired returns true if the key is past its grace window.
func (k *SigningKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}
