package jwtx

import (
	"context"
	"crypto"
	"fmt"
	"sync"
	"time"

	"github.com/aussiebroadwan/fapiauth/pkg/clockx"
	"github.com/aussiebroadwan/fapiauth/pkg/cryptox"
	"github.com/aussiebroadwan/fapiauth/pkg/idx"
)

// Defaults for the signing key lifecycle.
const (
	DefaultRotationInterval = 24 * time.Hour
	DefaultGracePeriod      = time.Hour
	DefaultRSABits          = 2048
)

// KeyManagerOptions configures a KeyManager.
type KeyManagerOptions struct {
	// Algorithm for new keys: PS256, ES256 or EdDSA.
	Algorithm string

	// RSABits is the modulus size for PS256 keys. Defaults to 2048.
	RSABits int

	// GracePeriod is how long a replaced key stays published and usable for
	// verification. Defaults to one hour.
	GracePeriod time.Duration

	Clock clockx.Clock

	// Store and Cipher enable persistent mode. Both or neither must be set.
	Store  KeyStore
	Cipher *cryptox.KeyCipher
}

// KeyManager owns the server's signing keys: one current key used for
// signing, and at most one retiring key that remains published until its
// grace window closes.
type KeyManager struct {
	alg     string
	rsaBits int
	grace   time.Duration
	clock   clockx.Clock
	store   KeyStore
	cipher  *cryptox.KeyCipher

	// rotateMu serialises rotations so key generation happens outside mu.
	rotateMu sync.Mutex

	mu       sync.RWMutex
	current  *managedKey
	retiring *managedKey
}

type managedKey struct {
	signer    *KeySigner
	createdAt time.Time
	retiredAt time.Time
}

func (k *managedKey) expiresAt(grace time.Duration) time.Time {
	return k.retiredAt.Add(grace)
}

// Rotation describes the outcome of a rotation.
type Rotation struct {
	PreviousKID string
	CurrentKID  string
	RotatedAt   time.Time
}

// KeyInfo is an operator view of a managed key.
type KeyInfo struct {
	KID       string
	Algorithm string
	Current   bool
	CreatedAt time.Time
	RetiredAt *time.Time
	ExpiresAt *time.Time
	JWK       JWK
}

// NewKeyManager validates opts and returns a manager with no keys yet.
// Call Init before signing.
func NewKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if !IsSupportedAlgorithm(opts.Algorithm) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlg, opts.Algorithm)
	}
	if opts.RSABits == 0 {
		opts.RSABits = DefaultRSABits
	}
	if opts.RSABits < cryptox.MinRSABits {
		return nil, fmt.Errorf("jwtx: RSA key size must be at least %d bits", cryptox.MinRSABits)
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.Clock == nil {
		opts.Clock = clockx.Real()
	}
	if (opts.Store == nil) != (opts.Cipher == nil) {
		return nil, fmt.Errorf("jwtx: persistent key mode needs both a store and a cipher")
	}

	return &KeyManager{
		alg:     opts.Algorithm,
		rsaBits: opts.RSABits,
		grace:   opts.GracePeriod,
		clock:   opts.Clock,
		store:   opts.Store,
		cipher:  opts.Cipher,
	}, nil
}

// Init restores persisted keys when a store is configured and generates the
// first key when none could be restored.
func (km *KeyManager) Init(ctx context.Context) error {
	if km.store != nil {
		if err := km.load(ctx); err != nil {
			return err
		}
	}
	if km.IsReady() {
		return nil
	}
	_, err := km.Rotate(ctx)
	return err
}

// Algorithm returns the algorithm used for new keys.
func (km *KeyManager) Algorithm() string { return km.alg }

// GracePeriod returns how long a replaced key stays valid.
func (km *KeyManager) GracePeriod() time.Duration { return km.grace }

// IsReady reports whether a signing key exists.
func (km *KeyManager) IsReady() bool {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.current != nil
}

// Signer returns the current signing key.
func (km *KeyManager) Signer() (Signer, error) {
	km.mu.RLock()
	defer km.mu.RUnlock()
	if km.current == nil {
		return nil, ErrNoSigningKey
	}
	return km.current.signer, nil
}

// CurrentCreatedAt returns when the current key was generated.
func (km *KeyManager) CurrentCreatedAt() (time.Time, bool) {
	km.mu.RLock()
	defer km.mu.RUnlock()
	if km.current == nil {
		return time.Time{}, false
	}
	return km.current.createdAt, true
}

// Rotate generates a new key, demotes the current key to retiring and drops
// any older retiring key. The new key is persisted before it is swapped in,
// so a failed rotation leaves the manager unchanged.
func (km *KeyManager) Rotate(ctx context.Context) (Rotation, error) {
	km.rotateMu.Lock()
	defer km.rotateMu.Unlock()

	signer, err := km.generate()
	if err != nil {
		return Rotation{}, err
	}
	now := km.clock.Now()
	next := &managedKey{signer: signer, createdAt: now}

	km.mu.RLock()
	prev, dropped := km.current, km.retiring
	km.mu.RUnlock()

	if km.store != nil {
		if err := km.persistRotation(ctx, next, prev, dropped, now); err != nil {
			return Rotation{}, err
		}
	}

	km.mu.Lock()
	if prev != nil {
		prev.retiredAt = now
	}
	km.retiring = prev
	km.current = next
	km.mu.Unlock()

	r := Rotation{CurrentKID: signer.KID(), RotatedAt: now}
	if prev != nil {
		r.PreviousKID = prev.signer.KID()
	}
	return r, nil
}

func (km *KeyManager) generate() (*KeySigner, error) {
	kt, err := KeyTypeForAlgorithm(km.alg)
	if err != nil {
		return nil, err
	}
	key, err := cryptox.GenerateSigningKey(kt, km.rsaBits)
	if err != nil {
		return nil, fmt.Errorf("jwtx: generate signing key: %w", err)
	}
	return NewSigner(idx.Prefixed("kid"), km.alg, key)
}

// PruneRetired forgets the retiring key once its grace window has closed
// and reports whether one was removed.
func (km *KeyManager) PruneRetired(ctx context.Context) (bool, error) {
	now := km.clock.Now()

	km.mu.RLock()
	r := km.retiring
	km.mu.RUnlock()
	if r == nil || now.Before(r.expiresAt(km.grace)) {
		return false, nil
	}

	if km.store != nil {
		if err := km.store.DeleteSigningKey(ctx, r.signer.KID()); err != nil {
			return false, fmt.Errorf("jwtx: delete retired key: %w", err)
		}
	}

	km.mu.Lock()
	defer km.mu.Unlock()
	if km.retiring != r {
		return false, nil
	}
	km.retiring = nil
	return true, nil
}

// JWKS returns the published public keys, current first, followed by the
// retiring key while it is inside its grace window.
func (km *KeyManager) JWKS() JWKS {
	now := km.clock.Now()

	km.mu.RLock()
	defer km.mu.RUnlock()

	set := JWKS{Keys: make([]JWK, 0, 2)}
	if km.current != nil {
		set.Keys = append(set.Keys, km.current.signer.PublicJWK())
	}
	if km.retiring != nil && now.Before(km.retiring.expiresAt(km.grace)) {
		set.Keys = append(set.Keys, km.retiring.signer.PublicJWK())
	}
	return set
}

// PublicKey resolves a kid to its verification key and algorithm. Retiring
// keys resolve only inside their grace window.
func (km *KeyManager) PublicKey(kid string) (crypto.PublicKey, string, error) {
	now := km.clock.Now()

	km.mu.RLock()
	defer km.mu.RUnlock()

	if km.current != nil && km.current.signer.KID() == kid {
		return km.current.signer.PublicKey(), km.current.signer.Alg(), nil
	}
	if km.retiring != nil && km.retiring.signer.KID() == kid && now.Before(km.retiring.expiresAt(km.grace)) {
		return km.retiring.signer.PublicKey(), km.retiring.signer.Alg(), nil
	}
	return nil, "", fmt.Errorf("%w %q", ErrUnknownKID, kid)
}

// Keys describes the managed keys, current first.
func (km *KeyManager) Keys() []KeyInfo {
	km.mu.RLock()
	defer km.mu.RUnlock()

	var out []KeyInfo
	if km.current != nil {
		out = append(out, KeyInfo{
			KID:       km.current.signer.KID(),
			Algorithm: km.current.signer.Alg(),
			Current:   true,
			CreatedAt: km.current.createdAt,
			JWK:       km.current.signer.PublicJWK(),
		})
	}
	if km.retiring != nil {
		retired := km.retiring.retiredAt
		expires := km.retiring.expiresAt(km.grace)
		out = append(out, KeyInfo{
			KID:       km.retiring.signer.KID(),
			Algorithm: km.retiring.signer.Alg(),
			CreatedAt: km.retiring.createdAt,
			RetiredAt: &retired,
			ExpiresAt: &expires,
			JWK:       km.retiring.signer.PublicJWK(),
		})
	}
	return out
}
