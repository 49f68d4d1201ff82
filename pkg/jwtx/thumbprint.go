package jwtx

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aussiebroadwan/fapiauth/pkg/cryptox"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// Thumbprint returns the RFC 7638 SHA-256 JWK thumbprint of pub, base64url
// encoded. This is the value carried in cnf.jkt.
func Thumbprint(pub crypto.PublicKey) (string, error) {
	key, err := jwk.FromRaw(pub)
	if err != nil {
		return "", fmt.Errorf("jwtx: build jwk: %w", err)
	}
	return keyThumbprint(key)
}

func keyThumbprint(key jwk.Key) (string, error) {
	sum, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("jwtx: thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(sum), nil
}

// ParsePublicJWK decodes a single JWK that must carry public material only.
func ParsePublicJWK(data []byte) (crypto.PublicKey, jwk.Key, error) {
	key, err := jwk.ParseKey(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	pub, err := rawPublicKey(key)
	if err != nil {
		return nil, nil, err
	}
	return pub, key, nil
}

// rawPublicKey extracts the crypto key behind a jwk.Key, refusing private keys
// and anything outside the allow-listed key families.
func rawPublicKey(key jwk.Key) (crypto.PublicKey, error) {
	var raw any
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var pub crypto.PublicKey
	switch k := raw.(type) {
	case *rsa.PrivateKey, *ecdsa.PrivateKey, ed25519.PrivateKey:
		return nil, ErrPrivateKey
	case *rsa.PublicKey:
		pub = k
	case rsa.PublicKey:
		pub = &k
	case *ecdsa.PublicKey:
		pub = k
	case ecdsa.PublicKey:
		pub = &k
	case ed25519.PublicKey:
		pub = k
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedAlg, raw)
	}

	if _, err := algForKey(pub); err != nil {
		return nil, err
	}
	if err := cryptox.CheckKeyStrength(pub); err != nil {
		return nil, err
	}
	return pub, nil
}

// ClientKeySet is a client's registered JWK Set, used to verify its
// private_key_jwt assertions.
type ClientKeySet struct {
	set  jwk.Set
	keys []clientKey
}

type clientKey struct {
	kid string
	alg string // empty when the JWK does not pin one
	pub crypto.PublicKey
}

// ParseClientKeySet parses a JWK Set document. Every key must be public and
// strong enough; an empty set is an error.
func ParseClientKeySet(data []byte) (*ClientKeySet, error) {
	set, err := jwk.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if set.Len() == 0 {
		return nil, fmt.Errorf("%w: empty key set", ErrMalformed)
	}

	cs := &ClientKeySet{set: set}
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok {
			continue
		}
		pub, err := rawPublicKey(key)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		ck := clientKey{kid: key.KeyID(), pub: pub}
		if a := key.Algorithm(); a != nil && a.String() != "" {
			ck.alg = a.String()
			if err := checkKeyForAlg(ck.alg, pub); err != nil {
				return nil, fmt.Errorf("key %d: %w", i, err)
			}
		}
		cs.keys = append(cs.keys, ck)
	}
	return cs, nil
}

// Len reports the number of keys in the set.
func (c *ClientKeySet) Len() int { return len(c.keys) }

// MarshalJSON re-emits the original set.
func (c *ClientKeySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.set)
}

// candidates returns the keys that may have signed a token with the given
// header alg and kid. With a kid only that key is considered.
func (c *ClientKeySet) candidates(alg, kid string) []crypto.PublicKey {
	var out []crypto.PublicKey
	for _, k := range c.keys {
		if kid != "" && k.kid != kid {
			continue
		}
		if k.alg != "" && k.alg != alg {
			continue
		}
		if checkKeyForAlg(alg, k.pub) != nil {
			continue
		}
		out = append(out, k.pub)
	}
	return out
}

// NewClientKeySetFromKey builds a one-key set, for clients registered with
// a certificate or a bare public key instead of a JWK Set.
func NewClientKeySetFromKey(kid string, pub crypto.PublicKey) (*ClientKeySet, error) {
	key, err := jwk.FromRaw(pub)
	if err != nil {
		return nil, fmt.Errorf("jwtx: build jwk: %w", err)
	}
	if kid != "" {
		if err := key.Set(jwk.KeyIDKey, kid); err != nil {
			return nil, fmt.Errorf("jwtx: set kid: %w", err)
		}
	}
	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		return nil, fmt.Errorf("jwtx: add key: %w", err)
	}
	data, err := json.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("jwtx: encode key set: %w", err)
	}
	return ParseClientKeySet(data)
}
