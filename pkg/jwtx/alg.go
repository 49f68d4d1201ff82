package jwtx

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"
	"slices"

	"github.com/aussiebroadwan/fapiauth/pkg/cryptox"
	"github.com/golang-jwt/jwt/v5"
)

// Supported signing algorithms. Everything else, including "none" and the
// HMAC family, is rejected on both the signing and the verifying side.
const (
	AlgorithmPS256 = "PS256"
	AlgorithmES256 = "ES256"
	AlgorithmEdDSA = "EdDSA"
)

// SupportedAlgorithms is the allow-list, in order of preference.
var SupportedAlgorithms = []string{AlgorithmPS256, AlgorithmES256, AlgorithmEdDSA}

// IsSupportedAlgorithm reports whether alg is on the allow-list.
func IsSupportedAlgorithm(alg string) bool {
	return slices.Contains(SupportedAlgorithms, alg)
}

// SigningMethod maps an allow-listed algorithm name to its jwt method.
func SigningMethod(alg string) (jwt.SigningMethod, error) {
	switch alg {
	case AlgorithmPS256:
		return jwt.SigningMethodPS256, nil
	case AlgorithmES256:
		return jwt.SigningMethodES256, nil
	case AlgorithmEdDSA:
		return jwt.SigningMethodEdDSA, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlg, alg)
	}
}

// KeyTypeForAlgorithm returns the key family new keys for alg are generated in.
func KeyTypeForAlgorithm(alg string) (cryptox.KeyType, error) {
	switch alg {
	case AlgorithmPS256:
		return cryptox.KeyTypeRSA, nil
	case AlgorithmES256:
		return cryptox.KeyTypeP256, nil
	case AlgorithmEdDSA:
		return cryptox.KeyTypeEd25519, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlg, alg)
	}
}

// checkKeyForAlg makes sure pub is usable with alg: PS256 needs RSA,
// ES256 needs P-256 and EdDSA needs Ed25519.
func checkKeyForAlg(alg string, pub crypto.PublicKey) error {
	ok := false
	switch k := pub.(type) {
	case *rsa.PublicKey:
		ok = alg == AlgorithmPS256
	case *ecdsa.PublicKey:
		ok = alg == AlgorithmES256 && k.Curve == elliptic.P256()
	case ed25519.PublicKey:
		ok = alg == AlgorithmEdDSA
	}
	if !ok {
		return fmt.Errorf("%w: %T cannot be used with %s", ErrAlgMismatch, pub, alg)
	}
	return nil
}

// algForKey picks the allow-listed algorithm matching a public key.
func algForKey(pub crypto.PublicKey) (string, error) {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return AlgorithmPS256, nil
	case *ecdsa.PublicKey:
		if k.Curve == elliptic.P256() {
			return AlgorithmES256, nil
		}
	case ed25519.PublicKey:
		return AlgorithmEdDSA, nil
	}
	return "", fmt.Errorf("%w: %T", ErrUnsupportedAlg, pub)
}
