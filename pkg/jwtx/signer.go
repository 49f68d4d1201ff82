package jwtx

import (
	"crypto"
	"fmt"

	"github.com/aussiebroadwan/fapiauth/pkg/cryptox"
	"github.com/golang-jwt/jwt/v5"
)

// Token type header values.
const (
	TypeAccessToken = "at+jwt"
	TypeJWT         = "JWT"
	TypeDPoPProof   = "dpop+jwt"
)

// Signer is the minimal interface for a JWT signer.
type Signer interface {
	Alg() string
	KID() string

	// Sign serialises claims into a compact JWS carrying the signer's kid
	// and the given typ header.
	Sign(claims jwt.Claims, typ string) (string, error)

	PublicKey() crypto.PublicKey
	PublicJWK() JWK
}

// KeySigner signs with any crypto.Signer whose key matches one of the
// allow-listed algorithms.
type KeySigner struct {
	kid    string
	alg    string
	method jwt.SigningMethod
	key    crypto.Signer
	jwk    JWK
}

// NewSigner wraps key for alg under kid.
func NewSigner(kid, alg string, key crypto.Signer) (*KeySigner, error) {
	if kid == "" {
		return nil, fmt.Errorf("jwtx: signer needs a kid")
	}
	method, err := SigningMethod(alg)
	if err != nil {
		return nil, err
	}
	if err := checkKeyForAlg(alg, key.Public()); err != nil {
		return nil, err
	}
	if err := cryptox.CheckKeyStrength(key.Public()); err != nil {
		return nil, err
	}
	jwk, err := NewPublicJWK(kid, alg, key.Public())
	if err != nil {
		return nil, err
	}

	return &KeySigner{kid: kid, alg: alg, method: method, key: key, jwk: jwk}, nil
}

// NewSignerFromPEM loads a PEM private key and wraps it.
func NewSignerFromPEM(kid, alg string, pemKey []byte) (*KeySigner, error) {
	key, err := cryptox.ParsePrivateKeyPEM(pemKey)
	if err != nil {
		return nil, err
	}
	return NewSigner(kid, alg, key)
}

func (s *KeySigner) Alg() string                 { return s.alg }
func (s *KeySigner) KID() string                 { return s.kid }
func (s *KeySigner) PublicKey() crypto.PublicKey { return s.key.Public() }
func (s *KeySigner) PublicJWK() JWK              { return s.jwk }

// Sign takes your claims and turns them into a signed JWT string.
func (s *KeySigner) Sign(claims jwt.Claims, typ string) (string, error) {
	t := jwt.NewWithClaims(s.method, claims)
	t.Header["kid"] = s.kid
	if typ != "" {
		t.Header["typ"] = typ
	}
	return t.SignedString(s.key)
}

// PrivateKeyPEM exports the private key as PKCS8 for persistence.
func (s *KeySigner) PrivateKeyPEM() ([]byte, error) {
	return cryptox.MarshalPrivateKeyPEM(s.key)
}
