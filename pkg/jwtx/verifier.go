package jwtx

import (
	"crypto"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/fapiauth/pkg/clockx"
	"github.com/golang-jwt/jwt/v5"
)

// KeyResolver finds the verification key and algorithm for a kid.
// *KeyManager implements it.
type KeyResolver interface {
	PublicKey(kid string) (crypto.PublicKey, string, error)
}

// Verifier validates access tokens issued by this server.
type Verifier struct {
	keys   KeyResolver
	issuer string
	clock  clockx.Clock
	leeway time.Duration
}

// NewVerifier builds a Verifier for tokens from issuer.
func NewVerifier(keys KeyResolver, issuer string, clock clockx.Clock) *Verifier {
	if clock == nil {
		clock = clockx.Real()
	}
	return &Verifier{keys: keys, issuer: issuer, clock: clock}
}

// WithLeeway returns a copy tolerating d of clock skew on exp and nbf.
func (v *Verifier) WithLeeway(d time.Duration) *Verifier {
	c := *v
	c.leeway = d
	return &c
}

// VerifyAccessToken checks signature, typ at+jwt, issuer and expiry.
func (v *Verifier) VerifyAccessToken(token string) (*AccessClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods(SupportedAlgorithms),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.clock.Now),
		jwt.WithLeeway(v.leeway),
	)

	claims := &AccessClaims{}
	t, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if typ, _ := t.Header["typ"].(string); typ != TypeAccessToken {
			return nil, ErrInvalidType
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: missing kid", ErrUnknownKID)
		}
		pub, alg, err := v.keys.PublicKey(kid)
		if err != nil {
			return nil, err
		}
		if t.Method.Alg() != alg {
			return nil, ErrAlgMismatch
		}
		return pub, nil
	})
	if err != nil {
		return nil, mapParseError(err)
	}
	if !t.Valid {
		return nil, errors.New("jwtx: invalid token")
	}
	if claims.ClientID == "" {
		return nil, fmt.Errorf("%w: client_id is required", ErrInvalidClaim)
	}
	return claims, nil
}
