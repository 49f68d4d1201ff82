package authsdk

import (
	"crypto"
	"fmt"
	"net/url"
	"time"

	"github.com/aussiebroadwan/fapiauth/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
)

// ClientAuth adds client authentication parameters to a form request.
// audience is the token endpoint URL.
type ClientAuth interface {
	Apply(form url.Values, clientID, audience string, now time.Time) error
}

// TLSClientAuth authenticates with the client certificate configured on the
// HTTP transport. Only client_id goes in the form.
type TLSClientAuth struct{}

// Apply implements ClientAuth.
func (TLSClientAuth) Apply(form url.Values, clientID, _ string, _ time.Time) error {
	form.Set("client_id", clientID)
	return nil
}

// PrivateKeyJWT authenticates with a signed client assertion.
type PrivateKeyJWT struct {
	Key crypto.Signer
	Alg string
	KID string

	// Lifetime of each assertion. Defaults to one minute.
	Lifetime time.Duration
}

// Apply implements ClientAuth.
func (p PrivateKeyJWT) Apply(form url.Values, clientID, audience string, now time.Time) error {
	assertion, err := NewClientAssertion(p.Key, p.Alg, p.KID, clientID, audience, p.Lifetime, now)
	if err != nil {
		return err
	}
	form.Set("client_id", clientID)
	form.Set("client_assertion_type", jwtx.ClientAssertionType)
	form.Set("client_assertion", assertion)
	return nil
}

// NewClientAssertion signs a private_key_jwt assertion: iss and sub are the
// client, aud is the token endpoint and jti is random.
func NewClientAssertion(key crypto.Signer, alg, kid, clientID, audience string, lifetime time.Duration, now time.Time) (string, error) {
	method, err := jwtx.SigningMethod(alg)
	if err != nil {
		return "", err
	}
	if lifetime <= 0 {
		lifetime = time.Minute
	}

	claims := jwt.RegisteredClaims{
		Issuer:    clientID,
		Subject:   clientID,
		Audience:  jwt.ClaimStrings{audience},
		ID:        jwtx.NewJTI(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
	}
	t := jwt.NewWithClaims(method, claims)
	if kid != "" {
		t.Header["kid"] = kid
	}
	s, err := t.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign client assertion: %w", err)
	}
	return s, nil
}
