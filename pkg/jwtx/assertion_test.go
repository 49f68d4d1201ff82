package jwtx_test

import (
	"crypto"
	"encoding/json"
	"testing"
	"time"

	"github.com/aussiebroadwan/fapiauth/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const tokenEndpoint = exampleIssuer + "/token"

func signAssertion(t *testing.T, key crypto.Signer, alg, kid string, claims jwt.RegisteredClaims) string {
	t.Helper()
	method, err := jwtx.SigningMethod(alg)
	require.NoError(t, err)
	tok := jwt.NewWithClaims(method, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	s, err := tok.SignedString(key)
	require.NoError(t, err)
	return s
}

func assertionClaims(now time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    "client-a",
		Subject:   "client-a",
		Audience:  jwt.ClaimStrings{tokenEndpoint},
		ID:        "jti-1",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
	}
}

func keySetFor(t *testing.T, kid string, pub crypto.PublicKey) *jwtx.ClientKeySet {
	t.Helper()
	ks, err := jwtx.NewClientKeySetFromKey(kid, pub)
	require.NoError(t, err)
	return ks
}

func TestVerifyClientAssertion_AllAlgorithms(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	opts := jwtx.AssertionOptions{ClientID: "client-a", Audience: tokenEndpoint, Now: now}

	for _, alg := range jwtx.SupportedAlgorithms {
		t.Run(alg, func(t *testing.T) {
			key := newKey(t, alg)
			ks := keySetFor(t, "k1", key.Public())

			claims, err := jwtx.VerifyClientAssertion(signAssertion(t, key, alg, "k1", assertionClaims(now)), ks, opts)
			require.NoError(t, err)
			require.Equal(t, "jti-1", claims.ID)

			// Without a kid the set is searched.
			_, err = jwtx.VerifyClientAssertion(signAssertion(t, key, alg, "", assertionClaims(now)), ks, opts)
			require.NoError(t, err)
		})
	}
}

func TestVerifyClientAssertion_Rejects(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	opts := jwtx.AssertionOptions{ClientID: "client-a", Audience: tokenEndpoint, Now: now}
	key := newKey(t, jwtx.AlgorithmES256)
	ks := keySetFor(t, "k1", key.Public())

	tests := []struct {
		name   string
		mutate func(c *jwt.RegisteredClaims)
		want   error
	}{
		{"iss mismatch", func(c *jwt.RegisteredClaims) { c.Issuer = "client-b" }, jwtx.ErrIssuer},
		{"sub mismatch", func(c *jwt.RegisteredClaims) { c.Subject = "client-b" }, jwtx.ErrInvalidClaim},
		{"wrong audience", func(c *jwt.RegisteredClaims) { c.Audience = jwt.ClaimStrings{exampleIssuer + "/par"} }, jwtx.ErrAudience},
		{"missing jti", func(c *jwt.RegisteredClaims) { c.ID = "" }, jwtx.ErrInvalidClaim},
		{"expired", func(c *jwt.RegisteredClaims) { c.ExpiresAt = jwt.NewNumericDate(now) }, jwtx.ErrExpired},
		{"exp too far", func(c *jwt.RegisteredClaims) { c.ExpiresAt = jwt.NewNumericDate(now.Add(61 * time.Minute)) }, jwtx.ErrInvalidClaim},
		{"iat too old", func(c *jwt.RegisteredClaims) { c.IssuedAt = jwt.NewNumericDate(now.Add(-61 * time.Second)) }, jwtx.ErrInvalidClaim},
		{"iat in future", func(c *jwt.RegisteredClaims) { c.IssuedAt = jwt.NewNumericDate(now.Add(61 * time.Second)) }, jwtx.ErrNotYetValid},
		{"missing iat", func(c *jwt.RegisteredClaims) { c.IssuedAt = nil }, jwtx.ErrInvalidClaim},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := assertionClaims(now)
			tt.mutate(&c)
			_, err := jwtx.VerifyClientAssertion(signAssertion(t, key, jwtx.AlgorithmES256, "k1", c), ks, opts)
			require.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("boundaries accepted", func(t *testing.T) {
		c := assertionClaims(now)
		c.ExpiresAt = jwt.NewNumericDate(now.Add(60 * time.Minute))
		c.IssuedAt = jwt.NewNumericDate(now.Add(-60 * time.Second))
		_, err := jwtx.VerifyClientAssertion(signAssertion(t, key, jwtx.AlgorithmES256, "k1", c), ks, opts)
		require.NoError(t, err)
	})

	t.Run("signed by another key", func(t *testing.T) {
		other := newKey(t, jwtx.AlgorithmES256)
		_, err := jwtx.VerifyClientAssertion(signAssertion(t, other, jwtx.AlgorithmES256, "k1", assertionClaims(now)), ks, opts)
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
	})

	t.Run("unknown kid", func(t *testing.T) {
		_, err := jwtx.VerifyClientAssertion(signAssertion(t, key, jwtx.AlgorithmES256, "k9", assertionClaims(now)), ks, opts)
		require.ErrorIs(t, err, jwtx.ErrUnknownKID)
	})

	t.Run("HMAC", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, assertionClaims(now)).SignedString([]byte("shared-secret"))
		require.NoError(t, err)
		_, err = jwtx.VerifyClientAssertion(tok, ks, opts)
		require.ErrorIs(t, err, jwtx.ErrUnsupportedAlg)
	})

	t.Run("none", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, assertionClaims(now)).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = jwtx.VerifyClientAssertion(tok, ks, opts)
		require.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := jwtx.VerifyClientAssertion("not.a.jwt", ks, opts)
		require.ErrorIs(t, err, jwtx.ErrMalformed)
	})
}

func TestAssertionSubject(t *testing.T) {
	key := newKey(t, jwtx.AlgorithmEdDSA)
	sub, err := jwtx.AssertionSubject(signAssertion(t, key, jwtx.AlgorithmEdDSA, "", assertionClaims(time.Now())))
	require.NoError(t, err)
	require.Equal(t, "client-a", sub)

	_, err = jwtx.AssertionSubject("junk")
	require.Error(t, err)
}

func TestParseClientKeySet(t *testing.T) {
	key := newKey(t, jwtx.AlgorithmPS256)
	jwk, err := jwtx.NewPublicJWK("k1", jwtx.AlgorithmPS256, key.Public())
	require.NoError(t, err)
	doc, err := json.Marshal(jwtx.JWKS{Keys: []jwtx.JWK{jwk}})
	require.NoError(t, err)

	ks, err := jwtx.ParseClientKeySet(doc)
	require.NoError(t, err)
	require.Equal(t, 1, ks.Len())

	_, err = jwtx.ParseClientKeySet([]byte(`{"keys":[]}`))
	require.ErrorIs(t, err, jwtx.ErrMalformed)

	_, err = jwtx.ParseClientKeySet([]byte(`not json`))
	require.ErrorIs(t, err, jwtx.ErrMalformed)

	// A symmetric key is never acceptable.
	_, err = jwtx.ParseClientKeySet([]byte(`{"keys":[{"kty":"oct","k":"c2VjcmV0"}]}`))
	require.Error(t, err)

	// A key pinned to an algorithm it cannot serve is refused.
	jwk.Alg = jwtx.AlgorithmES256
	doc, err = json.Marshal(jwtx.JWKS{Keys: []jwtx.JWK{jwk}})
	require.NoError(t, err)
	_, err = jwtx.ParseClientKeySet(doc)
	require.ErrorIs(t, err, jwtx.ErrAlgMismatch)
}
