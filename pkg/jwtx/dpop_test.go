package jwtx_test

import (
	"crypto"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/aussiebroadwan/fapiauth/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

type proofParams struct {
	key    crypto.Signer
	alg    string
	typ    string
	jwk    any
	claims jwtx.DPoPClaims
}

func buildProof(t *testing.T, p proofParams) string {
	t.Helper()
	method, err := jwtx.SigningMethod(p.alg)
	require.NoError(t, err)

	tok := jwt.NewWithClaims(method, p.claims)
	tok.Header["typ"] = p.typ
	if p.jwk != nil {
		tok.Header["jwk"] = p.jwk
	}
	s, err := tok.SignedString(p.key)
	require.NoError(t, err)
	return s
}

func publicJWKHeader(t *testing.T, alg string, pub crypto.PublicKey) map[string]any {
	t.Helper()
	j, err := jwtx.NewPublicJWK("", alg, pub)
	require.NoError(t, err)
	raw, err := json.Marshal(j)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func proofClaims(now time.Time) jwtx.DPoPClaims {
	return jwtx.DPoPClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       "proof-1",
			IssuedAt: jwt.NewNumericDate(now),
		},
		HTM: "POST",
		HTU: tokenEndpoint,
	}
}

func TestVerifyDPoPProof(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	for _, alg := range jwtx.SupportedAlgorithms {
		t.Run(alg, func(t *testing.T) {
			key := newKey(t, alg)
			proof := buildProof(t, proofParams{
				key:    key,
				alg:    alg,
				typ:    jwtx.TypeDPoPProof,
				jwk:    publicJWKHeader(t, alg, key.Public()),
				claims: proofClaims(now),
			})

			got, err := jwtx.VerifyDPoPProof(proof, jwtx.DPoPOptions{Method: "POST", URL: tokenEndpoint, Now: now})
			require.NoError(t, err)
			require.Equal(t, "proof-1", got.Claims.ID)

			want, err := jwtx.Thumbprint(key.Public())
			require.NoError(t, err)
			require.Equal(t, want, got.JKT)
		})
	}
}

func TestVerifyDPoPProof_Rejects(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	key := newKey(t, jwtx.AlgorithmES256)
	header := publicJWKHeader(t, jwtx.AlgorithmES256, key.Public())
	opts := jwtx.DPoPOptions{Method: "POST", URL: tokenEndpoint, Now: now}

	valid := func() proofParams {
		return proofParams{key: key, alg: jwtx.AlgorithmES256, typ: jwtx.TypeDPoPProof, jwk: header, claims: proofClaims(now)}
	}

	tests := []struct {
		name   string
		mutate func(p *proofParams)
		opts   func(o *jwtx.DPoPOptions)
	}{
		{name: "wrong typ", mutate: func(p *proofParams) { p.typ = "JWT" }},
		{name: "missing jwk", mutate: func(p *proofParams) { p.jwk = nil }},
		{name: "jwk of another key", mutate: func(p *proofParams) {
			p.jwk = publicJWKHeader(t, jwtx.AlgorithmES256, newKey(t, jwtx.AlgorithmES256).Public())
		}},
		{name: "wrong htm", mutate: func(p *proofParams) { p.claims.HTM = "GET" }},
		{name: "wrong htu", mutate: func(p *proofParams) { p.claims.HTU = exampleIssuer + "/par" }},
		{name: "relative htu", mutate: func(p *proofParams) { p.claims.HTU = "/token" }},
		{name: "missing jti", mutate: func(p *proofParams) { p.claims.ID = "" }},
		{name: "missing iat", mutate: func(p *proofParams) { p.claims.IssuedAt = nil }},
		{name: "stale iat", mutate: func(p *proofParams) { p.claims.IssuedAt = jwt.NewNumericDate(now.Add(-2 * time.Minute)) }},
		{name: "future iat", mutate: func(p *proofParams) { p.claims.IssuedAt = jwt.NewNumericDate(now.Add(2 * time.Minute)) }},
		{name: "ath required", opts: func(o *jwtx.DPoPOptions) { o.AccessToken = "some-token" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			if tt.mutate != nil {
				tt.mutate(&p)
			}
			o := opts
			if tt.opts != nil {
				tt.opts(&o)
			}
			_, err := jwtx.VerifyDPoPProof(buildProof(t, p), o)
			require.ErrorIs(t, err, jwtx.ErrInvalidDPoP)
		})
	}

	t.Run("private key in header", func(t *testing.T) {
		p := valid()
		p.jwk = map[string]any{
			"kty": "oct",
			"k":   base64.RawURLEncoding.EncodeToString([]byte("secret")),
		}
		_, err := jwtx.VerifyDPoPProof(buildProof(t, p), opts)
		require.ErrorIs(t, err, jwtx.ErrInvalidDPoP)
	})

	t.Run("htu ignores query and trailing slash", func(t *testing.T) {
		p := valid()
		p.claims.HTU = tokenEndpoint + "/?x=1"
		_, err := jwtx.VerifyDPoPProof(buildProof(t, p), opts)
		require.NoError(t, err)
	})

	t.Run("ath accepted", func(t *testing.T) {
		p := valid()
		p.claims.HTM = "GET"
		p.claims.HTU = exampleIssuer + "/userinfo"
		p.claims.ATH = jwtx.AccessTokenHash("some-token")
		_, err := jwtx.VerifyDPoPProof(buildProof(t, p), jwtx.DPoPOptions{
			Method: "GET", URL: exampleIssuer + "/userinfo", Now: now, AccessToken: "some-token",
		})
		require.NoError(t, err)
	})
}

func TestThumbprint_MatchesCanonicalForm(t *testing.T) {
	key := newKey(t, jwtx.AlgorithmES256)
	j, err := jwtx.NewPublicJWK("ignored", jwtx.AlgorithmES256, key.Public())
	require.NoError(t, err)

	// RFC 7638: required members only, lexicographic order, no whitespace.
	canonical := `{"crv":"P-256","kty":"EC","x":"` + j.X + `","y":"` + j.Y + `"}`
	sum := sha256.Sum256([]byte(canonical))

	got, err := jwtx.Thumbprint(key.Public())
	require.NoError(t, err)
	require.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), got)
}
