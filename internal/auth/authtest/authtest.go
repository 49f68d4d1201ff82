// Package authtest holds fixtures shared by the auth server's tests.
package authtest

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/aussiebroadwan/fapiauth/internal/auth/domain"
	"github.com/aussiebroadwan/fapiauth/pkg/cryptox"
	"github.com/aussiebroadwan/fapiauth/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

// PKCE vector from RFC 7636 appendix B.
const (
	Verifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	Challenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

const (
	Issuer      = "https://auth.example.com"
	RedirectURI = "https://tpp.example.com/callback"
)

// Epoch is the starting point for fake clocks in tests.
var Epoch = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// NewKey generates an ES256 key.
func NewKey(t testing.TB) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

// JWKS encodes a one-key JWK Set for pub.
func JWKS(t testing.TB, kid, alg string, pub crypto.PublicKey) []byte {
	t.Helper()
	jwk, err := jwtx.NewPublicJWK(kid, alg, pub)
	require.NoError(t, err)
	data, err := json.Marshal(jwtx.JWKS{Keys: []jwtx.JWK{jwk}})
	require.NoError(t, err)
	return data
}

// Certificate self-signs a certificate for key with the given common name,
// valid from notBefore to notAfter.
func Certificate(t testing.TB, key crypto.Signer, cn string, notBefore, notAfter time.Time) *x509.Certificate {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

// CertificatePEM encodes cert as a PEM block.
func CertificatePEM(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

// JWTClient is a private_key_jwt client registered with key.
func JWTClient(t testing.TB, id string, key crypto.Signer) domain.Client {
	t.Helper()
	return domain.Client{
		ID:           id,
		Name:         id,
		Status:       domain.ClientStatusActive,
		AuthMethod:   domain.AuthMethodPrivateKeyJWT,
		RedirectURIs: []string{RedirectURI},
		JWKS:         JWKS(t, id+"-key", jwtx.AlgorithmES256, key.Public()),
		CreatedAt:    Epoch,
		UpdatedAt:    Epoch,
	}
}

// MTLSClient is a tls_client_auth client trusting cert.
func MTLSClient(id string, cert *x509.Certificate) domain.Client {
	return domain.Client{
		ID:              id,
		Name:            id,
		Status:          domain.ClientStatusActive,
		AuthMethod:      domain.AuthMethodTLSClientAuth,
		RedirectURIs:    []string{RedirectURI},
		CertFingerprint: cryptox.CertificateFingerprint(cert),
		CreatedAt:       Epoch,
		UpdatedAt:       Epoch,
	}
}
