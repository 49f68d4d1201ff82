package authsdk

import (
	"crypto"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aussiebroadwan/fapiauth/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
)

// DPoPSigner creates DPoP proofs with one key pair.
type DPoPSigner struct {
	key    crypto.Signer
	alg    string
	method jwt.SigningMethod
	jwk    map[string]any
	jkt    string
}

// NewDPoPSigner wraps key for alg.
func NewDPoPSigner(key crypto.Signer, alg string) (*DPoPSigner, error) {
	method, err := jwtx.SigningMethod(alg)
	if err != nil {
		return nil, err
	}
	pub, err := jwtx.NewPublicJWK("", alg, key.Public())
	if err != nil {
		return nil, err
	}
	// The header carries only the key members.
	pub.Alg, pub.Use = "", ""
	raw, err := json.Marshal(pub)
	if err != nil {
		return nil, err
	}
	var header map[string]any
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, err
	}
	jkt, err := jwtx.Thumbprint(key.Public())
	if err != nil {
		return nil, err
	}

	return &DPoPSigner{key: key, alg: alg, method: method, jwk: header, jkt: jkt}, nil
}

// JKT returns the thumbprint tokens bound to this key carry in cnf.jkt.
func (d *DPoPSigner) JKT() string { return d.jkt }

// Proof signs a proof for one request. accessToken is set when the proof
// accompanies a DPoP-bound token, adding the ath claim.
func (d *DPoPSigner) Proof(method, targetURL, accessToken string, now time.Time) (string, error) {
	claims := jwtx.DPoPClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       jwtx.NewJTI(),
			IssuedAt: jwt.NewNumericDate(now),
		},
		HTM: method,
		HTU: targetURL,
	}
	if accessToken != "" {
		claims.ATH = jwtx.AccessTokenHash(accessToken)
	}

	t := jwt.NewWithClaims(d.method, claims)
	t.Header["typ"] = jwtx.TypeDPoPProof
	t.Header["jwk"] = d.jwk
	s, err := t.SignedString(d.key)
	if err != nil {
		return "", fmt.Errorf("sign DPoP proof: %w", err)
	}
	return s, nil
}
