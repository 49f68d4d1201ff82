package jwtx

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"hash"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token lifetimes.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultIDTokenTTL      = 15 * time.Minute
	DefaultRefreshTokenTTL = time.Hour
)

// Confirmation is the "cnf" claim binding a token to a proof-of-possession key.
type Confirmation struct {
	// JKT is the RFC 7638 SHA-256 thumbprint of the DPoP key.
	JKT string `json:"jkt,omitempty"`
}

// AccessClaims are the claims of an access token (typ at+jwt).
type AccessClaims struct {
	jwt.RegisteredClaims

	ClientID string        `json:"client_id"`
	Scope    string        `json:"scope,omitempty"`
	Purpose  string        `json:"purpose,omitempty"`
	Cnf      *Confirmation `json:"cnf,omitempty"`
}

// Scopes splits the space-delimited scope claim.
func (c *AccessClaims) Scopes() []string {
	return strings.Fields(c.Scope)
}

// JKT returns the bound DPoP key thumbprint, if any.
func (c *AccessClaims) JKT() string {
	if c.Cnf == nil {
		return ""
	}
	return c.Cnf.JKT
}

// NewAccessClaims builds access token claims. The audience is the client.
func NewAccessClaims(issuer, subject, clientID, scope string, ttl time.Duration, now time.Time) AccessClaims {
	return AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{clientID},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		ClientID: clientID,
		Scope:    scope,
	}
}

// IDClaims are OpenID Connect ID token claims.
type IDClaims struct {
	jwt.RegisteredClaims

	AuthTime *jwt.NumericDate `json:"auth_time,omitempty"`
	Nonce    string           `json:"nonce,omitempty"`
	AtHash   string           `json:"at_hash,omitempty"`
}

// NewIDClaims builds ID token claims for clientID.
func NewIDClaims(issuer, subject, clientID, nonce string, authTime time.Time, ttl time.Duration, now time.Time) IDClaims {
	return IDClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{clientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		AuthTime: jwt.NewNumericDate(authTime),
		Nonce:    nonce,
	}
}

// NewJTI returns a random identifier for the "jti" claim.
func NewJTI() string {
	return uuid.NewString()
}

// TokenHash computes the OIDC at_hash: the left half of the hash of the
// token, using the hash that matches the signing algorithm.
func TokenHash(token, alg string) string {
	var h hash.Hash
	switch alg {
	case AlgorithmEdDSA:
		h = sha512.New()
	default:
		h = sha256.New()
	}
	h.Write([]byte(token))
	sum := h.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}

// AccessTokenHash is the DPoP "ath" value: base64url SHA-256 of the token.
func AccessTokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
