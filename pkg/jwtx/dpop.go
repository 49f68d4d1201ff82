package jwtx

import (
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// ErrInvalidDPoP wraps every DPoP proof rejection.
var ErrInvalidDPoP = errors.New("jwtx: invalid DPoP proof")

// DPoPClaims is the payload of a DPoP proof (RFC 9449).
type DPoPClaims struct {
	jwt.RegisteredClaims

	HTM   string `json:"htm"`
	HTU   string `json:"htu"`
	ATH   string `json:"ath,omitempty"`
	Nonce string `json:"nonce,omitempty"`
}

// DPoPOptions describes the request a proof must match.
type DPoPOptions struct {
	Method string
	// URL is the absolute target URI, issuer plus endpoint path.
	URL  string
	Now  time.Time
	Skew time.Duration
	// AccessToken, when set, must be bound through the ath claim.
	AccessToken string
}

// DPoPProof is a verified proof.
type DPoPProof struct {
	Claims    DPoPClaims
	PublicKey crypto.PublicKey
	// JKT is the RFC 7638 thumbprint of the embedded key.
	JKT string
}

// VerifyDPoPProof validates a proof JWT: typ dpop+jwt, an allow-listed
// asymmetric alg, a public jwk header that verifies the signature, and
// htm/htu/iat/jti/ath claims matching the request. Replay of the jti is
// checked by the caller.
func VerifyDPoPProof(proof string, opts DPoPOptions) (*DPoPProof, error) {
	if opts.Skew <= 0 {
		opts.Skew = DefaultClockSkew
	}

	var key jwk.Key
	var pub crypto.PublicKey
	parser := jwt.NewParser(jwt.WithValidMethods(SupportedAlgorithms), jwt.WithoutClaimsValidation())

	claims := &DPoPClaims{}
	_, err := parser.ParseWithClaims(proof, claims, func(t *jwt.Token) (any, error) {
		if typ, _ := t.Header["typ"].(string); typ != TypeDPoPProof {
			return nil, ErrInvalidType
		}
		raw, ok := t.Header["jwk"]
		if !ok {
			return nil, fmt.Errorf("%w: missing jwk header", ErrMalformed)
		}
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		pub, key, err = ParsePublicJWK(data)
		if err != nil {
			return nil, err
		}
		if err := checkKeyForAlg(t.Method.Alg(), pub); err != nil {
			return nil, err
		}
		return pub, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDPoP, mapParseError(err))
	}

	if err := validateDPoPClaims(claims, opts); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDPoP, err)
	}

	jkt, err := keyThumbprint(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDPoP, err)
	}
	return &DPoPProof{Claims: *claims, PublicKey: pub, JKT: jkt}, nil
}

func validateDPoPClaims(c *DPoPClaims, opts DPoPOptions) error {
	if c.ID == "" {
		return fmt.Errorf("%w: jti is required", ErrInvalidClaim)
	}
	if c.HTM != opts.Method {
		return fmt.Errorf("%w: htm does not match", ErrInvalidClaim)
	}
	if !sameTargetURI(c.HTU, opts.URL) {
		return fmt.Errorf("%w: htu does not match", ErrInvalidClaim)
	}
	if c.IssuedAt == nil {
		return fmt.Errorf("%w: iat is required", ErrInvalidClaim)
	}
	if err := checkSkew(c.IssuedAt.Time, opts.Now, opts.Skew); err != nil {
		return err
	}
	if opts.AccessToken != "" && c.ATH != AccessTokenHash(opts.AccessToken) {
		return fmt.Errorf("%w: ath does not match", ErrInvalidClaim)
	}
	return nil
}

// sameTargetURI compares two URIs ignoring query, fragment and the case of
// scheme and host.
func sameTargetURI(got, want string) bool {
	g, err := url.Parse(got)
	if err != nil || g.Host == "" {
		return false
	}
	w, err := url.Parse(want)
	if err != nil {
		return false
	}
	return strings.EqualFold(g.Scheme, w.Scheme) &&
		strings.EqualFold(g.Host, w.Host) &&
		strings.TrimSuffix(g.Path, "/") == strings.TrimSuffix(w.Path, "/")
}
