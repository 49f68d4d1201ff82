package jwtx

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ClientAssertionType is the only accepted client_assertion_type.
const ClientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// Assertion and proof timing bounds.
const (
	DefaultAssertionMaxLifetime = 60 * time.Minute
	DefaultClockSkew            = 60 * time.Second
)

// AssertionOptions are the expectations a private_key_jwt assertion is checked against.
type AssertionOptions struct {
	// ClientID must equal both iss and sub.
	ClientID string
	// Audience is the token endpoint URL; aud must contain it.
	Audience string
	Now      time.Time
	// MaxLifetime bounds exp relative to Now.
	MaxLifetime time.Duration
	// Skew bounds |iat - Now|.
	Skew time.Duration
}

// AssertionSubject reads sub from an assertion without verifying it, so the
// caller can find the client when client_id was not sent.
func AssertionSubject(assertion string) (string, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(assertion, &claims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return claims.Subject, nil
}

// VerifyClientAssertion checks the signature of a client assertion against
// the client's keys and validates its claims. The jti is returned in the
// claims; single-use tracking is up to the caller.
func VerifyClientAssertion(assertion string, keys *ClientKeySet, opts AssertionOptions) (*jwt.RegisteredClaims, error) {
	if keys == nil || keys.Len() == 0 {
		return nil, fmt.Errorf("%w: client has no keys", ErrUnknownKID)
	}
	if opts.MaxLifetime <= 0 {
		opts.MaxLifetime = DefaultAssertionMaxLifetime
	}
	if opts.Skew <= 0 {
		opts.Skew = DefaultClockSkew
	}

	parser := jwt.NewParser(jwt.WithValidMethods(SupportedAlgorithms), jwt.WithoutClaimsValidation())

	unverified, _, err := parser.ParseUnverified(assertion, &jwt.RegisteredClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	alg := unverified.Method.Alg()
	if !IsSupportedAlgorithm(alg) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlg, alg)
	}
	kid, _ := unverified.Header["kid"].(string)

	candidates := keys.candidates(alg, kid)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no %s key matching kid %q", ErrUnknownKID, alg, kid)
	}

	var claims *jwt.RegisteredClaims
	for _, pub := range candidates {
		c := &jwt.RegisteredClaims{}
		_, err = parser.ParseWithClaims(assertion, c, func(*jwt.Token) (any, error) { return pub, nil })
		if err == nil {
			claims = c
			break
		}
	}
	if claims == nil {
		return nil, mapParseError(err)
	}

	if err := validateAssertionClaims(claims, opts); err != nil {
		return nil, err
	}
	return claims, nil
}

func validateAssertionClaims(c *jwt.RegisteredClaims, opts AssertionOptions) error {
	if c.Issuer != opts.ClientID {
		return fmt.Errorf("%w: iss must be the client_id", ErrIssuer)
	}
	if c.Subject != opts.ClientID {
		return fmt.Errorf("%w: sub must be the client_id", ErrInvalidClaim)
	}
	if !slices.Contains(c.Audience, opts.Audience) {
		return ErrAudience
	}
	if c.ID == "" {
		return fmt.Errorf("%w: jti is required", ErrInvalidClaim)
	}

	if c.ExpiresAt == nil {
		return fmt.Errorf("%w: exp is required", ErrInvalidClaim)
	}
	exp := c.ExpiresAt.Time
	if !exp.After(opts.Now) {
		return ErrExpired
	}
	if exp.After(opts.Now.Add(opts.MaxLifetime)) {
		return fmt.Errorf("%w: exp too far in the future", ErrInvalidClaim)
	}

	if c.IssuedAt == nil {
		return fmt.Errorf("%w: iat is required", ErrInvalidClaim)
	}
	if err := checkSkew(c.IssuedAt.Time, opts.Now, opts.Skew); err != nil {
		return err
	}
	if c.NotBefore != nil && c.NotBefore.After(opts.Now.Add(opts.Skew)) {
		return ErrNotYetValid
	}
	return nil
}

func checkSkew(iat, now time.Time, skew time.Duration) error {
	d := now.Sub(iat)
	if d > skew {
		return fmt.Errorf("%w: iat too old", ErrInvalidClaim)
	}
	if d < -skew {
		return fmt.Errorf("%w: iat in the future", ErrNotYetValid)
	}
	return nil
}

// mapParseError folds jwt parser errors into this package's sentinels.
func mapParseError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUnknownKID), errors.Is(err, ErrAlgMismatch),
		errors.Is(err, ErrInvalidType), errors.Is(err, ErrPrivateKey),
		errors.Is(err, ErrUnsupportedAlg):
		return err
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSig
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ErrNotYetValid
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrIssuer
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrAudience
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrAlgMismatch, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
