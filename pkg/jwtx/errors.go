package jwtx

import "errors"

var (
	ErrMalformed      = errors.New("jwtx: malformed token")
	ErrUnsupportedAlg = errors.New("jwtx: unsupported algorithm")
	ErrAlgMismatch    = errors.New("jwtx: algorithm mismatch")
	ErrUnknownKID     = errors.New("jwtx: unknown kid")
	ErrInvalidSig     = errors.New("jwtx: invalid signature")
	ErrInvalidType    = errors.New("jwtx: unexpected typ header")
	ErrPrivateKey     = errors.New("jwtx: private key material not allowed")

	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrAudience     = errors.New("jwtx: audience mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")

	ErrNoSigningKey = errors.New("jwtx: no signing key")
)
