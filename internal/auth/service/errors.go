package service

import (
	"errors"
	"fmt"
)

// Protocol errors. Handlers map them to OAuth error responses with errors.Is.
var (
	ErrInvalidRequest          = errors.New("invalid_request")
	ErrInvalidRequestURI       = errors.New("invalid_request_uri")
	ErrInvalidClient           = errors.New("invalid_client")
	ErrUnauthorizedClient      = errors.New("unauthorized_client")
	ErrInvalidGrant            = errors.New("invalid_grant")
	ErrInvalidScope            = errors.New("invalid_scope")
	ErrInvalidDPoPProof        = errors.New("invalid_dpop_proof")
	ErrUnsupportedGrantType    = errors.New("unsupported_grant_type")
	ErrUnsupportedResponseType = errors.New("unsupported_response_type")
	ErrInvalidToken            = errors.New("invalid_token")
	ErrInsufficientScope       = errors.New("insufficient_scope")
	ErrKeysNotReady            = errors.New("signing keys not ready")
)

// detailError attaches a description that is safe to show the client.
type detailError struct {
	err  error
	desc string
}

func (e *detailError) Error() string { return e.err.Error() + ": " + e.desc }
func (e *detailError) Unwrap() error { return e.err }

func withDetail(err error, format string, args ...any) error {
	return &detailError{err: err, desc: fmt.Sprintf(format, args...)}
}

// Description returns the client-facing description carried by err, or ""
// when there is none.
func Description(err error) string {
	var d *detailError
	if errors.As(err, &d) {
		return d.desc
	}
	return ""
}

var protocolErrors = []error{
	ErrInvalidRequest,
	ErrInvalidRequestURI,
	ErrInvalidClient,
	ErrUnauthorizedClient,
	ErrInvalidGrant,
	ErrInvalidScope,
	ErrInvalidDPoPProof,
	ErrUnsupportedGrantType,
	ErrUnsupportedResponseType,
	ErrInvalidToken,
	ErrInsufficientScope,
}

// Code returns the OAuth error code for err, or "server_error" when err is
// not a protocol error.
func Code(err error) string {
	for _, p := range protocolErrors {
		if errors.Is(err, p) {
			return p.Error()
		}
	}
	if errors.Is(err, ErrKeysNotReady) {
		return "temporarily_unavailable"
	}
	return "server_error"
}
