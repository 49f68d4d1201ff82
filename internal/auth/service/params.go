package service

import (
	"slices"
	"strconv"
	"strings"

	"github.com/aussiebroadwan/fapiauth/internal/auth/domain"
)

// AuthorizationRequest carries the raw parameters of an authorization
// request, from a /par body or an /authorize query.
type AuthorizationRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	Purpose             string
	Prompt              string
	MaxAge              string
	Claims              string
	RequestURI          string
}

// Purposes a client may declare for the data it requests.
var Purposes = []string{"accountOpening", "creditAssessment", "compliance", "customerUpdate"}

var prompts = []string{"none", "login", "consent", "select_account"}

// validateParams checks a request against the registered client and returns
// the normalized parameters. The redirect URI must already be known valid.
func validateParams(client domain.Client, req AuthorizationRequest) (domain.AuthorizationParams, error) {
	if req.ResponseType == "" {
		return domain.AuthorizationParams{}, withDetail(ErrInvalidRequest, "response_type is required")
	}
	if req.ResponseType != "code" {
		return domain.AuthorizationParams{}, withDetail(ErrUnsupportedResponseType, "response_type must be code")
	}

	scopes := dedupe(strings.Fields(req.Scope))
	if len(scopes) == 0 {
		return domain.AuthorizationParams{}, withDetail(ErrInvalidScope, "scope is required")
	}
	if bad := client.DisallowedScopes(scopes); len(bad) > 0 {
		return domain.AuthorizationParams{}, withDetail(ErrInvalidScope, "scope not allowed: %s", strings.Join(bad, " "))
	}

	if req.CodeChallenge == "" {
		return domain.AuthorizationParams{}, withDetail(ErrInvalidRequest, "code_challenge is required")
	}
	if req.CodeChallengeMethod != domain.CodeChallengeMethodS256 {
		return domain.AuthorizationParams{}, withDetail(ErrInvalidRequest, "code_challenge_method must be S256")
	}
	if !isChallenge(req.CodeChallenge) {
		return domain.AuthorizationParams{}, withDetail(ErrInvalidRequest, "code_challenge must be a base64url SHA-256 digest")
	}

	if req.Purpose != "" && !slices.Contains(Purposes, req.Purpose) {
		return domain.AuthorizationParams{}, withDetail(ErrInvalidRequest, "unknown purpose")
	}

	if req.Prompt != "" {
		values := strings.Fields(req.Prompt)
		for _, p := range values {
			if !slices.Contains(prompts, p) {
				return domain.AuthorizationParams{}, withDetail(ErrInvalidRequest, "unknown prompt value %q", p)
			}
		}
		if slices.Contains(values, "none") && len(values) > 1 {
			return domain.AuthorizationParams{}, withDetail(ErrInvalidRequest, "prompt=none cannot be combined")
		}
	}

	var maxAge *int
	if req.MaxAge != "" {
		n, err := strconv.Atoi(req.MaxAge)
		if err != nil || n < 0 {
			return domain.AuthorizationParams{}, withDetail(ErrInvalidRequest, "max_age must be a non-negative integer")
		}
		maxAge = &n
	}

	return domain.AuthorizationParams{
		ClientID:            client.ID,
		RedirectURI:         req.RedirectURI,
		Scopes:              scopes,
		State:               req.State,
		Nonce:               req.Nonce,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		Purpose:             req.Purpose,
		Prompt:              req.Prompt,
		MaxAge:              maxAge,
		Claims:              req.Claims,
	}, nil
}

// isChallenge reports whether s is 43 base64url characters, the encoding
// of a SHA-256 digest.
func isChallenge(s string) bool {
	return len(s) == 43 && isBase64URL(s)
}

// isVerifier applies the RFC 7636 code_verifier grammar.
func isVerifier(s string) bool {
	if len(s) < 43 || len(s) > 128 {
		return false
	}
	for _, r := range s {
		if !isUnreserved(r) {
			return false
		}
	}
	return true
}

func isBase64URL(s string) bool {
	for _, r := range s {
		if !isUnreserved(r) || r == '.' || r == '~' {
			return false
		}
	}
	return true
}

func isUnreserved(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '.', r == '_', r == '~':
		return true
	}
	return false
}
