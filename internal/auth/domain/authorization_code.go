package domain

import "time"

// Artifact lifetimes.
const (
	PushedRequestTTL     = 60 * time.Second
	AuthorizationCodeTTL = 10 * time.Minute
)

// CodeChallengeMethodS256 is the only accepted PKCE method.
const CodeChallengeMethodS256 = "S256"

// AuthorizationParams are the parameters an authorization request carries,
// whether pushed to /par or sent inline.
type AuthorizationParams struct {
	ClientID            string
	RedirectURI         string
	Scopes              []string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	Purpose             string
	Prompt              string
	MaxAge              *int
	Claims              string
}

// PushedAuthorizationRequest is a request stored by /par and referenced by
// its request_uri. It is consumable once.
type PushedAuthorizationRequest struct {
	ID string
	AuthorizationParams
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

func (p PushedAuthorizationRequest) IsExpired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// AuthorizationCode is an issued code. Only the fingerprint of the code
// value is stored.
type AuthorizationCode struct {
	ID       string
	CodeHash string

	// GrantID ties together every token minted from this code, so a replay
	// can revoke them all.
	GrantID string

	ClientID            string
	Subject             string
	RedirectURI         string
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string
	Nonce               string
	Purpose             string
	Claims              string
	AuthTime            time.Time
	ExpiresAt           time.Time
	UsedAt              *time.Time
	CreatedAt           time.Time
}

func (c AuthorizationCode) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
