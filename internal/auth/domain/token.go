package domain

import "time"

// Token types reported to clients.
const (
	TokenTypeBearer = "Bearer"
	TokenTypeDPoP   = "DPoP"
)

// TokenSet is what the token endpoint returns.
type TokenSet struct {
	AccessToken  string
	TokenType    string
	ExpiresIn    time.Duration
	RefreshToken string
	IDToken      string
	Scopes       []string
}

// AccessTokenRecord indexes an issued access token by its jti.
type AccessTokenRecord struct {
	JTI      string
	GrantID  string
	ClientID string
	Subject  string
	Scopes   []string
	Purpose  string

	// JKT is the DPoP key thumbprint the token is bound to, if any.
	JKT       string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
}

func (t AccessTokenRecord) IsActive(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// RefreshToken is a stored refresh token. It is deleted when redeemed.
type RefreshToken struct {
	ID        string
	TokenHash string // base64url SHA-256 of the opaque value
	GrantID   string
	ClientID  string
	Subject   string
	Scopes    []string
	Purpose   string
	Nonce     string
	JKT       string
	AuthTime  time.Time
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (t RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
