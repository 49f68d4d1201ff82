package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/fapiauth/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	ErrAlreadyUsed   = errors.New("store: already used")
	ErrExpired       = errors.New("store: expired")
)

// Store is the root data access interface. Concrete drivers (memory, sqlite)
// implement this. Sub-repositories are exposed as methods so a Tx-scoped
// Store can hand out repositories bound to the transaction.
type Store interface {
	Clients() Clients
	PushedRequests() PushedRequests
	AuthorizationCodes() AuthorizationCodes
	AccessTokens() AccessTokens
	RefreshTokens() RefreshTokens
	SigningKeys() SigningKeys

	ApplyMigrations() error

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed. Nested
	// transactions are not supported.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}

// Tx is a transaction-scoped view of the store.
type Tx interface {
	Clients() Clients
	PushedRequests() PushedRequests
	AuthorizationCodes() AuthorizationCodes
	AccessTokens() AccessTokens
	RefreshTokens() RefreshTokens
	SigningKeys() SigningKeys
}

type Clients interface {
	GetClientByID(ctx context.Context, id string) (domain.Client, error)

	// ListClients returns all clients ordered by id.
	ListClients(ctx context.Context) ([]domain.Client, error)

	// UpsertClient inserts or replaces a client by id.
	UpsertClient(ctx context.Context, c domain.Client) error

	DeleteClient(ctx context.Context, id string) error
}

type PushedRequests interface {
	// CreatePushedRequest stores a new request; ErrAlreadyExists on id clash.
	CreatePushedRequest(ctx context.Context, p domain.PushedAuthorizationRequest) error

	// ConsumePushedRequest marks the request used and returns it, as one
	// atomic step. A second call returns ErrAlreadyUsed; an unknown id
	// ErrNotFound; a request at or past expiry ErrExpired.
	ConsumePushedRequest(ctx context.Context, id string, now time.Time) (domain.PushedAuthorizationRequest, error)

	// DeleteExpiredPushedRequests removes up to limit requests that expired
	// before now, or were used, and reports how many it removed.
	DeleteExpiredPushedRequests(ctx context.Context, now time.Time, limit int) (int, error)
}

type AuthorizationCodes interface {
	CreateAuthorizationCode(ctx context.Context, code domain.AuthorizationCode) error

	// ConsumeAuthorizationCode atomically marks the code used and returns
	// it. ErrAlreadyUsed is returned together with the stored code so the
	// caller can revoke its grant. Expired codes are deleted and reported
	// as ErrExpired.
	ConsumeAuthorizationCode(ctx context.Context, hash string, now time.Time) (domain.AuthorizationCode, error)

	DeleteExpiredAuthorizationCodes(ctx context.Context, now time.Time, limit int) (int, error)
}

type AccessTokens interface {
	CreateAccessToken(ctx context.Context, t domain.AccessTokenRecord) error
	GetAccessToken(ctx context.Context, jti string) (domain.AccessTokenRecord, error)

	// RevokeAccessTokensByGrant flags every token of a grant as revoked.
	RevokeAccessTokensByGrant(ctx context.Context, grantID string) (int, error)

	DeleteExpiredAccessTokens(ctx context.Context, now time.Time, limit int) (int, error)
}

type RefreshTokens interface {
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// ConsumeRefreshToken deletes the token and returns what was stored.
	// Exactly one concurrent caller succeeds.
	ConsumeRefreshToken(ctx context.Context, hash string) (domain.RefreshToken, error)

	RevokeRefreshTokensByGrant(ctx context.Context, grantID string) (int, error)

	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time, limit int) (int, error)
}

type SigningKeys interface {
	// CreateSigningKey stores a new signing key with sealed key material.
	CreateSigningKey(ctx context.Context, key domain.SigningKey) error

	// ListSigningKeys returns every stored key, newest first.
	ListSigningKeys(ctx context.Context) ([]domain.SigningKey, error)

	// RetireSigningKey marks a key retired; it stays verifiable until expiresAt.
	RetireSigningKey(ctx context.Context, kid string, retiredAt, expiresAt time.Time) error

	DeleteSigningKey(ctx context.Context, kid string) error
}

// ReplayCache remembers single-use identifiers (assertion and DPoP jti)
// until they expire.
type ReplayCache interface {
	// Remember records key until expiresAt. It returns ErrAlreadyUsed when
	// the key is already present and unexpired.
	Remember(ctx context.Context, key string, expiresAt time.Time) error

	// DeleteExpired drops up to limit entries that expired before now.
	DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error)

	Ping(ctx context.Context) error
}
