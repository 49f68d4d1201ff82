package sqlite

import (
	"database/sql"

	"github.com/aussiebroadwan/fapiauth/internal/auth/store"
)

type txStore struct {
	q *sql.Tx
}

func (t txStore) Clients() store.Clients               { return &clientsRepo{q: t.q} }
func (t txStore) PushedRequests() store.PushedRequests { return &pushedRequestsRepo{q: t.q} }
func (t txStore) AuthorizationCodes() store.AuthorizationCodes {
	return &authorizationCodesRepo{q: t.q}
}
func (t txStore) AccessTokens() store.AccessTokens   { return &accessTokensRepo{q: t.q} }
func (t txStore) RefreshTokens() store.RefreshTokens { return &refreshTokensRepo{q: t.q} }
func (t txStore) SigningKeys() store.SigningKeys     { return &signingKeysRepo{q: t.q} }
