// Package memory is the in-process store backend. All repositories share
// one mutex; WithTx holds it for the whole transaction and undoes writes on
// rollback.
package memory

import (
	"context"
	"sync"

	"github.com/aussiebroadwan/fapiauth/internal/auth/domain"
	"github.com/aussiebroadwan/fapiauth/internal/auth/store"
)

// Store keeps every repository in process memory.
type Store struct {
	mu sync.Mutex

	clients map[string]domain.Client
	pars    map[string]domain.PushedAuthorizationRequest
	codes   map[string]domain.AuthorizationCode
	access  map[string]domain.AccessTokenRecord
	refresh map[string]domain.RefreshToken
	keys    map[string]domain.SigningKey
}

var _ store.Store = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		clients: make(map[string]domain.Client),
		pars:    make(map[string]domain.PushedAuthorizationRequest),
		codes:   make(map[string]domain.AuthorizationCode),
		access:  make(map[string]domain.AccessTokenRecord),
		refresh: make(map[string]domain.RefreshToken),
		keys:    make(map[string]domain.SigningKey),
	}
}

func (s *Store) ApplyMigrations() error         { return nil }
func (s *Store) Close() error                   { return nil }
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// WithTx runs fn with the store locked. Repositories obtained from the
// store itself (not from tx) must not be used inside fn.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &txStore{scope: scope{s: s, undo: &[]func(){}}}
	if err := fn(tx); err != nil {
		undo := *tx.scope.undo
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		return err
	}
	return nil
}

func (s *Store) Clients() store.Clients               { return &clientsRepo{scope{s: s}} }
func (s *Store) PushedRequests() store.PushedRequests { return &pushedRequestsRepo{scope{s: s}} }
func (s *Store) AuthorizationCodes() store.AuthorizationCodes {
	return &authorizationCodesRepo{scope{s: s}}
}
func (s *Store) AccessTokens() store.AccessTokens   { return &accessTokensRepo{scope{s: s}} }
func (s *Store) RefreshTokens() store.RefreshTokens { return &refreshTokensRepo{scope{s: s}} }
func (s *Store) SigningKeys() store.SigningKeys     { return &signingKeysRepo{scope{s: s}} }

type txStore struct {
	scope scope
}

func (t *txStore) Clients() store.Clients               { return &clientsRepo{t.scope} }
func (t *txStore) PushedRequests() store.PushedRequests { return &pushedRequestsRepo{t.scope} }
func (t *txStore) AuthorizationCodes() store.AuthorizationCodes {
	return &authorizationCodesRepo{t.scope}
}
func (t *txStore) AccessTokens() store.AccessTokens   { return &accessTokensRepo{t.scope} }
func (t *txStore) RefreshTokens() store.RefreshTokens { return &refreshTokensRepo{t.scope} }
func (t *txStore) SigningKeys() store.SigningKeys     { return &signingKeysRepo{t.scope} }

// scope is how a repository reaches the data: directly, locking per call,
// or inside a transaction that already holds the lock and records undo
// steps.
type scope struct {
	s    *Store
	undo *[]func()
}

func (sc scope) lock() func() {
	if sc.undo != nil {
		return func() {}
	}
	sc.s.mu.Lock()
	return sc.s.mu.Unlock
}

func put[K comparable, V any](sc scope, m map[K]V, k K, v V) {
	old, had := m[k]
	m[k] = v
	if sc.undo != nil {
		*sc.undo = append(*sc.undo, func() {
			if had {
				m[k] = old
			} else {
				delete(m, k)
			}
		})
	}
}

func del[K comparable, V any](sc scope, m map[K]V, k K) {
	old, had := m[k]
	if !had {
		return
	}
	delete(m, k)
	if sc.undo != nil {
		*sc.undo = append(*sc.undo, func() { m[k] = old })
	}
}

// sweep deletes up to limit entries matching expired.
func sweep[K comparable, V any](sc scope, m map[K]V, limit int, expired func(V) bool) int {
	n := 0
	for k, v := range m {
		if limit > 0 && n >= limit {
			break
		}
		if expired(v) {
			del(sc, m, k)
			n++
		}
	}
	return n
}
