// Package storetest holds behaviour tests every store driver must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/fapiauth/internal/auth/domain"
	"github.com/aussiebroadwan/fapiauth/internal/auth/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// Run exercises a driver. newStore must return an empty, migrated store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("Clients", func(t *testing.T) { testClients(t, newStore(t)) })
	t.Run("PushedRequestSingleUse", func(t *testing.T) { testPushedRequestSingleUse(t, newStore(t)) })
	t.Run("PushedRequestExpiry", func(t *testing.T) { testPushedRequestExpiry(t, newStore(t)) })
	t.Run("CodeSingleUseConcurrent", func(t *testing.T) { testCodeSingleUseConcurrent(t, newStore(t)) })
	t.Run("CodeReplayAndExpiry", func(t *testing.T) { testCodeReplayAndExpiry(t, newStore(t)) })
	t.Run("Tokens", func(t *testing.T) { testTokens(t, newStore(t)) })
	t.Run("RefreshSingleUseConcurrent", func(t *testing.T) { testRefreshSingleUseConcurrent(t, newStore(t)) })
	t.Run("SweepBatches", func(t *testing.T) { testSweepBatches(t, newStore(t)) })
	t.Run("SigningKeys", func(t *testing.T) { testSigningKeys(t, newStore(t)) })
	t.Run("TxRollback", func(t *testing.T) { testTxRollback(t, newStore(t)) })
}

func testClients(t *testing.T, s store.Store) {
	ctx := t.Context()

	c := domain.Client{
		ID:              "client-b",
		Name:            "Client B",
		Status:          domain.ClientStatusActive,
		AuthMethod:      domain.AuthMethodTLSClientAuth,
		RedirectURIs:    []string{"https://b.example.com/cb", "https://b.example.com/cb2"},
		Scopes:          []string{"openid", "accounts"},
		RequirePAR:      true,
		CertFingerprint: "AA:BB",
		CreatedAt:       epoch,
		UpdatedAt:       epoch,
	}
	require.NoError(t, s.Clients().UpsertClient(ctx, c))
	require.NoError(t, s.Clients().UpsertClient(ctx, domain.Client{
		ID: "client-a", Status: domain.ClientStatusActive, AuthMethod: domain.AuthMethodPrivateKeyJWT,
		JWKS: []byte(`{"keys":[]}`), CreatedAt: epoch, UpdatedAt: epoch,
	}))

	got, err := s.Clients().GetClientByID(ctx, "client-b")
	require.NoError(t, err)
	require.Equal(t, c.RedirectURIs, got.RedirectURIs)
	require.Equal(t, c.Scopes, got.Scopes)
	require.True(t, got.RequirePAR)
	require.Equal(t, "AA:BB", got.CertFingerprint)

	list, err := s.Clients().ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "client-a", list[0].ID)
	require.JSONEq(t, `{"keys":[]}`, string(list[0].JWKS))

	c.Status = domain.ClientStatusSuspended
	require.NoError(t, s.Clients().UpsertClient(ctx, c))
	got, err = s.Clients().GetClientByID(ctx, "client-b")
	require.NoError(t, err)
	require.False(t, got.IsActive())

	require.NoError(t, s.Clients().DeleteClient(ctx, "client-b"))
	_, err = s.Clients().GetClientByID(ctx, "client-b")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func newPAR(id string, now time.Time) domain.PushedAuthorizationRequest {
	return domain.PushedAuthorizationRequest{
		ID: id,
		AuthorizationParams: domain.AuthorizationParams{
			ClientID:            "client-a",
			RedirectURI:         "https://a.example.com/cb",
			Scopes:              []string{"openid"},
			State:               "st",
			CodeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
			CodeChallengeMethod: domain.CodeChallengeMethodS256,
		},
		CreatedAt: now,
		ExpiresAt: now.Add(domain.PushedRequestTTL),
	}
}

func testPushedRequestSingleUse(t *testing.T, s store.Store) {
	ctx := t.Context()
	repo := s.PushedRequests()

	require.NoError(t, repo.CreatePushedRequest(ctx, newPAR("p1", epoch)))
	require.ErrorIs(t, repo.CreatePushedRequest(ctx, newPAR("p1", epoch)), store.ErrAlreadyExists)

	const workers = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := repo.ConsumePushedRequest(ctx, "p1", epoch.Add(time.Second))
			if err == nil {
				wins.Add(1)
				assert.Equal(t, "client-a", p.ClientID)
				return
			}
			assert.ErrorIs(t, err, store.ErrAlreadyUsed)
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())

	_, err := repo.ConsumePushedRequest(ctx, "missing", epoch)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testPushedRequestExpiry(t *testing.T, s store.Store) {
	ctx := t.Context()
	repo := s.PushedRequests()

	require.NoError(t, repo.CreatePushedRequest(ctx, newPAR("edge", epoch)))
	require.NoError(t, repo.CreatePushedRequest(ctx, newPAR("inside", epoch)))

	_, err := repo.ConsumePushedRequest(ctx, "edge", epoch.Add(domain.PushedRequestTTL))
	require.ErrorIs(t, err, store.ErrExpired)

	p, err := repo.ConsumePushedRequest(ctx, "inside", epoch.Add(domain.PushedRequestTTL-time.Millisecond))
	require.NoError(t, err)
	require.Equal(t, "st", p.State)
}

func newCode(hash, grant string, now time.Time) domain.AuthorizationCode {
	return domain.AuthorizationCode{
		ID:                  "id-" + hash,
		CodeHash:            hash,
		GrantID:             grant,
		ClientID:            "client-a",
		Subject:             "user_client-a",
		RedirectURI:         "https://a.example.com/cb",
		Scopes:              []string{"openid", "accounts"},
		CodeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		CodeChallengeMethod: domain.CodeChallengeMethodS256,
		Nonce:               "n",
		AuthTime:            now,
		CreatedAt:           now,
		ExpiresAt:           now.Add(domain.AuthorizationCodeTTL),
	}
}

func testCodeSingleUseConcurrent(t *testing.T, s store.Store) {
	ctx := t.Context()
	repo := s.AuthorizationCodes()
	require.NoError(t, repo.CreateAuthorizationCode(ctx, newCode("h1", "g1", epoch)))

	const workers = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.ConsumeAuthorizationCode(ctx, "h1", epoch.Add(time.Second)); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
}

func testCodeReplayAndExpiry(t *testing.T, s store.Store) {
	ctx := t.Context()
	repo := s.AuthorizationCodes()
	require.NoError(t, repo.CreateAuthorizationCode(ctx, newCode("h1", "g1", epoch)))
	require.NoError(t, repo.CreateAuthorizationCode(ctx, newCode("h2", "g2", epoch)))

	c, err := repo.ConsumeAuthorizationCode(ctx, "h1", epoch)
	require.NoError(t, err)
	require.Equal(t, []string{"openid", "accounts"}, c.Scopes)
	require.Equal(t, epoch, c.AuthTime.UTC())

	replayed, err := repo.ConsumeAuthorizationCode(ctx, "h1", epoch)
	require.ErrorIs(t, err, store.ErrAlreadyUsed)
	require.Equal(t, "g1", replayed.GrantID)

	_, err = repo.ConsumeAuthorizationCode(ctx, "h1", epoch)
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = repo.ConsumeAuthorizationCode(ctx, "h2", epoch.Add(domain.AuthorizationCodeTTL))
	require.ErrorIs(t, err, store.ErrExpired)
	_, err = repo.ConsumeAuthorizationCode(ctx, "h2", epoch)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testTokens(t *testing.T, s store.Store) {
	ctx := t.Context()

	for i, grant := range []string{"g1", "g1", "g2"} {
		require.NoError(t, s.AccessTokens().CreateAccessToken(ctx, domain.AccessTokenRecord{
			JTI:       string(rune('a' + i)),
			GrantID:   grant,
			ClientID:  "client-a",
			Subject:   "user_client-a",
			Scopes:    []string{"openid"},
			JKT:       "thumb",
			IssuedAt:  epoch,
			ExpiresAt: epoch.Add(15 * time.Minute),
		}))
	}
	require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshToken{
		ID: "r1", TokenHash: "rh1", GrantID: "g1", ClientID: "client-a",
		Scopes: []string{"openid"}, AuthTime: epoch, CreatedAt: epoch, ExpiresAt: epoch.Add(time.Hour),
	}))

	got, err := s.AccessTokens().GetAccessToken(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "thumb", got.JKT)
	require.True(t, got.IsActive(epoch))

	n, err := s.AccessTokens().RevokeAccessTokensByGrant(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, 2, n)
	n, err = s.RefreshTokens().RevokeRefreshTokensByGrant(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err = s.AccessTokens().GetAccessToken(ctx, "b")
	require.NoError(t, err)
	require.False(t, got.IsActive(epoch))
	got, err = s.AccessTokens().GetAccessToken(ctx, "c")
	require.NoError(t, err)
	require.True(t, got.IsActive(epoch))

	_, err = s.RefreshTokens().ConsumeRefreshToken(ctx, "rh1")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.AccessTokens().GetAccessToken(ctx, "zzz")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testRefreshSingleUseConcurrent(t *testing.T, s store.Store) {
	ctx := t.Context()
	require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshToken{
		ID: "r1", TokenHash: "rh1", GrantID: "g1", ClientID: "client-a", Purpose: "compliance",
		Scopes: []string{"openid"}, AuthTime: epoch, CreatedAt: epoch, ExpiresAt: epoch.Add(time.Hour),
	}))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rt, err := s.RefreshTokens().ConsumeRefreshToken(ctx, "rh1")
			if err == nil {
				wins.Add(1)
				assert.Equal(t, "compliance", rt.Purpose)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
}

func testSweepBatches(t *testing.T, s store.Store) {
	ctx := t.Context()
	for i := range 5 {
		require.NoError(t, s.PushedRequests().CreatePushedRequest(ctx, newPAR(string(rune('a'+i)), epoch)))
	}
	require.NoError(t, s.PushedRequests().CreatePushedRequest(ctx, newPAR("fresh", epoch.Add(time.Hour))))

	later := epoch.Add(2 * domain.PushedRequestTTL)
	n, err := s.PushedRequests().DeleteExpiredPushedRequests(ctx, later, 3)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	n, err = s.PushedRequests().DeleteExpiredPushedRequests(ctx, later, 3)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	n, err = s.PushedRequests().DeleteExpiredPushedRequests(ctx, later, 3)
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = s.PushedRequests().ConsumePushedRequest(ctx, "fresh", epoch.Add(time.Hour))
	require.NoError(t, err)
}

func testSigningKeys(t *testing.T, s store.Store) {
	ctx := t.Context()
	repo := s.SigningKeys()

	require.NoError(t, repo.CreateSigningKey(ctx, domain.SigningKey{
		Kid: "k1", Algorithm: "PS256", PrivateKeyEncrypted: []byte{1, 2, 3}, CreatedAt: epoch,
	}))
	require.NoError(t, repo.CreateSigningKey(ctx, domain.SigningKey{
		Kid: "k2", Algorithm: "PS256", PrivateKeyEncrypted: []byte{4, 5, 6}, CreatedAt: epoch.Add(time.Hour),
	}))
	require.ErrorIs(t, repo.CreateSigningKey(ctx, domain.SigningKey{
		Kid: "k1", Algorithm: "ES256", PrivateKeyEncrypted: []byte{7, 8, 9}, CreatedAt: epoch.Add(2 * time.Hour),
	}), store.ErrAlreadyExists)

	require.NoError(t, repo.RetireSigningKey(ctx, "k1", epoch.Add(time.Hour), epoch.Add(2*time.Hour)))

	keys, err := repo.ListSigningKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	require.Equal(t, "k2", keys[0].Kid)
	require.True(t, keys[0].IsActive())
	require.Equal(t, []byte{1, 2, 3}, keys[1].PrivateKeyEncrypted)
	require.False(t, keys[1].IsActive())
	require.True(t, keys[1].IsExpired(epoch.Add(2*time.Hour)))

	require.NoError(t, repo.DeleteSigningKey(ctx, "k1"))
	require.ErrorIs(t, repo.DeleteSigningKey(ctx, "k1"), store.ErrNotFound)
}

var errBoom = errors.New("boom")

func testTxRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshToken{
		ID: "r0", TokenHash: "old", GrantID: "g", ClientID: "client-a",
		AuthTime: epoch, CreatedAt: epoch, ExpiresAt: epoch.Add(time.Hour),
	}))

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.RefreshTokens().ConsumeRefreshToken(ctx, "old"); err != nil {
			return err
		}
		if err := tx.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshToken{
			ID: "r1", TokenHash: "new", GrantID: "g", ClientID: "client-a",
			AuthTime: epoch, CreatedAt: epoch, ExpiresAt: epoch.Add(time.Hour),
		}); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	_, err = s.RefreshTokens().ConsumeRefreshToken(ctx, "new")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.RefreshTokens().ConsumeRefreshToken(ctx, "old")
	require.NoError(t, err)

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		return tx.AccessTokens().CreateAccessToken(ctx, domain.AccessTokenRecord{
			JTI: "committed", GrantID: "g", ClientID: "client-a", IssuedAt: epoch, ExpiresAt: epoch.Add(time.Minute),
		})
	}))
	_, err = s.AccessTokens().GetAccessToken(ctx, "committed")
	require.NoError(t, err)
}
