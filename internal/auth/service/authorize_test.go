package service_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/fapiauth/internal/auth/authtest"
	"github.com/aussiebroadwan/fapiauth/internal/auth/domain"
	"github.com/aussiebroadwan/fapiauth/internal/auth/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPAR_Push(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.par.Push(ctx, f.identity(), authorizationRequest("openid accounts"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.RequestURI, service.RequestURIPrefix))
	assert.Equal(t, 60*time.Second, res.ExpiresIn)

	tests := []struct {
		name   string
		mutate func(*service.AuthorizationRequest)
		want   error
	}{
		{"missing response_type", func(r *service.AuthorizationRequest) { r.ResponseType = "" }, service.ErrInvalidRequest},
		{"token response_type", func(r *service.AuthorizationRequest) { r.ResponseType = "token" }, service.ErrUnsupportedResponseType},
		{"request_uri inside PAR", func(r *service.AuthorizationRequest) { r.RequestURI = "urn:x" }, service.ErrInvalidRequest},
		{"other client_id", func(r *service.AuthorizationRequest) { r.ClientID = "tpp-2" }, service.ErrInvalidRequest},
		{"unregistered redirect", func(r *service.AuthorizationRequest) { r.RedirectURI = "https://evil.example.com/cb" }, service.ErrInvalidRequest},
		{"missing redirect", func(r *service.AuthorizationRequest) { r.RedirectURI = "" }, service.ErrInvalidRequest},
		{"missing scope", func(r *service.AuthorizationRequest) { r.Scope = "" }, service.ErrInvalidScope},
		{"scope not allowed", func(r *service.AuthorizationRequest) { r.Scope = "openid admin" }, service.ErrInvalidScope},
		{"missing challenge", func(r *service.AuthorizationRequest) { r.CodeChallenge = "" }, service.ErrInvalidRequest},
		{"plain method", func(r *service.AuthorizationRequest) { r.CodeChallengeMethod = "plain" }, service.ErrInvalidRequest},
		{"short challenge", func(r *service.AuthorizationRequest) { r.CodeChallenge = "abc" }, service.ErrInvalidRequest},
		{"unknown purpose", func(r *service.AuthorizationRequest) { r.Purpose = "marketing" }, service.ErrInvalidRequest},
		{"prompt none combined", func(r *service.AuthorizationRequest) { r.Prompt = "none login" }, service.ErrInvalidRequest},
		{"negative max_age", func(r *service.AuthorizationRequest) { r.MaxAge = "-1" }, service.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := authorizationRequest("openid accounts")
			tt.mutate(&req)
			_, err := f.par.Push(ctx, f.identity(), req)
			require.ErrorIs(t, err, tt.want)
			assert.NotEmpty(t, service.Description(err))
		})
	}
}

func TestPAR_ConsumeOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.par.Push(ctx, f.identity(), authorizationRequest("accounts"))
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		success atomic.Int32
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.par.Consume(ctx, res.RequestURI, ""); err == nil {
				success.Add(1)
			} else {
				assert.ErrorIs(t, err, service.ErrInvalidRequestURI)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), success.Load())
}

func TestPAR_ExpiryBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	early, err := f.par.Push(ctx, f.identity(), authorizationRequest("accounts"))
	require.NoError(t, err)
	late, err := f.par.Push(ctx, f.identity(), authorizationRequest("accounts"))
	require.NoError(t, err)

	f.clock.Advance(59 * time.Second)
	_, err = f.par.Consume(ctx, early.RequestURI, "")
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	_, err = f.par.Consume(ctx, late.RequestURI, "")
	require.ErrorIs(t, err, service.ErrInvalidRequestURI)

	_, err = f.par.Consume(ctx, "urn:ietf:params:oauth:request_uri:", "")
	require.ErrorIs(t, err, service.ErrInvalidRequestURI)
}

func TestAuthorize_Pushed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pushed, err := f.par.Push(ctx, f.identity(), authorizationRequest("openid accounts"))
	require.NoError(t, err)

	res, err := f.authorize.Authorize(ctx, service.AuthorizeRequest{
		AuthorizationRequest: service.AuthorizationRequest{ClientID: f.client.ID, RequestURI: pushed.RequestURI},
	})
	require.NoError(t, err)
	assert.Len(t, res.Code, 43)

	q := queryOf(t, res.Location())
	assert.Equal(t, res.Code, q.Get("code"))
	assert.Equal(t, "af0ifjsldkj", q.Get("state"))
	assert.Equal(t, authtest.Issuer, q.Get("iss"))
	assert.True(t, strings.HasPrefix(res.Location(), authtest.RedirectURI+"?"))

	t.Run("request_uri is single use", func(t *testing.T) {
		_, err := f.authorize.Authorize(ctx, service.AuthorizeRequest{
			AuthorizationRequest: service.AuthorizationRequest{ClientID: f.client.ID, RequestURI: pushed.RequestURI},
		})
		require.ErrorIs(t, err, service.ErrInvalidRequestURI)
		var redirect *service.RedirectError
		assert.NotErrorAs(t, err, &redirect)
	})
}

func TestAuthorize_PushedClientMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pushed, err := f.par.Push(ctx, f.identity(), authorizationRequest("accounts"))
	require.NoError(t, err)

	_, err = f.authorize.Authorize(ctx, service.AuthorizeRequest{
		AuthorizationRequest: service.AuthorizationRequest{ClientID: "tpp-2", RequestURI: pushed.RequestURI},
	})
	require.ErrorIs(t, err, service.ErrInvalidRequest)

	// The pushing client can still redeem it.
	res, err := f.authorize.Authorize(ctx, service.AuthorizeRequest{
		AuthorizationRequest: service.AuthorizationRequest{ClientID: f.client.ID, RequestURI: pushed.RequestURI},
		Subject:              "alice",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Code)
}

func TestAuthorize_SubjectDefaultsPerClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := authorizationRequest("openid")
	req.ClientID = f.client.ID
	res, err := f.authorize.Authorize(ctx, service.AuthorizeRequest{AuthorizationRequest: req})
	require.NoError(t, err)

	set, err := f.exchange(res.Code)
	require.NoError(t, err)
	claims, err := f.access.Lookup(ctx, set.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user_tpp-1", claims.Subject)
}

func TestAuthorize_Inline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inline := func(mutate func(*service.AuthorizationRequest)) (*service.AuthorizeResult, error) {
		req := authorizationRequest("openid accounts")
		req.ClientID = f.client.ID
		if mutate != nil {
			mutate(&req)
		}
		return f.authorize.Authorize(ctx, service.AuthorizeRequest{AuthorizationRequest: req, Subject: "alice"})
	}

	_, err := inline(nil)
	require.NoError(t, err)

	t.Run("errors before the redirect is trusted are returned directly", func(t *testing.T) {
		for _, mutate := range []func(*service.AuthorizationRequest){
			func(r *service.AuthorizationRequest) { r.ClientID = "" },
			func(r *service.AuthorizationRequest) { r.RedirectURI = "" },
			func(r *service.AuthorizationRequest) { r.RedirectURI = "https://evil.example.com/cb" },
		} {
			_, err := inline(mutate)
			require.Error(t, err)
			var redirect *service.RedirectError
			assert.NotErrorAs(t, err, &redirect)
		}

		_, err := inline(func(r *service.AuthorizationRequest) { r.ClientID = "nobody" })
		require.ErrorIs(t, err, service.ErrInvalidClient)
	})

	t.Run("later errors redirect with state", func(t *testing.T) {
		_, err := inline(func(r *service.AuthorizationRequest) { r.CodeChallengeMethod = "plain" })
		var redirect *service.RedirectError
		require.ErrorAs(t, err, &redirect)
		require.ErrorIs(t, err, service.ErrInvalidRequest)

		q := queryOf(t, redirect.Location(service.Code(err), service.Description(err)))
		assert.Equal(t, "invalid_request", q.Get("error"))
		assert.Equal(t, "af0ifjsldkj", q.Get("state"))
		assert.Equal(t, authtest.Issuer, q.Get("iss"))
	})

	t.Run("state is required inline", func(t *testing.T) {
		_, err := inline(func(r *service.AuthorizationRequest) { r.State = "" })
		var redirect *service.RedirectError
		require.ErrorAs(t, err, &redirect)
	})
}

func TestAuthorize_RequirePAR(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.RequirePAR = true
	require.NoError(t, f.dir.Sync(ctx, []domain.Client{f.client}))

	req := authorizationRequest("accounts")
	req.ClientID = f.client.ID
	_, err := f.authorize.Authorize(ctx, service.AuthorizeRequest{AuthorizationRequest: req})
	var redirect *service.RedirectError
	require.ErrorAs(t, err, &redirect)
	assert.Equal(t, "pushed authorization request required", service.Description(err))

	// Pushed requests still work.
	f.code("accounts")
}

func TestAuthorize_SuspendedClientRedirects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pushed, err := f.par.Push(ctx, f.identity(), authorizationRequest("accounts"))
	require.NoError(t, err)

	f.client.Status = domain.ClientStatusSuspended
	require.NoError(t, f.dir.Sync(ctx, []domain.Client{f.client}))

	_, err = f.authorize.Authorize(ctx, service.AuthorizeRequest{
		AuthorizationRequest: service.AuthorizationRequest{RequestURI: pushed.RequestURI},
	})
	var redirect *service.RedirectError
	require.ErrorAs(t, err, &redirect)
	require.ErrorIs(t, err, service.ErrUnauthorizedClient)
}
