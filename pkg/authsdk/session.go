package authsdk

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Session holds the tokens from one authorization grant and refreshes the
// access token when it is close to expiry.
type Session struct {
	client *SDKClient

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	idToken      string
	tokenType    string
	expiresAt    time.Time
	scopes       map[string]bool
}

// refreshBuffer is how long before expiry the session refreshes.
const refreshBuffer = 30 * time.Second

// NewSession wraps a token response. The client must be the one the tokens
// were issued to, since refresh requires the same client authentication and
// DPoP key.
func (c *SDKClient) NewSession(tokenResp *TokenResponse) *Session {
	s := &Session{client: c}
	s.apply(tokenResp)
	return s
}

// AuthenticateWithCode exchanges a code and returns a session.
func (c *SDKClient) AuthenticateWithCode(ctx context.Context, code, redirectURI, verifier string) (*Session, error) {
	tokenResp, err := c.ExchangeCode(ctx, code, redirectURI, verifier)
	if err != nil {
		return nil, err
	}
	return c.NewSession(tokenResp), nil
}

func (s *Session) apply(tokenResp *TokenResponse) {
	s.accessToken = tokenResp.AccessToken
	if tokenResp.RefreshToken != "" {
		s.refreshToken = tokenResp.RefreshToken
	}
	if tokenResp.IDToken != "" {
		s.idToken = tokenResp.IDToken
	}
	s.tokenType = tokenResp.TokenType
	s.expiresAt = s.client.now().Add(time.Duration(tokenResp.ExpiresIn)*time.Second - refreshBuffer)
	s.scopes = parseScopes(tokenResp.Scope)
}

// parseScopes parses a space-delimited scope string into a set.
func parseScopes(scopeStr string) map[string]bool {
	parts := strings.Fields(scopeStr)
	scopes := make(map[string]bool, len(parts))
	for _, scope := range parts {
		scopes[scope] = true
	}
	return scopes
}

// getValidToken returns a valid access token, refreshing if it expired.
func (s *Session) getValidToken(ctx context.Context) (string, string, error) {
	s.mu.RLock()
	if s.client.now().Before(s.expiresAt) {
		token, typ := s.accessToken, s.tokenType
		s.mu.RUnlock()
		return token, typ, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have refreshed while we waited.
	if s.client.now().Before(s.expiresAt) {
		return s.accessToken, s.tokenType, nil
	}

	if s.refreshToken == "" {
		return "", "", fmt.Errorf("access token expired and no refresh token available")
	}

	tokenResp, err := s.client.RefreshGrant(ctx, s.refreshToken)
	if err != nil {
		return "", "", fmt.Errorf("failed to refresh token: %w", err)
	}
	s.apply(tokenResp)

	return s.accessToken, s.tokenType, nil
}

// doAuthRequest sends a request carrying the access token. DPoP-bound
// tokens use the DPoP scheme with a fresh proof.
func (s *Session) doAuthRequest(
	ctx context.Context,
	method, path string,
	body io.Reader,
	headers map[string]string,
) (*http.Response, error) {
	token, typ, err := s.getValidToken(ctx)
	if err != nil {
		return nil, err
	}

	h := make(map[string]string, len(headers)+2)
	for k, v := range headers {
		h[k] = v
	}

	if strings.EqualFold(typ, "DPoP") {
		if s.client.DPoP == nil {
			return nil, fmt.Errorf("token is DPoP-bound but the client has no DPoP key")
		}
		proof, err := s.client.DPoP.Proof(method, s.client.url(path), token, s.client.now())
		if err != nil {
			return nil, err
		}
		h["Authorization"] = "DPoP " + token
		h["DPoP"] = proof
	} else {
		h["Authorization"] = "Bearer " + token
	}

	return s.client.doRequest(ctx, method, path, body, h)
}

// UserInfo returns the claims for the session's subject.
func (s *Session) UserInfo(ctx context.Context) (*UserInfoResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/userinfo", nil, nil)
	if err != nil {
		return nil, err
	}

	var userInfo UserInfoResponse
	if err := decodeJSON(resp, &userInfo, http.StatusOK); err != nil {
		return nil, err
	}
	return &userInfo, nil
}

// Introspect reports whether the session's current access token is active.
func (s *Session) Introspect(ctx context.Context) (*IntrospectionResponse, error) {
	token, _, err := s.getValidToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.client.Introspect(ctx, token)
}

// AccessToken returns the current access token without checking expiration.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// IDToken returns the most recent ID token, if any was issued.
func (s *Session) IDToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idToken
}

// TokenType is "Bearer" or "DPoP".
func (s *Session) TokenType() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokenType
}

// Scopes returns the granted scopes.
func (s *Session) Scopes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scopes := make([]string, 0, len(s.scopes))
	for scope := range s.scopes {
		scopes = append(scopes, scope)
	}
	return scopes
}

// HasScope returns true if the session has the specified scope.
func (s *Session) HasScope(scope string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scopes[scope]
}

// HasAllScopes returns true if the session has all of the specified scopes.
func (s *Session) HasAllScopes(scopes ...string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, scope := range scopes {
		if !s.scopes[scope] {
			return false
		}
	}
	return true
}
