// Package service implements the authorization server's protocol logic:
// client authentication, pushed authorization requests, code issuance,
// token exchange, introspection and the signing key schedule.
package service

import (
	"strings"
	"time"

	"github.com/aussiebroadwan/fapiauth/pkg/clockx"
)

// Scope values with protocol meaning.
const (
	ScopeOpenID  = "openid"
	ScopeProfile = "profile"
)

func nowFrom(c clockx.Clock) time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c.Now()
}

func joinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
