package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/fapiauth/internal/auth/store"
	"github.com/aussiebroadwan/fapiauth/pkg/clockx"
	"github.com/aussiebroadwan/fapiauth/pkg/jwtx"
)

// DPoPVerifier checks DPoP proofs against the request they arrived on and
// rejects reused proof identifiers.
type DPoPVerifier struct {
	Replay store.ReplayCache
	Clock  clockx.Clock

	// Issuer is the public base URL; htu must be Issuer plus the path.
	Issuer string
}

// Verify validates proof for a request with the given method and path.
// accessToken, when set, must be bound through ath.
func (v *DPoPVerifier) Verify(ctx context.Context, proof, method, path, accessToken string) (*jwtx.DPoPProof, error) {
	now := nowFrom(v.Clock)
	p, err := jwtx.VerifyDPoPProof(proof, jwtx.DPoPOptions{
		Method:      method,
		URL:         strings.TrimSuffix(v.Issuer, "/") + path,
		Now:         now,
		AccessToken: accessToken,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", withDetail(ErrInvalidDPoPProof, "DPoP proof is invalid"), err)
	}

	// A proof is only acceptable while iat is inside the skew window, so
	// remembering it that long is enough.
	expires := p.Claims.IssuedAt.Add(jwtx.DefaultClockSkew)
	if !expires.After(now) {
		expires = now.Add(jwtx.DefaultClockSkew)
	}
	if err := v.Replay.Remember(ctx, "dpop:"+p.JKT+":"+p.Claims.ID, expires); err != nil {
		if errors.Is(err, store.ErrAlreadyUsed) {
			return nil, withDetail(ErrInvalidDPoPProof, "DPoP proof already used")
		}
		return nil, fmt.Errorf("remember dpop proof: %w", err)
	}
	return p, nil
}
