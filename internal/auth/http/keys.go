package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/fapiauth/internal/auth/service"
	"github.com/aussiebroadwan/fapiauth/pkg/authsdk"
	"github.com/aussiebroadwan/fapiauth/pkg/httpx"
	"github.com/aussiebroadwan/fapiauth/pkg/jwtx"
	"github.com/aussiebroadwan/fapiauth/pkg/slogx"
)

// KeyRotationHandler serves the operator key endpoints. Both sit behind the
// operator bearer token.
type KeyRotationHandler struct {
	Rotation *service.KeyRotationService
}

// HandleInfo handles GET /keys/info
//
//	@Summary		Signing key status
//	@Description	Describes the current signing key, the rotation schedule and every published key.
//	@Tags			Keys
//	@Produce		json
//	@Success		200	{object}	authsdk.KeysInfoResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"Operator token required"
//	@Failure		503	{object}	authsdk.ErrorResponse	"Signing keys not initialized"
//	@Security		BearerAuth
//	@Router			/keys/info [get]
func (h *KeyRotationHandler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	keys := h.Rotation.Keys
	created, ok := keys.CurrentCreatedAt()
	signer, err := keys.Signer()
	if !ok || err != nil {
		authsdk.ErrTemporarilyUnavailable.WithDescription("signing keys not initialized").WriteError(w)
		return
	}

	now := time.Now()
	if h.Rotation.Clock != nil {
		now = h.Rotation.Clock.Now()
	}

	resp := authsdk.KeysInfoResponse{
		CurrentKID:       signer.KID(),
		Algorithm:        keys.Algorithm(),
		CreatedAt:        created.UTC().Format(time.RFC3339),
		AgeHours:         now.Sub(created).Hours(),
		RotationInterval: h.Rotation.Interval.String(),
		GracePeriod:      keys.GracePeriod().String(),
		PublishedKeys:    len(keys.JWKS().Keys),
	}
	if next := h.Rotation.NextRotation(); !next.IsZero() {
		resp.NextRotation = next.UTC().Format(time.RFC3339)
	}
	for _, k := range keys.Keys() {
		resp.Keys = append(resp.Keys, signingKeyInfo(r, k))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleRotate handles POST /keys/rotate
//
//	@Summary		Rotate signing key
//	@Description	Replaces the current signing key now. The previous key stays published for the grace period.
//	@Tags			Keys
//	@Produce		json
//	@Success		200	{object}	authsdk.RotateKeyResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"Operator token required"
//	@Failure		500	{object}	authsdk.ErrorResponse
//	@Security		BearerAuth
//	@Router			/keys/rotate [post]
func (h *KeyRotationHandler) HandleRotate(w http.ResponseWriter, r *http.Request) {
	rot, err := h.Rotation.Rotate(r.Context(), service.TriggerManual)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.RotateKeyResponse{
		PreviousKID:  rot.PreviousKID,
		NewKID:       rot.CurrentKID,
		RotationTime: rot.RotatedAt.UTC().Format(time.RFC3339),
	})
}

func signingKeyInfo(r *http.Request, k jwtx.KeyInfo) authsdk.SigningKeyInfo {
	info := authsdk.SigningKeyInfo{
		KID:       k.KID,
		Algorithm: k.Algorithm,
		Status:    "retiring",
		CreatedAt: k.CreatedAt.UTC().Format(time.RFC3339),
	}
	if k.Current {
		info.Status = "current"
	}
	if k.RetiredAt != nil {
		info.RetiredAt = k.RetiredAt.UTC().Format(time.RFC3339)
	}
	if k.ExpiresAt != nil {
		info.ExpiresAt = k.ExpiresAt.UTC().Format(time.RFC3339)
	}
	pemText, err := k.JWK.PEM()
	if err != nil {
		slogx.FromContext(r.Context()).Warn("encode public key", "kid", k.KID, "error", err)
	}
	info.PublicKey = pemText
	return info
}
