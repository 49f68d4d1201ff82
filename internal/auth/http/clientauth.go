package http

import (
	"crypto/x509"
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/fapiauth/internal/auth/service"
	"github.com/aussiebroadwan/fapiauth/pkg/cryptox"
)

// clientAuth authenticates the client behind a form-encoded request.
type clientAuth struct {
	Authenticator *service.ClientAuthenticator

	// CertHeader names the header a TLS-terminating proxy uses to forward the
	// URL-escaped PEM client certificate. Empty disables forwarding.
	CertHeader string
}

// authenticate reads the client credentials from the parsed form and the
// connection, then verifies them.
func (c clientAuth) authenticate(r *http.Request) (service.ClientIdentity, error) {
	cert, err := c.certificate(r)
	if err != nil {
		return service.ClientIdentity{}, err
	}
	return c.Authenticator.Authenticate(r.Context(), service.ClientCredentials{
		ClientID:            r.PostForm.Get("client_id"),
		ClientAssertionType: r.PostForm.Get("client_assertion_type"),
		ClientAssertion:     r.PostForm.Get("client_assertion"),
		Certificate:         cert,
	})
}

func (c clientAuth) certificate(r *http.Request) (*x509.Certificate, error) {
	if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		return r.TLS.PeerCertificates[0], nil
	}
	if c.CertHeader == "" {
		return nil, nil
	}
	raw := r.Header.Get(c.CertHeader)
	if raw == "" {
		return nil, nil
	}
	pemText, err := url.QueryUnescape(raw)
	if err != nil {
		return nil, service.ErrInvalidClient
	}
	cert, err := cryptox.ParseCertificatePEM([]byte(pemText))
	if err != nil {
		return nil, service.ErrInvalidClient
	}
	return cert, nil
}

// authorizationRequest reads authorization parameters from a form or query.
func authorizationRequest(v url.Values) service.AuthorizationRequest {
	return service.AuthorizationRequest{
		ResponseType:        v.Get("response_type"),
		ClientID:            v.Get("client_id"),
		RedirectURI:         v.Get("redirect_uri"),
		Scope:               v.Get("scope"),
		State:               v.Get("state"),
		Nonce:               v.Get("nonce"),
		CodeChallenge:       v.Get("code_challenge"),
		CodeChallengeMethod: v.Get("code_challenge_method"),
		Purpose:             v.Get("purpose"),
		Prompt:              v.Get("prompt"),
		MaxAge:              v.Get("max_age"),
		Claims:              v.Get("claims"),
		RequestURI:          v.Get("request_uri"),
	}
}
