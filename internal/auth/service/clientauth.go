package service

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/fapiauth/internal/auth/directory"
	"github.com/aussiebroadwan/fapiauth/internal/auth/domain"
	"github.com/aussiebroadwan/fapiauth/internal/auth/metrics"
	"github.com/aussiebroadwan/fapiauth/internal/auth/store"
	"github.com/aussiebroadwan/fapiauth/pkg/clockx"
	"github.com/aussiebroadwan/fapiauth/pkg/cryptox"
	"github.com/aussiebroadwan/fapiauth/pkg/jwtx"
	"github.com/aussiebroadwan/fapiauth/pkg/slogx"
	"go.opentelemetry.io/otel/attribute"
)

// ClientCredentials is what a request offers to prove the client's identity.
type ClientCredentials struct {
	// ClientID is the client_id form parameter, if sent.
	ClientID string

	ClientAssertionType string
	ClientAssertion     string

	// Certificate is the TLS peer certificate, or the one forwarded by a
	// terminating proxy.
	Certificate *x509.Certificate
}

// ClientIdentity is an authenticated client.
type ClientIdentity struct {
	ClientID string
	Method   string
	Client   domain.Client
}

// ClientAuthenticator verifies clients with tls_client_auth or
// private_key_jwt. A client can only use the method it is registered for.
type ClientAuthenticator struct {
	Directory *directory.Directory
	Replay    store.ReplayCache
	Clock     clockx.Clock
	Metrics   *metrics.Metrics

	// Audience is the token endpoint URL that assertions must name.
	Audience string
}

// Authenticate returns the authenticated client or ErrInvalidClient. Only
// storage failures are returned as other errors.
func (a *ClientAuthenticator) Authenticate(ctx context.Context, creds ClientCredentials) (id ClientIdentity, err error) {
	method := domain.AuthMethodTLSClientAuth
	if creds.ClientAssertion != "" || creds.ClientAssertionType != "" {
		method = domain.AuthMethodPrivateKeyJWT
	}

	ctx, span := startSpan(ctx, "ClientAuthenticator.Authenticate", attribute.String("auth.method", method))
	defer func() { endSpan(span, err) }()

	switch {
	case method == domain.AuthMethodPrivateKeyJWT:
		id, err = a.authenticateAssertion(ctx, creds)
	case creds.Certificate != nil:
		id, err = a.authenticateCertificate(ctx, creds)
	default:
		err = withDetail(ErrInvalidClient, "no client credentials presented")
	}

	a.Metrics.ClientAuthenticated(method, err == nil)
	if err != nil {
		if errors.Is(err, ErrInvalidClient) {
			slogx.FromContext(ctx).Warn("client_auth_failed",
				slog.String("client_id", creds.ClientID),
				slog.String("method", method),
				slog.String("reason", err.Error()),
			)
		}
		return ClientIdentity{}, err
	}
	span.SetAttributes(attribute.String("client.id", id.ClientID))
	return id, nil
}

func (a *ClientAuthenticator) authenticateAssertion(ctx context.Context, creds ClientCredentials) (ClientIdentity, error) {
	if creds.ClientAssertionType != jwtx.ClientAssertionType {
		return ClientIdentity{}, withDetail(ErrInvalidClient, "unsupported client_assertion_type")
	}
	if creds.ClientAssertion == "" {
		return ClientIdentity{}, withDetail(ErrInvalidClient, "client_assertion is required")
	}

	sub, err := jwtx.AssertionSubject(creds.ClientAssertion)
	if err != nil {
		return ClientIdentity{}, withDetail(ErrInvalidClient, "malformed client_assertion")
	}
	clientID := creds.ClientID
	if clientID == "" {
		clientID = sub
	}
	if clientID != sub {
		return ClientIdentity{}, withDetail(ErrInvalidClient, "client_id does not match the assertion")
	}

	client, err := a.lookup(ctx, clientID, domain.AuthMethodPrivateKeyJWT)
	if err != nil {
		return ClientIdentity{}, err
	}
	keys, err := a.Directory.KeySet(client)
	if err != nil {
		return ClientIdentity{}, withDetail(ErrInvalidClient, "client keys unavailable")
	}

	now := nowFrom(a.Clock)
	claims, err := jwtx.VerifyClientAssertion(creds.ClientAssertion, keys, jwtx.AssertionOptions{
		ClientID: clientID,
		Audience: a.Audience,
		Now:      now,
	})
	if err != nil {
		return ClientIdentity{}, fmt.Errorf("%w: %w", withDetail(ErrInvalidClient, "client assertion rejected"), err)
	}

	key := "assertion:" + clientID + ":" + claims.ID
	if err := a.Replay.Remember(ctx, key, claims.ExpiresAt.Time); err != nil {
		if errors.Is(err, store.ErrAlreadyUsed) {
			return ClientIdentity{}, withDetail(ErrInvalidClient, "client assertion already used")
		}
		return ClientIdentity{}, fmt.Errorf("remember assertion: %w", err)
	}

	return ClientIdentity{ClientID: clientID, Method: domain.AuthMethodPrivateKeyJWT, Client: client}, nil
}

func (a *ClientAuthenticator) authenticateCertificate(ctx context.Context, creds ClientCredentials) (ClientIdentity, error) {
	cert := creds.Certificate
	if creds.ClientID == "" {
		return ClientIdentity{}, withDetail(ErrInvalidClient, "client_id is required with tls_client_auth")
	}

	client, err := a.lookup(ctx, creds.ClientID, domain.AuthMethodTLSClientAuth)
	if err != nil {
		return ClientIdentity{}, err
	}

	fp := cryptox.CertificateFingerprint(cert)
	if !cryptox.EqualConstantTime(fp, cryptox.NormalizeFingerprint(client.CertFingerprint)) {
		return ClientIdentity{}, withDetail(ErrInvalidClient, "certificate is not trusted for this client")
	}
	if err := checkValidity(cert, nowFrom(a.Clock)); err != nil {
		return ClientIdentity{}, err
	}
	if err := cryptox.CheckKeyStrength(cert.PublicKey); err != nil {
		return ClientIdentity{}, withDetail(ErrInvalidClient, "certificate key is too weak")
	}
	if cn := cert.Subject.CommonName; cn != "" && !strings.Contains(cn, client.ID) {
		return ClientIdentity{}, withDetail(ErrInvalidClient, "certificate common name does not name the client")
	}

	return ClientIdentity{ClientID: client.ID, Method: domain.AuthMethodTLSClientAuth, Client: client}, nil
}

func checkValidity(cert *x509.Certificate, now time.Time) error {
	if now.Before(cert.NotBefore) {
		return withDetail(ErrInvalidClient, "certificate is not yet valid")
	}
	if now.After(cert.NotAfter) {
		return withDetail(ErrInvalidClient, "certificate has expired")
	}
	return nil
}

func (a *ClientAuthenticator) lookup(ctx context.Context, clientID, method string) (domain.Client, error) {
	client, err := a.Directory.Client(ctx, clientID)
	if errors.Is(err, directory.ErrUnknownClient) {
		return domain.Client{}, withDetail(ErrInvalidClient, "unknown client")
	}
	if err != nil {
		return domain.Client{}, err
	}
	if !client.IsActive() {
		return domain.Client{}, withDetail(ErrInvalidClient, "client is %s", client.Status)
	}
	if client.AuthMethod != method {
		return domain.Client{}, withDetail(ErrInvalidClient, "client is registered for %s", client.AuthMethod)
	}
	return client, nil
}
