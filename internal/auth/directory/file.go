package directory

import (
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/fapiauth/internal/auth/domain"
	"github.com/aussiebroadwan/fapiauth/pkg/cryptox"
	"github.com/aussiebroadwan/fapiauth/pkg/jwtx"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned for any registry entry that cannot be used.
var ErrInvalidConfig = errors.New("directory: invalid client configuration")

// File is the YAML client registry.
//
//	clients:
//	  - client_id: tpp-123
//	    auth_method: private_key_jwt
//	    redirect_uris: [https://tpp.example/cb]
//	    jwks_file: keys/tpp-123.json
type File struct {
	Clients []Entry `yaml:"clients"`
}

// Entry is one client in the registry file.
type Entry struct {
	ClientID        string         `yaml:"client_id"`
	ClientName      string         `yaml:"client_name"`
	Status          string         `yaml:"status"`
	AuthMethod      string         `yaml:"auth_method"`
	RedirectURIs    []string       `yaml:"redirect_uris"`
	Scopes          []string       `yaml:"scopes"`
	RequirePAR      bool           `yaml:"require_par"`
	CertFingerprint string         `yaml:"cert_fingerprint"`
	JWKS            map[string]any `yaml:"jwks"`
	JWKSFile        string         `yaml:"jwks_file"`
}

// LoadFile reads a registry file and, when certsDir is set, fills trust
// anchors from the certificates in it. Relative jwks_file paths resolve
// against the registry's directory.
func LoadFile(path, certsDir string, now time.Time) ([]domain.Client, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("directory: read %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}

	certs, err := LoadCertsDir(certsDir)
	if err != nil {
		return nil, err
	}
	return f.Resolve(filepath.Dir(path), certs, now)
}

// Resolve converts and validates every entry. certs maps a client_id to its
// trusted certificate.
func (f File) Resolve(baseDir string, certs map[string]Certificate, now time.Time) ([]domain.Client, error) {
	out := make([]domain.Client, 0, len(f.Clients))
	seen := make(map[string]struct{}, len(f.Clients))

	for i, e := range f.Clients {
		c, err := e.client(baseDir, certs[strings.TrimSpace(e.ClientID)], now)
		if err != nil {
			return nil, fmt.Errorf("%w: clients[%d]: %v", ErrInvalidConfig, i, err)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("%w: clients[%d]: duplicate client_id %q", ErrInvalidConfig, i, c.ID)
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

func (e Entry) client(baseDir string, cert Certificate, now time.Time) (domain.Client, error) {
	c := domain.Client{
		ID:              strings.TrimSpace(e.ClientID),
		Name:            e.ClientName,
		Status:          strings.TrimSpace(e.Status),
		AuthMethod:      strings.TrimSpace(e.AuthMethod),
		RedirectURIs:    e.RedirectURIs,
		Scopes:          e.Scopes,
		RequirePAR:      e.RequirePAR,
		CertFingerprint: cryptox.NormalizeFingerprint(e.CertFingerprint),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if c.ID == "" {
		return c, errors.New("client_id is required")
	}
	if c.Name == "" {
		c.Name = c.ID
	}
	if c.Status == "" {
		c.Status = domain.ClientStatusActive
	}

	switch c.Status {
	case domain.ClientStatusActive, domain.ClientStatusSuspended, domain.ClientStatusRevoked:
	default:
		return c, fmt.Errorf("unknown status %q", c.Status)
	}

	if len(c.RedirectURIs) == 0 {
		return c, errors.New("at least one redirect_uri is required")
	}
	for _, uri := range c.RedirectURIs {
		if err := validateRedirectURI(uri); err != nil {
			return c, err
		}
	}

	if cert.Fingerprint != "" {
		if c.CertFingerprint != "" && c.CertFingerprint != cert.Fingerprint {
			return c, fmt.Errorf("cert_fingerprint does not match %s", cert.Path)
		}
		c.CertFingerprint = cert.Fingerprint
	}

	jwks, err := e.keySet(baseDir)
	if err != nil {
		return c, err
	}
	c.JWKS = jwks

	switch c.AuthMethod {
	case domain.AuthMethodTLSClientAuth:
		if c.CertFingerprint == "" {
			return c, errors.New("tls_client_auth requires cert_fingerprint or a trusted certificate")
		}
	case domain.AuthMethodPrivateKeyJWT:
		if len(c.JWKS) == 0 && cert.Cert != nil {
			ks, err := jwtx.NewClientKeySetFromKey("", cert.Cert.PublicKey)
			if err != nil {
				return c, fmt.Errorf("certificate key: %w", err)
			}
			if c.JWKS, err = ks.MarshalJSON(); err != nil {
				return c, err
			}
		}
		if len(c.JWKS) == 0 {
			return c, errors.New("private_key_jwt requires jwks, jwks_file or a trusted certificate")
		}
	default:
		return c, fmt.Errorf("unsupported auth_method %q", c.AuthMethod)
	}

	if len(c.JWKS) > 0 {
		if _, err := jwtx.ParseClientKeySet(c.JWKS); err != nil {
			return c, fmt.Errorf("jwks: %w", err)
		}
	}
	return c, nil
}

func (e Entry) keySet(baseDir string) ([]byte, error) {
	switch {
	case e.JWKS != nil && e.JWKSFile != "":
		return nil, errors.New("jwks and jwks_file are mutually exclusive")
	case e.JWKS != nil:
		data, err := json.Marshal(e.JWKS)
		if err != nil {
			return nil, fmt.Errorf("jwks: %w", err)
		}
		return data, nil
	case e.JWKSFile != "":
		path := e.JWKSFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("jwks_file: %w", err)
		}
		return data, nil
	default:
		return nil, nil
	}
}

func validateRedirectURI(uri string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("redirect_uri %q: %v", uri, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("redirect_uri %q must be absolute", uri)
	}
	if u.Fragment != "" {
		return fmt.Errorf("redirect_uri %q must not carry a fragment", uri)
	}
	return nil
}

// Certificate is a trusted client certificate found on disk.
type Certificate struct {
	Path        string
	Fingerprint string
	Cert        *x509.Certificate
}

// LoadCertsDir reads every <client_id>.pem in dir. An empty dir yields no
// certificates.
func LoadCertsDir(dir string) (map[string]Certificate, error) {
	out := map[string]Certificate{}
	if dir == "" {
		return out, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("directory: read certs dir: %w", err)
	}
	for _, ent := range entries {
		if ent.IsDir() || !slices.Contains([]string{".pem", ".crt"}, filepath.Ext(ent.Name())) {
			continue
		}
		path := filepath.Join(dir, ent.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("directory: read %s: %w", path, err)
		}
		cert, err := cryptox.ParseCertificatePEM(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
		}
		id := strings.TrimSuffix(ent.Name(), filepath.Ext(ent.Name()))
		out[id] = Certificate{
			Path:        path,
			Fingerprint: cryptox.CertificateFingerprint(cert),
			Cert:        cert,
		}
	}
	return out, nil
}
