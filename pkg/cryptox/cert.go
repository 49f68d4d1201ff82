package cryptox

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// CertificateFingerprint returns the SHA-256 of the DER certificate as
// colon-separated upper-case hex, e.g. "AB:CD:...".
func CertificateFingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return formatFingerprint(sum[:])
}

// NormalizeFingerprint upper-cases a fingerprint and inserts colons when the
// input is bare hex, so registries may store either form.
func NormalizeFingerprint(fp string) string {
	fp = strings.ToUpper(strings.TrimSpace(fp))
	if strings.Contains(fp, ":") {
		return fp
	}
	raw, err := hex.DecodeString(fp)
	if err != nil {
		return fp
	}
	return formatFingerprint(raw)
}

func formatFingerprint(sum []byte) string {
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}

// ParseCertificatePEM decodes the first CERTIFICATE block in data.
func ParseCertificatePEM(data []byte) (*x509.Certificate, error) {
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, errors.New("cryptox: no certificate PEM block found")
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("cryptox: parse certificate: %w", err)
		}
		return cert, nil
	}
}
