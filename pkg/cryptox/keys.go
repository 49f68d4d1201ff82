package cryptox

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// KeyType identifies the family of an asymmetric key.
type KeyType string

const (
	KeyTypeRSA     KeyType = "RSA"
	KeyTypeP256    KeyType = "P-256"
	KeyTypeEd25519 KeyType = "Ed25519"
)

// MinRSABits is the smallest RSA modulus accepted anywhere in the server,
// for our own keys as well as client certificates and client JWKs.
const MinRSABits = 2048

// ErrWeakKey is returned for keys below the minimum strength.
var ErrWeakKey = errors.New("cryptox: key too weak")

// GenerateSigningKey creates a new private key of the given type. rsaBits is
// only consulted for RSA keys.
func GenerateSigningKey(kt KeyType, rsaBits int) (crypto.Signer, error) {
	switch kt {
	case KeyTypeRSA:
		if rsaBits < MinRSABits {
			return nil, fmt.Errorf("cryptox: RSA key size must be at least %d bits", MinRSABits)
		}
		key, err := rsa.GenerateKey(rand.Reader, rsaBits)
		if err != nil {
			return nil, fmt.Errorf("cryptox: generate RSA key: %w", err)
		}
		return key, nil
	case KeyTypeP256:
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("cryptox: generate P-256 key: %w", err)
		}
		return key, nil
	case KeyTypeEd25519:
		_, key, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("cryptox: generate Ed25519 key: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("cryptox: unsupported key type %q", kt)
	}
}

// MarshalPrivateKeyPEM encodes a private key as a PKCS8 PEM block.
func MarshalPrivateKeyPEM(key crypto.Signer) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: marshal PKCS8 key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// ParsePrivateKeyPEM decodes a PKCS8, PKCS1 or SEC1 PEM private key.
func ParsePrivateKeyPEM(data []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("cryptox: no PEM block found")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("cryptox: parse PKCS8 key: %w", err)
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("cryptox: unsupported PKCS8 key %T", key)
		}
		return signer, nil
	default:
		return nil, fmt.Errorf("cryptox: unsupported PEM block %q", block.Type)
	}
}

// KeyTypeOf reports the KeyType of a public or private key.
func KeyTypeOf(key any) (KeyType, error) {
	switch k := key.(type) {
	case *rsa.PublicKey, *rsa.PrivateKey:
		return KeyTypeRSA, nil
	case *ecdsa.PublicKey:
		if k.Curve == elliptic.P256() {
			return KeyTypeP256, nil
		}
	case *ecdsa.PrivateKey:
		if k.Curve == elliptic.P256() {
			return KeyTypeP256, nil
		}
	case ed25519.PublicKey, ed25519.PrivateKey:
		return KeyTypeEd25519, nil
	}
	return "", fmt.Errorf("cryptox: unsupported key %T", key)
}

// CheckKeyStrength rejects RSA keys under MinRSABits and EC keys on curves
// smaller than P-256. Ed25519 is always accepted.
func CheckKeyStrength(pub crypto.PublicKey) error {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		if k.N.BitLen() < MinRSABits {
			return fmt.Errorf("%w: RSA %d bits", ErrWeakKey, k.N.BitLen())
		}
		return nil
	case *ecdsa.PublicKey:
		if k.Curve.Params().BitSize < 256 {
			return fmt.Errorf("%w: EC %d bits", ErrWeakKey, k.Curve.Params().BitSize)
		}
		return nil
	case ed25519.PublicKey:
		return nil
	default:
		return fmt.Errorf("%w: unsupported key %T", ErrWeakKey, pub)
	}
}
