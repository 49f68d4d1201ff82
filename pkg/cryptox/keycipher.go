package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
)

// KeyCipher seals private key material at rest with AES-256-GCM.
//
// Sealed output is laid out as [nonce][ciphertext][tag].
type KeyCipher struct {
	aead cipher.AEAD
}

// NewKeyCipher derives a 32-byte AES key from arbitrary material via SHA-256.
func NewKeyCipher(material []byte) (*KeyCipher, error) {
	if len(material) == 0 {
		return nil, errors.New("cryptox: empty key encryption material")
	}

	key := sha256.Sum256(material)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptox: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create GCM: %w", err)
	}
	return &KeyCipher{aead: aead}, nil
}

// LoadKeyCipher reads key material from path when set, otherwise uses the
// inline value. With neither, a random key is generated and ok is false, so
// sealed data will not survive a restart.
func LoadKeyCipher(path, inline string) (kc *KeyCipher, ok bool, err error) {
	var material []byte
	switch {
	case path != "":
		material, err = os.ReadFile(path)
		if err != nil {
			return nil, false, fmt.Errorf("cryptox: read key encryption file: %w", err)
		}
		ok = true
	case inline != "":
		material = []byte(inline)
		ok = true
	default:
		material = make([]byte, 32)
		if _, err := rand.Read(material); err != nil {
			return nil, false, fmt.Errorf("cryptox: generate ephemeral key: %w", err)
		}
	}

	kc, err = NewKeyCipher(material)
	return kc, ok, err
}

// Seal encrypts plaintext with a fresh random nonce.
func (c *KeyCipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cryptox: generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal, failing if the data was tampered with or sealed under
// a different key.
func (c *KeyCipher) Open(sealed []byte) ([]byte, error) {
	n := c.aead.NonceSize()
	if len(sealed) < n {
		return nil, errors.New("cryptox: ciphertext too short")
	}
	plaintext, err := c.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("cryptox: decrypt: %w", err)
	}
	return plaintext, nil
}
