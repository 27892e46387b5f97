// Package encryption provides at-rest encryption for user contact fields
// (phone, email). Contact fields are never persisted in cleartext: the
// Preferences Store only ever sees the ciphertext this package produces.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize   = 32 // AES-256
	nonceSize = 12 // GCM standard nonce size
)

var ErrCiphertextTooShort = errors.New("encryption: ciphertext shorter than nonce")

// Encryptor encrypts and decrypts contact fields with AES-256-GCM. The
// encryption key is derived from a configured master secret via
// HKDF-SHA256, scoped by a purpose label, so the same master secret can
// safely derive independent keys for different field types (phone vs
// email) without key reuse across domains.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor derives an AES-256-GCM key from masterSecret using
// HKDF-SHA256 with purpose as the info parameter, and returns an Encryptor
// ready to use. masterSecret must be non-empty; it is typically loaded from
// configuration (FIELD_ENCRYPTION_KEY) and never logged.
func NewEncryptor(masterSecret []byte, purpose string) (*Encryptor, error) {
	if len(masterSecret) == 0 {
		return nil, errors.New("encryption: master secret must not be empty")
	}

	key := make([]byte, keySize)
	kdf := hkdf.New(sha256.New, masterSecret, nil, []byte(purpose))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("encryption: derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("encryption: new cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("encryption: new gcm: %w", err)
	}

	return &Encryptor{aead: aead}, nil
}

// Encrypt returns the base64-encoded ciphertext for plaintext, with a fresh
// random nonce prepended. An empty plaintext encrypts to an empty string
// (no contact value to protect).
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("encryption: generate nonce: %w", err)
	}

	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. An empty ciphertext decrypts to an empty string.
func (e *Encryptor) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("encryption: decode base64: %w", err)
	}

	if len(raw) < nonceSize {
		return "", ErrCiphertextTooShort
	}

	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("encryption: decrypt: %w", err)
	}

	return string(plaintext), nil
}
