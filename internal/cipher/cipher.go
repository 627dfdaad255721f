// Package cipher provides the content cipher that encrypts turn content at rest.
// When no key is configured it passes content through unchanged (development mode),
// mirroring original_source's Fernet-optional ContentCipher.
package cipher

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// ContentCipher is an authenticated symmetric encryption provider for turn content.
// With no key, Encrypt/Decrypt are no-ops; with a key, content is sealed with
// ChaCha20-Poly1305 and base64-encoded for storage as a string column.
type ContentCipher struct {
	aead chacha20poly1305.AEAD
}

// New builds a ContentCipher from a base64- or raw-encoded key. An empty key
// selects plaintext pass-through (development mode). The key must decode to
// exactly chacha20poly1305.KeySize (32) bytes.
func New(key string) (*ContentCipher, error) {
	if key == "" {
		return &ContentCipher{}, nil
	}

	raw, err := decodeKey(key)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(raw)
	if err != nil {
		return nil, err
	}
	return &ContentCipher{aead: aead}, nil
}

// Enabled reports whether a key was configured.
func (c *ContentCipher) Enabled() bool {
	return c.aead != nil
}

// Encrypt seals plaintext for storage. With no key configured it returns the
// plaintext unchanged.
func (c *ContentCipher) Encrypt(plaintext string) (string, error) {
	if c.aead == nil {
		return plaintext, nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens ciphertext produced by Encrypt. With no key configured it
// returns the input unchanged. Invalid ciphertext (e.g. produced before a key
// was configured, or corrupted) is returned unchanged rather than erroring,
// matching original_source's tolerant InvalidToken handling.
func (c *ContentCipher) Decrypt(stored string) (string, error) {
	if c.aead == nil {
		return stored, nil
	}

	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return stored, nil
	}
	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize {
		return stored, nil
	}
	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return stored, nil
	}
	return string(plaintext), nil
}

func decodeKey(key string) ([]byte, error) {
	if raw, err := base64.StdEncoding.DecodeString(key); err == nil && len(raw) == chacha20poly1305.KeySize {
		return raw, nil
	}
	if raw, err := base64.RawURLEncoding.DecodeString(key); err == nil && len(raw) == chacha20poly1305.KeySize {
		return raw, nil
	}
	if len(key) == chacha20poly1305.KeySize {
		return []byte(key), nil
	}
	return nil, errors.New("content_encryption_key must decode to 32 bytes")
}
