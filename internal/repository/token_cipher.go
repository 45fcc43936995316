package repository

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ErrTokenDecrypt a stored credential could not be decrypted with the configured key.
var ErrTokenDecrypt = errors.New("failed to decrypt token")

// TokenCipher encrypts OAuth tokens at rest with AES-GCM.
// Ciphertexts are base64(nonce || sealed).
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher builds a cipher from a 16, 24 or 32 byte key.
func NewTokenCipher(key []byte) (*TokenCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("invalid token key: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &TokenCipher{aead: aead}, nil
}

// Encrypt seals plaintext with a random nonce.
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *TokenCipher) Decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenDecrypt, err)
	}
	size := c.aead.NonceSize()
	if len(data) < size+c.aead.Overhead() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrTokenDecrypt)
	}
	plaintext, err := c.aead.Open(nil, data[:size], data[size:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenDecrypt, err)
	}
	return string(plaintext), nil
}

func (c *TokenCipher) encryptOptional(s *string) (interface{}, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	sealed, err := c.Encrypt(*s)
	if err != nil {
		return nil, err
	}
	return sealed, nil
}
