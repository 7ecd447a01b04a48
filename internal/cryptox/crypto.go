// Package cryptox seals small secrets for storage at rest with AES-256-GCM.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/sitekeeper/internal/common"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of a sealing key in bytes.
const KeySize = 32

// ErrMalformed is returned by Open for values that were not produced by Seal
// or were sealed under another key or owner.
var ErrMalformed = errors.New("malformed sealed value")

// DeriveKey expands secret into a KeySize key bound to purpose, so one
// configured secret can serve several independent keys.
func DeriveKey(secret []byte, purpose string) ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(purpose)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// Sealer encrypts and authenticates values with a fixed key.
type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(key []byte) (*Sealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("sealer: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("sealer: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext under a fresh nonce and returns
// base64(nonce || ciphertext). owner is authenticated but not stored; Open
// must be given the same owner.
func (s *Sealer) Seal(plaintext, owner []byte) (string, error) {
	nonce := common.GenerateRandByteArray(s.aead.NonceSize())
	out := s.aead.Seal(nonce, nonce, plaintext, owner)
	return base64.RawStdEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string, owner []byte) ([]byte, error) {
	raw, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, ErrMalformed
	}
	n := s.aead.NonceSize()
	if len(raw) < n+s.aead.Overhead() {
		return nil, ErrMalformed
	}
	plaintext, err := s.aead.Open(nil, raw[:n], raw[n:], owner)
	if err != nil {
		return nil, ErrMalformed
	}
	return plaintext, nil
}
