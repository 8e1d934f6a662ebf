// Package cryptox implements the authenticated encryption used for journal
// entry bodies and for sealing keys at rest. Payloads are encrypted with
// AES-256-GCM; the random nonce is embedded at the front of the output blob
// so a blob is self-contained.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/quietlog/quietlog/internal/common"
	"golang.org/x/crypto/argon2"
)

// KeySize is the symmetric key length in bytes (AES-256).
const KeySize = 32

const nonceSize = 12

// Box performs authenticated encryption under a fixed key. It is stateless
// beyond the key and safe for concurrent use.
type Box struct {
	aead cipher.AEAD
}

// NewBox builds a Box around a 32-byte key.
func NewBox(key []byte) (*Box, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Box{aead: aead}, nil
}

// Seal encrypts plaintext and returns nonce||ciphertext. A fresh random
// nonce is generated on every call.
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, nonceSize+len(plaintext)+b.aead.Overhead())
	out = append(out, nonce...)
	return b.aead.Seal(out, nonce, plaintext, nil), nil
}

// Open decrypts a blob produced by Seal. It returns
// common.ErrAuthenticationFailed if the blob is truncated, has been tampered
// with, or was sealed under a different key. Authentication failure is never
// reported as empty content.
func (b *Box) Open(blob []byte) ([]byte, error) {
	if len(blob) < nonceSize+b.aead.Overhead() {
		return nil, fmt.Errorf("blob too short (%d bytes): %w", len(blob), common.ErrAuthenticationFailed)
	}
	plaintext, err := b.aead.Open(nil, blob[:nonceSize], blob[nonceSize:], nil)
	if err != nil {
		return nil, common.ErrAuthenticationFailed
	}
	return plaintext, nil
}

// DeriveKEK derives a 32-byte key-encryption key from a passphrase and salt
// using argon2id. Used only by the keystore to seal the data keys at rest.
func DeriveKEK(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize)
}
