// Package cryptoutil implements the two primitives the agent needs to
// talk to the control plane safely without a full TLS stack of its
// own: an AES-256-GCM sealed envelope for data at rest (the identity
// file's node_secret) and HMAC-SHA-256 signature verification for
// control-plane webhook-style callbacks.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// KeySize is the required length, in bytes, of the master key used to
// seal and open envelopes.
const KeySize = 32

// Seal encrypts plaintext under key using AES-256-GCM, returning
// nonce||ciphertext||tag. A fresh random nonce is generated for every
// call; Seal never reuses a nonce for a given key.
func Seal(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cryptoutil: generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal, returning the plaintext or an error if the
// envelope was tampered with or key is wrong. It never returns partial
// plaintext on failure.
func Open(key, envelope []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(envelope) < gcm.NonceSize() {
		return nil, fmt.Errorf("cryptoutil: envelope shorter than nonce")
	}

	nonce, ciphertext := envelope[:gcm.NonceSize()], envelope[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: open envelope: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("cryptoutil: key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: new cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// GenerateKey returns a new random 32-byte master key suitable for
// use with Seal and Open.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("cryptoutil: generate key: %w", err)
	}
	return key, nil
}
