// Package aesgcm implements the decryption capability locally for payloads
// sealed with AES-256-GCM.
package aesgcm

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/ericfisherdev/opconsole/internal/domain/port/driven"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// kdfInfo binds derived keys to this payload format.
var kdfInfo = []byte("opconsole capture payload v1")

// Compile-time interface satisfaction check.
var _ driven.Decrypter = (*Decrypter)(nil)

// Decrypter opens payloads laid out as nonce (12 bytes) || ciphertext || tag.
type Decrypter struct{}

// New creates a Decrypter.
func New() *Decrypter {
	return &Decrypter{}
}

// Decrypt derives a key from keyMaterial and opens ciphertext with it. An
// authentication failure is reported as driven.ErrWrongKey; GCM cannot tell
// a wrong key from a tampered payload.
func (d *Decrypter) Decrypt(ctx context.Context, ciphertext []byte, keyMaterial string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key, err := DeriveKey(keyMaterial)
	if err != nil {
		return "", err
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize+gcm.Overhead() {
		return "", fmt.Errorf("open payload: %w: payload shorter than nonce and tag", driven.ErrWrongKey)
	}

	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", driven.ErrWrongKey)
	}

	return string(plaintext), nil
}

// Seal encrypts plaintext under keyMaterial and returns
// nonce || ciphertext || tag. It is the inverse of Decrypt.
func Seal(plaintext, keyMaterial string) ([]byte, error) {
	key, err := DeriveKey(keyMaterial)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	return gcm.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// DeriveKey turns operator key material into an AES-256 key. Exactly 64 hex
// characters are used as the raw key; anything else is treated as a
// passphrase and stretched with HKDF-SHA256.
func DeriveKey(keyMaterial string) ([]byte, error) {
	material := strings.TrimSpace(keyMaterial)
	if material == "" {
		return nil, errors.New("derive key: empty key material")
	}

	if len(material) == hex.EncodedLen(KeySize) {
		if raw, err := hex.DecodeString(material); err == nil {
			return raw, nil
		}
	}

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(material), nil, kdfInfo), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return gcm, nil
}
