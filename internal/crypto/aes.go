// Package crypto provides AES-256-GCM sealing for credential blobs before
// they leave the machine.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

// magic prefixes sealed blobs so consumers can tell them from plain files.
var magic = []byte("pgsealv1\x00")

// Seal encrypts blob using AES-256-GCM.
// Output layout: magic + nonce + ciphertext + tag.
// If key is empty, the blob is returned unchanged.
func Seal(blob []byte, key string) ([]byte, error) {
	if key == "" || len(blob) == 0 {
		return blob, nil
	}

	keyBytes, err := DeriveKey(key)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(magic)+len(nonce)+len(blob)+gcm.Overhead())
	out = append(out, magic...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, blob, nil), nil
}

// Open decrypts a blob produced by Seal.
// Blobs without the magic header are returned as-is (plain uploads).
// If key is empty, the blob is returned unchanged.
func Open(blob []byte, key string) ([]byte, error) {
	if key == "" || !IsSealed(blob) {
		return blob, nil
	}

	keyBytes, err := DeriveKey(key)
	if err != nil {
		return nil, err
	}

	data := blob[len(magic):]

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("sealed blob truncated")
	}

	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return nil, errors.New("open failed: invalid key or corrupted data")
	}

	return plaintext, nil
}

// IsSealed returns true if the blob carries the seal magic header.
func IsSealed(blob []byte) bool {
	return bytes.HasPrefix(blob, magic)
}

// DeriveKey converts the input string to a 32-byte AES key.
// Accepts: hex-encoded (64 chars), base64-encoded (44 chars), or raw 32 bytes.
func DeriveKey(input string) ([]byte, error) {
	// Hex-encoded: 64 hex chars = 32 bytes
	if len(input) == 64 {
		if b, err := hex.DecodeString(input); err == nil {
			return b, nil
		}
	}

	// Base64-encoded: 44 chars = 32 bytes
	if len(input) == 44 && strings.HasSuffix(input, "=") {
		if b, err := base64.StdEncoding.DecodeString(input); err == nil && len(b) == 32 {
			return b, nil
		}
	}

	// Raw 32 bytes
	if len(input) == 32 {
		return []byte(input), nil
	}

	return nil, errors.New("encryption key must be 32 bytes (hex-encoded 64 chars, base64 44 chars, or raw 32 bytes)")
}
