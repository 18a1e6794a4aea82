// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package config

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

// Integration credentials (CRM API keys, telephony tokens) are stored in the
// backend encrypted with AES-256-GCM. The key is derived from
// CREDENTIAL_SECRET with HKDF-SHA256, and the integration name is bound as
// associated data so a ciphertext cannot be replayed under another
// integration.
//
// Ciphertext format: base64(nonce || sealed).
const (
	vaultSalt    = "dashline-integration-credentials"
	vaultInfo    = "credential-vault-v1"
	aesKeySize   = 32
	gcmNonceSize = 12
)

var (
	// ErrEmptySecret is returned when no credential secret is configured.
	ErrEmptySecret = errors.New("credential secret cannot be empty")

	// ErrEmptyPlaintext is returned when encrypting an empty credential.
	ErrEmptyPlaintext = errors.New("plaintext cannot be empty")

	// ErrEmptyCiphertext is returned when decrypting an empty value.
	ErrEmptyCiphertext = errors.New("ciphertext cannot be empty")

	// ErrInvalidCiphertext is returned for values that are not valid base64
	// or are shorter than nonce plus tag.
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")

	// ErrDecryptionFailed is returned when authentication fails: wrong key,
	// wrong integration, or tampered data.
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or authentication tag")
)

// CredentialVault encrypts and decrypts integration credentials.
type CredentialVault struct {
	aead cipher.AEAD
}

// NewCredentialVault derives the vault key from secret.
func NewCredentialVault(secret string) (*CredentialVault, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key, err := deriveKey(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &CredentialVault{aead: aead}, nil
}

// Encrypt seals plaintext for the named integration.
func (v *CredentialVault) Encrypt(integration, plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), []byte(integration))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt for the same integration.
func (v *CredentialVault) Decrypt(integration, ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", ErrEmptyCiphertext
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed: %s", ErrInvalidCiphertext, err.Error())
	}
	if len(data) < gcmNonceSize+1+v.aead.Overhead() {
		return "", fmt.Errorf("%w: too short", ErrInvalidCiphertext)
	}

	plaintext, err := v.aead.Open(nil, data[:gcmNonceSize], data[gcmNonceSize:], []byte(integration))
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// MaskCredential returns a display form showing only the last 4 characters.
func MaskCredential(credential string) string {
	switch {
	case credential == "":
		return ""
	case len(credential) <= 4:
		return "****"
	default:
		return "****..." + credential[len(credential)-4:]
	}
}

func deriveKey(secret string) ([]byte, error) {
	r := hkdf.New(sha256.New, []byte(secret), []byte(vaultSalt), []byte(vaultInfo))
	key := make([]byte, aesKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to read HKDF output: %w", err)
	}
	return key, nil
}
