// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package config

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestNewCredentialVault(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr error
	}{
		{name: "valid secret", secret: "a-long-enough-credential-secret-value"},
		{name: "empty secret", secret: "", wantErr: ErrEmptySecret},
		{name: "short secret", secret: "x"},
		{name: "long secret", secret: strings.Repeat("a", 1000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewCredentialVault(tt.secret)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("NewCredentialVault() error = %v, want %v", err, tt.wantErr)
				}
				if v != nil {
					t.Error("NewCredentialVault() returned vault on error")
				}
				return
			}
			if err != nil || v == nil {
				t.Fatalf("NewCredentialVault() = %v, %v", v, err)
			}
		})
	}
}

func TestCredentialVaultRoundTrip(t *testing.T) {
	v, err := NewCredentialVault("round-trip-secret")
	if err != nil {
		t.Fatal(err)
	}

	sealed, err := v.Encrypt("hubspot", "pat-na1-1234")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if strings.Contains(sealed, "pat-na1") {
		t.Error("ciphertext leaks plaintext")
	}

	plain, err := v.Decrypt("hubspot", sealed)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if plain != "pat-na1-1234" {
		t.Errorf("Decrypt = %q, want pat-na1-1234", plain)
	}

	again, _ := v.Encrypt("hubspot", "pat-na1-1234")
	if again == sealed {
		t.Error("expected random nonce to produce distinct ciphertexts")
	}
}

func TestCredentialVaultRejectsTampering(t *testing.T) {
	v, _ := NewCredentialVault("tamper-secret")
	sealed, _ := v.Encrypt("twilio", "auth-token-value")

	raw, _ := base64.StdEncoding.DecodeString(sealed)
	raw[len(raw)-1] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)

	if _, err := v.Decrypt("twilio", tampered); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("tampered ciphertext: err = %v, want ErrDecryptionFailed", err)
	}
	if _, err := v.Decrypt("hubspot", sealed); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("wrong integration: err = %v, want ErrDecryptionFailed", err)
	}

	other, _ := NewCredentialVault("another-secret")
	if _, err := other.Decrypt("twilio", sealed); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("wrong key: err = %v, want ErrDecryptionFailed", err)
	}
}

func TestCredentialVaultInvalidInput(t *testing.T) {
	v, _ := NewCredentialVault("input-secret")

	if _, err := v.Encrypt("x", ""); !errors.Is(err, ErrEmptyPlaintext) {
		t.Errorf("Encrypt empty: %v", err)
	}
	if _, err := v.Decrypt("x", ""); !errors.Is(err, ErrEmptyCiphertext) {
		t.Errorf("Decrypt empty: %v", err)
	}
	if _, err := v.Decrypt("x", "!!not-base64!!"); !errors.Is(err, ErrInvalidCiphertext) {
		t.Errorf("Decrypt bad base64: %v", err)
	}
	short := base64.StdEncoding.EncodeToString([]byte("short"))
	if _, err := v.Decrypt("x", short); !errors.Is(err, ErrInvalidCiphertext) {
		t.Errorf("Decrypt short: %v", err)
	}
}

func TestMaskCredential(t *testing.T) {
	tests := map[string]string{
		"":             "",
		"abc":          "****",
		"abcd":         "****",
		"sk-live-9876": "****...9876",
	}
	for in, want := range tests {
		if got := MaskCredential(in); got != want {
			t.Errorf("MaskCredential(%q) = %q, want %q", in, got, want)
		}
	}
}
