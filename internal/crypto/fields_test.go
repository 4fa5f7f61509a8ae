package crypto

import (
	"bytes"
	"testing"
)

func testKey() []byte {
	return []byte("01234567890123456789012345678901")[:32]
}

func TestFieldCipherEncryptDecryptRoundtrip(t *testing.T) {
	c, err := NewFieldCipher(testKey())
	if err != nil {
		t.Fatalf("new field cipher: %v", err)
	}
	plain := []byte(`{"api_key":"sk-test"}`)
	sealed, err := c.Encrypt(plain)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(sealed, plain) {
		t.Fatalf("ciphertext must not contain plaintext")
	}
	opened, err := c.Decrypt(sealed)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(opened, plain) {
		t.Fatalf("expected decrypted output to match original")
	}
}

func TestFieldCipherRejectsTamperedCiphertext(t *testing.T) {
	c, err := NewFieldCipher(testKey())
	if err != nil {
		t.Fatalf("new field cipher: %v", err)
	}
	sealed, err := c.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xFF
	if _, err := c.Decrypt(sealed); err == nil {
		t.Fatalf("expected tampered ciphertext to fail decryption")
	}
}

func TestNewFieldCipherRejectsWrongKeySize(t *testing.T) {
	if _, err := NewFieldCipher([]byte("too-short")); err == nil {
		t.Fatalf("expected short key to be rejected")
	}
}
