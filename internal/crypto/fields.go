package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// FieldCipher encrypts small JSON blobs (bot provider credentials) with a
// process-wide key loaded once at startup. Key rotation is not implemented;
// rotating ENCRYPTION_KEY requires re-encrypting every BotProfile row offline.
type FieldCipher struct {
	gcm cipher.AEAD
}

// NewFieldCipher builds an AES-256-GCM cipher from a 32-byte key.
func NewFieldCipher(key []byte) (*FieldCipher, error) {
	if len(key) != 32 {
		return nil, errors.New("crypto: encryption key must be 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}
	return &FieldCipher{gcm: gcm}, nil
}

// Encrypt seals plain with a fresh random nonce prepended to the ciphertext.
func (c *FieldCipher) Encrypt(plain []byte) ([]byte, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}
	return c.gcm.Seal(nonce, nonce, plain, nil), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func (c *FieldCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	nonceSize := c.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("crypto: ciphertext too short")
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plain, err := c.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, errors.New("crypto: decryption failed")
	}
	return plain, nil
}

// EncryptToString is a convenience wrapper returning base64-encoded output.
func (c *FieldCipher) EncryptToString(plain []byte) (string, error) {
	sealed, err := c.Encrypt(plain)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptFromString reverses EncryptToString.
func (c *FieldCipher) DecryptFromString(encoded string) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode ciphertext: %w", err)
	}
	return c.Decrypt(sealed)
}
