package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// opaqueTokenBytes is 256 bits of entropy, per the minimum the token format
// requires.
const opaqueTokenBytes = 32

// NewOpaqueToken generates a high-entropy bearer token, hex-encoded.
func NewOpaqueToken() (string, error) {
	buf := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("crypto: generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashOpaqueToken returns a deterministic keyless digest of a plaintext
// token, suitable for an indexed lookup column. Hashing the same token
// twice always yields the same digest.
func HashOpaqueToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// EqualTokenHash compares two digests in constant time.
func EqualTokenHash(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// HMACSignHex returns the hex-encoded HMAC-SHA256 of body keyed by secret,
// used both for webhook signing and for verifying inbound webhook replays.
func HMACSignHex(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMACHex reports whether signature is the correct hex HMAC-SHA256 of
// body under secret, compared in constant time.
func VerifyHMACHex(secret string, body []byte, signature string) bool {
	expected := HMACSignHex(secret, body)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
