package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters tuned for an interactive login path.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

var errMalformedDigest = errors.New("crypto: malformed password digest")

// HashPassword returns an Argon2id digest encoded as
// "argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>", salt embedded per password.
func HashPassword(plain string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("crypto: generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(plain), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	encoded := fmt.Sprintf(
		"argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)
	return encoded, nil
}

// VerifyPassword reports whether plain matches the stored Argon2id digest.
// Comparison of the derived key is constant-time.
func VerifyPassword(plain, digest string) bool {
	salt, hash, time_, memory, threads, keyLen, err := parseDigest(digest)
	if err != nil {
		return false
	}
	candidate := argon2.IDKey([]byte(plain), salt, time_, memory, threads, keyLen)
	return subtle.ConstantTimeCompare(candidate, hash) == 1
}

func parseDigest(digest string) (salt, hash []byte, time_ uint32, memory uint32, threads uint8, keyLen uint32, err error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 5 || parts[0] != "argon2id" {
		return nil, nil, 0, 0, 0, 0, errMalformedDigest
	}
	var version int
	if _, err = fmt.Sscanf(parts[1], "v=%d", &version); err != nil {
		return nil, nil, 0, 0, 0, 0, errMalformedDigest
	}
	var t, m int
	var p int
	if _, err = fmt.Sscanf(parts[2], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return nil, nil, 0, 0, 0, 0, errMalformedDigest
	}
	salt, err = base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return nil, nil, 0, 0, 0, 0, errMalformedDigest
	}
	hash, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, 0, 0, 0, 0, errMalformedDigest
	}
	return salt, hash, uint32(t), uint32(m), uint8(p), uint32(len(hash)), nil
}
