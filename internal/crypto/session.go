package crypto

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// ErrSessionInvalid is returned for any signature, format, or claim failure
// other than expiry, collapsed into one outcome to avoid an oracle on why
// verification failed.
var ErrSessionInvalid = errors.New("crypto: invalid session token")

// ErrSessionExpired is returned when verification fails solely because the
// token's exp claim has passed; callers may show a distinct "please log in
// again" message for this case.
var ErrSessionExpired = errors.New("crypto: session token expired")

const sessionIssuer = "minirag"

// SessionClaims carries the subject user, its tenant, and its role, signed
// as a compact dotted HS256 token.
type SessionClaims struct {
	UserID   string `json:"sub"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// SessionSigner signs and verifies session tokens with a single HMAC key.
type SessionSigner struct {
	key []byte
	ttl time.Duration
}

// NewSessionSigner builds a signer from the raw SESSION_SIGNING_KEY bytes.
func NewSessionSigner(key []byte, ttl time.Duration) (*SessionSigner, error) {
	if len(key) == 0 {
		return nil, errors.New("crypto: session signing key required")
	}
	if ttl == 0 {
		ttl = 60 * time.Minute
	}
	return &SessionSigner{key: key, ttl: ttl}, nil
}

// TTL reports the session lifetime used to compute Sign's expiry.
func (s *SessionSigner) TTL() time.Duration {
	return s.ttl
}

// Sign issues a signed session token for the given subject.
func (s *SessionSigner) Sign(userID, tenantID, role string) (string, error) {
	now := time.Now().UTC()
	claims := SessionClaims{
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.key)
}

// Verify validates a session token's signature and expiry and returns its
// claims. Any failure other than expiry is reported as ErrSessionInvalid.
func (s *SessionSigner) Verify(raw string) (*SessionClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrSessionInvalid
	}
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrSessionInvalid
		}
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(sessionIssuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, ErrSessionInvalid
	}
	if !parsed.Valid || claims.UserID == "" || claims.TenantID == "" {
		return nil, ErrSessionInvalid
	}
	return claims, nil
}

// LooksLikeSessionToken reports whether raw carries the "." delimiter used
// by the compact signed token format, distinguishing it from an opaque
// bearer API token at the auth resolver's dispatch point.
func LooksLikeSessionToken(raw string) bool {
	return strings.Contains(raw, ".")
}
