package crypto

import (
	"testing"
	"time"
)

func TestSessionSignerSignAndVerify(t *testing.T) {
	signer, err := NewSessionSigner([]byte("test-signing-key"), time.Minute)
	if err != nil {
		t.Fatalf("new session signer: %v", err)
	}
	token, err := signer.Sign("user-1", "tenant-1", "owner")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !LooksLikeSessionToken(token) {
		t.Fatalf("expected signed token to contain '.' delimiter")
	}
	claims, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.TenantID != "tenant-1" || claims.Role != "owner" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestSessionSignerRejectsExpiredToken(t *testing.T) {
	signer, err := NewSessionSigner([]byte("test-signing-key"), -time.Minute)
	if err != nil {
		t.Fatalf("new session signer: %v", err)
	}
	token, err := signer.Sign("user-1", "tenant-1", "member")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := signer.Verify(token); err != ErrSessionExpired {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestSessionSignerRejectsBadSignature(t *testing.T) {
	signer, err := NewSessionSigner([]byte("key-a"), time.Minute)
	if err != nil {
		t.Fatalf("new session signer: %v", err)
	}
	token, err := signer.Sign("user-1", "tenant-1", "member")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	other, err := NewSessionSigner([]byte("key-b"), time.Minute)
	if err != nil {
		t.Fatalf("new session signer: %v", err)
	}
	if _, err := other.Verify(token); err != ErrSessionInvalid {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}
}
