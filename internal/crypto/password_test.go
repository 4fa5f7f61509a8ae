package crypto

import "testing"

func TestHashPasswordAndVerifyPassword(t *testing.T) {
	digest, err := HashPassword("s3cret-pw")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if digest == "" {
		t.Fatalf("expected non-empty digest")
	}
	if !VerifyPassword("s3cret-pw", digest) {
		t.Fatalf("expected matching password to verify")
	}
	if VerifyPassword("wrong-pw", digest) {
		t.Fatalf("expected mismatched password to fail")
	}
}

func TestHashPasswordUsesPerCallSalt(t *testing.T) {
	a, err := HashPassword("same-input")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	b, err := HashPassword("same-input")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct digests for distinct salts")
	}
}

func TestVerifyPasswordRejectsMalformedDigest(t *testing.T) {
	if VerifyPassword("anything", "not-a-digest") {
		t.Fatalf("expected malformed digest to fail verification")
	}
}
