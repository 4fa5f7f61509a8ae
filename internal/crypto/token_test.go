package crypto

import "testing"

func TestHashOpaqueTokenIsDeterministic(t *testing.T) {
	token, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("new opaque token: %v", err)
	}
	a := HashOpaqueToken(token)
	b := HashOpaqueToken(token)
	if a != b {
		t.Fatalf("expected hashing the same token twice to match")
	}
	if !EqualTokenHash(a, b) {
		t.Fatalf("expected digests to compare equal")
	}
}

func TestHMACSignHexVerify(t *testing.T) {
	body := []byte(`{"event":"source.ingested"}`)
	sig := HMACSignHex("wh-secret", body)
	if !VerifyHMACHex("wh-secret", body, sig) {
		t.Fatalf("expected signature to verify")
	}
	if VerifyHMACHex("wrong-secret", body, sig) {
		t.Fatalf("expected signature with wrong secret to fail")
	}
}
