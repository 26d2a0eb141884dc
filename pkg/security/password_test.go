package security

import (
	"strings"
	"testing"
)

func TestHashAndVerify(t *testing.T) {
	digest, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(digest, "$2") {
		t.Errorf("expected a bcrypt digest, got %q", digest)
	}
	if !VerifyPassword("correct horse battery staple", digest) {
		t.Error("expected password to verify")
	}
	if VerifyPassword("wrong password", digest) {
		t.Error("expected mismatch to fail")
	}
}

func TestHash_EmptyRejected(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Error("expected error for empty password")
	}
}

func TestHash_Salted(t *testing.T) {
	a, err := HashPassword("same password")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b, err := HashPassword("same password")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if a == b {
		t.Error("two hashes of the same password must differ")
	}
}
