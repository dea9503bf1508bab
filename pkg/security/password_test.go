package security_test

import (
	"strings"
	"testing"

	"github.com/angelmondragon/phoenix-backend/pkg/config"
	"github.com/angelmondragon/phoenix-backend/pkg/security"
)

func fastParams() config.PasswordConfig {
	return config.PasswordConfig{
		ArgonMemoryKB:    8192,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := security.HashPassword("very-secure-password", fastParams())
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$") {
		t.Fatalf("unexpected hash format %q", hash)
	}

	ok, err := security.VerifyPassword("very-secure-password", hash)
	if err != nil || !ok {
		t.Fatalf("VerifyPassword failed for the correct password: ok=%v err=%v", ok, err)
	}

	ok, err = security.VerifyPassword("bogus-password", hash)
	if err != nil {
		t.Fatalf("VerifyPassword returned error for invalid password: %v", err)
	}
	if ok {
		t.Fatal("VerifyPassword returned true for incorrect password")
	}
}

func TestVerifyPasswordBadHash(t *testing.T) {
	if _, err := security.VerifyPassword("irrelevant", "not-a-hash"); err == nil {
		t.Fatal("expected error for malformed hash")
	}
}

func TestSyntheticPasswordHashIsUniqueArgon(t *testing.T) {
	a, err := security.SyntheticPasswordHash(fastParams())
	if err != nil {
		t.Fatalf("synthetic hash: %v", err)
	}
	b, err := security.SyntheticPasswordHash(fastParams())
	if err != nil {
		t.Fatalf("synthetic hash: %v", err)
	}
	if a == b {
		t.Fatal("synthetic hashes should differ")
	}
	if !strings.HasPrefix(a, "$argon2id$") {
		t.Fatalf("unexpected synthetic hash %q", a)
	}
}

func TestRandomPassword(t *testing.T) {
	pw, err := security.RandomPassword(32)
	if err != nil {
		t.Fatalf("random password: %v", err)
	}
	if len(pw) != 32 {
		t.Fatalf("expected 32 chars, got %d", len(pw))
	}
	if _, err := security.RandomPassword(0); err == nil {
		t.Fatal("expected error for zero length")
	}
}
