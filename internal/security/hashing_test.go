package security

import (
	"strings"
	"testing"
)

func TestHasher_HashAndCompare(t *testing.T) {
	h := NewHasher(4)
	hash, err := h.Hash("secret123")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "" || hash == "secret123" {
		t.Fatalf("Hash = %q, want a bcrypt digest", hash)
	}
	if err := h.Compare(hash, "secret123"); err != nil {
		t.Fatalf("Compare: %v", err)
	}
}

func TestHasher_CompareWrongPassword(t *testing.T) {
	h := NewHasher(4)
	hash, _ := h.Hash("secret123")
	if err := h.Compare(hash, "wrong"); err == nil {
		t.Fatal("Compare with wrong password should fail")
	}
}

func TestHasher_TooLong(t *testing.T) {
	h := NewHasher(4)
	if _, err := h.Hash(strings.Repeat("a", 73)); err != ErrPasswordTooLong {
		t.Errorf("Hash(73 bytes) err = %v, want ErrPasswordTooLong", err)
	}
}

func TestHasher_Cost(t *testing.T) {
	if h := NewHasher(12); h.Cost != 12 {
		t.Errorf("Cost want 12, got %d", h.Cost)
	}
	if h := NewHasher(0); h.Cost < 4 {
		t.Errorf("zero cost should be clamped to at least MinCost, got %d", h.Cost)
	}
	if h := NewHasher(99); h.Cost != 31 {
		t.Errorf("Cost 99 should clamp to 31, got %d", h.Cost)
	}
}

func TestHasher_NeedsRehash(t *testing.T) {
	old, err := NewHasher(4).Hash("secret123")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !NewHasher(5).NeedsRehash(old) {
		t.Error("cost 4 hash should be upgraded to cost 5")
	}
	if NewHasher(4).NeedsRehash(old) {
		t.Error("same cost should not need a rehash")
	}
	if NewHasher(5).NeedsRehash("not-a-bcrypt-hash") {
		t.Error("unparseable hash should not be rehashed")
	}
}
