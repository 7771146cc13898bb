package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// OpaqueTokenBytes is the entropy of reset tokens and registration session ids.
const OpaqueTokenBytes = 32

// RandomToken returns n random bytes as lowercase hex.
func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// NewOpaqueToken returns a fresh bearer token and the hash to persist for it.
// Only the hash is ever stored; the raw value goes to the user once.
func NewOpaqueToken() (raw, hash string, err error) {
	raw, err = RandomToken(OpaqueTokenBytes)
	if err != nil {
		return "", "", err
	}
	return raw, HashToken(raw), nil
}

// HashToken is the hex SHA-256 of token. Lookups go by this value, so no comparison of the raw
// token ever happens in process.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// WellFormedToken reports whether s could have come from NewOpaqueToken. It lets callers reject
// junk without a database round trip.
func WellFormedToken(s string) bool {
	if len(s) != 2*OpaqueTokenBytes {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
