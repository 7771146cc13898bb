// Package otp generates numeric one-time codes and compares them against stored hashes.
package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"math/big"
)

// Digits is the length of every generated code.
const Digits = 6

var codeSpace = big.NewInt(1_000_000)

// Generate returns a uniformly random 6-digit numeric code (e.g. "042917").
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}
	s := n.String()
	for len(s) < Digits {
		s = "0" + s
	}
	return s, nil
}

// Hash returns a SHA-256 hash of the code, hex-encoded.
func Hash(code string) string {
	h := sha256.Sum256([]byte(code))
	return hex.EncodeToString(h[:])
}

// Equal performs constant-time comparison of the provided code's hash with the stored hash.
// The match is exact: no trimming or case folding.
func Equal(provided, storedHash string) bool {
	providedHash := Hash(provided)
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}
