package security

import "time"

// NewTestHMACTokenProvider returns an HS256 TokenProvider with a fixed secret. For unit tests only.
func NewTestHMACTokenProvider() *TokenProvider {
	return NewHMACTokenProvider([]byte("test-secret-test-secret-test-secret!"), "test-issuer", "test-audience", 24*time.Hour)
}
