package security

import (
	"crypto"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed or invalid.
	ErrInvalidToken = errors.New("invalid token")
)

// SessionClaims holds JWT claims for the session token handed to the extension.
type SessionClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id"`
	Email     string `json:"email,omitempty"`
}

// TokenProvider issues and validates session JWTs. It signs with RS256/ES256 when a key pair
// is configured and falls back to HS256 with a shared secret otherwise. Tokens signed with any
// other algorithm are rejected.
type TokenProvider struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	issuer    string
	audience  string
	ttl       time.Duration
}

// NewTokenProvider returns a TokenProvider that signs with the given private key (RS256 or ES256).
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, ttl time.Duration) *TokenProvider {
	p := &TokenProvider{signKey: privateKey, verifyKey: publicKey, issuer: issuer, audience: audience, ttl: ttl}
	switch SigningAlg(publicKey) {
	case "RS256":
		p.method = jwt.SigningMethodRS256
	case "ES256":
		p.method = jwt.SigningMethodES256
	}
	return p
}

// NewHMACTokenProvider returns a TokenProvider signing with HS256.
func NewHMACTokenProvider(secret []byte, issuer, audience string, ttl time.Duration) *TokenProvider {
	p := &TokenProvider{signKey: secret, verifyKey: secret, issuer: issuer, audience: audience, ttl: ttl}
	if len(secret) > 0 {
		p.method = jwt.SigningMethodHS256
	}
	return p
}

// TTL returns the token lifetime.
func (p *TokenProvider) TTL() time.Duration { return p.ttl }

// Issue issues a session JWT bound to sessionID for userID.
// Returns the token string and its expiration time.
func (p *TokenProvider) Issue(sessionID, userID, email string) (token string, expiresAt time.Time, err error) {
	if p.method == nil {
		return "", time.Time{}, ErrInvalidToken
	}
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt = now.Add(p.ttl)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SessionID: sessionID,
		Email:     email,
	}
	token, err = jwt.NewWithClaims(p.method, claims).SignedString(p.signKey)
	return token, expiresAt, err
}

// Validate parses and validates the token (algorithm, signature, exp, iss, aud).
// Returns sessionID and userID, or ErrInvalidToken.
func (p *TokenProvider) Validate(tokenString string) (sessionID, userID string, err error) {
	if p.method == nil {
		return "", "", ErrInvalidToken
	}
	var claims SessionClaims
	_, err = jwt.ParseWithClaims(tokenString, &claims,
		func(*jwt.Token) (any, error) { return p.verifyKey, nil },
		jwt.WithValidMethods([]string{p.method.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", "", ErrInvalidToken
	}
	if claims.SessionID == "" || claims.Subject == "" {
		return "", "", ErrInvalidToken
	}
	return claims.SessionID, claims.Subject, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
