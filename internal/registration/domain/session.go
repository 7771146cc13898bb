// Package domain holds the pending-registration record and its challenge state.
package domain

import "time"

// PendingUser is the candidate account captured at registration. Password stays plaintext
// until the account is created; it is hashed exactly once, at creation.
type PendingUser struct {
	Name     string
	Email    string
	Phone    string
	Password string
}

// EmailChallenge is the locally generated email code. Only its hash is stored.
type EmailChallenge struct {
	CodeHash  string
	ExpiresAt time.Time
	Verified  bool
	Attempts  int
}

// Locked reports whether failed attempts reached max. A locked challenge rejects even
// the correct code until a resend resets it.
func (c EmailChallenge) Locked(max int) bool {
	return c.Attempts >= max
}

// CodeExpired reports whether the email code is past its expiry at now.
func (c EmailChallenge) CodeExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// MobileChallenge tracks mobile verification; the code itself lives with the SMS verifier.
type MobileChallenge struct {
	Verified bool
	Attempts int
}

// Session is a pending registration (stored in registration_sessions).
type Session struct {
	ID        string
	User      PendingUser
	Email     EmailChallenge
	Mobile    MobileChallenge
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether the session lifetime has elapsed at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
