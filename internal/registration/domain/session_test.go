package domain

import (
	"testing"
	"time"
)

func TestSession_IsExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := &Session{CreatedAt: now, ExpiresAt: now.Add(30 * time.Minute)}
	if s.IsExpired(now.Add(29 * time.Minute)) {
		t.Error("session should be live before expiry")
	}
	if !s.IsExpired(now.Add(30 * time.Minute)) {
		t.Error("session should be expired at expiry")
	}
}

func TestEmailChallenge(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := EmailChallenge{ExpiresAt: now.Add(10 * time.Minute), Attempts: 4}
	if c.Locked(5) {
		t.Error("4 attempts should not lock at max 5")
	}
	c.Attempts = 5
	if !c.Locked(5) {
		t.Error("5 attempts should lock at max 5")
	}
	if c.CodeExpired(now.Add(9 * time.Minute)) {
		t.Error("code should be valid before expiry")
	}
	if !c.CodeExpired(now.Add(10 * time.Minute)) {
		t.Error("code should be expired at expiry")
	}
}
