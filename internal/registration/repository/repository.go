package repository

import (
	"context"
	"time"

	"onego-security/backend/internal/registration/domain"
)

// Repository defines persistence for pending registrations.
// GetByID returns (nil, nil) when the session does not exist; callers check expiry themselves.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	MarkEmailVerified(ctx context.Context, id string) error
	// IncrementEmailAttempts atomically adds one failed email attempt.
	IncrementEmailAttempts(ctx context.Context, id string) error
	// ResetEmailChallenge installs a new code hash and expiry and zeroes the attempt counter.
	ResetEmailChallenge(ctx context.Context, id, codeHash string, expiresAt time.Time) error
	IncrementMobileAttempts(ctx context.Context, id string) error
	ResetMobileAttempts(ctx context.Context, id string) error
	// Delete removes the session and reports whether a row was removed.
	Delete(ctx context.Context, id string) (bool, error)
	DeleteByEmail(ctx context.Context, email string) error
	// DeleteExpired removes sessions whose expiry is at or before now and returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
