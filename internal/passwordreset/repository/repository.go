package repository

import (
	"context"
	"time"

	"onego-security/backend/internal/passwordreset/domain"
)

// Repository defines persistence for password reset tokens.
type Repository interface {
	Create(ctx context.Context, t *domain.Token) error
	GetByHash(ctx context.Context, tokenHash string) (*domain.Token, error)
	// MarkUsed consumes the token if it is still unused and unexpired at now. False means it was not consumed.
	MarkUsed(ctx context.Context, id string, now time.Time) (bool, error)
	DeleteUnusedByUser(ctx context.Context, userID string) error
}
