package repository

import (
	"context"

	"onego-security/backend/internal/user/domain"
)

// Repository defines persistence for users.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetByEmail matches case-insensitively.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	// Update writes name, email, phone and both verified flags.
	Update(ctx context.Context, u *domain.User) error
	SetAdBlock(ctx context.Context, userID string, enabled bool) error
	// Delete removes the user; identities, sessions, reset tokens and activity rows cascade.
	Delete(ctx context.Context, id string) error
}
