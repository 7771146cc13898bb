package repository

import (
	"context"

	"onego-security/backend/internal/identity/domain"
)

// Repository defines persistence for identities.
type Repository interface {
	GetByUserAndProvider(ctx context.Context, userID string, provider domain.IdentityProvider) (*domain.Identity, error)
	Create(ctx context.Context, i *domain.Identity) error
	UpdatePasswordHash(ctx context.Context, id string, passwordHash string) error
	// UpdateProviderID keeps the local identity in step with an email change.
	UpdateProviderID(ctx context.Context, userID string, provider domain.IdentityProvider, providerID string) error
}
