package repository

import (
	"context"

	"onego-security/backend/internal/activity/domain"
)

// Repository defines persistence for activity log entries.
type Repository interface {
	Create(ctx context.Context, e *domain.Entry) error
	// ListByUser returns the user's entries, newest first.
	ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.Entry, error)
}
