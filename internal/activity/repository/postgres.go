package repository

import (
	"context"

	"onego-security/backend/internal/activity/domain"
	"onego-security/backend/internal/db"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an activity log repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// Create persists the entry. Empty metadata is stored as {}.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.Entry) error {
	meta := []byte(e.Metadata)
	if len(meta) == 0 {
		meta = []byte("{}")
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO activity_logs (id, user_id, action, resource, ip, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.UserID, e.Action, e.Resource, e.IP, meta, e.CreatedAt)
	return err
}

// ListByUser returns the user's entries newest first, paginated by limit and offset.
// Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, user_id, action, resource, ip, metadata, created_at
		FROM activity_logs WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*domain.Entry, 0)
	for rows.Next() {
		var e domain.Entry
		var meta []byte
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Resource, &e.IP, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Metadata = meta
		out = append(out, &e)
	}
	return out, rows.Err()
}
