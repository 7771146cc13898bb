package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"onego-security/backend/internal/db"
	"onego-security/backend/internal/session/domain"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	var s domain.Session
	var revoked, lastSeen sql.NullTime
	err := r.db.QueryRowContext(ctx, `SELECT id, user_id, expires_at, revoked_at, last_seen_at, ip_address, user_agent, created_at
		FROM sessions WHERE id = $1`, id).
		Scan(&s.ID, &s.UserID, &s.ExpiresAt, &revoked, &lastSeen, &s.IPAddress, &s.UserAgent, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.RevokedAt = db.TimePtr(revoked)
	s.LastSeenAt = db.TimePtr(lastSeen)
	return &s, nil
}

// ListByUser returns the user's live sessions, most recently created first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, user_id, expires_at, revoked_at, last_seen_at, ip_address, user_agent, created_at
		FROM sessions WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`, userID, time.Now().UTC(), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		var s domain.Session
		var revoked, lastSeen sql.NullTime
		if err := rows.Scan(&s.ID, &s.UserID, &s.ExpiresAt, &revoked, &lastSeen, &s.IPAddress, &s.UserAgent, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.RevokedAt = db.TimePtr(revoked)
		s.LastSeenAt = db.TimePtr(lastSeen)
		out = append(out, &s)
	}
	return out, rows.Err()
}

// Create persists the session to the database. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO sessions (id, user_id, expires_at, revoked_at, last_seen_at, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.UserID, s.ExpiresAt, db.NullTime(s.RevokedAt), db.NullTime(s.LastSeenAt), s.IPAddress, s.UserAgent, s.CreatedAt)
	return err
}

// Revoke marks the session with the given id as revoked. Already revoked sessions keep their original timestamp.
func (r *PostgresRepository) Revoke(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`, id, time.Now().UTC())
	return err
}

// RevokeAllSessionsByUser revokes all live sessions for the given user.
func (r *PostgresRepository) RevokeAllSessionsByUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`, userID, time.Now().UTC())
	return err
}

// UpdateLastSeen sets the session's last-seen timestamp for the given id.
func (r *PostgresRepository) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET last_seen_at = $2 WHERE id = $1`, id, at)
	return err
}
