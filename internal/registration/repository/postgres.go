package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"onego-security/backend/internal/db"
	"onego-security/backend/internal/registration/domain"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a registration repository over db (a pool or a transaction).
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

const sessionColumns = `id, name, email, phone, password, email_code_hash, email_code_expires_at,
	email_verified, email_attempts, mobile_verified, mobile_attempts, created_at, expires_at`

// Create persists the session. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO registration_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		s.ID, s.User.Name, s.User.Email, s.User.Phone, s.User.Password,
		s.Email.CodeHash, s.Email.ExpiresAt, s.Email.Verified, s.Email.Attempts,
		s.Mobile.Verified, s.Mobile.Attempts, s.CreatedAt, s.ExpiresAt)
	return err
}

// GetByID returns the session for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM registration_sessions WHERE id = $1`, id).Scan(
		&s.ID, &s.User.Name, &s.User.Email, &s.User.Phone, &s.User.Password,
		&s.Email.CodeHash, &s.Email.ExpiresAt, &s.Email.Verified, &s.Email.Attempts,
		&s.Mobile.Verified, &s.Mobile.Attempts, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *PostgresRepository) MarkEmailVerified(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE registration_sessions SET email_verified = TRUE WHERE id = $1`, id)
	return err
}

func (r *PostgresRepository) IncrementEmailAttempts(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE registration_sessions SET email_attempts = email_attempts + 1 WHERE id = $1`, id)
	return err
}

func (r *PostgresRepository) ResetEmailChallenge(ctx context.Context, id, codeHash string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE registration_sessions
		SET email_code_hash = $2, email_code_expires_at = $3, email_attempts = 0
		WHERE id = $1`, id, codeHash, expiresAt)
	return err
}

func (r *PostgresRepository) IncrementMobileAttempts(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE registration_sessions SET mobile_attempts = mobile_attempts + 1 WHERE id = $1`, id)
	return err
}

func (r *PostgresRepository) ResetMobileAttempts(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE registration_sessions SET mobile_attempts = 0 WHERE id = $1`, id)
	return err
}

// Delete removes the session by id. The bool is false when no row existed, which lets
// completion detect a concurrent consumer.
func (r *PostgresRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM registration_sessions WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteByEmail drops every pending registration for email (case-insensitive).
func (r *PostgresRepository) DeleteByEmail(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM registration_sessions WHERE lower(email) = lower($1)`, email)
	return err
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM registration_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
