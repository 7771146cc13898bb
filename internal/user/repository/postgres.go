package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"onego-security/backend/internal/db"
	"onego-security/backend/internal/user/domain"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a user repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

const userColumns = `id, email, name, phone, email_verified, phone_verified, status,
	ad_block_enabled, two_factor_enabled, created_at, updated_at`

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var status string
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.EmailVerified, &u.PhoneVerified, &status,
		&u.AdBlockEnabled, &u.TwoFactorEnabled, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Status = domain.UserStatus(status)
	return &u, nil
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByEmail returns the user with the given email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

// Create persists the user. The user must have ID set; it is not assigned by this method.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		u.ID, u.Email, u.Name, u.Phone, u.EmailVerified, u.PhoneVerified, string(u.Status),
		u.AdBlockEnabled, u.TwoFactorEnabled, u.CreatedAt, u.UpdatedAt)
	return err
}

func (r *PostgresRepository) Update(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users
		SET name = $2, email = $3, phone = $4, email_verified = $5, phone_verified = $6, updated_at = $7
		WHERE id = $1`,
		u.ID, u.Name, u.Email, u.Phone, u.EmailVerified, u.PhoneVerified, u.UpdatedAt)
	return err
}

func (r *PostgresRepository) SetAdBlock(ctx context.Context, userID string, enabled bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET ad_block_enabled = $2, updated_at = $3 WHERE id = $1`,
		userID, enabled, time.Now().UTC())
	return err
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}
