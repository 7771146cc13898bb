package repository

import (
	"context"
	"database/sql"
	"time"

	"onego-security/backend/internal/db"
	identityrepo "onego-security/backend/internal/identity/repository"
	sessionrepo "onego-security/backend/internal/session/repository"
)

// Redemption is everything written when a reset token is used.
type Redemption struct {
	TokenID      string
	UserID       string
	IdentityID   string
	PasswordHash string
	At           time.Time
}

// PostgresConsumer redeems a reset token and replaces the password in one transaction.
type PostgresConsumer struct {
	db *sql.DB
}

func NewPostgresConsumer(conn *sql.DB) *PostgresConsumer {
	return &PostgresConsumer{db: conn}
}

// Consume marks the token used, stores the new hash and revokes the user's sessions.
// It returns false with nothing written when the token was already used or has expired.
func (c *PostgresConsumer) Consume(ctx context.Context, r Redemption) (bool, error) {
	consumed := false
	err := db.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		ok, err := NewPostgresRepository(tx).MarkUsed(ctx, r.TokenID, r.At)
		if err != nil || !ok {
			return err
		}
		if err := identityrepo.NewPostgresRepository(tx).UpdatePasswordHash(ctx, r.IdentityID, r.PasswordHash); err != nil {
			return err
		}
		if err := sessionrepo.NewPostgresRepository(tx).RevokeAllSessionsByUser(ctx, r.UserID); err != nil {
			return err
		}
		consumed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return consumed, nil
}
