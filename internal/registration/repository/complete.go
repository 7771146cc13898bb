package repository

import (
	"context"
	"database/sql"
	"errors"

	"onego-security/backend/internal/db"
	identitydomain "onego-security/backend/internal/identity/domain"
	identityrepo "onego-security/backend/internal/identity/repository"
	sessiondomain "onego-security/backend/internal/session/domain"
	sessionrepo "onego-security/backend/internal/session/repository"
	userdomain "onego-security/backend/internal/user/domain"
	userrepo "onego-security/backend/internal/user/repository"
)

var (
	// ErrAlreadyConsumed means the registration row was gone when completion tried to delete it.
	ErrAlreadyConsumed = errors.New("registration already consumed")
	// ErrEmailTaken means another account claimed the email between verification and completion.
	ErrEmailTaken = errors.New("email already registered")
)

// Completion is everything written when a registration turns into an account.
type Completion struct {
	User     *userdomain.User
	Identity *identitydomain.Identity
	Session  *sessiondomain.Session
}

// PostgresCompleter consumes a registration and creates the account in one transaction.
type PostgresCompleter struct {
	db *sql.DB
}

func NewPostgresCompleter(conn *sql.DB) *PostgresCompleter {
	return &PostgresCompleter{db: conn}
}

// Complete deletes the registration first so two concurrent completions cannot both create an account;
// the loser sees ErrAlreadyConsumed.
func (c *PostgresCompleter) Complete(ctx context.Context, registrationID string, comp Completion) error {
	return db.WithTx(ctx, c.db, func(tx *sql.Tx) error {
		deleted, err := NewPostgresRepository(tx).Delete(ctx, registrationID)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrAlreadyConsumed
		}
		if err := userrepo.NewPostgresRepository(tx).Create(ctx, comp.User); err != nil {
			if db.IsUniqueViolation(err) {
				return ErrEmailTaken
			}
			return err
		}
		if err := identityrepo.NewPostgresRepository(tx).Create(ctx, comp.Identity); err != nil {
			return err
		}
		return sessionrepo.NewPostgresRepository(tx).Create(ctx, comp.Session)
	})
}
