// seed inserts development sample data for local testing.
// Idempotent: skips inserts if the dev user (dev@example.com) already exists.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	activitydomain "onego-security/backend/internal/activity/domain"
	activityrepo "onego-security/backend/internal/activity/repository"
	"onego-security/backend/internal/config"
	"onego-security/backend/internal/db"
	identitydomain "onego-security/backend/internal/identity/domain"
	identityrepo "onego-security/backend/internal/identity/repository"
	"onego-security/backend/internal/logger"
	"onego-security/backend/internal/security"
	userdomain "onego-security/backend/internal/user/domain"
	userrepo "onego-security/backend/internal/user/repository"
)

const (
	devUserEmail   = "dev@example.com"
	devPassword    = "password123"
	devUserID      = "dev-user-001"
	devUser2ID     = "dev-user-002"
	devIdentityID  = "dev-identity-001"
	devIdentity2ID = "dev-identity-002"
	memberEmail    = "member@example.com"
)

type seedUser struct {
	user     userdomain.User
	identity string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.WithComponent(logger.New(cfg.LogLevel, cfg.Env), "seed")
	defer func() { _ = log.Sync() }()
	if cfg.IsProduction() {
		log.Fatal("refusing to seed a production database")
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db open", zap.Error(err))
	}
	defer conn.Close()

	existing, err := userrepo.NewPostgresRepository(conn).GetByEmail(ctx, devUserEmail)
	if err != nil {
		log.Fatal("seed check", zap.Error(err))
	}
	if existing != nil {
		log.Info("seed already applied; skipping", zap.String("email", devUserEmail))
		return
	}

	passwordHash, err := security.NewHasher(cfg.BcryptCost).Hash(devPassword)
	if err != nil {
		log.Fatal("hash password", zap.Error(err))
	}

	now := time.Now().UTC()
	users := []seedUser{
		{
			user: userdomain.User{
				ID: devUserID, Email: devUserEmail, Name: "Dev User", Phone: "+15555550100",
				EmailVerified: true, PhoneVerified: true, Status: userdomain.UserStatusActive,
				AdBlockEnabled: true, CreatedAt: now, UpdatedAt: now,
			},
			identity: devIdentityID,
		},
		{
			user: userdomain.User{
				ID: devUser2ID, Email: memberEmail, Name: "Member User", Phone: "+15555550101",
				EmailVerified: true, PhoneVerified: true, Status: userdomain.UserStatusActive,
				CreatedAt: now, UpdatedAt: now,
			},
			identity: devIdentity2ID,
		},
	}

	err = db.WithTx(ctx, conn, func(tx *sql.Tx) error {
		userRepo := userrepo.NewPostgresRepository(tx)
		identityRepo := identityrepo.NewPostgresRepository(tx)
		activityRepo := activityrepo.NewPostgresRepository(tx)
		for i := range users {
			u := &users[i].user
			if err := userRepo.Create(ctx, u); err != nil {
				return fmt.Errorf("create user %s: %w", u.Email, err)
			}
			if err := identityRepo.Create(ctx, &identitydomain.Identity{
				ID:           users[i].identity,
				UserID:       u.ID,
				Provider:     identitydomain.IdentityProviderLocal,
				ProviderID:   u.Email,
				PasswordHash: passwordHash,
				CreatedAt:    now,
			}); err != nil {
				return fmt.Errorf("create identity %s: %w", u.Email, err)
			}
			meta, _ := json.Marshal(map[string]any{"email": u.Email})
			if err := activityRepo.Create(ctx, &activitydomain.Entry{
				ID:        fmt.Sprintf("dev-activity-%03d", i+1),
				UserID:    u.ID,
				Action:    activitydomain.ActionRegister,
				Resource:  "auth",
				IP:        "127.0.0.1",
				Metadata:  meta,
				CreatedAt: now,
			}); err != nil {
				return fmt.Errorf("create activity %s: %w", u.Email, err)
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal("seed failed", zap.Error(err))
	}

	log.Info("seed completed")
	fmt.Printf("Dev login: %s / %s\n", devUserEmail, devPassword)
	fmt.Printf("Member login: %s / %s\n", memberEmail, devPassword)
}
