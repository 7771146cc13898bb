package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"onego-security/backend/internal/activity"
	activitydomain "onego-security/backend/internal/activity/domain"
	identitydomain "onego-security/backend/internal/identity/domain"
	resetdomain "onego-security/backend/internal/passwordreset/domain"
	resetrepo "onego-security/backend/internal/passwordreset/repository"
	"onego-security/backend/internal/security"
	"onego-security/backend/internal/server/middleware"
	sessiondomain "onego-security/backend/internal/session/domain"
	userdomain "onego-security/backend/internal/user/domain"
	"onego-security/backend/internal/validation"
)

// Sentinel errors for auth service; handler maps them to HTTP status codes.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
)

// MinPasswordLength is the shortest password accepted by ResetPassword.
const MinPasswordLength = 8

// AuthResult holds the outcome of Login.
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	User      userdomain.Public
}

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
}

// IdentityRepo is the minimal identity repository needed by the auth service.
type IdentityRepo interface {
	GetByUserAndProvider(ctx context.Context, userID string, provider identitydomain.IdentityProvider) (*identitydomain.Identity, error)
	UpdatePasswordHash(ctx context.Context, id string, passwordHash string) error
}

// SessionRepo is the minimal session repository needed by the auth service.
type SessionRepo interface {
	Create(ctx context.Context, s *sessiondomain.Session) error
	Revoke(ctx context.Context, id string) error
}

// ResetRepo is the minimal password reset repository needed by the auth service.
type ResetRepo interface {
	Create(ctx context.Context, t *resetdomain.Token) error
	GetByHash(ctx context.Context, tokenHash string) (*resetdomain.Token, error)
	DeleteUnusedByUser(ctx context.Context, userID string) error
}

// ResetConsumer redeems a reset token atomically. *resetrepo.PostgresConsumer implements it.
type ResetConsumer interface {
	Consume(ctx context.Context, r resetrepo.Redemption) (bool, error)
}

// ResetMailer delivers reset links. *mail.Mailer implements it.
type ResetMailer interface {
	SendPasswordReset(ctx context.Context, to, name, link string, ttl time.Duration) error
}

// TokenIssuer signs session tokens. *security.TokenProvider implements it.
type TokenIssuer interface {
	Issue(sessionID, userID, email string) (token string, expiresAt time.Time, err error)
}

// AuthService implements password login, logout and password reset.
type AuthService struct {
	userRepo     UserRepo
	identityRepo IdentityRepo
	sessionRepo  SessionRepo
	resetRepo    ResetRepo
	consumer     ResetConsumer
	hasher       *security.Hasher
	tokens       TokenIssuer
	mailer       ResetMailer
	activity     activity.ActivityLogger
	log          *zap.Logger
	resetTTL     time.Duration
	appBaseURL   string
	nowF         func() time.Time
}

// NewAuthService returns an AuthService with the given dependencies. activityLogger and log may be nil.
func NewAuthService(
	userRepo UserRepo,
	identityRepo IdentityRepo,
	sessionRepo SessionRepo,
	resetRepo ResetRepo,
	consumer ResetConsumer,
	hasher *security.Hasher,
	tokens TokenIssuer,
	mailer ResetMailer,
	activityLogger activity.ActivityLogger,
	log *zap.Logger,
	resetTTL time.Duration,
	appBaseURL string,
) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	if resetTTL <= 0 {
		resetTTL = time.Hour
	}
	return &AuthService{
		userRepo:     userRepo,
		identityRepo: identityRepo,
		sessionRepo:  sessionRepo,
		resetRepo:    resetRepo,
		consumer:     consumer,
		hasher:       hasher,
		tokens:       tokens,
		mailer:       mailer,
		activity:     activityLogger,
		log:          log,
		resetTTL:     resetTTL,
		appBaseURL:   strings.TrimRight(appBaseURL, "/"),
		nowF:         func() time.Time { return time.Now().UTC() },
	}
}

// Login authenticates with email/password, creates a session, and returns its token.
// Unknown email, inactive user, missing identity and wrong password are indistinguishable.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = validation.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Status != userdomain.UserStatusActive {
		return nil, ErrInvalidCredentials
	}
	ident, err := s.identityRepo.GetByUserAndProvider(ctx, user.ID, identitydomain.IdentityProviderLocal)
	if err != nil {
		return nil, err
	}
	if ident == nil || ident.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(ident.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if s.hasher.NeedsRehash(ident.PasswordHash) {
		s.upgradeHash(ctx, ident.ID, password)
	}
	sessionID := uuid.New().String()
	token, expiresAt, err := s.tokens.Issue(sessionID, user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	sess := &sessiondomain.Session{
		ID:        sessionID,
		UserID:    user.ID,
		ExpiresAt: expiresAt,
		IPAddress: middleware.ClientIPFromContext(ctx),
		UserAgent: middleware.UserAgentFromContext(ctx),
		CreatedAt: s.nowF(),
	}
	if err := s.sessionRepo.Create(ctx, sess); err != nil {
		return nil, err
	}
	s.logActivity(ctx, user.ID, activitydomain.ActionLogin, nil)
	return &AuthResult{Token: token, ExpiresAt: expiresAt, User: user.ToPublic()}, nil
}

// upgradeHash re-hashes a password stored under an older bcrypt cost. Failure leaves the old
// hash in place; login proceeds either way.
func (s *AuthService) upgradeHash(ctx context.Context, identityID, password string) {
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.identityRepo.UpdatePasswordHash(ctx, identityID, hash)
	}
	if err != nil {
		s.log.Warn("password rehash failed", zap.String("identity_id", identityID), zap.Error(err))
	}
}

// Logout revokes the session the auth middleware bound to ctx. Without one it is a no-op.
func (s *AuthService) Logout(ctx context.Context) error {
	sessionID, ok := middleware.GetSessionID(ctx)
	if !ok {
		return nil
	}
	if err := s.sessionRepo.Revoke(ctx, sessionID); err != nil {
		return err
	}
	if userID, ok := middleware.GetUserID(ctx); ok {
		s.logActivity(ctx, userID, activitydomain.ActionLogout, nil)
	}
	return nil
}

// RequestPasswordReset emails a single-use reset link. It returns nil for unknown emails so
// the response does not reveal whether an account exists.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email = validation.NormalizeEmail(email)
	if err := validation.Email(email); err != nil {
		return err
	}
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil || user.Status != userdomain.UserStatusActive {
		return nil
	}
	raw, hash, err := security.NewOpaqueToken()
	if err != nil {
		return err
	}
	if err := s.resetRepo.DeleteUnusedByUser(ctx, user.ID); err != nil {
		return err
	}
	now := s.nowF()
	tok := &resetdomain.Token{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: now.Add(s.resetTTL),
		CreatedAt: now,
	}
	if err := s.resetRepo.Create(ctx, tok); err != nil {
		return err
	}
	link := s.appBaseURL + "/reset-password?token=" + url.QueryEscape(raw)
	if err := s.mailer.SendPasswordReset(ctx, user.Email, user.Name, link, s.resetTTL); err != nil {
		// Failing the request would reveal that the account exists.
		s.log.Error("auth: password reset email not delivered", zap.String("user_id", user.ID), zap.Error(err))
		return nil
	}
	s.logActivity(ctx, user.ID, activitydomain.ActionPasswordResetRequest, nil)
	return nil
}

// ResetPassword consumes the reset token, replaces the password hash and revokes every session of the user.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return validation.Invalid("password", "password must be at least 8 characters")
	}
	if len(newPassword) > 72 {
		return validation.Invalid("password", "password must be at most 72 bytes")
	}
	if !security.WellFormedToken(token) {
		return ErrInvalidResetToken
	}
	tok, err := s.resetRepo.GetByHash(ctx, security.HashToken(token))
	if err != nil {
		return err
	}
	now := s.nowF()
	if tok == nil || !tok.Usable(now) {
		return ErrInvalidResetToken
	}
	ident, err := s.identityRepo.GetByUserAndProvider(ctx, tok.UserID, identitydomain.IdentityProviderLocal)
	if err != nil {
		return err
	}
	if ident == nil {
		return ErrInvalidResetToken
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	consumed, err := s.consumer.Consume(ctx, resetrepo.Redemption{
		TokenID:      tok.ID,
		UserID:       tok.UserID,
		IdentityID:   ident.ID,
		PasswordHash: hash,
		At:           now,
	})
	if err != nil {
		return err
	}
	if !consumed {
		return ErrInvalidResetToken
	}
	s.logActivity(ctx, tok.UserID, activitydomain.ActionPasswordReset, nil)
	return nil
}

func (s *AuthService) logActivity(ctx context.Context, userID, action string, metadata map[string]any) {
	if s.activity != nil {
		s.activity.LogEvent(ctx, userID, action, "auth", metadata)
	}
}
