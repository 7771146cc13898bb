// Package service drives a pending registration through email and mobile verification
// and turns it into an account.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"onego-security/backend/internal/activity"
	activitydomain "onego-security/backend/internal/activity/domain"
	"onego-security/backend/internal/devotp"
	identitydomain "onego-security/backend/internal/identity/domain"
	"onego-security/backend/internal/metrics"
	"onego-security/backend/internal/otp"
	"onego-security/backend/internal/registration/domain"
	"onego-security/backend/internal/registration/repository"
	"onego-security/backend/internal/security"
	"onego-security/backend/internal/server/middleware"
	sessiondomain "onego-security/backend/internal/session/domain"
	"onego-security/backend/internal/sms"
	userdomain "onego-security/backend/internal/user/domain"
	"onego-security/backend/internal/validation"
)

// Sentinel errors; the handler maps them to HTTP status codes.
var (
	ErrEmailAlreadyRegistered  = errors.New("email already registered")
	ErrSessionNotFound         = errors.New("registration session not found or expired")
	ErrOTPExpired              = errors.New("otp expired")
	ErrInvalidOTP              = errors.New("invalid otp")
	ErrTooManyAttempts         = errors.New("too many attempts")
	ErrEmailNotVerified        = errors.New("email not verified")
	ErrSMSCodeExpired          = errors.New("sms code expired")
	ErrInvalidChannel          = errors.New("invalid otp channel")
	ErrDeliveryFailed          = errors.New("verification code delivery failed")
	ErrVerificationUnavailable = errors.New("verification service unavailable")
)

// Resend channels.
const (
	ChannelEmail  = "email"
	ChannelMobile = "mobile"
)

// MinPasswordLength is the shortest password accepted at registration and reset.
const MinPasswordLength = 8

// UserLookup is the user read needed to reject registered emails.
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
}

// Completer atomically consumes a registration and creates the account.
type Completer interface {
	Complete(ctx context.Context, registrationID string, comp repository.Completion) error
}

// EmailSender delivers the email code. *mail.Mailer implements it.
type EmailSender interface {
	SendEmailOTP(ctx context.Context, to, name, code string, ttl time.Duration) error
}

// TokenIssuer signs session tokens. *security.TokenProvider implements it.
type TokenIssuer interface {
	Issue(sessionID, userID, email string) (token string, expiresAt time.Time, err error)
}

// Options holds the registration timings and the dev-mode switch.
type Options struct {
	SessionTTL  time.Duration
	EmailOTPTTL time.Duration
	MaxAttempts int
	// DevMode surfaces undeliverable email codes to the client and the log. Never set in production.
	DevMode bool
}

// Deps are the collaborators of a Manager. DevOTP, Metrics, Activity and Log may be nil.
type Deps struct {
	Repo      repository.Repository
	Users     UserLookup
	Completer Completer
	Mailer    EmailSender
	SMS       sms.Verifier
	Hasher    *security.Hasher
	Tokens    TokenIssuer
	DevOTP    devotp.Store
	Metrics   metrics.Recorder
	Activity  activity.ActivityLogger
	Log       *zap.Logger
}

// RegisterInput is the candidate account submitted to Register.
type RegisterInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
}

// RegisterResult identifies the new pending registration.
type RegisterResult struct {
	SessionID   string
	RequiresOTP bool
	// DevEmailOTP is set only in dev mode when the email could not be delivered.
	DevEmailOTP string
}

// ResendResult carries the dev-mode code when a resent email could not be delivered.
type ResendResult struct {
	DevEmailOTP string
}

// CompletionResult is returned once both channels are verified and the account exists.
type CompletionResult struct {
	Token     string
	ExpiresAt time.Time
	User      userdomain.Public
}

// Manager implements the registration state machine on top of the registration repository.
type Manager struct {
	repo      repository.Repository
	users     UserLookup
	completer Completer
	mailer    EmailSender
	sms       sms.Verifier
	hasher    *security.Hasher
	tokens    TokenIssuer
	dev       devotp.Store
	metrics   metrics.Recorder
	activity  activity.ActivityLogger
	log       *zap.Logger
	opts      Options
	nowF      func() time.Time
}

// NewManager returns a Manager. Zero option values fall back to a 30 minute session,
// a 10 minute email code and 5 attempts.
func NewManager(deps Deps, opts Options) *Manager {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * time.Minute
	}
	if opts.EmailOTPTTL <= 0 {
		opts.EmailOTPTTL = 10 * time.Minute
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	m := &Manager{
		repo:      deps.Repo,
		users:     deps.Users,
		completer: deps.Completer,
		mailer:    deps.Mailer,
		sms:       deps.SMS,
		hasher:    deps.Hasher,
		tokens:    deps.Tokens,
		dev:       deps.DevOTP,
		metrics:   deps.Metrics,
		activity:  deps.Activity,
		log:       deps.Log,
		opts:      opts,
		nowF:      func() time.Time { return time.Now().UTC() },
	}
	if m.metrics == nil {
		m.metrics = metrics.Nop{}
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	return m
}

// Register validates the candidate account, stores a pending registration and dispatches
// the email code and the SMS verification. Nothing is written for an already registered email.
func (m *Manager) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	user := domain.PendingUser{
		Name:     validation.CleanName(in.Name),
		Email:    validation.NormalizeEmail(in.Email),
		Phone:    validation.NormalizePhone(in.Phone),
		Password: in.Password,
	}
	if err := validatePendingUser(user); err != nil {
		m.metrics.RecordRegistration("invalid")
		return nil, err
	}
	existing, err := m.users.GetByEmail(ctx, user.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		m.metrics.RecordRegistration("email_taken")
		return nil, ErrEmailAlreadyRegistered
	}
	// One pending registration per email; a new attempt replaces the old one.
	if err := m.repo.DeleteByEmail(ctx, user.Email); err != nil {
		return nil, err
	}

	id, err := security.RandomToken(security.OpaqueTokenBytes)
	if err != nil {
		return nil, err
	}
	code, err := otp.Generate()
	if err != nil {
		return nil, err
	}
	now := m.nowF()
	sess := &domain.Session{
		ID:   id,
		User: user,
		Email: domain.EmailChallenge{
			CodeHash:  otp.Hash(code),
			ExpiresAt: now.Add(m.opts.EmailOTPTTL),
		},
		CreatedAt: now,
		ExpiresAt: now.Add(m.opts.SessionTTL),
	}
	if err := m.repo.Create(ctx, sess); err != nil {
		return nil, err
	}

	devCode, err := m.deliverEmailCode(ctx, sess, code)
	if err != nil {
		if _, derr := m.repo.Delete(ctx, id); derr != nil {
			m.log.Error("registration: cleanup after failed delivery", zap.Error(derr))
		}
		m.metrics.RecordRegistration("delivery_failed")
		return nil, err
	}
	if err := m.sms.Send(ctx, user.Phone); err != nil {
		// The mobile code is only needed after email verification and can be resent then.
		m.log.Warn("registration: sms verification not sent", zap.String("session_id", shortID(id)), zap.Error(err))
	}

	m.metrics.RecordRegistration("started")
	return &RegisterResult{SessionID: id, RequiresOTP: true, DevEmailOTP: devCode}, nil
}

// VerifyEmailOTP checks code against the email challenge. A verified challenge stays verified;
// a locked one rejects every code until ResendOTP.
func (m *Manager) VerifyEmailOTP(ctx context.Context, sessionID, code string) error {
	if code == "" {
		return validation.Invalid("otp", "otp is required")
	}
	sess, err := m.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Email.Verified {
		return nil
	}
	if sess.Email.Locked(m.opts.MaxAttempts) {
		m.metrics.RecordOTPVerification(ChannelEmail, "locked")
		return ErrTooManyAttempts
	}
	if sess.Email.CodeExpired(m.nowF()) {
		if err := m.repo.IncrementEmailAttempts(ctx, sess.ID); err != nil {
			return err
		}
		m.metrics.RecordOTPVerification(ChannelEmail, "expired")
		return ErrOTPExpired
	}
	if !otp.Equal(code, sess.Email.CodeHash) {
		if err := m.repo.IncrementEmailAttempts(ctx, sess.ID); err != nil {
			return err
		}
		m.metrics.RecordOTPVerification(ChannelEmail, "invalid")
		return ErrInvalidOTP
	}
	if err := m.repo.MarkEmailVerified(ctx, sess.ID); err != nil {
		return err
	}
	m.metrics.RecordOTPVerification(ChannelEmail, "success")
	return nil
}

// VerifyMobileOTP checks code with the SMS verifier and, once approved, creates the account,
// consumes the registration and issues a session token.
func (m *Manager) VerifyMobileOTP(ctx context.Context, sessionID, code string) (*CompletionResult, error) {
	if code == "" {
		return nil, validation.Invalid("otp", "otp is required")
	}
	sess, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Email.Verified {
		return nil, ErrEmailNotVerified
	}
	approved, err := m.sms.Check(ctx, sess.User.Phone, code)
	if err != nil {
		switch {
		case errors.Is(err, sms.ErrCodeExpired):
			m.metrics.RecordOTPVerification(ChannelMobile, "expired")
			return nil, ErrSMSCodeExpired
		case errors.Is(err, sms.ErrTooManyAttempts):
			m.metrics.RecordOTPVerification(ChannelMobile, "locked")
			return nil, ErrTooManyAttempts
		default:
			m.log.Error("registration: sms check failed", zap.Error(err))
			m.metrics.RecordOTPVerification(ChannelMobile, "unavailable")
			return nil, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
		}
	}
	if !approved {
		if err := m.repo.IncrementMobileAttempts(ctx, sess.ID); err != nil {
			return nil, err
		}
		m.metrics.RecordOTPVerification(ChannelMobile, "invalid")
		return nil, ErrInvalidOTP
	}
	m.metrics.RecordOTPVerification(ChannelMobile, "success")
	return m.complete(ctx, sess)
}

// ResendOTP issues a fresh code on channel. For email the previous code stops working and the
// attempt counter is reset; for mobile the SMS verification is triggered again.
func (m *Manager) ResendOTP(ctx context.Context, sessionID, channel string) (*ResendResult, error) {
	if channel != ChannelEmail && channel != ChannelMobile {
		return nil, ErrInvalidChannel
	}
	sess, err := m.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if channel == ChannelMobile {
		if err := m.sms.Send(ctx, sess.User.Phone); err != nil {
			if errors.Is(err, sms.ErrTooManyAttempts) {
				return nil, ErrTooManyAttempts
			}
			m.log.Error("registration: sms resend failed", zap.String("session_id", shortID(sess.ID)), zap.Error(err))
			return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
		}
		if err := m.repo.ResetMobileAttempts(ctx, sess.ID); err != nil {
			return nil, err
		}
		return &ResendResult{}, nil
	}

	code, err := otp.Generate()
	if err != nil {
		return nil, err
	}
	expiresAt := m.nowF().Add(m.opts.EmailOTPTTL)
	if err := m.repo.ResetEmailChallenge(ctx, sess.ID, otp.Hash(code), expiresAt); err != nil {
		return nil, err
	}
	devCode, err := m.deliverEmailCode(ctx, sess, code)
	if err != nil {
		return nil, err
	}
	return &ResendResult{DevEmailOTP: devCode}, nil
}

// SweepExpired removes registrations past their lifetime.
func (m *Manager) SweepExpired(ctx context.Context) (int64, error) {
	return m.repo.DeleteExpired(ctx, m.nowF())
}

// RunSweeper calls SweepExpired every interval until ctx is done. Expiry is also enforced on
// every read, so the sweep only reclaims storage.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.SweepExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					m.log.Warn("registration: sweep failed", zap.Error(err))
				}
				continue
			}
			if n > 0 {
				m.log.Info("registration: swept expired sessions", zap.Int64("count", n))
			}
		}
	}
}

// load returns the live session or ErrSessionNotFound. Expired sessions are deleted on sight.
func (m *Manager) load(ctx context.Context, sessionID string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, validation.Invalid("sessionId", "sessionId is required")
	}
	sess, err := m.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	if sess.IsExpired(m.nowF()) {
		if _, err := m.repo.Delete(ctx, sess.ID); err != nil {
			m.log.Warn("registration: delete expired session", zap.Error(err))
		}
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// deliverEmailCode sends code to the pending user. In dev mode the code is also kept for the
// dev OTP endpoint, and a failed send returns the code instead of an error.
func (m *Manager) deliverEmailCode(ctx context.Context, sess *domain.Session, code string) (string, error) {
	if m.opts.DevMode && m.dev != nil {
		m.dev.Put(ctx, devotp.EmailKey(sess.ID), code, m.nowF().Add(m.opts.EmailOTPTTL))
	}
	err := m.mailer.SendEmailOTP(ctx, sess.User.Email, sess.User.Name, code, m.opts.EmailOTPTTL)
	if err == nil {
		return "", nil
	}
	if m.opts.DevMode {
		m.log.Warn("DEV MODE: email OTP not delivered", zap.String("email", sess.User.Email),
			zap.String("otp", code), zap.Error(err))
		return code, nil
	}
	m.log.Error("registration: email OTP not delivered", zap.String("session_id", shortID(sess.ID)), zap.Error(err))
	return "", fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
}

// complete hashes the password, creates user, identity and auth session, and consumes the registration.
func (m *Manager) complete(ctx context.Context, sess *domain.Session) (*CompletionResult, error) {
	existing, err := m.users.GetByEmail(ctx, sess.User.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		m.discard(ctx, sess.ID)
		return nil, ErrEmailAlreadyRegistered
	}
	hash, err := m.hasher.Hash(sess.User.Password)
	if err != nil {
		return nil, err
	}
	now := m.nowF()
	user := &userdomain.User{
		ID:            uuid.New().String(),
		Email:         sess.User.Email,
		Name:          sess.User.Name,
		Phone:         sess.User.Phone,
		EmailVerified: true,
		PhoneVerified: true,
		Status:        userdomain.UserStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	authSessionID := uuid.New().String()
	token, expiresAt, err := m.tokens.Issue(authSessionID, user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	comp := repository.Completion{
		User: user,
		Identity: &identitydomain.Identity{
			ID:           uuid.New().String(),
			UserID:       user.ID,
			Provider:     identitydomain.IdentityProviderLocal,
			ProviderID:   user.Email,
			PasswordHash: hash,
			CreatedAt:    now,
		},
		Session: &sessiondomain.Session{
			ID:        authSessionID,
			UserID:    user.ID,
			ExpiresAt: expiresAt,
			IPAddress: middleware.ClientIPFromContext(ctx),
			UserAgent: middleware.UserAgentFromContext(ctx),
			CreatedAt: now,
		},
	}
	if err := m.completer.Complete(ctx, sess.ID, comp); err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyConsumed):
			return nil, ErrSessionNotFound
		case errors.Is(err, repository.ErrEmailTaken):
			m.discard(ctx, sess.ID)
			m.metrics.RecordRegistration("email_taken")
			return nil, ErrEmailAlreadyRegistered
		}
		return nil, err
	}

	m.metrics.RecordRegistration("completed")
	if m.activity != nil {
		m.activity.LogEvent(ctx, user.ID, activitydomain.ActionRegister, "auth", nil)
	}
	return &CompletionResult{Token: token, ExpiresAt: expiresAt, User: user.ToPublic()}, nil
}

func (m *Manager) discard(ctx context.Context, id string) {
	if _, err := m.repo.Delete(ctx, id); err != nil {
		m.log.Warn("registration: discard session", zap.Error(err))
	}
}

func validatePendingUser(u domain.PendingUser) error {
	if u.Name == "" {
		return validation.Invalid("name", "name is required")
	}
	if err := validation.Email(u.Email); err != nil {
		return err
	}
	if err := validation.Phone(u.Phone); err != nil {
		return err
	}
	return ValidatePassword(u.Password)
}

// ValidatePassword enforces the password length rules shared by registration and reset.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return validation.Invalid("password", fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > 72 {
		return validation.Invalid("password", "password must be at most 72 bytes")
	}
	return nil
}

// shortID keeps session ids out of logs in full; they are bearer secrets until consumed.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
