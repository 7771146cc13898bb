// Package service implements profile reads, profile updates and account deletion.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"onego-security/backend/internal/activity"
	activitydomain "onego-security/backend/internal/activity/domain"
	"onego-security/backend/internal/db"
	identitydomain "onego-security/backend/internal/identity/domain"
	"onego-security/backend/internal/user/domain"
	"onego-security/backend/internal/validation"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

// UserRepo is the user persistence the profile service needs.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, u *domain.User) error
	Delete(ctx context.Context, id string) error
}

// IdentityRepo keeps the local identity's provider id in step with the email.
type IdentityRepo interface {
	UpdateProviderID(ctx context.Context, userID string, provider identitydomain.IdentityProvider, providerID string) error
}

// RegistrationCleaner removes pending registrations for an email.
type RegistrationCleaner interface {
	DeleteByEmail(ctx context.Context, email string) error
}

// ProfileUpdate holds the optional fields of PUT /auth/me. Nil leaves a field unchanged.
type ProfileUpdate struct {
	Name  *string
	Email *string
	Phone *string
}

// ProfileService serves the signed-in user's own account.
type ProfileService struct {
	users         UserRepo
	identities    IdentityRepo
	registrations RegistrationCleaner
	activity      activity.ActivityLogger
	log           *zap.Logger
	nowF          func() time.Time
}

// NewProfileService returns a ProfileService. activityLogger and log may be nil.
func NewProfileService(users UserRepo, identities IdentityRepo, registrations RegistrationCleaner, activityLogger activity.ActivityLogger, log *zap.Logger) *ProfileService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProfileService{
		users:         users,
		identities:    identities,
		registrations: registrations,
		activity:      activityLogger,
		log:           log,
		nowF:          func() time.Time { return time.Now().UTC() },
	}
}

// GetProfile returns the public projection of the user.
func (s *ProfileService) GetProfile(ctx context.Context, userID string) (*domain.Public, error) {
	u, err := s.get(ctx, userID)
	if err != nil {
		return nil, err
	}
	p := u.ToPublic()
	return &p, nil
}

// UpdateProfile applies the set fields. A changed email or phone is no longer verified.
func (s *ProfileService) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*domain.Public, error) {
	u, err := s.get(ctx, userID)
	if err != nil {
		return nil, err
	}
	var changed []string
	if upd.Name != nil {
		name := validation.CleanName(*upd.Name)
		if name == "" {
			return nil, validation.Invalid("name", "name is required")
		}
		if name != u.Name {
			u.Name = name
			changed = append(changed, "name")
		}
	}
	emailChanged := false
	if upd.Email != nil {
		email := validation.NormalizeEmail(*upd.Email)
		if err := validation.Email(email); err != nil {
			return nil, err
		}
		if email != u.Email {
			other, err := s.users.GetByEmail(ctx, email)
			if err != nil {
				return nil, err
			}
			if other != nil && other.ID != u.ID {
				return nil, ErrEmailTaken
			}
			u.Email = email
			u.EmailVerified = false
			emailChanged = true
			changed = append(changed, "email")
		}
	}
	if upd.Phone != nil {
		phone := validation.NormalizePhone(*upd.Phone)
		if err := validation.Phone(phone); err != nil {
			return nil, err
		}
		if phone != u.Phone {
			u.Phone = phone
			u.PhoneVerified = false
			changed = append(changed, "phone")
		}
	}
	if len(changed) == 0 {
		p := u.ToPublic()
		return &p, nil
	}
	u.UpdatedAt = s.nowF()
	if err := s.users.Update(ctx, u); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	if emailChanged {
		if err := s.identities.UpdateProviderID(ctx, u.ID, identitydomain.IdentityProviderLocal, u.Email); err != nil {
			return nil, err
		}
	}
	if s.activity != nil {
		s.activity.LogEvent(ctx, u.ID, activitydomain.ActionProfileUpdate, "auth", map[string]any{"fields": changed})
	}
	p := u.ToPublic()
	return &p, nil
}

// DeleteAccount removes the user. Identities, sessions, reset tokens and activity rows cascade;
// pending registrations for the email are removed too.
func (s *ProfileService) DeleteAccount(ctx context.Context, userID string) error {
	u, err := s.get(ctx, userID)
	if err != nil {
		return err
	}
	// Logged first: the activity row cascades with the user, the published event does not.
	if s.activity != nil {
		s.activity.LogEvent(ctx, u.ID, activitydomain.ActionAccountDelete, "auth", nil)
	}
	if err := s.registrations.DeleteByEmail(ctx, u.Email); err != nil {
		return err
	}
	if err := s.users.Delete(ctx, u.ID); err != nil {
		return err
	}
	s.log.Info("account deleted", zap.String("user_id", u.ID))
	return nil
}

func (s *ProfileService) get(ctx context.Context, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, ErrUserNotFound
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}
