package domain

import (
	"errors"
	"time"
)

// User is the core account entity.
type User struct {
	ID               string
	Email            string
	Name             string
	Phone            string
	EmailVerified    bool
	PhoneVerified    bool
	Status           UserStatus
	AdBlockEnabled   bool
	TwoFactorEnabled bool // provisioned; no flow reads it yet
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.Name == "" {
		return errors.New("name is required")
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	return nil
}

// Public is the projection of a user that is safe to return to clients.
type Public struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone"`
	EmailVerified    bool      `json:"emailVerified"`
	PhoneVerified    bool      `json:"phoneVerified"`
	AdBlockEnabled   bool      `json:"adBlockEnabled"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
	CreatedAt        time.Time `json:"createdAt"`
}

// ToPublic returns the client projection of u.
func (u *User) ToPublic() Public {
	return Public{
		ID:               u.ID,
		Name:             u.Name,
		Email:            u.Email,
		Phone:            u.Phone,
		EmailVerified:    u.EmailVerified,
		PhoneVerified:    u.PhoneVerified,
		AdBlockEnabled:   u.AdBlockEnabled,
		TwoFactorEnabled: u.TwoFactorEnabled,
		CreatedAt:        u.CreatedAt,
	}
}
