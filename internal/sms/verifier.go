// Package sms delivers and checks mobile verification codes. Verifier hides whether the
// code is generated here (SMS Local) or by a hosted verify service (Twilio Verify).
package sms

import (
	"context"
	"errors"
)

var (
	// ErrCodeExpired is returned when no pending verification exists for the phone (expired or never sent).
	ErrCodeExpired = errors.New("sms: verification code expired")
	// ErrTooManyAttempts is returned when the provider refuses further checks or sends.
	ErrTooManyAttempts = errors.New("sms: too many verification attempts")
	// ErrUnavailable wraps transport failures and unexpected provider responses.
	ErrUnavailable = errors.New("sms: verification service unavailable")
)

// Verifier sends a verification code to a phone and checks a submitted code.
// Phones are E.164 ("+15551234567").
type Verifier interface {
	Send(ctx context.Context, phone string) error
	// Check reports whether code is approved. A wrong code is (false, nil).
	Check(ctx context.Context, phone, code string) (bool, error)
}
