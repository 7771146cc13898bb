package sms

import (
	"context"
	"fmt"
	"time"

	"onego-security/backend/internal/devotp"
	"onego-security/backend/internal/otp"
)

// CodeSender delivers a code by SMS. *SMSLocalClient implements it.
type CodeSender interface {
	SendOTP(ctx context.Context, phone, code string) error
}

// LocalVerifier generates codes itself, keeps their hashes in a CodeStore and sends them
// through a plain SMS gateway.
type LocalVerifier struct {
	Sender      CodeSender
	Store       CodeStore
	TTL         time.Duration
	MaxAttempts int
	// Dev, when set, receives every plain code keyed by devotp.MobileKey(phone) in place of an SMS,
	// so it can be read back through the dev OTP endpoint. Never set in production.
	Dev devotp.Store
}

// NewLocalVerifier returns a LocalVerifier with a 10 minute code lifetime and 5 checks per code.
func NewLocalVerifier(sender CodeSender, store CodeStore) *LocalVerifier {
	return &LocalVerifier{Sender: sender, Store: store, TTL: 10 * time.Minute, MaxAttempts: 5}
}

// Send generates a fresh code for phone, replacing any pending one, and delivers it.
// With Dev set the gateway is not called.
func (v *LocalVerifier) Send(ctx context.Context, phone string) error {
	code, err := otp.Generate()
	if err != nil {
		return err
	}
	if err := v.Store.Save(ctx, phone, otp.Hash(code), v.TTL); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if v.Dev != nil {
		v.Dev.Put(ctx, devotp.MobileKey(phone), code, time.Now().UTC().Add(v.TTL))
		return nil
	}
	return v.Sender.SendOTP(ctx, phone, code)
}

// Check compares code with the pending one. A match consumes the code.
func (v *LocalVerifier) Check(ctx context.Context, phone, code string) (bool, error) {
	hash, attempts, ok, err := v.Store.Get(ctx, phone)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return false, ErrCodeExpired
	}
	if v.MaxAttempts > 0 && attempts >= v.MaxAttempts {
		return false, ErrTooManyAttempts
	}
	if !otp.Equal(code, hash) {
		if err := v.Store.IncrementAttempts(ctx, phone); err != nil {
			return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return false, nil
	}
	if err := v.Store.Delete(ctx, phone); err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return true, nil
}
