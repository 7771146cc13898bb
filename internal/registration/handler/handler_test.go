package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onego-security/backend/internal/registration/service"
	userdomain "onego-security/backend/internal/user/domain"
	"onego-security/backend/internal/validation"
)

type mockService struct {
	registerFn     func(ctx context.Context, in service.RegisterInput) (*service.RegisterResult, error)
	verifyEmailFn  func(ctx context.Context, sessionID, code string) error
	verifyMobileFn func(ctx context.Context, sessionID, code string) (*service.CompletionResult, error)
	resendFn       func(ctx context.Context, sessionID, channel string) (*service.ResendResult, error)
}

func (m *mockService) Register(ctx context.Context, in service.RegisterInput) (*service.RegisterResult, error) {
	return m.registerFn(ctx, in)
}

func (m *mockService) VerifyEmailOTP(ctx context.Context, sessionID, code string) error {
	return m.verifyEmailFn(ctx, sessionID, code)
}

func (m *mockService) VerifyMobileOTP(ctx context.Context, sessionID, code string) (*service.CompletionResult, error) {
	return m.verifyMobileFn(ctx, sessionID, code)
}

func (m *mockService) ResendOTP(ctx context.Context, sessionID, channel string) (*service.ResendResult, error) {
	return m.resendFn(ctx, sessionID, channel)
}

func serve(t *testing.T, svc Service, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(svc, nil).Routes(r)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	return out
}

func TestRegister_Success(t *testing.T) {
	var got service.RegisterInput
	svc := &mockService{registerFn: func(ctx context.Context, in service.RegisterInput) (*service.RegisterResult, error) {
		got = in
		return &service.RegisterResult{SessionID: "sess-1", RequiresOTP: true}, nil
	}}

	w := serve(t, svc, "/auth/register", `{"name":"Ada","email":"a@x.com","phone":"+15551234567","password":"Password123!"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "sess-1", body["sessionId"])
	assert.Equal(t, true, body["requiresOTP"])
	_, hasDev := body["devEmailOTP"]
	assert.False(t, hasDev)
	assert.Equal(t, "a@x.com", got.Email)
	assert.Equal(t, "Password123!", got.Password)
}

func TestRegister_RejectsUnknownFields(t *testing.T) {
	svc := &mockService{registerFn: func(ctx context.Context, in service.RegisterInput) (*service.RegisterResult, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}
	w := serve(t, svc, "/auth/register", `{"email":"a@x.com","admin":true}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{service.ErrEmailAlreadyRegistered, http.StatusConflict, "EMAIL_REGISTERED"},
		{service.ErrSessionNotFound, http.StatusNotFound, "SESSION_NOT_FOUND"},
		{service.ErrOTPExpired, http.StatusBadRequest, "OTP_EXPIRED"},
		{service.ErrInvalidOTP, http.StatusBadRequest, "INVALID_OTP"},
		{service.ErrTooManyAttempts, http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS"},
		{service.ErrEmailNotVerified, http.StatusBadRequest, "EMAIL_NOT_VERIFIED"},
		{service.ErrSMSCodeExpired, http.StatusBadRequest, "SMS_CODE_EXPIRED"},
		{fmt.Errorf("%w: twilio down", service.ErrVerificationUnavailable), http.StatusBadGateway, "VERIFICATION_UNAVAILABLE"},
		{fmt.Errorf("%w: smtp", service.ErrDeliveryFailed), http.StatusBadGateway, "DELIVERY_FAILED"},
		{validation.Invalid("otp", "otp is required"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{fmt.Errorf("db: connection reset"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			svc := &mockService{verifyEmailFn: func(ctx context.Context, sessionID, code string) error { return tt.err }}
			w := serve(t, svc, "/auth/verify-email-otp", `{"sessionId":"s","otp":"123456"}`)
			assert.Equal(t, tt.status, w.Code)
			body := decode(t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.code, body["code"])
			assert.NotContains(t, body["message"], "twilio")
			assert.NotContains(t, body["message"], "db:")
		})
	}
}

func TestVerifyEmailOTP_Success(t *testing.T) {
	svc := &mockService{verifyEmailFn: func(ctx context.Context, sessionID, code string) error {
		assert.Equal(t, "s", sessionID)
		assert.Equal(t, "123456", code)
		return nil
	}}
	w := serve(t, svc, "/auth/verify-email-otp", `{"sessionId":"s","otp":"123456"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Email verified successfully", body["message"])
}

func TestVerifyMobileOTP_ReturnsTokenAndUser(t *testing.T) {
	exp := time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC)
	svc := &mockService{verifyMobileFn: func(ctx context.Context, sessionID, code string) (*service.CompletionResult, error) {
		return &service.CompletionResult{
			Token:     "jwt",
			ExpiresAt: exp,
			User:      userdomain.Public{ID: "u1", Name: "Ada", Email: "a@x.com", Phone: "+15551234567"},
		}, nil
	}}
	w := serve(t, svc, "/auth/verify-mobile-otp", `{"sessionId":"s","otp":"654321"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "jwt", body["token"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "u1", user["id"])
	assert.Equal(t, "+15551234567", user["phone"])
	_, hasPassword := user["password"]
	assert.False(t, hasPassword)
}

func TestResendOTP(t *testing.T) {
	svc := &mockService{resendFn: func(ctx context.Context, sessionID, channel string) (*service.ResendResult, error) {
		if channel != service.ChannelEmail && channel != service.ChannelMobile {
			return nil, service.ErrInvalidChannel
		}
		return &service.ResendResult{}, nil
	}}

	w := serve(t, svc, "/auth/resend-otp", `{"sessionId":"s","type":"mobile"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "A new code was sent to your phone", decode(t, w)["message"])

	w = serve(t, svc, "/auth/resend-otp", `{"sessionId":"s","type":"fax"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_CHANNEL", decode(t, w)["code"])
}
