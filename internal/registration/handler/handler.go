// Package handler exposes the registration flow over HTTP.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"onego-security/backend/internal/registration/service"
	"onego-security/backend/internal/server/httpx"
	userdomain "onego-security/backend/internal/user/domain"
)

// Service is the registration flow the handler drives. *service.Manager implements it.
type Service interface {
	Register(ctx context.Context, in service.RegisterInput) (*service.RegisterResult, error)
	VerifyEmailOTP(ctx context.Context, sessionID, code string) error
	VerifyMobileOTP(ctx context.Context, sessionID, code string) (*service.CompletionResult, error)
	ResendOTP(ctx context.Context, sessionID, channel string) (*service.ResendResult, error)
}

// errorMappings ties registration errors to status, code and client message.
var errorMappings = []httpx.Mapping{
	{Err: service.ErrEmailAlreadyRegistered, Status: http.StatusConflict, Code: "EMAIL_REGISTERED", Message: "Email already registered"},
	{Err: service.ErrSessionNotFound, Status: http.StatusNotFound, Code: "SESSION_NOT_FOUND", Message: "Registration session not found or expired"},
	{Err: service.ErrOTPExpired, Status: http.StatusBadRequest, Code: "OTP_EXPIRED", Message: "OTP has expired, please request a new one"},
	{Err: service.ErrInvalidOTP, Status: http.StatusBadRequest, Code: "INVALID_OTP", Message: "Invalid OTP"},
	{Err: service.ErrTooManyAttempts, Status: http.StatusTooManyRequests, Code: "TOO_MANY_ATTEMPTS", Message: "Too many attempts, please request a new code"},
	{Err: service.ErrEmailNotVerified, Status: http.StatusBadRequest, Code: "EMAIL_NOT_VERIFIED", Message: "Please verify your email first"},
	{Err: service.ErrSMSCodeExpired, Status: http.StatusBadRequest, Code: "SMS_CODE_EXPIRED", Message: "SMS code has expired, please request a new one"},
	{Err: service.ErrInvalidChannel, Status: http.StatusBadRequest, Code: "INVALID_CHANNEL", Message: "type must be email or mobile"},
	{Err: service.ErrDeliveryFailed, Status: http.StatusBadGateway, Code: "DELIVERY_FAILED", Message: "Failed to send verification code"},
	{Err: service.ErrVerificationUnavailable, Status: http.StatusBadGateway, Code: "VERIFICATION_UNAVAILABLE", Message: "Verification service unavailable, please try again"},
}

// Handler serves POST /auth/register, /auth/verify-email-otp, /auth/verify-mobile-otp and /auth/resend-otp.
type Handler struct {
	svc Service
	log *zap.Logger
}

func NewHandler(svc Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log}
}

// Routes registers the handler on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/auth/register", h.Register)
	r.Post("/auth/verify-email-otp", h.VerifyEmailOTP)
	r.Post("/auth/verify-mobile-otp", h.VerifyMobileOTP)
	r.Post("/auth/resend-otp", h.ResendOTP)
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type registerResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	SessionID   string `json:"sessionId"`
	RequiresOTP bool   `json:"requiresOTP"`
	DevEmailOTP string `json:"devEmailOTP,omitempty"`
}

// Register starts a registration.
// POST /auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}
	res, err := h.svc.Register(r.Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, registerResponse{
		Success:     true,
		Message:     "Verification codes sent to your email and phone",
		SessionID:   res.SessionID,
		RequiresOTP: res.RequiresOTP,
		DevEmailOTP: res.DevEmailOTP,
	})
}

type otpRequest struct {
	SessionID string `json:"sessionId"`
	OTP       string `json:"otp"`
}

// VerifyEmailOTP checks the email code.
// POST /auth/verify-email-otp
func (h *Handler) VerifyEmailOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}
	if err := h.svc.VerifyEmailOTP(r.Context(), req.SessionID, req.OTP); err != nil {
		h.fail(w, err)
		return
	}
	httpx.WriteMessage(w, "Email verified successfully")
}

type completionResponse struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expiresAt"`
	User      userdomain.Public `json:"user"`
}

// VerifyMobileOTP checks the SMS code and completes the registration.
// POST /auth/verify-mobile-otp
func (h *Handler) VerifyMobileOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}
	res, err := h.svc.VerifyMobileOTP(r.Context(), req.SessionID, req.OTP)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, completionResponse{
		Success:   true,
		Message:   "Registration completed",
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		User:      res.User,
	})
}

type resendRequest struct {
	SessionID string `json:"sessionId"`
	Type      string `json:"type"`
}

type resendResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	DevEmailOTP string `json:"devEmailOTP,omitempty"`
}

// ResendOTP sends a new code on the requested channel.
// POST /auth/resend-otp
func (h *Handler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}
	res, err := h.svc.ResendOTP(r.Context(), req.SessionID, req.Type)
	if err != nil {
		h.fail(w, err)
		return
	}
	msg := "A new code was sent to your email"
	if req.Type == service.ChannelMobile {
		msg = "A new code was sent to your phone"
	}
	httpx.WriteJSON(w, http.StatusOK, resendResponse{Success: true, Message: msg, DevEmailOTP: res.DevEmailOTP})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	httpx.WriteServiceError(w, h.log, err, errorMappings)
}
