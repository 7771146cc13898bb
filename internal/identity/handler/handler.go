// Package handler exposes login, logout and password reset over HTTP.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"onego-security/backend/internal/identity/service"
	"onego-security/backend/internal/server/httpx"
	userdomain "onego-security/backend/internal/user/domain"
)

// AuthService is the subset of *service.AuthService the handler needs.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*service.AuthResult, error)
	Logout(ctx context.Context) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// forgotPasswordMessage is returned whether or not the account exists.
const forgotPasswordMessage = "If an account exists for that email, a reset link has been sent"

var errorMappings = []httpx.Mapping{
	{Err: service.ErrInvalidCredentials, Status: http.StatusUnauthorized, Code: httpx.CodeUnauthorized, Message: "Invalid email or password"},
	{Err: service.ErrInvalidResetToken, Status: http.StatusBadRequest, Code: "INVALID_RESET_TOKEN", Message: "Invalid or expired reset token"},
}

type Handler struct {
	svc AuthService
	log *zap.Logger
}

func NewHandler(svc AuthService, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log}
}

// Routes registers the public routes on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/auth/login", h.Login)
	r.Post("/auth/forgot-password", h.ForgotPassword)
	r.Post("/auth/reset-password", h.ResetPassword)
}

// AuthedRoutes registers the routes that need an authenticated session.
func (h *Handler) AuthedRoutes(r chi.Router) {
	r.Post("/auth/logout", h.Logout)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success   bool              `json:"success"`
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expiresAt"`
	User      userdomain.Public `json:"user"`
}

// Login authenticates with email and password.
// POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loginResponse{Success: true, Token: res.Token, ExpiresAt: res.ExpiresAt, User: res.User})
}

// Logout revokes the caller's session.
// POST /auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Logout(r.Context()); err != nil {
		h.fail(w, err)
		return
	}
	httpx.WriteMessage(w, "Logged out")
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword sends a reset link. The response does not depend on whether the account exists.
// POST /auth/forgot-password
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}
	if err := h.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.fail(w, err)
		return
	}
	httpx.WriteMessage(w, forgotPasswordMessage)
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ResetPassword sets a new password with a reset token.
// POST /auth/reset-password
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		h.fail(w, err)
		return
	}
	httpx.WriteMessage(w, "Password has been reset")
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	httpx.WriteServiceError(w, h.log, err, errorMappings)
}
