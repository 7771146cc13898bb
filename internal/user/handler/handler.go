// Package handler exposes the signed-in user's profile over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"onego-security/backend/internal/server/httpx"
	"onego-security/backend/internal/server/middleware"
	"onego-security/backend/internal/user/domain"
	"onego-security/backend/internal/user/service"
)

// ProfileService is the subset of *service.ProfileService the handler needs.
type ProfileService interface {
	GetProfile(ctx context.Context, userID string) (*domain.Public, error)
	UpdateProfile(ctx context.Context, userID string, upd service.ProfileUpdate) (*domain.Public, error)
	DeleteAccount(ctx context.Context, userID string) error
}

var errorMappings = []httpx.Mapping{
	// A valid token for a deleted user is treated like any other invalid credential.
	{Err: service.ErrUserNotFound, Status: http.StatusUnauthorized, Code: httpx.CodeUnauthorized, Message: httpx.NotAuthorizedMessage},
	{Err: service.ErrEmailTaken, Status: http.StatusConflict, Code: "EMAIL_REGISTERED", Message: "Email already registered"},
}

type Handler struct {
	svc ProfileService
	log *zap.Logger
}

func NewHandler(svc ProfileService, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log}
}

// Routes registers the profile routes on r; r must be behind the auth middleware.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/auth/me", h.GetMe)
	r.Put("/auth/me", h.UpdateMe)
	r.Delete("/auth/account", h.DeleteAccount)
}

type profileResponse struct {
	Success bool          `json:"success"`
	User    domain.Public `json:"user"`
}

// GetMe returns the caller's profile.
// GET /auth/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httpx.WriteUnauthorized(w)
		return
	}
	p, err := h.svc.GetProfile(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, profileResponse{Success: true, User: *p})
}

type updateRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Phone *string `json:"phone"`
}

// UpdateMe changes name, email or phone.
// PUT /auth/me
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httpx.WriteUnauthorized(w)
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, err)
		return
	}
	p, err := h.svc.UpdateProfile(r.Context(), userID, service.ProfileUpdate{Name: req.Name, Email: req.Email, Phone: req.Phone})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, profileResponse{Success: true, User: *p})
}

// DeleteAccount removes the caller's account.
// DELETE /auth/account
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httpx.WriteUnauthorized(w)
		return
	}
	if err := h.svc.DeleteAccount(r.Context(), userID); err != nil {
		h.fail(w, err)
		return
	}
	httpx.WriteMessage(w, "Account deleted")
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	httpx.WriteServiceError(w, h.log, err, errorMappings)
}
