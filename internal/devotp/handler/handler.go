// Package handler serves GET /dev/otp/{sessionId}. It is mounted only in dev OTP mode.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"onego-security/backend/internal/devotp"
	regdomain "onego-security/backend/internal/registration/domain"
	"onego-security/backend/internal/server/httpx"
)

const devOTPNote = "DEV MODE ONLY"

// SessionLookup finds the registration whose codes are requested.
type SessionLookup interface {
	GetByID(ctx context.Context, id string) (*regdomain.Session, error)
}

// Handler reads plain codes back from the dev store.
type Handler struct {
	store    devotp.Store
	sessions SessionLookup
}

func NewHandler(store devotp.Store, sessions SessionLookup) *Handler {
	return &Handler{store: store, sessions: sessions}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/dev/otp/{sessionId}", h.GetOTP)
}

type otpResponse struct {
	Success bool   `json:"success"`
	Email   string `json:"email,omitempty"`
	Mobile  string `json:"mobile,omitempty"`
	Note    string `json:"note"`
}

// GetOTP returns the pending email code and, when codes are generated locally, the mobile code.
// GET /dev/otp/{sessionId}
func (h *Handler) GetOTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	sess, err := h.sessions.GetByID(r.Context(), sessionID)
	if err != nil {
		httpx.WriteInternal(w)
		return
	}
	if sess == nil {
		httpx.WriteError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "Registration session not found or expired")
		return
	}
	resp := otpResponse{Success: true, Note: devOTPNote}
	resp.Email, _ = h.store.Get(r.Context(), devotp.EmailKey(sess.ID))
	resp.Mobile, _ = h.store.Get(r.Context(), devotp.MobileKey(sess.User.Phone))
	if resp.Email == "" && resp.Mobile == "" {
		httpx.WriteError(w, http.StatusNotFound, httpx.CodeNotFound, "OTP not found or expired")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
