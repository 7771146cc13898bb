// Package handler lets a signed-in user see and revoke their own sessions.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"onego-security/backend/internal/activity"
	activitydomain "onego-security/backend/internal/activity/domain"
	"onego-security/backend/internal/server/httpx"
	"onego-security/backend/internal/server/middleware"
	"onego-security/backend/internal/session/domain"
	"onego-security/backend/internal/validation"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

var errSessionNotFound = errors.New("session not found")

// Store is the subset of the session repository the handler needs.
type Store interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.Session, error)
	Revoke(ctx context.Context, id string) error
}

var errorMappings = []httpx.Mapping{
	{Err: errSessionNotFound, Status: http.StatusNotFound, Code: httpx.CodeNotFound, Message: "Session not found"},
}

type Handler struct {
	sessions Store
	activity activity.ActivityLogger
	log      *zap.Logger
}

// NewHandler returns a session handler. activityLogger may be nil.
func NewHandler(sessions Store, activityLogger activity.ActivityLogger, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{sessions: sessions, activity: activityLogger, log: log}
}

// Routes registers the session routes on r; r must be behind the auth middleware.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/auth/sessions", h.List)
	r.Delete("/auth/sessions/{sessionId}", h.Revoke)
}

type sessionView struct {
	ID         string     `json:"id"`
	IPAddress  string     `json:"ipAddress"`
	UserAgent  string     `json:"userAgent"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastSeenAt *time.Time `json:"lastSeenAt,omitempty"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	Current    bool       `json:"current"`
}

type listResponse struct {
	Success bool          `json:"success"`
	Data    []sessionView `json:"data"`
	Limit   int32         `json:"limit"`
	Offset  int32         `json:"offset"`
}

// List returns the caller's live sessions. The session behind the presented token is flagged current.
// GET /auth/sessions?limit=&offset=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httpx.WriteUnauthorized(w)
		return
	}
	currentID, _ := middleware.GetSessionID(r.Context())
	limit, offset, err := parsePagination(r)
	if err != nil {
		httpx.WriteServiceError(w, h.log, err, nil)
		return
	}
	list, err := h.sessions.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		httpx.WriteServiceError(w, h.log, err, nil)
		return
	}
	views := make([]sessionView, 0, len(list))
	for _, s := range list {
		views = append(views, sessionView{
			ID:         s.ID,
			IPAddress:  s.IPAddress,
			UserAgent:  s.UserAgent,
			CreatedAt:  s.CreatedAt,
			LastSeenAt: s.LastSeenAt,
			ExpiresAt:  s.ExpiresAt,
			Current:    s.ID == currentID,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, listResponse{Success: true, Data: views, Limit: limit, Offset: offset})
}

// Revoke ends one of the caller's sessions. Sessions of other users answer 404.
// DELETE /auth/sessions/{sessionId}
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.GetUserID(ctx)
	if !ok {
		httpx.WriteUnauthorized(w)
		return
	}
	sessionID := chi.URLParam(r, "sessionId")
	s, err := h.sessions.GetByID(ctx, sessionID)
	if err != nil {
		httpx.WriteServiceError(w, h.log, err, nil)
		return
	}
	if s == nil || s.UserID != userID {
		httpx.WriteServiceError(w, h.log, errSessionNotFound, errorMappings)
		return
	}
	if err := h.sessions.Revoke(ctx, sessionID); err != nil {
		httpx.WriteServiceError(w, h.log, err, nil)
		return
	}
	if h.activity != nil {
		current, _ := middleware.GetSessionID(ctx)
		h.activity.LogEvent(ctx, userID, activitydomain.ActionSessionRevoke, "session",
			map[string]any{"session_id": sessionID, "current": sessionID == current})
	}
	httpx.WriteMessage(w, "Session revoked")
}

func parsePagination(r *http.Request) (int32, int32, error) {
	limit, offset := int32(defaultPageSize), int32(0)
	q := r.URL.Query()
	if s := q.Get("limit"); s != "" {
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil || n <= 0 {
			return 0, 0, validation.Invalid("limit", "limit must be a positive integer")
		}
		limit = int32(min(n, maxPageSize))
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil || n < 0 {
			return 0, 0, validation.Invalid("offset", "offset must be a non-negative integer")
		}
		offset = int32(n)
	}
	return limit, offset, nil
}
