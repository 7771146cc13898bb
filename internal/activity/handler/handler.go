// Package handler serves the caller's activity log over HTTP.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"onego-security/backend/internal/activity/domain"
	"onego-security/backend/internal/server/httpx"
	"onego-security/backend/internal/server/middleware"
	"onego-security/backend/internal/validation"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// Lister reads a user's activity entries.
type Lister interface {
	ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.Entry, error)
}

type Handler struct {
	entries Lister
	log     *zap.Logger
}

func NewHandler(entries Lister, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{entries: entries, log: log}
}

// Routes registers GET /activity on r; r must be behind the auth middleware.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/activity", h.List)
}

type listResponse struct {
	Success bool            `json:"success"`
	Data    []*domain.Entry `json:"data"`
	Limit   int32           `json:"limit"`
	Offset  int32           `json:"offset"`
}

// List returns the caller's activity, newest first.
// GET /activity?limit=&offset=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httpx.WriteUnauthorized(w)
		return
	}
	limit, offset, err := parsePagination(r)
	if err != nil {
		httpx.WriteServiceError(w, h.log, err, nil)
		return
	}
	entries, err := h.entries.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		httpx.WriteServiceError(w, h.log, err, nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, listResponse{Success: true, Data: entries, Limit: limit, Offset: offset})
}

// parsePagination reads limit (default 50, capped at 100) and offset (default 0).
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
