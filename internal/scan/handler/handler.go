// Package handler exposes the security tools over HTTP.
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"onego-security/backend/internal/scan"
	"onego-security/backend/internal/scan/service"
	"onego-security/backend/internal/server/httpx"
	"onego-security/backend/internal/server/middleware"
	"onego-security/backend/internal/validation"
)

// multipartMemory is held in memory before the upload spills to a temp file.
const multipartMemory = 8 << 20

// Scanner is the subset of *service.Service the handler needs.
type Scanner interface {
	ScanURL(ctx context.Context, userID, rawURL string) (*scan.URLReport, error)
	SubmitFile(ctx context.Context, userID, filename string, size int64, body io.Reader) (*service.FileSubmission, error)
	FileResult(ctx context.Context, userID, dataID string) (*scan.FileReport, error)
	StartPageScan(ctx context.Context, userID, target string) (*service.PageScan, error)
	PageScanStatus(ctx context.Context, userID, scanID, target string) (*service.PageScanStatus, error)
	SpeedTest(ctx context.Context, userID string) (*scan.SpeedResult, error)
	PasswordStrength(ctx context.Context, userID, password string) (*scan.Strength, error)
	AdBlock(ctx context.Context, userID string) (*service.AdBlockState, error)
	SetAdBlock(ctx context.Context, userID string, enabled bool) (*service.AdBlockState, error)
}

var errorMappings = []httpx.Mapping{
	{Err: service.ErrUserNotFound, Status: http.StatusUnauthorized, Code: httpx.CodeUnauthorized, Message: httpx.NotAuthorizedMessage},
	{Err: scan.ErrNotConfigured, Status: http.StatusServiceUnavailable, Code: httpx.CodeNotConfigured, Message: "Security tool is not configured"},
	{Err: scan.ErrNotFound, Status: http.StatusNotFound, Code: httpx.CodeNotFound, Message: "Scan result not found"},
	{Err: scan.ErrUpstream, Status: http.StatusBadGateway, Code: httpx.CodeUpstream, Message: "Security tool request failed"},
}

type Handler struct {
	svc Scanner
	log *zap.Logger
}

func NewHandler(svc Scanner, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, log: log}
}

// Routes registers the /security routes on r; r must be behind the auth middleware.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/security/scan-url", h.ScanURL)
	r.Post("/security/scan-file", h.ScanFile)
	r.Get("/security/scan-file/{dataId}", h.FileResult)
	r.Post("/security/scan-page", h.ScanPage)
	r.Get("/security/scan-page/{scanId}", h.PageStatus)
	r.Post("/security/speed-test", h.SpeedTest)
	r.Post("/security/password-strength", h.PasswordStrength)
	r.Get("/security/adblock", h.GetAdBlock)
	r.Put("/security/adblock", h.SetAdBlock)
}

type urlRequest struct {
	URL string `json:"url" validate:"required,max=2048,http_url"`
}

// ScanURL looks up URL reputation.
// POST /security/scan-url
func (h *Handler) ScanURL(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var req urlRequest
	if !h.decode(w, r, &req) {
		return
	}
	report, err := h.svc.ScanURL(r.Context(), userID, req.URL)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.WriteData(w, report)
}

// ScanFile accepts a multipart upload in the "file" field.
// POST /security/scan-file
func (h *Handler) ScanFile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, scan.MaxFileBytes+(1<<20))
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.fail(w, validation.Invalid("file", "File exceeds the 32 MiB limit"))
			return
		}
		h.fail(w, validation.Invalid("file", "Expected a multipart upload with a file field"))
		return
	}
	defer r.MultipartForm.RemoveAll()
	file, header, err := r.FormFile("file")
	if err != nil {
		h.fail(w, validation.Invalid("file", "file is required"))
		return
	}
	defer file.Close()

	sub, err := h.svc.SubmitFile(r.Context(), userID, filepath.Base(header.Filename), header.Size, file)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.WriteData(w, sub)
}

// FileResult polls a file scan.
// GET /security/scan-file/{dataId}
func (h *Handler) FileResult(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	report, err := h.svc.FileResult(r.Context(), userID, chi.URLParam(r, "dataId"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.WriteData(w, report)
}

// ScanPage starts a page scan.
// POST /security/scan-page
func (h *Handler) ScanPage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var req urlRequest
	if !h.decode(w, r, &req) {
		return
	}
	ps, err := h.svc.StartPageScan(r.Context(), userID, req.URL)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.WriteData(w, ps)
}

// PageStatus polls a page scan; ?url= selects the alerts to return.
// GET /security/scan-page/{scanId}
func (h *Handler) PageStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	st, err := h.svc.PageScanStatus(r.Context(), userID, chi.URLParam(r, "scanId"), r.URL.Query().Get("url"))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.WriteData(w, st)
}

// SpeedTest runs a download measurement.
// POST /security/speed-test
func (h *Handler) SpeedTest(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	res, err := h.svc.SpeedTest(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.WriteData(w, res)
}

type passwordRequest struct {
	Password string `json:"password" validate:"required,max=256"`
}

// PasswordStrength scores a password without storing it.
// POST /security/password-strength
func (h *Handler) PasswordStrength(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var req passwordRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.PasswordStrength(r.Context(), userID, req.Password)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.WriteData(w, res)
}

// GetAdBlock returns the ad-block preference.
// GET /security/adblock
func (h *Handler) GetAdBlock(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	st, err := h.svc.AdBlock(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.WriteData(w, st)
}

type adBlockRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// SetAdBlock stores the ad-block preference.
// PUT /security/adblock
func (h *Handler) SetAdBlock(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var req adBlockRequest
	if !h.decode(w, r, &req) {
		return
	}
	st, err := h.svc.SetAdBlock(r.Context(), userID, *req.Enabled)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.WriteData(w, st)
}

// decode reads a JSON body into req and checks its validate tags.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := httpx.DecodeJSON(w, r, req); err != nil {
		h.fail(w, err)
		return false
	}
	if err := validation.Struct(req); err != nil {
		h.fail(w, err)
		return false
	}
	return true
}

func (h *Handler) user(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httpx.WriteUnauthorized(w)
	}
	return userID, ok
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	httpx.WriteServiceError(w, h.log, err, errorMappings)
}
