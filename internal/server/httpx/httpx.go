// Package httpx holds the JSON request and response helpers shared by every HTTP handler.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"onego-security/backend/internal/validation"
)

// MaxBodyBytes bounds JSON request bodies.
const MaxBodyBytes = 1 << 20

// Stable machine codes carried in error bodies.
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeNotFound      = "NOT_FOUND"
	CodeRateLimited   = "RATE_LIMITED"
	CodeInternal      = "INTERNAL_ERROR"
	CodeUpstream      = "UPSTREAM_ERROR"
	CodeNotConfigured = "NOT_CONFIGURED"
)

// NotAuthorizedMessage is the only message a 401 ever carries.
const NotAuthorizedMessage = "Not authorized"

// ErrorBody is the uniform failure response.
type ErrorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// MessageBody is the uniform success response for operations without a payload.
type MessageBody struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// DataBody wraps a payload as {"success":true,"data":...}.
type DataBody struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteMessage writes {"success":true,"message":msg} with 200.
func WriteMessage(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusOK, MessageBody{Success: true, Message: msg})
}

// WriteData writes {"success":true,"data":data} with 200.
func WriteData(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, DataBody{Success: true, Data: data})
}

// WriteError writes the uniform failure body.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorBody{Success: false, Message: message, Code: code})
}

// WriteUnauthorized writes the generic 401 body.
func WriteUnauthorized(w http.ResponseWriter) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, NotAuthorizedMessage)
}

// WriteInternal writes the generic 500 body. Details belong in the log, never in the response.
func WriteInternal(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, CodeInternal, "Internal server error")
}

// Mapping ties a sentinel error to its HTTP status, code and client message.
// An empty Message uses err.Error().
type Mapping struct {
	Err     error
	Status  int
	Code    string
	Message string
}

// WriteServiceError writes the first mapping matching err (errors.Is). Validation errors become 400;
// anything else is logged and answered with the generic 500.
func WriteServiceError(w http.ResponseWriter, log *zap.Logger, err error, mappings []Mapping) {
	for _, m := range mappings {
		if errors.Is(err, m.Err) {
			msg := m.Message
			if msg == "" {
				msg = m.Err.Error()
			}
			WriteError(w, m.Status, m.Code, msg)
			return
		}
	}
	var verr *validation.Error
	if errors.As(err, &verr) {
		WriteError(w, http.StatusBadRequest, CodeValidation, verr.Message)
		return
	}
	if errors.Is(err, validation.ErrInvalid) {
		WriteError(w, http.StatusBadRequest, CodeValidation, "Invalid request")
		return
	}
	if log != nil {
		log.Error("request failed", zap.Error(err))
	}
	WriteInternal(w)
}

// DecodeJSON decodes a single JSON object from r into dst. Unknown fields, trailing data and
// bodies over MaxBodyBytes are rejected with a validation error.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		return validation.Invalid("body", "Content-Type must be application/json")
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &maxErr):
			return validation.Invalid("body", "Request body too large")
		case errors.Is(err, io.EOF):
			return validation.Invalid("body", "Request body is empty")
		case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
			return validation.Invalid("body", "Malformed JSON")
		case errors.As(err, &typeErr):
			return validation.Invalid(typeErr.Field, fmt.Sprintf("%s has the wrong type", typeErr.Field))
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			return validation.Invalid("body", "Unknown field "+strings.TrimPrefix(err.Error(), "json: unknown field "))
		default:
			return validation.Invalid("body", "Malformed JSON")
		}
	}
	if dec.More() {
		return validation.Invalid("body", "Request body must contain a single JSON object")
	}
	return nil
}
