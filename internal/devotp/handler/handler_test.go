package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"onego-security/backend/internal/devotp"
	regdomain "onego-security/backend/internal/registration/domain"
)

type mapSessions struct {
	m   map[string]*regdomain.Session
	err error
}

func (s *mapSessions) GetByID(ctx context.Context, id string) (*regdomain.Session, error) {
	return s.m[id], s.err
}

func get(h *Handler, sessionID string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.Routes(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dev/otp/"+sessionID, nil))
	return w
}

func TestGetOTP(t *testing.T) {
	store := devotp.NewMemoryStore()
	sessions := &mapSessions{m: map[string]*regdomain.Session{
		"s1": {ID: "s1", User: regdomain.PendingUser{Phone: "+15551234567"}},
	}}
	h := NewHandler(store, sessions)
	exp := time.Now().Add(time.Minute)
	store.Put(context.Background(), devotp.EmailKey("s1"), "123456", exp)
	store.Put(context.Background(), devotp.MobileKey("+15551234567"), "654321", exp)

	w := get(h, "s1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body otpResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Email != "123456" || body.Mobile != "654321" {
		t.Errorf("codes = %q/%q, want 123456/654321", body.Email, body.Mobile)
	}
	if body.Note != devOTPNote {
		t.Errorf("note = %q, want %q", body.Note, devOTPNote)
	}
}

func TestGetOTP_NotFound(t *testing.T) {
	store := devotp.NewMemoryStore()
	sessions := &mapSessions{m: map[string]*regdomain.Session{"s1": {ID: "s1"}}}
	h := NewHandler(store, sessions)

	if w := get(h, "missing"); w.Code != http.StatusNotFound {
		t.Errorf("unknown session: status = %d, want 404", w.Code)
	}
	if w := get(h, "s1"); w.Code != http.StatusNotFound {
		t.Errorf("no codes: status = %d, want 404", w.Code)
	}
}

func TestGetOTP_LookupError(t *testing.T) {
	h := NewHandler(devotp.NewMemoryStore(), &mapSessions{err: errors.New("db down")})
	if w := get(h, "s1"); w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
