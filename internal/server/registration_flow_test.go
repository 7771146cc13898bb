package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onego-security/backend/internal/registration/domain"
	registrationhandler "onego-security/backend/internal/registration/handler"
	"onego-security/backend/internal/registration/repository"
	registrationservice "onego-security/backend/internal/registration/service"
	"onego-security/backend/internal/security"
	"onego-security/backend/internal/server/middleware"
	sessiondomain "onego-security/backend/internal/session/domain"
	"onego-security/backend/internal/sms"
	userdomain "onego-security/backend/internal/user/domain"
	userhandler "onego-security/backend/internal/user/handler"
	userservice "onego-security/backend/internal/user/service"
)

// accountStore keeps users, auth sessions and pending registrations in memory and commits a
// completed registration the way the transactional completer does.
type accountStore struct {
	mu       sync.Mutex
	users    map[string]*userdomain.User
	sessions map[string]*sessiondomain.Session
	pending  map[string]*domain.Session
}

func newAccountStore() *accountStore {
	return &accountStore{
		users:    map[string]*userdomain.User{},
		sessions: map[string]*sessiondomain.Session{},
		pending:  map[string]*domain.Session{},
	}
}

func (s *accountStore) GetByEmail(_ context.Context, email string) (*userdomain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (s *accountStore) Complete(_ context.Context, registrationID string, comp repository.Completion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[registrationID]; !ok {
		return repository.ErrAlreadyConsumed
	}
	delete(s.pending, registrationID)
	u := *comp.User
	s.users[u.ID] = &u
	sess := *comp.Session
	s.sessions[sess.ID] = &sess
	return nil
}

// profileUsers is the profile service's view of the store.
type profileUsers struct{ *accountStore }

func (u profileUsers) GetByID(_ context.Context, id string) (*userdomain.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if x, ok := u.accountStore.users[id]; ok {
		c := *x
		return &c, nil
	}
	return nil, nil
}

func (u profileUsers) Update(context.Context, *userdomain.User) error { return nil }
func (u profileUsers) Delete(context.Context, string) error           { return nil }

// authSessions is the auth middleware's view of the store.
type authSessions struct{ *accountStore }

func (a authSessions) GetByID(_ context.Context, id string) (*sessiondomain.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.sessions[id]; ok {
		c := *s
		return &c, nil
	}
	return nil, nil
}

func (a authSessions) UpdateLastSeen(context.Context, string, time.Time) error { return nil }

// pendingRegistrations is the registration repository view of the store.
type pendingRegistrations struct{ *accountStore }

func (p pendingRegistrations) Create(_ context.Context, s *domain.Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := *s
	p.pending[s.ID] = &c
	return nil
}

func (p pendingRegistrations) GetByID(_ context.Context, id string) (*domain.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.pending[id]; ok {
		c := *s
		return &c, nil
	}
	return nil, nil
}

func (p pendingRegistrations) with(id string, fn func(*domain.Session)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.pending[id]; ok {
		fn(s)
	}
	return nil
}

func (p pendingRegistrations) MarkEmailVerified(_ context.Context, id string) error {
	return p.with(id, func(s *domain.Session) { s.Email.Verified = true })
}

func (p pendingRegistrations) IncrementEmailAttempts(_ context.Context, id string) error {
	return p.with(id, func(s *domain.Session) { s.Email.Attempts++ })
}

func (p pendingRegistrations) ResetEmailChallenge(_ context.Context, id, codeHash string, expiresAt time.Time) error {
	return p.with(id, func(s *domain.Session) {
		s.Email.CodeHash, s.Email.ExpiresAt, s.Email.Attempts = codeHash, expiresAt, 0
	})
}

func (p pendingRegistrations) IncrementMobileAttempts(_ context.Context, id string) error {
	return p.with(id, func(s *domain.Session) { s.Mobile.Attempts++ })
}

func (p pendingRegistrations) ResetMobileAttempts(_ context.Context, id string) error {
	return p.with(id, func(s *domain.Session) { s.Mobile.Attempts = 0 })
}

func (p pendingRegistrations) Delete(_ context.Context, id string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.pending[id]
	delete(p.pending, id)
	return ok, nil
}

func (p pendingRegistrations) DeleteByEmail(_ context.Context, email string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, s := range p.pending {
		if s.User.Email == email {
			delete(p.pending, id)
		}
	}
	return nil
}

func (p pendingRegistrations) DeleteExpired(context.Context, time.Time) (int64, error) { return 0, nil }

// outbox records the last code sent to each address or phone.
type outbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (o *outbox) put(to, code string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.codes[to] = code
}

func (o *outbox) get(to string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.codes[to]
}

func (o *outbox) SendEmailOTP(_ context.Context, to, _, code string, _ time.Duration) error {
	o.put(to, code)
	return nil
}

func (o *outbox) SendOTP(_ context.Context, phone, code string) error {
	o.put(phone, code)
	return nil
}

func postJSON(t *testing.T, h http.Handler, path, body string, out any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

func TestRouter_RegistrationTokenAuthenticatesProfile(t *testing.T) {
	store := newAccountStore()
	box := &outbox{codes: map[string]string{}}
	tokens := security.NewTestHMACTokenProvider()
	rl := middleware.NewRateLimiter(100, nil)
	t.Cleanup(rl.Stop)

	mgr := registrationservice.NewManager(registrationservice.Deps{
		Repo:      pendingRegistrations{store},
		Users:     store,
		Completer: store,
		Mailer:    box,
		SMS:       sms.NewLocalVerifier(box, sms.NewMemoryCodeStore()),
		Hasher:    security.NewHasher(4),
		Tokens:    tokens,
	}, registrationservice.Options{})
	h := NewRouter(Deps{
		CORSOrigin:   "*",
		RateLimiter:  rl,
		Tokens:       tokens,
		Sessions:     authSessions{store},
		Registration: registrationhandler.NewHandler(mgr, nil),
		Users:        userhandler.NewHandler(userservice.NewProfileService(profileUsers{store}, nil, nil, nil, nil), nil),
	})

	var reg struct {
		SessionID string `json:"sessionId"`
	}
	code := postJSON(t, h, "/auth/register",
		`{"name":"Ada Lovelace","email":"Ada@Example.com","phone":"+44 20 7946 0958","password":"Password123!"}`, &reg)
	require.Equal(t, http.StatusCreated, code)
	require.NotEmpty(t, reg.SessionID)

	emailCode := box.get("ada@example.com")
	require.Len(t, emailCode, 6)
	code = postJSON(t, h, "/auth/verify-email-otp", `{"sessionId":"`+reg.SessionID+`","otp":"`+emailCode+`"}`, nil)
	require.Equal(t, http.StatusOK, code)

	smsCode := box.get("+442079460958")
	require.Len(t, smsCode, 6)
	var done struct {
		Token string `json:"token"`
	}
	code = postJSON(t, h, "/auth/verify-mobile-otp", `{"sessionId":"`+reg.SessionID+`","otp":"`+smsCode+`"}`, &done)
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, done.Token)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+done.Token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var me struct {
		Success bool              `json:"success"`
		User    userdomain.Public `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.True(t, me.Success)
	assert.Equal(t, "ada@example.com", me.User.Email)
	assert.Equal(t, "+442079460958", me.User.Phone)
	assert.Equal(t, "Ada Lovelace", me.User.Name)
	assert.True(t, me.User.EmailVerified)
	assert.True(t, me.User.PhoneVerified)

	// The registration is consumed: replaying the mobile step finds nothing.
	code = postJSON(t, h, "/auth/verify-mobile-otp", `{"sessionId":"`+reg.SessionID+`","otp":"`+smsCode+`"}`, nil)
	assert.Equal(t, http.StatusNotFound, code)
}
