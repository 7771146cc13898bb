package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"onego-security/backend/internal/registration/domain"
	"onego-security/backend/internal/registration/repository"
	userdomain "onego-security/backend/internal/user/domain"
)

type memRegistrationRepo struct {
	mu sync.Mutex
	m  map[string]*domain.Session
}

func newMemRegistrationRepo() *memRegistrationRepo {
	return &memRegistrationRepo{m: make(map[string]*domain.Session)}
}

func (r *memRegistrationRepo) Create(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *s
	r.m[s.ID] = &c
	return nil
}

func (r *memRegistrationRepo) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	c := *s
	return &c, nil
}

func (r *memRegistrationRepo) update(id string, fn func(*domain.Session)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.m[id]; ok {
		fn(s)
	}
	return nil
}

func (r *memRegistrationRepo) MarkEmailVerified(ctx context.Context, id string) error {
	return r.update(id, func(s *domain.Session) { s.Email.Verified = true })
}

func (r *memRegistrationRepo) IncrementEmailAttempts(ctx context.Context, id string) error {
	return r.update(id, func(s *domain.Session) { s.Email.Attempts++ })
}

func (r *memRegistrationRepo) ResetEmailChallenge(ctx context.Context, id, codeHash string, expiresAt time.Time) error {
	return r.update(id, func(s *domain.Session) {
		s.Email.CodeHash = codeHash
		s.Email.ExpiresAt = expiresAt
		s.Email.Attempts = 0
	})
}

func (r *memRegistrationRepo) IncrementMobileAttempts(ctx context.Context, id string) error {
	return r.update(id, func(s *domain.Session) { s.Mobile.Attempts++ })
}

func (r *memRegistrationRepo) ResetMobileAttempts(ctx context.Context, id string) error {
	return r.update(id, func(s *domain.Session) { s.Mobile.Attempts = 0 })
}

func (r *memRegistrationRepo) Delete(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.m[id]
	delete(r.m, id)
	return ok, nil
}

func (r *memRegistrationRepo) DeleteByEmail(ctx context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.m {
		if s.User.Email == email {
			delete(r.m, id)
		}
	}
	return nil
}

func (r *memRegistrationRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.m {
		if s.IsExpired(now) {
			delete(r.m, id)
			n++
		}
	}
	return n, nil
}

func (r *memRegistrationRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}

type memUsers struct {
	mu      sync.Mutex
	byEmail map[string]*userdomain.User
}

func newMemUsers() *memUsers {
	return &memUsers{byEmail: make(map[string]*userdomain.User)}
}

func (u *memUsers) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.byEmail[email], nil
}

func (u *memUsers) add(user *userdomain.User) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.byEmail[user.Email] = user
}

// memCompleter mimics the transactional completer over the in-memory stores.
type memCompleter struct {
	regs      *memRegistrationRepo
	users     *memUsers
	completed []repository.Completion
	err       error
}

func (c *memCompleter) Complete(ctx context.Context, registrationID string, comp repository.Completion) error {
	if c.err != nil {
		return c.err
	}
	deleted, _ := c.regs.Delete(ctx, registrationID)
	if !deleted {
		return repository.ErrAlreadyConsumed
	}
	if existing, _ := c.users.GetByEmail(ctx, comp.User.Email); existing != nil {
		return repository.ErrEmailTaken
	}
	c.users.add(comp.User)
	c.completed = append(c.completed, comp)
	return nil
}

type fakeMailer struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (f *fakeMailer) SendEmailOTP(ctx context.Context, to, name, code string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.codes == nil {
		f.codes = make(map[string]string)
	}
	f.codes[to] = code
	return nil
}

func (f *fakeMailer) lastCode(to string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.codes[to]
}

// fakeSMS approves validCode and records calls.
type fakeSMS struct {
	validCode string
	sendErr   error
	checkErr  error
	sends     int
	checks    int
}

func (f *fakeSMS) Send(ctx context.Context, phone string) error {
	f.sends++
	return f.sendErr
}

func (f *fakeSMS) Check(ctx context.Context, phone, code string) (bool, error) {
	f.checks++
	if f.checkErr != nil {
		return false, f.checkErr
	}
	return code == f.validCode, nil
}

var errBoom = errors.New("boom")
