// Package devotp keeps plain verification codes in memory so a developer can read them back
// through GET /dev/otp/{sessionId}. It is wired only when OTP_RETURN_TO_CLIENT is on outside production.
package devotp

import (
	"context"
	"sync"
	"time"
)

// Store holds plain codes by key until they expire.
type Store interface {
	// Put stores code under key until expiresAt, replacing any previous code.
	Put(ctx context.Context, key, code string, expiresAt time.Time)
	// Get returns the code for key. ok is false if it is missing or expired.
	Get(ctx context.Context, key string) (code string, ok bool)
}

// EmailKey is the key for the email code of a registration session.
func EmailKey(sessionID string) string { return "email:" + sessionID }

// MobileKey is the key for the latest SMS code sent to phone.
func MobileKey(phone string) string { return "mobile:" + phone }

type entry struct {
	code      string
	expiresAt time.Time
}

// MemoryStore is a mutex-guarded map. Expired entries are dropped on read and by Purge.
type MemoryStore struct {
	mu  sync.Mutex
	m   map[string]entry
	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]entry), now: time.Now}
}

func (s *MemoryStore) Put(_ context.Context, key, code string, expiresAt time.Time) {
	s.mu.Lock()
	s.m[key] = entry{code: code, expiresAt: expiresAt}
	s.mu.Unlock()
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	if !ok {
		return "", false
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.m, key)
		return "", false
	}
	return e.code, true
}

// Purge drops every expired entry and returns how many were removed.
func (s *MemoryStore) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for k, e := range s.m {
		if !now.Before(e.expiresAt) {
			delete(s.m, k)
			n++
		}
	}
	return n
}

// Len reports the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// RunPurger calls Purge every interval until ctx is done.
func (s *MemoryStore) RunPurger(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Purge()
		}
	}
}
