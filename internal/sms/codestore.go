package sms

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CodeStore keeps the hash of the pending code per phone together with a check counter.
type CodeStore interface {
	// Save replaces any pending code for phone and resets its attempt counter.
	Save(ctx context.Context, phone, codeHash string, ttl time.Duration) error
	// Get returns the pending code hash and attempts; ok is false when none is pending.
	Get(ctx context.Context, phone string) (codeHash string, attempts int, ok bool, err error)
	IncrementAttempts(ctx context.Context, phone string) error
	Delete(ctx context.Context, phone string) error
}

const redisKeyPrefix = "onego:sms:"

// RedisCodeStore stores codes as Redis hashes that expire with the code.
type RedisCodeStore struct {
	client *redis.Client
}

// NewRedisCodeStore returns a CodeStore backed by client.
func NewRedisCodeStore(client *redis.Client) *RedisCodeStore {
	return &RedisCodeStore{client: client}
}

func (s *RedisCodeStore) Save(ctx context.Context, phone, codeHash string, ttl time.Duration) error {
	key := redisKeyPrefix + phone
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key, "code_hash", codeHash, "attempts", 0)
		p.Expire(ctx, key, ttl)
		return nil
	})
	return err
}

func (s *RedisCodeStore) Get(ctx context.Context, phone string) (string, int, bool, error) {
	m, err := s.client.HGetAll(ctx, redisKeyPrefix+phone).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", 0, false, nil
		}
		return "", 0, false, err
	}
	hash, ok := m["code_hash"]
	if !ok {
		return "", 0, false, nil
	}
	attempts, _ := strconv.Atoi(m["attempts"])
	return hash, attempts, true, nil
}

// incrementIfPending bumps the counter only while the key exists, so an expired code is never
// recreated as a hash without a TTL.
var incrementIfPending = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
return redis.call("HINCRBY", KEYS[1], "attempts", 1)
`)

// IncrementAttempts bumps the counter without extending the key's TTL. A code that already
// expired is left absent.
func (s *RedisCodeStore) IncrementAttempts(ctx context.Context, phone string) error {
	return incrementIfPending.Run(ctx, s.client, []string{redisKeyPrefix + phone}).Err()
}

func (s *RedisCodeStore) Delete(ctx context.Context, phone string) error {
	return s.client.Del(ctx, redisKeyPrefix+phone).Err()
}

type memoryCode struct {
	hash      string
	attempts  int
	expiresAt time.Time
}

// MemoryCodeStore is an in-process CodeStore for single-instance and dev deployments.
type MemoryCodeStore struct {
	mu   sync.Mutex
	m    map[string]*memoryCode
	nowF func() time.Time
}

// NewMemoryCodeStore returns an empty MemoryCodeStore.
func NewMemoryCodeStore() *MemoryCodeStore {
	return &MemoryCodeStore{m: make(map[string]*memoryCode), nowF: time.Now}
}

func (s *MemoryCodeStore) Save(_ context.Context, phone, codeHash string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[phone] = &memoryCode{hash: codeHash, expiresAt: s.nowF().Add(ttl)}
	return nil
}

func (s *MemoryCodeStore) Get(_ context.Context, phone string) (string, int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.m[phone]
	if !ok {
		return "", 0, false, nil
	}
	if !c.expiresAt.After(s.nowF()) {
		delete(s.m, phone)
		return "", 0, false, nil
	}
	return c.hash, c.attempts, true, nil
}

func (s *MemoryCodeStore) IncrementAttempts(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.m[phone]; ok {
		c.attempts++
	}
	return nil
}

func (s *MemoryCodeStore) Delete(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, phone)
	return nil
}
