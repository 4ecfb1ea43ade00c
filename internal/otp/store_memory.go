package otp

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	hash      string
	expiresAt time.Time
	attempts  int
}

// InMemory is a single-process Store for development and tests.
type InMemory struct {
	mu      sync.Mutex
	entries map[string]*entry
	hasher  hasher
	now     func() time.Time
}

func NewInMemory(opts ...Option) *InMemory {
	return &InMemory{
		entries: make(map[string]*entry),
		hasher:  newHasher(opts),
		now:     time.Now,
	}
}

func (s *InMemory) Save(_ context.Context, key, code string, ttl time.Duration) error {
	hash, err := s.hasher.hash(code)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	s.entries[key] = &entry{hash: hash, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *InMemory) Verify(_ context.Context, key, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return false, nil
	}
	if !s.hasher.matches(e.hash, code) {
		e.attempts++
		if e.attempts >= MaxAttempts {
			delete(s.entries, key)
		}
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

// sweep drops expired entries. Callers hold mu.
func (s *InMemory) sweep() {
	now := s.now()
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}
