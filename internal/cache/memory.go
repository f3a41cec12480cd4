package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// memoryStore is the process-local Store used when redis is disabled.
type memoryStore struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	defaultTTL time.Duration
	now        func() time.Time
}

// NewMemoryStore builds an expiring Store local to this process.
func NewMemoryStore(defaultTTL time.Duration, now func() time.Time) Store {
	if now == nil {
		now = time.Now
	}
	return &memoryStore{entries: make(map[string]memoryEntry), defaultTTL: defaultTTL, now: now}
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), entry.value...), nil
}

func (s *memoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errors.New("cache key is required")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)
	s.entries[key] = memoryEntry{value: append([]byte(nil), value...), expiresAt: now.Add(ttl)}
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// sweep drops expired entries once the table grows large.
func (s *memoryStore) sweep(now time.Time) {
	if len(s.entries) < 4096 {
		return
	}
	for key, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
}
