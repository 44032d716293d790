package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRUStore is the single-process fallback when no Redis is configured.
type LRUStore struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, Entry]
}

func NewLRUStore(size int, ttl time.Duration) *LRUStore {
	return &LRUStore{cache: expirable.NewLRU[string, Entry](size, nil, ttl)}
}

func (s *LRUStore) Get(_ context.Context, key string) (Entry, error) {
	e, ok := s.cache.Get(key)
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (s *LRUStore) Put(_ context.Context, key string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cache.Peek(key); ok {
		return nil
	}
	s.cache.Add(key, e)
	return nil
}
