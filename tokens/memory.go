package tokens

import (
	"context"
	"errors"
	"sync"
)

// MemoryStore keeps the token set in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu sync.RWMutex
	ts *TokenSet
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) (*TokenSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ts.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, ts *TokenSet) error {
	if ts == nil {
		return errors.New("token set is nil")
	}
	s.mu.Lock()
	s.ts = ts.Clone()
	s.mu.Unlock()
	return nil
}
