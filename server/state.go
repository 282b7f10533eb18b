package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const stateTTL = 10 * time.Minute

// stateStore remembers the OAuth state values handed out by /auth/start.
type stateStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	issued map[string]time.Time
}

func newStateStore(ttl time.Duration) *stateStore {
	return &stateStore{ttl: ttl, issued: make(map[string]time.Time)}
}

func (s *stateStore) issue(now time.Time) string {
	state := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, exp := range s.issued {
		if now.After(exp) {
			delete(s.issued, k)
		}
	}
	s.issued[state] = now.Add(s.ttl)
	return state
}

// consume reports whether state was issued and is still valid. A state
// can be used once.
func (s *stateStore) consume(state string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.issued[state]
	if !ok {
		return false
	}
	delete(s.issued, state)
	return !now.After(exp)
}
