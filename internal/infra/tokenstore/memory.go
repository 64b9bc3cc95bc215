package tokenstore

import (
	"context"
	"sync"

	"github.com/yanqian/mealplanner/internal/domain/session"
)

// Name is the fixed key the token is persisted under.
const Name = "token"

// MemoryStore keeps the token in process memory. Useful for tests and local dev.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Load(_ context.Context) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.values[Name]
	return token, ok, nil
}

func (s *MemoryStore) Save(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[Name] = token
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, Name)
	return nil
}

var _ session.TokenStore = (*MemoryStore)(nil)
