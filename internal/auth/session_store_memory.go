package auth

import (
	"context"
	"sync"
)

// NewInMemorySessionStore returns a SessionStore backed by an in-memory map.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{tokens: make(map[string]string)}
}

// InMemorySessionStore implements SessionStore for tests and local development.
type InMemorySessionStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// SaveRefreshToken replaces the user's active refresh token hash.
func (s *InMemorySessionStore) SaveRefreshToken(_ context.Context, userID, tokenHash string) error {
	s.mu.Lock()
	s.tokens[userID] = tokenHash
	s.mu.Unlock()
	return nil
}

// RotateRefreshToken replaces oldHash with newHash if oldHash is still the active token.
func (s *InMemorySessionStore) RotateRefreshToken(_ context.Context, userID, oldHash, newHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.tokens[userID]; !ok || current != oldHash {
		return false, nil
	}
	s.tokens[userID] = newHash
	return true, nil
}

// RefreshTokenHash retrieves the user's active refresh token hash.
func (s *InMemorySessionStore) RefreshTokenHash(_ context.Context, userID string) (string, error) {
	s.mu.RLock()
	hash, ok := s.tokens[userID]
	s.mu.RUnlock()
	if !ok {
		return "", ErrSessionNotFound
	}
	return hash, nil
}

// ClearRefreshToken removes the user's active refresh token.
func (s *InMemorySessionStore) ClearRefreshToken(_ context.Context, userID string) error {
	s.mu.Lock()
	delete(s.tokens, userID)
	s.mu.Unlock()
	return nil
}

// Has reports whether the user has an active refresh token. Useful for tests.
func (s *InMemorySessionStore) Has(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tokens[userID]
	return ok
}
