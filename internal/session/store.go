package session

import (
	"context"
	"errors"
	"sync"
)

var ErrTokensNotFound = errors.New("session tokens not found")

type Store interface {
	Get(c context.Context, sessionID string) (TokenPair, error)
	Set(c context.Context, sessionID string, pair TokenPair) error
	Delete(c context.Context, sessionID string) error
}

type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]TokenPair
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: map[string]TokenPair{}}
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (TokenPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pair, ok := s.tokens[sessionID]
	if !ok {
		return TokenPair{}, ErrTokensNotFound
	}
	return pair, nil
}

func (s *MemoryStore) Set(_ context.Context, sessionID string, pair TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[sessionID] = pair
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, sessionID)
	return nil
}
