package cart

import (
	"context"
	"errors"
	"sync"
)

var ErrCartNotFound = errors.New("cart not found")

type Store interface {
	Get(c context.Context, sessionID string, storefront Storefront) (Cart, error)
	Set(c context.Context, sessionID string, cart Cart) error
	Delete(c context.Context, sessionID string, storefront Storefront) error
}

type memoryKey struct {
	sessionID  string
	storefront Storefront
}

type MemoryStore struct {
	mu    sync.RWMutex
	carts map[memoryKey]Cart
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: map[memoryKey]Cart{}}
}

func (s *MemoryStore) Get(_ context.Context, sessionID string, storefront Storefront) (Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cart, ok := s.carts[memoryKey{sessionID, storefront}]
	if !ok {
		return Cart{}, ErrCartNotFound
	}
	cart.Items = append([]Item{}, cart.Items...)
	return cart, nil
}

func (s *MemoryStore) Set(_ context.Context, sessionID string, cart Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart.Items = append([]Item{}, cart.Items...)
	s.carts[memoryKey{sessionID, cart.Storefront}] = cart
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string, storefront Storefront) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, memoryKey{sessionID, storefront})
	return nil
}
