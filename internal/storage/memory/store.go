// Package memory keeps orders in process memory. It backs tests and
// deployments without a database.
package memory

import (
	"context"
	"errors"
	"sync"

	"marketplace-relay/internal/storage"
)

var errClosed = errors.New("memory store is closed")

type Store struct {
	mu     sync.RWMutex
	orders []storage.YemeksepetiOrder
	closed bool
}

func New() *Store {
	return &Store{}
}

func (s *Store) SaveYemeksepetiOrder(ctx context.Context, order *storage.YemeksepetiOrder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if order == nil {
		return errors.New("order is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	s.orders = append(s.orders, *order)
	return nil
}

// Orders returns a copy of everything saved so far
func (s *Store) Orders() []storage.YemeksepetiOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.YemeksepetiOrder, len(s.orders))
	copy(out, s.orders)
	return out
}

func (s *Store) Health(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
