// Package memstore keeps records in process memory. It backs tests and
// throwaway runs; nothing survives a restart.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/wellywell/orderdesk/internal/store"
)

var _ store.Backend = (*Store)(nil)

type Store struct {
	mu      sync.RWMutex
	records map[string][]byte
	counter string
}

func New() *Store {
	return &Store{records: make(map[string][]byte)}
}

func (s *Store) Get(_ context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(data), nil
}

func (s *Store) Put(_ context.Context, id string, record []byte) error {
	if !store.ValidID(id) {
		return fmt.Errorf("%w: %q", store.ErrBadID, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[id] = clone(record)
	return nil
}

func (s *Store) List(_ context.Context) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(map[string][]byte, len(s.records))
	for id, data := range s.records {
		snapshot[id] = clone(data)
	}
	return snapshot, nil
}

func (s *Store) LoadCounter(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counter, nil
}

func (s *Store) StoreCounter(_ context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter = value
	return nil
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
