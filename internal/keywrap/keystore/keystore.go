// Package keystore persists per-principal private keys for the local wrapping
// backend.
package keystore

import (
	"context"
	"sync"

	"medblock/pkg/platform/sentinel"
)

// Store holds DER-encoded private keys by principal ID.
//
// Get returns sentinel.ErrNotFound for unknown principals. PutIfAbsent returns
// sentinel.ErrConflict when a key is already stored, so concurrent creators
// converge on the first writer's key.
type Store interface {
	Get(ctx context.Context, principalID string) ([]byte, error)
	PutIfAbsent(ctx context.Context, principalID string, der []byte) error
}

// InMemory is a process-local Store for tests and single-node development.
type InMemory struct {
	mu   sync.RWMutex
	keys map[string][]byte
}

func NewInMemory() *InMemory {
	return &InMemory{keys: make(map[string][]byte)}
}

func (s *InMemory) Get(_ context.Context, principalID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	der, ok := s.keys[principalID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return append([]byte(nil), der...), nil
}

func (s *InMemory) PutIfAbsent(_ context.Context, principalID string, der []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[principalID]; ok {
		return sentinel.ErrConflict
	}
	s.keys[principalID] = append([]byte(nil), der...)
	return nil
}
