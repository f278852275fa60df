package store

import (
	"context"
	"sync"

	"medblock/internal/rewrap"
	"medblock/pkg/platform/sentinel"
)

// InMemory keeps grantee keys in a map keyed by record and grantee.
type InMemory struct {
	mu   sync.RWMutex
	keys map[string]rewrap.WrappedKey
}

func NewInMemory() *InMemory {
	return &InMemory{keys: make(map[string]rewrap.WrappedKey)}
}

func (s *InMemory) Upsert(_ context.Context, key rewrap.WrappedKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key.WrappedDEK = append([]byte(nil), key.WrappedDEK...)
	key.IV = append([]byte(nil), key.IV...)
	s.keys[pairKey(key.RecordID, key.GranteeID)] = key
	return nil
}

func (s *InMemory) Get(_ context.Context, recordID, granteeID string) (*rewrap.WrappedKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[pairKey(recordID, granteeID)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	key.WrappedDEK = append([]byte(nil), key.WrappedDEK...)
	key.IV = append([]byte(nil), key.IV...)
	return &key, nil
}

func pairKey(recordID, granteeID string) string {
	return recordID + "\x00" + granteeID
}
