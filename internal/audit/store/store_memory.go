package store

import (
	"context"
	"sort"
	"sync"

	"medblock/internal/audit"
)

// InMemory keeps audit entries in insertion order.
type InMemory struct {
	mu      sync.RWMutex
	entries []audit.Entry
	seen    map[string]struct{}
}

func NewInMemory() *InMemory {
	return &InMemory{seen: make(map[string]struct{})}
}

// Append ignores an entry whose LogID was already stored.
func (s *InMemory) Append(_ context.Context, e audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[e.LogID]; ok {
		return nil
	}
	s.seen[e.LogID] = struct{}{}
	s.entries = append(s.entries, e)
	return nil
}

func (s *InMemory) ListByRecord(_ context.Context, recordID string, limit int) ([]audit.Entry, error) {
	return s.list(limit, func(e audit.Entry) bool { return e.RecordID == recordID }), nil
}

func (s *InMemory) ListByActor(_ context.Context, actorID string, limit int) ([]audit.Entry, error) {
	return s.list(limit, func(e audit.Entry) bool { return e.ActorID == actorID }), nil
}

func (s *InMemory) ListRecent(_ context.Context, limit int) ([]audit.Entry, error) {
	return s.list(limit, func(audit.Entry) bool { return true }), nil
}

func (s *InMemory) list(limit int, keep func(audit.Entry) bool) []audit.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Entry, 0)
	for i := len(s.entries) - 1; i >= 0; i-- {
		if keep(s.entries[i]) {
			out = append(out, s.entries[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
