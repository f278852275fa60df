// Package store persists the organization directory.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"medblock/internal/org/models"
	"medblock/pkg/platform/sentinel"
)

type InMemory struct {
	mu   sync.RWMutex
	orgs map[string]*models.Organization
}

func NewInMemory() *InMemory {
	return &InMemory{orgs: make(map[string]*models.Organization)}
}

// Create stores org unless its id is taken, which reports sentinel.ErrConflict.
func (s *InMemory) Create(_ context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orgs[org.OrgID]; ok {
		return sentinel.ErrConflict
	}
	cp := *org
	s.orgs[org.OrgID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, orgID string) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.orgs[orgID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *org
	return &cp, nil
}

// ListActive returns active organizations ordered by name.
func (s *InMemory) ListActive(_ context.Context) ([]*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Organization, 0, len(s.orgs))
	for _, org := range s.orgs {
		if org.IsActive() {
			cp := *org
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemory) UpdateStatus(_ context.Context, orgID string, status models.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[orgID]
	if !ok {
		return sentinel.ErrNotFound
	}
	org.Status = status
	org.UpdatedAt = at
	return nil
}
