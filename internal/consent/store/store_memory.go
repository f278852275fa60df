package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"medblock/internal/consent/models"
	"medblock/pkg/platform/sentinel"
)

// InMemory is a Store kept in process memory. All uniqueness rules are
// checked and applied under one lock, so concurrent callers observe the same
// guarantees the partial unique indexes give the Postgres store.
type InMemory struct {
	mu       sync.RWMutex
	records  map[string]*models.Record
	requests map[string]*models.AccessRequest
	grants   map[string]*models.AccessGrant
}

func NewInMemory() *InMemory {
	return &InMemory{
		records:  make(map[string]*models.Record),
		requests: make(map[string]*models.AccessRequest),
		grants:   make(map[string]*models.AccessGrant),
	}
}

func (s *InMemory) CreateRecord(_ context.Context, rec *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.RecordID]; ok {
		return sentinel.ErrConflict
	}
	s.records[rec.RecordID] = cloneRecord(rec)
	return nil
}

func (s *InMemory) FindRecord(_ context.Context, recordID string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *InMemory) ListRecordsByOwner(_ context.Context, ownerID string) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Record, 0)
	for _, rec := range s.records {
		if rec.OwnerID == ownerID {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemory) UpdateRecordStatus(_ context.Context, recordID string, status models.RecordStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[recordID]
	if !ok {
		return sentinel.ErrNotFound
	}
	rec.Status = status
	rec.UpdatedAt = at
	return nil
}

func (s *InMemory) CreateRequest(_ context.Context, req *models.AccessRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[req.RecordID]; !ok {
		return sentinel.ErrNotFound
	}
	if _, ok := s.requests[req.RequestID]; ok {
		return sentinel.ErrConflict
	}
	if req.Status == models.RequestPending {
		for _, existing := range s.requests {
			if existing.Status == models.RequestPending &&
				existing.RecordID == req.RecordID &&
				existing.RequesterID == req.RequesterID {
				return sentinel.ErrConflict
			}
		}
	}
	s.requests[req.RequestID] = cloneRequest(req)
	return nil
}

func (s *InMemory) FindRequest(_ context.Context, requestID string) (*models.AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneRequest(req), nil
}

func (s *InMemory) TransitionRequest(_ context.Context, requestID string, to models.RequestStatus, at time.Time, message string) (*models.AccessRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if req.Status != models.RequestPending {
		return nil, sentinel.ErrInvalidState
	}
	req.Status = to
	req.RespondedAt = &at
	req.ResponseMessage = message
	return cloneRequest(req), nil
}

func (s *InMemory) ApprovePendingRequest(_ context.Context, recordID, requesterID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, req := range s.requests {
		if req.Status == models.RequestPending && req.RecordID == recordID && req.RequesterID == requesterID {
			req.Status = models.RequestApproved
			req.RespondedAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemory) ListRequests(_ context.Context, f models.RequestFilter) ([]*models.AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.AccessRequest, 0)
	for _, req := range s.requests {
		if f.Matches(req) {
			out = append(out, cloneRequest(req))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.After(out[j].RequestedAt) })
	return out, nil
}

func (s *InMemory) CreateGrant(_ context.Context, g *models.AccessGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[g.RecordID]; !ok {
		return sentinel.ErrNotFound
	}
	if _, ok := s.grants[g.GrantID]; ok {
		return sentinel.ErrConflict
	}
	if g.Status == models.GrantActive {
		if s.activeGrantLocked(g.RecordID, g.GranteeID) != nil {
			return sentinel.ErrConflict
		}
	}
	s.grants[g.GrantID] = cloneGrant(g)
	return nil
}

func (s *InMemory) FindActiveGrant(_ context.Context, recordID, granteeID string) (*models.AccessGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g := s.activeGrantLocked(recordID, granteeID)
	if g == nil {
		return nil, sentinel.ErrNotFound
	}
	return cloneGrant(g), nil
}

func (s *InMemory) RevokeActiveGrant(_ context.Context, recordID, granteeID string, at time.Time) (*models.AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.activeGrantLocked(recordID, granteeID)
	if g == nil {
		return nil, sentinel.ErrNotFound
	}
	g.Status = models.GrantRevoked
	g.RevokedAt = &at
	return cloneGrant(g), nil
}

func (s *InMemory) RecordGrantAccess(_ context.Context, recordID, granteeID string, now time.Time) (*models.AccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.activeGrantLocked(recordID, granteeID)
	if g == nil || !g.Usable(now) {
		return nil, sentinel.ErrNotFound
	}
	g.AccessCount++
	g.LastAccessedAt = &now
	return cloneGrant(g), nil
}

func (s *InMemory) ExpireGrants(_ context.Context, f models.GrantFilter, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, g := range s.grants {
		if g.Status != models.GrantActive || g.ExpiryDate.After(now) {
			continue
		}
		if (f.RecordID != "" && g.RecordID != f.RecordID) || (f.GranteeID != "" && g.GranteeID != f.GranteeID) {
			continue
		}
		g.Status = models.GrantExpired
		n++
	}
	return n, nil
}

func (s *InMemory) ListGrants(_ context.Context, f models.GrantFilter) ([]*models.AccessGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.AccessGrant, 0)
	for _, g := range s.grants {
		if f.Matches(g) {
			out = append(out, cloneGrant(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GrantedAt.After(out[j].GrantedAt) })
	return out, nil
}

func (s *InMemory) activeGrantLocked(recordID, granteeID string) *models.AccessGrant {
	for _, g := range s.grants {
		if g.Status == models.GrantActive && g.RecordID == recordID && g.GranteeID == granteeID {
			return g
		}
	}
	return nil
}

func cloneRecord(r *models.Record) *models.Record {
	c := *r
	c.WrappedDEK = append([]byte(nil), r.WrappedDEK...)
	c.IV = append([]byte(nil), r.IV...)
	return &c
}

func cloneRequest(r *models.AccessRequest) *models.AccessRequest {
	c := *r
	if r.RespondedAt != nil {
		t := *r.RespondedAt
		c.RespondedAt = &t
	}
	return &c
}

func cloneGrant(g *models.AccessGrant) *models.AccessGrant {
	c := *g
	c.WrappedDEKForGrantee = append([]byte(nil), g.WrappedDEKForGrantee...)
	if g.RevokedAt != nil {
		t := *g.RevokedAt
		c.RevokedAt = &t
	}
	if g.LastAccessedAt != nil {
		t := *g.LastAccessedAt
		c.LastAccessedAt = &t
	}
	return &c
}
