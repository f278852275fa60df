package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/suite"

	"medblock/internal/consent/models"
	"medblock/pkg/platform/sentinel"
)

// consentStore is the method set both stores share.
type consentStore interface {
	CreateRecord(ctx context.Context, rec *models.Record) error
	FindRecord(ctx context.Context, recordID string) (*models.Record, error)
	CreateRequest(ctx context.Context, req *models.AccessRequest) error
	TransitionRequest(ctx context.Context, requestID string, to models.RequestStatus, at time.Time, message string) (*models.AccessRequest, error)
	ApprovePendingRequest(ctx context.Context, recordID, requesterID string, at time.Time) (bool, error)
	ListRequests(ctx context.Context, f models.RequestFilter) ([]*models.AccessRequest, error)
	CreateGrant(ctx context.Context, g *models.AccessGrant) error
	FindActiveGrant(ctx context.Context, recordID, granteeID string) (*models.AccessGrant, error)
	RevokeActiveGrant(ctx context.Context, recordID, granteeID string, at time.Time) (*models.AccessGrant, error)
	RecordGrantAccess(ctx context.Context, recordID, granteeID string, now time.Time) (*models.AccessGrant, error)
	ExpireGrants(ctx context.Context, f models.GrantFilter, now time.Time) (int, error)
	ListGrants(ctx context.Context, f models.GrantFilter) ([]*models.AccessGrant, error)
}

// storeContract exercises the uniqueness and state rules every consent
// store must enforce. Embedders set newStore.
type storeContract struct {
	suite.Suite
	newStore func() consentStore
	store    consentStore
	now      time.Time
}

func (s *storeContract) SetupTest() {
	s.store = s.newStore()
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *storeContract) seedRecord(id string) {
	s.Require().NoError(s.store.CreateRecord(context.Background(), &models.Record{
		RecordID: id, OwnerID: "org-a", StoragePointer: "ptr", CiphertextHash: "h",
		WrappedDEK: []byte{1}, IV: []byte{2}, PolicyID: "default",
		Status: models.RecordActive, CreatedAt: s.now, UpdatedAt: s.now,
	}))
}

func (s *storeContract) pendingRequest(id, recordID string) *models.AccessRequest {
	return &models.AccessRequest{
		RequestID: id, RecordID: recordID, OwnerID: "org-a", RequesterID: "org-b",
		Purpose: "care", Status: models.RequestPending, ExpiryDays: 30, RequestedAt: s.now,
	}
}

func (s *storeContract) activeGrant(id, recordID string, expiry time.Time) *models.AccessGrant {
	return &models.AccessGrant{
		GrantID: id, RecordID: recordID, OwnerID: "org-a", GranteeID: "org-b", Purpose: "care",
		WrappedDEKForGrantee: []byte{3}, Status: models.GrantActive, ExpiryDate: expiry, GrantedAt: s.now,
	}
}

func (s *storeContract) TestDuplicateRecord() {
	s.seedRecord("record_1")
	err := s.store.CreateRecord(context.Background(), &models.Record{
		RecordID: "record_1", OwnerID: "org-a", StoragePointer: "ptr", CiphertextHash: "h",
		WrappedDEK: []byte{1}, IV: []byte{2}, PolicyID: "default",
		Status: models.RecordActive, CreatedAt: s.now, UpdatedAt: s.now,
	})
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *storeContract) TestOnePendingRequest() {
	ctx := context.Background()
	s.seedRecord("record_1")

	s.Require().NoError(s.store.CreateRequest(ctx, s.pendingRequest("req_1", "record_1")))
	s.ErrorIs(s.store.CreateRequest(ctx, s.pendingRequest("req_2", "record_1")), sentinel.ErrConflict)

	approved, err := s.store.ApprovePendingRequest(ctx, "record_1", "org-b", s.now)
	s.Require().NoError(err)
	s.True(approved)

	s.Require().NoError(s.store.CreateRequest(ctx, s.pendingRequest("req_3", "record_1")))

	_, err = s.store.TransitionRequest(ctx, "req_1", models.RequestDenied, s.now, "")
	s.ErrorIs(err, sentinel.ErrInvalidState)

	reqs, err := s.store.ListRequests(ctx, models.RequestFilter{RecordID: "record_1", Statuses: []models.RequestStatus{models.RequestPending}})
	s.Require().NoError(err)
	s.Require().Len(reqs, 1)
	s.Equal("req_3", reqs[0].RequestID)
}

func (s *storeContract) TestRequestForUnknownRecord() {
	err := s.store.CreateRequest(context.Background(), s.pendingRequest("req_1", "record_missing"))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *storeContract) TestOneActiveGrant() {
	ctx := context.Background()
	s.seedRecord("record_1")

	s.Require().NoError(s.store.CreateGrant(ctx, s.activeGrant("grant_1", "record_1", s.now.Add(time.Hour))))
	s.ErrorIs(s.store.CreateGrant(ctx, s.activeGrant("grant_2", "record_1", s.now.Add(time.Hour))), sentinel.ErrConflict)

	revoked, err := s.store.RevokeActiveGrant(ctx, "record_1", "org-b", s.now)
	s.Require().NoError(err)
	s.Equal(models.GrantRevoked, revoked.Status)

	_, err = s.store.RevokeActiveGrant(ctx, "record_1", "org-b", s.now)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.NoError(s.store.CreateGrant(ctx, s.activeGrant("grant_2", "record_1", s.now.Add(time.Hour))))
}

func (s *storeContract) TestConcurrentGrantInsert() {
	ctx := context.Background()
	s.seedRecord("record_1")

	const goroutines = 20
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g := s.activeGrant(models.NewGrantID(s.now)+string(rune('a'+i)), "record_1", s.now.Add(time.Hour))
			err := s.store.CreateGrant(ctx, g)
			switch {
			case err == nil:
				succeeded.Add(1)
			case s.ErrorIs(err, sentinel.ErrConflict):
				conflicts.Add(1)
			}
		}(i)
	}
	wg.Wait()

	s.EqualValues(1, succeeded.Load())
	s.EqualValues(goroutines-1, conflicts.Load())
}

func (s *storeContract) TestGrantAccessAndExpiry() {
	ctx := context.Background()
	s.seedRecord("record_1")
	s.Require().NoError(s.store.CreateGrant(ctx, s.activeGrant("grant_1", "record_1", s.now.Add(time.Hour))))

	g, err := s.store.RecordGrantAccess(ctx, "record_1", "org-b", s.now)
	s.Require().NoError(err)
	s.EqualValues(1, g.AccessCount)

	later := s.now.Add(2 * time.Hour)
	_, err = s.store.RecordGrantAccess(ctx, "record_1", "org-b", later)
	s.ErrorIs(err, sentinel.ErrNotFound)

	n, err := s.store.ExpireGrants(ctx, models.GrantFilter{}, later)
	s.Require().NoError(err)
	s.Equal(1, n)

	_, err = s.store.FindActiveGrant(ctx, "record_1", "org-b")
	s.ErrorIs(err, sentinel.ErrNotFound)

	grants, err := s.store.ListGrants(ctx, models.GrantFilter{GranteeID: "org-b", Statuses: []models.GrantStatus{models.GrantExpired}})
	s.Require().NoError(err)
	s.Len(grants, 1)
}
