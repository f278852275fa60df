package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks KeyWrapper,AuditRecorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"medblock/internal/audit"
	auditstore "medblock/internal/audit/store"
	"medblock/internal/consent/models"
	"medblock/internal/consent/service/mocks"
	consentstore "medblock/internal/consent/store"
	"medblock/internal/envelope"
	"medblock/internal/keywrap"
	"medblock/internal/keywrap/keystore"
	"medblock/internal/ledger"
	ledgermocks "medblock/internal/ledger/mocks"
	orgmodels "medblock/internal/org/models"
	orgservice "medblock/internal/org/service"
	orgstore "medblock/internal/org/store"
	"medblock/internal/platform/logger"
	dErrors "medblock/pkg/domain-errors"
)

const (
	ownerOrg   = "hospital-a"
	granteeOrg = "hospital-b"
	otherOrg   = "hospital-c"
)

type ServiceSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	ledger     *ledgermocks.MockClient
	store      *consentstore.InMemory
	auditStore *auditstore.InMemory
	keys       *keywrap.Provider
	service    *Service
	now        time.Time

	mu        sync.Mutex
	txns      []ledger.Transaction
	submitErr error
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.ledger = ledgermocks.NewMockClient(s.ctrl)
	s.store = consentstore.NewInMemory()
	s.auditStore = auditstore.NewInMemory()
	s.keys = keywrap.NewProvider(keywrap.NewLocal(keystore.NewInMemory(), keywrap.WithKeyBits(1024)))
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.txns = nil
	s.submitErr = nil

	s.ledger.EXPECT().Name().Return("mock").AnyTimes()
	s.ledger.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, txn ledger.Transaction) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.txns = append(s.txns, txn)
			return s.submitErr
		}).AnyTimes()

	s.service = s.newService(s.keys)
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) newService(keys KeyWrapper) *Service {
	return New(s.store, keys,
		WithLedger(s.ledger),
		WithAuditRecorder(audit.NewSink(s.auditStore)),
		WithClock(func() time.Time { return s.now }),
	)
}

// seedRecord creates a record whose data key is wrapped to ownerOrg and
// returns the plaintext key.
func (s *ServiceSuite) seedRecord() (*models.Record, []byte) {
	ctx := context.Background()
	dek, err := envelope.GenerateKey()
	s.Require().NoError(err)
	sealed, err := envelope.Encrypt([]byte("chart"), dek)
	s.Require().NoError(err)
	wrapped, err := s.keys.Wrap(ctx, dek, ownerOrg)
	s.Require().NoError(err)

	rec, err := s.service.CreateRecord(ctx, CreateRecordInput{
		OwnerID:        ownerOrg,
		StoragePointer: "minio://records/x.enc",
		CiphertextHash: envelope.Digest(sealed.Blob()),
		WrappedDEK:     wrapped,
		IV:             sealed.IV,
	})
	s.Require().NoError(err)
	return rec, dek
}

func (s *ServiceSuite) actions(recordID string) []audit.Action {
	entries, err := s.auditStore.ListByRecord(context.Background(), recordID, audit.MaxListLimit)
	s.Require().NoError(err)
	out := make([]audit.Action, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i].Action)
	}
	return out
}

func (s *ServiceSuite) submitted() []ledger.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.Transaction(nil), s.txns...)
}

func (s *ServiceSuite) TestCreateRecord() {
	ctx := context.Background()

	s.Run("creates active record and mirrors it", func() {
		rec, _ := s.seedRecord()
		s.Regexp(`^record_\d+_[0-9a-f]{16}$`, rec.RecordID)
		s.Equal(models.RecordActive, rec.Status)
		s.Equal("default", rec.PolicyID)
		s.Equal([]audit.Action{audit.ActionCreate}, s.actions(rec.RecordID))

		txns := s.submitted()
		s.Require().NotEmpty(txns)
		last := txns[len(txns)-1]
		s.Equal(ledger.TxCreateRecord, last.Name)
		s.Equal(rec.RecordID, last.RecordID())
	})

	s.Run("duplicate record id conflicts", func() {
		in := CreateRecordInput{
			RecordID:       "record_dup",
			OwnerID:        ownerOrg,
			StoragePointer: "p",
			CiphertextHash: "h",
			WrappedDEK:     []byte{1},
			IV:             []byte{2},
		}
		_, err := s.service.CreateRecord(ctx, in)
		s.Require().NoError(err)
		_, err = s.service.CreateRecord(ctx, in)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("missing wrapped key is rejected", func() {
		_, err := s.service.CreateRecord(ctx, CreateRecordInput{OwnerID: ownerOrg, StoragePointer: "p", CiphertextHash: "h", IV: []byte{1}})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("ledger failure does not fail the operation", func() {
		s.submitErr = errors.New("broker down")
		defer func() { s.submitErr = nil }()
		rec, _ := s.seedRecord()
		s.NotEmpty(rec.RecordID)
	})
}

func (s *ServiceSuite) TestRequestAccess() {
	ctx := context.Background()
	rec, _ := s.seedRecord()

	s.Run("creates pending request", func() {
		req, err := s.service.RequestAccess(ctx, rec.RecordID, granteeOrg, "treatment", 7)
		s.Require().NoError(err)
		s.Equal(models.RequestPending, req.Status)
		s.Equal(ownerOrg, req.OwnerID)
		s.Equal(7, req.ExpiryDays)
		s.Contains(s.actions(rec.RecordID), audit.ActionRequestAccess)
	})

	s.Run("second pending request conflicts", func() {
		_, err := s.service.RequestAccess(ctx, rec.RecordID, granteeOrg, "treatment", 7)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("owner cannot request own record", func() {
		_, err := s.service.RequestAccess(ctx, rec.RecordID, ownerOrg, "treatment", 7)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidOperation))
	})

	s.Run("unknown record", func() {
		_, err := s.service.RequestAccess(ctx, "record_missing", granteeOrg, "treatment", 7)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("zero expiry uses default", func() {
		req, err := s.service.RequestAccess(ctx, rec.RecordID, otherOrg, "research", 0)
		s.Require().NoError(err)
		s.Equal(models.DefaultExpiryDays, req.ExpiryDays)
	})

	s.Run("archived record refuses requests", func() {
		archived, _ := s.seedRecord()
		s.Require().NoError(s.service.ArchiveRecord(ctx, archived.RecordID, ownerOrg))
		_, err := s.service.RequestAccess(ctx, archived.RecordID, granteeOrg, "treatment", 7)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidOperation))
	})
}

func (s *ServiceSuite) TestGrantAccess() {
	ctx := context.Background()

	s.Run("rewraps key and approves pending request", func() {
		rec, dek := s.seedRecord()
		req, err := s.service.RequestAccess(ctx, rec.RecordID, granteeOrg, "treatment", 14)
		s.Require().NoError(err)

		grant, err := s.service.GrantAccess(ctx, rec.RecordID, ownerOrg, granteeOrg, "", 0)
		s.Require().NoError(err)
		s.Equal(models.GrantActive, grant.Status)
		s.Equal("treatment", grant.Purpose)
		s.Equal(s.now.AddDate(0, 0, 14), grant.ExpiryDate)

		got, err := s.keys.Unwrap(ctx, grant.WrappedDEKForGrantee, granteeOrg)
		s.Require().NoError(err)
		s.Equal(dek, got)

		stored, err := s.store.FindRequest(ctx, req.RequestID)
		s.Require().NoError(err)
		s.Equal(models.RequestApproved, stored.Status)

		txns := s.submitted()
		last := txns[len(txns)-1]
		s.Equal(ledger.TxGrantAccess, last.Name)
		s.Equal([]string{rec.RecordID, granteeOrg, "treatment", grant.ExpiryDate.Format(time.RFC3339)}, last.Args)
		s.Equal(grant.GrantID, last.RefID)
		s.Contains(s.actions(rec.RecordID), audit.ActionGrantAccess)
	})

	s.Run("second grant conflicts", func() {
		rec, _ := s.seedRecord()
		_, err := s.service.GrantAccess(ctx, rec.RecordID, ownerOrg, granteeOrg, "treatment", 1)
		s.Require().NoError(err)
		_, err = s.service.GrantAccess(ctx, rec.RecordID, ownerOrg, granteeOrg, "treatment", 1)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("non-owner is unauthorized", func() {
		rec, _ := s.seedRecord()
		_, err := s.service.GrantAccess(ctx, rec.RecordID, otherOrg, granteeOrg, "treatment", 1)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("unknown record", func() {
		_, err := s.service.GrantAccess(ctx, "record_missing", ownerOrg, granteeOrg, "treatment", 1)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("missing purpose without request", func() {
		rec, _ := s.seedRecord()
		_, err := s.service.GrantAccess(ctx, rec.RecordID, ownerOrg, granteeOrg, "", 1)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("expired grant can be replaced", func() {
		rec, _ := s.seedRecord()
		first, err := s.service.GrantAccess(ctx, rec.RecordID, ownerOrg, granteeOrg, "treatment", 1)
		s.Require().NoError(err)

		s.now = s.now.Add(48 * time.Hour)
		second, err := s.service.GrantAccess(ctx, rec.RecordID, ownerOrg, granteeOrg, "treatment", 1)
		s.Require().NoError(err)
		s.NotEqual(first.GrantID, second.GrantID)

		grants, err := s.service.ListGrants(ctx, models.GrantFilter{RecordID: rec.RecordID})
		s.Require().NoError(err)
		s.Len(grants, 2)
	})

	s.Run("unwrap failure surfaces as crypto error", func() {
		rec, _ := s.seedRecord()
		keys := mocks.NewMockKeyWrapper(s.ctrl)
		keys.EXPECT().Unwrap(gomock.Any(), rec.WrappedDEK, ownerOrg).Return(nil, keywrap.ErrUnwrapFailed)
		svc := s.newService(keys)

		_, err := svc.GrantAccess(ctx, rec.RecordID, ownerOrg, granteeOrg, "treatment", 1)
		s.True(dErrors.HasCode(err, dErrors.CodeCrypto))

		ok, err := s.service.HasAccess(ctx, rec.RecordID, granteeOrg)
		s.Require().NoError(err)
		s.False(ok)
	})
}

func (s *ServiceSuite) TestGrantAccessConcurrent() {
	ctx := context.Background()
	rec, _ := s.seedRecord()

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.GrantAccess(ctx, rec.RecordID, ownerOrg, granteeOrg, "treatment", 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case dErrors.HasCode(err, dErrors.CodeConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	s.Equal(1, succeeded)
	s.Equal(workers-1, conflicts)
	grants, err := s.service.ListGrants(ctx, models.GrantFilter{RecordID: rec.RecordID, Statuses: []models.GrantStatus{models.GrantActive}})
	s.Require().NoError(err)
	s.Len(grants, 1)
}

func (s *ServiceSuite) TestRevokeAccess() {
	ctx := context.Background()
	rec, _ := s.seedRecord()
	grant, err := s.service.GrantAccess(ctx, rec.RecordID, ownerOrg, granteeOrg, "treatment", 5)
	s.Require().NoError(err)

	s.Run("non-owner is unauthorized", func() {
		_, err := s.service.RevokeAccess(ctx, rec.RecordID, granteeOrg, granteeOrg)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("revokes active grant", func() {
		revoked, err := s.service.RevokeAccess(ctx, rec.RecordID, ownerOrg, granteeOrg)
		s.Require().NoError(err)
		s.Equal(grant.GrantID, revoked.GrantID)
		s.Equal(models.GrantRevoked, revoked.Status)
		s.NotNil(revoked.RevokedAt)

		_, err = s.service.ResolveGranteeKey(ctx, rec.RecordID, granteeOrg)
		s.True(dErrors.HasCode(err, dErrors.CodeAccessDenied))
	})

	s.Run("already revoked is not found", func() {
		_, err := s.service.RevokeAccess(ctx, rec.RecordID, ownerOrg, granteeOrg)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestResolveGranteeKey() {
	ctx := context.Background()
	rec, dek := s.seedRecord()
	grant, err := s.service.GrantAccess(ctx, rec.RecordID, ownerOrg, granteeOrg, "treatment", 2)
	s.Require().NoError(err)

	s.Run("releases key and counts access", func() {
		key, err := s.service.ResolveGranteeKey(ctx, rec.RecordID, granteeOrg)
		s.Require().NoError(err)
		s.Equal(rec.IV, key.IV)
		s.Equal(grant.GrantID, key.GrantID)

		got, err := s.keys.Unwrap(ctx, key.WrappedDEK, granteeOrg)
		s.Require().NoError(err)
		s.Equal(dek, got)

		_, err = s.service.ResolveGranteeKey(ctx, rec.RecordID, granteeOrg)
		s.Require().NoError(err)
		stored, err := s.store.FindActiveGrant(ctx, rec.RecordID, granteeOrg)
		s.Require().NoError(err)
		s.EqualValues(2, stored.AccessCount)
		s.NotNil(stored.LastAccessedAt)
		s.Contains(s.actions(rec.RecordID), audit.ActionView)
	})

	s.Run("stranger is denied", func() {
		_, err := s.service.ResolveGranteeKey(ctx, rec.RecordID, otherOrg)
		s.True(dErrors.HasCode(err, dErrors.CodeAccessDenied))
	})

	s.Run("expired grant is denied before the sweep runs", func() {
		s.now = s.now.AddDate(0, 0, 3)
		_, err := s.service.ResolveGranteeKey(ctx, rec.RecordID, granteeOrg)
		s.True(dErrors.HasCode(err, dErrors.CodeAccessDenied))

		ok, err := s.service.HasAccess(ctx, rec.RecordID, granteeOrg)
		s.Require().NoError(err)
		s.False(ok)

		grants, err := s.service.ListGrants(ctx, models.GrantFilter{RecordID: rec.RecordID, Statuses: []models.GrantStatus{models.GrantExpired}})
		s.Require().NoError(err)
		s.Len(grants, 1)
	})
}

func (s *ServiceSuite) TestDenyAndCancel() {
	ctx := context.Background()
	rec, _ := s.seedRecord()

	s.Run("owner denies pending request", func() {
		req, err := s.service.RequestAccess(ctx, rec.RecordID, granteeOrg, "treatment", 7)
		s.Require().NoError(err)

		_, err = s.service.DenyRequest(ctx, req.RequestID, granteeOrg, "no")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

		denied, err := s.service.DenyRequest(ctx, req.RequestID, ownerOrg, "not needed")
		s.Require().NoError(err)
		s.Equal(models.RequestDenied, denied.Status)
		s.Equal("not needed", denied.ResponseMessage)
		s.Contains(s.actions(rec.RecordID), audit.ActionDenyAccess)

		_, err = s.service.DenyRequest(ctx, req.RequestID, ownerOrg, "again")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidOperation))
	})

	s.Run("requester cancels pending request", func() {
		req, err := s.service.RequestAccess(ctx, rec.RecordID, granteeOrg, "treatment", 7)
		s.Require().NoError(err)

		_, err = s.service.CancelRequest(ctx, req.RequestID, ownerOrg)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

		before := s.actions(rec.RecordID)
		cancelled, err := s.service.CancelRequest(ctx, req.RequestID, granteeOrg)
		s.Require().NoError(err)
		s.Equal(models.RequestCancelled, cancelled.Status)

		after := s.actions(rec.RecordID)
		s.Require().Len(after, len(before)+1)
		s.Equal(audit.ActionUpdate, after[len(after)-1])

		entries, err := s.auditStore.ListByActor(ctx, granteeOrg, 1)
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(ownerOrg, entries[0].TargetID)
		s.Equal(req.RequestID, entries[0].Details["requestId"])
		s.Equal("cancelled", entries[0].Details["status"])
	})

	s.Run("unknown request", func() {
		_, err := s.service.CancelRequest(ctx, "req_missing", granteeOrg)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestRecordVisibility() {
	ctx := context.Background()
	rec, _ := s.seedRecord()

	_, err := s.service.GetRecord(ctx, rec.RecordID, granteeOrg)
	s.True(dErrors.HasCode(err, dErrors.CodeAccessDenied))

	_, err = s.service.GrantAccess(ctx, rec.RecordID, ownerOrg, granteeOrg, "treatment", 1)
	s.Require().NoError(err)

	got, err := s.service.GetRecord(ctx, rec.RecordID, granteeOrg)
	s.Require().NoError(err)
	s.Equal(rec.RecordID, got.RecordID)

	shared, err := s.service.ListSharedWithMe(ctx, granteeOrg)
	s.Require().NoError(err)
	s.Require().Len(shared, 1)
	s.Equal(rec.RecordID, shared[0].Record.RecordID)

	owned, err := s.service.ListRecords(ctx, ownerOrg)
	s.Require().NoError(err)
	s.Len(owned, 1)
}

func (s *ServiceSuite) TestExpireGrants() {
	ctx := context.Background()
	rec, _ := s.seedRecord()
	_, err := s.service.GrantAccess(ctx, rec.RecordID, ownerOrg, granteeOrg, "treatment", 1)
	s.Require().NoError(err)

	n, err := s.service.ExpireGrants(ctx)
	s.Require().NoError(err)
	s.Zero(n)

	s.now = s.now.Add(25 * time.Hour)
	n, err = s.service.ExpireGrants(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	_, err = s.store.FindActiveGrant(ctx, rec.RecordID, granteeOrg)
	s.Error(err)
}

func (s *ServiceSuite) TestOrgDirectory() {
	ctx := context.Background()
	dir := orgservice.New(orgstore.NewInMemory(), orgservice.WithLogger(logger.Discard()))
	for _, id := range []string{ownerOrg, granteeOrg, otherOrg} {
		_, err := dir.Register(ctx, id, "Org "+id, orgmodels.TypeHospital, id+"@example.com")
		s.Require().NoError(err)
	}
	s.Require().NoError(dir.SetStatus(ctx, otherOrg, orgmodels.StatusSuspended))

	s.service = New(s.store, s.keys,
		WithLedger(s.ledger),
		WithAuditRecorder(audit.NewSink(s.auditStore)),
		WithClock(func() time.Time { return s.now }),
		WithOrgDirectory(dir),
	)
	rec, _ := s.seedRecord()

	s.Run("grant to unknown org is not found", func() {
		_, err := s.service.GrantAccess(ctx, rec.RecordID, ownerOrg, "hospital-z", "care", 30)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("grant to suspended org is not found", func() {
		_, err := s.service.GrantAccess(ctx, rec.RecordID, ownerOrg, otherOrg, "care", 30)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("request from unknown org is not found", func() {
		_, err := s.service.RequestAccess(ctx, rec.RecordID, "hospital-z", "care", 30)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("request from suspended org is not found", func() {
		_, err := s.service.RequestAccess(ctx, rec.RecordID, otherOrg, "care", 30)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("rejections leave no consent state", func() {
		grants, err := s.service.ListGrants(ctx, models.GrantFilter{RecordID: rec.RecordID})
		s.Require().NoError(err)
		s.Empty(grants)
		requests, err := s.service.ListRequests(ctx, models.RequestFilter{RecordID: rec.RecordID})
		s.Require().NoError(err)
		s.Empty(requests)
	})

	s.Run("active orgs proceed", func() {
		_, err := s.service.RequestAccess(ctx, rec.RecordID, granteeOrg, "care", 30)
		s.Require().NoError(err)
		_, err = s.service.GrantAccess(ctx, rec.RecordID, ownerOrg, granteeOrg, "care", 30)
		s.Require().NoError(err)
	})
}
