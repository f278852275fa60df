package records

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"medblock/internal/audit"
	auditstore "medblock/internal/audit/store"
	"medblock/internal/blob"
	"medblock/internal/consent/models"
	consentservice "medblock/internal/consent/service"
	consentstore "medblock/internal/consent/store"
	"medblock/internal/keywrap"
	"medblock/internal/keywrap/keystore"
	"medblock/internal/platform/logger"
	dErrors "medblock/pkg/domain-errors"
)

type RecordsSuite struct {
	suite.Suite
	blobs      *blob.InMemory
	auditStore *auditstore.InMemory
	consent    *consentservice.Service
	service    *Service
	now        time.Time
}

func TestRecordsSuite(t *testing.T) {
	suite.Run(t, new(RecordsSuite))
}

func (s *RecordsSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }
	keys := keywrap.NewProvider(keywrap.NewLocal(keystore.NewInMemory(), keywrap.WithKeyBits(1024)))
	s.blobs = blob.NewInMemory("records")
	s.auditStore = auditstore.NewInMemory()
	sink := audit.NewSink(s.auditStore)

	s.consent = consentservice.New(consentstore.NewInMemory(), keys,
		consentservice.WithAuditRecorder(sink),
		consentservice.WithLogger(logger.Discard()),
		consentservice.WithClock(clock),
	)
	s.service = New(s.consent, keys, s.blobs,
		WithAuditRecorder(sink),
		WithLogger(logger.Discard()),
		WithClock(clock),
	)
}

func (s *RecordsSuite) upload() string {
	rec, err := s.service.Upload(context.Background(), UploadInput{
		OwnerID:   "hospital-a",
		PatientID: "patient-7",
		Payload:   []byte(`{"diagnosis":"fracture"}`),
	})
	s.Require().NoError(err)
	return rec.RecordID
}

func (s *RecordsSuite) TestOwnerRoundTrip() {
	ctx := context.Background()
	recordID := s.upload()

	rec, err := s.consent.FindRecord(ctx, recordID)
	s.Require().NoError(err)
	s.Equal("mem://records/"+ObjectKey(recordID), rec.StoragePointer)
	s.Len(rec.CiphertextHash, 64)

	plaintext, _, err := s.service.Download(ctx, recordID, "hospital-a")
	s.Require().NoError(err)
	s.Equal(`{"diagnosis":"fracture"}`, string(plaintext))

	entries, err := s.auditStore.ListByRecord(ctx, recordID, 10)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(audit.ActionDownload, entries[0].Action)
	s.Equal(audit.ActionCreate, entries[1].Action)
}

func (s *RecordsSuite) TestGranteeDownload() {
	ctx := context.Background()
	recordID := s.upload()

	_, _, err := s.service.Download(ctx, recordID, "hospital-b")
	s.True(dErrors.HasCode(err, dErrors.CodeAccessDenied))

	_, err = s.consent.GrantAccess(ctx, recordID, "hospital-a", "hospital-b", "treatment", 1)
	s.Require().NoError(err)

	plaintext, _, err := s.service.Download(ctx, recordID, "hospital-b")
	s.Require().NoError(err)
	s.Equal(`{"diagnosis":"fracture"}`, string(plaintext))

	s.now = s.now.Add(25 * time.Hour)
	_, _, err = s.service.Download(ctx, recordID, "hospital-b")
	s.True(dErrors.HasCode(err, dErrors.CodeAccessDenied))
}

func (s *RecordsSuite) TestTamperedCiphertext() {
	ctx := context.Background()
	recordID := s.upload()

	_, err := s.blobs.Put(ctx, ObjectKey(recordID), []byte("tampered ciphertext with tag...."))
	s.Require().NoError(err)

	_, _, err = s.service.Download(ctx, recordID, "hospital-a")
	s.ErrorIs(err, ErrIntegrity)
}

type failingWrapper struct {
	KeyWrapper
}

func (failingWrapper) Wrap(context.Context, []byte, string) ([]byte, error) {
	return nil, dErrors.New(dErrors.CodeDependencyUnavailable, "kms down")
}

type failingConsent struct {
	ConsentService
}

func (failingConsent) CreateRecord(context.Context, consentservice.CreateRecordInput) (*models.Record, error) {
	return nil, dErrors.New(dErrors.CodeInternal, "store down")
}

func (s *RecordsSuite) TestUploadLeavesNoBlobOnFailure() {
	ctx := context.Background()
	in := UploadInput{OwnerID: "hospital-a", Payload: []byte("chart")}

	s.Run("wrap failure stores nothing", func() {
		svc := New(s.consent, failingWrapper{}, s.blobs, WithLogger(logger.Discard()))
		_, err := svc.Upload(ctx, in)
		s.True(dErrors.HasCode(err, dErrors.CodeDependencyUnavailable))
		s.Zero(s.blobs.Len())
	})

	s.Run("registration failure removes the blob", func() {
		keys := keywrap.NewProvider(keywrap.NewLocal(keystore.NewInMemory(), keywrap.WithKeyBits(1024)))
		svc := New(failingConsent{ConsentService: s.consent}, keys, s.blobs, WithLogger(logger.Discard()))
		_, err := svc.Upload(ctx, in)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
		s.Zero(s.blobs.Len())
	})

	s.Run("successful upload keeps the blob", func() {
		s.upload()
		s.Equal(1, s.blobs.Len())
	})
}

func (s *RecordsSuite) TestUploadValidation() {
	_, err := s.service.Upload(context.Background(), UploadInput{OwnerID: "hospital-a"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, _, err = s.service.Download(context.Background(), "record_missing", "hospital-a")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
