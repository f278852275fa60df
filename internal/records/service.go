// Package records encrypts payloads into blob storage and decrypts them for
// the owner or a current grantee.
package records

import (
	"context"
	"log/slog"
	"time"

	"medblock/internal/audit"
	"medblock/internal/blob"
	"medblock/internal/consent/models"
	consentservice "medblock/internal/consent/service"
	"medblock/internal/envelope"
	dErrors "medblock/pkg/domain-errors"
)

// ConsentService is the subset of the consent ledger the records service
// drives.
type ConsentService interface {
	CreateRecord(ctx context.Context, in consentservice.CreateRecordInput) (*models.Record, error)
	FindRecord(ctx context.Context, recordID string) (*models.Record, error)
	ResolveGranteeKey(ctx context.Context, recordID, granteeID string) (*models.GranteeKey, error)
}

type KeyWrapper interface {
	Wrap(ctx context.Context, key []byte, principalID string) ([]byte, error)
	Unwrap(ctx context.Context, blob []byte, principalID string) ([]byte, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, recordID, actorID string, action audit.Action, targetID string, details map[string]any)
}

const cleanupTimeout = 5 * time.Second

var ErrIntegrity = dErrors.New(dErrors.CodeCrypto, "ciphertext hash mismatch")

type Service struct {
	consent ConsentService
	keys    KeyWrapper
	blobs   blob.Store
	audit   AuditRecorder
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithAuditRecorder(r AuditRecorder) Option {
	return func(s *Service) {
		s.audit = r
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(consent ConsentService, keys KeyWrapper, blobs blob.Store, opts ...Option) *Service {
	s := &Service{
		consent: consent,
		keys:    keys,
		blobs:   blobs,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type UploadInput struct {
	OwnerID   string
	PolicyID  string
	PatientID string
	Payload   []byte
}

// ObjectKey is where a record's ciphertext lives in the blob store.
func ObjectKey(recordID string) string {
	return "records/" + recordID + ".enc"
}

// Upload encrypts the payload under a fresh data key, stores the ciphertext
// and registers the record with the key wrapped to the owner.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*models.Record, error) {
	if in.OwnerID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "ownerId is required")
	}
	if len(in.Payload) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "payload is empty")
	}

	dek, err := envelope.GenerateKey()
	if err != nil {
		return nil, err
	}
	defer envelope.Zero(dek)

	sealed, err := envelope.Encrypt(in.Payload, dek)
	if err != nil {
		return nil, err
	}
	ciphertext := sealed.Blob()

	wrapped, err := s.keys.Wrap(ctx, dek, in.OwnerID)
	if err != nil {
		return nil, err
	}

	recordID := models.NewRecordID(s.now())
	pointer, err := s.blobs.Put(ctx, ObjectKey(recordID), ciphertext)
	if err != nil {
		return nil, err
	}

	rec, err := s.consent.CreateRecord(ctx, consentservice.CreateRecordInput{
		RecordID:       recordID,
		OwnerID:        in.OwnerID,
		PatientID:      in.PatientID,
		StoragePointer: pointer,
		CiphertextHash: envelope.Digest(ciphertext),
		WrappedDEK:     wrapped,
		IV:             sealed.IV,
		PolicyID:       in.PolicyID,
	})
	if err != nil {
		s.discardBlob(ctx, recordID, pointer)
		return nil, err
	}
	s.logger.InfoContext(ctx, "record uploaded",
		"record_id", rec.RecordID,
		"owner_id", rec.OwnerID,
		"size", len(in.Payload),
	)
	return rec, nil
}

// discardBlob removes the ciphertext of a record that was never registered.
func (s *Service) discardBlob(ctx context.Context, recordID, pointer string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := s.blobs.Delete(ctx, pointer); err != nil {
		s.logger.WarnContext(ctx, "orphaned record blob",
			"record_id", recordID,
			"pointer", pointer,
			"error", err,
		)
	}
}

// Download returns the plaintext to the owner or to a grantee whose grant is
// usable now. The stored ciphertext is checked against the recorded hash
// before decryption.
func (s *Service) Download(ctx context.Context, recordID, callerID string) ([]byte, *models.Record, error) {
	rec, err := s.consent.FindRecord(ctx, recordID)
	if err != nil {
		return nil, nil, err
	}

	wrapped, iv := rec.WrappedDEK, rec.IV
	if rec.OwnerID != callerID {
		key, err := s.consent.ResolveGranteeKey(ctx, recordID, callerID)
		if err != nil {
			return nil, nil, err
		}
		wrapped, iv = key.WrappedDEK, key.IV
	}

	dek, err := s.keys.Unwrap(ctx, wrapped, callerID)
	if err != nil {
		return nil, nil, err
	}
	defer envelope.Zero(dek)

	data, err := s.blobs.Get(ctx, rec.StoragePointer)
	if err != nil {
		return nil, nil, err
	}
	if envelope.Digest(data) != rec.CiphertextHash {
		s.logger.ErrorContext(ctx, "ciphertext hash mismatch", "record_id", recordID)
		return nil, nil, ErrIntegrity
	}

	ciphertext, tag, err := envelope.SplitBlob(data)
	if err != nil {
		return nil, nil, err
	}
	plaintext, err := envelope.Decrypt(ciphertext, dek, iv, tag)
	if err != nil {
		return nil, nil, err
	}

	if s.audit != nil {
		s.audit.Record(ctx, recordID, callerID, audit.ActionDownload, "", map[string]any{
			"size": len(plaintext),
		})
	}
	return plaintext, rec, nil
}
