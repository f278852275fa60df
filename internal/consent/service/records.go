package service

import (
	"context"
	"strings"

	"medblock/internal/audit"
	"medblock/internal/consent/models"
	"medblock/internal/ledger"
	dErrors "medblock/pkg/domain-errors"
)

// CreateRecordInput describes an already-encrypted record. RecordID is
// generated when empty.
type CreateRecordInput struct {
	RecordID       string
	OwnerID        string
	PatientID      string
	StoragePointer string
	CiphertextHash string
	WrappedDEK     []byte
	IV             []byte
	PolicyID       string
}

func (in CreateRecordInput) validate() error {
	switch {
	case strings.TrimSpace(in.OwnerID) == "":
		return dErrors.New(dErrors.CodeValidation, "ownerId is required")
	case strings.TrimSpace(in.StoragePointer) == "":
		return dErrors.New(dErrors.CodeValidation, "storagePointer is required")
	case strings.TrimSpace(in.CiphertextHash) == "":
		return dErrors.New(dErrors.CodeValidation, "ciphertextHash is required")
	case len(in.WrappedDEK) == 0:
		return dErrors.New(dErrors.CodeValidation, "wrappedDEK is required")
	case len(in.IV) == 0:
		return dErrors.New(dErrors.CodeValidation, "iv is required")
	}
	return nil
}

// CreateRecord registers record metadata. The wrapped key and IV are fixed
// for the life of the record.
func (s *Service) CreateRecord(ctx context.Context, in CreateRecordInput) (rec *models.Record, err error) {
	ctx, span := startSpan(ctx, "create_record", in.RecordID)
	defer func() {
		s.observe("create_record", err)
		endSpan(span, err)
	}()

	if err := in.validate(); err != nil {
		return nil, err
	}
	now := s.now()
	if in.RecordID == "" {
		in.RecordID = models.NewRecordID(now)
	}
	if in.PolicyID == "" {
		in.PolicyID = "default"
	}
	rec = &models.Record{
		RecordID:       in.RecordID,
		OwnerID:        in.OwnerID,
		PatientID:      in.PatientID,
		StoragePointer: in.StoragePointer,
		CiphertextHash: in.CiphertextHash,
		WrappedDEK:     append([]byte(nil), in.WrappedDEK...),
		IV:             append([]byte(nil), in.IV...),
		PolicyID:       in.PolicyID,
		Status:         models.RecordActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateRecord(ctx, rec); err != nil {
		return nil, translate(err, "record not found", "record already exists")
	}

	s.record(ctx, rec.RecordID, rec.OwnerID, audit.ActionCreate, "", map[string]any{
		"storagePointer": rec.StoragePointer,
		"ciphertextHash": rec.CiphertextHash,
		"policyId":       rec.PolicyID,
	})
	s.mirror(ctx, ledger.CreateRecord(rec.RecordID, rec.OwnerID, rec.StoragePointer, rec.CiphertextHash, rec.PolicyID))
	return rec, nil
}

// FindRecord loads a record without any access check. It is for internal
// callers such as the upload path and the re-wrap dispatcher.
func (s *Service) FindRecord(ctx context.Context, recordID string) (*models.Record, error) {
	rec, err := s.store.FindRecord(ctx, recordID)
	if err != nil {
		return nil, translate(err, "record not found", "")
	}
	return rec, nil
}

// GetRecord returns record metadata to its owner or to a holder of a usable
// grant.
func (s *Service) GetRecord(ctx context.Context, recordID, callerID string) (*models.Record, error) {
	rec, err := s.FindRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID == callerID {
		return rec, nil
	}
	ok, err := s.HasAccess(ctx, recordID, callerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, dErrors.New(dErrors.CodeAccessDenied, "no active access grant")
	}
	return rec, nil
}

func (s *Service) ListRecords(ctx context.Context, ownerID string) ([]*models.Record, error) {
	if ownerID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "ownerId is required")
	}
	recs, err := s.store.ListRecordsByOwner(ctx, ownerID)
	if err != nil {
		return nil, translate(err, "", "")
	}
	return recs, nil
}

// ArchiveRecord retires an active record. Existing grants stay as they are;
// new requests and grants are refused.
func (s *Service) ArchiveRecord(ctx context.Context, recordID, ownerID string) (err error) {
	ctx, span := startSpan(ctx, "archive_record", recordID)
	defer func() {
		s.observe("archive_record", err)
		endSpan(span, err)
	}()

	rec, err := s.FindRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if rec.OwnerID != ownerID {
		return dErrors.New(dErrors.CodeUnauthorized, "only the record owner can archive it")
	}
	if rec.Status != models.RecordActive {
		return dErrors.New(dErrors.CodeInvalidOperation, "record is not active")
	}
	if err := s.store.UpdateRecordStatus(ctx, recordID, models.RecordArchived, s.now()); err != nil {
		return translate(err, "record not found", "")
	}
	s.record(ctx, recordID, ownerID, audit.ActionUpdate, "", map[string]any{
		"status": string(models.RecordArchived),
	})
	return nil
}
