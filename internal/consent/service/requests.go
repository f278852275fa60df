package service

import (
	"context"
	"strings"

	"medblock/internal/audit"
	"medblock/internal/consent/models"
	"medblock/internal/ledger"
	dErrors "medblock/pkg/domain-errors"
)

// RequestAccess opens a pending request from requesterID to the record's
// owner. expiryDays of zero means the default.
func (s *Service) RequestAccess(ctx context.Context, recordID, requesterID, purpose string, expiryDays int) (req *models.AccessRequest, err error) {
	ctx, span := startSpan(ctx, "request_access", recordID)
	defer func() {
		s.observe("request_access", err)
		endSpan(span, err)
	}()

	switch {
	case recordID == "":
		return nil, dErrors.New(dErrors.CodeValidation, "recordId is required")
	case requesterID == "":
		return nil, dErrors.New(dErrors.CodeValidation, "requesterId is required")
	case strings.TrimSpace(purpose) == "":
		return nil, dErrors.New(dErrors.CodeValidation, "purpose is required")
	case !models.ValidExpiryDays(expiryDays):
		return nil, dErrors.New(dErrors.CodeValidation, "expiryDays out of range")
	}
	if expiryDays == 0 {
		expiryDays = models.DefaultExpiryDays
	}
	if err := s.requireOrg(ctx, requesterID); err != nil {
		return nil, err
	}

	rec, err := s.FindRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID == requesterID {
		return nil, dErrors.New(dErrors.CodeInvalidOperation, "cannot request access to own record")
	}
	if rec.Status != models.RecordActive {
		return nil, dErrors.New(dErrors.CodeInvalidOperation, "record is not active")
	}

	now := s.now()
	req = &models.AccessRequest{
		RequestID:   models.NewRequestID(now),
		RecordID:    recordID,
		OwnerID:     rec.OwnerID,
		RequesterID: requesterID,
		Purpose:     purpose,
		Status:      models.RequestPending,
		ExpiryDays:  expiryDays,
		RequestedAt: now,
	}
	if err := s.store.CreateRequest(ctx, req); err != nil {
		return nil, translate(err, "record not found", "access request already pending")
	}

	s.record(ctx, recordID, requesterID, audit.ActionRequestAccess, rec.OwnerID, map[string]any{
		"requestId":  req.RequestID,
		"purpose":    purpose,
		"expiryDays": expiryDays,
	})
	s.mirror(ctx, ledger.RequestAccess(recordID, requesterID, purpose, req.RequestID))
	return req, nil
}

// DenyRequest closes a pending request without granting access. Only the
// record owner may deny.
func (s *Service) DenyRequest(ctx context.Context, requestID, ownerID, message string) (req *models.AccessRequest, err error) {
	ctx, span := startSpan(ctx, "deny_request", "")
	defer func() {
		s.observe("deny_request", err)
		endSpan(span, err)
	}()

	existing, err := s.findRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if existing.OwnerID != ownerID {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "only the record owner can deny a request")
	}
	req, err = s.store.TransitionRequest(ctx, requestID, models.RequestDenied, s.now(), message)
	if err != nil {
		return nil, translate(err, "access request not found", "")
	}
	s.record(ctx, req.RecordID, ownerID, audit.ActionDenyAccess, req.RequesterID, map[string]any{
		"requestId": req.RequestID,
		"message":   message,
	})
	return req, nil
}

// CancelRequest withdraws a pending request. Only the requester may cancel.
func (s *Service) CancelRequest(ctx context.Context, requestID, requesterID string) (req *models.AccessRequest, err error) {
	ctx, span := startSpan(ctx, "cancel_request", "")
	defer func() {
		s.observe("cancel_request", err)
		endSpan(span, err)
	}()

	existing, err := s.findRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if existing.RequesterID != requesterID {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "only the requester can cancel a request")
	}
	req, err = s.store.TransitionRequest(ctx, requestID, models.RequestCancelled, s.now(), "")
	if err != nil {
		return nil, translate(err, "access request not found", "")
	}
	s.record(ctx, req.RecordID, requesterID, audit.ActionUpdate, req.OwnerID, map[string]any{
		"requestId": req.RequestID,
		"status":    string(models.RequestCancelled),
	})
	return req, nil
}

func (s *Service) ListRequests(ctx context.Context, f models.RequestFilter) ([]*models.AccessRequest, error) {
	reqs, err := s.store.ListRequests(ctx, f)
	if err != nil {
		return nil, translate(err, "", "")
	}
	return reqs, nil
}

func (s *Service) findRequest(ctx context.Context, requestID string) (*models.AccessRequest, error) {
	if requestID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "requestId is required")
	}
	req, err := s.store.FindRequest(ctx, requestID)
	if err != nil {
		return nil, translate(err, "access request not found", "")
	}
	return req, nil
}
