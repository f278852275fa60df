package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"medblock/internal/audit"
	"medblock/internal/consent/models"
	"medblock/internal/envelope"
	"medblock/internal/ledger"
	dErrors "medblock/pkg/domain-errors"
	"medblock/pkg/platform/sentinel"
)

// GrantAccess hands the record's data key to granteeID for expiryDays.
//
// The owner's wrapped key is unwrapped and re-wrapped to the grantee, then the
// grant is inserted and any matching pending request approved in one
// transaction. A zero expiryDays takes the pending request's value, or the
// default when there is none. An empty purpose likewise falls back to the
// request's purpose.
func (s *Service) GrantAccess(ctx context.Context, recordID, ownerID, granteeID, purpose string, expiryDays int) (grant *models.AccessGrant, err error) {
	ctx, span := startSpan(ctx, "grant_access", recordID)
	defer func() {
		s.observe("grant_access", err)
		endSpan(span, err)
	}()

	switch {
	case recordID == "":
		return nil, dErrors.New(dErrors.CodeValidation, "recordId is required")
	case ownerID == "":
		return nil, dErrors.New(dErrors.CodeValidation, "ownerId is required")
	case granteeID == "":
		return nil, dErrors.New(dErrors.CodeValidation, "granteeId is required")
	case !models.ValidExpiryDays(expiryDays):
		return nil, dErrors.New(dErrors.CodeValidation, "expiryDays out of range")
	}
	if err := s.requireOrg(ctx, granteeID); err != nil {
		return nil, err
	}

	rec, err := s.FindRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != ownerID {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "record not owned by caller")
	}
	if granteeID == ownerID {
		return nil, dErrors.New(dErrors.CodeInvalidOperation, "cannot grant access to the record owner")
	}
	if rec.Status != models.RecordActive {
		return nil, dErrors.New(dErrors.CodeInvalidOperation, "record is not active")
	}

	now := s.now()
	if existing, err := s.store.FindActiveGrant(ctx, recordID, granteeID); err == nil {
		if existing.Usable(now) {
			return nil, dErrors.New(dErrors.CodeConflict, "active grant already exists for this grantee")
		}
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, translate(err, "", "")
	}

	if expiryDays == 0 || strings.TrimSpace(purpose) == "" {
		pending, err := s.pendingRequest(ctx, recordID, granteeID)
		if err != nil {
			return nil, err
		}
		if pending != nil {
			if expiryDays == 0 {
				expiryDays = pending.ExpiryDays
			}
			if strings.TrimSpace(purpose) == "" {
				purpose = pending.Purpose
			}
		}
	}
	if strings.TrimSpace(purpose) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "purpose is required")
	}
	if expiryDays == 0 {
		expiryDays = models.DefaultExpiryDays
	}

	wrapped, err := s.rewrapFor(ctx, rec, granteeID)
	if err != nil {
		return nil, err
	}

	grant = &models.AccessGrant{
		GrantID:              models.NewGrantID(now),
		RecordID:             recordID,
		OwnerID:              ownerID,
		GranteeID:            granteeID,
		Purpose:              purpose,
		WrappedDEKForGrantee: wrapped,
		Status:               models.GrantActive,
		ExpiryDate:           models.ExpiryFromDays(now, expiryDays),
		GrantedAt:            now,
	}

	var approved bool
	err = s.tx.RunInTx(WithTxRecord(ctx, recordID), func(ctx context.Context, st Store) error {
		// A stale active row past its expiry would otherwise block the insert.
		if _, err := st.ExpireGrants(ctx, models.GrantFilter{RecordID: recordID, GranteeID: granteeID}, now); err != nil {
			return err
		}
		if err := st.CreateGrant(ctx, grant); err != nil {
			return err
		}
		approved, err = st.ApprovePendingRequest(ctx, recordID, granteeID, now)
		return err
	})
	if err != nil {
		return nil, translate(err, "record not found", "active grant already exists for this grantee")
	}

	s.record(ctx, recordID, ownerID, audit.ActionGrantAccess, granteeID, map[string]any{
		"grantId":         grant.GrantID,
		"purpose":         purpose,
		"expiryDays":      expiryDays,
		"requestApproved": approved,
	})
	s.mirror(ctx, ledger.GrantAccess(recordID, granteeID, purpose, grant.ExpiryDate.UTC().Format(time.RFC3339), grant.GrantID))
	return grant, nil
}

// rewrapFor unwraps the owner's copy of the data key and wraps it to
// granteeID. The plaintext key is zeroed before returning.
func (s *Service) rewrapFor(ctx context.Context, rec *models.Record, granteeID string) ([]byte, error) {
	dek, err := s.keys.Unwrap(ctx, rec.WrappedDEK, rec.OwnerID)
	if err != nil {
		return nil, keyError(err, "unwrap owner key")
	}
	defer envelope.Zero(dek)

	wrapped, err := s.keys.Rewrap(ctx, dek, granteeID)
	if err != nil {
		return nil, keyError(err, "wrap key for grantee")
	}
	return wrapped, nil
}

func keyError(err error, msg string) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeCrypto, msg)
}

func (s *Service) pendingRequest(ctx context.Context, recordID, requesterID string) (*models.AccessRequest, error) {
	reqs, err := s.store.ListRequests(ctx, models.RequestFilter{
		RecordID:    recordID,
		RequesterID: requesterID,
		Statuses:    []models.RequestStatus{models.RequestPending},
	})
	if err != nil {
		return nil, translate(err, "", "")
	}
	if len(reqs) == 0 {
		return nil, nil
	}
	return reqs[0], nil
}

// RevokeAccess ends granteeID's active grant on the record. A grant that was
// already revoked is reported as not found.
func (s *Service) RevokeAccess(ctx context.Context, recordID, ownerID, granteeID string) (grant *models.AccessGrant, err error) {
	ctx, span := startSpan(ctx, "revoke_access", recordID)
	defer func() {
		s.observe("revoke_access", err)
		endSpan(span, err)
	}()

	if granteeID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "granteeId is required")
	}
	rec, err := s.FindRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != ownerID {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "record not owned by caller")
	}

	grant, err = s.store.RevokeActiveGrant(ctx, recordID, granteeID, s.now())
	if err != nil {
		return nil, translate(err, "active grant not found", "")
	}

	s.record(ctx, recordID, ownerID, audit.ActionRevokeAccess, granteeID, map[string]any{
		"grantId": grant.GrantID,
	})
	s.mirror(ctx, ledger.RevokeAccess(recordID, granteeID, grant.GrantID))
	return grant, nil
}

// ResolveGranteeKey releases the grantee's wrapped copy of the data key.
// The grant must be active and unexpired at the moment of the call; the
// access counter is bumped in the same store operation that checks it.
func (s *Service) ResolveGranteeKey(ctx context.Context, recordID, granteeID string) (key *models.GranteeKey, err error) {
	ctx, span := startSpan(ctx, "resolve_grantee_key", recordID)
	defer func() {
		s.observe("resolve_grantee_key", err)
		endSpan(span, err)
	}()

	denied := dErrors.New(dErrors.CodeAccessDenied, "no active access grant found")

	rec, err := s.store.FindRecord(ctx, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, denied
		}
		return nil, translate(err, "", "")
	}
	if rec.Status == models.RecordRevoked {
		return nil, denied
	}

	grant, err := s.store.RecordGrantAccess(ctx, recordID, granteeID, s.now())
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, denied
		}
		return nil, translate(err, "", "")
	}

	s.record(ctx, recordID, granteeID, audit.ActionView, "", map[string]any{
		"grantId": grant.GrantID,
	})
	s.mirror(ctx, ledger.LogAccess(recordID, granteeID, string(audit.ActionView), envelope.Digest([]byte(grant.GrantID))))
	return &models.GranteeKey{
		GrantID:    grant.GrantID,
		RecordID:   recordID,
		GranteeID:  granteeID,
		WrappedDEK: grant.WrappedDEKForGrantee,
		IV:         rec.IV,
		ExpiryDate: grant.ExpiryDate,
	}, nil
}

// HasAccess reports whether granteeID holds a usable grant on the record.
func (s *Service) HasAccess(ctx context.Context, recordID, granteeID string) (bool, error) {
	grant, err := s.store.FindActiveGrant(ctx, recordID, granteeID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, translate(err, "", "")
	}
	return grant.Usable(s.now()), nil
}

// ListGrants returns grants with their effective status. A status filter is
// applied to the effective status, so "expired" includes grants the sweep
// has not reached yet.
func (s *Service) ListGrants(ctx context.Context, f models.GrantFilter) ([]*models.AccessGrant, error) {
	statuses := f.Statuses
	f.Statuses = nil
	grants, err := s.store.ListGrants(ctx, f)
	if err != nil {
		return nil, translate(err, "", "")
	}
	now := s.now()
	f.Statuses = statuses
	out := make([]*models.AccessGrant, 0, len(grants))
	for _, g := range grants {
		g.Status = g.EffectiveStatus(now)
		if f.Matches(g) {
			out = append(out, g)
		}
	}
	return out, nil
}

// ListSharedWithMe returns records granteeID can currently read.
func (s *Service) ListSharedWithMe(ctx context.Context, granteeID string) ([]models.SharedRecord, error) {
	if granteeID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "granteeId is required")
	}
	grants, err := s.ListGrants(ctx, models.GrantFilter{
		GranteeID: granteeID,
		Statuses:  []models.GrantStatus{models.GrantActive},
	})
	if err != nil {
		return nil, err
	}
	out := make([]models.SharedRecord, 0, len(grants))
	for _, g := range grants {
		rec, err := s.store.FindRecord(ctx, g.RecordID)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, translate(err, "", "")
		}
		if rec.Status == models.RecordRevoked {
			continue
		}
		out = append(out, models.SharedRecord{Record: rec, Grant: g})
	}
	return out, nil
}

// ExpireGrants writes back the expired status for every active grant past
// its expiry date and returns how many changed.
func (s *Service) ExpireGrants(ctx context.Context) (int, error) {
	n, err := s.store.ExpireGrants(ctx, models.GrantFilter{}, s.now())
	if err != nil {
		return 0, translate(err, "", "")
	}
	s.metrics.AddGrantsExpired(n)
	return n, nil
}

// RunExpirySweep calls ExpireGrants every interval until ctx is done.
func (s *Service) RunExpirySweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.ExpireGrants(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "grant expiry sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.InfoContext(ctx, "expired grants", "count", n)
			}
		}
	}
}
