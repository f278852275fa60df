// Package service implements the consent ledger: records, access requests
// and grants, and the key hand-off a grant authorizes.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"medblock/internal/audit"
	"medblock/internal/consent/models"
	"medblock/internal/ledger"
	"medblock/internal/platform/metrics"
	dErrors "medblock/pkg/domain-errors"
	"medblock/pkg/platform/sentinel"
)

// Store persists consent state. Uniqueness of pending requests per
// (record, requester) and active grants per (record, grantee) is enforced by
// the store and reported as sentinel.ErrConflict.
type Store interface {
	CreateRecord(ctx context.Context, rec *models.Record) error
	FindRecord(ctx context.Context, recordID string) (*models.Record, error)
	ListRecordsByOwner(ctx context.Context, ownerID string) ([]*models.Record, error)
	UpdateRecordStatus(ctx context.Context, recordID string, status models.RecordStatus, at time.Time) error

	CreateRequest(ctx context.Context, req *models.AccessRequest) error
	FindRequest(ctx context.Context, requestID string) (*models.AccessRequest, error)
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

// ConsentStoreTx provides a transactional boundary for multi-step mutations.
// Implementations may wrap a database transaction or, in memory, a lock.
type ConsentStoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

// KeyWrapper wraps data keys to principals.
type KeyWrapper interface {
	Unwrap(ctx context.Context, blob []byte, principalID string) ([]byte, error)
	Rewrap(ctx context.Context, key []byte, principalID string) ([]byte, error)
}

// AuditRecorder never fails the caller.
type AuditRecorder interface {
	Record(ctx context.Context, recordID, actorID string, action audit.Action, targetID string, details map[string]any)
}

// OrgDirectory reports CodeNotFound for organizations that are unknown or
// not active.
type OrgDirectory interface {
	RequireActive(ctx context.Context, orgID string) error
}

// Service orchestrates consent transitions. Its own store is authoritative;
// the ledger is a best-effort mirror.
type Service struct {
	store   Store
	tx      ConsentStoreTx
	keys    KeyWrapper
	ledger  ledger.Client
	audit   AuditRecorder
	orgs    OrgDirectory
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Service)

func WithLedger(c ledger.Client) Option {
	return func(s *Service) {
		if c != nil {
			s.ledger = c
		}
	}
}

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

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithOrgDirectory makes RequestAccess and GrantAccess reject organizations
// the directory does not list as active.
func WithOrgDirectory(d OrgDirectory) Option {
	return func(s *Service) {
		s.orgs = d
	}
}

// WithTx overrides the transaction runner. Without it, a sharded in-memory
// lock over store is used.
func WithTx(tx ConsentStoreTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func New(store Store, keys KeyWrapper, opts ...Option) *Service {
	s := &Service{
		store:  store,
		keys:   keys,
		ledger: ledger.Noop{},
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = NewShardedTx(store)
	}
	return s
}

func (s *Service) record(ctx context.Context, recordID, actorID string, action audit.Action, targetID string, details map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, recordID, actorID, action, targetID, details)
}

// mirror submits txn to the ledger and absorbs any failure.
func (s *Service) mirror(ctx context.Context, txn ledger.Transaction) {
	if err := s.ledger.Submit(ctx, txn); err != nil {
		s.logger.WarnContext(ctx, "ledger mirror failed",
			"ledger", s.ledger.Name(),
			"transaction", txn.Name,
			"record_id", txn.RecordID(),
			"error", err,
		)
		s.metrics.IncLedgerFailure(txn.Name)
	}
}

func (s *Service) observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
	}
	s.metrics.IncConsentOp(op, outcome)
}

// translate maps store sentinels onto domain errors. Errors that are already
// coded pass through.
func translate(err error, notFound, conflict string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, notFound)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, conflict)
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInvalidOperation, "operation not allowed in current state")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "operation timed out")
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "consent store failure")
}

// requireOrg is a no-op without a directory.
func (s *Service) requireOrg(ctx context.Context, orgID string) error {
	if s.orgs == nil {
		return nil
	}
	return s.orgs.RequireActive(ctx, orgID)
}
