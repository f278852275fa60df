// Package service manages the organization directory and answers whether an
// organization may take part in consent flows.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"medblock/internal/org/models"
	dErrors "medblock/pkg/domain-errors"
	"medblock/pkg/platform/sentinel"
)

type Store interface {
	Create(ctx context.Context, org *models.Organization) error
	FindByID(ctx context.Context, orgID string) (*models.Organization, error)
	ListActive(ctx context.Context) ([]*models.Organization, error)
	UpdateStatus(ctx context.Context, orgID string, status models.Status, at time.Time) error
}

type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

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

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds an organization to the directory.
func (s *Service) Register(ctx context.Context, orgID, name string, typ models.Type, email string) (*models.Organization, error) {
	org, err := models.NewOrganization(strings.TrimSpace(orgID), strings.TrimSpace(name), typ, strings.TrimSpace(email), s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, org); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "organization already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register organization")
	}
	s.logger.InfoContext(ctx, "organization registered", "org_id", org.OrgID, "type", string(org.Type))
	return org, nil
}

// ListActive returns the public view of active organizations sorted by name.
func (s *Service) ListActive(ctx context.Context) ([]models.Summary, error) {
	orgs, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list organizations")
	}
	out := make([]models.Summary, 0, len(orgs))
	for _, org := range orgs {
		out = append(out, org.Summary())
	}
	return out, nil
}

// RequireActive returns CodeNotFound unless orgID names an active
// organization. Inactive and suspended organizations are indistinguishable
// from unknown ones to callers.
func (s *Service) RequireActive(ctx context.Context, orgID string) error {
	org, err := s.store.FindByID(ctx, orgID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("organization %q not found", orgID))
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up organization")
	}
	if !org.IsActive() {
		return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("organization %q not found", orgID))
	}
	return nil
}

// SetStatus moves an organization between active, inactive and suspended.
func (s *Service) SetStatus(ctx context.Context, orgID string, status models.Status) error {
	if !status.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown organization status")
	}
	err := s.store.UpdateStatus(ctx, orgID, status, s.now())
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("organization %q not found", orgID))
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update organization")
	}
	s.logger.InfoContext(ctx, "organization status changed", "org_id", orgID, "status", string(status))
	return nil
}
