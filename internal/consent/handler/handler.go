package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"medblock/internal/audit"
	"medblock/internal/consent/models"
	orgmodels "medblock/internal/org/models"
	"medblock/internal/platform/middleware"
	"medblock/internal/records"
	"medblock/internal/rewrap"
	dErrors "medblock/pkg/domain-errors"
	"medblock/pkg/platform/httputil"
)

// ConsentService is the consent ledger as seen by HTTP callers.
type ConsentService interface {
	GetRecord(ctx context.Context, recordID, callerID string) (*models.Record, error)
	ListRecords(ctx context.Context, ownerID string) ([]*models.Record, error)
	ArchiveRecord(ctx context.Context, recordID, ownerID string) error
	ListSharedWithMe(ctx context.Context, granteeID string) ([]models.SharedRecord, error)
	RequestAccess(ctx context.Context, recordID, requesterID, purpose string, expiryDays int) (*models.AccessRequest, error)
	GrantAccess(ctx context.Context, recordID, ownerID, granteeID, purpose string, expiryDays int) (*models.AccessGrant, error)
	RevokeAccess(ctx context.Context, recordID, ownerID, granteeID string) (*models.AccessGrant, error)
	DenyRequest(ctx context.Context, requestID, ownerID, message string) (*models.AccessRequest, error)
	CancelRequest(ctx context.Context, requestID, requesterID string) (*models.AccessRequest, error)
	ListRequests(ctx context.Context, f models.RequestFilter) ([]*models.AccessRequest, error)
	ListGrants(ctx context.Context, f models.GrantFilter) ([]*models.AccessGrant, error)
	ResolveGranteeKey(ctx context.Context, recordID, granteeID string) (*models.GranteeKey, error)
	HasAccess(ctx context.Context, recordID, granteeID string) (bool, error)
	ExpireGrants(ctx context.Context) (int, error)
}

type RecordService interface {
	Upload(ctx context.Context, in records.UploadInput) (*models.Record, error)
	Download(ctx context.Context, recordID, callerID string) ([]byte, *models.Record, error)
}

type AuditReader interface {
	ListByRecord(ctx context.Context, recordID string, limit int) ([]audit.Entry, error)
	ListByActor(ctx context.Context, actorID string, limit int) ([]audit.Entry, error)
}

// KeyLookup serves keys distributed by the re-wrap dispatcher.
type KeyLookup interface {
	Key(ctx context.Context, recordID, granteeID string) (*rewrap.WrappedKey, error)
}

// OrgDirectory lists the organizations callers can share records with.
type OrgDirectory interface {
	ListActive(ctx context.Context) ([]orgmodels.Summary, error)
}

// Services groups the collaborators behind the HTTP surface. Orgs is
// optional; without it /api/organizations is not mounted.
type Services struct {
	Consent ConsentService
	Records RecordService
	Audit   AuditReader
	Keys    KeyLookup
	Orgs    OrgDirectory
}

type Handler struct {
	logger       *slog.Logger
	svc          Services
	latency      middleware.LatencyObserver
	jwtValidator middleware.JWTValidator
	adminToken   string
	timeout      time.Duration
}

type Option func(*Handler)

// WithAdminToken enables /admin routes guarded by X-Admin-Token.
func WithAdminToken(token string) Option {
	return func(h *Handler) {
		h.adminToken = token
	}
}

func WithLatencyObserver(l middleware.LatencyObserver) Option {
	return func(h *Handler) {
		h.latency = l
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.timeout = d
	}
}

func New(svc Services, logger *slog.Logger, jwtValidator middleware.JWTValidator, opts ...Option) *Handler {
	h := &Handler{
		logger:       logger,
		svc:          svc,
		jwtValidator: jwtValidator,
		timeout:      30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the API under /api and operator routes under /admin. The
// organization directory is public; every other /api route needs a token.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequestID)
		r.Use(middleware.RequestTime)
		r.Use(middleware.ClientMetadata)
		r.Use(middleware.AccessLog(h.logger, h.latency))
		r.Use(middleware.Recover(h.logger))
		r.Use(chimw.Timeout(h.timeout))

		r.Route("/api", func(r chi.Router) {
			if h.svc.Orgs != nil {
				r.Get("/organizations", h.handleListOrganizations)
			}

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

				r.Get("/records", h.handleListRecords)
				r.Post("/records", h.handleUpload)
				r.Get("/records/{id}", h.handleGetRecord)
				r.Get("/records/{id}/content", h.handleDownload)
				r.Post("/records/{id}/archive", h.handleArchive)
				r.Get("/shared-records", h.handleSharedRecords)

				r.Post("/access/request", h.handleRequestAccess)
				r.Post("/access/grant", h.handleGrantAccess)
				r.Post("/access/revoke", h.handleRevokeAccess)
				r.Post("/access/deny", h.handleDenyRequest)
				r.Post("/access/cancel", h.handleCancelRequest)
				r.Get("/access/requests", h.handleListRequests)
				r.Get("/access/grants", h.handleListGrants)
				r.Get("/access/key/{recordId}", h.handleResolveKey)

				r.Get("/audit", h.handleAudit)
				r.Get("/keys/{recordId}", h.handleDistributedKey)
			})
		})

		if h.adminToken != "" {
			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireAdminToken(h.adminToken, h.logger))
				r.Post("/expire-grants", h.handleExpireGrants)
			})
		}
	})
}

// fail logs err at a level matching its code and writes the error response.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	attrs := []any{
		"op", op,
		"error", err,
		"request_id", middleware.GetRequestID(ctx),
		"org_id", middleware.GetOrgID(r),
	}
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "request failed", attrs...)
	} else {
		h.logger.WarnContext(ctx, "request rejected", attrs...)
	}
	httputil.WriteError(w, err)
}

func (h *Handler) handleExpireGrants(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Consent.ExpireGrants(r.Context())
	if err != nil {
		h.fail(w, r, "expire_grants", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"expired": n})
}
