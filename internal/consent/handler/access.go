package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"medblock/internal/consent/models"
	"medblock/internal/platform/middleware"
	dErrors "medblock/pkg/domain-errors"
	"medblock/pkg/platform/httputil"
	mbstrings "medblock/pkg/platform/strings"
)

type requestAccessRequest struct {
	RecordID   string `json:"recordId"`
	Purpose    string `json:"purpose"`
	ExpiryDays int    `json:"expiryDays"`
}

type grantAccessRequest struct {
	RecordID   string `json:"recordId"`
	GranteeID  string `json:"granteeId"`
	Purpose    string `json:"purpose"`
	ExpiryDays int    `json:"expiryDays"`
}

type revokeAccessRequest struct {
	RecordID  string `json:"recordId"`
	GranteeID string `json:"granteeId"`
}

type respondRequest struct {
	RequestID string `json:"requestId"`
	Message   string `json:"message"`
}

func (h *Handler) handleRequestAccess(w http.ResponseWriter, r *http.Request) {
	var req requestAccessRequest
	if !h.decode(w, r, "request_access", &req) {
		return
	}
	out, err := h.svc.Consent.RequestAccess(r.Context(), req.RecordID, middleware.GetOrgID(r), req.Purpose, req.ExpiryDays)
	if err != nil {
		h.fail(w, r, "request_access", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, out)
}

func (h *Handler) handleGrantAccess(w http.ResponseWriter, r *http.Request) {
	var req grantAccessRequest
	if !h.decode(w, r, "grant_access", &req) {
		return
	}
	grant, err := h.svc.Consent.GrantAccess(r.Context(), req.RecordID, middleware.GetOrgID(r), req.GranteeID, req.Purpose, req.ExpiryDays)
	if err != nil {
		h.fail(w, r, "grant_access", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, grant)
}

func (h *Handler) handleRevokeAccess(w http.ResponseWriter, r *http.Request) {
	var req revokeAccessRequest
	if !h.decode(w, r, "revoke_access", &req) {
		return
	}
	grant, err := h.svc.Consent.RevokeAccess(r.Context(), req.RecordID, middleware.GetOrgID(r), req.GranteeID)
	if err != nil {
		h.fail(w, r, "revoke_access", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, grant)
}

func (h *Handler) handleDenyRequest(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if !h.decode(w, r, "deny_request", &req) {
		return
	}
	out, err := h.svc.Consent.DenyRequest(r.Context(), req.RequestID, middleware.GetOrgID(r), req.Message)
	if err != nil {
		h.fail(w, r, "deny_request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if !h.decode(w, r, "cancel_request", &req) {
		return
	}
	out, err := h.svc.Consent.CancelRequest(r.Context(), req.RequestID, middleware.GetOrgID(r))
	if err != nil {
		h.fail(w, r, "cancel_request", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// handleListRequests lists requests the caller owns (role=owner, default)
// or made (role=requester).
func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := models.RequestFilter{RecordID: q.Get("recordId")}
	switch role := q.Get("role"); role {
	case "", "owner":
		f.OwnerID = middleware.GetOrgID(r)
	case "requester":
		f.RequesterID = middleware.GetOrgID(r)
	default:
		h.fail(w, r, "list_requests", dErrors.New(dErrors.CodeBadRequest, "role must be owner or requester"))
		return
	}
	for _, s := range mbstrings.SplitList(q.Get("status")) {
		f.Statuses = append(f.Statuses, models.RequestStatus(s))
	}

	out, err := h.svc.Consent.ListRequests(r.Context(), f)
	if err != nil {
		h.fail(w, r, "list_requests", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"requests": out})
}

// handleListGrants lists grants the caller issued (role=owner, default) or
// holds (role=grantee).
func (h *Handler) handleListGrants(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := models.GrantFilter{RecordID: q.Get("recordId")}
	switch role := q.Get("role"); role {
	case "", "owner":
		f.OwnerID = middleware.GetOrgID(r)
	case "grantee":
		f.GranteeID = middleware.GetOrgID(r)
	default:
		h.fail(w, r, "list_grants", dErrors.New(dErrors.CodeBadRequest, "role must be owner or grantee"))
		return
	}
	for _, s := range mbstrings.SplitList(q.Get("status")) {
		f.Statuses = append(f.Statuses, models.GrantStatus(s))
	}

	out, err := h.svc.Consent.ListGrants(r.Context(), f)
	if err != nil {
		h.fail(w, r, "list_grants", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"grants": out})
}

func (h *Handler) handleResolveKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.svc.Consent.ResolveGranteeKey(r.Context(), chi.URLParam(r, "recordId"), middleware.GetOrgID(r))
	if err != nil {
		h.fail(w, r, "resolve_key", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, key)
}

// handleDistributedKey serves the dispatcher's copy of the caller's key. The
// grant is checked again so a revoked or expired grant stops serving keys
// even if the distributed copy is still on file.
func (h *Handler) handleDistributedKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID, caller := chi.URLParam(r, "recordId"), middleware.GetOrgID(r)
	ok, err := h.svc.Consent.HasAccess(ctx, recordID, caller)
	if err != nil {
		h.fail(w, r, "distributed_key", err)
		return
	}
	if !ok {
		h.fail(w, r, "distributed_key", dErrors.New(dErrors.CodeAccessDenied, "no active access grant found"))
		return
	}
	key, err := h.svc.Keys.Key(ctx, recordID, caller)
	if err != nil {
		h.fail(w, r, "distributed_key", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, key)
}

// handleAudit returns the trail of one record (owner only) when recordId is
// given, otherwise the caller's own actions.
func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	caller := middleware.GetOrgID(r)
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.fail(w, r, "audit", dErrors.New(dErrors.CodeBadRequest, "limit must be an integer"))
			return
		}
		limit = n
	}

	recordID := q.Get("recordId")
	if recordID == "" {
		entries, err := h.svc.Audit.ListByActor(ctx, caller, limit)
		if err != nil {
			h.fail(w, r, "audit", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
		return
	}

	rec, err := h.svc.Consent.GetRecord(ctx, recordID, caller)
	if err != nil {
		h.fail(w, r, "audit", err)
		return
	}
	if rec.OwnerID != caller {
		h.fail(w, r, "audit", dErrors.New(dErrors.CodeForbidden, "only the record owner may read its audit trail"))
		return
	}
	entries, err := h.svc.Audit.ListByRecord(ctx, recordID, limit)
	if err != nil {
		h.fail(w, r, "audit", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, op string, v any) bool {
	if err := httputil.DecodeJSON(r, v); err != nil {
		h.fail(w, r, op, err)
		return false
	}
	trimStrings(v)
	return true
}
