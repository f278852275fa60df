package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"medblock/internal/consent/models"
	"medblock/internal/platform/middleware"
	"medblock/internal/records"
	"medblock/pkg/platform/httputil"
)

const maxUploadBytes = 32 << 20

type uploadRequest struct {
	Payload   []byte `json:"payload"`
	PatientID string `json:"patientId"`
	PolicyID  string `json:"policyId"`
}

// recordView hides the owner's wrapped key from everyone but the owner.
func recordView(rec *models.Record, callerID string) *models.Record {
	if rec == nil || rec.OwnerID == callerID {
		return rec
	}
	out := *rec
	out.WrappedDEK = nil
	return &out
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.Consent.ListRecords(r.Context(), middleware.GetOrgID(r))
	if err != nil {
		h.fail(w, r, "list_records", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"records": recs})
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	var req uploadRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "upload", err)
		return
	}
	trimStrings(&req)

	rec, err := h.svc.Records.Upload(r.Context(), records.UploadInput{
		OwnerID:   middleware.GetOrgID(r),
		PolicyID:  req.PolicyID,
		PatientID: req.PatientID,
		Payload:   req.Payload,
	})
	if err != nil {
		h.fail(w, r, "upload", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetOrgID(r)
	rec, err := h.svc.Consent.GetRecord(r.Context(), chi.URLParam(r, "id"), caller)
	if err != nil {
		h.fail(w, r, "get_record", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, recordView(rec, caller))
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	plaintext, rec, err := h.svc.Records.Download(r.Context(), chi.URLParam(r, "id"), middleware.GetOrgID(r))
	if err != nil {
		h.fail(w, r, "download", err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(plaintext)))
	w.Header().Set("X-Ciphertext-Hash", rec.CiphertextHash)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(plaintext)
}

func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Consent.ArchiveRecord(r.Context(), chi.URLParam(r, "id"), middleware.GetOrgID(r)); err != nil {
		h.fail(w, r, "archive_record", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSharedRecords(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetOrgID(r)
	shared, err := h.svc.Consent.ListSharedWithMe(r.Context(), caller)
	if err != nil {
		h.fail(w, r, "shared_records", err)
		return
	}
	for i := range shared {
		shared[i].Record = recordView(shared[i].Record, caller)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"records": shared})
}
