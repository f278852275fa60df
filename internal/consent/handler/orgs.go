package handler

import (
	"net/http"

	"medblock/pkg/platform/httputil"
)

func (h *Handler) handleListOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.svc.Orgs.ListActive(r.Context())
	if err != nil {
		h.fail(w, r, "list_organizations", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, orgs)
}
