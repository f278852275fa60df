package testutil

import (
	"net/http"

	"medblock/pkg/requestcontext"
)

// WithOrg marks req as authenticated for orgID, as the auth middleware would.
func WithOrg(req *http.Request, orgID string) *http.Request {
	return req.WithContext(requestcontext.WithOrgID(req.Context(), orgID))
}

// WithClient sets the client metadata the audit trail records.
func WithClient(req *http.Request, ip, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, userAgent, ""))
}

// WithBearer sets an Authorization header for requests that go through the
// full middleware chain.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
