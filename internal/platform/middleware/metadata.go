package middleware

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"medblock/pkg/requestcontext"
)

// ClientMetadata records the client IP, raw User-Agent and a parsed client
// description on the request context for the audit trail.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("User-Agent")
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), raw, describeClient(raw))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// describeClient renders a User-Agent as "Name Version (OS)". Bots and
// unparseable agents fall back to the product name.
func describeClient(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if ua.Bot() || name == "" {
		return name
	}
	desc := name
	if version != "" {
		desc += " " + version
	}
	if os := ua.OS(); os != "" {
		desc += " (" + os + ")"
	}
	return desc
}

// ClientIPFromRequest prefers X-Forwarded-For, then X-Real-IP, then the
// connection's remote address.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if addr := r.RemoteAddr; addr != "" {
		// [::1]:port or 127.0.0.1:port
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return strings.Trim(addr[:idx], "[]")
		}
		return addr
	}
	return "unknown"
}
