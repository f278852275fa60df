package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medblock/internal/platform/logger"
	"medblock/pkg/requestcontext"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (s stubValidator) ValidateToken(string) (*JWTClaims, error) {
	return s.claims, s.err
}

type latencyRecorder struct {
	endpoints []string
}

func (l *latencyRecorder) ObserveEndpointLatency(endpoint string, _ time.Duration) {
	l.endpoints = append(l.endpoints, endpoint)
}

func TestRequireAuth(t *testing.T) {
	var seenOrg string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenOrg = GetOrgID(r)
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("valid token sets org", func(t *testing.T) {
		h := RequireAuth(stubValidator{claims: &JWTClaims{OrgID: "org-a"}}, logger.Discard())(next)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer token")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "org-a", seenOrg)
	})

	t.Run("missing header", func(t *testing.T) {
		h := RequireAuth(stubValidator{}, logger.Discard())(next)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), "Missing or invalid Authorization header")
	})

	t.Run("invalid token", func(t *testing.T) {
		h := RequireAuth(stubValidator{err: errors.New("bad")}, logger.Discard())(next)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), "Invalid or expired token")
	})
}

func TestRequireAdminToken(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	t.Run("matching token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-Admin-Token", "secret")
		rr := httptest.NewRecorder()
		RequireAdminToken("secret", logger.Discard())(next).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("disabled when unset", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		rr := httptest.NewRecorder()
		RequireAdminToken("", logger.Discard())(next).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	t.Run("propagates incoming id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, "req-123", seen)
		assert.Equal(t, "req-123", rr.Header().Get(RequestIDHeader))
	})

	t.Run("generates id", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Len(t, seen, 36)
		assert.Equal(t, seen, rr.Header().Get(RequestIDHeader))
	})
}

func TestClientMetadata(t *testing.T) {
	var ip, ua, client string
	h := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
		ua = requestcontext.UserAgent(r.Context())
		client = requestcontext.Client(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:126.0) Gecko/20100101 Firefox/126.0")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "203.0.113.7", ip)
	assert.Contains(t, ua, "Firefox/126.0")
	assert.Contains(t, client, "Firefox 126.0")
}

func TestClientIPFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::1]:5000"
	assert.Equal(t, "::1", ClientIPFromRequest(req))

	req.Header.Set("X-Real-IP", " 198.51.100.2 ")
	assert.Equal(t, "198.51.100.2", ClientIPFromRequest(req))
}

func TestRequestTime(t *testing.T) {
	var first, second time.Time
	h := RequestTime(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		first = requestcontext.Now(r.Context())
		time.Sleep(time.Millisecond)
		second = requestcontext.Now(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, first, second)
}

func TestAccessLogAndRecover(t *testing.T) {
	rec := &latencyRecorder{}
	r := chi.NewRouter()
	r.Use(AccessLog(logger.Discard(), rec))
	r.Use(Recover(logger.Discard()))
	r.Get("/api/records/{id}", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/records/abc", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Len(t, rec.endpoints, 1)
	assert.Equal(t, "GET /api/records/{id}", rec.endpoints[0])
}
