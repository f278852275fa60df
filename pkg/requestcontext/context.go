// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets the values; services and the audit sink read them without
// importing net/http.
//
//	orgID := requestcontext.OrgID(ctx)
//	ip := requestcontext.ClientIP(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.WithOrgID(ctx, "org-hospital-a")
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"
)

type (
	orgIDKey       struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	clientKey      struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// OrgID returns the authenticated organization, or "" when unauthenticated.
func OrgID(ctx context.Context) string {
	if v, ok := ctx.Value(orgIDKey{}).(string); ok {
		return v
	}
	return ""
}

func WithOrgID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, orgIDKey{}, orgID)
}

func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey{}).(string); ok {
		return v
	}
	return ""
}

func UserAgent(ctx context.Context) string {
	if v, ok := ctx.Value(userAgentKey{}).(string); ok {
		return v
	}
	return ""
}

// Client returns a short description of the calling client derived from its
// User-Agent, such as "Firefox 126.0 (Linux x86_64)".
func Client(ctx context.Context) string {
	if v, ok := ctx.Value(clientKey{}).(string); ok {
		return v
	}
	return ""
}

// WithClientMetadata injects client IP, raw User-Agent and its parsed
// description.
func WithClientMetadata(ctx context.Context, clientIP, userAgent, client string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey{}, clientIP)
	ctx = context.WithValue(ctx, userAgentKey{}, userAgent)
	return context.WithValue(ctx, clientKey{}, client)
}

func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now returns the request-scoped time, falling back to time.Now for workers
// and tests that never set one.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// Detach returns a context that keeps ctx's request values but is never
// cancelled, for work that outlives the request.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
