package main

import (
	"context"
	"net/http"
	"sync"

	"medblock/pkg/platform/httputil"
)

// healthChecks reports each configured backend. Any failing check turns
// the response into a 503.
type healthChecks struct {
	mu     sync.Mutex
	checks map[string]func(ctx context.Context) error
}

func newHealthChecks() *healthChecks {
	return &healthChecks{checks: make(map[string]func(ctx context.Context) error)}
}

func (h *healthChecks) add(name string, check func(ctx context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

func (h *healthChecks) handler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	h.mu.Lock()
	checks := make(map[string]func(ctx context.Context) error, len(h.checks))
	for k, v := range h.checks {
		checks[k] = v
	}
	h.mu.Unlock()

	status := http.StatusOK
	report := make(map[string]string, len(checks))
	for name, check := range checks {
		if err := check(ctx); err != nil {
			report[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		report[name] = "ok"
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	httputil.WriteJSON(w, status, map[string]any{"status": state, "checks": report})
}
