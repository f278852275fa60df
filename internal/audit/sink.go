// Package audit records who did what to which record. Recording never
// blocks the caller on storage and never returns an error.
package audit

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"medblock/internal/platform/metrics"
	"medblock/pkg/requestcontext"
)

const writeTimeout = 5 * time.Second

// Sink accepts audit entries from services and writes them to a Store.
type Sink struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	buffer chan Entry
	wg     sync.WaitGroup
}

type Option func(*Sink)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sink) {
		s.metrics = m
	}
}

// WithAsyncBuffer writes entries from a background worker fed by a buffer of
// size n. Entries arriving while the buffer is full are dropped.
func WithAsyncBuffer(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.buffer = make(chan Entry, n)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Sink) {
		s.now = now
	}
}

func NewSink(store Store, opts ...Option) *Sink {
	s := &Sink{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.buffer != nil {
		s.wg.Add(1)
		go s.run()
	}
	return s
}

// Record captures an action. Client IP and User-Agent are taken from ctx.
// Failures are logged and counted, never returned.
func (s *Sink) Record(ctx context.Context, recordID, actorID string, action Action, targetID string, details map[string]any) {
	if !action.Valid() {
		s.logger.ErrorContext(ctx, "audit entry dropped: unknown action", "action", action, "record_id", recordID)
		s.metrics.IncAudit("dropped")
		return
	}

	now := s.now()
	entry := Entry{
		LogID:     NewLogID(now),
		RecordID:  recordID,
		ActorID:   actorID,
		Action:    action,
		TargetID:  targetID,
		Details:   maps.Clone(details),
		IPAddress: requestcontext.ClientIP(ctx),
		UserAgent: requestcontext.UserAgent(ctx),
		Timestamp: now,
	}
	if client := requestcontext.Client(ctx); client != "" {
		if entry.Details == nil {
			entry.Details = make(map[string]any, 1)
		}
		entry.Details["client"] = client
	}
	if reqID := requestcontext.RequestID(ctx); reqID != "" {
		if entry.Details == nil {
			entry.Details = make(map[string]any, 1)
		}
		entry.Details["requestId"] = reqID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.WarnContext(ctx, "audit entry dropped: sink closed", "action", action, "record_id", recordID)
		s.metrics.IncAudit("dropped")
		return
	}
	if s.buffer == nil {
		s.write(requestcontext.Detach(ctx), entry)
		return
	}
	select {
	case s.buffer <- entry:
	default:
		s.logger.WarnContext(ctx, "audit entry dropped: buffer full", "action", action, "record_id", recordID)
		s.metrics.IncAudit("dropped")
	}
}

// List helpers pass through to the store with clamped limits.

func (s *Sink) ListByRecord(ctx context.Context, recordID string, limit int) ([]Entry, error) {
	return s.store.ListByRecord(ctx, recordID, ClampLimit(limit))
}

func (s *Sink) ListByActor(ctx context.Context, actorID string, limit int) ([]Entry, error) {
	return s.store.ListByActor(ctx, actorID, ClampLimit(limit))
}

func (s *Sink) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	return s.store.ListRecent(ctx, ClampLimit(limit))
}

// Close stops accepting entries and drains the buffer.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.buffer != nil {
		close(s.buffer)
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

func (s *Sink) run() {
	defer s.wg.Done()
	for entry := range s.buffer {
		s.write(context.Background(), entry)
	}
}

func (s *Sink) write(ctx context.Context, entry Entry) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := s.store.Append(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "failed to write audit entry",
			"error", err,
			"log_id", entry.LogID,
			"record_id", entry.RecordID,
			"action", entry.Action,
		)
		s.metrics.IncAudit("failed")
		return
	}
	s.metrics.IncAudit("written")
}
