// Package rewrap distributes a record's data key to a grantee when the
// ledger reports an AccessGranted event.
package rewrap

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"medblock/internal/audit"
	"medblock/internal/consent/models"
	"medblock/internal/envelope"
	"medblock/internal/ledger"
	"medblock/internal/platform/metrics"
	dErrors "medblock/pkg/domain-errors"
	"medblock/pkg/platform/sentinel"
)

// MetadataSource loads the owner's record metadata.
type MetadataSource interface {
	FindRecord(ctx context.Context, recordID string) (*models.Record, error)
}

// KeyWrapper unwraps the owner's copy and wraps the key to the grantee.
type KeyWrapper interface {
	Unwrap(ctx context.Context, blob []byte, principalID string) ([]byte, error)
	Rewrap(ctx context.Context, key []byte, principalID string) ([]byte, error)
}

// AuditRecorder never fails the caller.
type AuditRecorder interface {
	Record(ctx context.Context, recordID, actorID string, action audit.Action, targetID string, details map[string]any)
}

const settleTimeout = 3 * time.Second

// Dispatcher handles AccessGranted events. A grant ID is marked done only
// after its key is stored or the event is dropped as unrecoverable; a
// failure caused by an unavailable dependency releases the claim and is
// returned so the event is redelivered.
type Dispatcher struct {
	records MetadataSource
	keys    KeyWrapper
	store   KeyStore
	dedupe  Deduper
	audit   AuditRecorder
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Dispatcher)

func WithDeduper(d Deduper) Option {
	return func(dp *Dispatcher) {
		dp.dedupe = d
	}
}

func WithAuditRecorder(r AuditRecorder) Option {
	return func(dp *Dispatcher) {
		dp.audit = r
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(dp *Dispatcher) {
		dp.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(dp *Dispatcher) {
		dp.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(dp *Dispatcher) {
		dp.now = now
	}
}

func NewDispatcher(records MetadataSource, keys KeyWrapper, store KeyStore, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		records: records,
		keys:    keys,
		store:   store,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.dedupe == nil {
		d.dedupe = NewInMemoryDeduper()
	}
	return d
}

// Handle processes one ledger event. Events other than AccessGranted and
// malformed events are ignored.
func (d *Dispatcher) Handle(ctx context.Context, ev ledger.Event) error {
	if ev.Name != ledger.EventAccessGranted {
		return nil
	}
	if ev.RecordID == "" || ev.GranteeID == "" || ev.GrantID == "" {
		d.logger.WarnContext(ctx, "dropping malformed grant event",
			"record_id", ev.RecordID,
			"grantee_id", ev.GranteeID,
			"grant_id", ev.GrantID,
		)
		d.metrics.IncRewrap("invalid")
		return nil
	}

	claimed, err := d.dedupe.Claim(ctx, ev.GrantID)
	if err != nil {
		d.metrics.IncRewrap("retry")
		return dErrors.Wrap(err, dErrors.CodeDependencyUnavailable, "claim grant event")
	}
	if !claimed {
		d.logger.DebugContext(ctx, "grant event already handled", "grant_id", ev.GrantID)
		d.metrics.IncRewrap("duplicate")
		return nil
	}

	outcome, err := d.process(ctx, ev)
	if err != nil {
		d.settle(ctx, ev.GrantID, "release", d.dedupe.Release)
		d.metrics.IncRewrap("retry")
		return err
	}
	d.settle(ctx, ev.GrantID, "complete", d.dedupe.Complete)
	d.metrics.IncRewrap(outcome)
	return nil
}

// settle finishes a claim on a context detached from the delivery, which may
// already be cancelled by shutdown. A failed settle leaves the lease to
// expire on its own.
func (d *Dispatcher) settle(ctx context.Context, grantID, step string, fn func(context.Context, string) error) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	if err := fn(sctx, grantID); err != nil {
		d.logger.ErrorContext(ctx, "failed to settle grant claim", "step", step, "grant_id", grantID, "error", err)
	}
}

// process returns an outcome label for events it finishes or drops, and an
// error only for failures worth redelivering.
func (d *Dispatcher) process(ctx context.Context, ev ledger.Event) (string, error) {
	rec, err := d.records.FindRecord(ctx, ev.RecordID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			d.logger.WarnContext(ctx, "record metadata missing for grant event, dropping",
				"record_id", ev.RecordID,
				"grant_id", ev.GrantID,
			)
			return "missing_record", nil
		}
		return "", err
	}

	dek, err := d.keys.Unwrap(ctx, rec.WrappedDEK, rec.OwnerID)
	if err != nil {
		return d.keyFailure(ctx, ev, "unwrap owner key", err)
	}
	wrapped, err := d.keys.Rewrap(ctx, dek, ev.GranteeID)
	envelope.Zero(dek)
	if err != nil {
		return d.keyFailure(ctx, ev, "wrap key for grantee", err)
	}

	if err := d.store.Upsert(ctx, WrappedKey{
		RecordID:   ev.RecordID,
		GranteeID:  ev.GranteeID,
		OwnerID:    rec.OwnerID,
		GrantID:    ev.GrantID,
		WrappedDEK: wrapped,
		IV:         rec.IV,
		UpdatedAt:  d.now(),
	}); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeDependencyUnavailable, "store grantee key")
	}

	if d.audit != nil {
		d.audit.Record(ctx, ev.RecordID, rec.OwnerID, audit.ActionUpdate, ev.GranteeID, map[string]any{
			"grantId": ev.GrantID,
			"source":  "rewrap",
		})
	}
	d.logger.InfoContext(ctx, "grantee key distributed",
		"record_id", ev.RecordID,
		"grantee_id", ev.GranteeID,
		"grant_id", ev.GrantID,
	)
	return "ok", nil
}

// keyFailure drops the event on crypto errors, which a retry cannot fix,
// and asks for redelivery otherwise.
func (d *Dispatcher) keyFailure(ctx context.Context, ev ledger.Event, step string, err error) (string, error) {
	if dErrors.HasCode(err, dErrors.CodeCrypto) {
		d.logger.ErrorContext(ctx, "rewrap failed, dropping grant event",
			"step", step,
			"record_id", ev.RecordID,
			"grant_id", ev.GrantID,
			"error", err,
		)
		return "crypto_error", nil
	}
	return "", err
}

// Key returns the dispatcher's stored key for a grantee.
func (d *Dispatcher) Key(ctx context.Context, recordID, granteeID string) (*WrappedKey, error) {
	key, err := d.store.Get(ctx, recordID, granteeID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "grantee key not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load grantee key")
	}
	return key, nil
}
