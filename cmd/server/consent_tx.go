package main

import (
	"context"
	"database/sql"
	"time"

	consentservice "medblock/internal/consent/service"
	dErrors "medblock/pkg/domain-errors"
	txcontext "medblock/pkg/platform/tx"
)

const defaultConsentTxTimeout = 5 * time.Second

// consentPostgresTx runs consent mutations in one SQL transaction. The store
// picks the transaction up from the context it is handed.
type consentPostgresTx struct {
	db      *sql.DB
	store   consentservice.Store
	timeout time.Duration
}

func newConsentPostgresTx(db *sql.DB, store consentservice.Store) *consentPostgresTx {
	return &consentPostgresTx{db: db, store: store}
}

func (t *consentPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store consentservice.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultConsentTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return txcontext.Run(ctx, t.db, func(txCtx context.Context) error {
		return fn(txCtx, t.store)
	})
}
