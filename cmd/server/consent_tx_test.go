package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	consentservice "medblock/internal/consent/service"
	consentstore "medblock/internal/consent/store"
	dErrors "medblock/pkg/domain-errors"
	txcontext "medblock/pkg/platform/tx"
)

func TestConsentPostgresTxCommits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := consentstore.NewPostgres(db)
	tx := newConsentPostgresTx(db, store)

	mock.ExpectBegin()
	mock.ExpectCommit()

	var sawTx bool
	err = tx.RunInTx(context.Background(), func(ctx context.Context, s consentservice.Store) error {
		_, sawTx = txcontext.From(ctx)
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		assert.Same(t, store, s)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, sawTx)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsentPostgresTxRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err = newConsentPostgresTx(db, consentstore.NewPostgres(db)).RunInTx(context.Background(),
		func(context.Context, consentservice.Store) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsentPostgresTxCancelledContext(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = newConsentPostgresTx(db, consentstore.NewPostgres(db)).RunInTx(ctx,
		func(context.Context, consentservice.Store) error { return nil })
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthChecks(t *testing.T) {
	h := newHealthChecks()
	h.add("postgres", func(context.Context) error { return nil })

	rr := httptest.NewRecorder()
	h.handler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)

	h.add("kafka", func(context.Context) error { return errors.New("no brokers") })
	rr = httptest.NewRecorder()
	h.handler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "no brokers")
}
