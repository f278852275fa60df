package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medblock/internal/consent/models"
	"medblock/pkg/platform/sentinel"
)

var (
	recordCols  = []string{"record_id", "owner_id", "patient_id", "storage_pointer", "ciphertext_hash", "wrapped_dek", "iv", "policy_id", "status", "created_at", "updated_at"}
	requestCols = []string{"request_id", "record_id", "owner_id", "requester_id", "purpose", "status", "expiry_days", "requested_at", "responded_at", "response_message"}
	grantCols   = []string{"grant_id", "record_id", "owner_id", "grantee_id", "purpose", "wrapped_dek_for_grantee", "status", "expiry_date", "granted_at", "revoked_at", "access_count", "last_accessed_at"}
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db), mock
}

func TestPostgresCreateRecord(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rec := &models.Record{
		RecordID: "record_1", OwnerID: "org-a", StoragePointer: "minio://records/records/record_1.enc",
		CiphertextHash: "abc", WrappedDEK: []byte{1}, IV: []byte{2}, PolicyID: "default",
		Status: models.RecordActive, CreatedAt: ts, UpdatedAt: ts,
	}

	t.Run("inserts", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("INSERT INTO records").
			WithArgs("record_1", "org-a", "", rec.StoragePointer, "abc", []byte{1}, []byte{2}, "default", "active", ts, ts).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.CreateRecord(context.Background(), rec))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate maps to conflict", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("INSERT INTO records").WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})

		err := store.CreateRecord(context.Background(), rec)
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})
}

func TestPostgresFindRecord(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT (.+) FROM records WHERE record_id = \\$1").
			WithArgs("record_1").
			WillReturnRows(sqlmock.NewRows(recordCols).
				AddRow("record_1", "org-a", "p-1", "ptr", "abc", []byte{1}, []byte{2}, "default", "archived", ts, ts))

		rec, err := store.FindRecord(context.Background(), "record_1")
		require.NoError(t, err)
		assert.Equal(t, models.RecordArchived, rec.Status)
		assert.Equal(t, "p-1", rec.PatientID)
	})

	t.Run("missing", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("SELECT (.+) FROM records").WillReturnError(sql.ErrNoRows)

		_, err := store.FindRecord(context.Background(), "record_1")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestPostgresCreateRequestPendingConflict(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO access_requests").
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "access_requests_one_pending_idx"})

	err := store.CreateRequest(context.Background(), &models.AccessRequest{RequestID: "req_1", Status: models.RequestPending})
	assert.ErrorIs(t, err, sentinel.ErrConflict)
}

func TestPostgresTransitionRequest(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("pending moves to denied", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("UPDATE access_requests").
			WithArgs("req_1", "denied", ts, "no").
			WillReturnRows(sqlmock.NewRows(requestCols).
				AddRow("req_1", "record_1", "org-a", "org-b", "care", "denied", 30, ts, ts, "no"))

		req, err := store.TransitionRequest(context.Background(), "req_1", models.RequestDenied, ts, "no")
		require.NoError(t, err)
		assert.Equal(t, models.RequestDenied, req.Status)
		require.NotNil(t, req.RespondedAt)
	})

	t.Run("terminal request is invalid state", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("UPDATE access_requests").WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("SELECT (.+) FROM access_requests WHERE request_id = \\$1").
			WithArgs("req_1").
			WillReturnRows(sqlmock.NewRows(requestCols).
				AddRow("req_1", "record_1", "org-a", "org-b", "care", "approved", 30, ts, ts, ""))

		_, err := store.TransitionRequest(context.Background(), "req_1", models.RequestDenied, ts, "")
		assert.ErrorIs(t, err, sentinel.ErrInvalidState)
	})

	t.Run("unknown request is not found", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("UPDATE access_requests").WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("SELECT (.+) FROM access_requests").WillReturnError(sql.ErrNoRows)

		_, err := store.TransitionRequest(context.Background(), "req_x", models.RequestDenied, ts, "")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestPostgresCreateGrant(t *testing.T) {
	grant := &models.AccessGrant{GrantID: "grant_1", RecordID: "record_1", GranteeID: "org-b", Status: models.GrantActive}

	t.Run("active duplicate conflicts", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("INSERT INTO access_grants").
			WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "access_grants_one_active_idx"})

		assert.ErrorIs(t, store.CreateGrant(context.Background(), grant), sentinel.ErrConflict)
	})

	t.Run("unknown record", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("INSERT INTO access_grants").WillReturnError(&pgconn.PgError{Code: pgForeignKeyViolation})

		assert.ErrorIs(t, store.CreateGrant(context.Background(), grant), sentinel.ErrNotFound)
	})
}

func TestPostgresRecordGrantAccess(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("usable grant is counted", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("UPDATE access_grants").
			WithArgs("record_1", "org-b", now).
			WillReturnRows(sqlmock.NewRows(grantCols).
				AddRow("grant_1", "record_1", "org-a", "org-b", "care", []byte{9}, "active", now.Add(time.Hour), now.Add(-time.Hour), nil, int64(3), now))

		g, err := store.RecordGrantAccess(context.Background(), "record_1", "org-b", now)
		require.NoError(t, err)
		assert.EqualValues(t, 3, g.AccessCount)
		assert.Nil(t, g.RevokedAt)
		require.NotNil(t, g.LastAccessedAt)
	})

	t.Run("no usable grant", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery("UPDATE access_grants").WillReturnError(sql.ErrNoRows)

		_, err := store.RecordGrantAccess(context.Background(), "record_1", "org-b", now)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestPostgresExpireGrants(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE access_grants SET status = 'expired' WHERE status = 'active' AND expiry_date <= \\$1 AND record_id = \\$2 AND grantee_id = \\$3").
		WithArgs(now, "record_1", "org-b").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := store.ExpireGrants(context.Background(), models.GrantFilter{RecordID: "record_1", GranteeID: "org-b"}, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListGrantsByStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM access_grants WHERE grantee_id = \\$1 AND status = ANY\\(\\$2\\) ORDER BY granted_at DESC").
		WithArgs("org-b", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(grantCols).
			AddRow("grant_1", "record_1", "org-a", "org-b", "care", []byte{9}, "revoked", now, now, now, int64(0), nil))

	grants, err := store.ListGrants(context.Background(), models.GrantFilter{
		GranteeID: "org-b",
		Statuses:  []models.GrantStatus{models.GrantRevoked},
	})
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, models.GrantRevoked, grants[0].Status)
	require.NotNil(t, grants[0].RevokedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateRecordStatusMissing(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE records SET status").WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateRecordStatus(context.Background(), "record_x", models.RecordArchived, time.Now())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
