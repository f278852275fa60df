package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"medblock/internal/consent/models"
	"medblock/pkg/platform/sentinel"
	txcontext "medblock/pkg/platform/tx"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// PostgresStore persists records, requests and grants. Uniqueness of pending
// requests and active grants is enforced by partial unique indexes; a
// violation surfaces as sentinel.ErrConflict.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) execer(ctx context.Context) txcontext.Execer {
	return txcontext.Executor(ctx, s.db)
}

const recordColumns = `record_id, owner_id, patient_id, storage_pointer, ciphertext_hash,
	wrapped_dek, iv, policy_id, status, created_at, updated_at`

func (s *PostgresStore) CreateRecord(ctx context.Context, rec *models.Record) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.RecordID, rec.OwnerID, rec.PatientID, rec.StoragePointer, rec.CiphertextHash,
		rec.WrappedDEK, rec.IV, rec.PolicyID, string(rec.Status), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return translate(err, "insert record")
	}
	return nil
}

func (s *PostgresStore) FindRecord(ctx context.Context, recordID string) (*models.Record, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE record_id = $1`, recordID)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, translate(err, "find record")
	}
	return rec, nil
}

func (s *PostgresStore) ListRecordsByOwner(ctx context.Context, ownerID string) ([]*models.Record, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE owner_id = $1
		ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateRecordStatus(ctx context.Context, recordID string, status models.RecordStatus, at time.Time) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE records SET status = $2, updated_at = $3 WHERE record_id = $1`,
		recordID, string(status), at)
	if err != nil {
		return fmt.Errorf("update record status: %w", err)
	}
	return requireRow(res)
}

const requestColumns = `request_id, record_id, owner_id, requester_id, purpose, status,
	expiry_days, requested_at, responded_at, response_message`

func (s *PostgresStore) CreateRequest(ctx context.Context, req *models.AccessRequest) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO access_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		req.RequestID, req.RecordID, req.OwnerID, req.RequesterID, req.Purpose, string(req.Status),
		req.ExpiryDays, req.RequestedAt, req.RespondedAt, req.ResponseMessage,
	)
	if err != nil {
		return translate(err, "insert access request")
	}
	return nil
}

func (s *PostgresStore) FindRequest(ctx context.Context, requestID string) (*models.AccessRequest, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM access_requests WHERE request_id = $1`, requestID)
	req, err := scanRequest(row)
	if err != nil {
		return nil, translate(err, "find access request")
	}
	return req, nil
}

// TransitionRequest moves a pending request to a terminal status. The
// status guard in the WHERE clause makes it a compare-and-swap.
func (s *PostgresStore) TransitionRequest(ctx context.Context, requestID string, to models.RequestStatus, at time.Time, message string) (*models.AccessRequest, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		UPDATE access_requests
		SET status = $2, responded_at = $3, response_message = $4
		WHERE request_id = $1 AND status = 'pending'
		RETURNING `+requestColumns,
		requestID, string(to), at, message)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, findErr := s.FindRequest(ctx, requestID); findErr != nil {
			return nil, findErr
		}
		return nil, sentinel.ErrInvalidState
	}
	if err != nil {
		return nil, fmt.Errorf("transition access request: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) ApprovePendingRequest(ctx context.Context, recordID, requesterID string, at time.Time) (bool, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE access_requests
		SET status = 'approved', responded_at = $3
		WHERE record_id = $1 AND requester_id = $2 AND status = 'pending'`,
		recordID, requesterID, at)
	if err != nil {
		return false, fmt.Errorf("approve pending request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("approve pending request: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) ListRequests(ctx context.Context, f models.RequestFilter) ([]*models.AccessRequest, error) {
	var w where
	w.eq("record_id", f.RecordID)
	w.eq("owner_id", f.OwnerID)
	w.eq("requester_id", f.RequesterID)
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		w.any("status", pq.Array(statuses))
	}

	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT `+requestColumns+` FROM access_requests`+w.sql()+` ORDER BY requested_at DESC`,
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("list access requests: %w", err)
	}
	defer rows.Close()

	out := make([]*models.AccessRequest, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan access request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

const grantColumns = `grant_id, record_id, owner_id, grantee_id, purpose, wrapped_dek_for_grantee,
	status, expiry_date, granted_at, revoked_at, access_count, last_accessed_at`

func (s *PostgresStore) CreateGrant(ctx context.Context, g *models.AccessGrant) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO access_grants (`+grantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		g.GrantID, g.RecordID, g.OwnerID, g.GranteeID, g.Purpose, g.WrappedDEKForGrantee,
		string(g.Status), g.ExpiryDate, g.GrantedAt, g.RevokedAt, g.AccessCount, g.LastAccessedAt,
	)
	if err != nil {
		return translate(err, "insert access grant")
	}
	return nil
}

func (s *PostgresStore) FindActiveGrant(ctx context.Context, recordID, granteeID string) (*models.AccessGrant, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+grantColumns+` FROM access_grants
		WHERE record_id = $1 AND grantee_id = $2 AND status = 'active'`,
		recordID, granteeID)
	g, err := scanGrant(row)
	if err != nil {
		return nil, translate(err, "find active grant")
	}
	return g, nil
}

func (s *PostgresStore) RevokeActiveGrant(ctx context.Context, recordID, granteeID string, at time.Time) (*models.AccessGrant, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		UPDATE access_grants SET status = 'revoked', revoked_at = $3
		WHERE record_id = $1 AND grantee_id = $2 AND status = 'active'
		RETURNING `+grantColumns,
		recordID, granteeID, at)
	g, err := scanGrant(row)
	if err != nil {
		return nil, translate(err, "revoke grant")
	}
	return g, nil
}

// RecordGrantAccess bumps the access counter of the usable grant in one
// statement; no row means no usable grant at now.
func (s *PostgresStore) RecordGrantAccess(ctx context.Context, recordID, granteeID string, now time.Time) (*models.AccessGrant, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		UPDATE access_grants
		SET access_count = access_count + 1, last_accessed_at = $3
		WHERE record_id = $1 AND grantee_id = $2 AND status = 'active' AND expiry_date > $3
		RETURNING `+grantColumns,
		recordID, granteeID, now)
	g, err := scanGrant(row)
	if err != nil {
		return nil, translate(err, "record grant access")
	}
	return g, nil
}

func (s *PostgresStore) ExpireGrants(ctx context.Context, f models.GrantFilter, now time.Time) (int, error) {
	w := where{args: []any{now}}
	w.eq("record_id", f.RecordID)
	w.eq("grantee_id", f.GranteeID)
	cond := " WHERE status = 'active' AND expiry_date <= $1"
	if len(w.conds) > 0 {
		cond += " AND " + strings.Join(w.conds, " AND ")
	}
	res, err := s.execer(ctx).ExecContext(ctx, `UPDATE access_grants SET status = 'expired'`+cond, w.args...)
	if err != nil {
		return 0, fmt.Errorf("expire grants: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire grants: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) ListGrants(ctx context.Context, f models.GrantFilter) ([]*models.AccessGrant, error) {
	var w where
	w.eq("record_id", f.RecordID)
	w.eq("owner_id", f.OwnerID)
	w.eq("grantee_id", f.GranteeID)
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		w.any("status", pq.Array(statuses))
	}

	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT `+grantColumns+` FROM access_grants`+w.sql()+` ORDER BY granted_at DESC`,
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("list access grants: %w", err)
	}
	defer rows.Close()

	out := make([]*models.AccessGrant, 0)
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan access grant: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*models.Record, error) {
	var rec models.Record
	var status string
	if err := row.Scan(&rec.RecordID, &rec.OwnerID, &rec.PatientID, &rec.StoragePointer, &rec.CiphertextHash,
		&rec.WrappedDEK, &rec.IV, &rec.PolicyID, &status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Status = models.RecordStatus(status)
	return &rec, nil
}

func scanRequest(row scanner) (*models.AccessRequest, error) {
	var req models.AccessRequest
	var status string
	var respondedAt sql.NullTime
	if err := row.Scan(&req.RequestID, &req.RecordID, &req.OwnerID, &req.RequesterID, &req.Purpose, &status,
		&req.ExpiryDays, &req.RequestedAt, &respondedAt, &req.ResponseMessage); err != nil {
		return nil, err
	}
	req.Status = models.RequestStatus(status)
	req.RespondedAt = timePtr(respondedAt)
	return &req, nil
}

func scanGrant(row scanner) (*models.AccessGrant, error) {
	var g models.AccessGrant
	var status string
	var revokedAt, lastAccessedAt sql.NullTime
	if err := row.Scan(&g.GrantID, &g.RecordID, &g.OwnerID, &g.GranteeID, &g.Purpose, &g.WrappedDEKForGrantee,
		&status, &g.ExpiryDate, &g.GrantedAt, &revokedAt, &g.AccessCount, &lastAccessedAt); err != nil {
		return nil, err
	}
	g.Status = models.GrantStatus(status)
	g.RevokedAt = timePtr(revokedAt)
	g.LastAccessedAt = timePtr(lastAccessedAt)
	return &g, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// translate maps driver errors onto sentinel errors.
func translate(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w", op, sentinel.ErrConflict)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %w", op, sentinel.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// where accumulates positional equality conditions.
type where struct {
	conds []string
	args  []any
}

func (w *where) eq(column, value string) {
	if value == "" {
		return
	}
	w.args = append(w.args, value)
	w.conds = append(w.conds, column+" = $"+strconv.Itoa(len(w.args)))
}

func (w *where) any(column string, value any) {
	w.args = append(w.args, value)
	w.conds = append(w.conds, column+" = ANY($"+strconv.Itoa(len(w.args))+")")
}

func (w *where) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}
