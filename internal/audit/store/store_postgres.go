package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"medblock/internal/audit"
	txcontext "medblock/pkg/platform/tx"
)

// PostgresStore appends to the audit_logs table, which rejects updates and
// deletes at the database level.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append is idempotent on LogID.
func (s *PostgresStore) Append(ctx context.Context, e audit.Entry) error {
	details := []byte("{}")
	if len(e.Details) > 0 {
		var err error
		details, err = json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
	}
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO audit_logs (log_id, record_id, actor_id, action, target_id, details, ip_address, user_agent, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (log_id) DO NOTHING`,
		e.LogID, e.RecordID, e.ActorID, string(e.Action), e.TargetID, string(details),
		e.IPAddress, e.UserAgent, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

const selectEntries = `SELECT log_id, record_id, actor_id, action, target_id, details, ip_address, user_agent, timestamp
	FROM audit_logs`

func (s *PostgresStore) ListByRecord(ctx context.Context, recordID string, limit int) ([]audit.Entry, error) {
	return s.query(ctx, selectEntries+` WHERE record_id = $1 ORDER BY timestamp DESC LIMIT $2`, recordID, limit)
}

func (s *PostgresStore) ListByActor(ctx context.Context, actorID string, limit int) ([]audit.Entry, error) {
	return s.query(ctx, selectEntries+` WHERE actor_id = $1 ORDER BY timestamp DESC LIMIT $2`, actorID, limit)
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]audit.Entry, error) {
	return s.query(ctx, selectEntries+` ORDER BY timestamp DESC LIMIT $1`, limit)
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]audit.Entry, error) {
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	out := make([]audit.Entry, 0)
	for rows.Next() {
		var e audit.Entry
		var action string
		var details []byte
		if err := rows.Scan(&e.LogID, &e.RecordID, &e.ActorID, &action, &e.TargetID, &details,
			&e.IPAddress, &e.UserAgent, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = audit.Action(action)
		if len(details) > 0 && string(details) != "{}" {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
