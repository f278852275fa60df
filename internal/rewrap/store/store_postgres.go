package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"medblock/internal/rewrap"
	"medblock/pkg/platform/sentinel"
)

// PostgresStore persists grantee keys. Writes for the same (record,
// grantee) pair overwrite each other.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Upsert(ctx context.Context, key rewrap.WrappedKey) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO grantee_keys (record_id, grantee_id, owner_id, grant_id, wrapped_dek, iv, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (record_id, grantee_id) DO UPDATE
		SET owner_id = EXCLUDED.owner_id,
		    grant_id = EXCLUDED.grant_id,
		    wrapped_dek = EXCLUDED.wrapped_dek,
		    iv = EXCLUDED.iv,
		    updated_at = EXCLUDED.updated_at`,
		key.RecordID, key.GranteeID, key.OwnerID, key.GrantID, key.WrappedDEK, key.IV, key.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert grantee key: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, recordID, granteeID string) (*rewrap.WrappedKey, error) {
	var key rewrap.WrappedKey
	err := s.db.QueryRowContext(ctx, `
		SELECT record_id, grantee_id, owner_id, grant_id, wrapped_dek, iv, updated_at
		FROM grantee_keys
		WHERE record_id = $1 AND grantee_id = $2`,
		recordID, granteeID,
	).Scan(&key.RecordID, &key.GranteeID, &key.OwnerID, &key.GrantID, &key.WrappedDEK, &key.IV, &key.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get grantee key: %w", err)
	}
	return &key, nil
}
