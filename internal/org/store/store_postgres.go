package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"medblock/internal/org/models"
	"medblock/pkg/platform/sentinel"
)

const pgUniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, org *models.Organization) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizations (org_id, name, type, email, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		org.OrgID, org.Name, string(org.Type), org.Email, string(org.Status), org.CreatedAt, org.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, orgID string) (*models.Organization, error) {
	org, err := scanOrg(s.db.QueryRowContext(ctx, `
		SELECT org_id, name, type, email, status, created_at, updated_at
		FROM organizations
		WHERE org_id = $1`, orgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find organization: %w", err)
	}
	return org, nil
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]*models.Organization, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT org_id, name, type, email, status, created_at, updated_at
		FROM organizations
		WHERE status = $1
		ORDER BY name ASC`, string(models.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var out []*models.Organization
	for rows.Next() {
		org, err := scanOrg(rows)
		if err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		out = append(out, org)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, orgID string, status models.Status, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE organizations SET status = $2, updated_at = $3 WHERE org_id = $1`,
		orgID, string(status), at,
	)
	if err != nil {
		return fmt.Errorf("update organization status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update organization status: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrg(row rowScanner) (*models.Organization, error) {
	var (
		org         models.Organization
		typ, status string
	)
	if err := row.Scan(&org.OrgID, &org.Name, &typ, &org.Email, &status, &org.CreatedAt, &org.UpdatedAt); err != nil {
		return nil, err
	}
	org.Type = models.Type(typ)
	org.Status = models.Status(status)
	return &org, nil
}
