package owner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"quorumgate/pkg/platform/sentinel"
	txcontext "quorumgate/pkg/platform/tx"
)

// PostgresStore persists the owner set and quorum config. Owner insertion
// order is preserved through the position sequence.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Add(ctx context.Context, ownerID string) error {
	query := `INSERT INTO owners (owner_id) VALUES ($1)`
	_, err := s.execer(ctx).ExecContext(ctx, query, ownerID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert owner: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsOwner(ctx context.Context, ownerID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM owners WHERE owner_id = $1)`
	var exists bool
	if err := s.execer(ctx).QueryRowContext(ctx, query, ownerID).Scan(&exists); err != nil {
		return false, fmt.Errorf("owner lookup: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]string, error) {
	query := `SELECT owner_id FROM owners ORDER BY position`
	rows, err := s.execer(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var ownerID string
		if err := rows.Scan(&ownerID); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		owners = append(owners, ownerID)
	}
	return owners, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.execer(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM owners`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count owners: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) Threshold(ctx context.Context) (int, error) {
	var threshold int
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT min_confirmations FROM quorum_config WHERE id = TRUE`).Scan(&threshold)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, sentinel.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read threshold: %w", err)
	}
	return threshold, nil
}

func (s *PostgresStore) SetThreshold(ctx context.Context, threshold int) error {
	query := `
		INSERT INTO quorum_config (id, min_confirmations) VALUES (TRUE, $1)
		ON CONFLICT (id) DO UPDATE SET min_confirmations = EXCLUDED.min_confirmations
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query, threshold); err != nil {
		return fmt.Errorf("set threshold: %w", err)
	}
	return nil
}
