package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"quorumgate/pkg/platform/sentinel"
	txcontext "quorumgate/pkg/platform/tx"
)

// PostgresStore persists the ledger in two tables: transactions (one row per
// entry, id assigned from a dense sequence starting at 0) and
// transaction_votes (one row per active vote, keyed by kind).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const (
	voteKindConfirm = "confirm"
	voteKindCancel  = "cancel"
)

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

func (s *PostgresStore) Append(ctx context.Context, tx *Transaction) (int64, error) {
	var payload []byte
	if tx.Payload != nil {
		payload = tx.Payload
	}
	query := `
		INSERT INTO transactions (id, target, value, payload, submitter, created_at)
		VALUES ((SELECT COALESCE(MAX(id) + 1, 0) FROM transactions), $1, $2, $3, $4, $5)
		RETURNING id
	`
	var id int64
	err := s.execer(ctx).QueryRowContext(ctx, query,
		tx.Target, tx.Value, payload, tx.Submitter, tx.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("append transaction: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*Transaction, error) {
	query := `
		SELECT id, target, value, payload, submitter, created_at,
		       confirmations, cancellations, executed, cancelled
		FROM transactions WHERE id = $1
	`
	tx := &Transaction{}
	var payload []byte
	err := s.execer(ctx).QueryRowContext(ctx, query, id).Scan(
		&tx.ID, &tx.Target, &tx.Value, &payload, &tx.Submitter, &tx.CreatedAt,
		&tx.Confirmations, &tx.Cancellations, &tx.Executed, &tx.Cancelled,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %d: %w", id, err)
	}
	if len(payload) > 0 {
		tx.Payload = json.RawMessage(payload)
	}

	if err := s.loadVotes(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *PostgresStore) loadVotes(ctx context.Context, tx *Transaction) error {
	query := `SELECT owner_id, kind FROM transaction_votes WHERE tx_id = $1`
	rows, err := s.execer(ctx).QueryContext(ctx, query, tx.ID)
	if err != nil {
		return fmt.Errorf("load votes for %d: %w", tx.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var ownerID, kind string
		if err := rows.Scan(&ownerID, &kind); err != nil {
			return fmt.Errorf("scan vote: %w", err)
		}
		switch kind {
		case voteKindConfirm:
			if tx.ConfirmedBy == nil {
				tx.ConfirmedBy = make(map[string]bool)
			}
			tx.ConfirmedBy[ownerID] = true
		case voteKindCancel:
			if tx.CancelRequestedBy == nil {
				tx.CancelRequestedBy = make(map[string]bool)
			}
			tx.CancelRequestedBy[ownerID] = true
		}
	}
	return rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.execer(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) Update(ctx context.Context, tx *Transaction) error {
	execer := s.execer(ctx)

	query := `
		UPDATE transactions
		SET confirmations = $2, cancellations = $3, executed = $4, cancelled = $5
		WHERE id = $1
	`
	res, err := execer.ExecContext(ctx, query,
		tx.ID, tx.Confirmations, tx.Cancellations, tx.Executed, tx.Cancelled)
	if err != nil {
		return fmt.Errorf("update transaction %d: %w", tx.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transaction %d: %w", tx.ID, err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}

	// Votes are few (bounded by the owner set), so rewriting them wholesale
	// keeps the store simple and the counters trivially consistent.
	if _, err := execer.ExecContext(ctx,
		`DELETE FROM transaction_votes WHERE tx_id = $1`, tx.ID); err != nil {
		return fmt.Errorf("clear votes for %d: %w", tx.ID, err)
	}
	for ownerID := range tx.ConfirmedBy {
		if err := s.insertVote(ctx, execer, tx.ID, ownerID, voteKindConfirm); err != nil {
			return err
		}
	}
	for ownerID := range tx.CancelRequestedBy {
		if err := s.insertVote(ctx, execer, tx.ID, ownerID, voteKindCancel); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) insertVote(ctx context.Context, execer dbExecutor, txID int64, ownerID, kind string) error {
	query := `INSERT INTO transaction_votes (tx_id, owner_id, kind) VALUES ($1, $2, $3)`
	if _, err := execer.ExecContext(ctx, query, txID, ownerID, kind); err != nil {
		return fmt.Errorf("insert %s vote for %d: %w", kind, txID, err)
	}
	return nil
}
