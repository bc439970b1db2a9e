package main

import (
	"context"
	"database/sql"
	"time"

	dErrors "quorumgate/pkg/domain-errors"
	txcontext "quorumgate/pkg/platform/tx"
)

const defaultEngineTxTimeout = 15 * time.Second

// enginePostgresTx runs one engine operation inside a SQL transaction. The
// transaction travels through context, so every store touched by the
// operation (ledger rows, votes, owner set) commits or rolls back as one
// unit.
type enginePostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newEnginePostgresTx(db *sql.DB) *enginePostgresTx {
	return &enginePostgresTx{db: db}
}

func (t *enginePostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "operation aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultEngineTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}

	return tx.Commit()
}
