package main

import (
	"context"
	"database/sql"
	"time"

	dErrors "siteledger/pkg/domain-errors"
	txcontext "siteledger/pkg/platform/tx"
)

const defaultLedgerTxTimeout = 5 * time.Second

// postgresTx runs a unit of work inside one database transaction, carried on
// the context for every store the callback touches. The key is ignored:
// serialization comes from the row locks the stores take inside the
// transaction (the ownership store on the company row, the verification
// store on the record under review), not from in-process locks.
// Satisfies both the ownership and verification StoreTx interfaces.
type postgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newPostgresTx(db *sql.DB) *postgresTx {
	return &postgresTx{db: db}
}

func (t *postgresTx) RunInTx(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultLedgerTxTimeout
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
