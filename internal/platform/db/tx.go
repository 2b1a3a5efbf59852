package db

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// RunInTx starts a transaction and runs fn. nil from fn commits, an error
// rolls back.
func RunInTx(ctx context.Context, conn *sqlx.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx *sql.Tx) error) error {
	tx, err := conn.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
