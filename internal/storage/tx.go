package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// WithTx runs fn inside a transaction on one pooled connection. The
// transaction commits when fn returns nil and rolls back when fn returns an
// error or panics; the connection is released on every path.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "begin", Err: err}
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "commit", Err: fmt.Errorf("failed to commit transaction: %w", err)}
	}
	committed = true

	return nil
}
