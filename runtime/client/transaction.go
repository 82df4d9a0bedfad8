package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/satishbabariya/cauldron/internal/debug"
)

// IsolationLevel represents transaction isolation levels
type IsolationLevel int

const (
	// DefaultIsolation uses the server's default level
	DefaultIsolation IsolationLevel = iota
	// ReadCommitted prevents dirty reads
	ReadCommitted
	// ReadUncommitted allows dirty reads
	ReadUncommitted
	// RepeatableRead prevents dirty reads and non-repeatable reads
	RepeatableRead
	// Serializable prevents dirty reads, non-repeatable reads, and phantom reads
	Serializable
)

// ToSQLIsolationLevel converts IsolationLevel to sql.IsolationLevel
func (level IsolationLevel) ToSQLIsolationLevel() sql.IsolationLevel {
	switch level {
	case ReadCommitted:
		return sql.LevelReadCommitted
	case ReadUncommitted:
		return sql.LevelReadUncommitted
	case RepeatableRead:
		return sql.LevelRepeatableRead
	case Serializable:
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

// NewTxOptions creates sql.TxOptions from isolation level
func NewTxOptions(isolation IsolationLevel, readOnly bool) *sql.TxOptions {
	return &sql.TxOptions{
		Isolation: isolation.ToSQLIsolationLevel(),
		ReadOnly:  readOnly,
	}
}

// TransactionFunc is a function that runs within a transaction
type TransactionFunc func(ctx context.Context, cur *Cursor) error

// Transaction runs fn on a named-mode cursor inside a transaction.
// If fn returns nil the transaction is committed. If fn returns an error the
// transaction is rolled back and that error is returned unchanged. A panic
// rolls back and is re-raised. Each call acquires its own cursor, so calling
// Transaction from inside fn starts an independent transaction.
func (s *Store) Transaction(ctx context.Context, fn TransactionFunc) error {
	return s.TransactionWithOptions(ctx, nil, fn)
}

// TransactionWithOptions executes a transaction with custom options
func (s *Store) TransactionWithOptions(ctx context.Context, opts *sql.TxOptions, fn TransactionFunc) error {
	return s.WithCursor(ctx, ModeNamed, func(cur *Cursor) error {
		if err := cur.Begin(ctx, opts); err != nil {
			return err
		}

		// Defer rollback in case of panic
		defer func() {
			if p := recover(); p != nil {
				cur.rollback()
				panic(p) // re-throw panic after rollback
			}
		}()

		if err := fn(ctx, cur); err != nil {
			cur.rollback()
			return err
		}
		return cur.Commit()
	})
}

// TransactionWithIsolation executes a transaction with a specific isolation level
func (s *Store) TransactionWithIsolation(ctx context.Context, isolation IsolationLevel, fn TransactionFunc) error {
	return s.TransactionWithOptions(ctx, NewTxOptions(isolation, false), fn)
}

// ReadOnlyTransaction executes a read-only transaction
func (s *Store) ReadOnlyTransaction(ctx context.Context, fn TransactionFunc) error {
	return s.TransactionWithOptions(ctx, &sql.TxOptions{ReadOnly: true}, fn)
}

// InTransaction runs fn in a transaction on s and returns its result when
// the transaction commits.
func InTransaction[T any](ctx context.Context, s *Store, fn func(ctx context.Context, cur *Cursor) (T, error)) (T, error) {
	var result T
	err := s.Transaction(ctx, func(ctx context.Context, cur *Cursor) error {
		var err error
		result, err = fn(ctx, cur)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// Begin starts a transaction on the cursor's connection.
func (c *Cursor) Begin(ctx context.Context, opts *sql.TxOptions) error {
	if c.closed {
		return ErrCursorClosed
	}
	if c.tx != nil {
		return errors.New("transaction already in progress")
	}
	tx, err := c.conn.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	c.tx = tx
	return nil
}

// Commit commits the cursor's transaction.
func (c *Cursor) Commit() error {
	if c.tx == nil {
		return sql.ErrTxDone
	}
	tx := c.tx
	c.tx = nil
	c.depth = 0
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback aborts the cursor's transaction.
func (c *Cursor) Rollback() error {
	if c.tx == nil {
		return sql.ErrTxDone
	}
	tx := c.tx
	c.tx = nil
	c.depth = 0
	return tx.Rollback()
}

// rollback aborts the transaction and logs a failure instead of returning it.
func (c *Cursor) rollback() {
	if err := c.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		debug.Error("Transaction rollback failed", "error", err)
	}
}

// InTransaction reports whether the cursor has an open transaction.
func (c *Cursor) InTransaction() bool {
	return c.tx != nil
}

// NestedTransaction runs fn inside a savepoint of the cursor's open
// transaction. An error from fn rolls back to the savepoint and is returned
// unchanged; the outer transaction continues.
func (c *Cursor) NestedTransaction(ctx context.Context, fn TransactionFunc) error {
	if c.tx == nil {
		return errors.New("nested transaction requires an open transaction")
	}

	c.depth++
	savepointName := fmt.Sprintf("sp_%d", c.depth)
	defer func() { c.depth-- }()

	// Create savepoint
	if _, err := c.tx.ExecContext(ctx, "savepoint "+savepointName); err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}

	// Defer rollback to savepoint in case of panic
	defer func() {
		if p := recover(); p != nil {
			_, _ = c.tx.ExecContext(ctx, "rollback to savepoint "+savepointName)
			panic(p)
		}
	}()

	if err := fn(ctx, c); err != nil {
		if _, rbErr := c.tx.ExecContext(ctx, "rollback to savepoint "+savepointName); rbErr != nil {
			debug.Error("Savepoint rollback failed", "savepoint", savepointName, "error", rbErr)
		}
		return err
	}

	// Release savepoint (commit nested transaction)
	if _, err := c.tx.ExecContext(ctx, "release savepoint "+savepointName); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}
