package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/satishbabariya/cauldron/internal/debug"
)

// Mode selects how a cursor shapes result rows.
type Mode int

const (
	// ModePlain yields positional records without column names.
	ModePlain Mode = iota
	// ModeNamed yields records with ordered column names.
	ModeNamed
	// ModeDict yields records indexed by column name.
	ModeDict
)

func (m Mode) String() string {
	switch m {
	case ModePlain:
		return "plain"
	case ModeNamed:
		return "named"
	case ModeDict:
		return "dict"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Valid reports whether m is one of the defined modes.
func (m Mode) Valid() bool {
	return m >= ModePlain && m <= ModeDict
}

type queryer interface {
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Cursor runs statements on one connection. A cursor is not safe for
// concurrent use and must be closed.
type Cursor struct {
	store *Store
	mode  Mode
	conn  *sqlx.Conn
	tx    *sqlx.Tx
	depth int
	// owned is the single-connection handle of an unpooled cursor.
	owned  *sqlx.DB
	closed bool
}

// Cursor acquires a cursor in the given mode. With pooling enabled the
// connection comes from the store's pool; otherwise a dedicated connection
// is opened and closed together with the cursor.
func (s *Store) Cursor(ctx context.Context, mode Mode) (*Cursor, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(mode))
	}

	var db *sqlx.DB
	var owned *sqlx.DB
	var err error
	if s.config.NoPool {
		db, err = s.pool.OpenSingle(ctx)
		owned = db
	} else {
		db, err = s.pool.Get(ctx)
	}
	if err != nil {
		return nil, err
	}

	conn, err := db.Connx(ctx)
	if err != nil {
		if owned != nil {
			_ = owned.Close()
		}
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	return &Cursor{store: s, mode: mode, conn: conn, owned: owned}, nil
}

// WithCursor runs fn with a cursor that is always released afterwards.
// Release failures are logged and never replace fn's error.
func (s *Store) WithCursor(ctx context.Context, mode Mode, fn func(cur *Cursor) error) error {
	cur, err := s.Cursor(ctx, mode)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := cur.Close(); cerr != nil {
			debug.Warn("Failed to release cursor", "mode", mode, "error", cerr)
		}
	}()
	return fn(cur)
}

// Mode returns the cursor's result mode.
func (c *Cursor) Mode() Mode {
	return c.mode
}

// Dialect returns the SQL dialect of the cursor's store.
func (c *Cursor) Dialect() Dialect {
	return c.store.dialect
}

func (c *Cursor) queryer() queryer {
	if c.tx != nil {
		return c.tx
	}
	return c.conn
}

// Query runs a statement and returns every row. The SQL is sent unchanged.
func (c *Cursor) Query(ctx context.Context, query string, args ...any) ([]Record, error) {
	return c.query(ctx, &QueryEvent{Operation: "query", Query: query, Args: args})
}

// QueryRow runs a statement and returns its first row, or sql.ErrNoRows.
func (c *Cursor) QueryRow(ctx context.Context, query string, args ...any) (Record, error) {
	return c.queryRow(ctx, &QueryEvent{Operation: "query", Query: query, Args: args})
}

// Exec runs a statement and returns the number of rows affected.
func (c *Cursor) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return c.exec(ctx, &QueryEvent{Operation: "exec", Query: query, Args: args})
}

func (c *Cursor) query(ctx context.Context, event *QueryEvent) ([]Record, error) {
	if c.closed {
		return nil, ErrCursorClosed
	}

	var records []Record
	err := c.store.executeWithMiddleware(ctx, event, func() error {
		rows, err := c.queryer().QueryxContext(ctx, event.Query, event.Args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		records, err = scanRecords(rows, c.mode)
		event.Rows = int64(len(records))
		return err
	})
	if err != nil {
		return nil, &StatementError{Operation: event.Operation, Table: event.Table, Query: event.Query, Cause: err}
	}
	return records, nil
}

func (c *Cursor) queryRow(ctx context.Context, event *QueryEvent) (Record, error) {
	records, err := c.query(ctx, event)
	if err != nil {
		return Record{}, err
	}
	if len(records) == 0 {
		return Record{}, sql.ErrNoRows
	}
	return records[0], nil
}

func (c *Cursor) exec(ctx context.Context, event *QueryEvent) (int64, error) {
	if c.closed {
		return 0, ErrCursorClosed
	}

	err := c.store.executeWithMiddleware(ctx, event, func() error {
		res, err := c.queryer().ExecContext(ctx, event.Query, event.Args...)
		if err != nil {
			return err
		}
		event.Rows, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, &StatementError{Operation: event.Operation, Table: event.Table, Query: event.Query, Cause: err}
	}
	return event.Rows, nil
}

// Close releases the connection. A transaction still open is rolled back.
// Closing twice is a no-op.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if c.tx != nil {
		if err := c.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			errs = append(errs, fmt.Errorf("failed to roll back transaction: %w", err))
		}
		c.tx = nil
	}
	if err := c.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		errs = append(errs, fmt.Errorf("failed to release connection: %w", err))
	}
	if c.owned != nil {
		if err := c.owned.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
	}
	return errors.Join(errs...)
}
