package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/satishbabariya/cauldron/query/sqlgen"
)

// SelectOption configures Select.
type SelectOption func(*sqlgen.SelectSpec)

// Columns restricts the selected columns. The default is every column.
func Columns(cols ...string) SelectOption {
	return func(s *sqlgen.SelectSpec) { s.Columns = cols }
}

// Where filters the selected rows.
func Where(f Filter) SelectOption {
	return func(s *sqlgen.SelectSpec) { s.Where = f }
}

// OrderBy sorts the rows by a column expression.
func OrderBy(expr string) SelectOption {
	return func(s *sqlgen.SelectSpec) { s.OrderBy = expr }
}

// GroupBy groups the rows by a column expression.
func GroupBy(expr string) SelectOption {
	return func(s *sqlgen.SelectSpec) { s.GroupBy = expr }
}

// Limit caps the number of rows. The default is sqlgen.DefaultLimit.
func Limit(n int) SelectOption {
	return func(s *sqlgen.SelectSpec) { s.Limit = n }
}

// Offset skips rows.
func Offset(n int) SelectOption {
	return func(s *sqlgen.SelectSpec) { s.Offset = n }
}

// statement builds the event for a rendered query, rebound for the dialect.
func (c *Cursor) statement(op, table string, q sqlgen.Query) *QueryEvent {
	return &QueryEvent{
		Operation: op,
		Table:     table,
		Query:     c.store.dialect.Rebind(q.SQL),
		Args:      q.Args,
	}
}

// Count returns the number of rows in table matching where. A nil filter
// counts every row.
func (c *Cursor) Count(ctx context.Context, table string, where Filter) (int64, error) {
	q, err := sqlgen.Count(table, where)
	if err != nil {
		return 0, err
	}
	rec, err := c.queryRow(ctx, c.statement("count", table, q))
	if err != nil {
		return 0, err
	}
	return toInt64(rec.At(0))
}

// Insert writes one row and returns it as stored.
func (c *Cursor) Insert(ctx context.Context, table string, values Values) (Record, error) {
	q, err := sqlgen.Insert(table, values)
	if err != nil {
		return Record{}, err
	}
	if err := c.store.checkReturning(ctx, c); err != nil {
		return Record{}, err
	}
	return c.queryRow(ctx, c.statement("insert", table, q))
}

// BulkInsert writes every row in one statement and returns the stored rows.
// All rows must have the columns of the first one. Values are escaped into
// the statement text rather than bound.
func (c *Cursor) BulkInsert(ctx context.Context, table string, rows []Values) ([]Record, error) {
	q, err := sqlgen.BulkInsert(c.store.dialect, table, rows)
	if err != nil {
		return nil, err
	}
	if err := c.store.checkReturning(ctx, c); err != nil {
		return nil, err
	}
	// The literal rows may contain "?", so the query is not rebound.
	return c.query(ctx, &QueryEvent{Operation: "bulk_insert", Table: table, Query: q.SQL})
}

// Update sets values on the rows matching where and returns the changed
// rows. An empty filter is rejected before anything is sent.
func (c *Cursor) Update(ctx context.Context, table string, values Values, where Filter) ([]Record, error) {
	q, err := sqlgen.Update(table, values, where)
	if err != nil {
		return nil, err
	}
	if err := c.store.checkReturning(ctx, c); err != nil {
		return nil, err
	}
	return c.query(ctx, c.statement("update", table, q))
}

// Delete removes the rows matching where and returns how many were removed.
// An empty filter is rejected before anything is sent.
func (c *Cursor) Delete(ctx context.Context, table string, where Filter) (int64, error) {
	q, err := sqlgen.Delete(table, where)
	if err != nil {
		return 0, err
	}
	return c.exec(ctx, c.statement("delete", table, q))
}

// Select returns rows from table. Without a Limit option at most
// sqlgen.DefaultLimit rows are returned.
func (c *Cursor) Select(ctx context.Context, table string, opts ...SelectOption) ([]Record, error) {
	spec := sqlgen.SelectSpec{Table: table, Limit: sqlgen.DefaultLimit}
	for _, opt := range opts {
		opt(&spec)
	}
	q, err := sqlgen.Select(spec)
	if err != nil {
		return nil, err
	}
	return c.query(ctx, c.statement("select", table, q))
}

// Raw runs a caller-written statement. The SQL and its placeholders are
// sent as the driver expects them.
func (c *Cursor) Raw(ctx context.Context, query string, args ...any) ([]Record, error) {
	return c.query(ctx, &QueryEvent{Operation: "raw", Query: query, Args: args})
}

// CallProc invokes a stored procedure. A positive timeout bounds the call.
func (c *Cursor) CallProc(ctx context.Context, name string, params []any, timeout time.Duration) ([]Record, error) {
	query, err := c.store.dialect.Call(name, len(params))
	if errors.Is(err, sqlgen.ErrUnsupportedStatement) {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return c.query(ctx, c.statement("call", name, sqlgen.Query{SQL: query, Args: params}))
}

// Count returns the number of rows in table matching where.
func (s *Store) Count(ctx context.Context, table string, where Filter) (int64, error) {
	var n int64
	err := s.WithCursor(ctx, ModePlain, func(cur *Cursor) error {
		var err error
		n, err = cur.Count(ctx, table, where)
		return err
	})
	return n, err
}

// Insert writes one row and returns it as stored.
func (s *Store) Insert(ctx context.Context, table string, values Values) (Record, error) {
	if _, err := sqlgen.Insert(table, values); err != nil {
		return Record{}, err
	}
	var rec Record
	err := s.WithCursor(ctx, ModeNamed, func(cur *Cursor) error {
		var err error
		rec, err = cur.Insert(ctx, table, values)
		return err
	})
	return rec, err
}

// BulkInsert writes every row in one statement and returns the stored rows.
// Malformed rows are rejected before a connection is acquired.
func (s *Store) BulkInsert(ctx context.Context, table string, rows []Values) ([]Record, error) {
	if _, err := sqlgen.BulkInsert(s.dialect, table, rows); err != nil {
		return nil, err
	}
	return s.records(ctx, ModeNamed, func(cur *Cursor) ([]Record, error) {
		return cur.BulkInsert(ctx, table, rows)
	})
}

// Update sets values on the rows matching where and returns the changed rows.
// An empty filter is rejected before a connection is acquired.
func (s *Store) Update(ctx context.Context, table string, values Values, where Filter) ([]Record, error) {
	if _, err := sqlgen.Update(table, values, where); err != nil {
		return nil, err
	}
	return s.records(ctx, ModeNamed, func(cur *Cursor) ([]Record, error) {
		return cur.Update(ctx, table, values, where)
	})
}

// Delete removes the rows matching where and returns how many were removed.
// An empty filter is rejected before a connection is acquired.
func (s *Store) Delete(ctx context.Context, table string, where Filter) (int64, error) {
	if _, err := sqlgen.Delete(table, where); err != nil {
		return 0, err
	}
	var n int64
	err := s.WithCursor(ctx, ModePlain, func(cur *Cursor) error {
		var err error
		n, err = cur.Delete(ctx, table, where)
		return err
	})
	return n, err
}

// Select returns rows from table, at most sqlgen.DefaultLimit unless Limit
// is given.
func (s *Store) Select(ctx context.Context, table string, opts ...SelectOption) ([]Record, error) {
	return s.records(ctx, ModeNamed, func(cur *Cursor) ([]Record, error) {
		return cur.Select(ctx, table, opts...)
	})
}

// Raw runs a caller-written statement and returns its rows.
func (s *Store) Raw(ctx context.Context, query string, args ...any) ([]Record, error) {
	return s.records(ctx, ModeNamed, func(cur *Cursor) ([]Record, error) {
		return cur.Raw(ctx, query, args...)
	})
}

// CallProc invokes a stored procedure and returns its rows.
func (s *Store) CallProc(ctx context.Context, name string, params []any, timeout time.Duration) ([]Record, error) {
	return s.records(ctx, ModeNamed, func(cur *Cursor) ([]Record, error) {
		return cur.CallProc(ctx, name, params, timeout)
	})
}

// Mogrify renders query with args inlined as escaped literals. Nothing is
// sent to the database.
func (s *Store) Mogrify(query string, args ...any) (string, error) {
	return s.dialect.Mogrify(query, args...)
}

func (s *Store) records(ctx context.Context, mode Mode, fn func(cur *Cursor) ([]Record, error)) ([]Record, error) {
	var out []Record
	err := s.WithCursor(ctx, mode, func(cur *Cursor) error {
		var err error
		out, err = fn(cur)
		return err
	})
	return out, err
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected count type %T", v)
	}
}
