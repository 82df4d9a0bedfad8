package client

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/cauldron/query/sqlgen"
	"github.com/satishbabariya/cauldron/runtime/pool"
)

type recorder struct {
	mu     sync.Mutex
	events []QueryEvent
}

func (r *recorder) middleware() Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		r.mu.Lock()
		r.events = append(r.events, *event)
		r.mu.Unlock()
		return err
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func sqliteConfig(t *testing.T) pool.Config {
	t.Helper()
	return pool.Config{
		Provider: "sqlite",
		Database: filepath.Join(t.TempDir(), "store.db"),
		MaxSize:  4,
	}
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := New(sqliteConfig(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustExec(t *testing.T, s *Store, stmts ...string) {
	t.Helper()
	err := s.WithCursor(context.Background(), ModePlain, func(cur *Cursor) error {
		for _, stmt := range stmts {
			if _, err := cur.Exec(context.Background(), stmt); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func text(v any) string {
	return fmt.Sprintf("%s", v)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(pool.Config{Provider: "postgres", Database: "app"})
	assert.ErrorIs(t, err, pool.ErrConfig)

	_, err = New(pool.Config{Provider: "oracle", Database: "app"})
	assert.ErrorIs(t, err, pool.ErrConfig)
}

func TestNew_CopiesConfig(t *testing.T) {
	cfg := sqliteConfig(t)
	s, err := New(cfg)
	require.NoError(t, err)
	defer s.Close()

	cfg.Database = "elsewhere.db"
	cfg.MaxSize = 99
	assert.NotEqual(t, "elsewhere.db", s.Config().Database)
	assert.Equal(t, 4, s.Config().MaxSize)
	assert.Equal(t, sqlgen.SQLite.Name, s.Dialect().Name)
}

func TestNew_ZeroConfigIsPooled(t *testing.T) {
	s, err := New(pool.Config{
		Provider: "sqlite3",
		Database: filepath.Join(t.TempDir(), "plain.db"),
	})
	require.NoError(t, err)
	defer s.Close()

	assert.False(t, s.Config().NoPool)
	assert.Equal(t, 1, s.Config().MinSize)

	_, err = s.Raw(context.Background(), "select 1")
	require.NoError(t, err)
	assert.Equal(t, pool.StateReady, s.Pool().State())
}

func TestNew_WithDB(t *testing.T) {
	db, err := sqlx.Open("sqlite3", filepath.Join(t.TempDir(), "adopted.db"))
	require.NoError(t, err)
	_, err = db.Exec("create table items (id integer primary key, name text)")
	require.NoError(t, err)

	s, err := New(pool.Config{Provider: "sqlite3"}, WithDB(db))
	require.NoError(t, err)
	assert.Equal(t, pool.StateReady, s.Pool().State())

	ctx := context.Background()
	_, err = s.Insert(ctx, "items", Values{"name": "kettle"})
	require.NoError(t, err)
	n, err := s.Count(ctx, "items", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Zero(t, s.Pool().Stats().Creations)

	require.NoError(t, s.Close())
	assert.Error(t, db.Ping())
}

func TestNewTxOptions(t *testing.T) {
	tests := []struct {
		level IsolationLevel
		want  sql.IsolationLevel
	}{
		{DefaultIsolation, sql.LevelDefault},
		{ReadCommitted, sql.LevelReadCommitted},
		{ReadUncommitted, sql.LevelReadUncommitted},
		{RepeatableRead, sql.LevelRepeatableRead},
		{Serializable, sql.LevelSerializable},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			opts := NewTxOptions(tt.level, true)
			assert.Equal(t, tt.want, opts.Isolation)
			assert.True(t, opts.ReadOnly)
		})
	}
}

func TestCursor_UnknownMode(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Cursor(context.Background(), Mode(7))
	assert.ErrorIs(t, err, ErrUnknownMode)
	assert.Equal(t, pool.StateUninitialized, s.Pool().State())
}

func TestCursor_Modes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustExec(t, s,
		"create table users (id integer primary key, name text, age integer)",
		"insert into users (id, name, age) values (1, 'ann', 31)")

	const q = "select id, name, age from users"

	var plain, named, dict Record
	require.NoError(t, s.WithCursor(ctx, ModePlain, func(cur *Cursor) (err error) {
		plain, err = cur.QueryRow(ctx, q)
		return err
	}))
	require.NoError(t, s.WithCursor(ctx, ModeNamed, func(cur *Cursor) (err error) {
		named, err = cur.QueryRow(ctx, q)
		return err
	}))
	require.NoError(t, s.WithCursor(ctx, ModeDict, func(cur *Cursor) (err error) {
		dict, err = cur.QueryRow(ctx, q)
		return err
	}))

	assert.Nil(t, plain.Columns())
	assert.Nil(t, plain.Map())
	assert.Equal(t, 3, plain.Len())
	assert.Equal(t, int64(1), plain.At(0))
	_, ok := plain.Get("id")
	assert.False(t, ok)

	assert.Equal(t, []string{"id", "name", "age"}, named.Columns())
	age, ok := named.Get("age")
	require.True(t, ok)
	assert.Equal(t, int64(31), age)

	assert.Equal(t, []string{"id", "name", "age"}, dict.Columns())
	name, ok := dict.Get("name")
	require.True(t, ok)
	assert.Equal(t, "ann", text(name))
	assert.Equal(t, int64(1), dict.Map()["id"])
	assert.Equal(t, dict.At(2), dict.Map()["age"])
}

func TestCursor_QueryRowNoRows(t *testing.T) {
	s := newTestStore(t)
	mustExec(t, s, "create table empty (id integer)")

	err := s.WithCursor(context.Background(), ModeNamed, func(cur *Cursor) error {
		_, err := cur.QueryRow(context.Background(), "select id from empty")
		return err
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestCursor_ClosedCursor(t *testing.T) {
	s := newTestStore(t)
	cur, err := s.Cursor(context.Background(), ModePlain)
	require.NoError(t, err)
	require.NoError(t, cur.Close())
	require.NoError(t, cur.Close())

	_, err = cur.Query(context.Background(), "select 1")
	assert.ErrorIs(t, err, ErrCursorClosed)
}

func TestCursor_Unpooled(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.NoPool = true
	s, err := New(cfg)
	require.NoError(t, err)
	defer s.Close()

	cur, err := s.Cursor(context.Background(), ModeNamed)
	require.NoError(t, err)
	require.NotNil(t, cur.owned)
	owned := cur.owned

	rec, err := cur.QueryRow(context.Background(), "select 1 as one")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.At(0))

	require.NoError(t, cur.Close())
	assert.Error(t, owned.PingContext(context.Background()))
	assert.Equal(t, pool.StateUninitialized, s.Pool().State())
}

func TestInsertAndCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustExec(t, s, "create table users (id integer primary key autoincrement, name text not null, age integer)")

	rec, err := s.Insert(ctx, "users", Values{"name": "ann", "age": 31})
	require.NoError(t, err)
	id, ok := rec.Get("id")
	require.True(t, ok)
	assert.Equal(t, int64(1), id)

	_, err = s.Insert(ctx, "users", Values{"name": "bob", "age": 17})
	require.NoError(t, err)

	n, err := s.Count(ctx, "users", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.Count(ctx, "users", Filter{{"age": sqlgen.Gte(18)}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Insert(ctx, "users", Values{})
	assert.ErrorIs(t, err, sqlgen.ErrEmptyValues)
}

func TestBulkInsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustExec(t, s, "create table pairs (a integer, b integer)")

	recs, err := s.BulkInsert(ctx, "pairs", []Values{{"a": 1, "b": 2}, {"a": 3, "b": 4}})
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	rows, err := s.Select(ctx, "pairs", OrderBy("a"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []any{int64(1), int64(2)}, rows[0].Values())
	assert.Equal(t, []any{int64(3), int64(4)}, rows[1].Values())
}

func TestBulkInsert_RejectedBeforeSending(t *testing.T) {
	rec := &recorder{}
	s := newTestStore(t, WithMiddleware(rec.middleware()))

	_, err := s.BulkInsert(context.Background(), "pairs", []Values{{"a": 1, "b": 2}, {"a": 3, "c": 4}})
	assert.ErrorIs(t, err, sqlgen.ErrColumnMismatch)

	_, err = s.BulkInsert(context.Background(), "pairs", nil)
	assert.ErrorIs(t, err, sqlgen.ErrEmptyValues)

	assert.Equal(t, 0, rec.count())
	assert.Equal(t, pool.StateUninitialized, s.Pool().State())
}

func TestSelect_DefaultLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustExec(t, s, "create table nums (n integer)")

	rows := make([]Values, 150)
	for i := range rows {
		rows[i] = Values{"n": i}
	}
	_, err := s.BulkInsert(ctx, "nums", rows)
	require.NoError(t, err)

	got, err := s.Select(ctx, "nums")
	require.NoError(t, err)
	assert.Len(t, got, 100)

	got, err = s.Select(ctx, "nums", Limit(150))
	require.NoError(t, err)
	assert.Len(t, got, 150)

	got, err = s.Select(ctx, "nums",
		Columns("n"),
		Where(Filter{{"n": sqlgen.Gte(140)}}),
		OrderBy("n desc"),
		Limit(3),
		Offset(1))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(148), got[0].At(0))
	assert.Equal(t, int64(146), got[2].At(0))

	got, err = s.Select(ctx, "nums", Columns("n % 2 as parity", "count(*) as total"), GroupBy("parity"), OrderBy("parity"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	total, _ := got[0].Get("total")
	assert.Equal(t, int64(75), total)
}

func TestUpdateAndDelete_RequireFilter(t *testing.T) {
	rec := &recorder{}
	s := newTestStore(t, WithMiddleware(rec.middleware()))
	ctx := context.Background()

	_, err := s.Update(ctx, "users", Values{"name": "x"}, nil)
	assert.ErrorIs(t, err, sqlgen.ErrFilterRequired)

	_, err = s.Update(ctx, "users", Values{"name": "x"}, Filter{})
	assert.ErrorIs(t, err, sqlgen.ErrFilterRequired)

	_, err = s.Delete(ctx, "users", nil)
	assert.ErrorIs(t, err, sqlgen.ErrFilterRequired)

	assert.Equal(t, 0, rec.count())
	assert.Equal(t, pool.StateUninitialized, s.Pool().State())
}

func TestUpdateAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustExec(t, s,
		"create table users (id integer primary key, name text, team text)",
		"insert into users (id, name, team) values (1, 'ann', 'core'), (2, 'bob', 'core'), (3, 'cy', 'web')")

	updated, err := s.Update(ctx, "users", Values{"team": "infra"}, Filter{{"team": sqlgen.Eq("core")}})
	require.NoError(t, err)
	assert.Len(t, updated, 2)
	for _, r := range updated {
		team, _ := r.Get("team")
		assert.Equal(t, "infra", text(team))
	}

	n, err := s.Delete(ctx, "users", Filter{{"id": sqlgen.Eq(1)}, {"name": sqlgen.Like("c%")}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := s.Count(ctx, "users", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), left)
}

func TestTransaction_CommitAndRollback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustExec(t, s, "create table ledger (id integer primary key, amount integer)")

	errBoom := errors.New("boom")
	err := s.Transaction(ctx, func(ctx context.Context, cur *Cursor) error {
		if _, err := cur.Insert(ctx, "ledger", Values{"id": 1, "amount": 10}); err != nil {
			return err
		}
		return errBoom
	})
	assert.Same(t, errBoom, err)

	n, err := s.Count(ctx, "ledger", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	err = s.Transaction(ctx, func(ctx context.Context, cur *Cursor) error {
		assert.True(t, cur.InTransaction())
		assert.Equal(t, ModeNamed, cur.Mode())
		_, err := cur.BulkInsert(ctx, "ledger", []Values{{"id": 1, "amount": 10}, {"id": 2, "amount": 20}})
		return err
	})
	require.NoError(t, err)

	n, err = s.Count(ctx, "ledger", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestTransaction_PanicRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustExec(t, s, "create table ledger (id integer primary key, amount integer)")

	assert.PanicsWithValue(t, "halt", func() {
		_ = s.Transaction(ctx, func(ctx context.Context, cur *Cursor) error {
			if _, err := cur.Exec(ctx, "insert into ledger (id, amount) values (1, 5)"); err != nil {
				return err
			}
			panic("halt")
		})
	})

	n, err := s.Count(ctx, "ledger", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestInTransaction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustExec(t, s, "create table ledger (id integer primary key, amount integer)")

	total, err := InTransaction(ctx, s, func(ctx context.Context, cur *Cursor) (int64, error) {
		if _, err := cur.Exec(ctx, "insert into ledger (id, amount) values (1, 5), (2, 7)"); err != nil {
			return 0, err
		}
		rec, err := cur.QueryRow(ctx, "select sum(amount) from ledger")
		if err != nil {
			return 0, err
		}
		return rec.At(0).(int64), nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), total)

	_, err = InTransaction(ctx, s, func(ctx context.Context, cur *Cursor) (int64, error) {
		return 99, errors.New("nope")
	})
	assert.EqualError(t, err, "nope")
}

func TestNestedTransaction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustExec(t, s, "create table ledger (id integer primary key, amount integer)")

	err := s.Transaction(ctx, func(ctx context.Context, cur *Cursor) error {
		if _, err := cur.Exec(ctx, "insert into ledger (id, amount) values (1, 1)"); err != nil {
			return err
		}
		nestedErr := cur.NestedTransaction(ctx, func(ctx context.Context, cur *Cursor) error {
			if _, err := cur.Exec(ctx, "insert into ledger (id, amount) values (2, 2)"); err != nil {
				return err
			}
			return errors.New("undo inner")
		})
		assert.EqualError(t, nestedErr, "undo inner")
		return cur.NestedTransaction(ctx, func(ctx context.Context, cur *Cursor) error {
			_, err := cur.Exec(ctx, "insert into ledger (id, amount) values (3, 3)")
			return err
		})
	})
	require.NoError(t, err)

	rows, err := s.Select(ctx, "ledger", Columns("id"), OrderBy("id"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0].At(0))
	assert.Equal(t, int64(3), rows[1].At(0))
}

func TestRawAndMogrify(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustExec(t, s,
		"create table users (id integer primary key, name text)",
		"insert into users (id, name) values (1, 'ann'), (2, 'bob')")

	rows, err := s.Raw(ctx, "select name from users where id > ? order by id", 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "bob", text(rows[0].At(0)))

	q, err := s.Mogrify("select * from users where name = ?", "o'neil")
	require.NoError(t, err)
	assert.Equal(t, "select * from users where name = 'o''neil'", q)
}

func TestCallProc_UnsupportedOnSQLite(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CallProc(context.Background(), "refresh", []any{1}, time.Second)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestServerVersion(t *testing.T) {
	s := newTestStore(t)
	v, err := s.ServerVersion(context.Background())
	require.NoError(t, err)
	assert.True(t, v.GreaterThanOrEqual(version.Must(version.NewVersion("3.35.0"))), v.String())

	again, err := s.ServerVersion(context.Background())
	require.NoError(t, err)
	assert.Same(t, v, again)
}

func TestParseServerVersion(t *testing.T) {
	for raw, want := range map[string]string{
		"16.2 (Debian 16.2-1.pgdg120+2)": "16.2.0",
		"3.45.1":                         "3.45.1",
	} {
		v, err := parseServerVersion(raw)
		require.NoError(t, err)
		assert.Equal(t, want, v.String())
	}

	_, err := parseServerVersion(42)
	assert.Error(t, err)
}

func TestReturningUnsupportedOnMySQL(t *testing.T) {
	backing := sqliteConfig(t)
	open := func(ctx context.Context, _ pool.Config, maxConns int) (*sqlx.DB, error) {
		return pool.Open(ctx, backing, maxConns)
	}
	s, err := New(pool.Config{
		Provider: "mysql",
		Database: "app",
		User:     "ann",
		Host:     "localhost",
		Port:     3306,
	}, WithOpener(open))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Insert(context.Background(), "users", Values{"name": "ann"})
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = s.Update(context.Background(), "users", Values{"name": "ann"}, Filter{{"id": sqlgen.Eq(1)}})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestStatementError_Constraint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustExec(t, s, "create table users (id integer primary key, email text unique not null)")

	_, err := s.Insert(ctx, "users", Values{"id": 1, "email": "a@x"})
	require.NoError(t, err)

	_, err = s.Insert(ctx, "users", Values{"id": 2, "email": "a@x"})
	require.Error(t, err)
	assert.True(t, IsUniqueConstraint(err))
	assert.False(t, IsForeignKeyConstraint(err))

	var stmtErr *StatementError
	require.ErrorAs(t, err, &stmtErr)
	assert.Equal(t, "insert", stmtErr.Operation)
	assert.Equal(t, "users", stmtErr.Table)
	assert.Contains(t, stmtErr.Error(), "insert on users")

	_, err = s.Insert(ctx, "users", Values{"id": 3})
	assert.True(t, IsNullConstraint(err))
}

func TestMiddleware_SeesEveryStatement(t *testing.T) {
	rec := &recorder{}
	s := newTestStore(t)
	s.Use(rec.middleware())
	ctx := context.Background()
	mustExec(t, s, "create table t (a integer)")

	_, err := s.Select(ctx, "t", Where(Filter{{"a": sqlgen.Eq(1)}}))
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.events, 2)
	last := rec.events[1]
	assert.Equal(t, "select", last.Operation)
	assert.Equal(t, "t", last.Table)
	assert.Equal(t, "select * from t where ((a = ?)) limit 100 offset 0;", last.Query)
	assert.Equal(t, []any{1}, last.Args)
	assert.NoError(t, last.Error)
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	s := newTestStore(t, WithMiddleware(LoggingMiddleware(logger)))

	_, err := s.Raw(context.Background(), "select 1")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Statement executed")
	assert.Contains(t, buf.String(), "op=raw")

	_, err = s.Raw(context.Background(), "select * from missing")
	require.Error(t, err)
	assert.Contains(t, buf.String(), "Statement failed")
}
