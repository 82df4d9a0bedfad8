package sqlgen

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type level int

func TestLiteral(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	n := 42

	tests := []struct {
		name    string
		dialect Dialect
		in      any
		want    string
	}{
		{"nil", Postgres, nil, "NULL"},
		{"int", Postgres, 7, "7"},
		{"named int", Postgres, level(3), "3"},
		{"uint", SQLite, uint8(200), "200"},
		{"float", Postgres, 1.5, "1.5"},
		{"string pg", Postgres, "o'clock", "'o''clock'"},
		{"backslash pg", Postgres, `a\b`, ` E'a\\b'`},
		{"string mysql", MySQL, `it's\`, `'it''s\\'`},
		{"bool pg", Postgres, true, "TRUE"},
		{"bool sqlite", SQLite, false, "0"},
		{"bytes sqlite", SQLite, []byte{0xde, 0xad}, "X'dead'"},
		{"bytes pg", Postgres, []byte{0xbe, 0xef}, ` E'\\xbeef'`},
		{"time pg", Postgres, ts, "'2024-03-01T12:30:00Z'"},
		{"pointer", SQLite, &n, "42"},
		{"nil pointer", SQLite, (*int)(nil), "NULL"},
		{"valuer", SQLite, sql.NullString{String: "x", Valid: true}, "'x'"},
		{"null valuer", SQLite, sql.NullInt64{}, "NULL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.dialect.Literal(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLiteral_Unsupported(t *testing.T) {
	_, err := SQLite.Literal(struct{ A int }{1})
	assert.ErrorIs(t, err, ErrUnsupportedValue)

	_, err = SQLite.Literal(map[string]int{})
	assert.ErrorIs(t, err, ErrUnsupportedValue)
}

func TestMogrify(t *testing.T) {
	got, err := SQLite.Mogrify("select * from t where a = ? and b = '?' and c = ?", 1, "x")
	require.NoError(t, err)
	assert.Equal(t, "select * from t where a = 1 and b = '?' and c = 'x'", got)

	_, err = SQLite.Mogrify("select ?", 1, 2)
	assert.ErrorIs(t, err, ErrArgCount)

	_, err = SQLite.Mogrify("select ?, ?", 1)
	assert.ErrorIs(t, err, ErrArgCount)
}

func TestMogrify_Numbered(t *testing.T) {
	got, err := Postgres.Mogrify("select * from t where id = $1 and (a = $2 or b = $2) and c = '$3'", 7, "x")
	require.NoError(t, err)
	assert.Equal(t, "select * from t where id = 7 and (a = 'x' or b = 'x') and c = '$3'", got)

	got, err = Postgres.Mogrify("select $$body$$, ?", 1)
	require.NoError(t, err)
	assert.Equal(t, "select $$body$$, 1", got)

	_, err = Postgres.Mogrify("select $3", 1)
	assert.ErrorIs(t, err, ErrArgCount)

	_, err = Postgres.Mogrify("select $1", 1, 2)
	assert.ErrorIs(t, err, ErrArgCount)

	_, err = Postgres.Mogrify("select $1, ?", 1, 2)
	assert.ErrorIs(t, err, ErrArgCount)

	_, err = SQLite.Mogrify("select $1", 1)
	assert.ErrorIs(t, err, ErrArgCount)
}
