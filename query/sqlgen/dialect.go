package sqlgen

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Dialect describes how statements are bound and how literals are written
// for one database provider.
type Dialect struct {
	// Name is the canonical provider name.
	Name string
	// DriverName is the database/sql driver the provider registers.
	DriverName string
	// BindType is the sqlx bind variable style.
	BindType int
	// Returning reports whether the provider understands "returning *".
	// For SQLite it also depends on the library version.
	Returning bool
	// MinReturningVersion is the first server version supporting
	// "returning *", empty when every version does.
	MinReturningVersion string
	// VersionQuery returns the server version as its first column.
	VersionQuery string

	callTemplate string
	quoteString  func(string) string
	quoteBytes   func([]byte) string
	trueLit      string
	falseLit     string
	timeLayout   string
}

var (
	// Postgres is the PostgreSQL dialect (lib/pq).
	Postgres = Dialect{
		Name:         "postgres",
		DriverName:   "postgres",
		BindType:     sqlx.DOLLAR,
		Returning:    true,
		VersionQuery: "show server_version;",
		callTemplate: "select * from %s(%s);",
		quoteString:  pq.QuoteLiteral,
		quoteBytes: func(b []byte) string {
			return pq.QuoteLiteral(`\x` + hex.EncodeToString(b))
		},
		trueLit:    "TRUE",
		falseLit:   "FALSE",
		timeLayout: time.RFC3339Nano,
	}

	// MySQL is the MySQL dialect (go-sql-driver/mysql).
	MySQL = Dialect{
		Name:         "mysql",
		DriverName:   "mysql",
		BindType:     sqlx.QUESTION,
		Returning:    false,
		VersionQuery: "select version();",
		callTemplate: "call %s(%s);",
		quoteString:  quoteMySQLString,
		quoteBytes:   hexBlob,
		trueLit:      "TRUE",
		falseLit:     "FALSE",
		timeLayout:   "2006-01-02 15:04:05.999999",
	}

	// SQLite is the SQLite dialect (mattn/go-sqlite3). It has no stored
	// procedures.
	SQLite = Dialect{
		Name:                "sqlite3",
		DriverName:          "sqlite3",
		BindType:            sqlx.QUESTION,
		Returning:           true,
		MinReturningVersion: "3.35.0",
		VersionQuery:        "select sqlite_version();",
		quoteString:         quoteStandardString,
		quoteBytes:          hexBlob,
		trueLit:             "1",
		falseLit:            "0",
		timeLayout:          "2006-01-02 15:04:05.999999999-07:00",
	}
)

// DialectFor returns the dialect registered for a provider name.
func DialectFor(provider string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "postgres", "postgresql", "pq":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
}

// Call renders a stored procedure invocation with n placeholders.
func (d Dialect) Call(name string, n int) (string, error) {
	if d.callTemplate == "" {
		return "", fmt.Errorf("%w: %s has no stored procedures", ErrUnsupportedStatement, d.Name)
	}
	if strings.TrimSpace(name) == "" {
		return "", ErrEmptyTable
	}
	return fmt.Sprintf(d.callTemplate, name, placeholders(n)), nil
}

// Rebind converts the compiler's "?" placeholders to the dialect's bind style.
func (d Dialect) Rebind(query string) string {
	return sqlx.Rebind(d.BindType, query)
}

func quoteStandardString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

var mysqlEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `''`,
	"\x00", `\0`,
	"\n", `\n`,
	"\r", `\r`,
	"\x1a", `\Z`,
)

func quoteMySQLString(s string) string {
	return "'" + mysqlEscaper.Replace(s) + "'"
}

func hexBlob(b []byte) string {
	return "X'" + hex.EncodeToString(b) + "'"
}
