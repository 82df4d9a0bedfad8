package pool

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/satishbabariya/cauldron/query/sqlgen"
)

// Opener opens a database handle allowing at most maxConns connections and
// verifies it is reachable.
type Opener func(ctx context.Context, cfg Config, maxConns int) (*sqlx.DB, error)

// Open is the default Opener. It builds a driver connector for the
// configured provider and pings the database before returning.
func Open(ctx context.Context, cfg Config, maxConns int) (*sqlx.DB, error) {
	d, err := cfg.Dialect()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	var sqlDB *sql.DB
	switch d.Name {
	case sqlgen.Postgres.Name:
		connector, err := pq.NewConnector(PostgresDSN(cfg))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
		connector.Dialer(newKeepAliveDialer(cfg))
		sqlDB = sql.OpenDB(connector)
	case sqlgen.MySQL.Name:
		connector, err := mysql.NewConnector(mysqlConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfig, err)
		}
		sqlDB = sql.OpenDB(connector)
	case sqlgen.SQLite.Name:
		sqlDB, err = sql.Open(d.DriverName, SQLiteDSN(cfg))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnection, err)
		}
	default:
		return nil, fmt.Errorf("%w: no opener for provider %s", ErrConfig, d.Name)
	}

	db := sqlx.NewDb(sqlDB, d.DriverName)
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return db, nil
}

// PostgresDSN renders the connection URL understood by lib/pq.
func PostgresDSN(cfg Config) string {
	q := url.Values{}
	q.Set("sslmode", cfg.TLSMode())
	if cfg.ConnectTimeout > 0 {
		secs := int(cfg.ConnectTimeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		q.Set("connect_timeout", strconv.Itoa(secs))
	}
	for k, v := range cfg.Options {
		q.Set(k, v)
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:     "/" + cfg.Database,
		RawQuery: q.Encode(),
	}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else if cfg.User != "" {
		u.User = url.User(cfg.User)
	}
	return u.String()
}

// SQLiteDSN renders the file DSN used by mattn/go-sqlite3.
func SQLiteDSN(cfg Config) string {
	q := url.Values{}
	q.Set("_busy_timeout", strconv.FormatInt(cfg.ConnectTimeout.Milliseconds(), 10))
	q.Set("_foreign_keys", "on")
	for k, v := range cfg.Options {
		q.Set(k, v)
	}
	return fmt.Sprintf("file:%s?%s", cfg.Database, q.Encode())
}

func mysqlConfig(cfg Config) *mysql.Config {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = cfg.Database
	mc.Timeout = cfg.ConnectTimeout
	mc.ParseTime = true
	if cfg.EnableSSL {
		mc.TLSConfig = "preferred"
	}
	if len(cfg.Options) > 0 {
		mc.Params = make(map[string]string, len(cfg.Options))
		for k, v := range cfg.Options {
			mc.Params[k] = v
		}
	}
	return mc
}

// keepAliveDialer dials PostgreSQL with explicit TCP keep-alive probes.
// It satisfies pq.Dialer and pq.DialerContext.
type keepAliveDialer struct {
	d net.Dialer
}

func newKeepAliveDialer(cfg Config) keepAliveDialer {
	return keepAliveDialer{d: net.Dialer{
		Timeout: cfg.ConnectTimeout,
		KeepAliveConfig: net.KeepAliveConfig{
			Enable:   true,
			Idle:     cfg.KeepAlivesIdle,
			Interval: cfg.KeepAlivesInterval,
		},
	}}
}

func (k keepAliveDialer) Dial(network, address string) (net.Conn, error) {
	return k.d.Dial(network, address)
}

func (k keepAliveDialer) DialTimeout(network, address string, timeout time.Duration) (net.Conn, error) {
	d := k.d
	d.Timeout = timeout
	return d.Dial(network, address)
}

func (k keepAliveDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return k.d.DialContext(ctx, network, address)
}

var (
	_ pq.Dialer        = keepAliveDialer{}
	_ pq.DialerContext = keepAliveDialer{}
)
