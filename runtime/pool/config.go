package pool

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/satishbabariya/cauldron/query/sqlgen"
)

var (
	// ErrConfig is returned when connection parameters are missing or
	// inconsistent. No connection is attempted.
	ErrConfig = errors.New("invalid connection parameters")

	// ErrConnection is returned when a pool or connection cannot be opened.
	ErrConnection = errors.New("database connection failed")

	// ErrClosed is returned by a manager after Close.
	ErrClosed = errors.New("pool closed")
)

// Config holds the connection parameters for one store. A manager keeps its
// own copy, so changing a Config after New has no effect on it.
type Config struct {
	// Provider selects the driver: "postgres" (default), "mysql" or "sqlite3".
	Provider string
	// Database is the database name, or the file path for SQLite.
	Database string
	User     string
	Password string
	Host     string
	Port     int
	// EnableSSL requests TLS. PostgreSQL maps it to sslmode=require and
	// MySQL to tls=preferred.
	EnableSSL bool
	// SSLMode overrides the PostgreSQL sslmode derived from EnableSSL.
	SSLMode string

	// MinSize connections are opened when the pool is created. Zero means
	// the default of one.
	MinSize int
	// MaxSize bounds the number of open connections.
	MaxSize int

	// KeepAlivesIdle and KeepAlivesInterval tune TCP keep-alive probes on
	// PostgreSQL connections.
	KeepAlivesIdle     time.Duration
	KeepAlivesInterval time.Duration

	// RefreshPeriod is how often idle connections are evicted from the pool.
	// Zero or negative disables eviction.
	RefreshPeriod time.Duration

	// ConnectTimeout bounds pool creation and single connections.
	ConnectTimeout time.Duration

	// NoPool gives every cursor its own connection, closed with the cursor,
	// instead of one from the shared pool.
	NoPool bool
	// Echo logs every statement.
	Echo bool

	// Options are extra driver parameters appended to the DSN.
	Options map[string]string
}

// DefaultConfig returns the defaults applied to zero-valued fields. The
// zero value of a Config is pooled.
func DefaultConfig() Config {
	return Config{
		Provider:           "postgres",
		Host:               "localhost",
		Port:               5432,
		MinSize:            1,
		MaxSize:            10,
		KeepAlivesIdle:     5 * time.Second,
		KeepAlivesInterval: 4 * time.Second,
		ConnectTimeout:     10 * time.Second,
	}
}

// withDefaults fills unset sizing and timing fields. Connection identity
// fields are left alone so that missing ones are reported by Validate.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Provider == "" {
		c.Provider = def.Provider
	}
	if c.MaxSize <= 0 {
		c.MaxSize = def.MaxSize
	}
	if c.MinSize <= 0 {
		c.MinSize = def.MinSize
	}
	if c.KeepAlivesIdle <= 0 {
		c.KeepAlivesIdle = def.KeepAlivesIdle
	}
	if c.KeepAlivesInterval <= 0 {
		c.KeepAlivesInterval = def.KeepAlivesInterval
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if len(c.Options) > 0 {
		opts := make(map[string]string, len(c.Options))
		for k, v := range c.Options {
			opts[k] = v
		}
		c.Options = opts
	}
	return c
}

// Dialect returns the SQL dialect for the configured provider.
func (c Config) Dialect() (sqlgen.Dialect, error) {
	return sqlgen.DialectFor(c.Provider)
}

// Validate reports missing or inconsistent parameters.
func (c Config) Validate() error {
	d, err := c.Dialect()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}

	var missing []string
	if strings.TrimSpace(c.Database) == "" {
		missing = append(missing, "database")
	}
	if d.Name != sqlgen.SQLite.Name {
		if strings.TrimSpace(c.Host) == "" {
			missing = append(missing, "host")
		}
		if strings.TrimSpace(c.User) == "" {
			missing = append(missing, "user")
		}
		if c.Port <= 0 {
			missing = append(missing, "port")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrConfig, strings.Join(missing, ", "))
	}

	if c.MaxSize > 0 && c.MinSize > c.MaxSize {
		return fmt.Errorf("%w: min size %d exceeds max size %d", ErrConfig, c.MinSize, c.MaxSize)
	}
	return nil
}

// TLSMode returns the PostgreSQL sslmode for the configuration.
func (c Config) TLSMode() string {
	switch {
	case c.SSLMode != "":
		return c.SSLMode
	case c.EnableSSL:
		return "require"
	default:
		return "disable"
	}
}
