// Package client provides the relational store: cursor acquisition,
// transactions and the statement executors built on query/sqlgen.
package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-version"
	"github.com/jmoiron/sqlx"

	"github.com/satishbabariya/cauldron/internal/debug"
	"github.com/satishbabariya/cauldron/query/sqlgen"
	"github.com/satishbabariya/cauldron/runtime/pool"
)

// Filter, Group, Cond, Values and Dialect are re-exported so callers rarely
// need to import sqlgen directly.
type (
	Filter  = sqlgen.Filter
	Group   = sqlgen.Group
	Cond    = sqlgen.Cond
	Values  = sqlgen.Values
	Dialect = sqlgen.Dialect
)

// Store is a relational data store. It is safe for concurrent use; the
// connection pool is created on first use and released by Close.
type Store struct {
	config  pool.Config
	dialect sqlgen.Dialect
	pool    *pool.Manager

	mu          sync.RWMutex
	middlewares []Middleware
	version     *version.Version
}

// Option configures a Store.
type Option func(*storeOptions)

type storeOptions struct {
	poolOpts    []pool.Option
	middlewares []Middleware
}

// WithOpener replaces the function that opens database handles.
func WithOpener(open pool.Opener) Option {
	return func(o *storeOptions) {
		o.poolOpts = append(o.poolOpts, pool.WithOpener(open))
	}
}

// WithDB makes the store use an existing pool instead of creating one. The
// store takes ownership and closes db on Close. Only the provider of cfg
// has to be set; the remaining connection parameters are needed only for
// unpooled cursors.
func WithDB(db *sqlx.DB) Option {
	return func(o *storeOptions) {
		o.poolOpts = append(o.poolOpts, pool.WithDB(db))
	}
}

// WithMiddleware installs statement middleware at construction.
func WithMiddleware(m ...Middleware) Option {
	return func(o *storeOptions) {
		o.middlewares = append(o.middlewares, m...)
	}
}

// New returns a store for cfg. The configuration is copied: changing cfg
// afterwards does not affect the store. Invalid parameters are reported
// here, before any connection is attempted.
func New(cfg pool.Config, opts ...Option) (*Store, error) {
	var o storeOptions
	for _, opt := range opts {
		opt(&o)
	}

	manager := pool.New(cfg, o.poolOpts...)
	cfg = manager.Config()
	dialect, err := cfg.Dialect()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pool.ErrConfig, err)
	}
	if !manager.Adopted() {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	s := &Store{
		config:  cfg,
		dialect: dialect,
		pool:    manager,
	}
	if cfg.Echo {
		s.middlewares = append(s.middlewares, LoggingMiddleware(debug.Logger()))
	}
	s.middlewares = append(s.middlewares, o.middlewares...)
	return s, nil
}

// Config returns the store's copy of its connection parameters.
func (s *Store) Config() pool.Config {
	return s.config
}

// Dialect returns the SQL dialect of the configured provider.
func (s *Store) Dialect() sqlgen.Dialect {
	return s.dialect
}

// Pool returns the pool manager backing the store.
func (s *Store) Pool() *pool.Manager {
	return s.pool
}

// Connect creates the pool if needed and verifies the database is reachable.
func (s *Store) Connect(ctx context.Context) error {
	return s.pool.HealthCheck(ctx)
}

// Use adds a middleware to the chain.
func (s *Store) Use(m Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middlewares = append(s.middlewares, m)
}

// Close stops background work and closes the pool.
func (s *Store) Close() error {
	debug.Debug("Closing store", "provider", s.config.Provider, "database", s.config.Database)
	return s.pool.Close()
}
