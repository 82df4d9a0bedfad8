// Package pool manages the lazily created connection pool behind a store.
//
// A Manager creates its pool on first use. Concurrent first callers share a
// single creation attempt and its outcome; a failed attempt leaves the
// manager uninitialized so the next caller retries.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/singleflight"

	"github.com/satishbabariya/cauldron/internal/debug"
)

// State is the lifecycle state of a Manager.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithOpener replaces the function used to open the pool and single
// connections.
func WithOpener(open Opener) Option {
	return func(m *Manager) {
		if open != nil {
			m.open = open
		}
	}
}

// WithDB adopts an existing pool. The manager starts ready, runs the
// cleansing loop over db when configured, and closes db on Close.
func WithDB(db *sqlx.DB) Option {
	return func(m *Manager) {
		m.adopted = db
	}
}

// Manager owns at most one pool per store.
type Manager struct {
	config  Config
	open    Opener
	adopted *sqlx.DB

	db    atomic.Pointer[sqlx.DB]
	state atomic.Int32
	gate  singleflight.Group

	// Metrics
	mu              sync.RWMutex
	closed          bool
	creations       int64
	evictions       int64
	lastEviction    time.Time
	failedChecks    int64
	lastHealthCheck time.Time

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a manager for cfg. The configuration is copied; the pool is
// not created until Get.
func New(cfg Config, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config: cfg.withDefaults(),
		open:   Open,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.adopted != nil {
		m.db.Store(m.adopted)
		m.state.Store(int32(StateReady))
		if m.config.RefreshPeriod > 0 {
			m.wg.Add(1)
			go m.cleanseLoop(m.config.RefreshPeriod)
		}
	}
	return m
}

// Adopted reports whether the pool was supplied by the caller.
func (m *Manager) Adopted() bool {
	return m.adopted != nil
}

// Config returns the manager's copy of the connection parameters.
func (m *Manager) Config() Config {
	return m.config
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Get returns the pool, creating it on first use. Callers waiting on an
// in-flight creation receive the same pool or the same error.
func (m *Manager) Get(ctx context.Context) (*sqlx.DB, error) {
	if db := m.db.Load(); db != nil {
		return db, nil
	}
	if m.State() == StateClosed {
		return nil, ErrClosed
	}

	ch := m.gate.DoChan("pool", func() (any, error) {
		return m.create(ctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*sqlx.DB), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) create(ctx context.Context) (*sqlx.DB, error) {
	if db := m.db.Load(); db != nil {
		return db, nil
	}
	if err := m.config.Validate(); err != nil {
		return nil, err
	}
	if !m.state.CompareAndSwap(int32(StateUninitialized), int32(StateInitializing)) {
		return nil, ErrClosed
	}

	// The creation outlives any single waiter, so it is bounded by the
	// connect timeout rather than the first caller's context.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.config.ConnectTimeout)
	defer cancel()

	debug.Debug("Creating connection pool",
		"provider", m.config.Provider,
		"host", m.config.Host,
		"database", m.config.Database,
		"min", m.config.MinSize,
		"max", m.config.MaxSize)

	db, err := m.open(ctx, m.config, m.config.MaxSize)
	if err == nil {
		err = warm(ctx, db, m.config.MinSize)
		if err != nil {
			_ = db.Close()
		}
	}
	if err != nil {
		m.state.CompareAndSwap(int32(StateInitializing), int32(StateUninitialized))
		debug.Error("Connection pool creation failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		_ = db.Close()
		return nil, ErrClosed
	}
	m.creations++
	m.db.Store(db)
	m.state.Store(int32(StateReady))

	if m.config.RefreshPeriod > 0 {
		m.wg.Add(1)
		go m.cleanseLoop(m.config.RefreshPeriod)
	}
	return db, nil
}

// warm opens n connections up front and returns them to the pool idle.
func warm(ctx context.Context, db *sqlx.DB, n int) error {
	conns := make([]*sqlx.Conn, 0, n)
	defer func() {
		for _, c := range conns {
			_ = c.Close()
		}
	}()
	for i := 0; i < n; i++ {
		c, err := db.Connx(ctx)
		if err != nil {
			return fmt.Errorf("failed to open connection %d of %d: %w", i+1, n, err)
		}
		conns = append(conns, c)
	}
	return nil
}

// OpenSingle opens a dedicated single-connection handle, bypassing the pool.
// The caller closes it.
func (m *Manager) OpenSingle(ctx context.Context) (*sqlx.DB, error) {
	if m.State() == StateClosed {
		return nil, ErrClosed
	}
	if err := m.config.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.config.ConnectTimeout)
	defer cancel()

	db, err := m.open(ctx, m.config, 1)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return db, nil
}

// Evict closes every idle connection in the pool and returns how many were
// idle. Connections in use are unaffected.
func (m *Manager) Evict() int {
	db := m.db.Load()
	if db == nil {
		return 0
	}

	idle := db.Stats().Idle
	db.SetMaxIdleConns(0)
	db.SetMaxIdleConns(m.config.MaxSize)

	m.mu.Lock()
	m.evictions++
	m.lastEviction = time.Now()
	m.mu.Unlock()
	return idle
}

// cleanseLoop evicts idle connections every period until the manager closes.
func (m *Manager) cleanseLoop(period time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			n := m.Evict()
			debug.Info("Clearing unused DB connections", "closed", n)
		}
	}
}

// Stats returns current pool statistics.
func (m *Manager) Stats() PoolStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := PoolStats{
		State:              m.State(),
		MaxOpenConnections: m.config.MaxSize,
		Creations:          m.creations,
		Evictions:          m.evictions,
		LastEviction:       m.lastEviction,
		FailedHealthChecks: m.failedChecks,
		LastHealthCheck:    m.lastHealthCheck,
	}
	if db := m.db.Load(); db != nil {
		dbStats := db.Stats()
		s.OpenConnections = dbStats.OpenConnections
		s.InUse = dbStats.InUse
		s.Idle = dbStats.Idle
		s.WaitCount = dbStats.WaitCount
		s.WaitDuration = dbStats.WaitDuration
		s.MaxIdleClosed = dbStats.MaxIdleClosed
	}
	return s
}

// PoolStats represents pool statistics.
type PoolStats struct {
	State              State
	MaxOpenConnections int
	OpenConnections    int
	InUse              int
	Idle               int
	WaitCount          int64
	WaitDuration       time.Duration
	MaxIdleClosed      int64
	Creations          int64
	Evictions          int64
	LastEviction       time.Time
	FailedHealthChecks int64
	LastHealthCheck    time.Time
}

// HealthCheck pings the pool, creating it if needed.
func (m *Manager) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	m.lastHealthCheck = time.Now()
	m.mu.Unlock()

	db, err := m.Get(ctx)
	if err == nil {
		err = db.PingContext(ctx)
	}
	if err != nil {
		m.mu.Lock()
		m.failedChecks++
		m.mu.Unlock()
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Close closes the pool and waits for background routines to finish.
// Closing twice is a no-op.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.cancel()
	db := m.db.Swap(nil)
	m.state.Store(int32(StateClosed))
	m.mu.Unlock()

	m.wg.Wait()
	if db != nil {
		return db.Close()
	}
	return nil
}
