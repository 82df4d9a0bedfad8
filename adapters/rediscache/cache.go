// Package rediscache is the key-value cache adapter. It is a thin layer over
// go-redis that adds namespaced keys, namespace clearing and memoization.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/satishbabariya/cauldron/internal/debug"
)

// ErrMiss is returned by Get when the key does not exist.
var ErrMiss = errors.New("cache miss")

// Config holds cache connection parameters.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	// MinSize idle connections are kept open.
	MinSize int
	// MaxSize bounds the connection pool.
	MaxSize     int
	DialTimeout time.Duration
}

// DefaultConfig returns the defaults applied to zero-valued fields.
func DefaultConfig() Config {
	return Config{
		Host:        "localhost",
		Port:        6379,
		MinSize:     5,
		MaxSize:     10,
		DialTimeout: 5 * time.Second,
	}
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Host == "" {
		c.Host = def.Host
	}
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.MaxSize <= 0 {
		c.MaxSize = def.MaxSize
	}
	if c.MinSize <= 0 {
		c.MinSize = def.MinSize
	}
	if c.MinSize > c.MaxSize {
		c.MinSize = c.MaxSize
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	return c
}

// Cache is a namespaced cache client. It is safe for concurrent use.
type Cache struct {
	client redis.UniversalClient
}

// New returns a cache for cfg. Connections are opened lazily by the client.
func New(cfg Config) *Cache {
	cfg = cfg.withDefaults()
	return &Cache{client: redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		MinIdleConns: cfg.MinSize,
		PoolSize:     cfg.MaxSize,
		DialTimeout:  cfg.DialTimeout,
	})}
}

// NewFromClient wraps an existing client.
func NewFromClient(client redis.UniversalClient) *Cache {
	return &Cache{client: client}
}

// Client returns the underlying redis client.
func (c *Cache) Client() redis.UniversalClient {
	return c.client
}

// Key returns the stored key for key in namespace.
func Key(namespace, key string) string {
	if namespace == "" {
		return key
	}
	return namespace + ":" + key
}

// Set stores value under key. A zero ttl means no expiry.
func (c *Cache) Set(ctx context.Context, key string, value any, namespace string, ttl time.Duration) error {
	if err := c.client.Set(ctx, Key(namespace, key), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", Key(namespace, key), err)
	}
	return nil
}

// Get returns the value stored under key, or ErrMiss.
func (c *Cache) Get(ctx context.Context, key, namespace string) (string, error) {
	v, err := c.client.Get(ctx, Key(namespace, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", Key(namespace, key), err)
	}
	return v, nil
}

// Delete removes key.
func (c *Cache) Delete(ctx context.Context, key, namespace string) error {
	if err := c.client.Del(ctx, Key(namespace, key)).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", Key(namespace, key), err)
	}
	return nil
}

// Incr increments the integer stored under key by one.
func (c *Cache) Incr(ctx context.Context, key, namespace string) (int64, error) {
	return c.IncrBy(ctx, key, namespace, 1)
}

// IncrBy increments the integer stored under key by n.
func (c *Cache) IncrBy(ctx context.Context, key, namespace string, n int64) (int64, error) {
	v, err := c.client.IncrBy(ctx, Key(namespace, key), n).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", Key(namespace, key), err)
	}
	return v, nil
}

// HMGet reads fields of the namespace hash. Missing fields are nil.
func (c *Cache) HMGet(ctx context.Context, fields []string, namespace string) ([]any, error) {
	v, err := c.client.HMGet(ctx, namespace, fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read hash %s: %w", namespace, err)
	}
	return v, nil
}

// HSet writes one field of the namespace hash.
func (c *Cache) HSet(ctx context.Context, field string, value any, namespace string) error {
	if err := c.client.HSet(ctx, namespace, field, value).Err(); err != nil {
		return fmt.Errorf("failed to write hash %s: %w", namespace, err)
	}
	return nil
}

// Scan returns every key matching pattern. It iterates with SCAN rather
// than blocking the server with KEYS.
func (c *Cache) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", pattern, err)
	}
	return keys, nil
}

// ClearNamespace deletes the namespace hash and every key starting with the
// namespace. It returns the number of keys removed.
func (c *Cache) ClearNamespace(ctx context.Context, namespace string) (int64, error) {
	keys, err := c.Scan(ctx, namespace+"*")
	if err != nil {
		return 0, err
	}
	if !slices.Contains(keys, namespace) {
		keys = append(keys, namespace)
	}

	n, err := c.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to clear namespace %s: %w", namespace, err)
	}
	debug.Debug("Cleared cache namespace", "namespace", namespace, "keys", n)
	return n, nil
}

// Eval runs a Lua script.
func (c *Cache) Eval(ctx context.Context, script string, keys []string, args ...any) (any, error) {
	v, err := c.client.Eval(ctx, script, keys, args...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to run script: %w", err)
	}
	return v, nil
}

// Ping checks the server is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}
