package rediscache

import (
	"context"
	"errors"
	"net"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	host, port, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)

	c := New(Config{Host: host, Port: p})
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{MaxSize: 3}.withDefaults()
	assert.Equal(t, "localhost:6379", cfg.Addr())
	assert.Equal(t, 3, cfg.MinSize)
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "users:42", Key("users", "42"))
	assert.Equal(t, "42", Key("", "42"))
}

func TestSetGetDelete(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))
	require.NoError(t, c.Set(ctx, "42", "ann", "users", time.Minute))

	v, err := c.Get(ctx, "42", "users")
	require.NoError(t, err)
	assert.Equal(t, "ann", v)
	assert.True(t, mr.Exists("users:42"))

	mr.FastForward(2 * time.Minute)
	_, err = c.Get(ctx, "42", "users")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "plain", 7, "", 0))
	require.NoError(t, c.Delete(ctx, "plain", ""))
	_, err = c.Get(ctx, "plain", "")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestIncr(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	n, err := c.Incr(ctx, "hits", "stats")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = c.IncrBy(ctx, "hits", "stats", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)
}

func TestHashFields(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.HSet(ctx, "a", "1", "ns"))
	require.NoError(t, c.HSet(ctx, "b", "2", "ns"))

	vals, err := c.HMGet(ctx, []string{"a", "missing", "b"}, "ns")
	require.NoError(t, err)
	assert.Equal(t, []any{"1", nil, "2"}, vals)
}

func TestScanAndClearNamespace(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "1", "x", "team", 0))
	require.NoError(t, c.Set(ctx, "2", "y", "team", 0))
	require.NoError(t, c.HSet(ctx, "f", "v", "team"))
	require.NoError(t, c.Set(ctx, "1", "z", "other", 0))

	keys, err := c.Scan(ctx, "team:*")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"team:1", "team:2"}, keys)

	n, err := c.ClearNamespace(ctx, "team")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	assert.False(t, mr.Exists("team"))
	assert.False(t, mr.Exists("team:1"))
	assert.True(t, mr.Exists("other:1"))
}

func TestEval(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	v, err := c.Eval(ctx, "return redis.call('SET', KEYS[1], ARGV[1])", []string{"k"}, "v")
	require.NoError(t, err)
	assert.Equal(t, "OK", v)

	got, err := c.Get(ctx, "k", "")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestMemoKey(t *testing.T) {
	k1, err := MemoKey("lookup", []any{1, "a"}, map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	k2, err := MemoKey("lookup", []any{1, "a"}, map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 32)

	k3, err := MemoKey("lookup", []any{2, "a"}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)

	// md5(`{"func":"f","args":[],"kwargs":{}}`)
	k4, err := MemoKey("f", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "772de3017453e0d750807bbe0a8800d0", k4)
}

type profile struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func TestMemoize(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	calls := 0
	load := Memoize(c, "profiles", "load", func(ctx context.Context, args ...any) (profile, error) {
		calls++
		return profile{Name: args[0].(string), Age: 30}, nil
	})

	p, err := load(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, profile{Name: "ann", Age: 30}, p)

	p, err = load(ctx, "ann")
	require.NoError(t, err)
	assert.Equal(t, profile{Name: "ann", Age: 30}, p)
	assert.Equal(t, 1, calls)

	_, err = load(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	fields, err := mr.HKeys("profiles")
	require.NoError(t, err)
	assert.Len(t, fields, 2)
}

func TestCached_ErrorsAreNotStored(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	_, err := Cached(ctx, c, "memo", "fail", nil, nil, func(ctx context.Context) (int, error) {
		return 0, errors.New("upstream down")
	})
	assert.EqualError(t, err, "upstream down")
	assert.False(t, mr.Exists("memo"))
}

func TestCached_FallsBackWhenCacheDown(t *testing.T) {
	c := New(Config{Host: "127.0.0.1", Port: 1, DialTimeout: 200 * time.Millisecond})
	defer c.Close()

	v, err := Cached(context.Background(), c, "memo", "answer", nil, nil, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}
