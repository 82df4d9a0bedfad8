package rediscache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/satishbabariya/cauldron/internal/debug"
)

type memoCall struct {
	Func   string         `json:"func"`
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
}

// MemoKey returns the hash field used to memoize a call: the hex MD5 digest
// of the JSON encoding of {"func", "args", "kwargs"}.
func MemoKey(fn string, args []any, kwargs map[string]any) (string, error) {
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	data, err := json.Marshal(memoCall{Func: fn, Args: args, Kwargs: kwargs})
	if err != nil {
		return "", fmt.Errorf("failed to encode call %s: %w", fn, err)
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

// Cached returns the memoized result of a call, computing and storing it on
// a miss. Results are stored JSON-encoded in the namespace hash. Cache
// failures are logged and fall back to compute.
func Cached[T any](ctx context.Context, c *Cache, namespace, fn string, args []any, kwargs map[string]any, compute func(ctx context.Context) (T, error)) (T, error) {
	field, err := MemoKey(fn, args, kwargs)
	if err != nil {
		var zero T
		return zero, err
	}

	hit, err := c.HMGet(ctx, []string{field}, namespace)
	if err != nil {
		debug.Warn("Memo lookup failed", "func", fn, "error", err)
	} else if len(hit) > 0 && hit[0] != nil {
		var result T
		if s, ok := hit[0].(string); ok {
			if err := json.Unmarshal([]byte(s), &result); err == nil {
				return result, nil
			}
			debug.Warn("Discarding undecodable memo entry", "func", fn, "field", field)
		}
	}

	result, err := compute(ctx)
	if err != nil {
		return result, err
	}

	data, err := json.Marshal(result)
	if err != nil {
		debug.Warn("Memo result not encodable", "func", fn, "error", err)
		return result, nil
	}
	if err := c.HSet(ctx, field, string(data), namespace); err != nil {
		debug.Warn("Memo store failed", "func", fn, "error", err)
	}
	return result, nil
}

// Memoize wraps fn so that results are cached per argument list.
func Memoize[T any](c *Cache, namespace, name string, fn func(ctx context.Context, args ...any) (T, error)) func(ctx context.Context, args ...any) (T, error) {
	return func(ctx context.Context, args ...any) (T, error) {
		return Cached(ctx, c, namespace, name, args, nil, func(ctx context.Context) (T, error) {
			return fn(ctx, args...)
		})
	}
}
