// Package redis provides a prefs.Backend on Redis strings and a
// prefs.Watcher for Redis keys using keyspace notifications.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/secureguard/prefs"
)

// DefaultNamespace prefixes every key the Backend writes.
const DefaultNamespace = "prefs:"

// Backend stores each entry as a Redis string under a namespace. A sorted
// set scored by a sequence counter records insertion order.
type Backend struct {
	client        redis.UniversalClient
	namespace     string
	maxValueBytes int
}

// Option configures a Backend.
type Option func(*Backend)

// WithNamespace sets the key namespace. Defaults to "prefs:".
func WithNamespace(ns string) Option {
	return func(b *Backend) {
		b.namespace = ns
	}
}

// WithMaxValueBytes rejects values larger than n bytes with
// prefs.ErrQuotaExceeded. Zero means unlimited.
func WithMaxValueBytes(n int) Option {
	return func(b *Backend) {
		b.maxValueBytes = n
	}
}

// New creates a Backend using client.
func New(client redis.UniversalClient, opts ...Option) *Backend {
	b := &Backend{
		client:    client,
		namespace: DefaultNamespace,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) valueKey(key string) string { return b.namespace + key }
func (b *Backend) orderKey() string           { return b.namespace + "__order__" }
func (b *Backend) seqKey() string             { return b.namespace + "__seq__" }

// translate maps Redis out-of-memory replies to prefs.ErrQuotaExceeded.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if redis.HasErrorPrefix(err, "OOM") {
		return fmt.Errorf("%w: %w", prefs.ErrQuotaExceeded, err)
	}
	return err
}

// GetItem implements prefs.Backend.
func (b *Backend) GetItem(ctx context.Context, key string) (string, bool, error) {
	v, err := b.client.Get(ctx, b.valueKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

// SetItem implements prefs.Backend.
func (b *Backend) SetItem(ctx context.Context, key, value string) error {
	if b.maxValueBytes > 0 && len(value) > b.maxValueBytes {
		return fmt.Errorf("value of %d bytes over %d byte limit: %w", len(value), b.maxValueBytes, prefs.ErrQuotaExceeded)
	}
	seq, err := b.client.Incr(ctx, b.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("redis incr: %w", translate(err))
	}
	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, b.valueKey(key), value, 0)
		pipe.ZAddNX(ctx, b.orderKey(), redis.Z{Score: float64(seq), Member: key})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, translate(err))
	}
	return nil
}

// RemoveItem implements prefs.Backend.
func (b *Backend) RemoveItem(ctx context.Context, key string) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, b.valueKey(key))
		pipe.ZRem(ctx, b.orderKey(), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Keys implements prefs.Backend, oldest first.
func (b *Backend) Keys(ctx context.Context) ([]string, error) {
	keys, err := b.client.ZRange(ctx, b.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange: %w", err)
	}
	return keys, nil
}

// Clear implements prefs.Backend. Only keys in the namespace are removed.
func (b *Backend) Clear(ctx context.Context) error {
	keys, err := b.Keys(ctx)
	if err != nil {
		return err
	}
	del := make([]string, 0, len(keys)+2)
	for _, k := range keys {
		del = append(del, b.valueKey(k))
	}
	del = append(del, b.orderKey(), b.seqKey())
	if err := b.client.Del(ctx, del...).Err(); err != nil {
		return fmt.Errorf("redis clear: %w", err)
	}
	return nil
}

// Key returns the Redis key backing key, for use with NewWatcher.
func (b *Backend) Key(key string) string {
	return b.valueKey(key)
}

var _ prefs.Backend = (*Backend)(nil)
