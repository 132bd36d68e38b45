// Package consul provides a prefs.Backend on a Consul KV prefix and a
// prefs.Watcher for Consul keys using blocking queries.
package consul

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/hashicorp/consul/api"

	"github.com/secureguard/prefs"
)

// DefaultPrefix is the KV prefix the Backend writes under.
const DefaultPrefix = "prefs/"

// Backend stores each entry as a Consul KV pair under a prefix. Keys are
// listed by create index, so updates keep their position.
type Backend struct {
	kv     *api.KV
	client *api.Client
	prefix string
}

// Option configures a Backend.
type Option func(*Backend)

// WithPrefix sets the KV prefix. Defaults to "prefs/".
func WithPrefix(prefix string) Option {
	return func(b *Backend) {
		b.prefix = prefix
	}
}

// New creates a Backend using client.
func New(client *api.Client, opts ...Option) *Backend {
	b := &Backend{
		kv:     client.KV(),
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// translate maps rejected oversized values to prefs.ErrQuotaExceeded.
// Consul answers 413 for large bodies and names the byte limit otherwise.
func translate(err error) error {
	var se api.StatusError
	if errors.As(err, &se) {
		if se.Code == http.StatusRequestEntityTooLarge || strings.Contains(se.Body, "exceeds") {
			return fmt.Errorf("%w: %w", prefs.ErrQuotaExceeded, err)
		}
	}
	return err
}

func query(ctx context.Context) *api.QueryOptions {
	return (&api.QueryOptions{}).WithContext(ctx)
}

func write(ctx context.Context) *api.WriteOptions {
	return (&api.WriteOptions{}).WithContext(ctx)
}

// GetItem implements prefs.Backend.
func (b *Backend) GetItem(ctx context.Context, key string) (string, bool, error) {
	pair, _, err := b.kv.Get(b.prefix+key, query(ctx))
	if err != nil {
		return "", false, fmt.Errorf("consul get %s: %w", key, err)
	}
	if pair == nil {
		return "", false, nil
	}
	return string(pair.Value), true, nil
}

// SetItem implements prefs.Backend.
func (b *Backend) SetItem(ctx context.Context, key, value string) error {
	pair := &api.KVPair{Key: b.prefix + key, Value: []byte(value)}
	if _, err := b.kv.Put(pair, write(ctx)); err != nil {
		return fmt.Errorf("consul put %s: %w", key, translate(err))
	}
	return nil
}

// RemoveItem implements prefs.Backend.
func (b *Backend) RemoveItem(ctx context.Context, key string) error {
	if _, err := b.kv.Delete(b.prefix+key, write(ctx)); err != nil {
		return fmt.Errorf("consul delete %s: %w", key, err)
	}
	return nil
}

// Keys implements prefs.Backend, oldest first.
func (b *Backend) Keys(ctx context.Context) ([]string, error) {
	pairs, _, err := b.kv.List(b.prefix, query(ctx))
	if err != nil {
		return nil, fmt.Errorf("consul list: %w", err)
	}
	slices.SortStableFunc(pairs, func(x, y *api.KVPair) int {
		switch {
		case x.CreateIndex < y.CreateIndex:
			return -1
		case x.CreateIndex > y.CreateIndex:
			return 1
		}
		return 0
	})
	keys := make([]string, 0, len(pairs))
	for _, p := range pairs {
		keys = append(keys, strings.TrimPrefix(p.Key, b.prefix))
	}
	return keys, nil
}

// Clear implements prefs.Backend. Only the prefix is removed.
func (b *Backend) Clear(ctx context.Context) error {
	if _, err := b.kv.DeleteTree(b.prefix, write(ctx)); err != nil {
		return fmt.Errorf("consul clear: %w", err)
	}
	return nil
}

// WatchKey returns a Watcher for the KV key backing key.
func (b *Backend) WatchKey(key string) *Watcher {
	return NewWatcher(b.client, b.prefix+key)
}

var _ prefs.Backend = (*Backend)(nil)
