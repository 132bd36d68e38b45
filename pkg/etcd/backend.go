// Package etcd provides a prefs.Backend on an etcd key prefix and a
// prefs.Watcher for etcd keys using the native Watch API.
package etcd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/secureguard/prefs"
)

// DefaultPrefix is the key prefix the Backend writes under.
const DefaultPrefix = "/prefs/"

// Backend stores each entry as an etcd key under a prefix. Keys are listed
// in create-revision order, so updates keep their position.
type Backend struct {
	client *clientv3.Client
	prefix string
}

// Option configures a Backend.
type Option func(*Backend)

// WithPrefix sets the key prefix. Defaults to "/prefs/".
func WithPrefix(prefix string) Option {
	return func(b *Backend) {
		b.prefix = prefix
	}
}

// New creates a Backend using client.
func New(client *clientv3.Client, opts ...Option) *Backend {
	b := &Backend{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// translate maps a full keyspace or an oversized request to
// prefs.ErrQuotaExceeded.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, rpctypes.ErrNoSpace) ||
		errors.Is(err, rpctypes.ErrGRPCNoSpace) ||
		errors.Is(err, rpctypes.ErrRequestTooLarge) ||
		errors.Is(err, rpctypes.ErrGRPCRequestTooLarge) ||
		status.Code(err) == codes.ResourceExhausted {
		return fmt.Errorf("%w: %w", prefs.ErrQuotaExceeded, err)
	}
	return err
}

// GetItem implements prefs.Backend.
func (b *Backend) GetItem(ctx context.Context, key string) (string, bool, error) {
	resp, err := b.client.Get(ctx, b.prefix+key)
	if err != nil {
		return "", false, fmt.Errorf("etcd get %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return "", false, nil
	}
	return string(resp.Kvs[0].Value), true, nil
}

// SetItem implements prefs.Backend.
func (b *Backend) SetItem(ctx context.Context, key, value string) error {
	if _, err := b.client.Put(ctx, b.prefix+key, value); err != nil {
		return fmt.Errorf("etcd put %s: %w", key, translate(err))
	}
	return nil
}

// RemoveItem implements prefs.Backend.
func (b *Backend) RemoveItem(ctx context.Context, key string) error {
	if _, err := b.client.Delete(ctx, b.prefix+key); err != nil {
		return fmt.Errorf("etcd delete %s: %w", key, err)
	}
	return nil
}

// Keys implements prefs.Backend, oldest first.
func (b *Backend) Keys(ctx context.Context) ([]string, error) {
	resp, err := b.client.Get(ctx, b.prefix,
		clientv3.WithPrefix(),
		clientv3.WithKeysOnly(),
		clientv3.WithSort(clientv3.SortByCreateRevision, clientv3.SortAscend),
	)
	if err != nil {
		return nil, fmt.Errorf("etcd keys: %w", err)
	}
	keys := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		keys = append(keys, strings.TrimPrefix(string(kv.Key), b.prefix))
	}
	return keys, nil
}

// Clear implements prefs.Backend. Only keys under the prefix are removed.
func (b *Backend) Clear(ctx context.Context) error {
	if _, err := b.client.Delete(ctx, b.prefix, clientv3.WithPrefix()); err != nil {
		return fmt.Errorf("etcd clear: %w", err)
	}
	return nil
}

// WatchKey returns a Watcher for the etcd key backing key.
func (b *Backend) WatchKey(key string) *Watcher {
	return NewWatcher(b.client, b.prefix+key)
}

var _ prefs.Backend = (*Backend)(nil)
