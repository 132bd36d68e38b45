// Package nats provides a prefs.Backend on a NATS JetStream KeyValue
// bucket and a prefs.Watcher for bucket keys using the native Watch API.
package nats

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/secureguard/prefs"
)

// Backend stores each entry as a key in a KeyValue bucket. JetStream does
// not keep creation order, so keys are listed by the revision of their
// latest write: the least recently written come first.
type Backend struct {
	kv jetstream.KeyValue
}

// New creates a Backend on bucket kv.
func New(kv jetstream.KeyValue) *Backend {
	return &Backend{kv: kv}
}

// translate maps payload and bucket size rejections to
// prefs.ErrQuotaExceeded.
func translate(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if errors.Is(err, nats.ErrMaxPayload) ||
		strings.Contains(msg, "maximum bytes exceeded") ||
		strings.Contains(msg, "exceeds maximum allowed") {
		return fmt.Errorf("%w: %w", prefs.ErrQuotaExceeded, err)
	}
	return err
}

// GetItem implements prefs.Backend.
func (b *Backend) GetItem(ctx context.Context, key string) (string, bool, error) {
	entry, err := b.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("nats get %s: %w", key, err)
	}
	return string(entry.Value()), true, nil
}

// SetItem implements prefs.Backend.
func (b *Backend) SetItem(ctx context.Context, key, value string) error {
	if _, err := b.kv.Put(ctx, key, []byte(value)); err != nil {
		return fmt.Errorf("nats put %s: %w", key, translate(err))
	}
	return nil
}

// RemoveItem implements prefs.Backend. The key is purged so it does not
// linger as a delete marker.
func (b *Backend) RemoveItem(ctx context.Context, key string) error {
	err := b.kv.Purge(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("nats purge %s: %w", key, err)
	}
	return nil
}

// Keys implements prefs.Backend, least recently written first.
func (b *Backend) Keys(ctx context.Context) ([]string, error) {
	keys, err := b.kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("nats keys: %w", err)
	}

	type rev struct {
		key string
		seq uint64
	}
	revs := make([]rev, 0, len(keys))
	for _, k := range keys {
		entry, err := b.kv.Get(ctx, k)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("nats keys: %w", err)
		}
		revs = append(revs, rev{key: k, seq: entry.Revision()})
	}
	slices.SortFunc(revs, func(x, y rev) int { return cmp.Compare(x.seq, y.seq) })

	out := make([]string, len(revs))
	for i, r := range revs {
		out[i] = r.key
	}
	return out, nil
}

// Clear implements prefs.Backend.
func (b *Backend) Clear(ctx context.Context) error {
	keys, err := b.kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("nats clear: %w", err)
	}
	for _, k := range keys {
		if err := b.kv.Purge(ctx, k); err != nil {
			return fmt.Errorf("nats clear %s: %w", k, err)
		}
	}
	return nil
}

// WatchKey returns a Watcher for key in the Backend's bucket.
func (b *Backend) WatchKey(key string) *Watcher {
	return NewWatcher(b.kv, key)
}

var _ prefs.Backend = (*Backend)(nil)
