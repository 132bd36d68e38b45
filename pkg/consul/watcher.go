package consul

import (
	"context"
	"fmt"

	"github.com/hashicorp/consul/api"

	"github.com/secureguard/prefs"
)

// Watcher watches a Consul KV key using blocking queries.
type Watcher struct {
	client *api.Client
	key    string
}

// NewWatcher creates a Watcher for key.
func NewWatcher(client *api.Client, key string) *Watcher {
	return &Watcher{client: client, key: key}
}

// Watch emits the key's value whenever its modify index advances. The
// current value, if the key exists, is emitted first.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	kv := w.client.KV()

	pair, meta, err := kv.Get(w.key, query(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to get initial value: %w", err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)

		lastIndex := meta.LastIndex
		if pair != nil {
			select {
			case out <- pair.Value:
			case <-ctx.Done():
				return
			}
		}

		for ctx.Err() == nil {
			opts := (&api.QueryOptions{WaitIndex: lastIndex}).WithContext(ctx)
			pair, meta, err := kv.Get(w.key, opts)
			if err != nil {
				continue
			}
			if meta.LastIndex <= lastIndex {
				continue
			}
			lastIndex = meta.LastIndex
			if pair == nil {
				continue
			}
			select {
			case out <- pair.Value:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

var _ prefs.Watcher = (*Watcher)(nil)
