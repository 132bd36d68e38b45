package etcd

import (
	"context"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/secureguard/prefs"
)

// Watcher watches an etcd key using the Watch API.
type Watcher struct {
	client *clientv3.Client
	key    string
}

// NewWatcher creates a Watcher for key.
func NewWatcher(client *clientv3.Client, key string) *Watcher {
	return &Watcher{client: client, key: key}
}

// Watch emits the key's value after every put. The current value, if the
// key exists, is emitted first. Deletes are not reported.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	resp, err := w.client.Get(ctx, w.key)
	if err != nil {
		return nil, fmt.Errorf("failed to get initial value: %w", err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)

		if len(resp.Kvs) > 0 {
			select {
			case out <- resp.Kvs[0].Value:
			case <-ctx.Done():
				return
			}
		}

		events := w.client.Watch(ctx, w.key, clientv3.WithRev(resp.Header.Revision+1))
		for {
			select {
			case <-ctx.Done():
				return
			case wr, ok := <-events:
				if !ok {
					return
				}
				if wr.Err() != nil {
					continue
				}
				for _, ev := range wr.Events {
					if ev.Type != clientv3.EventTypePut {
						continue
					}
					select {
					case out <- ev.Kv.Value:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out, nil
}

var _ prefs.Watcher = (*Watcher)(nil)
