package nats

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/secureguard/prefs"
)

// Watcher watches a KeyValue key using the Watch API.
type Watcher struct {
	kv  jetstream.KeyValue
	key string
}

// NewWatcher creates a Watcher for key.
func NewWatcher(kv jetstream.KeyValue, key string) *Watcher {
	return &Watcher{kv: kv, key: key}
}

// Watch emits the key's value after every put. The current value is
// delivered first by JetStream itself; deletes and purges are skipped.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	kw, err := w.kv.Watch(ctx, w.key)
	if err != nil {
		return nil, fmt.Errorf("failed to watch key: %w", err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)
		defer kw.Stop() //nolint:errcheck // nothing to do on shutdown

		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-kw.Updates():
				if !ok {
					return
				}
				// nil marks the end of the initial values.
				if entry == nil {
					continue
				}
				switch entry.Operation() {
				case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
					continue
				}
				select {
				case out <- entry.Value():
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

var _ prefs.Watcher = (*Watcher)(nil)
