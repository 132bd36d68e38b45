package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/secureguard/prefs"
)

// Watcher watches a Redis key using keyspace notifications. The server
// must publish them:
//
//	CONFIG SET notify-keyspace-events KEA
type Watcher struct {
	client *redis.Client
	key    string
	db     int
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDB sets the database number in the keyspace channel. Defaults to the
// client's configured database.
func WithDB(db int) WatcherOption {
	return func(w *Watcher) {
		w.db = db
	}
}

// NewWatcher creates a Watcher for key.
func NewWatcher(client *redis.Client, key string, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		client: client,
		key:    key,
		db:     client.Options().DB,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch subscribes to the key's keyspace channel and emits its value on
// every write. The current value, if any, is emitted first.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	channel := fmt.Sprintf("__keyspace@%d__:%s", w.db, w.key)
	pubsub := w.client.Subscribe(ctx, channel)

	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to keyspace notifications: %w", err)
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		defer pubsub.Close()

		val, err := w.client.Get(ctx, w.key).Bytes()
		switch {
		case err == nil:
			select {
			case out <- val:
			case <-ctx.Done():
				return
			}
		case !errors.Is(err, redis.Nil):
			return
		}

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				switch msg.Payload {
				case "set", "setex", "psetex", "setnx", "mset":
				default:
					continue
				}
				val, err := w.client.Get(ctx, w.key).Bytes()
				if err != nil {
					continue
				}
				select {
				case out <- val:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

var _ prefs.Watcher = (*Watcher)(nil)
