package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/secureguard/prefs"
)

// Watcher watches one row of a key/value table using LISTEN/NOTIFY. A
// trigger must send the row key on the channel; Backend.EnsureSchema
// installs one.
type Watcher struct {
	pool    *pgxpool.Pool
	channel string
	key     string
	table   string
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatchTable sets the table to read values from. Defaults to "prefs_kv".
func WithWatchTable(table string) WatcherOption {
	return func(w *Watcher) {
		w.table = table
	}
}

// NewWatcher creates a Watcher for key, woken by notifications on channel.
func NewWatcher(pool *pgxpool.Pool, channel, key string, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		pool:    pool,
		channel: channel,
		key:     key,
		table:   DefaultTable,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch listens on the channel and emits the row's value whenever a
// notification names the key. The current value is emitted first.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{w.channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to listen on channel %s: %w", w.channel, err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)
		defer conn.Release()

		if value, err := w.fetch(ctx); err == nil {
			select {
			case out <- value:
			case <-ctx.Done():
				return
			}
		}

		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if n.Payload != w.key {
				continue
			}
			value, err := w.fetch(ctx)
			if err != nil {
				continue
			}
			select {
			case out <- value:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (w *Watcher) fetch(ctx context.Context) ([]byte, error) {
	var value []byte
	query := fmt.Sprintf("SELECT value FROM %s WHERE key = $1", pgx.Identifier{w.table}.Sanitize())
	err := w.pool.QueryRow(ctx, query, w.key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("postgres fetch %s: %w", w.key, err)
	}
	return value, nil
}

var _ prefs.Watcher = (*Watcher)(nil)
