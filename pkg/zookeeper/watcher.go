package zookeeper

import (
	"context"

	"github.com/go-zookeeper/zk"

	"github.com/secureguard/prefs"
)

// Watcher watches a ZooKeeper node using one-shot data watches, re-armed
// after every event.
type Watcher struct {
	conn *zk.Conn
	path string
}

// NewWatcher creates a Watcher for the node at path.
func NewWatcher(conn *zk.Conn, path string) *Watcher {
	return &Watcher{conn: conn, path: path}
}

// Watch emits the node's data, then emits again after every change. A
// missing node is waited for.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	out := make(chan []byte)

	go func() {
		defer close(out)

		for {
			data, _, events, err := w.conn.GetW(w.path)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				exists, _, created, err := w.conn.ExistsW(w.path)
				if err != nil {
					return
				}
				if !exists {
					select {
					case <-ctx.Done():
						return
					case <-created:
					}
				}
				continue
			}

			select {
			case out <- data:
			case <-ctx.Done():
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-events:
			}
		}
	}()

	return out, nil
}

var _ prefs.Watcher = (*Watcher)(nil)
