package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/secureguard/prefs"
)

// Watcher watches one field of a Firestore document using a realtime
// listener.
type Watcher struct {
	client     *firestore.Client
	collection string
	document   string
	field      string
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithField sets the field to emit. Defaults to "value", the field the
// Backend writes.
func WithField(field string) WatcherOption {
	return func(w *Watcher) {
		w.field = field
	}
}

// NewWatcher creates a Watcher for a document.
func NewWatcher(client *firestore.Client, collection, document string, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		client:     client,
		collection: collection,
		document:   document,
		field:      FieldValue,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch emits the field whenever the document changes. The listener
// delivers the current document first. Missing documents and fields that
// are neither strings nor bytes are skipped.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	if w.client == nil {
		return nil, fmt.Errorf("firestore watcher for %s/%s: nil client", w.collection, w.document)
	}
	ref := w.client.Collection(w.collection).Doc(w.document)

	out := make(chan []byte)

	go func() {
		defer close(out)

		snapshots := ref.Snapshots(ctx)
		defer snapshots.Stop()

		for {
			snap, err := snapshots.Next()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if !snap.Exists() {
				continue
			}

			var value []byte
			switch v := snap.Data()[w.field].(type) {
			case []byte:
				value = v
			case string:
				value = []byte(v)
			default:
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

var _ prefs.Watcher = (*Watcher)(nil)
