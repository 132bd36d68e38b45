package prefs

import "context"

// Watcher observes an external source and emits its raw contents on a
// channel. Implementations emit the current value as soon as Watch is
// called so a consumer can initialise from it.
//
// Backends whose storage has a change feed provide a Watcher; WatchSignal
// turns one into a system preference signal.
type Watcher interface {
	// Watch begins observing the source. The returned channel is closed when
	// ctx is canceled or the source fails for good.
	Watch(ctx context.Context) (<-chan []byte, error)
}
