package prefs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
)

// PreferenceSignal reports the host's system colour preference.
type PreferenceSignal interface {
	// Matches reports whether the system currently prefers dark.
	Matches() bool
}

// ChangeNotifier is the subscription style of current hosts: Subscribe
// registers fn and returns the function that removes it.
type ChangeNotifier interface {
	Subscribe(fn func(matches bool)) (unsubscribe func())
}

// Listener receives preference changes from a LegacyNotifier.
type Listener interface {
	PreferenceChanged(matches bool)
}

// LegacyNotifier is the add/remove listener style of older hosts. Listeners
// are removed by identity, so callers must pass the same value to both.
type LegacyNotifier interface {
	AddListener(l Listener)
	RemoveListener(l Listener)
}

// ListenerFunc adapts a function to Listener. Use a pointer to it so
// RemoveListener can find it again.
type ListenerFunc func(matches bool)

// PreferenceChanged implements Listener.
func (f *ListenerFunc) PreferenceChanged(matches bool) {
	(*f)(matches)
}

// StaticSignal is a preference that never changes.
type StaticSignal bool

// Matches implements PreferenceSignal.
func (s StaticSignal) Matches() bool {
	return bool(s)
}

// ParsePreference interprets raw watcher bytes as a dark preference.
// "dark", "true", "1" and "yes" match, ignoring case and surrounding space.
func ParsePreference(raw []byte) bool {
	v := bytes.ToLower(bytes.TrimSpace(raw))
	switch string(v) {
	case "dark", "true", "1", "yes":
		return true
	default:
		return false
	}
}

// WatchSignal turns a Watcher into a PreferenceSignal that notifies
// subscribers when the parsed preference flips.
type WatchSignal struct {
	watcher Watcher

	mu       sync.Mutex
	matches  bool
	started  bool
	handlers map[uint64]func(bool)
	next     uint64
	done     chan struct{}
}

// NewWatchSignal creates a WatchSignal over w. Call Start before use.
func NewWatchSignal(w Watcher) *WatchSignal {
	return &WatchSignal{
		watcher:  w,
		handlers: make(map[uint64]func(bool)),
		done:     make(chan struct{}),
	}
}

// Start begins watching. It blocks until the watcher emits its initial
// value, then follows changes in the background until ctx ends.
// Start can only be called once.
func (s *WatchSignal) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("watch signal already started")
	}
	s.started = true
	s.mu.Unlock()

	changes, err := s.watcher.Watch(ctx)
	if err != nil {
		close(s.done)
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	select {
	case <-ctx.Done():
		close(s.done)
		return ctx.Err()
	case raw, ok := <-changes:
		if !ok {
			close(s.done)
			return errors.New("watcher closed before emitting initial value")
		}
		s.update(raw)
	}

	go s.follow(ctx, changes)
	return nil
}

// Done is closed when the signal stops following its watcher.
func (s *WatchSignal) Done() <-chan struct{} {
	return s.done
}

func (s *WatchSignal) follow(ctx context.Context, changes <-chan []byte) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-changes:
			if !ok {
				return
			}
			s.update(raw)
		}
	}
}

// update records the parsed value and notifies handlers outside the lock
// when it changed.
func (s *WatchSignal) update(raw []byte) {
	m := ParsePreference(raw)

	s.mu.Lock()
	if m == s.matches {
		s.mu.Unlock()
		return
	}
	s.matches = m
	handlers := make([]func(bool), 0, len(s.handlers))
	for _, fn := range s.handlers {
		handlers = append(handlers, fn)
	}
	s.mu.Unlock()

	for _, fn := range handlers {
		fn(m)
	}
}

// Matches implements PreferenceSignal.
func (s *WatchSignal) Matches() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matches
}

// Subscribe implements ChangeNotifier.
func (s *WatchSignal) Subscribe(fn func(matches bool)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.handlers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.handlers, id)
		s.mu.Unlock()
	}
}

var (
	_ PreferenceSignal = StaticSignal(false)
	_ PreferenceSignal = (*WatchSignal)(nil)
	_ ChangeNotifier   = (*WatchSignal)(nil)
)
