package prefstest

import (
	"sync"

	"github.com/secureguard/prefs"
)

// ManualSignal is a modern preference signal flipped by the test.
// Handlers run on the goroutine that calls Set, outside the signal's lock.
type ManualSignal struct {
	mu       sync.Mutex
	dark     bool
	handlers map[uint64]func(bool)
	next     uint64
}

// NewManualSignal creates a signal with the given initial preference.
func NewManualSignal(dark bool) *ManualSignal {
	return &ManualSignal{dark: dark, handlers: make(map[uint64]func(bool))}
}

// Matches implements prefs.PreferenceSignal.
func (s *ManualSignal) Matches() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dark
}

// Set changes the preference and notifies subscribers.
func (s *ManualSignal) Set(dark bool) {
	s.mu.Lock()
	s.dark = dark
	handlers := make([]func(bool), 0, len(s.handlers))
	for _, fn := range s.handlers {
		handlers = append(handlers, fn)
	}
	s.mu.Unlock()

	for _, fn := range handlers {
		fn(dark)
	}
}

// Subscribe implements prefs.ChangeNotifier.
func (s *ManualSignal) Subscribe(fn func(bool)) func() {
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

// Subscribers returns the number of registered handlers.
func (s *ManualSignal) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

// LegacySignal is a preference signal that only supports add/remove
// listener registration.
type LegacySignal struct {
	mu        sync.Mutex
	dark      bool
	listeners []prefs.Listener
}

// NewLegacySignal creates a legacy signal with the given initial preference.
func NewLegacySignal(dark bool) *LegacySignal {
	return &LegacySignal{dark: dark}
}

// Matches implements prefs.PreferenceSignal.
func (s *LegacySignal) Matches() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dark
}

// Set changes the preference and notifies listeners.
func (s *LegacySignal) Set(dark bool) {
	s.mu.Lock()
	s.dark = dark
	listeners := append([]prefs.Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l.PreferenceChanged(dark)
	}
}

// AddListener implements prefs.LegacyNotifier.
func (s *LegacySignal) AddListener(l prefs.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// RemoveListener implements prefs.LegacyNotifier.
func (s *LegacySignal) RemoveListener(l prefs.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.listeners {
		if existing == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			return
		}
	}
}

// Listeners returns the number of registered listeners.
func (s *LegacySignal) Listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

var (
	_ prefs.ChangeNotifier = (*ManualSignal)(nil)
	_ prefs.LegacyNotifier = (*LegacySignal)(nil)
)
