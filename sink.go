package prefs

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/capitan"
)

// Source says whether an effective theme was chosen by the user or taken
// from the system preference.
type Source string

// Theme sources.
const (
	SourceManual Source = "manual"
	SourceSystem Source = "system"
)

// ThemeChange is the payload broadcast whenever a theme is applied.
type ThemeChange struct {
	Theme  Theme  `json:"theme"`
	Source Source `json:"source"`
}

// NotificationSink receives theme change broadcasts.
// Implementations must not call back into the resolver.
type NotificationSink interface {
	Publish(ctx context.Context, change ThemeChange)
}

// SinkFunc adapts a function to NotificationSink.
type SinkFunc func(ctx context.Context, change ThemeChange)

// Publish implements NotificationSink.
func (f SinkFunc) Publish(ctx context.Context, change ThemeChange) {
	f(ctx, change)
}

// CapitanSink broadcasts theme changes as ThemeChanged events.
type CapitanSink struct{}

// Publish implements NotificationSink.
func (CapitanSink) Publish(ctx context.Context, change ThemeChange) {
	capitan.Emit(ctx, ThemeChanged,
		KeyTheme.Field(string(change.Theme)),
		KeySource.Field(string(change.Source)),
	)
}

// ChannelSink delivers theme changes on a buffered channel. Publishing never
// blocks: when the buffer is full the change is dropped and counted.
type ChannelSink struct {
	ch      chan ThemeChange
	dropped atomic.Int64
}

// NewChannelSink creates a ChannelSink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan ThemeChange, buffer)}
}

// Publish implements NotificationSink.
func (s *ChannelSink) Publish(_ context.Context, change ThemeChange) {
	select {
	case s.ch <- change:
	default:
		s.dropped.Add(1)
	}
}

// C returns the channel changes are delivered on.
func (s *ChannelSink) C() <-chan ThemeChange {
	return s.ch
}

// Dropped returns how many changes were discarded on a full buffer.
func (s *ChannelSink) Dropped() int64 {
	return s.dropped.Load()
}

// Host applies the effective theme to the presentation layer.
// Implementations must not call back into the resolver.
type Host interface {
	ApplyTheme(theme Theme, source Source)
}

// HostFunc adapts a function to Host.
type HostFunc func(theme Theme, source Source)

// ApplyTheme implements Host.
func (f HostFunc) ApplyTheme(theme Theme, source Source) {
	f(theme, source)
}

// Marker names written by Markers.
const (
	MarkerTheme  = "data-theme"
	MarkerSource = "data-theme-source"
)

// Markers is a Host that records the theme and its source as named markers,
// the way a document root carries data attributes.
type Markers struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMarkers creates an empty Markers host.
func NewMarkers() *Markers {
	return &Markers{values: make(map[string]string)}
}

// ApplyTheme implements Host.
func (m *Markers) ApplyTheme(theme Theme, source Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[MarkerTheme] = string(theme)
	m.values[MarkerSource] = string(source)
}

// Get returns the value of the named marker.
func (m *Markers) Get(name string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[name]
}

type nopHost struct{}

func (nopHost) ApplyTheme(Theme, Source) {}

var (
	_ NotificationSink = CapitanSink{}
	_ NotificationSink = (*ChannelSink)(nil)
	_ NotificationSink = SinkFunc(nil)
	_ Host             = (*Markers)(nil)
	_ Host             = HostFunc(nil)
)
