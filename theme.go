package prefs

import (
	"context"
	"sync"

	"github.com/zoobzio/capitan"
)

// ThemeResolver derives the effective theme from the settings theme and the
// system preference signal. Every application writes the host markers and
// publishes a ThemeChange. While the theme is system the resolver follows
// the signal; otherwise it is unsubscribed.
//
// Signal callbacks may arrive on any goroutine. The host and sink are called
// with the resolver's lock held and must not call back into it.
type ThemeResolver struct {
	signal  PreferenceSignal
	sink    NotificationSink
	host    Host
	metrics MetricsProvider

	mu          sync.Mutex
	theme       Theme
	state       ThemeState
	unsubscribe func()
	detach      func()
	closed      bool
}

// ResolverOption configures a ThemeResolver.
type ResolverOption func(*ThemeResolver)

// WithHost sets the host the effective theme is applied to.
func WithHost(h Host) ResolverOption {
	return func(r *ThemeResolver) {
		if h != nil {
			r.host = h
		}
	}
}

// WithResolverMetrics sets the metrics provider for state transitions.
func WithResolverMetrics(m MetricsProvider) ResolverOption {
	return func(r *ThemeResolver) {
		if m != nil {
			r.metrics = m
		}
	}
}

// NewThemeResolver creates a resolver in the system theme. Nothing is applied
// until SetTheme or Attach. A nil signal never prefers dark; a nil sink
// broadcasts through CapitanSink.
func NewThemeResolver(signal PreferenceSignal, sink NotificationSink, opts ...ResolverOption) *ThemeResolver {
	if sink == nil {
		sink = CapitanSink{}
	}
	r := &ThemeResolver{
		signal:  signal,
		sink:    sink,
		host:    nopHost{},
		metrics: NoOpMetricsProvider{},
		theme:   ThemeSystem,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.state = resolveState(ThemeSystem, r.prefersDark())
	return r
}

// SetTheme applies theme and returns the effective theme. Calls after Close
// are ignored.
func (r *ThemeResolver) SetTheme(ctx context.Context, theme Theme) Theme {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return r.state.Effective()
	}
	r.theme = theme
	r.applyLocked(ctx)
	return r.state.Effective()
}

// applyLocked runs the apply routine for the current theme.
func (r *ThemeResolver) applyLocked(ctx context.Context) {
	next := resolveState(r.theme, r.theme == ThemeSystem && r.prefersDark())
	effective, source := next.Effective(), next.Source()

	r.host.ApplyTheme(effective, source)
	r.sink.Publish(ctx, ThemeChange{Theme: effective, Source: source})
	r.transitionLocked(ctx, next)

	if r.theme == ThemeSystem {
		r.subscribeLocked(ctx)
	} else {
		r.unsubscribeLocked(ctx)
	}
}

func (r *ThemeResolver) transitionLocked(ctx context.Context, next ThemeState) {
	prev := r.state
	if prev == next {
		return
	}
	r.state = next
	r.metrics.OnThemeStateChange(prev, next)
	capitan.Emit(ctx, ThemeStateChanged,
		KeyOldState.Field(prev.String()),
		KeyNewState.Field(next.String()),
	)
}

func (r *ThemeResolver) prefersDark() bool {
	if r.signal == nil {
		return false
	}
	var dark bool
	_ = guard(func() error { //nolint:errcheck // a panicking signal reads as light
		dark = r.signal.Matches()
		return nil
	})
	return dark
}

// subscribeLocked follows the signal, preferring the modern style. It is a
// no-op when already subscribed or when the signal cannot notify.
func (r *ThemeResolver) subscribeLocked(ctx context.Context) {
	if r.unsubscribe != nil || r.signal == nil {
		return
	}

	var style string
	switch sig := r.signal.(type) {
	case ChangeNotifier:
		r.unsubscribe = sig.Subscribe(func(bool) { r.onSignal(ctx) })
		style = "modern"
	case LegacyNotifier:
		l := ListenerFunc(func(bool) { r.onSignal(ctx) })
		sig.AddListener(&l)
		r.unsubscribe = func() { sig.RemoveListener(&l) }
		style = "legacy"
	default:
		return
	}
	capitan.Emit(ctx, ThemeSubscribed, KeySource.Field(style))
}

func (r *ThemeResolver) unsubscribeLocked(ctx context.Context) {
	if r.unsubscribe == nil {
		return
	}
	r.unsubscribe()
	r.unsubscribe = nil
	capitan.Emit(ctx, ThemeUnsubscribed)
}

// onSignal re-applies the system theme when the preference flips.
func (r *ThemeResolver) onSignal(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.theme != ThemeSystem {
		return
	}
	r.applyLocked(ctx)
}

// Attach makes the resolver follow m's theme. The current theme is applied
// immediately. The returned function detaches; Close also detaches.
func (r *ThemeResolver) Attach(ctx context.Context, m *Manager) func() {
	r.SetTheme(ctx, m.Theme())
	unsub := m.Subscribe(func(prev, curr Settings) {
		if prev.Theme != curr.Theme {
			r.SetTheme(ctx, curr.Theme)
		}
	})

	var once sync.Once
	detach := func() { once.Do(unsub) }

	r.mu.Lock()
	if r.detach != nil {
		r.detach()
	}
	r.detach = detach
	r.mu.Unlock()
	return detach
}

// Close stops following the signal and any attached manager. It is safe to
// call more than once.
func (r *ThemeResolver) Close(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.unsubscribeLocked(ctx)
	if r.detach != nil {
		r.detach()
		r.detach = nil
	}
}

// Effective returns the theme last applied.
func (r *ThemeResolver) Effective() Theme {
	return r.State().Effective()
}

// State returns the resolver's state.
func (r *ThemeResolver) State() ThemeState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Theme returns the settings theme the resolver is applying.
func (r *ThemeResolver) Theme() Theme {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.theme
}

// Subscribed reports whether the resolver is following the signal.
func (r *ThemeResolver) Subscribed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unsubscribe != nil
}
