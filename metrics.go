package prefs

import "time"

// MetricsProvider allows integration with metrics systems like Prometheus, StatsD, etc.
// Implement this interface to receive callbacks on store, manager and theme events.
type MetricsProvider interface {
	// OnThemeStateChange is called when the theme resolver transitions between states.
	OnThemeStateChange(from, to ThemeState)

	// OnWriteSuccess is called when a value reaches storage.
	// Duration covers encoding, eviction and any retry.
	OnWriteSuccess(duration time.Duration)

	// OnWriteFailure is called when a write is given up.
	// Reason is "invalid", "encode", "quota" or "backend".
	OnWriteFailure(reason string, duration time.Duration)

	// OnEviction is called after an eviction pass removed n keys.
	OnEviction(n int)

	// OnCorruptedRecord is called when an undecodable record is evicted.
	OnCorruptedRecord()

	// OnValidationFailure is called when settings fail the schema.
	// Stage is "load", "persist" or "repair".
	OnValidationFailure(stage string, violations int)
}

// NoOpMetricsProvider is a no-op implementation of MetricsProvider.
// Use this as an embedded type to implement only the methods you need.
type NoOpMetricsProvider struct{}

func (NoOpMetricsProvider) OnThemeStateChange(_, _ ThemeState)       {}
func (NoOpMetricsProvider) OnWriteSuccess(_ time.Duration)           {}
func (NoOpMetricsProvider) OnWriteFailure(_ string, _ time.Duration) {}
func (NoOpMetricsProvider) OnEviction(_ int)                         {}
func (NoOpMetricsProvider) OnCorruptedRecord()                       {}
func (NoOpMetricsProvider) OnValidationFailure(_ string, _ int)      {}
