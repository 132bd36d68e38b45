package prefstest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/secureguard/prefs"
)

// RecordingSink keeps every published theme change.
type RecordingSink struct {
	mu      sync.Mutex
	changes []prefs.ThemeChange
}

// Publish implements prefs.NotificationSink.
func (s *RecordingSink) Publish(_ context.Context, change prefs.ThemeChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, change)
}

// Changes returns a copy of the published changes in order.
func (s *RecordingSink) Changes() []prefs.ThemeChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]prefs.ThemeChange(nil), s.changes...)
}

// Last returns the most recent change and whether there was one.
func (s *RecordingSink) Last() (prefs.ThemeChange, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.changes) == 0 {
		return prefs.ThemeChange{}, false
	}
	return s.changes[len(s.changes)-1], true
}

// Len returns the number of published changes.
func (s *RecordingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.changes)
}

// RecordingMetrics counts MetricsProvider callbacks.
type RecordingMetrics struct {
	mu                 sync.Mutex
	Transitions        []prefs.ThemeState
	WriteSuccesses     int
	WriteFailures      map[string]int
	Evicted            int
	CorruptedRecords   int
	ValidationFailures map[string]int
}

// NewRecordingMetrics creates an empty RecordingMetrics.
func NewRecordingMetrics() *RecordingMetrics {
	return &RecordingMetrics{
		WriteFailures:      make(map[string]int),
		ValidationFailures: make(map[string]int),
	}
}

func (m *RecordingMetrics) OnThemeStateChange(_, to prefs.ThemeState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Transitions = append(m.Transitions, to)
}

func (m *RecordingMetrics) OnWriteSuccess(_ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WriteSuccesses++
}

func (m *RecordingMetrics) OnWriteFailure(reason string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WriteFailures[reason]++
}

func (m *RecordingMetrics) OnEviction(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Evicted += n
}

func (m *RecordingMetrics) OnCorruptedRecord() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CorruptedRecords++
}

func (m *RecordingMetrics) OnValidationFailure(stage string, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ValidationFailures[stage]++
}

// Snapshot runs fn with the counters locked.
func (m *RecordingMetrics) Snapshot(fn func(m *RecordingMetrics)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

// WaitFor polls a condition until it returns true or timeout is reached.
// Returns true if the condition was met, false if timeout occurred.
func WaitFor(t *testing.T, timeout time.Duration, condition func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// RequireSettings fails the test if m's settings differ from want.
func RequireSettings(t *testing.T, m *prefs.Manager, want prefs.Settings) {
	t.Helper()
	if got := m.Settings(); got != want {
		t.Fatalf("expected settings %+v, got %+v", want, got)
	}
}

// RequireState fails the test if r is not in the expected state.
func RequireState(t *testing.T, r *prefs.ThemeResolver, want prefs.ThemeState) {
	t.Helper()
	if got := r.State(); got != want {
		t.Fatalf("expected state %s, got %s", want, got)
	}
}

var (
	_ prefs.NotificationSink = (*RecordingSink)(nil)
	_ prefs.MetricsProvider  = (*RecordingMetrics)(nil)
)
