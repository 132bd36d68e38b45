package prefs

import (
	"testing"
	"time"
)

func TestNoOpMetricsProvider_DoesNotPanic(_ *testing.T) {
	var m NoOpMetricsProvider

	// These should not panic
	m.OnThemeStateChange(StateSystemLight, StateSystemDark)
	m.OnWriteSuccess(100 * time.Millisecond)
	m.OnWriteFailure("quota", 50*time.Millisecond)
	m.OnEviction(3)
	m.OnCorruptedRecord()
	m.OnValidationFailure("load", 2)
}
