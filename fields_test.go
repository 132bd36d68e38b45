package prefs

import (
	"testing"
	"time"
)

func TestFieldKeyNames(t *testing.T) {
	cases := []struct {
		name string
		got  string
	}{
		{"storage_key", KeyStorageKey.Field("k").Key().Name()},
		{"error", KeyError.Field("boom").Key().Name()},
		{"reason", KeyReason.Field("quota").Key().Name()},
		{"count", KeyCount.Field(3).Key().Name()},
		{"violations", KeyViolations.Field(2).Key().Name()},
		{"source", KeySource.Field("system").Key().Name()},
		{"theme", KeyTheme.Field("dark").Key().Name()},
		{"old_state", KeyOldState.Field("light").Key().Name()},
		{"new_state", KeyNewState.Field("dark").Key().Name()},
		{"size", KeySize.Field(128).Key().Name()},
		{"duration", KeyDuration.Field(time.Millisecond).Key().Name()},
	}
	for _, c := range cases {
		if c.got != c.name {
			t.Errorf("expected key %q, got %q", c.name, c.got)
		}
	}
}
