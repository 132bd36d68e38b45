package main

import (
	"context"

	"github.com/zoobzio/capitan"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/secureguard/prefs"
)

// hookSignals logs every prefs signal. Failures log at warn, the rest at
// debug.
func hookSignals(l *zap.Logger) {
	warn := []capitan.Signal{
		prefs.StoreUnavailable,
		prefs.StoreReadFailed,
		prefs.StoreCorruptedRecord,
		prefs.StoreWriteFailed,
		prefs.StoreQuotaExceeded,
		prefs.StoreRemoveFailed,
		prefs.SettingsCorrected,
		prefs.SettingsPersistFailed,
	}
	debug := []capitan.Signal{
		prefs.StoreEvicted,
		prefs.SettingsLoaded,
		prefs.SettingsPersisted,
		prefs.SettingsReset,
		prefs.ThemeChanged,
		prefs.ThemeStateChanged,
		prefs.ThemeSubscribed,
		prefs.ThemeUnsubscribed,
	}
	for _, sig := range warn {
		hook(l, sig, zapcore.WarnLevel)
	}
	for _, sig := range debug {
		hook(l, sig, zapcore.DebugLevel)
	}
}

func hook(l *zap.Logger, sig capitan.Signal, level zapcore.Level) {
	name := sig.Name()
	capitan.Hook(sig, func(_ context.Context, e *capitan.Event) {
		if ce := l.Check(level, name); ce != nil {
			ce.Write(eventFields(e)...)
		}
	})
}

// eventFields converts the prefs field keys present on e.
func eventFields(e *capitan.Event) []zap.Field {
	var fields []zap.Field
	str := func(name string, v string, ok bool) {
		if ok {
			fields = append(fields, zap.String(name, v))
		}
	}
	num := func(name string, v int, ok bool) {
		if ok {
			fields = append(fields, zap.Int(name, v))
		}
	}

	v, ok := prefs.KeyStorageKey.From(e)
	str("storage_key", v, ok)
	v, ok = prefs.KeyError.From(e)
	str("error", v, ok)
	v, ok = prefs.KeyReason.From(e)
	str("reason", v, ok)
	v, ok = prefs.KeySource.From(e)
	str("source", v, ok)
	v, ok = prefs.KeyTheme.From(e)
	str("theme", v, ok)
	v, ok = prefs.KeyOldState.From(e)
	str("old_state", v, ok)
	v, ok = prefs.KeyNewState.From(e)
	str("new_state", v, ok)

	n, ok := prefs.KeyCount.From(e)
	num("count", n, ok)
	n, ok = prefs.KeyViolations.From(e)
	num("violations", n, ok)
	n, ok = prefs.KeySize.From(e)
	num("size", n, ok)

	if d, ok := prefs.KeyDuration.From(e); ok {
		fields = append(fields, zap.Duration("duration", d))
	}
	return fields
}
