package prefs

import "github.com/zoobzio/capitan"

// Storage signals.
var (
	// StoreUnavailable is emitted when the startup probe fails and the store
	// falls back to memory for the session.
	StoreUnavailable = capitan.NewSignal(
		"prefs.store.unavailable",
		"Persistent storage unavailable, using in-memory fallback",
	)

	// StoreReadFailed is emitted when a backend read fails or a value cannot
	// be decoded into the requested type.
	StoreReadFailed = capitan.NewSignal(
		"prefs.store.read.failed",
		"Storage read failed",
	)

	// StoreCorruptedRecord is emitted when a stored value is not decodable
	// and has been evicted.
	StoreCorruptedRecord = capitan.NewSignal(
		"prefs.store.record.corrupted",
		"Corrupted record evicted",
	)

	// StoreWriteFailed is emitted when a write fails for good.
	StoreWriteFailed = capitan.NewSignal(
		"prefs.store.write.failed",
		"Storage write failed",
	)

	// StoreQuotaExceeded is emitted when a write hits the backend quota and
	// eviction is attempted.
	StoreQuotaExceeded = capitan.NewSignal(
		"prefs.store.quota.exceeded",
		"Storage quota exceeded, evicting old entries",
	)

	// StoreEvicted is emitted after an eviction pass.
	StoreEvicted = capitan.NewSignal(
		"prefs.store.evicted",
		"Old entries evicted",
	)

	// StoreRemoveFailed is emitted when a key could not be removed.
	StoreRemoveFailed = capitan.NewSignal(
		"prefs.store.remove.failed",
		"Storage remove failed",
	)
)

// Settings signals.
var (
	// SettingsLoaded is emitted when startup loading completes.
	SettingsLoaded = capitan.NewSignal(
		"prefs.settings.loaded",
		"Settings loaded",
	)

	// SettingsCorrected is emitted when stored or current settings failed
	// validation and were rebuilt from defaults.
	SettingsCorrected = capitan.NewSignal(
		"prefs.settings.corrected",
		"Invalid settings corrected",
	)

	// SettingsPersisted is emitted after a successful save.
	SettingsPersisted = capitan.NewSignal(
		"prefs.settings.persisted",
		"Settings persisted",
	)

	// SettingsPersistFailed is emitted when a save fails or is skipped
	// because the settings are invalid.
	SettingsPersistFailed = capitan.NewSignal(
		"prefs.settings.persist.failed",
		"Settings persistence failed",
	)

	// SettingsReset is emitted when settings are reset to defaults.
	SettingsReset = capitan.NewSignal(
		"prefs.settings.reset",
		"Settings reset to defaults",
	)
)

// Theme signals.
var (
	// ThemeChanged is the theme change broadcast emitted by CapitanSink.
	ThemeChanged = capitan.NewSignal(
		"prefs.theme.changed",
		"Effective theme applied",
	)

	// ThemeStateChanged is emitted when the resolver changes state.
	ThemeStateChanged = capitan.NewSignal(
		"prefs.theme.state.changed",
		"Theme resolver state transition",
	)

	// ThemeSubscribed is emitted when the resolver starts following the
	// system preference signal.
	ThemeSubscribed = capitan.NewSignal(
		"prefs.theme.subscribed",
		"Subscribed to system preference",
	)

	// ThemeUnsubscribed is emitted when the resolver stops following it.
	ThemeUnsubscribed = capitan.NewSignal(
		"prefs.theme.unsubscribed",
		"Unsubscribed from system preference",
	)
)
