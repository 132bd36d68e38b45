/*
Package prefs persists and validates the user settings of the SecureGuard
dashboard: theme, language and behaviour preferences.

prefs is designed to be embedded in the process that renders the dashboard,
not run as a standalone service. Storage is any small key/value Backend;
failures never escape to the caller.

# Basic Usage

Probe a backend, wrap it in a Store and load the settings:

	store := prefs.OpenStore(ctx, file.New("/var/lib/secureguard/prefs.json"))
	manager := prefs.NewManager(store)
	manager.Load(ctx)

	manager.UpdateTheme(ctx, prefs.ThemeDark)
	manager.UpdatePreferences(ctx, prefs.PreferencesPatch{
	    RefreshInterval: prefs.Ptr(60000),
	})

If the backend fails its probe the Store keeps values in memory for the
rest of the session and the Manager starts from Defaults.

# Validation

Settings are checked against SettingsSchema, a declarative Schema. Stored
records that fail are corrected field by field: each valid field is kept
and each invalid one falls back to its default.

	r := prefs.Validate(raw, prefs.SettingsSchema)
	if !r.Valid {
	    fixed := prefs.Correct(raw)
	}

# Theme

A ThemeResolver turns the settings theme and the system preference into the
effective theme, applies it to a Host and broadcasts a ThemeChange:

	resolver := prefs.NewThemeResolver(signal, prefs.CapitanSink{},
	    prefs.WithHost(markers),
	)
	defer resolver.Close(ctx)
	resolver.Attach(ctx, manager)

# Observability

Every fault is reported through capitan signals (StoreWriteFailed,
SettingsCorrected, ThemeChanged, ...) with typed field keys, and through an
optional MetricsProvider.

	capitan.Hook(prefs.StoreWriteFailed, func(_ context.Context, e *capitan.Event) {
	    reason, _ := prefs.KeyReason.From(e)
	    log.Printf("settings not saved: %s", reason)
	})
*/
package prefs
