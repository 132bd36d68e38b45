package prefs

import (
	"context"
	"fmt"
	"testing"
)

func BenchmarkValidate_Settings(b *testing.B) {
	obj := Defaults().Map()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if r := Validate(obj, SettingsSchema); !r.Valid {
			b.Fatalf("defaults invalid: %v", r.Errors)
		}
	}
}

func BenchmarkCorrect(b *testing.B) {
	raw := map[string]any{
		"theme":    "neon",
		"language": "es",
		"preferences": map[string]any{
			"compactMode":     true,
			"refreshInterval": 1,
		},
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Correct(raw)
	}
}

func BenchmarkStore_Set(b *testing.B) {
	ctx := context.Background()
	s := NewStore(NewMemoryBackend(), Capability{Available: true})
	settings := Defaults()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Set(ctx, DefaultSettingsKey, settings)
	}
}

func BenchmarkStore_SetWithEviction(b *testing.B) {
	ctx := context.Background()
	s := NewStore(NewLimitedMemoryBackend(512), Capability{Available: true}, WithRetain(2))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Set(ctx, fmt.Sprintf("%sentry_%d", DefaultAppPrefix, i%16), "0123456789012345678901234567890123456789")
	}
}

func BenchmarkManager_Dispatch(b *testing.B) {
	ctx := context.Background()
	m := NewManager(NewStore(NewMemoryBackend(), Capability{Available: true}))
	themes := []Theme{ThemeLight, ThemeDark, ThemeSystem}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.UpdateTheme(ctx, themes[i%len(themes)])
	}
}

func BenchmarkFollower_Process(b *testing.B) {
	ch := make(chan []byte, b.N+1)
	ch <- []byte(`{"theme":"system","language":"en"}`)
	for i := 1; i <= b.N; i++ {
		theme := "light"
		if i%2 == 0 {
			theme = "dark"
		}
		ch <- []byte(fmt.Sprintf(`{"theme":%q,"language":"en","preferences":{"notifications":true,"autoRefresh":true,"refreshInterval":%d,"compactMode":false,"fraudAlerts":true,"realTimeUpdates":true,"autoLogout":false,"enhancedEncryption":true}}`, theme, MinRefreshInterval+i%1000))
	}

	m := NewManager(NewStore(NewMemoryBackend(), Capability{Available: true}))
	f := NewFollower(NewSyncChannelWatcher(ch), m, WithSyncMode())

	ctx := context.Background()
	if err := f.Start(ctx); err != nil {
		b.Fatalf("Start() error = %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Process(ctx)
	}
}

func BenchmarkThemeResolver_SetTheme(b *testing.B) {
	ctx := context.Background()
	r := NewThemeResolver(StaticSignal(true), SinkFunc(func(context.Context, ThemeChange) {}))
	defer r.Close(ctx)
	themes := []Theme{ThemeLight, ThemeDark, ThemeSystem}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.SetTheme(ctx, themes[i%len(themes)])
	}
}
