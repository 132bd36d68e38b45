package prefs_test

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/zoobzio/clockz"

	"github.com/secureguard/prefs"
	"github.com/secureguard/prefs/prefstest"
)

func newManager(t *testing.T, backend prefs.Backend, opts ...prefs.ManagerOption) (*prefs.Manager, *prefs.Store) {
	t.Helper()
	store := prefs.OpenStore(context.Background(), backend)
	return prefs.NewManager(store, opts...), store
}

func TestManager_StartsWithDefaultsWithoutWriting(t *testing.T) {
	backend := prefstest.NewFaultyBackend(nil)
	m, _ := newManager(t, backend)
	probeWrites := backend.Calls(prefstest.OpSet)

	prefstest.RequireSettings(t, m, prefs.Defaults())
	if backend.Calls(prefstest.OpSet) != probeWrites {
		t.Error("expected construction not to persist")
	}
	if !m.LastSaved().IsZero() {
		t.Error("expected no save time yet")
	}
}

func TestManager_LoadPartialRecord(t *testing.T) {
	ctx := context.Background()
	mem := prefs.NewMemoryBackend()
	_ = mem.SetItem(ctx, prefs.DefaultSettingsKey, `{"theme":"dark"}`)
	metrics := prefstest.NewRecordingMetrics()
	m, store := newManager(t, mem, prefs.WithManagerMetrics(metrics))

	v := m.Load(ctx)

	want := prefs.Defaults()
	want.Theme = prefs.ThemeDark
	prefstest.RequireSettings(t, m, want)
	if v.Valid || len(v.Errors) == 0 {
		t.Errorf("expected stored record to be reported invalid, got %+v", v)
	}
	if metrics.ValidationFailures["load"] != 1 {
		t.Errorf("expected one load validation failure, got %v", metrics.ValidationFailures)
	}

	var persisted prefs.Settings
	if !store.Get(ctx, prefs.DefaultSettingsKey, &persisted) || persisted != want {
		t.Errorf("expected corrected record persisted, got %+v", persisted)
	}
}

func TestManager_LoadValidRecord(t *testing.T) {
	ctx := context.Background()
	stored := prefs.Defaults()
	stored.Language = prefs.LanguageSpanish
	stored.Preferences.RefreshInterval = 120000

	mem := prefs.NewMemoryBackend()
	seed := prefs.OpenStore(ctx, mem)
	seed.Set(ctx, prefs.DefaultSettingsKey, stored)

	m, _ := newManager(t, mem)
	v := m.Load(ctx)
	if !v.Valid {
		t.Fatalf("expected valid record, got %v", v.Errors)
	}
	prefstest.RequireSettings(t, m, stored)
}

func TestManager_LoadMissingRecordUsesDefaults(t *testing.T) {
	ctx := context.Background()
	mem := prefs.NewMemoryBackend()
	m, _ := newManager(t, mem)

	m.Load(ctx)
	prefstest.RequireSettings(t, m, prefs.Defaults())
	if _, ok, _ := mem.GetItem(ctx, prefs.DefaultSettingsKey); !ok {
		t.Error("expected defaults to be written back")
	}
}

func TestManager_LoadCorruptedRecord(t *testing.T) {
	ctx := context.Background()
	mem := prefs.NewMemoryBackend()
	_ = mem.SetItem(ctx, prefs.DefaultSettingsKey, "{{{")
	m, _ := newManager(t, mem)

	m.Load(ctx)
	prefstest.RequireSettings(t, m, prefs.Defaults())
	raw, _, _ := mem.GetItem(ctx, prefs.DefaultSettingsKey)
	if !strings.HasPrefix(raw, `{"theme":"system"`) {
		t.Errorf("expected corrupted record replaced by defaults, got %q", raw)
	}
}

func TestManager_LoadUnavailableStore(t *testing.T) {
	ctx := context.Background()
	backend := prefstest.NewFaultyBackend(nil)
	backend.Fail(prefstest.OpSet, errors.New("private mode"))
	m, _ := newManager(t, backend)

	v := m.Load(ctx)
	if !v.Valid || v.Settings != prefs.Defaults() {
		t.Errorf("expected defaults, got %+v", v)
	}
	if m.StorageAvailable() || m.StorageError() == nil {
		t.Error("expected storage to be reported unavailable")
	}
	if backend.Calls(prefstest.OpGet) != 0 {
		t.Error("expected unavailable backend never to be read")
	}
}

func TestManager_UpdatesPersist(t *testing.T) {
	ctx := context.Background()
	clock := clockz.NewFakeClock()
	mem := prefs.NewMemoryBackend()
	m, store := newManager(t, mem, prefs.WithManagerClock(clock))

	m.UpdateTheme(ctx, prefs.ThemeLight)
	m.UpdateLanguage(ctx, prefs.LanguageSpanish)
	m.UpdatePreferences(ctx, prefs.PreferencesPatch{CompactMode: prefs.Ptr(true)})

	want := prefs.Defaults()
	want.Theme = prefs.ThemeLight
	want.Language = prefs.LanguageSpanish
	want.Preferences.CompactMode = true
	prefstest.RequireSettings(t, m, want)

	var persisted prefs.Settings
	if !store.Get(ctx, prefs.DefaultSettingsKey, &persisted) || persisted != want {
		t.Errorf("expected %+v persisted, got %+v", want, persisted)
	}
	if !m.LastSaved().Equal(clock.Now()) {
		t.Errorf("expected last saved at fake clock time, got %v", m.LastSaved())
	}
	if m.Theme() != prefs.ThemeLight || m.Language() != prefs.LanguageSpanish || !m.Preferences().CompactMode {
		t.Error("accessors disagree with settings")
	}
}

func TestManager_InvalidChangeIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	mem := prefs.NewMemoryBackend()
	metrics := prefstest.NewRecordingMetrics()
	m, store := newManager(t, mem, prefs.WithManagerMetrics(metrics))
	m.UpdateTheme(ctx, prefs.ThemeDark)

	m.UpdatePreferences(ctx, prefs.PreferencesPatch{RefreshInterval: prefs.Ptr(10)})

	if m.Preferences().RefreshInterval != 10 {
		t.Fatal("expected in-memory state to hold the change")
	}
	var persisted prefs.Settings
	store.Get(ctx, prefs.DefaultSettingsKey, &persisted)
	if persisted.Preferences.RefreshInterval != prefs.DefaultRefreshInterval {
		t.Errorf("expected invalid change not persisted, got %d", persisted.Preferences.RefreshInterval)
	}
	if metrics.ValidationFailures["persist"] != 1 {
		t.Errorf("expected one persist validation failure, got %v", metrics.ValidationFailures)
	}
}

func TestManager_ValidateAndRepair(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, prefs.NewMemoryBackend())
	m.UpdateLanguage(ctx, "fr")
	m.UpdatePreferences(ctx, prefs.PreferencesPatch{AutoLogout: prefs.Ptr(true)})

	v := m.ValidateCurrentSettings()
	if v.Valid {
		t.Fatal("expected invalid settings")
	}
	want := []string{"language must be one of: en, es"}
	if !reflect.DeepEqual(v.Errors, want) {
		t.Errorf("expected %v, got %v", want, v.Errors)
	}
	if v.Settings.Language != prefs.LanguageEnglish || !v.Settings.Preferences.AutoLogout {
		t.Errorf("expected corrected settings to keep valid fields, got %+v", v.Settings)
	}

	if errs := m.RepairSettings(ctx); !reflect.DeepEqual(errs, want) {
		t.Errorf("expected repair to report %v, got %v", want, errs)
	}
	if !m.ValidateCurrentSettings().Valid {
		t.Error("expected settings valid after repair")
	}
	if errs := m.RepairSettings(ctx); errs != nil {
		t.Errorf("expected nothing to repair, got %v", errs)
	}
}

func TestManager_ResetIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mem := prefs.NewMemoryBackend()
	m, _ := newManager(t, mem)
	m.UpdateTheme(ctx, prefs.ThemeDark)

	first := m.ResetToDefaults(ctx)
	second := m.ResetToDefaults(ctx)

	if first != prefs.Defaults() || second != prefs.Defaults() {
		t.Errorf("expected defaults twice, got %+v then %+v", first, second)
	}
	if _, ok, _ := mem.GetItem(ctx, prefs.DefaultSettingsKey); ok {
		t.Error("expected record removed")
	}
}

func TestManager_ResetSurvivesStorageFailure(t *testing.T) {
	ctx := context.Background()
	backend := prefstest.NewFaultyBackend(nil)
	m, _ := newManager(t, backend)
	m.UpdateTheme(ctx, prefs.ThemeDark)

	backend.Panic(prefstest.OpRemove, "gone")
	if got := m.ResetToDefaults(ctx); got != prefs.Defaults() {
		t.Errorf("expected defaults, got %+v", got)
	}
}

func TestManager_PersistFailureDoesNotPropagate(t *testing.T) {
	ctx := context.Background()
	backend := prefstest.NewFaultyBackend(nil)
	m, _ := newManager(t, backend)

	backend.Fail(prefstest.OpSet, errors.New("read-only"))
	got := m.UpdateTheme(ctx, prefs.ThemeDark)
	if got.Theme != prefs.ThemeDark || m.Theme() != prefs.ThemeDark {
		t.Error("expected in-memory change despite failed save")
	}
	if !m.LastSaved().IsZero() {
		t.Error("expected no save time after failed save")
	}
}

func TestManager_FullStoreRetriesAfterEviction(t *testing.T) {
	ctx := context.Background()
	backend := prefstest.NewFaultyBackend(nil)
	store := prefs.OpenStore(ctx, backend)
	m := prefs.NewManager(store, prefs.WithFullThreshold(10))
	store.Set(ctx, "foreign_blob", strings.Repeat("x", 64))

	backend.FailTimes(prefstest.OpSet, errors.New("transient"), 1)
	m.UpdateTheme(ctx, prefs.ThemeLight)

	if m.LastSaved().IsZero() {
		t.Error("expected save to succeed on the retry")
	}
	if _, ok, _ := backend.Inner().GetItem(ctx, "foreign_blob"); ok {
		t.Error("expected foreign entry evicted")
	}
}

func TestManager_SubscribeSeesTransitions(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, prefs.NewMemoryBackend())

	var seen []prefs.Theme
	unsubscribe := m.Subscribe(func(prev, curr prefs.Settings) {
		seen = append(seen, prev.Theme, curr.Theme)
	})
	m.UpdateTheme(ctx, prefs.ThemeDark)
	unsubscribe()
	unsubscribe()
	m.UpdateTheme(ctx, prefs.ThemeLight)

	want := []prefs.Theme{prefs.ThemeSystem, prefs.ThemeDark}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("expected %v, got %v", want, seen)
	}
}

func TestManager_CustomKeyAndStorageReport(t *testing.T) {
	ctx := context.Background()
	mem := prefs.NewMemoryBackend()
	m, _ := newManager(t, mem, prefs.WithSettingsKey("secureguard_other"))
	m.UpdateTheme(ctx, prefs.ThemeDark)

	if _, ok, _ := mem.GetItem(ctx, "secureguard_other"); !ok {
		t.Error("expected record under custom key")
	}
	u := m.StorageUsage(ctx)
	if u.TotalKeys != 1 || u.EstimatedSize == 0 {
		t.Errorf("unexpected usage %+v", u)
	}
	if n := m.ClearStorageCache(ctx); n != 0 {
		t.Errorf("expected nothing to evict under retention, got %d", n)
	}
}
