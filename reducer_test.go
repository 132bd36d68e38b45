package prefs

import "testing"

func TestReduce_SetTheme(t *testing.T) {
	got := Reduce(Defaults(), SetTheme(ThemeDark))
	if got.Theme != ThemeDark {
		t.Errorf("expected dark, got %q", got.Theme)
	}
	if got.Preferences != Defaults().Preferences {
		t.Error("expected preferences untouched")
	}
}

func TestReduce_SetLanguage(t *testing.T) {
	if got := Reduce(Defaults(), SetLanguage(LanguageSpanish)); got.Language != LanguageSpanish {
		t.Errorf("expected es, got %q", got.Language)
	}
}

func TestReduce_UpdatePreferencesMergesPatch(t *testing.T) {
	got := Reduce(Defaults(), UpdatePreferences(PreferencesPatch{
		CompactMode:     Ptr(true),
		RefreshInterval: Ptr(60000),
	}))

	want := Defaults().Preferences
	want.CompactMode = true
	want.RefreshInterval = 60000
	if got.Preferences != want {
		t.Errorf("expected %+v, got %+v", want, got.Preferences)
	}
}

func TestReduce_DoesNotValidate(t *testing.T) {
	got := Reduce(Defaults(), UpdatePreferences(PreferencesPatch{RefreshInterval: Ptr(1)}))
	if got.Preferences.RefreshInterval != 1 {
		t.Errorf("expected reducer to accept any value, got %d", got.Preferences.RefreshInterval)
	}
}

func TestReduce_ResetAndLoad(t *testing.T) {
	s := Defaults()
	s.Theme = ThemeLight
	s.Preferences.AutoLogout = true

	if got := Reduce(s, Reset()); got != Defaults() {
		t.Errorf("expected defaults, got %+v", got)
	}
	if got := Reduce(Defaults(), Load(s)); got != s {
		t.Errorf("expected loaded settings, got %+v", got)
	}
}

func TestReduce_UnknownActionKeepsState(t *testing.T) {
	s := Defaults()
	if got := Reduce(s, Action{Type: ActionType(99)}); got != s {
		t.Errorf("expected state unchanged, got %+v", got)
	}
}

func TestActionType_String(t *testing.T) {
	cases := map[ActionType]string{
		ActionSetTheme:          "set_theme",
		ActionSetLanguage:       "set_language",
		ActionUpdatePreferences: "update_preferences",
		ActionReset:             "reset",
		ActionLoad:              "load",
		ActionType(99):          "unknown",
	}
	for a, want := range cases {
		if got := a.String(); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
}

func TestPreferencesPatch_Empty(t *testing.T) {
	if !(PreferencesPatch{}).Empty() {
		t.Error("expected zero patch to be empty")
	}
	if (PreferencesPatch{FraudAlerts: Ptr(false)}).Empty() {
		t.Error("expected patch with a field to be non-empty")
	}
}
