package prefs

// ActionType identifies a settings transition.
type ActionType int

const (
	// ActionSetTheme replaces the theme.
	ActionSetTheme ActionType = iota
	// ActionSetLanguage replaces the language.
	ActionSetLanguage
	// ActionUpdatePreferences merges a preferences patch.
	ActionUpdatePreferences
	// ActionReset restores defaults.
	ActionReset
	// ActionLoad replaces the whole record.
	ActionLoad
)

// String returns the string representation of the action type.
func (a ActionType) String() string {
	switch a {
	case ActionSetTheme:
		return "set_theme"
	case ActionSetLanguage:
		return "set_language"
	case ActionUpdatePreferences:
		return "update_preferences"
	case ActionReset:
		return "reset"
	case ActionLoad:
		return "load"
	default:
		return "unknown"
	}
}

// Action is a settings transition and its payload. Only the payload field
// matching Type is read.
type Action struct {
	Type     ActionType
	Theme    Theme
	Language Language
	Patch    PreferencesPatch
	Settings Settings
}

// SetTheme builds an ActionSetTheme.
func SetTheme(t Theme) Action { return Action{Type: ActionSetTheme, Theme: t} }

// SetLanguage builds an ActionSetLanguage.
func SetLanguage(l Language) Action { return Action{Type: ActionSetLanguage, Language: l} }

// UpdatePreferences builds an ActionUpdatePreferences.
func UpdatePreferences(p PreferencesPatch) Action {
	return Action{Type: ActionUpdatePreferences, Patch: p}
}

// Reset builds an ActionReset.
func Reset() Action { return Action{Type: ActionReset} }

// Load builds an ActionLoad.
func Load(s Settings) Action { return Action{Type: ActionLoad, Settings: s} }

// PreferencesPatch is a partial Preferences. Nil fields are left unchanged.
type PreferencesPatch struct {
	Notifications      *bool `json:"notifications,omitempty" yaml:"notifications,omitempty"`
	AutoRefresh        *bool `json:"autoRefresh,omitempty" yaml:"autoRefresh,omitempty"`
	RefreshInterval    *int  `json:"refreshInterval,omitempty" yaml:"refreshInterval,omitempty"`
	CompactMode        *bool `json:"compactMode,omitempty" yaml:"compactMode,omitempty"`
	FraudAlerts        *bool `json:"fraudAlerts,omitempty" yaml:"fraudAlerts,omitempty"`
	RealTimeUpdates    *bool `json:"realTimeUpdates,omitempty" yaml:"realTimeUpdates,omitempty"`
	AutoLogout         *bool `json:"autoLogout,omitempty" yaml:"autoLogout,omitempty"`
	EnhancedEncryption *bool `json:"enhancedEncryption,omitempty" yaml:"enhancedEncryption,omitempty"`
}

// Apply returns p merged over base.
func (p PreferencesPatch) Apply(base Preferences) Preferences {
	set(&base.Notifications, p.Notifications)
	set(&base.AutoRefresh, p.AutoRefresh)
	set(&base.RefreshInterval, p.RefreshInterval)
	set(&base.CompactMode, p.CompactMode)
	set(&base.FraudAlerts, p.FraudAlerts)
	set(&base.RealTimeUpdates, p.RealTimeUpdates)
	set(&base.AutoLogout, p.AutoLogout)
	set(&base.EnhancedEncryption, p.EnhancedEncryption)
	return base
}

// Empty reports whether the patch changes nothing.
func (p PreferencesPatch) Empty() bool {
	return p == PreferencesPatch{}
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T {
	return &v
}

// Reduce applies action to state and returns the next state. It does not
// validate; callers check the result against SettingsSchema.
func Reduce(state Settings, action Action) Settings {
	switch action.Type {
	case ActionSetTheme:
		state.Theme = action.Theme
	case ActionSetLanguage:
		state.Language = action.Language
	case ActionUpdatePreferences:
		state.Preferences = action.Patch.Apply(state.Preferences)
	case ActionReset:
		return Defaults()
	case ActionLoad:
		return action.Settings
	}
	return state
}
