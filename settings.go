package prefs

import "math"

// DefaultSettingsKey is the storage key under which Settings are persisted.
const DefaultSettingsKey = "secureguard_settings"

// DefaultAppPrefix is the key prefix owned by this application.
const DefaultAppPrefix = "secureguard_"

// Refresh interval bounds in milliseconds.
const (
	MinRefreshInterval     = 5000
	MaxRefreshInterval     = 300000
	DefaultRefreshInterval = 30000
)

// Theme is the user's colour scheme choice.
type Theme string

// Theme values.
const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// Valid reports whether t is a recognised theme.
func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark || t == ThemeSystem
}

// Language is the user's interface language.
type Language string

// Language values.
const (
	LanguageEnglish Language = "en"
	LanguageSpanish Language = "es"
)

// Valid reports whether l is a supported language.
func (l Language) Valid() bool {
	return l == LanguageEnglish || l == LanguageSpanish
}

// LanguageOption describes a supported language for selection lists.
type LanguageOption struct {
	Code       Language
	Name       string
	NativeName string
}

// SupportedLanguages lists the languages the dashboard ships with.
var SupportedLanguages = []LanguageOption{
	{Code: LanguageEnglish, Name: "English", NativeName: "English"},
	{Code: LanguageSpanish, Name: "Spanish", NativeName: "Español"},
}

// ThemeOption describes a selectable theme.
type ThemeOption struct {
	Value Theme
	Label string
	Icon  string
}

// ThemeOptions lists the selectable themes.
var ThemeOptions = []ThemeOption{
	{Value: ThemeLight, Label: "Light Mode", Icon: "Sun"},
	{Value: ThemeDark, Label: "Dark Mode", Icon: "Moon"},
	{Value: ThemeSystem, Label: "System Default", Icon: "Monitor"},
}

// Preferences holds the dashboard behaviour toggles.
type Preferences struct {
	Notifications      bool `json:"notifications" yaml:"notifications"`
	AutoRefresh        bool `json:"autoRefresh" yaml:"autoRefresh"`
	RefreshInterval    int  `json:"refreshInterval" yaml:"refreshInterval"`
	CompactMode        bool `json:"compactMode" yaml:"compactMode"`
	FraudAlerts        bool `json:"fraudAlerts" yaml:"fraudAlerts"`
	RealTimeUpdates    bool `json:"realTimeUpdates" yaml:"realTimeUpdates"`
	AutoLogout         bool `json:"autoLogout" yaml:"autoLogout"`
	EnhancedEncryption bool `json:"enhancedEncryption" yaml:"enhancedEncryption"`
}

// Settings is the complete persisted settings record.
type Settings struct {
	Theme       Theme       `json:"theme" yaml:"theme"`
	Language    Language    `json:"language" yaml:"language"`
	Preferences Preferences `json:"preferences" yaml:"preferences"`
}

// Defaults returns the application default settings.
func Defaults() Settings {
	return Settings{
		Theme:    ThemeSystem,
		Language: LanguageEnglish,
		Preferences: Preferences{
			Notifications:      true,
			AutoRefresh:        true,
			RefreshInterval:    DefaultRefreshInterval,
			CompactMode:        false,
			FraudAlerts:        true,
			RealTimeUpdates:    true,
			AutoLogout:         false,
			EnhancedEncryption: true,
		},
	}
}

// SettingsSchema describes a valid persisted Settings record.
var SettingsSchema = Schema{
	{Name: "theme", Rule: Rule{Kind: KindString, Required: true, OneOf: []any{"light", "dark", "system"}}},
	{Name: "language", Rule: Rule{Kind: KindString, Required: true, OneOf: []any{"en", "es"}}},
	{Name: "preferences", Rule: Rule{Kind: KindObject, Required: true, Properties: Schema{
		{Name: "notifications", Rule: Rule{Kind: KindBoolean, Required: true}},
		{Name: "autoRefresh", Rule: Rule{Kind: KindBoolean, Required: true}},
		{Name: "refreshInterval", Rule: Rule{Kind: KindNumber, Required: true, Min: Bound(MinRefreshInterval), Max: Bound(MaxRefreshInterval)}},
		{Name: "compactMode", Rule: Rule{Kind: KindBoolean, Required: true}},
		{Name: "fraudAlerts", Rule: Rule{Kind: KindBoolean, Required: true}},
		{Name: "realTimeUpdates", Rule: Rule{Kind: KindBoolean, Required: true}},
		{Name: "autoLogout", Rule: Rule{Kind: KindBoolean, Required: true}},
		{Name: "enhancedEncryption", Rule: Rule{Kind: KindBoolean, Required: true}},
	}}},
}

// Map returns s in its generic object form, the shape the schema validates.
func (s Settings) Map() map[string]any {
	p := s.Preferences
	return map[string]any{
		"theme":    string(s.Theme),
		"language": string(s.Language),
		"preferences": map[string]any{
			"notifications":      p.Notifications,
			"autoRefresh":        p.AutoRefresh,
			"refreshInterval":    p.RefreshInterval,
			"compactMode":        p.CompactMode,
			"fraudAlerts":        p.FraudAlerts,
			"realTimeUpdates":    p.RealTimeUpdates,
			"autoLogout":         p.AutoLogout,
			"enhancedEncryption": p.EnhancedEncryption,
		},
	}
}

// Validate implements Validator using SettingsSchema.
func (s Settings) Validate() error {
	r := Validate(s.Map(), SettingsSchema)
	if r.Valid {
		return nil
	}
	return &ValidationError{Violations: r.Errors}
}

// Correct builds a valid Settings from an arbitrary decoded record. It starts
// from Defaults and overlays every top-level and nested field of raw that
// individually satisfies its SettingsSchema rule. Invalid or missing fields
// keep their default.
func Correct(raw any) Settings {
	return settingsFromObject(Overlay(Defaults().Map(), raw, SettingsSchema))
}

// Overlay copies into base every field of raw that passes its schema rule.
// Object fields with Properties are merged field by field rather than
// accepted wholesale. base is modified and returned.
func Overlay(base map[string]any, raw any, schema Schema) map[string]any {
	obj, ok := asObject(raw)
	if !ok {
		return base
	}
	for _, f := range schema {
		v, present := obj[f.Name]
		if !present || v == nil {
			continue
		}
		if f.Rule.Kind == KindObject && len(f.Rule.Properties) > 0 {
			nested, _ := asObject(base[f.Name])
			if nested == nil {
				nested = map[string]any{}
			}
			base[f.Name] = Overlay(nested, v, f.Rule.Properties)
			continue
		}
		if len(f.Rule.Check(f.Name, v)) == 0 {
			base[f.Name] = v
		}
	}
	return base
}

// settingsFromObject converts a schema-valid object into Settings.
func settingsFromObject(obj map[string]any) Settings {
	var s Settings
	if v, ok := obj["theme"].(string); ok {
		s.Theme = Theme(v)
	}
	if v, ok := obj["language"].(string); ok {
		s.Language = Language(v)
	}
	prefs, _ := asObject(obj["preferences"])
	s.Preferences = Preferences{
		Notifications:      boolField(prefs, "notifications"),
		AutoRefresh:        boolField(prefs, "autoRefresh"),
		RefreshInterval:    intField(prefs, "refreshInterval"),
		CompactMode:        boolField(prefs, "compactMode"),
		FraudAlerts:        boolField(prefs, "fraudAlerts"),
		RealTimeUpdates:    boolField(prefs, "realTimeUpdates"),
		AutoLogout:         boolField(prefs, "autoLogout"),
		EnhancedEncryption: boolField(prefs, "enhancedEncryption"),
	}
	return s
}

func boolField(obj map[string]any, name string) bool {
	v, _ := obj[name].(bool)
	return v
}

// intField truncates fractional numbers toward zero.
func intField(obj map[string]any, name string) int {
	f, ok := toFloat(obj[name])
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(math.Trunc(f))
}
