package prefs

// ThemeState is the theme resolver's current state. It combines the chosen
// theme with, for the system theme, the last observed preference.
type ThemeState int32

const (
	// StateSystemLight follows the system preference, currently light.
	StateSystemLight ThemeState = iota

	// StateSystemDark follows the system preference, currently dark.
	StateSystemDark

	// StateLight is a manual light theme.
	StateLight

	// StateDark is a manual dark theme.
	StateDark
)

// String returns the string representation of the state.
func (s ThemeState) String() string {
	switch s {
	case StateSystemLight:
		return "system_light"
	case StateSystemDark:
		return "system_dark"
	case StateLight:
		return "light"
	case StateDark:
		return "dark"
	default:
		return "unknown"
	}
}

// Effective returns the theme actually applied in this state.
func (s ThemeState) Effective() Theme {
	if s == StateDark || s == StateSystemDark {
		return ThemeDark
	}
	return ThemeLight
}

// Source reports whether the effective theme was chosen or inherited.
func (s ThemeState) Source() Source {
	if s == StateSystemLight || s == StateSystemDark {
		return SourceSystem
	}
	return SourceManual
}

// Theme returns the settings theme that leads to this state.
func (s ThemeState) Theme() Theme {
	switch s {
	case StateLight:
		return ThemeLight
	case StateDark:
		return ThemeDark
	default:
		return ThemeSystem
	}
}

// resolveState maps a settings theme and the system preference to a state.
// Unrecognised themes resolve to manual light.
func resolveState(theme Theme, prefersDark bool) ThemeState {
	switch theme {
	case ThemeSystem:
		if prefersDark {
			return StateSystemDark
		}
		return StateSystemLight
	case ThemeDark:
		return StateDark
	default:
		return StateLight
	}
}
