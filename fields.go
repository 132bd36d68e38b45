package prefs

import "github.com/zoobzio/capitan"

// Field keys for prefs events.
var (
	// KeyStorageKey is the storage key an operation touched.
	KeyStorageKey = capitan.NewStringKey("storage_key")

	// KeyError is the error message when an operation fails.
	KeyError = capitan.NewStringKey("error")

	// KeyReason classifies a failure: encode, backend, quota or invalid.
	KeyReason = capitan.NewStringKey("reason")

	// KeyCount is the number of keys affected by an operation.
	KeyCount = capitan.NewIntKey("count")

	// KeyViolations is the number of schema violations found.
	KeyViolations = capitan.NewIntKey("violations")

	// KeySource says where settings or a theme came from.
	KeySource = capitan.NewStringKey("source")

	// KeyTheme is the effective theme.
	KeyTheme = capitan.NewStringKey("theme")

	// KeyOldState is the resolver state before a transition.
	KeyOldState = capitan.NewStringKey("old_state")

	// KeyNewState is the resolver state after a transition.
	KeyNewState = capitan.NewStringKey("new_state")

	// KeySize is an estimated size in bytes.
	KeySize = capitan.NewIntKey("size")

	// KeyDuration is how long a write took.
	KeyDuration = capitan.NewDurationKey("duration")
)
