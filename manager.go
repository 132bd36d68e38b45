package prefs

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// DefaultFullThreshold is the estimated store size, in bytes, above which a
// failed save triggers an eviction pass and one more attempt.
const DefaultFullThreshold = 4_000_000

// Validation is the outcome of checking the current settings. Settings is
// the corrected form when Valid is false.
type Validation struct {
	Settings Settings
	Errors   []string
	Valid    bool
}

// Manager owns the canonical Settings. Every change goes through Dispatch,
// which runs the pure Reduce and then persists the result. Dispatches are
// serialised; readers never block on storage.
type Manager struct {
	store         *Store
	key           string
	clock         clockz.Clock
	metrics       MetricsProvider
	fullThreshold int

	dispatchMu sync.Mutex

	mu        sync.RWMutex
	settings  Settings
	lastSaved time.Time
	subs      map[uint64]func(prev, curr Settings)
	nextSub   uint64
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSettingsKey sets the storage key of the settings record.
func WithSettingsKey(key string) ManagerOption {
	return func(m *Manager) {
		if key != "" {
			m.key = key
		}
	}
}

// WithManagerClock sets the clock used for the last-saved timestamp.
func WithManagerClock(clock clockz.Clock) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithManagerMetrics sets the metrics provider for validation events.
func WithManagerMetrics(p MetricsProvider) ManagerOption {
	return func(m *Manager) {
		if p != nil {
			m.metrics = p
		}
	}
}

// WithFullThreshold sets the size above which a failed save evicts and retries.
func WithFullThreshold(bytes int) ManagerOption {
	return func(m *Manager) {
		m.fullThreshold = bytes
	}
}

// NewManager creates a Manager holding Defaults. Nothing is read or written
// until Load or the first dispatch.
func NewManager(store *Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:         store,
		key:           DefaultSettingsKey,
		clock:         clockz.RealClock,
		metrics:       NoOpMetricsProvider{},
		fullThreshold: DefaultFullThreshold,
		settings:      Defaults(),
		subs:          make(map[uint64]func(prev, curr Settings)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load reads the stored record, corrects it if it fails the schema, and
// makes the result current. The returned Validation describes the stored
// record, not the corrected one.
func (m *Manager) Load(ctx context.Context) Validation {
	if !m.store.IsAvailable() {
		s := m.Dispatch(ctx, Load(Defaults()))
		capitan.Emit(ctx, SettingsLoaded,
			KeyStorageKey.Field(m.key),
			KeySource.Field("defaults"),
		)
		return Validation{Settings: s, Valid: true}
	}

	var raw any
	if !m.store.Get(ctx, m.key, &raw) {
		raw = nil
	}

	r := Validate(raw, SettingsSchema)
	if !r.Valid {
		m.metrics.OnValidationFailure("load", len(r.Errors))
		capitan.Emit(ctx, SettingsCorrected,
			KeyStorageKey.Field(m.key),
			KeyViolations.Field(len(r.Errors)),
		)
		s := m.Dispatch(ctx, Load(Correct(raw)))
		capitan.Emit(ctx, SettingsLoaded,
			KeyStorageKey.Field(m.key),
			KeySource.Field("corrected"),
		)
		return Validation{Settings: s, Errors: r.Errors}
	}

	obj, _ := asObject(raw)
	s := m.Dispatch(ctx, Load(settingsFromObject(obj)))
	capitan.Emit(ctx, SettingsLoaded,
		KeyStorageKey.Field(m.key),
		KeySource.Field("stored"),
	)
	return Validation{Settings: s, Valid: true}
}

// Dispatch applies action, persists the result unless the action is a
// reset, and notifies subscribers. It returns the new settings.
//
// Subscribers run on the dispatching goroutine and must not dispatch.
func (m *Manager) Dispatch(ctx context.Context, action Action) Settings {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.mu.Lock()
	prev := m.settings
	next := Reduce(prev, action)
	m.settings = next
	subs := make([]func(prev, curr Settings), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	if action.Type != ActionReset {
		m.persist(ctx, next)
	}

	for _, fn := range subs {
		fn(prev, next)
	}
	return next
}

// persist saves s if it is schema-valid. Failures are reported, not returned.
func (m *Manager) persist(ctx context.Context, s Settings) bool {
	r := Validate(s.Map(), SettingsSchema)
	if !r.Valid {
		m.metrics.OnValidationFailure("persist", len(r.Errors))
		capitan.Emit(ctx, SettingsPersistFailed,
			KeyStorageKey.Field(m.key),
			KeyReason.Field("invalid"),
			KeyViolations.Field(len(r.Errors)),
		)
		return false
	}

	ok := m.store.Set(ctx, m.key, s)
	if !ok {
		if u := m.store.Usage(ctx); u.EstimatedSize > m.fullThreshold {
			m.store.ClearOldEntries(ctx, m.store.prefix)
			ok = m.store.Set(ctx, m.key, s)
		}
	}
	if !ok {
		capitan.Emit(ctx, SettingsPersistFailed,
			KeyStorageKey.Field(m.key),
			KeyReason.Field("storage"),
		)
		return false
	}

	m.mu.Lock()
	m.lastSaved = m.clock.Now()
	m.mu.Unlock()
	capitan.Emit(ctx, SettingsPersisted,
		KeyStorageKey.Field(m.key),
	)
	return true
}

// UpdateTheme sets the theme.
func (m *Manager) UpdateTheme(ctx context.Context, t Theme) Settings {
	return m.Dispatch(ctx, SetTheme(t))
}

// UpdateLanguage sets the language.
func (m *Manager) UpdateLanguage(ctx context.Context, l Language) Settings {
	return m.Dispatch(ctx, SetLanguage(l))
}

// UpdatePreferences merges patch into the preferences.
func (m *Manager) UpdatePreferences(ctx context.Context, patch PreferencesPatch) Settings {
	return m.Dispatch(ctx, UpdatePreferences(patch))
}

// ResetToDefaults restores defaults and removes the stored record. A storage
// failure never prevents the in-memory reset.
func (m *Manager) ResetToDefaults(ctx context.Context) Settings {
	s := m.Dispatch(ctx, Reset())
	removed := m.store.Remove(ctx, m.key)
	capitan.Emit(ctx, SettingsReset,
		KeyStorageKey.Field(m.key),
		KeySource.Field(resetSource(removed)),
	)
	return s
}

func resetSource(removed bool) string {
	if removed {
		return "storage"
	}
	return "memory"
}

// ValidateCurrentSettings checks the current settings against SettingsSchema.
func (m *Manager) ValidateCurrentSettings() Validation {
	current := m.Settings()
	r := Validate(current.Map(), SettingsSchema)
	if r.Valid {
		return Validation{Settings: current, Valid: true}
	}
	return Validation{Settings: Correct(current.Map()), Errors: r.Errors}
}

// RepairSettings replaces invalid current settings with their corrected
// form and returns the violations that were found.
func (m *Manager) RepairSettings(ctx context.Context) []string {
	v := m.ValidateCurrentSettings()
	if v.Valid {
		return nil
	}
	m.metrics.OnValidationFailure("repair", len(v.Errors))
	capitan.Emit(ctx, SettingsCorrected,
		KeyStorageKey.Field(m.key),
		KeyViolations.Field(len(v.Errors)),
	)
	m.Dispatch(ctx, Load(v.Settings))
	return v.Errors
}

// Subscribe registers fn to run after every dispatch with the previous and
// current settings. The returned function unregisters it and is safe to
// call more than once.
func (m *Manager) Subscribe(fn func(prev, curr Settings)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// Settings returns the current settings.
func (m *Manager) Settings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// Theme returns the current theme.
func (m *Manager) Theme() Theme {
	return m.Settings().Theme
}

// Language returns the current language.
func (m *Manager) Language() Language {
	return m.Settings().Language
}

// Preferences returns the current preferences.
func (m *Manager) Preferences() Preferences {
	return m.Settings().Preferences
}

// LastSaved returns when settings were last persisted, or the zero time.
func (m *Manager) LastSaved() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSaved
}

// SettingsKey returns the storage key of the settings record.
func (m *Manager) SettingsKey() string {
	return m.key
}

// StorageUsage reports the underlying store's usage.
func (m *Manager) StorageUsage(ctx context.Context) Usage {
	return m.store.Usage(ctx)
}

// StorageAvailable reports whether settings reach persistent storage.
func (m *Manager) StorageAvailable() bool {
	return m.store.IsAvailable()
}

// StorageError returns why storage is unavailable, or nil.
func (m *Manager) StorageError() error {
	return m.store.Error()
}

// ClearStorageCache evicts old entries from the store and returns how
// many were removed.
func (m *Manager) ClearStorageCache(ctx context.Context) int {
	return m.store.ClearOldEntries(ctx, m.store.prefix)
}

// Store returns the underlying store.
func (m *Manager) Store() *Store {
	return m.store
}
