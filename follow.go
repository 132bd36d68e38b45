package prefs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// DefaultDebounce is the default debounce duration for external changes.
const DefaultDebounce = 100 * time.Millisecond

// Follower applies edits made to the stored settings record by another
// process. It watches the record, decodes and corrects each new version,
// and loads it into a Manager. Versions equal to the current settings are
// ignored, so the Manager's own saves do not loop back.
type Follower struct {
	watcher  Watcher
	manager  *Manager
	debounce time.Duration
	clock    clockz.Clock
	codec    Codec
	syncMode bool

	mu      sync.Mutex
	started bool

	// sync mode only
	changes <-chan []byte
}

// FollowOption configures a Follower.
type FollowOption func(*Follower)

// WithDebounce sets how long changes are coalesced before being applied.
func WithDebounce(d time.Duration) FollowOption {
	return func(f *Follower) {
		f.debounce = d
	}
}

// WithSyncMode processes changes only when Process is called, without
// debouncing or goroutines. Use it for deterministic tests.
func WithSyncMode() FollowOption {
	return func(f *Follower) {
		f.syncMode = true
	}
}

// WithFollowClock sets the clock used for debouncing.
func WithFollowClock(clock clockz.Clock) FollowOption {
	return func(f *Follower) {
		if clock != nil {
			f.clock = clock
		}
	}
}

// WithFollowCodec sets the codec used to decode records. Defaults to the
// manager's store codec.
func WithFollowCodec(c Codec) FollowOption {
	return func(f *Follower) {
		if c != nil {
			f.codec = c
		}
	}
}

// NewFollower creates a Follower that feeds w into m.
func NewFollower(w Watcher, m *Manager, opts ...FollowOption) *Follower {
	f := &Follower{
		watcher:  w,
		manager:  m,
		debounce: DefaultDebounce,
		clock:    clockz.RealClock,
		codec:    m.Store().Codec(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Start begins watching. The watcher's initial value is applied before
// Start returns; later values are applied in the background until ctx ends.
// Start can only be called once.
func (f *Follower) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return errors.New("follower already started")
	}
	f.started = true
	f.mu.Unlock()

	changes, err := f.watcher.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	var initialErr error
	select {
	case <-ctx.Done():
		return ctx.Err()
	case raw, ok := <-changes:
		if !ok {
			return errors.New("watcher closed before emitting initial value")
		}
		initialErr = f.process(ctx, raw)
	}

	if f.syncMode {
		f.changes = changes
		return initialErr
	}

	go f.watch(ctx, changes)
	return initialErr
}

// Process applies the next pending value. Only available in sync mode.
// It returns false if nothing is pending.
func (f *Follower) Process(ctx context.Context) bool {
	if !f.syncMode {
		return false
	}
	select {
	case raw, ok := <-f.changes:
		if !ok {
			return false
		}
		_ = f.process(ctx, raw) //nolint:errcheck // reported through signals
		return true
	default:
		return false
	}
}

// process decodes one version of the record and loads it.
func (f *Follower) process(ctx context.Context, raw []byte) error {
	key := f.manager.SettingsKey()
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	var obj any
	if err := f.codec.Unmarshal(raw, &obj); err != nil {
		capitan.Emit(ctx, StoreReadFailed,
			KeyStorageKey.Field(key),
			KeyError.Field(err.Error()),
		)
		return fmt.Errorf("decode failed: %w", wrapCorrupted(err))
	}

	var next Settings
	if r := Validate(obj, SettingsSchema); r.Valid {
		m, _ := asObject(obj)
		next = settingsFromObject(m)
	} else {
		capitan.Emit(ctx, SettingsCorrected,
			KeyStorageKey.Field(key),
			KeyViolations.Field(len(r.Errors)),
		)
		next = Correct(obj)
	}

	if next == f.manager.Settings() {
		return nil
	}
	f.manager.Dispatch(ctx, Load(next))
	capitan.Emit(ctx, SettingsLoaded,
		KeyStorageKey.Field(key),
		KeySource.Field("external"),
	)
	return nil
}

// watch applies changes with debouncing.
func (f *Follower) watch(ctx context.Context, changes <-chan []byte) {
	var (
		timer      clockz.Timer
		pending    []byte
		hasPending bool
	)

	for {
		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case raw, ok := <-changes:
			if !ok {
				if hasPending {
					_ = f.process(ctx, pending) //nolint:errcheck // reported through signals
				}
				return
			}
			pending = raw
			hasPending = true

			if timer == nil {
				timer = f.clock.NewTimer(f.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C():
					default:
					}
				}
				timer.Reset(f.debounce)
			}

		case <-timerC:
			if hasPending {
				_ = f.process(ctx, pending) //nolint:errcheck // reported through signals
				hasPending = false
			}
		}
	}
}
