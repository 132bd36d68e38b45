package prefs

import (
	"context"
	"reflect"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// DefaultErrorHistorySize is the number of failures a Store remembers.
const DefaultErrorHistorySize = 16

// Store is a fault-tolerant key/value layer over a Backend. No operation
// returns an error or panics: failures are reported through signals,
// metrics and ErrorHistory, and the caller gets a boolean or a default.
//
// When the startup capability is unavailable every operation is served
// from an in-process map for the rest of the session.
type Store struct {
	backend    Backend
	capability Capability
	fallback   *MemoryBackend

	codec        Codec
	prefix       string
	retain       int
	evictForeign bool
	policy       EvictionPolicy
	clock        clockz.Clock
	metrics      MetricsProvider
	failures     *failureRing
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithCodec sets the codec used to encode stored values. JSON by default.
func WithCodec(c Codec) StoreOption {
	return func(s *Store) {
		if c != nil {
			s.codec = c
		}
	}
}

// WithPrefix sets the application prefix used when Set has to evict.
func WithPrefix(prefix string) StoreOption {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithRetain sets how many application keys survive eviction.
func WithRetain(n int) StoreOption {
	return func(s *Store) {
		s.retain = n
	}
}

// WithEvictForeign controls whether eviction may remove keys outside the
// application prefix. Enabled by default.
func WithEvictForeign(enabled bool) StoreOption {
	return func(s *Store) {
		s.evictForeign = enabled
	}
}

// WithEvictionPolicy replaces the prefix retention policy entirely.
func WithEvictionPolicy(p EvictionPolicy) StoreOption {
	return func(s *Store) {
		s.policy = p
	}
}

// WithErrorHistory sets how many failures ErrorHistory retains.
// Zero or less disables the history.
func WithErrorHistory(n int) StoreOption {
	return func(s *Store) {
		s.failures = newFailureRing(n)
	}
}

// WithStoreClock sets the clock used to timestamp failures and time writes.
func WithStoreClock(clock clockz.Clock) StoreOption {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithStoreMetrics sets the metrics provider for store events.
func WithStoreMetrics(m MetricsProvider) StoreOption {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewStore creates a Store over backend with a capability computed by Probe.
// A nil backend is always unavailable.
func NewStore(backend Backend, capability Capability, opts ...StoreOption) *Store {
	if backend == nil && capability.Available {
		capability = Capability{Err: ErrStorageUnavailable}
	}
	s := &Store{
		backend:      backend,
		capability:   capability,
		fallback:     NewMemoryBackend(),
		codec:        JSONCodec{},
		prefix:       DefaultAppPrefix,
		retain:       DefaultRetainKeys,
		evictForeign: true,
		clock:        clockz.RealClock,
		metrics:      NoOpMetricsProvider{},
		failures:     newFailureRing(DefaultErrorHistorySize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenStore probes backend and creates a Store over it.
func OpenStore(ctx context.Context, backend Backend, opts ...StoreOption) *Store {
	return NewStore(backend, Probe(ctx, backend), opts...)
}

// IsAvailable reports whether the backend passed the startup probe.
func (s *Store) IsAvailable() bool {
	return s.capability.Available
}

// Error returns why the backend is unavailable, or nil.
func (s *Store) Error() error {
	return s.capability.Err
}

// Codec returns the codec used for stored values.
func (s *Store) Codec() Codec {
	return s.codec
}

// target is the backend every operation goes to for this session.
func (s *Store) target() Backend {
	if s.capability.Available {
		return s.backend
	}
	return s.fallback
}

// Get decodes the value stored under key into dst, which must be a non-nil
// pointer. It returns false, leaving dst untouched, when the key is empty,
// absent, unreadable or not decodable into dst. A record that is not
// decodable at all is evicted.
func (s *Store) Get(ctx context.Context, key string, dst any) bool {
	if key == "" {
		s.record("get", key, ErrInvalidKey)
		return false
	}
	rv := reflect.ValueOf(dst)
	if !rv.IsValid() || rv.Kind() != reflect.Pointer || rv.IsNil() {
		s.record("get", key, errNotPointer)
		return false
	}

	var (
		raw   string
		found bool
	)
	err := guard(func() error {
		var err error
		raw, found, err = s.target().GetItem(ctx, key)
		return err
	})
	if err != nil {
		s.record("get", key, err)
		capitan.Emit(ctx, StoreReadFailed,
			KeyStorageKey.Field(key),
			KeyError.Field(err.Error()),
		)
		return false
	}
	if !found {
		return false
	}

	var probe any
	if err := s.codec.Unmarshal([]byte(raw), &probe); err != nil {
		s.evictCorrupted(ctx, key, err)
		return false
	}

	fresh := reflect.New(rv.Elem().Type())
	if err := s.codec.Unmarshal([]byte(raw), fresh.Interface()); err != nil {
		s.record("get", key, err)
		capitan.Emit(ctx, StoreReadFailed,
			KeyStorageKey.Field(key),
			KeyError.Field(err.Error()),
		)
		return false
	}
	rv.Elem().Set(fresh.Elem())
	return true
}

func (s *Store) evictCorrupted(ctx context.Context, key string, cause error) {
	s.record("get", key, wrapCorrupted(cause))
	_ = guard(func() error { //nolint:errcheck // best effort, the record is unreadable either way
		return s.target().RemoveItem(ctx, key)
	})
	s.metrics.OnCorruptedRecord()
	capitan.Emit(ctx, StoreCorruptedRecord,
		KeyStorageKey.Field(key),
		KeyError.Field(cause.Error()),
	)
}

// GetOr returns the value stored under key, or def when Get fails.
func GetOr[T any](ctx context.Context, s *Store, key string, def T) T {
	var v T
	if s.Get(ctx, key, &v) {
		return v
	}
	return def
}

// Set encodes value and stores it under key. A quota failure triggers one
// eviction pass over the store prefix and exactly one retry; any other
// failure returns false straight away.
func (s *Store) Set(ctx context.Context, key string, value any) bool {
	start := s.clock.Now()
	if key == "" {
		s.writeFailed(ctx, key, "invalid", ErrInvalidKey, start)
		return false
	}

	data, err := s.codec.Marshal(value)
	if err != nil {
		s.writeFailed(ctx, key, "encode", err, start)
		return false
	}

	err = s.write(ctx, key, string(data))
	if err != nil && IsQuotaExceeded(err) && s.capability.Available {
		capitan.Emit(ctx, StoreQuotaExceeded,
			KeyStorageKey.Field(key),
			KeySize.Field(len(data)),
		)
		s.ClearOldEntries(ctx, s.prefix)
		err = s.write(ctx, key, string(data))
	}
	if err != nil {
		reason := "backend"
		if IsQuotaExceeded(err) {
			reason = "quota"
		}
		s.writeFailed(ctx, key, reason, err, start)
		return false
	}

	s.metrics.OnWriteSuccess(s.clock.Since(start))
	return true
}

func (s *Store) write(ctx context.Context, key, value string) error {
	return guard(func() error {
		return s.target().SetItem(ctx, key, value)
	})
}

func (s *Store) writeFailed(ctx context.Context, key, reason string, err error, start time.Time) {
	s.record("set", key, err)
	s.metrics.OnWriteFailure(reason, s.clock.Since(start))
	capitan.Emit(ctx, StoreWriteFailed,
		KeyStorageKey.Field(key),
		KeyReason.Field(reason),
		KeyError.Field(err.Error()),
	)
}

// Remove deletes key. It reports whether the removal succeeded.
func (s *Store) Remove(ctx context.Context, key string) bool {
	if key == "" {
		s.record("remove", key, ErrInvalidKey)
		return false
	}
	err := guard(func() error {
		return s.target().RemoveItem(ctx, key)
	})
	if err != nil {
		s.record("remove", key, err)
		capitan.Emit(ctx, StoreRemoveFailed,
			KeyStorageKey.Field(key),
			KeyError.Field(err.Error()),
		)
		return false
	}
	return true
}

// Clear deletes every key. It reports whether the backend accepted it.
func (s *Store) Clear(ctx context.Context) bool {
	err := guard(func() error {
		return s.target().Clear(ctx)
	})
	if err != nil {
		s.record("clear", "", err)
		capitan.Emit(ctx, StoreRemoveFailed,
			KeyError.Field(err.Error()),
		)
		return false
	}
	return true
}

// Keys lists the stored keys, oldest first. It returns nil on failure.
func (s *Store) Keys(ctx context.Context) []string {
	keys, err := s.keys(ctx)
	if err != nil {
		s.record("keys", "", err)
		capitan.Emit(ctx, StoreReadFailed,
			KeyError.Field(err.Error()),
		)
		return nil
	}
	return keys
}

func (s *Store) keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := guard(func() error {
		var err error
		keys, err = s.target().Keys(ctx)
		return err
	})
	return keys, err
}

// ClearOldEntries evicts the keys selected by the eviction policy for
// prefix and returns how many were removed. It does nothing when the
// backend is unavailable.
func (s *Store) ClearOldEntries(ctx context.Context, prefix string) int {
	if !s.capability.Available {
		return 0
	}
	keys, err := s.keys(ctx)
	if err != nil {
		s.record("evict", "", err)
		capitan.Emit(ctx, StoreReadFailed,
			KeyError.Field(err.Error()),
		)
		return 0
	}

	policy := s.policy
	if policy == nil {
		policy = PrefixRetention{
			Prefix:       prefix,
			Retain:       s.retain,
			EvictForeign: s.evictForeign,
		}
	}

	removed := 0
	for _, key := range policy.Select(keys) {
		err := guard(func() error {
			return s.backend.RemoveItem(ctx, key)
		})
		if err != nil {
			s.record("evict", key, err)
			continue
		}
		removed++
	}

	s.metrics.OnEviction(removed)
	capitan.Emit(ctx, StoreEvicted,
		KeyCount.Field(removed),
	)
	return removed
}

// Usage summarizes what the store currently holds.
type Usage struct {
	Available     bool
	Error         string
	UsingFallback bool
	TotalKeys     int
	// EstimatedSize is the sum of key and value lengths in bytes.
	EstimatedSize int
}

// Usage reports the store's availability and footprint. Counts are zero
// when the backend cannot be listed.
func (s *Store) Usage(ctx context.Context) Usage {
	u := Usage{
		Available:     s.capability.Available,
		UsingFallback: !s.capability.Available,
	}
	if s.capability.Err != nil {
		u.Error = s.capability.Err.Error()
	}

	keys, err := s.keys(ctx)
	if err != nil {
		s.record("usage", "", err)
		return u
	}
	size := 0
	for _, key := range keys {
		var value string
		err := guard(func() error {
			var err error
			value, _, err = s.target().GetItem(ctx, key)
			return err
		})
		if err != nil {
			s.record("usage", key, err)
			return Usage{
				Available:     u.Available,
				Error:         u.Error,
				UsingFallback: u.UsingFallback,
			}
		}
		size += len(key) + len(value)
	}
	u.TotalKeys = len(keys)
	u.EstimatedSize = size
	return u
}

// ErrorHistory returns recent failures, oldest first.
func (s *Store) ErrorHistory() []Failure {
	return s.failures.snapshot()
}

// ClearErrorHistory forgets recorded failures.
func (s *Store) ClearErrorHistory() {
	s.failures.reset()
}

func (s *Store) record(op, key string, err error) {
	s.failures.push(Failure{
		Op:  op,
		Key: key,
		Err: err,
		At:  s.clock.Now(),
	})
}
