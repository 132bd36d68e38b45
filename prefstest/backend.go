// Package prefstest provides test doubles for the prefs package: backends
// that fail on demand, recording sinks and metrics, and preference signals
// driven by hand.
package prefstest

import (
	"context"
	"sync"

	"github.com/secureguard/prefs"
)

// Op names a Backend method for fault injection.
type Op string

// Backend operations.
const (
	OpGet    Op = "get"
	OpSet    Op = "set"
	OpRemove Op = "remove"
	OpKeys   Op = "keys"
	OpClear  Op = "clear"
)

// FaultyBackend wraps a Backend and fails or panics on chosen operations.
// The zero value is not usable; create one with NewFaultyBackend.
type FaultyBackend struct {
	inner prefs.Backend

	mu     sync.Mutex
	errs   map[Op]error
	panics map[Op]any
	times  map[Op]int
	calls  map[Op]int
}

// NewFaultyBackend wraps inner, or a fresh MemoryBackend when inner is nil.
func NewFaultyBackend(inner prefs.Backend) *FaultyBackend {
	if inner == nil {
		inner = prefs.NewMemoryBackend()
	}
	return &FaultyBackend{
		inner:  inner,
		errs:   make(map[Op]error),
		panics: make(map[Op]any),
		times:  make(map[Op]int),
		calls:  make(map[Op]int),
	}
}

// Fail makes op return err until Heal. A nil err heals op.
func (b *FaultyBackend) Fail(op Op, err error) *FaultyBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.errs, op)
	} else {
		b.errs[op] = err
	}
	delete(b.times, op)
	return b
}

// FailTimes makes op return err for the next n calls only.
func (b *FaultyBackend) FailTimes(op Op, err error, n int) *FaultyBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs[op] = err
	b.times[op] = n
	return b
}

// Panic makes op panic with v until Heal.
func (b *FaultyBackend) Panic(op Op, v any) *FaultyBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.panics[op] = v
	return b
}

// Heal clears every injected fault.
func (b *FaultyBackend) Heal() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.errs)
	clear(b.panics)
	clear(b.times)
}

// Calls returns how many times op was invoked.
func (b *FaultyBackend) Calls(op Op) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// Inner returns the wrapped backend.
func (b *FaultyBackend) Inner() prefs.Backend {
	return b.inner
}

func (b *FaultyBackend) enter(op Op) error {
	b.mu.Lock()
	b.calls[op]++
	if v, ok := b.panics[op]; ok {
		b.mu.Unlock()
		panic(v)
	}
	err := b.errs[op]
	if n, limited := b.times[op]; limited && err != nil {
		if n <= 1 {
			delete(b.errs, op)
			delete(b.times, op)
		} else {
			b.times[op] = n - 1
		}
	}
	b.mu.Unlock()
	return err
}

// GetItem implements prefs.Backend.
func (b *FaultyBackend) GetItem(ctx context.Context, key string) (string, bool, error) {
	if err := b.enter(OpGet); err != nil {
		return "", false, err
	}
	return b.inner.GetItem(ctx, key)
}

// SetItem implements prefs.Backend.
func (b *FaultyBackend) SetItem(ctx context.Context, key, value string) error {
	if err := b.enter(OpSet); err != nil {
		return err
	}
	return b.inner.SetItem(ctx, key, value)
}

// RemoveItem implements prefs.Backend.
func (b *FaultyBackend) RemoveItem(ctx context.Context, key string) error {
	if err := b.enter(OpRemove); err != nil {
		return err
	}
	return b.inner.RemoveItem(ctx, key)
}

// Keys implements prefs.Backend.
func (b *FaultyBackend) Keys(ctx context.Context) ([]string, error) {
	if err := b.enter(OpKeys); err != nil {
		return nil, err
	}
	return b.inner.Keys(ctx)
}

// Clear implements prefs.Backend.
func (b *FaultyBackend) Clear(ctx context.Context) error {
	if err := b.enter(OpClear); err != nil {
		return err
	}
	return b.inner.Clear(ctx)
}

var _ prefs.Backend = (*FaultyBackend)(nil)
