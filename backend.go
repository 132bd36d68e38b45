package prefs

import (
	"context"
	"fmt"
	"sync"
)

// Backend is the host key/value capability a Store persists into.
// Implementations return errors instead of panicking where they can;
// quota and size-limit failures must wrap ErrQuotaExceeded.
//
// Keys should be returned oldest first where the backend can tell. The
// eviction policy treats the head of the list as the oldest entries.
type Backend interface {
	// GetItem returns the value stored under key and whether it exists.
	GetItem(ctx context.Context, key string) (string, bool, error)

	// SetItem stores value under key.
	SetItem(ctx context.Context, key, value string) error

	// RemoveItem deletes key. Removing a missing key is not an error.
	RemoveItem(ctx context.Context, key string) error

	// Keys lists every key in the backend.
	Keys(ctx context.Context) ([]string, error)

	// Clear deletes every key in the backend.
	Clear(ctx context.Context) error
}

// MemoryBackend is an in-process Backend that keeps insertion order.
// An optional byte limit makes it reject writes with ErrQuotaExceeded,
// which is useful for exercising quota recovery.
type MemoryBackend struct {
	mu     sync.Mutex
	values map[string]string
	order  []string
	limit  int
}

// NewMemoryBackend creates an unbounded MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string]string)}
}

// NewLimitedMemoryBackend creates a MemoryBackend that holds at most limit
// bytes of keys and values.
func NewLimitedMemoryBackend(limit int) *MemoryBackend {
	b := NewMemoryBackend()
	b.limit = limit
	return b
}

// GetItem implements Backend.
func (b *MemoryBackend) GetItem(_ context.Context, key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.values[key]
	return v, ok, nil
}

// SetItem implements Backend.
func (b *MemoryBackend) SetItem(_ context.Context, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	old, exists := b.values[key]
	if b.limit > 0 {
		size := b.sizeLocked() + len(value)
		if exists {
			size -= len(old)
		} else {
			size += len(key)
		}
		if size > b.limit {
			return fmt.Errorf("memory backend: %d bytes over %d byte limit: %w", size, b.limit, ErrQuotaExceeded)
		}
	}
	if !exists {
		b.order = append(b.order, key)
	}
	b.values[key] = value
	return nil
}

// RemoveItem implements Backend.
func (b *MemoryBackend) RemoveItem(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.values[key]; !ok {
		return nil
	}
	delete(b.values, key)
	for i, k := range b.order {
		if k == key {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return nil
}

// Keys implements Backend in insertion order.
func (b *MemoryBackend) Keys(_ context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, len(b.order))
	copy(keys, b.order)
	return keys, nil
}

// Clear implements Backend.
func (b *MemoryBackend) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values = make(map[string]string)
	b.order = nil
	return nil
}

func (b *MemoryBackend) sizeLocked() int {
	n := 0
	for k, v := range b.values {
		n += len(k) + len(v)
	}
	return n
}

var _ Backend = (*MemoryBackend)(nil)
