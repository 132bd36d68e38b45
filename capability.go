package prefs

import (
	"context"
	"errors"
	"fmt"

	"github.com/zoobzio/capitan"
)

// probeKey is the throwaway key written by Probe.
const probeKey = "__storage_test__"

// Capability describes whether persistent storage is usable and, if not, why.
type Capability struct {
	Available bool
	Err       error
}

// Probe checks a backend by writing, reading back, and deleting a throwaway
// key. Any failure marks the capability unavailable and records the cause.
// Probe never panics, even if the backend does.
func Probe(ctx context.Context, backend Backend) Capability {
	if backend == nil {
		err := fmt.Errorf("%w: no backend configured", ErrStorageUnavailable)
		capitan.Emit(ctx, StoreUnavailable, KeyError.Field(err.Error()))
		return Capability{Err: err}
	}

	err := guard(func() error {
		if err := backend.SetItem(ctx, probeKey, "test"); err != nil {
			return fmt.Errorf("probe write: %w", err)
		}
		got, ok, err := backend.GetItem(ctx, probeKey)
		if err != nil {
			return fmt.Errorf("probe read: %w", err)
		}
		if !ok || got != "test" {
			return errors.New("probe read: value did not round-trip")
		}
		if err := backend.RemoveItem(ctx, probeKey); err != nil {
			return fmt.Errorf("probe delete: %w", err)
		}
		return nil
	})
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
		capitan.Emit(ctx, StoreUnavailable, KeyError.Field(err.Error()))
		return Capability{Err: err}
	}
	return Capability{Available: true}
}
