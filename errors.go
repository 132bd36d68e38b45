package prefs

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors. Backends wrap these so callers can test with errors.Is.
var (
	// ErrStorageUnavailable marks a backend that failed the startup probe.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrQuotaExceeded marks a write rejected because the backend is full.
	// It is the only write failure that triggers eviction and a retry.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrCorruptedRecord marks a stored value that could not be decoded.
	ErrCorruptedRecord = errors.New("corrupted record")

	// ErrInvalidKey marks an empty storage key.
	ErrInvalidKey = errors.New("invalid storage key")

	// ErrBackendPanic marks a backend call that panicked.
	ErrBackendPanic = errors.New("backend panicked")
)

var errNotPointer = errors.New("destination must be a non-nil pointer")

func wrapCorrupted(err error) error {
	return fmt.Errorf("%w: %w", ErrCorruptedRecord, err)
}

// Validator is implemented by values that can check their own invariants.
type Validator interface {
	Validate() error
}

// ValidationError carries the schema violations of an invalid value.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Violations, "; ")
}

// Failure records one fault-contained storage failure.
type Failure struct {
	Op  string
	Key string
	Err error
	At  time.Time
}

func (f Failure) Error() string {
	if f.Key == "" {
		return fmt.Sprintf("%s: %v", f.Op, f.Err)
	}
	return fmt.Sprintf("%s %q: %v", f.Op, f.Key, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// IsQuotaExceeded reports whether err is a quota failure.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// guard runs fn and converts a panic into an ErrBackendPanic error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrBackendPanic, r)
		}
	}()
	return fn()
}
