package vecstore

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vecstore/index"
)

var (
	// ErrNotFound is returned when the requested ID is not in the store.
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned when an operation is attempted on a closed store.
	ErrClosed = errors.New("store is closed")

	// ErrInvalidK is returned when a search is requested with k < 1.
	ErrInvalidK = errors.New("k must be positive")

	// ErrInvalidVector is returned for vectors the index cannot hold,
	// such as empty or all-zero vectors under the cosine metric.
	ErrInvalidVector = errors.New("invalid vector")
)

// ErrInvalidConfig is returned by Open and Restore when the configuration
// is unusable, including mismatches against an existing store on disk.
type ErrInvalidConfig struct {
	Field  string
	Reason string
}

func (e *ErrInvalidConfig) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}

// ErrDimensionMismatch is returned when a vector's dimensionality does not
// match the store's configured dimension.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int

	cause error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error {
	return e.cause
}

// ErrCapacityExceeded is returned when an insert would exceed the store's
// lifetime insert capacity.
type ErrCapacityExceeded struct {
	Capacity int

	cause error
}

func (e *ErrCapacityExceeded) Error() string {
	return fmt.Sprintf("capacity exceeded: limit %d", e.Capacity)
}

func (e *ErrCapacityExceeded) Unwrap() error {
	return e.cause
}

// ErrPersist is returned when a mutation was applied in memory but could
// not be made durable. Op names the failed operation.
type ErrPersist struct {
	Op   string
	Path string

	cause error
}

func (e *ErrPersist) Error() string {
	return fmt.Sprintf("persist %s to %s: %v", e.Op, e.Path, e.cause)
}

func (e *ErrPersist) Unwrap() error {
	return e.cause
}

// ErrCorrupted is returned when a store or backup file fails checksum
// verification or cannot be decoded.
type ErrCorrupted struct {
	File string

	cause error
}

func (e *ErrCorrupted) Error() string {
	return fmt.Sprintf("corrupted file %s: %v", e.File, e.cause)
}

func (e *ErrCorrupted) Unwrap() error {
	return e.cause
}

// translateError maps index-level errors to the store's error types,
// preserving the original error as the cause.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var notFound *index.ErrNodeNotFound
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var dimMismatch *index.ErrDimensionMismatch
	if errors.As(err, &dimMismatch) {
		return &ErrDimensionMismatch{
			Expected: dimMismatch.Expected,
			Actual:   dimMismatch.Actual,
			cause:    err,
		}
	}

	var capExceeded *index.ErrCapacityExceeded
	if errors.As(err, &capExceeded) {
		return &ErrCapacityExceeded{
			Capacity: capExceeded.Capacity,
			cause:    err,
		}
	}

	if errors.Is(err, index.ErrEmptyVector) || errors.Is(err, index.ErrZeroVector) {
		return fmt.Errorf("%w: %w", ErrInvalidVector, err)
	}

	return err
}
