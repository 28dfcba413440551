// Package index provides interfaces and types for vector search indexes.
package index

import (
	"errors"
	"fmt"
	"io"
)

// Kind identifies an index implementation.
type Kind int

const (
	// KindHNSW is the Hierarchical Navigable Small World graph index.
	KindHNSW Kind = iota
	// KindFlat is the exhaustive exact-search index.
	KindFlat
)

// String returns the kind name as used in config files and CLI flags.
func (k Kind) String() string {
	switch k {
	case KindHNSW:
		return "hnsw"
	case KindFlat:
		return "flat"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ParseKind parses an index kind name.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "hnsw", "HNSW", "":
		return KindHNSW, nil
	case "flat", "Flat":
		return KindFlat, nil
	default:
		return 0, fmt.Errorf("unknown index kind: %q", s)
	}
}

// ErrEmptyVector is returned when an empty vector is passed to an index.
var ErrEmptyVector = errors.New("empty vector")

// ErrZeroVector is returned when a vector with zero L2 norm is passed to
// an index whose metric requires normalization.
var ErrZeroVector = errors.New("cannot normalize zero vector")

// ErrDimensionMismatch is a named error type for dimension mismatch
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

// Error returns the error message for dimension mismatch
func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrNodeNotFound is returned when an operation references an ID that is
// absent from the index (never inserted, or deleted).
type ErrNodeNotFound struct {
	ID uint64
}

func (e *ErrNodeNotFound) Error() string {
	return fmt.Sprintf("node %d not found", e.ID)
}

// ErrNodeExists is returned when inserting an ID that is already live.
type ErrNodeExists struct {
	ID uint64
}

func (e *ErrNodeExists) Error() string {
	return fmt.Sprintf("node %d already exists", e.ID)
}

// ErrCapacityExceeded is returned when an insert would exceed the maximum
// element count the index was created with. IDs are never reused, so
// capacity bounds the total number of inserts over the index lifetime.
type ErrCapacityExceeded struct {
	Capacity int
}

func (e *ErrCapacityExceeded) Error() string {
	return fmt.Sprintf("capacity %d exceeded", e.Capacity)
}

// SearchResult represents a single K-nearest-neighbor match.
type SearchResult struct {
	// ID is the identifier of the matched vector.
	ID uint64

	// Distance is the distance between the query and the matched vector.
	// Smaller means closer.
	Distance float32
}

// SearchOptions tunes a single KNNSearch call.
type SearchOptions struct {
	// EF is the size of the dynamic candidate list for graph indexes.
	// Values below k are raised to k. Zero selects the index default.
	EF int

	// Filter restricts traversal results to IDs for which it returns true.
	// The filter is applied during traversal, not after, so a search can
	// still return k results when enough filtered candidates exist.
	Filter func(id uint64) bool
}

// Index is the contract shared by all vector index implementations.
//
// IDs are assigned by the caller and must be monotonically increasing;
// an ID is never reused after deletion. Implementations are not safe for
// concurrent use; callers serialize access.
type Index interface {
	// Insert adds a vector under the given ID.
	Insert(id uint64, v []float32) error

	// Update replaces the vector stored under an existing ID.
	Update(id uint64, v []float32) error

	// Delete removes the ID from search results. Deleting an already
	// deleted ID is a no-op; deleting an ID that never existed returns
	// ErrNodeNotFound.
	Delete(id uint64) error

	// Contains reports whether the ID is live (inserted and not deleted).
	Contains(id uint64) bool

	// VectorByID returns the stored vector for a live ID.
	VectorByID(id uint64) ([]float32, error)

	// KNNSearch returns up to k nearest neighbors ordered by ascending
	// distance. opts may be nil.
	KNNSearch(q []float32, k int, opts *SearchOptions) ([]SearchResult, error)

	// Kind identifies the implementation.
	Kind() Kind

	// Dimension returns the vector dimensionality.
	Dimension() int

	// Len returns the number of live vectors.
	Len() int

	// Capacity returns the maximum number of inserts over the index
	// lifetime.
	Capacity() int

	// SaveTo writes the full index state to w.
	SaveTo(w io.Writer) error
}
