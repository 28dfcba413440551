package vecstore

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/vecstore/index"
	"github.com/hupe1980/vecstore/metadata"
)

// SearchOptions customizes a single search call.
type SearchOptions struct {
	// EF widens the candidate list for HNSW searches. Zero keeps the
	// index default; values below k are raised to k by the index.
	EF int

	// Filters keeps only results whose metadata contains every given
	// key with a deep-equal value.
	Filters metadata.Document

	// FilterSet keeps only results matching the typed operator filters.
	// Combined with Filters, both must match.
	FilterSet *metadata.FilterSet

	// IncludeVector copies the stored (normalized) vector into each
	// result.
	IncludeVector bool
}

// Result is a single search hit.
type Result struct {
	ID uint64

	// Similarity is 1 - distance. Under the cosine metric this is the
	// cosine of the angle between query and stored vector.
	Similarity float32

	Metadata metadata.Metadata

	// Vector is only set when IncludeVector was requested.
	Vector []float32
}

// Search returns up to k entries nearest to query, most similar first.
//
// The index produces k candidates before any filtering, so a filtered
// search can return fewer than k results even when more matching entries
// exist. Raise EF or k to widen the candidate pool.
func (s *Store) Search(ctx context.Context, query []float32, k int, optFns ...func(o *SearchOptions)) ([]Result, error) {
	start := time.Now()

	results, err := s.search(ctx, query, k, optFns)

	s.metrics.RecordSearch(k, time.Since(start), err)
	s.logger.LogSearch(ctx, k, len(results), err)

	return results, err
}

func (s *Store) search(ctx context.Context, query []float32, k int, optFns []func(o *SearchOptions)) ([]Result, error) {
	var opts SearchOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(query) != s.cfg.Dimension {
		return nil, &ErrDimensionMismatch{Expected: s.cfg.Dimension, Actual: len(query)}
	}

	candidates, err := s.idx.KNNSearch(query, k, &index.SearchOptions{EF: opts.EF})
	if err != nil {
		return nil, translateError(err)
	}

	keep := s.filterFunc(&opts)

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		doc, ok := s.table.Get(c.ID)
		if !ok {
			continue
		}
		if keep != nil && !keep(c.ID, doc) {
			continue
		}

		r := Result{ID: c.ID, Similarity: 1 - c.Distance, Metadata: doc}
		if opts.IncludeVector {
			if vec, err := s.idx.VectorByID(c.ID); err == nil {
				r.Vector = append([]float32(nil), vec...)
			}
		}

		results = append(results, r)
	}

	return results, nil
}

// filterFunc compiles the call's filters into one predicate, or nil for
// an unfiltered call. FilterSet predicates run against the table's
// inverted index where the operators allow it.
func (s *Store) filterFunc(opts *SearchOptions) func(id uint64, doc metadata.Document) bool {
	equality := opts.Filters

	var setFn func(uint64) bool
	if opts.FilterSet != nil {
		setFn = s.table.CreateFilterFunc(opts.FilterSet)
	}

	if len(equality) == 0 && setFn == nil {
		return nil
	}

	return func(id uint64, doc metadata.Document) bool {
		if len(equality) > 0 && !doc.MatchesEqual(equality) {
			return false
		}
		if setFn != nil && !setFn(id) {
			return false
		}
		return true
	}
}

// GetOptions customizes a Get call.
type GetOptions struct {
	// IncludeVector copies the stored (normalized) vector into the item.
	IncludeVector bool
}

// Item is a stored entry as returned by Get.
type Item struct {
	ID       uint64
	Metadata metadata.Metadata
	Vector   []float32
}

// Get returns the entry with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id uint64, optFns ...func(o *GetOptions)) (Item, error) {
	start := time.Now()

	item, err := s.get(ctx, id, optFns)

	s.metrics.RecordGet(time.Since(start), err)
	s.logger.LogGet(ctx, id, err)

	return item, err
}

func (s *Store) get(ctx context.Context, id uint64, optFns []func(o *GetOptions)) (Item, error) {
	var opts GetOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Item{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return Item{}, err
	}

	doc, ok := s.table.Get(id)
	if !ok {
		return Item{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}

	item := Item{ID: id, Metadata: doc}
	if opts.IncludeVector {
		vec, err := s.idx.VectorByID(id)
		if err != nil {
			return Item{}, translateError(err)
		}
		item.Vector = append([]float32(nil), vec...)
	}

	return item, nil
}
