// Package flat provides an exhaustive exact-search index. Every query
// scans all live vectors, so results are exact at O(n) cost per search.
// It suits small collections and serves as the ground truth for
// validating approximate indexes.
package flat

import (
	"slices"

	"github.com/bits-and-blooms/bitset"
	"github.com/hupe1980/vecstore/distance"
	"github.com/hupe1980/vecstore/index"
	"github.com/hupe1980/vecstore/queue"
)

// DefaultCapacity is the default maximum number of inserts.
const DefaultCapacity = 100_000

// Compile-time check to ensure Flat satisfies the index contract.
var _ index.Index = (*Flat)(nil)

// Options contains configuration options for the flat index.
type Options struct {
	// Metric is the distance metric for vector comparison.
	Metric distance.Metric

	// Capacity is the maximum number of inserts over the index lifetime.
	Capacity int
}

// DefaultOptions contains the default configuration options for the flat index.
var DefaultOptions = Options{
	Metric:   distance.MetricCosine,
	Capacity: DefaultCapacity,
}

// Flat is an exhaustive exact-search index. Vectors live in a slot slice
// addressed by ID; deleting frees the slot and records the ID in a bitset
// so repeat deletes stay idempotent. Not safe for concurrent use.
type Flat struct {
	dimension int
	vectors   [][]float32
	deleted   *bitset.BitSet
	live      int

	distFunc  distance.Func
	normalize bool

	opts Options
}

// New creates a new flat index for vectors of the given dimensionality.
func New(dimension int, optFns ...func(o *Options)) (*Flat, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if dimension <= 0 {
		return nil, &index.ErrDimensionMismatch{Expected: 1, Actual: dimension}
	}

	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}

	distFunc, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, err
	}

	return &Flat{
		dimension: dimension,
		deleted:   bitset.New(0),
		distFunc:  distFunc,
		normalize: distance.NeedsNormalization(opts.Metric),
		opts:      opts,
	}, nil
}

// Kind identifies the implementation.
func (f *Flat) Kind() index.Kind { return index.KindFlat }

// Dimension returns the vector dimensionality.
func (f *Flat) Dimension() int { return f.dimension }

// Len returns the number of live vectors.
func (f *Flat) Len() int { return f.live }

// Capacity returns the maximum number of inserts over the index lifetime.
func (f *Flat) Capacity() int { return f.opts.Capacity }

// Contains reports whether the ID is live.
func (f *Flat) Contains(id uint64) bool {
	return id < uint64(len(f.vectors)) && f.vectors[id] != nil
}

// VectorByID returns the stored vector for a live ID. With MetricCosine
// the stored vector is the L2-normalized form of the inserted one.
func (f *Flat) VectorByID(id uint64) ([]float32, error) {
	if !f.Contains(id) {
		return nil, &index.ErrNodeNotFound{ID: id}
	}
	return f.vectors[id], nil
}

// Insert adds a vector under the given ID. The ID must not be in use.
func (f *Flat) Insert(id uint64, v []float32) error {
	vec, err := f.prepareVector(v)
	if err != nil {
		return err
	}

	if id >= uint64(f.opts.Capacity) {
		return &index.ErrCapacityExceeded{Capacity: f.opts.Capacity}
	}

	if f.Contains(id) {
		return &index.ErrNodeExists{ID: id}
	}

	if id >= uint64(len(f.vectors)) {
		f.vectors = append(f.vectors, make([][]float32, id+1-uint64(len(f.vectors)))...)
	}

	f.vectors[id] = vec
	f.deleted.Clear(uint(id))
	f.live++

	return nil
}

// Update replaces the vector stored under an existing ID.
func (f *Flat) Update(id uint64, v []float32) error {
	vec, err := f.prepareVector(v)
	if err != nil {
		return err
	}

	if !f.Contains(id) {
		return &index.ErrNodeNotFound{ID: id}
	}

	f.vectors[id] = vec

	return nil
}

// Delete removes the vector and frees its slot. Deleting an already
// deleted ID is a no-op; deleting an ID that never existed returns
// ErrNodeNotFound.
func (f *Flat) Delete(id uint64) error {
	if !f.Contains(id) {
		if id < uint64(len(f.vectors)) && f.deleted.Test(uint(id)) {
			return nil
		}
		return &index.ErrNodeNotFound{ID: id}
	}

	f.vectors[id] = nil
	f.deleted.Set(uint(id))
	f.live--

	return nil
}

// KNNSearch returns the k exact nearest neighbors ordered by ascending
// distance. SearchOptions.EF is ignored; the scan is always exhaustive.
func (f *Flat) KNNSearch(q []float32, k int, opts *index.SearchOptions) ([]index.SearchResult, error) {
	if len(q) != f.dimension {
		return nil, &index.ErrDimensionMismatch{Expected: f.dimension, Actual: len(q)}
	}

	if k <= 0 || f.live == 0 {
		return nil, nil
	}

	var filter func(id uint64) bool
	if opts != nil {
		filter = opts.Filter
	}

	query := q
	if f.normalize {
		normalized, ok := distance.NormalizeL2Copy(q)
		if !ok {
			return nil, index.ErrZeroVector
		}
		query = normalized
	}

	top := queue.NewMax(k)
	for id, vec := range f.vectors {
		if vec == nil {
			continue
		}
		if filter != nil && !filter(uint64(id)) {
			continue
		}

		d := f.distFunc(query, vec)
		if top.Len() < k {
			top.PushItem(uint64(id), d)
		} else if d < top.Top().Distance {
			_, _ = top.PopItem()
			top.PushItem(uint64(id), d)
		}
	}

	res := make([]index.SearchResult, top.Len())
	for i := top.Len() - 1; i >= 0; i-- {
		item, _ := top.PopItem()
		res[i] = index.SearchResult{ID: item.Node, Distance: item.Distance}
	}
	return res, nil
}

func (f *Flat) prepareVector(v []float32) ([]float32, error) {
	if len(v) == 0 {
		return nil, index.ErrEmptyVector
	}
	if len(v) != f.dimension {
		return nil, &index.ErrDimensionMismatch{Expected: f.dimension, Actual: len(v)}
	}

	vec := slices.Clone(v)
	if f.normalize {
		if !distance.NormalizeL2InPlace(vec) {
			return nil, index.ErrZeroVector
		}
	}
	return vec, nil
}
