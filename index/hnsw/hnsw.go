// Package hnsw implements the Hierarchical Navigable Small World (HNSW) graph for approximate nearest neighbor search.
package hnsw

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/hupe1980/vecstore/distance"
	"github.com/hupe1980/vecstore/index"
	"github.com/hupe1980/vecstore/queue"
)

const (
	// mmax0Multiplier is the multiplier for calculating maximum connections at layer 0.
	mmax0Multiplier = 2

	// minimumM is the minimum valid value for M.
	minimumM = 2

	// DefaultM is the default number of bidirectional links per node.
	DefaultM = 16

	// DefaultEFConstruction is the default size of the dynamic candidate
	// list during insertion.
	DefaultEFConstruction = 200

	// DefaultEFSearch is the default size of the dynamic candidate list
	// during search.
	DefaultEFSearch = 100

	// DefaultCapacity is the default maximum number of vectors.
	DefaultCapacity = 100_000
)

// Compile-time check
var _ index.Index = (*HNSW)(nil)

// Options represents the options for configuring HNSW.
type Options struct {
	// M specifies the number of established connections for every new element during construction.
	// Reasonable range for M is 2-100. Higher M works better on datasets with high intrinsic
	// dimensionality and/or high recall, while low M works better for datasets with low intrinsic
	// dimensionality and/or low recalls. The range M=12-48 works for most use cases.
	M int

	// EFConstruction specifies the size of the dynamic candidate list during insertion.
	// Larger values build a higher quality graph at the cost of longer construction.
	EFConstruction int

	// EFSearch specifies the default size of the dynamic candidate list during search.
	// Larger values improve recall at the cost of increased search time. Raised to k
	// when a search requests more results.
	EFSearch int

	// Heuristic selects the relative-neighborhood selection algorithm (true)
	// over plain nearest-M selection (false).
	Heuristic bool

	// Metric is the distance metric. MetricCosine additionally L2-normalizes
	// stored vectors and queries.
	Metric distance.Metric

	// Capacity bounds the total number of inserts over the index lifetime.
	// IDs are never reused, so deleting does not free capacity.
	Capacity int

	// RandomSeed pins layer assignment for reproducible graphs. Mainly for tests.
	RandomSeed *int64
}

var DefaultOptions = Options{
	M:              DefaultM,
	EFConstruction: DefaultEFConstruction,
	EFSearch:       DefaultEFSearch,
	Heuristic:      true,
	Metric:         distance.MetricCosine,
	Capacity:       DefaultCapacity,
}

// node is a single element of the graph. The slot position in HNSW.nodes
// is the node ID.
type node struct {
	vector []float32
	conns  [][]uint64 // conns[level] holds neighbor IDs, level <= layer
	layer  int
}

// HNSW represents the Hierarchical Navigable Small World graph.
//
// Deletes are logical: the node keeps its place in the graph and stays
// traversable, but is never returned from a search. This keeps deletion
// O(1) and preserves graph connectivity.
//
// HNSW is not safe for concurrent use; callers serialize access.
type HNSW struct {
	dimension int
	mmax      int     // Max number of connections per element/per layer
	mmax0     int     // Max for the 0 layer
	ml        float64 // Normalization factor for level generation
	ep        uint64  // Entry point, always a node on the top layer
	maxLayer  int     // Current max layer in use

	nodes      []*node // Slot index = node ID
	tombstones *bitset.BitSet
	total      int // Inserted slots (live + tombstoned)
	live       int

	distFunc  distance.Func
	normalize bool
	rng       *rand.Rand

	opts Options
}

// New creates a new HNSW instance with the given dimension and options.
func New(dimension int, optFns ...func(o *Options)) (*HNSW, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if dimension <= 0 {
		return nil, fmt.Errorf("hnsw: dimension must be positive, got %d", dimension)
	}

	if opts.M < minimumM {
		// M == 1 would make the layer multiplier divide by log(1) = 0
		opts.M = minimumM
	}
	if opts.EFConstruction <= 0 {
		opts.EFConstruction = DefaultEFConstruction
	}
	if opts.EFSearch <= 0 {
		opts.EFSearch = DefaultEFSearch
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}

	distFunc, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, fmt.Errorf("hnsw: %w", err)
	}

	var rng *rand.Rand
	if opts.RandomSeed != nil {
		rng = rand.New(rand.NewSource(*opts.RandomSeed))
	} else {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &HNSW{
		dimension:  dimension,
		mmax:       opts.M,
		mmax0:      mmax0Multiplier * opts.M,
		ml:         1 / math.Log(float64(opts.M)),
		tombstones: bitset.New(1024),
		distFunc:   distFunc,
		normalize:  distance.NeedsNormalization(opts.Metric),
		rng:        rng,
		opts:       opts,
	}, nil
}

// Kind identifies the implementation.
func (h *HNSW) Kind() index.Kind { return index.KindHNSW }

// Dimension returns the vector dimensionality.
func (h *HNSW) Dimension() int { return h.dimension }

// Len returns the number of live vectors.
func (h *HNSW) Len() int { return h.live }

// Capacity returns the maximum number of inserts over the index lifetime.
func (h *HNSW) Capacity() int { return h.opts.Capacity }

// Contains reports whether the ID is live.
func (h *HNSW) Contains(id uint64) bool {
	return h.exists(id) && !h.tombstones.Test(uint(id))
}

// VectorByID returns the stored vector for a live ID. With MetricCosine
// the stored vector is the L2-normalized form of the inserted one.
func (h *HNSW) VectorByID(id uint64) ([]float32, error) {
	if !h.Contains(id) {
		return nil, &index.ErrNodeNotFound{ID: id}
	}
	return h.nodes[id].vector, nil
}

func (h *HNSW) exists(id uint64) bool {
	return id < uint64(len(h.nodes)) && h.nodes[id] != nil
}

// Insert adds a vector under the given ID. The ID must not be in use.
func (h *HNSW) Insert(id uint64, v []float32) error {
	vec, err := h.prepareVector(v)
	if err != nil {
		return err
	}
	if id >= uint64(h.opts.Capacity) {
		return &index.ErrCapacityExceeded{Capacity: h.opts.Capacity}
	}
	if h.exists(id) {
		return &index.ErrNodeExists{ID: id}
	}

	h.insert(id, vec, h.randomLayer(), false)
	return nil
}

// Update replaces the vector stored under an existing live ID.
//
// The node is tombstoned, then re-inserted at the same ID and layer with
// fresh connections computed from the new vector. Stale inbound links from
// former neighbors remain valid graph edges.
func (h *HNSW) Update(id uint64, v []float32) error {
	vec, err := h.prepareVector(v)
	if err != nil {
		return err
	}
	if !h.Contains(id) {
		return &index.ErrNodeNotFound{ID: id}
	}

	layer := h.nodes[id].layer

	// Tombstone first so the old version cannot be selected as its own
	// nearest neighbor during relinking.
	h.tombstones.Set(uint(id))
	h.live--

	h.insert(id, vec, layer, true)
	return nil
}

// Delete tombstones the ID. Deleting an already deleted ID is a no-op;
// deleting an ID that never existed returns ErrNodeNotFound.
func (h *HNSW) Delete(id uint64) error {
	if !h.exists(id) {
		return &index.ErrNodeNotFound{ID: id}
	}
	if h.tombstones.Test(uint(id)) {
		return nil
	}

	// The node is not unlinked and its ID is not released. This preserves
	// graph connectivity and keeps deletion O(1); search skips it.
	h.tombstones.Set(uint(id))
	h.live--
	return nil
}

// prepareVector validates and copies v, normalizing when the metric
// requires it.
func (h *HNSW) prepareVector(v []float32) ([]float32, error) {
	if len(v) == 0 {
		return nil, index.ErrEmptyVector
	}
	if len(v) != h.dimension {
		return nil, &index.ErrDimensionMismatch{Expected: h.dimension, Actual: len(v)}
	}

	vec := make([]float32, len(v))
	copy(vec, v)
	if h.normalize && !distance.NormalizeL2InPlace(vec) {
		return nil, index.ErrZeroVector
	}
	return vec, nil
}

// randomLayer draws a layer from the exponential distribution controlled
// by the normalization factor ml.
func (h *HNSW) randomLayer() int {
	r := h.rng.Float64()
	if r == 0 {
		r = math.SmallestNonzeroFloat64
	}
	return int(math.Floor(-math.Log(r) * h.ml))
}

// insert performs the graph insertion. relink is set when re-inserting an
// existing (tombstoned) ID during an update.
func (h *HNSW) insert(id uint64, vec []float32, layer int, relink bool) {
	if id >= uint64(len(h.nodes)) {
		grown := make([]*node, id+1)
		copy(grown, h.nodes)
		h.nodes = grown
	}

	n := &node{
		vector: vec,
		layer:  layer,
		conns:  make([][]uint64, layer+1),
	}

	// First node: becomes the entry point, nothing to link.
	if h.total == 0 {
		h.nodes[id] = n
		h.ep = id
		h.maxLayer = layer
		h.total++
		h.live++
		return
	}

	// Greedy descent through the layers above the node's own layer.
	curr := h.ep
	currDist := h.distFunc(vec, h.nodes[curr].vector)
	for level := h.maxLayer; level > layer; level-- {
		curr, currDist = h.greedyStep(vec, curr, currDist, level)
	}

	// Search and select neighbors from the node's layer down to 0.
	// Tombstoned nodes stay eligible as neighbors here: linking into the
	// full graph keeps new nodes reachable even when most of the
	// neighborhood has been deleted.
	for level := min(layer, h.maxLayer); level >= 0; level-- {
		results := h.searchLayer(vec, curr, currDist, level, h.opts.EFConstruction, nil, true)

		if results.Len() > 0 {
			best := results.Items[0]
			for _, item := range results.Items[1:] {
				if item.Distance < best.Distance {
					best = item
				}
			}
			curr, currDist = best.Node, best.Distance
		}

		n.conns[level] = h.selectNeighbors(results, h.opts.M, id)
	}

	h.nodes[id] = n
	if relink {
		h.tombstones.Clear(uint(id))
		h.live++
	} else {
		h.total++
		h.live++
	}

	// Link the neighbors back, making the node visible.
	for level := min(layer, h.maxLayer); level >= 0; level-- {
		for _, neighborID := range n.conns[level] {
			h.link(neighborID, id, level)
		}
	}

	if layer > h.maxLayer {
		h.ep = id
		h.maxLayer = layer
	}
}

// greedyStep walks level edges until no neighbor improves the distance.
func (h *HNSW) greedyStep(q []float32, curr uint64, currDist float32, level int) (uint64, float32) {
	for changed := true; changed; {
		changed = false

		n := h.nodes[curr]
		if level >= len(n.conns) {
			break
		}
		for _, nextID := range n.conns[level] {
			nextDist := h.distFunc(q, h.nodes[nextID].vector)
			if nextDist < currDist {
				curr = nextID
				currDist = nextDist
				changed = true
			}
		}
	}
	return curr, currDist
}

// searchLayer searches a single layer with optional pre-filtering.
//
// filter and tombstones restrict what lands in the result heap, never
// what is traversed: filtered and deleted nodes still act as stepping
// stones, which keeps recall intact when matching nodes sit behind
// non-matching regions. The returned max-heap holds up to ef results.
func (h *HNSW) searchLayer(q []float32, epID uint64, epDist float32, level int, ef int, filter func(uint64) bool, includeDeleted bool) *queue.PriorityQueue {
	var visited bitset.BitSet
	visited.Set(uint(epID))

	candidates := queue.NewMin(ef) // Best candidates to explore next
	results := queue.NewMax(ef)    // Current top ef results, worst on top

	candidates.PushItem(epID, epDist)
	if h.returnable(epID, filter, includeDeleted) {
		results.PushItem(epID, epDist)
	}

	for candidates.Len() > 0 {
		curr, _ := candidates.PopItem()

		if results.Len() >= ef && curr.Distance > results.Top().Distance {
			break
		}

		n := h.nodes[curr.Node]
		if level >= len(n.conns) {
			continue
		}
		for _, nextID := range n.conns[level] {
			if visited.Test(uint(nextID)) {
				continue
			}
			visited.Set(uint(nextID))

			nextDist := h.distFunc(q, h.nodes[nextID].vector)

			// Classic HNSW pruning: skip obviously-bad candidates once ef
			// results are in hand. Disabled while filtering, where traversal
			// must stay permissive to escape filtered-out regions.
			if filter == nil && results.Len() >= ef && nextDist > results.Top().Distance {
				continue
			}

			candidates.PushItem(nextID, nextDist)
			if h.returnable(nextID, filter, includeDeleted) {
				results.PushItem(nextID, nextDist)
				if results.Len() > ef {
					_, _ = results.PopItem()
				}
			}
		}
	}

	return results
}

// returnable reports whether a node may appear in search results.
func (h *HNSW) returnable(id uint64, filter func(uint64) bool, includeDeleted bool) bool {
	if !includeDeleted && h.tombstones.Test(uint(id)) {
		return false
	}
	return filter == nil || filter(id)
}

// selectNeighbors picks up to m neighbor IDs from a result max-heap,
// draining it. self is excluded so relinking never creates a self-loop.
func (h *HNSW) selectNeighbors(candidates *queue.PriorityQueue, m int, self uint64) []uint64 {
	// Drain worst-first, store nearest-first.
	items := make([]*queue.PriorityQueueItem, candidates.Len())
	for i := len(items) - 1; i >= 0; i-- {
		items[i], _ = candidates.PopItem()
	}

	if !h.opts.Heuristic {
		selected := make([]uint64, 0, min(m, len(items)))
		for _, item := range items {
			if item.Node == self {
				continue
			}
			selected = append(selected, item.Node)
			if len(selected) == m {
				break
			}
		}
		return selected
	}

	// Relative neighborhood heuristic: keep a candidate only if it is
	// closer to the query node than to every neighbor selected so far.
	// This spreads connections across clusters instead of bundling them.
	selected := make([]uint64, 0, m)
	discarded := make([]*queue.PriorityQueueItem, 0)

	for _, item := range items {
		if len(selected) >= m {
			break
		}
		if item.Node == self {
			continue
		}

		good := true
		for _, selectedID := range selected {
			if h.distFunc(h.nodes[item.Node].vector, h.nodes[selectedID].vector) < item.Distance {
				good = false
				break
			}
		}

		if good {
			selected = append(selected, item.Node)
		} else {
			discarded = append(discarded, item)
		}
	}

	// Fill up from the discarded candidates if the heuristic was too strict.
	for _, item := range discarded {
		if len(selected) >= m {
			break
		}
		selected = append(selected, item.Node)
	}

	return selected
}

// link adds a backlink from nodeID to newID, pruning to the connection
// limit when the neighbor list overflows.
func (h *HNSW) link(nodeID, newID uint64, level int) {
	n := h.nodes[nodeID]
	if level >= len(n.conns) {
		return
	}

	for _, c := range n.conns[level] {
		if c == newID {
			return
		}
	}

	maxConns := h.mmax
	// HNSW allows double the connections for the bottom layer (0)
	if level == 0 {
		maxConns = h.mmax0
	}

	conns := append(n.conns[level], newID)
	if len(conns) <= maxConns {
		n.conns[level] = conns
		return
	}

	// Re-select the best maxConns neighbors.
	candidates := queue.NewMax(len(conns))
	for _, c := range conns {
		candidates.PushItem(c, h.distFunc(n.vector, h.nodes[c].vector))
	}
	n.conns[level] = h.selectNeighbors(candidates, maxConns, nodeID)
}

// KNNSearch returns up to k nearest neighbors ordered by ascending
// distance. opts may be nil.
func (h *HNSW) KNNSearch(q []float32, k int, opts *index.SearchOptions) ([]index.SearchResult, error) {
	if len(q) != h.dimension {
		return nil, &index.ErrDimensionMismatch{Expected: h.dimension, Actual: len(q)}
	}
	if k <= 0 || h.total == 0 {
		return nil, nil
	}

	query := q
	if h.normalize {
		normalized, ok := distance.NormalizeL2Copy(q)
		if !ok {
			return nil, index.ErrZeroVector
		}
		query = normalized
	}

	ef := h.opts.EFSearch
	var filter func(uint64) bool
	if opts != nil {
		if opts.EF > 0 {
			ef = opts.EF
		}
		filter = opts.Filter
	}
	if ef < k {
		ef = k
	}

	// Greedy descent to layer 1, then a full search of layer 0.
	curr := h.ep
	currDist := h.distFunc(query, h.nodes[curr].vector)
	for level := h.maxLayer; level > 0; level-- {
		curr, currDist = h.greedyStep(query, curr, currDist, level)
	}

	results := h.searchLayer(query, curr, currDist, 0, ef, filter, false)

	for results.Len() > k {
		_, _ = results.PopItem()
	}

	res := make([]index.SearchResult, results.Len())
	for i := results.Len() - 1; i >= 0; i-- {
		item, _ := results.PopItem()
		res[i] = index.SearchResult{ID: item.Node, Distance: item.Distance}
	}
	return res, nil
}

// BruteSearch performs an exhaustive scan over live nodes. Used as a
// recall baseline in tests and benchmarks.
func (h *HNSW) BruteSearch(q []float32, k int, filter func(id uint64) bool) ([]index.SearchResult, error) {
	if len(q) != h.dimension {
		return nil, &index.ErrDimensionMismatch{Expected: h.dimension, Actual: len(q)}
	}
	if k <= 0 {
		return nil, nil
	}

	query := q
	if h.normalize {
		normalized, ok := distance.NormalizeL2Copy(q)
		if !ok {
			return nil, index.ErrZeroVector
		}
		query = normalized
	}

	top := queue.NewMax(k)
	for id, n := range h.nodes {
		if n == nil || h.tombstones.Test(uint(id)) {
			continue
		}
		if filter != nil && !filter(uint64(id)) {
			continue
		}

		d := h.distFunc(query, n.vector)
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
