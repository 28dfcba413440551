package flat

import (
	"testing"

	"github.com/hupe1980/vecstore/distance"
	"github.com/hupe1980/vecstore/index"
	"github.com/hupe1980/vecstore/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	f, err := New(8)
	require.NoError(t, err)

	assert.Equal(t, index.KindFlat, f.Kind())
	assert.Equal(t, 8, f.Dimension())
	assert.Equal(t, DefaultCapacity, f.Capacity())
	assert.Equal(t, 0, f.Len())

	_, err = New(0)
	assert.Error(t, err)
}

func TestInsertSearchExact(t *testing.T) {
	f, err := New(2, func(o *Options) { o.Metric = distance.MetricL2 })
	require.NoError(t, err)

	vecs := [][]float32{{0, 0}, {1, 0}, {5, 0}, {2, 2}}
	for i, v := range vecs {
		require.NoError(t, f.Insert(uint64(i), v))
	}
	require.Equal(t, 4, f.Len())

	res, err := f.KNNSearch([]float32{1, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, res, 3)

	assert.Equal(t, uint64(1), res[0].ID)
	assert.InDelta(t, 0, res[0].Distance, 1e-6)
	assert.Equal(t, uint64(0), res[1].ID)
	assert.InDelta(t, 1, res[1].Distance, 1e-6)
	assert.Equal(t, uint64(3), res[2].ID)
	assert.InDelta(t, 5, res[2].Distance, 1e-6)
}

func TestInsertErrors(t *testing.T) {
	f, err := New(4, func(o *Options) {
		o.Metric = distance.MetricL2
		o.Capacity = 2
	})
	require.NoError(t, err)

	t.Run("dimension mismatch", func(t *testing.T) {
		var dimErr *index.ErrDimensionMismatch
		assert.ErrorAs(t, f.Insert(0, []float32{1}), &dimErr)
	})

	t.Run("empty vector", func(t *testing.T) {
		assert.ErrorIs(t, f.Insert(0, nil), index.ErrEmptyVector)
	})

	t.Run("duplicate id", func(t *testing.T) {
		require.NoError(t, f.Insert(0, []float32{1, 0, 0, 0}))
		var existsErr *index.ErrNodeExists
		assert.ErrorAs(t, f.Insert(0, []float32{0, 1, 0, 0}), &existsErr)
	})

	t.Run("capacity", func(t *testing.T) {
		var capErr *index.ErrCapacityExceeded
		assert.ErrorAs(t, f.Insert(2, []float32{0, 1, 0, 0}), &capErr)
	})
}

func TestDeleteSemantics(t *testing.T) {
	f, err := New(2, func(o *Options) { o.Metric = distance.MetricL2 })
	require.NoError(t, err)

	require.NoError(t, f.Insert(0, []float32{1, 0}))
	require.NoError(t, f.Insert(1, []float32{2, 0}))

	require.NoError(t, f.Delete(0))
	assert.Equal(t, 1, f.Len())
	assert.False(t, f.Contains(0))

	// Repeat delete is a no-op, unknown ID fails
	require.NoError(t, f.Delete(0))
	var notFound *index.ErrNodeNotFound
	assert.ErrorAs(t, f.Delete(42), &notFound)

	// The slot is gone from reads and searches
	_, err = f.VectorByID(0)
	assert.ErrorAs(t, err, &notFound)

	res, err := f.KNNSearch([]float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, uint64(1), res[0].ID)

	// The ID stays burned: re-inserting it is rejected upstream by the
	// store, and updating it fails here
	assert.ErrorAs(t, f.Update(0, []float32{3, 0}), &notFound)
}

func TestUpdate(t *testing.T) {
	f, err := New(2, func(o *Options) { o.Metric = distance.MetricL2 })
	require.NoError(t, err)

	require.NoError(t, f.Insert(0, []float32{1, 0}))
	require.NoError(t, f.Update(0, []float32{9, 0}))

	vec, err := f.VectorByID(0)
	require.NoError(t, err)
	assert.Equal(t, []float32{9, 0}, vec)

	var notFound *index.ErrNodeNotFound
	assert.ErrorAs(t, f.Update(7, []float32{1, 1}), &notFound)
}

func TestSearchFilter(t *testing.T) {
	f, err := New(2, func(o *Options) { o.Metric = distance.MetricL2 })
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, f.Insert(uint64(i), []float32{float32(i), 0}))
	}

	res, err := f.KNNSearch([]float32{0, 0}, 3, &index.SearchOptions{
		Filter: func(id uint64) bool { return id >= 5 },
	})
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, uint64(5), res[0].ID)
	assert.Equal(t, uint64(6), res[1].ID)
	assert.Equal(t, uint64(7), res[2].ID)
}

func TestSearchEdgeCases(t *testing.T) {
	f, err := New(2, func(o *Options) { o.Metric = distance.MetricL2 })
	require.NoError(t, err)

	t.Run("empty index", func(t *testing.T) {
		res, err := f.KNNSearch([]float32{1, 0}, 3, nil)
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	require.NoError(t, f.Insert(0, []float32{1, 0}))

	t.Run("k zero", func(t *testing.T) {
		res, err := f.KNNSearch([]float32{1, 0}, 0, nil)
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("k larger than index", func(t *testing.T) {
		res, err := f.KNNSearch([]float32{1, 0}, 10, nil)
		require.NoError(t, err)
		assert.Len(t, res, 1)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		var dimErr *index.ErrDimensionMismatch
		_, err := f.KNNSearch([]float32{1, 0, 0}, 1, nil)
		assert.ErrorAs(t, err, &dimErr)
	})
}

func TestCosineNormalization(t *testing.T) {
	f, err := New(3)
	require.NoError(t, err)

	assert.ErrorIs(t, f.Insert(0, []float32{0, 0, 0}), index.ErrZeroVector)

	require.NoError(t, f.Insert(0, []float32{2, 0, 0}))
	vec, err := f.VectorByID(0)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, vec)

	_, err = f.KNNSearch([]float32{0, 0, 0}, 1, nil)
	assert.ErrorIs(t, err, index.ErrZeroVector)

	// Scaling a query never changes the ranking under cosine
	require.NoError(t, f.Insert(1, []float32{0, 1, 0}))
	res, err := f.KNNSearch([]float32{100, 1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, uint64(0), res[0].ID)
}

func TestSparseIDs(t *testing.T) {
	f, err := New(2, func(o *Options) { o.Metric = distance.MetricL2 })
	require.NoError(t, err)

	require.NoError(t, f.Insert(10, []float32{1, 0}))
	require.NoError(t, f.Insert(3, []float32{2, 0}))

	assert.Equal(t, 2, f.Len())
	assert.True(t, f.Contains(10))
	assert.False(t, f.Contains(5))

	res, err := f.KNNSearch([]float32{2, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, uint64(3), res[0].ID)
}

func TestMatchesBruteForceOrdering(t *testing.T) {
	rng := util.NewRNG(4711)
	vecs := rng.UniformVectors(100, 8)

	f, err := New(8, func(o *Options) { o.Metric = distance.MetricL2 })
	require.NoError(t, err)

	for i, v := range vecs {
		require.NoError(t, f.Insert(uint64(i), v))
	}

	q := rng.UniformVector(8)
	res, err := f.KNNSearch(q, 10, nil)
	require.NoError(t, err)
	require.Len(t, res, 10)

	// Results come back sorted by ascending distance
	for i := 1; i < len(res); i++ {
		assert.LessOrEqual(t, res[i-1].Distance, res[i].Distance)
	}

	// And the nearest really is the global minimum
	best := distance.SquaredL2(q, vecs[0])
	for _, v := range vecs[1:] {
		if d := distance.SquaredL2(q, v); d < best {
			best = d
		}
	}
	assert.Equal(t, best, res[0].Distance)
}

func TestStats(t *testing.T) {
	f, err := New(2, func(o *Options) { o.Metric = distance.MetricL2 })
	require.NoError(t, err)

	require.NoError(t, f.Insert(0, []float32{1, 0}))
	require.NoError(t, f.Insert(1, []float32{2, 0}))
	require.NoError(t, f.Delete(0))

	stats := f.Stats()
	assert.Equal(t, 1, stats.Live)
	assert.Equal(t, 1, stats.Deleted)
}
