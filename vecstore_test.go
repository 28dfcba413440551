package vecstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecstore/metadata"
)

func newTestStore(t *testing.T, optFns ...Option) *Store {
	t.Helper()

	s, err := Open(context.Background(), Config{
		Dimension: 3,
		Path:      t.TempDir(),
	}, optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestOpenValidation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{
			name:  "zero dimension",
			cfg:   Config{Dimension: 0, Path: t.TempDir()},
			field: "Dimension",
		},
		{
			name:  "negative dimension",
			cfg:   Config{Dimension: -1, Path: t.TempDir()},
			field: "Dimension",
		},
		{
			name:  "empty path",
			cfg:   Config{Dimension: 3},
			field: "Path",
		},
		{
			name:  "unknown kind",
			cfg:   Config{Dimension: 3, Path: t.TempDir(), Kind: IndexKind(99)},
			field: "Kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(ctx, tt.cfg)
			var invalid *ErrInvalidConfig
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.field, invalid.Field)
		})
	}
}

func TestAddAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := metadata.Document{
		"type":  metadata.String("note"),
		"score": metadata.Float(0.5),
	}

	id, err := s.Add(ctx, []float32{1, 2, 3}, doc)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)

	item, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, item.ID)
	assert.Equal(t, doc, item.Metadata)
	assert.Nil(t, item.Vector)

	item, err = s.Get(ctx, id, func(o *GetOptions) { o.IncludeVector = true })
	require.NoError(t, err)
	require.Len(t, item.Vector, 3)
}

func TestAddNilMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Add(ctx, []float32{1, 0, 0}, nil)
	require.NoError(t, err)

	item, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, metadata.Document{}, item.Metadata)
}

func TestAddAssignsMonotonicIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id0, err := s.Add(ctx, []float32{1, 0, 0}, nil)
	require.NoError(t, err)
	id1, err := s.Add(ctx, []float32{0, 1, 0}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, id1))

	// Deletes never free IDs for reuse.
	id2, err := s.Add(ctx, []float32{0, 0, 1}, nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), id0)
	assert.Equal(t, uint64(1), id1)
	assert.Equal(t, uint64(2), id2)
}

func TestAddDimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, vec := range [][]float32{
		{1, 2},
		{1, 2, 3, 4},
	} {
		_, err := s.Add(ctx, vec, nil)
		var mismatch *ErrDimensionMismatch
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, 3, mismatch.Expected)
		assert.Equal(t, len(vec), mismatch.Actual)
	}

	_, err := s.Add(ctx, []float32{}, nil)
	require.ErrorIs(t, err, ErrInvalidVector)

	assert.Equal(t, 0, s.Count())
}

func TestAddZeroVector(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Add(context.Background(), []float32{0, 0, 0}, nil)
	require.ErrorIs(t, err, ErrInvalidVector)
	assert.Equal(t, 0, s.Count())
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), 42)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateVector(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Add(ctx, []float32{1, 0, 0}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, id, Update{Vector: []float32{0, 1, 0}}))

	results, err := s.Search(ctx, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].ID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-3)
}

func TestUpdateMetadataMerge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Add(ctx, []float32{1, 0, 0}, metadata.Document{
		"type":  metadata.String("note"),
		"score": metadata.Float(0.5),
	})
	require.NoError(t, err)

	// A patch only touches the keys it names.
	require.NoError(t, s.Update(ctx, id, Update{Metadata: metadata.Document{
		"score": metadata.Float(0.9),
		"tag":   metadata.String("fresh"),
	}}))

	item, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, metadata.Document{
		"type":  metadata.String("note"),
		"score": metadata.Float(0.9),
		"tag":   metadata.String("fresh"),
	}, item.Metadata)
}

func TestUpdateNoop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Add(ctx, []float32{1, 0, 0}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, id, Update{}))
}

func TestUpdateNotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.Update(context.Background(), 7, Update{Vector: []float32{1, 0, 0}})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateDimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Add(ctx, []float32{1, 0, 0}, nil)
	require.NoError(t, err)

	err = s.Update(ctx, id, Update{Vector: []float32{1, 0}})
	var mismatch *ErrDimensionMismatch
	require.ErrorAs(t, err, &mismatch)

	// The stored vector is untouched.
	results, err := s.Search(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-3)
}

func TestDeleteIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Deleting an ID that never existed is a no-op.
	require.NoError(t, s.Delete(ctx, 99))

	id, err := s.Add(ctx, []float32{1, 0, 0}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, id))
	require.NoError(t, s.Delete(ctx, id))

	_, err = s.Get(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)

	results, err := s.Search(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCapacity(t *testing.T) {
	s := newTestStore(t, WithCapacity(2))
	ctx := context.Background()

	id, err := s.Add(ctx, []float32{1, 0, 0}, nil)
	require.NoError(t, err)
	_, err = s.Add(ctx, []float32{0, 1, 0}, nil)
	require.NoError(t, err)

	_, err = s.Add(ctx, []float32{0, 0, 1}, nil)
	var exceeded *ErrCapacityExceeded
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 2, exceeded.Capacity)

	// Capacity counts lifetime inserts, so deleting does not make room.
	require.NoError(t, s.Delete(ctx, id))
	_, err = s.Add(ctx, []float32{0, 0, 1}, nil)
	require.ErrorAs(t, err, &exceeded)
}

func TestCountAndStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Add(ctx, []float32{1, 0, 0}, nil)
	require.NoError(t, err)
	_, err = s.Add(ctx, []float32{0, 1, 0}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, id))

	assert.Equal(t, 1, s.Count())
	assert.Equal(t, 3, s.Dimension())

	stats := s.Stats()
	assert.Equal(t, 1, stats.Count)
	assert.Equal(t, 1, stats.Deleted)
	assert.Equal(t, 3, stats.Dimension)
	assert.Equal(t, IndexHNSW, stats.Kind)
	assert.Equal(t, uint64(2), stats.NextID)
	assert.Equal(t, uint64(0), stats.PersistFailures)
	assert.False(t, stats.WALEnabled)
}

func TestFlatKind(t *testing.T) {
	s, err := Open(context.Background(), Config{
		Dimension: 3,
		Path:      t.TempDir(),
		Kind:      IndexFlat,
	})
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()

	id, err := s.Add(ctx, []float32{1, 2, 3}, nil)
	require.NoError(t, err)

	results, err := s.Search(ctx, []float32{1, 2, 3}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].ID)
	assert.Equal(t, IndexFlat, s.Stats().Kind)
}

func TestCloseIdempotent(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestClosedStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Close())

	_, err := s.Add(ctx, []float32{1, 0, 0}, nil)
	require.ErrorIs(t, err, ErrClosed)

	_, err = s.Get(ctx, 0)
	require.ErrorIs(t, err, ErrClosed)

	_, err = s.Search(ctx, []float32{1, 0, 0}, 1)
	require.ErrorIs(t, err, ErrClosed)

	require.ErrorIs(t, s.Update(ctx, 0, Update{}), ErrClosed)
	require.ErrorIs(t, s.Delete(ctx, 0), ErrClosed)
	require.ErrorIs(t, s.Checkpoint(ctx), ErrClosed)
}

func TestContextCanceled(t *testing.T) {
	s := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Add(ctx, []float32{1, 0, 0}, nil)
	require.ErrorIs(t, err, context.Canceled)

	_, err = s.Search(ctx, []float32{1, 0, 0}, 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestBasicMetricsCollector(t *testing.T) {
	mc := NewBasicMetricsCollector()
	s := newTestStore(t, WithMetricsCollector(mc))
	ctx := context.Background()

	id, err := s.Add(ctx, []float32{1, 0, 0}, nil)
	require.NoError(t, err)

	_, err = s.Search(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)

	_, err = s.Get(ctx, id)
	require.NoError(t, err)

	_, err = s.Get(ctx, 99)
	require.Error(t, err)

	stats := mc.GetStats()
	assert.Equal(t, int64(1), stats.AddCount)
	assert.Equal(t, int64(0), stats.AddErrors)
	assert.Equal(t, int64(1), stats.SearchCount)
	assert.Equal(t, int64(2), stats.GetCount)
	assert.Equal(t, int64(1), stats.GetErrors)
	assert.Equal(t, int64(1), stats.PersistCount)
}
