package hnsw

import (
	"bytes"
	"testing"

	"github.com/hupe1980/vecstore/persistence"
	"github.com/hupe1980/vecstore/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildGraph(t *testing.T) *HNSW {
	t.Helper()

	rng := util.NewRNG(4711)
	vecs := rng.UniformVectors(200, 8)

	h := newTestIndex(t, 8, func(o *Options) {
		o.M = 8
		o.EFConstruction = 100
		o.Capacity = 1000
	})
	for i, v := range vecs {
		require.NoError(t, h.Insert(uint64(i), v))
	}
	for i := 0; i < 20; i++ {
		require.NoError(t, h.Delete(uint64(i*7)))
	}

	return h
}

func TestSaveLoadRoundTrip(t *testing.T) {
	h := buildGraph(t)

	var buf bytes.Buffer
	require.NoError(t, h.SaveTo(&buf))

	loaded, err := Load(&buf)
	require.NoError(t, err)

	assert.Equal(t, h.Len(), loaded.Len())
	assert.Equal(t, h.Dimension(), loaded.Dimension())
	assert.Equal(t, h.Capacity(), loaded.Capacity())
	assert.Equal(t, h.opts.M, loaded.opts.M)
	assert.Equal(t, h.opts.EFConstruction, loaded.opts.EFConstruction)
	assert.Equal(t, h.opts.EFSearch, loaded.opts.EFSearch)
	assert.Equal(t, h.opts.Heuristic, loaded.opts.Heuristic)
	assert.Equal(t, h.opts.Metric, loaded.opts.Metric)
	assert.Equal(t, h.maxLayer, loaded.maxLayer)
	assert.Equal(t, h.ep, loaded.ep)

	// Tombstones survive the round trip
	assert.False(t, loaded.Contains(0))
	assert.False(t, loaded.Contains(7))
	assert.True(t, loaded.Contains(1))

	// The restored graph answers searches identically
	rng := util.NewRNG(1234)
	for i := 0; i < 10; i++ {
		q := rng.UniformVector(8)

		want, err := h.KNNSearch(q, 5, nil)
		require.NoError(t, err)
		got, err := loaded.KNNSearch(q, 5, nil)
		require.NoError(t, err)

		assert.Equal(t, want, got)
	}

	// Vectors are stored bit-exact
	wantVec, err := h.VectorByID(42)
	require.NoError(t, err)
	gotVec, err := loaded.VectorByID(42)
	require.NoError(t, err)
	assert.Equal(t, wantVec, gotVec)
}

func TestSaveLoadEmpty(t *testing.T) {
	h := newTestIndex(t, 4)

	var buf bytes.Buffer
	require.NoError(t, h.SaveTo(&buf))

	loaded, err := Load(&buf)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Len())
	assert.Equal(t, 4, loaded.Dimension())

	res, err := loaded.KNNSearch([]float32{1, 0, 0, 0}, 3, nil)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestLoadAndContinueInserting(t *testing.T) {
	h := buildGraph(t)

	var buf bytes.Buffer
	require.NoError(t, h.SaveTo(&buf))

	loaded, err := Load(&buf)
	require.NoError(t, err)

	rng := util.NewRNG(5)
	v := rng.UniformVector(8)
	require.NoError(t, loaded.Insert(500, v))

	res, err := loaded.KNNSearch(v, 1, nil)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, uint64(500), res[0].ID)
}

func TestLoadCorrupted(t *testing.T) {
	h := buildGraph(t)

	var buf bytes.Buffer
	require.NoError(t, h.SaveTo(&buf))

	t.Run("payload bit flip", func(t *testing.T) {
		data := bytes.Clone(buf.Bytes())
		data[persistence.FileHeaderSize+100] ^= 0xFF

		_, err := Load(bytes.NewReader(data))
		require.Error(t, err)
		assert.True(t, persistence.IsChecksumMismatch(err))
	})

	t.Run("truncated", func(t *testing.T) {
		data := buf.Bytes()[:buf.Len()-32]

		_, err := Load(bytes.NewReader(data))
		assert.Error(t, err)
	})

	t.Run("wrong kind", func(t *testing.T) {
		data := bytes.Clone(buf.Bytes())

		var hdr bytes.Buffer
		require.NoError(t, persistence.WriteHeader(&hdr, &persistence.FileHeader{
			Kind:      persistence.FileKindFlat,
			Count:     uint64(h.Len()),
			Dimension: uint32(h.Dimension()),
		}))
		copy(data, hdr.Bytes())

		_, err := Load(bytes.NewReader(data))
		assert.ErrorIs(t, err, persistence.ErrInvalidKind)
	})
}
