package vecstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecstore"
	"github.com/hupe1980/vecstore/blobstore"
	"github.com/hupe1980/vecstore/metadata"
	"github.com/hupe1980/vecstore/util"
)

// TestMixedWorkloadSurvivesCrashAndRestore drives a full store life:
// batch seed, updates, deletes, a checkpoint with mutations after it,
// an unclean shutdown, WAL replay, and a backup restored into a fresh
// directory. The restored store must match the model at every step.
func TestMixedWorkloadSurvivesCrashAndRestore(t *testing.T) {
	const (
		dim    = 16
		corpus = 200
	)

	ctx := context.Background()
	dir := t.TempDir()

	rng := util.NewRNG(99)

	items := make([]vecstore.BatchItem, corpus)
	for i := range items {
		group := "odd"
		if i%2 == 0 {
			group = "even"
		}
		items[i] = vecstore.BatchItem{
			Vector: rng.UniformVector(dim),
			Metadata: metadata.Metadata{
				"n":     metadata.Int(int64(i)),
				"group": metadata.String(group),
			},
		}
	}

	store, err := vecstore.Open(ctx, vecstore.Config{Dimension: dim, Path: dir},
		vecstore.WithWAL(""),
	)
	require.NoError(t, err)

	ids, err := store.AddBatch(ctx, items)
	require.NoError(t, err)
	require.Len(t, ids, corpus)

	// Expected end state, maintained alongside the real mutations.
	type entry struct {
		doc  metadata.Metadata
		live bool
	}
	model := make(map[uint64]entry, corpus)
	for i, id := range ids {
		model[id] = entry{doc: items[i].Metadata.Clone(), live: true}
	}

	mutate := func(from, to int) {
		for i := from; i < to; i++ {
			id := ids[i]
			switch {
			case i%13 == 0:
				require.NoError(t, store.Delete(ctx, id))
				model[id] = entry{}
			case i%7 == 0:
				require.NoError(t, store.Update(ctx, id, vecstore.Update{
					Metadata: metadata.Metadata{"tag": metadata.String("updated")},
				}))
				e := model[id]
				e.doc["tag"] = metadata.String("updated")
				model[id] = e
			case i%11 == 0:
				require.NoError(t, store.Update(ctx, id, vecstore.Update{
					Vector: rng.UniformVector(dim),
				}))
			}
		}
	}

	// First half of the mutations lands in the checkpoint snapshot, the
	// second half only in the log.
	mutate(0, corpus/2)
	require.NoError(t, store.Checkpoint(ctx))
	mutate(corpus/2, corpus)

	verify := func(t *testing.T, s *vecstore.Store) {
		t.Helper()

		live := 0
		for _, e := range model {
			if e.live {
				live++
			}
		}
		assert.Equal(t, live, s.Count())

		for id, e := range model {
			item, err := s.Get(ctx, id)
			if !e.live {
				assert.ErrorIs(t, err, vecstore.ErrNotFound, "id %d", id)
				continue
			}
			require.NoError(t, err, "id %d", id)
			assert.Equal(t, e.doc, item.Metadata, "id %d", id)
		}

		results, err := s.Search(ctx, rng.UniformVector(dim), 20, func(o *vecstore.SearchOptions) {
			o.Filters = metadata.Metadata{"group": metadata.String("even")}
		})
		require.NoError(t, err)
		for _, r := range results {
			assert.Equal(t, metadata.String("even"), r.Metadata["group"])
		}
	}

	// Unclean shutdown: the first handle is abandoned without Close.
	// Every mutation was synced to the log before it returned, so a
	// second open on the same directory sees the full history.
	reopened, err := vecstore.Open(ctx, vecstore.Config{Dimension: dim, Path: dir},
		vecstore.WithWAL(""),
	)
	require.NoError(t, err)
	verify(t, reopened)

	stats := reopened.Stats()
	assert.Equal(t, uint64(corpus), stats.NextID)
	assert.True(t, stats.WALEnabled)

	// Backup the recovered store and restore it elsewhere.
	bs := blobstore.NewLocalStore(t.TempDir())

	name, err := reopened.Backup(ctx, bs)
	require.NoError(t, err)
	require.NotEmpty(t, name)
	require.NoError(t, reopened.Close())

	restored, err := vecstore.Restore(ctx, bs, vecstore.Config{
		Dimension: dim,
		Path:      t.TempDir(),
	})
	require.NoError(t, err)
	defer restored.Close()

	verify(t, restored)
	assert.Equal(t, uint64(corpus), restored.Stats().NextID)
}
