package vecstore

import (
	"context"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecstore/blobstore"
	"github.com/hupe1980/vecstore/metadata"
	"github.com/hupe1980/vecstore/persistence"
)

func TestBackupRestore(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()

	s := newTestStore(t)

	idA, err := s.Add(ctx, []float32{1, 0, 0}, metadata.Document{
		"type": metadata.String("job"),
	})
	require.NoError(t, err)
	idB, err := s.Add(ctx, []float32{0, 1, 0}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, idB))

	name, err := s.Backup(ctx, bs)
	require.NoError(t, err)
	require.NotEmpty(t, name)

	restored, err := Restore(ctx, bs, Config{Dimension: 3, Path: t.TempDir()})
	require.NoError(t, err)
	defer restored.Close()

	assert.Equal(t, 1, restored.Count())

	item, err := restored.Get(ctx, idA)
	require.NoError(t, err)
	assert.Equal(t, metadata.Document{"type": metadata.String("job")}, item.Metadata)

	_, err = restored.Get(ctx, idB)
	require.ErrorIs(t, err, ErrNotFound)

	// The ID counter comes along, so new IDs never collide with old ones.
	id, err := restored.Add(ctx, []float32{0, 0, 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, idB+1, id)

	results, err := restored.Search(ctx, []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, idA, results[0].ID)
}

func TestBackupCustomName(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()

	s := newTestStore(t)
	_, err := s.Add(ctx, []float32{1, 0, 0}, nil)
	require.NoError(t, err)

	name, err := s.Backup(ctx, bs, func(o *BackupOptions) { o.Name = "nightly" })
	require.NoError(t, err)
	assert.Equal(t, "nightly", name)

	blobs, err := bs.List(ctx, "nightly/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"nightly/MANIFEST.json",
		"nightly/" + persistence.IndexFileName,
		"nightly/" + persistence.MetadataFileName,
	}, blobs)

	cur, err := blobstore.ReadAll(ctx, bs, blobstore.CurrentBlobName)
	require.NoError(t, err)
	assert.Equal(t, "nightly/MANIFEST.json", string(cur))
}

func TestBackupOverwritesCurrent(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()

	s := newTestStore(t)
	_, err := s.Add(ctx, []float32{1, 0, 0}, nil)
	require.NoError(t, err)

	_, err = s.Backup(ctx, bs, func(o *BackupOptions) { o.Name = "first" })
	require.NoError(t, err)

	_, err = s.Add(ctx, []float32{0, 1, 0}, nil)
	require.NoError(t, err)

	_, err = s.Backup(ctx, bs, func(o *BackupOptions) { o.Name = "second" })
	require.NoError(t, err)

	// Restore follows CURRENT, which now names the second backup.
	restored, err := Restore(ctx, bs, Config{Dimension: 3, Path: t.TempDir()})
	require.NoError(t, err)
	defer restored.Close()

	assert.Equal(t, 2, restored.Count())
}

func TestRestoreRefusesExistingStore(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()

	s := newTestStore(t)
	_, err := s.Add(ctx, []float32{1, 0, 0}, nil)
	require.NoError(t, err)
	_, err = s.Backup(ctx, bs)
	require.NoError(t, err)

	dir := t.TempDir()
	existing := openAt(t, dir)
	_, err = existing.Add(ctx, []float32{0, 1, 0}, nil)
	require.NoError(t, err)
	require.NoError(t, existing.Close())

	_, err = Restore(ctx, bs, Config{Dimension: 3, Path: dir})
	var invalid *ErrInvalidConfig
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "Path", invalid.Field)
}

func TestRestoreNoBackup(t *testing.T) {
	_, err := Restore(context.Background(), blobstore.NewMemoryStore(), Config{
		Dimension: 3,
		Path:      t.TempDir(),
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRestoreDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()

	s := newTestStore(t)
	_, err := s.Add(ctx, []float32{1, 0, 0}, nil)
	require.NoError(t, err)
	_, err = s.Backup(ctx, bs)
	require.NoError(t, err)

	_, err = Restore(ctx, bs, Config{Dimension: 4, Path: t.TempDir()})
	var invalid *ErrInvalidConfig
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "Dimension", invalid.Field)
}

func TestRestoreKindMismatch(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()

	s := newTestStore(t)
	_, err := s.Add(ctx, []float32{1, 0, 0}, nil)
	require.NoError(t, err)
	_, err = s.Backup(ctx, bs)
	require.NoError(t, err)

	_, err = Restore(ctx, bs, Config{Dimension: 3, Path: t.TempDir(), Kind: IndexFlat})
	var invalid *ErrInvalidConfig
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "Kind", invalid.Field)
}

func TestRestoreCorruptedBlob(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()

	s := newTestStore(t)
	_, err := s.Add(ctx, []float32{1, 0, 0}, nil)
	require.NoError(t, err)

	name, err := s.Backup(ctx, bs)
	require.NoError(t, err)

	// Tamper with the uploaded index so the checksum no longer matches.
	blobName := path.Join(name, persistence.IndexFileName)
	data, err := blobstore.ReadAll(ctx, bs, blobName)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, bs.Put(ctx, blobName, data))

	_, err = Restore(ctx, bs, Config{Dimension: 3, Path: t.TempDir()})
	var corrupted *ErrCorrupted
	require.ErrorAs(t, err, &corrupted)
}
