package vecstore_test

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/hupe1980/vecstore"
	"github.com/hupe1980/vecstore/blobstore"
	"github.com/hupe1980/vecstore/metadata"
)

// Example_basic demonstrates opening a store, inserting vectors and
// running a similarity search.
func Example_basic() {
	dir, err := os.MkdirTemp("", "vecstore-example-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	ctx := context.Background()

	store, err := vecstore.Open(ctx, vecstore.Config{Dimension: 3, Path: dir})
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	vectors := [][]float32{
		{1, 0, 0},
		{0.8, 0.6, 0},
		{0, 1, 0},
	}
	for _, v := range vectors {
		if _, err := store.Add(ctx, v, nil); err != nil {
			log.Fatal(err)
		}
	}

	results, err := store.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		log.Fatal(err)
	}

	for _, r := range results {
		fmt.Printf("ID: %d, Similarity: %.4f\n", r.ID, r.Similarity)
	}
	// Output:
	// ID: 0, Similarity: 1.0000
	// ID: 1, Similarity: 0.8000
}

// Example_filter demonstrates restricting a search with metadata.
func Example_filter() {
	dir, err := os.MkdirTemp("", "vecstore-example-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	ctx := context.Background()

	store, err := vecstore.Open(ctx, vecstore.Config{Dimension: 3, Path: dir})
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	docs := []struct {
		vec  []float32
		lang string
	}{
		{[]float32{1, 0, 0}, "en"},
		{[]float32{0, 1, 0}, "de"},
		{[]float32{0, 0, 1}, "en"},
	}
	for _, d := range docs {
		_, err := store.Add(ctx, d.vec, metadata.Metadata{
			"lang": metadata.String(d.lang),
		})
		if err != nil {
			log.Fatal(err)
		}
	}

	results, err := store.Search(ctx, []float32{1, 0, 0}, 2, func(o *vecstore.SearchOptions) {
		o.Filters = metadata.Metadata{"lang": metadata.String("de")}
	})
	if err != nil {
		log.Fatal(err)
	}

	for _, r := range results {
		fmt.Printf("ID: %d, lang: %v\n", r.ID, r.Metadata["lang"].ToAny())
	}
	// Output:
	// ID: 1, lang: de
}

// Example_wal demonstrates write-ahead logging with an explicit
// checkpoint.
func Example_wal() {
	dir, err := os.MkdirTemp("", "vecstore-example-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	ctx := context.Background()

	store, err := vecstore.Open(ctx, vecstore.Config{Dimension: 3, Path: dir},
		vecstore.WithWAL(""),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	if _, err := store.Add(ctx, []float32{1, 0, 0}, nil); err != nil {
		log.Fatal(err)
	}
	if _, err := store.Add(ctx, []float32{0, 1, 0}, nil); err != nil {
		log.Fatal(err)
	}

	if err := store.Checkpoint(ctx); err != nil {
		log.Fatal(err)
	}

	stats := store.Stats()
	fmt.Printf("entries: %d\n", stats.Count)
	fmt.Printf("checkpoints: %d\n", stats.Checkpoints)
	// Output:
	// entries: 2
	// checkpoints: 1
}

// Example_backup demonstrates backing a store up to a blob store and
// inspecting the result.
func Example_backup() {
	storeDir, err := os.MkdirTemp("", "vecstore-example-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(storeDir)

	blobDir, err := os.MkdirTemp("", "vecstore-blobs-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(blobDir)

	ctx := context.Background()

	store, err := vecstore.Open(ctx, vecstore.Config{Dimension: 3, Path: storeDir})
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	if _, err := store.Add(ctx, []float32{1, 0, 0}, nil); err != nil {
		log.Fatal(err)
	}
	if _, err := store.Add(ctx, []float32{0, 1, 0}, nil); err != nil {
		log.Fatal(err)
	}

	bs := blobstore.NewLocalStore(blobDir)

	if _, err := store.Backup(ctx, bs, func(o *vecstore.BackupOptions) {
		o.Name = "example"
	}); err != nil {
		log.Fatal(err)
	}

	manifest, err := vecstore.ReadManifest(ctx, bs)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("backup %q holds %d entries of dimension %d\n",
		manifest.Name, manifest.Count, manifest.Dimension)
	// Output:
	// backup "example" holds 2 entries of dimension 3
}
