package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hupe1980/vecstore"
	"github.com/hupe1980/vecstore/util"
)

func main() {
	seed := int64(4711)
	dim := 32
	size := 50000
	k := 10

	ctx := context.Background()

	dir, err := os.MkdirTemp("", "vecstore-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	rng := util.NewRNG(seed)
	vectors := rng.UniformVectors(size, dim)
	query := rng.UniformVector(dim)

	fmt.Println("--- Insert ---")
	fmt.Println("Dimension:", dim)
	fmt.Println("Size:", size)

	hnswStore, err := vecstore.Open(ctx, vecstore.Config{
		Dimension: dim,
		Path:      dir + "/hnsw",
		Kind:      vecstore.IndexHNSW,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer hnswStore.Close()

	items := make([]vecstore.BatchItem, 0, size)
	for _, v := range vectors {
		items = append(items, vecstore.BatchItem{Vector: v})
	}

	start := time.Now()

	if _, err := hnswStore.AddBatch(ctx, items); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Seconds: %.2f\n\n", time.Since(start).Seconds())

	fmt.Println("--- HNSW ---")

	start = time.Now()

	approx, err := hnswStore.Search(ctx, query, k, func(o *vecstore.SearchOptions) {
		o.EF = 80
	})
	if err != nil {
		log.Fatal(err)
	}

	printResult(approx)
	fmt.Printf("Seconds: %.8f\n\n", time.Since(start).Seconds())

	flatStore, err := vecstore.Open(ctx, vecstore.Config{
		Dimension: dim,
		Path:      dir + "/flat",
		Kind:      vecstore.IndexFlat,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer flatStore.Close()

	if _, err := flatStore.AddBatch(ctx, items); err != nil {
		log.Fatal(err)
	}

	fmt.Println("--- Exact ---")

	start = time.Now()

	exact, err := flatStore.Search(ctx, query, k)
	if err != nil {
		log.Fatal(err)
	}

	printResult(exact)
	fmt.Printf("Seconds: %.8f\n\n", time.Since(start).Seconds())

	fmt.Printf("Recall@%d: %.2f\n", k, recall(approx, exact))
}

func printResult(result []vecstore.Result) {
	for _, r := range result {
		fmt.Printf("ID: %d, Similarity: %.4f\n", r.ID, r.Similarity)
	}
}

func recall(approx, exact []vecstore.Result) float64 {
	truth := make(map[uint64]bool, len(exact))
	for _, r := range exact {
		truth[r.ID] = true
	}

	hits := 0
	for _, r := range approx {
		if truth[r.ID] {
			hits++
		}
	}

	return float64(hits) / float64(len(exact))
}
