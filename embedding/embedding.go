// Package embedding provides the text embedding collaborator contract
// and implementations.
//
// An Embedder converts text into dense float32 vectors of a fixed
// dimension, matching the store's configured dimension.
//
//   - [OpenAI] calls the OpenAI embeddings API (or any compatible
//     provider via Options.BaseURL).
//   - [Cached] decorates another Embedder with an LRU cache keyed by
//     input text.
//   - [Static] derives vectors from a hash of the text, for tests and
//     offline use.
//
// # Quick Start
//
//	e := embedding.NewOpenAI(apiKey, func(o *embedding.Options) {
//	    o.Dimension = 256
//	})
//	vec, err := e.Embed(ctx, "hello world")
package embedding

import (
	"context"
	"errors"
)

// Embedder converts text into dense float32 vectors.
type Embedder interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embedding vectors for multiple texts.
	// Implementations may split large batches into smaller API calls
	// transparently.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the dimensionality of the output vectors.
	Dimension() int
}

// ErrEmptyInput is returned when the input text or batch is empty.
var ErrEmptyInput = errors.New("embedding: empty input")
