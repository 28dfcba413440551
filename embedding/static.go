package embedding

import (
	"context"
	"hash/fnv"
	"math/rand/v2"

	"github.com/hupe1980/vecstore/distance"
)

// Static is a deterministic offline embedder. The vector for a text
// depends only on the text and the dimension, so results are stable
// across processes and runs. It carries no semantic meaning; equal
// texts map to equal vectors, nothing more.
type Static struct {
	dim int
}

var _ Embedder = (*Static)(nil)

// NewStatic creates a Static embedder producing unit-length vectors of
// the given dimension.
func NewStatic(dim int) *Static {
	return &Static{dim: dim}
}

// Embed derives a unit vector from a hash of the text.
func (s *Static) Embed(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	vec := make([]float32, s.dim)
	for i := range vec {
		vec[i] = float32(rng.NormFloat64())
	}

	// Gaussian components make the normalized vector uniform on the
	// sphere, so unrelated texts land far apart.
	distance.NormalizeL2InPlace(vec)

	return vec, nil
}

// EmbedBatch embeds each text independently.
func (s *Static) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = vec
	}

	return vecs, nil
}

// Dimension returns the configured vector dimensionality.
func (s *Static) Dimension() int {
	return s.dim
}
