// Package util provides small shared helpers.
package util

import "math/rand"

// RNG encapsulates a seeded random number generator for reproducible
// vector generation in tests and benchmarks.
type RNG struct {
	rand *rand.Rand
	seed int64
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)), // nolint gosec
		seed: seed,
	}
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Float32 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	return r.rand.Float32()
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	return r.rand.Intn(n)
}

// UniformVector generates one random vector with components in [0, 1).
func (r *RNG) UniformVector(dimension int) []float32 {
	v := make([]float32, dimension)
	for i := range v {
		v[i] = r.rand.Float32()
	}
	return v
}

// UniformVectors generates num random vectors with components in [0, 1).
func (r *RNG) UniformVectors(num int, dimension int) [][]float32 {
	vectors := make([][]float32, num)
	for i := range vectors {
		vectors[i] = r.UniformVector(dimension)
	}
	return vectors
}
