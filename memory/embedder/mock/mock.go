package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Embedder is a deterministic embedder for tests and for running
// without a real model. Each word hashes to a pseudo-random direction
// and the text embeds as the normalized sum, so texts sharing words
// are measurably similar while unrelated texts are near orthogonal.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder. dimensions 0 defaults to 384, matching
// all-MiniLM-L6-v2.
func New(dimensions int) *Embedder {
	if dimensions == 0 {
		dimensions = 384
	}
	return &Embedder{dimensions: dimensions}
}

// Embed converts text to a deterministic unit vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embedding := make([]float32, e.dimensions)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		h.Write([]byte(word))
		seed := h.Sum64()
		for i := 0; i < e.dimensions; i++ {
			// LCG stream seeded by the word hash.
			seed = seed*6364136223846793005 + 1442695040888963407
			embedding[i] += float32(int64(seed)) / float32(math.MaxInt64)
		}
	}
	return normalize(embedding), nil
}

// Dimensions returns the embedding size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// normalize converts an embedding to a unit vector.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}
