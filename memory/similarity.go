package memory

import (
	"context"
	"math"
	"strings"
)

// Embedder converts text to vector embeddings.
// Implementations: mock (testing/default), onnx (local model), plus the
// ristretto-backed cache wrapper.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// Neighbor is a scored match from a similarity index query.
type Neighbor struct {
	ID         int64
	Similarity float64
}

// SimilarityIndex is the optional semantic backend. The store works
// without one, degrading to metadata- and keyword-based matching, so
// the index is selected at construction rather than probed at runtime.
// Implementations: index/chromem.
type SimilarityIndex interface {
	// Embed converts text to an embedding without indexing it.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Index stores an embedding under the given memory ID.
	Index(ctx context.Context, id int64, text string, embedding []float32) error

	// Remove drops entries for the given memory IDs.
	Remove(ctx context.Context, ids ...int64)

	// Similar returns up to limit indexed entries by similarity to the
	// embedding, highest first.
	Similar(ctx context.Context, embedding []float32, limit int) ([]Neighbor, error)

	// Reset drops all indexed entries.
	Reset(ctx context.Context)
}

// cosine returns the cosine similarity of two vectors, 0 if either is
// empty or zero-length.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// keywordSimilarity scores word overlap between two texts in [0,1].
// Used when no similarity index is configured.
func keywordSimilarity(a, b string) float64 {
	aw := wordSet(a)
	bw := wordSet(b)
	if len(aw) == 0 || len(bw) == 0 {
		return 0
	}
	common := 0
	for w := range aw {
		if _, ok := bw[w]; ok {
			common++
		}
	}
	max := len(aw)
	if len(bw) > max {
		max = len(bw)
	}
	return float64(common) / float64(max)
}

func wordSet(text string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
