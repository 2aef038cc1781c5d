package memory

import "sort"

// Source baselines for the importance heuristic. Unknown sources use
// defaultSourceWeight.
var sourceWeights = map[string]float64{
	"conversation": 0.5,
	"insight":      0.8,
	"consolidated": 0.6,
	"generated":    0.4,
	"encounter":    0.4,
	"observation":  0.4,
	"learning":     0.6,
	"routine":      0.3,
}

const defaultSourceWeight = 0.4

// scoreImportance combines three normalized factors: text length scaled
// into [0.2,0.5], the source baseline, and similarity to the five
// currently most important memories (0 without an index), weighted
// 0.3/0.5/0.2, plus +-0.1 uniform jitter, clamped to [0.1,0.95].
// Caller holds the lock.
func (s *Store) scoreImportance(text, source string, embedding []float32) float64 {
	lengthFactor := clamp(float64(len(text))/500, 0.2, 0.5)

	sourceFactor, ok := sourceWeights[source]
	if !ok {
		sourceFactor = defaultSourceWeight
	}

	similarityFactor := 0.0
	if len(embedding) > 0 {
		for _, m := range s.topImportant(5) {
			if len(m.Embedding) == 0 {
				continue
			}
			if sim := cosine(embedding, m.Embedding) * 0.3; sim > similarityFactor {
				similarityFactor = sim
			}
		}
	}

	jitter := s.rng.Float64()*0.2 - 0.1
	importance := lengthFactor*0.3 + sourceFactor*0.5 + similarityFactor*0.2 + jitter
	return clamp(importance, 0.1, 0.95)
}

// topImportant returns up to n active memories by importance,
// highest first. Caller holds the lock.
func (s *Store) topImportant(n int) []*Memory {
	sorted := make([]*Memory, len(s.memories))
	copy(sorted, s.memories)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Importance > sorted[j].Importance
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
