// Package memory provides the bounded, importance-ranked memory store
// at the center of the reverie lifecycle.
//
// The store owns three collections: active memories (capped at 100,
// evicted by recency boosted by recall frequency), consolidated
// memories (capped at 50, evicted by importance), and insights (capped
// at 30, evicted by importance). It is the only writer of the
// processed flag, recall counters, and eviction.
//
// Architecture:
//   - Store: the in-memory source of truth, one mutex per store
//   - SimilarityIndex: optional semantic backend (index/chromem)
//   - Embedder: text-to-vector conversion (embedder/mock for tests and
//     the default runtime, embedder/onnx for a local model, with a
//     ristretto cache wrapper in embedder/cache)
//
// Without a similarity index the store degrades to metadata grouping
// (similar_to, event_type) and keyword-overlap matching; backend
// errors take the same path and are never surfaced to callers.
package memory
