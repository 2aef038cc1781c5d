package chromem

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/reverie/memory"
)

// Index implements memory.SimilarityIndex on chromem-go, a pure Go
// embedded vector database. Embeddings come from the configured
// Embedder; chromem only stores and queries them.
type Index struct {
	embedder memory.Embedder

	mu         sync.Mutex
	db         *chromem.DB
	collection *chromem.Collection
}

const collectionName = "memories"

// New creates a chromem-backed similarity index.
func New(embedder memory.Embedder) (*Index, error) {
	idx := &Index{
		embedder: embedder,
		db:       chromem.NewDB(),
	}
	col, err := idx.db.CreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	idx.collection = col
	return idx, nil
}

// Embed converts text to an embedding without indexing it.
func (idx *Index) Embed(ctx context.Context, text string) ([]float32, error) {
	return idx.embedder.Embed(ctx, text)
}

// Index stores an embedding under the given memory ID.
func (idx *Index) Index(ctx context.Context, id int64, text string, embedding []float32) error {
	idx.mu.Lock()
	col := idx.collection
	idx.mu.Unlock()

	doc := chromem.Document{
		ID:        strconv.FormatInt(id, 10),
		Content:   text,
		Embedding: embedding,
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Remove drops entries for the given memory IDs. Removal failures are
// tolerated; stale entries are filtered out by the store on query.
func (idx *Index) Remove(ctx context.Context, ids ...int64) {
	idx.mu.Lock()
	col := idx.collection
	idx.mu.Unlock()

	docIDs := make([]string, len(ids))
	for i, id := range ids {
		docIDs[i] = strconv.FormatInt(id, 10)
	}
	if err := col.Delete(ctx, nil, nil, docIDs...); err != nil {
		log.Printf("[CHROMEM] Delete failed (entries remain stale): %v", err)
	}
}

// Similar returns up to limit indexed entries by similarity to the
// embedding, highest first.
func (idx *Index) Similar(ctx context.Context, embedding []float32, limit int) ([]memory.Neighbor, error) {
	idx.mu.Lock()
	col := idx.collection
	idx.mu.Unlock()

	// chromem rejects nResults above the collection size.
	if count := col.Count(); count < limit {
		limit = count
	}
	if limit <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, embedding, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	neighbors := make([]memory.Neighbor, 0, len(results))
	for _, result := range results {
		id, err := strconv.ParseInt(result.ID, 10, 64)
		if err != nil {
			log.Printf("[CHROMEM] Skipping result with non-numeric ID %q", result.ID)
			continue
		}
		neighbors = append(neighbors, memory.Neighbor{
			ID:         id,
			Similarity: float64(result.Similarity),
		})
	}
	return neighbors, nil
}

// Reset drops all indexed entries.
func (idx *Index) Reset(ctx context.Context) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	db := chromem.NewDB()
	col, err := db.CreateCollection(collectionName, nil, nil)
	if err != nil {
		log.Printf("[CHROMEM] Reset failed: %v", err)
		return
	}
	idx.db = db
	idx.collection = col
}
