package memory

import (
	"context"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// Capacity bounds. Active memories evict by recency boosted by recall
// frequency; consolidated memories and insights evict lowest
// importance first.
const (
	maxActive       = 100
	maxConsolidated = 50
	maxInsights     = 30

	// recallBoost is the recency credit one recall earns, in seconds.
	// A memory recalled once survives eviction as if it were a day newer.
	recallBoost = 86400
)

// Store is the single source of truth for all memory records. All
// operations are serialized by one mutex; background loops and the
// request path mutate it concurrently.
type Store struct {
	mu           sync.Mutex
	memories     []*Memory
	consolidated []*Memory
	insights     []*Memory
	counter      int64

	index SimilarityIndex
	clock func() time.Time
	rng   *rand.Rand
}

// Option configures the store.
type Option func(*Store)

// WithSimilarityIndex sets the semantic backend. Without it the store
// falls back to metadata grouping and keyword matching.
func WithSimilarityIndex(index SimilarityIndex) Option {
	return func(s *Store) {
		s.index = index
	}
}

// WithClock sets the time source. Tests inject a controllable clock to
// make eviction order deterministic.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// WithRand sets the random source used for importance jitter.
func WithRand(rng *rand.Rand) Option {
	return func(s *Store) {
		s.rng = rng
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		clock: time.Now,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddOption configures a single AddMemory call.
type AddOption func(*Memory)

// WithImportance supplies an importance score, skipping the scoring
// heuristic. The value is clamped to [0,1].
func WithImportance(importance float64) AddOption {
	return func(m *Memory) {
		m.Importance = clamp(importance, 0, 1)
	}
}

// WithMetadata attaches metadata to the new memory.
func WithMetadata(metadata map[string]any) AddOption {
	return func(m *Memory) {
		m.Metadata = metadata
	}
}

// WithEmotions stamps the new memory with an emotion snapshot.
func WithEmotions(emotions map[string]float64) AddOption {
	return func(m *Memory) {
		m.Emotions = make(map[string]float64, len(emotions))
		for k, v := range emotions {
			m.Emotions[k] = v
		}
	}
}

// AddMemory records a new active memory. Importance is computed by the
// scoring heuristic unless supplied via WithImportance. If the active
// set exceeds its bound, the oldest least-recalled memories are
// evicted.
func (s *Store) AddMemory(ctx context.Context, text, source string, opts ...AddOption) Memory {
	m := &Memory{
		Text:       text,
		Source:     source,
		Importance: -1,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.Metadata == nil {
		m.Metadata = map[string]any{}
	}

	var embedding []float32
	if s.index != nil {
		var err error
		embedding, err = s.index.Embed(ctx, text)
		if err != nil {
			log.Printf("[MEMORY] Embedding failed, continuing without: %v", err)
			embedding = nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if m.Importance < 0 {
		m.Importance = s.scoreImportance(text, source, embedding)
	}

	s.counter++
	m.ID = s.counter
	m.Timestamp = s.clock()
	m.Embedding = embedding

	s.memories = append(s.memories, m)

	if s.index != nil && embedding != nil {
		if err := s.index.Index(ctx, m.ID, text, embedding); err != nil {
			log.Printf("[MEMORY] Indexing memory %d failed: %v", m.ID, err)
		}
	}

	s.evictActive(ctx)
	return m.clone()
}

// evictActive enforces the active bound. Eviction key is the timestamp
// plus one day of credit per recall, so frequently recalled memories
// outlive newer ones. Caller holds the lock.
func (s *Store) evictActive(ctx context.Context) {
	if len(s.memories) <= maxActive {
		return
	}
	sort.SliceStable(s.memories, func(i, j int) bool {
		return evictionKey(s.memories[i]) < evictionKey(s.memories[j])
	})
	evicted := s.memories[:len(s.memories)-maxActive]
	s.memories = s.memories[len(s.memories)-maxActive:]

	if s.index != nil && len(evicted) > 0 {
		ids := make([]int64, len(evicted))
		for i, m := range evicted {
			ids[i] = m.ID
		}
		s.index.Remove(ctx, ids...)
	}
	log.Printf("[MEMORY] Evicted %d memories (active bound %d)", len(evicted), maxActive)
}

func evictionKey(m *Memory) int64 {
	return m.Timestamp.Unix() + int64(m.RecallCount)*recallBoost
}

// AddConsolidatedMemory records a memory produced by consolidating a
// group of similar ones. Metadata should carry the originating IDs.
func (s *Store) AddConsolidatedMemory(text string, importance float64, metadata map[string]any) Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.addDerived(&s.consolidated, text, SourceConsolidated, importance, metadata, maxConsolidated)
	return m
}

// AddInsight records an insight produced during a dream cycle.
func (s *Store) AddInsight(text string, importance float64, metadata map[string]any) Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.addDerived(&s.insights, text, SourceInsight, importance, metadata, maxInsights)
	return m
}

// addDerived appends to a derived collection, evicting lowest
// importance first past the bound. Caller holds the lock.
func (s *Store) addDerived(collection *[]*Memory, text, source string, importance float64, metadata map[string]any, bound int) Memory {
	if metadata == nil {
		metadata = map[string]any{}
	}
	s.counter++
	m := &Memory{
		ID:         s.counter,
		Text:       text,
		Source:     source,
		Timestamp:  s.clock(),
		Importance: clamp(importance, 0, 1),
		Metadata:   metadata,
	}
	*collection = append(*collection, m)

	if len(*collection) > bound {
		sort.SliceStable(*collection, func(i, j int) bool {
			return (*collection)[i].Importance > (*collection)[j].Importance
		})
		*collection = (*collection)[:bound]
	}
	return m.clone()
}

// ScoreImportance runs the importance heuristic for a text/source pair
// without recording anything.
func (s *Store) ScoreImportance(ctx context.Context, text, source string) float64 {
	var embedding []float32
	if s.index != nil {
		var err error
		embedding, err = s.index.Embed(ctx, text)
		if err != nil {
			log.Printf("[MEMORY] Embedding failed while scoring: %v", err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scoreImportance(text, source, embedding)
}

// ImportanceQuery selects active memories within an importance window.
// Nil Min/Max leave that side unbounded. MaxCount 0 means unlimited.
// If fewer than MinCount memories fall inside the window, the result is
// backfilled with the next most important memories outside it.
type ImportanceQuery struct {
	Min      *float64
	Max      *float64
	MinCount int
	MaxCount int
}

// Float is a convenience for building ImportanceQuery bounds.
func Float(v float64) *float64 { return &v }

// ByImportance returns active memories matching the query, sorted by
// importance descending. The result never exceeds MaxCount.
func (s *Store) ByImportance(q ImportanceQuery) []Memory {
	s.mu.Lock()
	defer s.mu.Unlock()

	var filtered, rest []*Memory
	for _, m := range s.memories {
		if (q.Min == nil || m.Importance >= *q.Min) && (q.Max == nil || m.Importance <= *q.Max) {
			filtered = append(filtered, m)
		} else {
			rest = append(rest, m)
		}
	}
	byImportanceDesc(filtered)

	if q.MaxCount > 0 && len(filtered) > q.MaxCount {
		filtered = filtered[:q.MaxCount]
	}

	if q.MinCount > 0 && len(filtered) < q.MinCount {
		byImportanceDesc(rest)
		needed := q.MinCount - len(filtered)
		if needed > len(rest) {
			needed = len(rest)
		}
		filtered = append(filtered, rest[:needed]...)
	}

	if q.MaxCount > 0 && len(filtered) > q.MaxCount {
		filtered = filtered[:q.MaxCount]
	}
	return cloneAll(filtered)
}

func byImportanceDesc(records []*Memory) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Importance > records[j].Importance
	})
}

// FindSimilarGroups partitions not-yet-processed active memories into
// groups of similar content for consolidation. With a similarity index,
// grouping is a single greedy pass in store order: each unassigned
// memory seeds a group and every later unassigned memory within the
// threshold joins it. Without one, memories are grouped by exact
// similar_to metadata, then remaining ones by exact event_type. Only
// groups of at least two are returned.
func (s *Store) FindSimilarGroups(threshold float64) [][]Memory {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.memories) < 2 {
		return nil
	}
	if s.index != nil {
		if groups, ok := s.groupByEmbedding(threshold); ok {
			return groups
		}
		// No embedded candidates; degrade to metadata grouping.
	}
	return s.groupByMetadata()
}

// groupByEmbedding clusters unprocessed memories by pairwise cosine
// similarity. The second return is false only when no candidate
// carries an embedding; candidates that cluster into nothing are a
// valid empty result, not a reason to fall back. Caller holds the
// lock.
func (s *Store) groupByEmbedding(threshold float64) ([][]Memory, bool) {
	var candidates []*Memory
	for _, m := range s.memories {
		if !m.Processed && len(m.Embedding) > 0 {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}

	assigned := make(map[int64]bool)
	var groups [][]Memory
	for i, seed := range candidates {
		if assigned[seed.ID] {
			continue
		}
		group := []*Memory{seed}
		assigned[seed.ID] = true
		for _, other := range candidates[i+1:] {
			if assigned[other.ID] {
				continue
			}
			if cosine(seed.Embedding, other.Embedding) >= threshold {
				group = append(group, other)
				assigned[other.ID] = true
			}
		}
		if len(group) > 1 {
			groups = append(groups, cloneAll(group))
		}
	}
	return groups, true
}

// groupByMetadata groups unprocessed memories by similar_to, then the
// remainder by event_type. Caller holds the lock.
func (s *Store) groupByMetadata() [][]Memory {
	grouped := make(map[int64]bool)
	var groups [][]Memory

	for _, m := range s.memories {
		if m.Processed || grouped[m.ID] {
			continue
		}
		key, ok := metaString(m, MetaSimilarTo)
		if !ok {
			continue
		}
		group := []*Memory{m}
		grouped[m.ID] = true
		for _, other := range s.memories {
			if other.Processed || grouped[other.ID] {
				continue
			}
			if otherKey, ok := metaString(other, MetaSimilarTo); ok && otherKey == key {
				group = append(group, other)
				grouped[other.ID] = true
			}
		}
		if len(group) > 1 {
			groups = append(groups, cloneAll(group))
		}
	}

	byType := make(map[string][]*Memory)
	var order []string
	for _, m := range s.memories {
		if m.Processed || grouped[m.ID] {
			continue
		}
		eventType, ok := metaString(m, MetaEventType)
		if !ok {
			continue
		}
		if _, seen := byType[eventType]; !seen {
			order = append(order, eventType)
		}
		byType[eventType] = append(byType[eventType], m)
		grouped[m.ID] = true
	}
	for _, eventType := range order {
		if group := byType[eventType]; len(group) > 1 {
			groups = append(groups, cloneAll(group))
		}
	}
	return groups
}

func metaString(m *Memory, key string) (string, bool) {
	v, ok := m.Metadata[key]
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// FindRelated returns up to maxResults active memories related to the
// text, most similar first, and increments their recall counters. With
// a similarity index this is a semantic query; without one it degrades
// to keyword overlap. Backend errors degrade the same way and are
// never returned.
func (s *Store) FindRelated(ctx context.Context, text string, threshold float64, maxResults int) []Related {
	if s.index != nil {
		if results, ok := s.findRelatedSemantic(ctx, text, threshold, maxResults); ok {
			return results
		}
	}
	return s.findRelatedKeywords(text, maxResults)
}

func (s *Store) findRelatedSemantic(ctx context.Context, text string, threshold float64, maxResults int) ([]Related, bool) {
	embedding, err := s.index.Embed(ctx, text)
	if err != nil {
		log.Printf("[MEMORY] Related query embedding failed: %v", err)
		return nil, false
	}

	s.mu.Lock()
	limit := len(s.memories)
	s.mu.Unlock()
	if limit == 0 {
		return nil, true
	}

	neighbors, err := s.index.Similar(ctx, embedding, limit)
	if err != nil {
		log.Printf("[MEMORY] Similarity query failed: %v", err)
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	byID := make(map[int64]*Memory, len(s.memories))
	for _, m := range s.memories {
		byID[m.ID] = m
	}

	var results []Related
	for _, n := range neighbors {
		if n.Similarity < threshold {
			continue
		}
		m, ok := byID[n.ID]
		if !ok {
			continue // evicted but still indexed
		}
		m.RecallCount++
		results = append(results, Related{Memory: m.clone(), Similarity: n.Similarity})
		if len(results) >= maxResults {
			break
		}
	}
	return results, true
}

// findRelatedKeywords is the no-index fallback: rank by word overlap
// above a minimal floor.
func (s *Store) findRelatedKeywords(text string, maxResults int) []Related {
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []Related
	var matched []*Memory
	for _, m := range s.memories {
		similarity := keywordSimilarity(text, m.Text)
		if similarity > 0.1 {
			results = append(results, Related{Memory: m.clone(), Similarity: similarity})
			matched = append(matched, m)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	for _, r := range results {
		for _, m := range matched {
			if m.ID == r.Memory.ID {
				m.RecallCount++
				break
			}
		}
	}
	return results
}

// Unprocessed returns active memories not yet consumed by a
// consolidation pass.
func (s *Store) Unprocessed() []Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Memory
	for _, m := range s.memories {
		if !m.Processed {
			out = append(out, m)
		}
	}
	return cloneAll(out)
}

// MarkProcessed flags the given memories as consumed.
func (s *Store) MarkProcessed(ids []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	for _, m := range s.memories {
		if set[m.ID] {
			m.Processed = true
		}
	}
}

// Recent returns up to maxCount active memories, newest first.
func (s *Store) Recent(maxCount int) []Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	sorted := make([]*Memory, len(s.memories))
	copy(sorted, s.memories)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].ID > sorted[j].ID
		}
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	if maxCount > 0 && len(sorted) > maxCount {
		sorted = sorted[:maxCount]
	}
	return cloneAll(sorted)
}

// Consolidated returns consolidated memories. maxCount 0 returns all.
func (s *Store) Consolidated(maxCount int) []Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.consolidated
	if maxCount > 0 && len(out) > maxCount {
		out = out[:maxCount]
	}
	return cloneAll(out)
}

// Insights returns stored insights. maxCount 0 returns all.
func (s *Store) Insights(maxCount int) []Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.insights
	if maxCount > 0 && len(out) > maxCount {
		out = out[:maxCount]
	}
	return cloneAll(out)
}

// Counts reports the size of the three collections.
func (s *Store) Counts() (active, consolidated, insights int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.memories), len(s.consolidated), len(s.insights)
}

// Reset clears all collections and the identifier counter. The next
// AddMemory receives ID 1.
func (s *Store) Reset(ctx context.Context) {
	s.mu.Lock()
	s.memories = nil
	s.consolidated = nil
	s.insights = nil
	s.counter = 0
	s.mu.Unlock()
	if s.index != nil {
		s.index.Reset(ctx)
	}
	log.Printf("[MEMORY] Store reset")
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
