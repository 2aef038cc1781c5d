package memory

import "time"

// Memory sources with fixed importance baselines. Callers may also pass
// free-form source tags; unknown tags fall back to the default weight.
const (
	SourceConversation = "conversation"
	SourceGenerated    = "generated"
	SourceConsolidated = "consolidated"
	SourceInsight      = "insight"
)

// Metadata keys used by the fallback similarity grouping.
const (
	MetaSimilarTo = "similar_to"
	MetaEventType = "event_type"
)

// Memory is a single recorded observation. Consolidated memories and
// insights share the shape; for those the Processed flag is unused.
//
// A memory is immutable once created except for Processed, RecallCount,
// and Importance, all of which are written only by the Store.
type Memory struct {
	ID          int64              `json:"id"`
	Text        string             `json:"text"`
	Source      string             `json:"source"`
	Timestamp   time.Time          `json:"timestamp"`
	Importance  float64            `json:"importance"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
	Emotions    map[string]float64 `json:"emotions,omitempty"`
	RecallCount int                `json:"recall_count"`
	Processed   bool               `json:"processed"`
	Embedding   []float32          `json:"-"`
}

// clone returns a value copy safe to hand outside the store.
func (m *Memory) clone() Memory {
	c := *m
	if m.Metadata != nil {
		c.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			c.Metadata[k] = v
		}
	}
	if m.Emotions != nil {
		c.Emotions = make(map[string]float64, len(m.Emotions))
		for k, v := range m.Emotions {
			c.Emotions[k] = v
		}
	}
	return c
}

func cloneAll(records []*Memory) []Memory {
	out := make([]Memory, len(records))
	for i, m := range records {
		out[i] = m.clone()
	}
	return out
}

// Related is a memory returned from a relatedness query, with the
// similarity score that matched it.
type Related struct {
	Memory     Memory  `json:"memory"`
	Similarity float64 `json:"similarity"`
}
