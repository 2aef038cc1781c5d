// Package genai is the boundary to the language generation service.
// The core never depends on a live model: every caller owns a local
// fallback, and malformed responses degrade to empty results rather
// than errors that could take down a cycle.
package genai

import (
	"context"
	"time"
)

// Scenario is a hypothetical "what if" produced during the hypothesis
// stage of a dream cycle.
type Scenario struct {
	ID          string    `json:"id,omitempty"`
	Scenario    string    `json:"scenario"`
	Relevance   string    `json:"relevance"`
	Probability float64   `json:"probability"`
	Timestamp   time.Time `json:"timestamp"`
}

// Insight is a conclusion drawn from scenarios during the insight
// stage. Value in [0,1] gates persistence into the memory store.
type Insight struct {
	ID          string    `json:"id,omitempty"`
	Text        string    `json:"text"`
	Value       float64   `json:"value"`
	Application string    `json:"application"`
	Timestamp   time.Time `json:"timestamp"`
}

// ThoughtContext conditions background thought generation.
type ThoughtContext struct {
	Time          time.Time
	Emotions      map[string]float64
	MemoryContext string
	Conversation  []string
}

// ReplyContext conditions a conversational reply.
type ReplyContext struct {
	Message         string
	Emotions        map[string]float64
	Thoughts        []string
	RelatedMemories []string
	Conversation    []string
}

// Generator is the language generation capability the core consumes.
// Implementations: Anthropic (live), Static (deterministic fallback,
// also the test stub base).
type Generator interface {
	// Consolidate merges a small set of similar memory texts into one.
	Consolidate(ctx context.Context, texts []string) (string, error)

	// Scenarios generates 2-3 hypothetical scenarios from memory texts.
	Scenarios(ctx context.Context, memories []string) ([]Scenario, error)

	// Insights generates 1-2 insights from scenarios.
	Insights(ctx context.Context, scenarios []Scenario) ([]Insight, error)

	// EmotionImpact estimates per-emotion deltas in [-0.2,0.2] for a
	// text. Unknown emotions in the result are ignored by callers.
	EmotionImpact(ctx context.Context, text string) (map[string]float64, error)

	// Thought generates a short background thought.
	Thought(ctx context.Context, tc ThoughtContext) (string, error)

	// Reply generates a conversational response.
	Reply(ctx context.Context, rc ReplyContext) (string, error)
}
