package genai

import (
	"context"
	"fmt"
	"strings"
)

// Static is a deterministic Generator used when no model is configured
// and as the base stub in tests. Its outputs mirror the fallback texts
// the rest of the system expects when generation is unavailable.
type Static struct{}

// NewStatic creates the deterministic fallback generator.
func NewStatic() *Static {
	return &Static{}
}

// Consolidate synthesizes a placeholder referencing the group's first
// memory and size.
func (s *Static) Consolidate(ctx context.Context, texts []string) (string, error) {
	if len(texts) == 0 {
		return "", fmt.Errorf("no texts to consolidate")
	}
	return fmt.Sprintf("Combined memory from %d similar events: %s", len(texts), texts[0]), nil
}

// Scenarios returns a single generic what-if scenario.
func (s *Static) Scenarios(ctx context.Context, memories []string) ([]Scenario, error) {
	return []Scenario{{
		Scenario:    "What if similar events happen again tomorrow?",
		Relevance:   "Based on the pattern of repeated events in memories",
		Probability: 0.7,
	}}, nil
}

// Insights returns a single generic insight.
func (s *Static) Insights(ctx context.Context, scenarios []Scenario) ([]Insight, error) {
	return []Insight{{
		Text:        "Recurring patterns in daily events suggest opportunities for optimization",
		Value:       0.75,
		Application: "Could be applied to improve daily routines and interactions",
	}}, nil
}

// EmotionImpact reports no emotional change.
func (s *Static) EmotionImpact(ctx context.Context, text string) (map[string]float64, error) {
	return map[string]float64{}, nil
}

// Thought returns a quiet observation about the strongest emotion.
func (s *Static) Thought(ctx context.Context, tc ThoughtContext) (string, error) {
	strongest := ""
	max := 0.0
	for emotion, value := range tc.Emotions {
		if value > max || (value == max && (strongest == "" || emotion < strongest)) {
			strongest = emotion
			max = value
		}
	}
	if strongest == "" || max < 0.1 {
		return "It's quiet right now.", nil
	}
	return fmt.Sprintf("There's a sense of %s lingering.", strongest), nil
}

// Reply acknowledges the message without a model.
func (s *Static) Reply(ctx context.Context, rc ReplyContext) (string, error) {
	if strings.TrimSpace(rc.Message) == "" {
		return "I'm here.", nil
	}
	return "I hear you. Tell me more.", nil
}
