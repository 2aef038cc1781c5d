package genai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON pulls a JSON payload out of model output that may wrap
// it in code fences or surrounding prose.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "```json"); idx >= 0 {
		rest := content[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		return strings.TrimSpace(rest)
	}
	if idx := strings.Index(content, "```"); idx >= 0 {
		rest := content[idx+len("```"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		return strings.TrimSpace(rest)
	}
	return content
}

// parseScenarios decodes a scenario array from model output.
func parseScenarios(content string) ([]Scenario, error) {
	var scenarios []Scenario
	if err := json.Unmarshal([]byte(extractJSON(content)), &scenarios); err != nil {
		return nil, fmt.Errorf("parse scenarios: %w", err)
	}
	for i := range scenarios {
		scenarios[i].Probability = clampUnit(scenarios[i].Probability)
	}
	return scenarios, nil
}

// parseInsights decodes an insight array from model output.
func parseInsights(content string) ([]Insight, error) {
	var insights []Insight
	if err := json.Unmarshal([]byte(extractJSON(content)), &insights); err != nil {
		return nil, fmt.Errorf("parse insights: %w", err)
	}
	for i := range insights {
		insights[i].Value = clampUnit(insights[i].Value)
	}
	return insights, nil
}

// parseImpact decodes a per-emotion delta map from model output and
// clamps the deltas to [-0.2,0.2].
func parseImpact(content string) (map[string]float64, error) {
	var impact map[string]float64
	if err := json.Unmarshal([]byte(extractJSON(content)), &impact); err != nil {
		return nil, fmt.Errorf("parse emotion impact: %w", err)
	}
	for emotion, delta := range impact {
		if delta > 0.2 {
			impact[emotion] = 0.2
		} else if delta < -0.2 {
			impact[emotion] = -0.2
		}
	}
	return impact, nil
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
