package genai

import (
	"context"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "bare",
			content: `[{"scenario": "x"}]`,
			want:    `[{"scenario": "x"}]`,
		},
		{
			name:    "json fence",
			content: "Here you go:\n```json\n[{\"scenario\": \"x\"}]\n```\nHope that helps!",
			want:    `[{"scenario": "x"}]`,
		},
		{
			name:    "plain fence",
			content: "```\n[{\"scenario\": \"x\"}]\n```",
			want:    `[{"scenario": "x"}]`,
		},
		{
			name:    "unclosed fence",
			content: "```json\n[{\"scenario\": \"x\"}]",
			want:    `[{"scenario": "x"}]`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractJSON(tc.content); got != tc.want {
				t.Fatalf("extractJSON = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseScenariosClampsProbability(t *testing.T) {
	content := "```json\n" + `[
		{"scenario": "a", "relevance": "r", "probability": 1.7},
		{"scenario": "b", "relevance": "r", "probability": -0.3}
	]` + "\n```"

	scenarios, err := parseScenarios(content)
	if err != nil {
		t.Fatalf("parseScenarios: %v", err)
	}
	if len(scenarios) != 2 {
		t.Fatalf("scenario count = %d, want 2", len(scenarios))
	}
	if scenarios[0].Probability != 1 {
		t.Fatalf("probability = %f, want clamped to 1", scenarios[0].Probability)
	}
	if scenarios[1].Probability != 0 {
		t.Fatalf("probability = %f, want clamped to 0", scenarios[1].Probability)
	}
}

func TestParseScenariosMalformed(t *testing.T) {
	if _, err := parseScenarios("I could not produce scenarios today."); err == nil {
		t.Fatal("expected error for non-JSON content")
	}
}

func TestParseInsights(t *testing.T) {
	insights, err := parseInsights(`[{"text": "t", "value": 0.8, "application": "a"}]`)
	if err != nil {
		t.Fatalf("parseInsights: %v", err)
	}
	if len(insights) != 1 || insights[0].Value != 0.8 {
		t.Fatalf("parseInsights = %+v", insights)
	}
}

func TestParseImpactClampsDeltas(t *testing.T) {
	impact, err := parseImpact(`{"joy": 0.5, "sadness": -0.5, "fear": 0.1}`)
	if err != nil {
		t.Fatalf("parseImpact: %v", err)
	}
	if impact["joy"] != 0.2 {
		t.Fatalf("joy = %f, want clamped to 0.2", impact["joy"])
	}
	if impact["sadness"] != -0.2 {
		t.Fatalf("sadness = %f, want clamped to -0.2", impact["sadness"])
	}
	if impact["fear"] != 0.1 {
		t.Fatalf("fear = %f, want 0.1", impact["fear"])
	}
}

func TestStaticGenerator(t *testing.T) {
	gen := NewStatic()
	ctx := context.Background()

	if _, err := gen.Consolidate(ctx, nil); err == nil {
		t.Fatal("expected error consolidating nothing")
	}
	text, err := gen.Consolidate(ctx, []string{"went for a run", "ran again"})
	if err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if text == "" {
		t.Fatal("empty consolidation")
	}

	scenarios, err := gen.Scenarios(ctx, []string{"a memory"})
	if err != nil || len(scenarios) == 0 {
		t.Fatalf("Scenarios = %v, %v", scenarios, err)
	}
	insights, err := gen.Insights(ctx, scenarios)
	if err != nil || len(insights) == 0 {
		t.Fatalf("Insights = %v, %v", insights, err)
	}

	thought, err := gen.Thought(ctx, ThoughtContext{Emotions: map[string]float64{"joy": 0.8}})
	if err != nil {
		t.Fatalf("Thought: %v", err)
	}
	if thought != "There's a sense of joy lingering." {
		t.Fatalf("Thought = %q", thought)
	}
}
