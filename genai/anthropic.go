package genai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// Anthropic implements Generator on the Claude API.
type Anthropic struct {
	client *anthropic.Client
	model  string
}

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-20250514"

// NewAnthropic creates a Claude-backed generator.
func NewAnthropic(client *anthropic.Client, model string) *Anthropic {
	if model == "" {
		model = DefaultModel
	}
	return &Anthropic{client: client, model: model}
}

// complete issues a single system+user exchange and returns the
// concatenated text blocks.
func (a *Anthropic) complete(ctx context.Context, system, user string, maxTokens int64) (string, error) {
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude API error: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return strings.TrimSpace(text), nil
}

// Consolidate merges similar memory texts into one.
func (a *Anthropic) Consolidate(ctx context.Context, texts []string) (string, error) {
	if len(texts) == 0 {
		return "", fmt.Errorf("no texts to consolidate")
	}
	var lines []string
	for _, t := range texts {
		lines = append(lines, "- "+t)
	}
	prompt := fmt.Sprintf(`Consolidate these similar memories into a single concise memory that captures their essence:

%s

Think about how human memory works: when we experience similar events multiple times, we often merge them into one generalized memory with key details preserved.

Return only the consolidated memory text, no explanations.`, strings.Join(lines, "\n"))

	return a.complete(ctx,
		"You consolidate similar memories into a single memory that captures their essence, similar to how human memory works during sleep.",
		prompt, 150)
}

// Scenarios generates hypothetical scenarios from memory texts.
func (a *Anthropic) Scenarios(ctx context.Context, memories []string) ([]Scenario, error) {
	var lines []string
	for _, m := range memories {
		lines = append(lines, "- "+m)
	}
	prompt := fmt.Sprintf(`Based on these memories, generate 2-3 hypothetical scenarios that could occur in the future.
Each scenario should be a brief "what if" thought experiment relevant to the context.

Memories:
%s

Format each scenario as a JSON object with:
1. "scenario": A brief description of the hypothetical scenario
2. "relevance": Why this scenario is relevant to current memories (1-2 sentences)
3. "probability": A number from 0-1 indicating how likely this scenario is

Return a JSON array of scenario objects.`, strings.Join(lines, "\n"))

	content, err := a.complete(ctx,
		"You generate hypothetical scenarios based on provided memories.",
		prompt, 500)
	if err != nil {
		return nil, err
	}
	return parseScenarios(content)
}

// Insights generates insights from scenarios.
func (a *Anthropic) Insights(ctx context.Context, scenarios []Scenario) ([]Insight, error) {
	var lines []string
	for i, s := range scenarios {
		lines = append(lines, fmt.Sprintf("Scenario %d: %s\nRelevance: %s\nProbability: %.2f",
			i+1, s.Scenario, s.Relevance, s.Probability))
	}
	prompt := fmt.Sprintf(`Based on these hypothetical scenarios, generate 1-2 key insights or learnings that could be valuable.
Think about patterns, potential actions, or deeper understandings that emerge from considering these scenarios.

Scenarios:
%s

Format each insight as a JSON object with:
1. "text": The insight or learning (1-2 sentences)
2. "value": A number from 0-1 indicating how valuable this insight is
3. "application": A brief description of how this insight could be applied

Return a JSON array of insight objects.`, strings.Join(lines, "\n"))

	content, err := a.complete(ctx,
		"You generate valuable insights from hypothetical scenarios.",
		prompt, 350)
	if err != nil {
		return nil, err
	}
	return parseInsights(content)
}

// EmotionImpact estimates per-emotion deltas for a text.
func (a *Anthropic) EmotionImpact(ctx context.Context, text string) (map[string]float64, error) {
	content, err := a.complete(ctx,
		"You analyze how a text would impact emotions. You return a JSON object with emotion names as keys and values from -0.2 to 0.2 indicating how much each emotion should change.",
		fmt.Sprintf("Analyze the emotional impact of this text: '%s'. Return a JSON object with these emotions: joy, sadness, anger, fear, surprise, trust, disgust, anticipation. Values should be from -0.2 to 0.2.", text),
		150)
	if err != nil {
		return nil, err
	}
	return parseImpact(content)
}

// Thought generates a short background thought.
func (a *Anthropic) Thought(ctx context.Context, tc ThoughtContext) (string, error) {
	prompt := fmt.Sprintf(`Current time: %s
Emotional state: %s
%s

Recent conversation:
%s

Generate a single brief, natural thought (1-2 sentences) that might occur to an AI assistant in this moment.`,
		tc.Time.Format("15:04:05"),
		formatEmotions(tc.Emotions),
		tc.MemoryContext,
		strings.Join(tc.Conversation, "\n"))

	return a.complete(ctx,
		"You generate brief, natural thoughts for an AI assistant based on its current emotional state and conversation context. Generate only the thought itself, no explanations or additional text.",
		prompt, 60)
}

// Reply generates a conversational response shaped by emotional state.
func (a *Anthropic) Reply(ctx context.Context, rc ReplyContext) (string, error) {
	var thoughts []string
	for _, t := range rc.Thoughts {
		thoughts = append(thoughts, "- "+t)
	}
	memoryContext := ""
	if len(rc.RelatedMemories) > 0 {
		var lines []string
		for _, m := range rc.RelatedMemories {
			lines = append(lines, "- "+m)
		}
		memoryContext = "Related memories:\n" + strings.Join(lines, "\n")
	}

	system := fmt.Sprintf(`You are an AI assistant with an emotional state that influences your responses.

Current emotional state:
%s

Recent background thoughts:
%s

%s

Your response should be influenced by your current emotional state and memories, but you should not explicitly mention your emotions unless directly asked about them. The emotional influence should be subtle and natural, affecting your tone, word choice, and perspective.`,
		formatEmotions(rc.Emotions),
		strings.Join(thoughts, "\n"),
		memoryContext)

	return a.complete(ctx, system, rc.Message, 250)
}

// formatEmotions renders an emotion vector in stable name order.
func formatEmotions(emotions map[string]float64) string {
	names := make([]string, 0, len(emotions))
	for name := range emotions {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s: %.2f", name, emotions[name])
	}
	return strings.Join(parts, ", ")
}
