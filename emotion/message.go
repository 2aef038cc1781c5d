package emotion

import (
	"context"
	"fmt"
	"log"

	"github.com/becomeliminal/reverie/genai"
	"github.com/becomeliminal/reverie/memory"
)

// errorReply is returned when response generation fails; the exchange
// is still recorded.
const errorReply = "I'm sorry, I encountered an error generating a response."

// relatedThreshold and relatedLimit bound the memory lookup performed
// per message; applyThreshold drops negligible blended deltas.
const (
	relatedThreshold = 0.6
	relatedLimit     = 3
	applyThreshold   = 0.01
)

// ProcessMessage handles one user message: related memories and the
// message itself shift the emotional state, a reply is generated under
// that state, and the exchange is stored as a new memory stamped with
// the resulting emotions.
func (e *Engine) ProcessMessage(ctx context.Context, message string) string {
	related := e.store.FindRelated(ctx, message, relatedThreshold, relatedLimit)

	// Echoes of related memories: each pulls the state toward the
	// emotions recorded with it, proportionally to its similarity.
	memoryInfluence := make(map[string]float64)
	for _, r := range related {
		strength := r.Similarity * 0.3
		for name, value := range r.Memory.Emotions {
			memoryInfluence[name] += (value - 0.5) * strength
		}
	}

	direct, err := e.gen.EmotionImpact(ctx, message)
	if err != nil {
		log.Printf("[EMOTION] Message impact analysis failed: %v", err)
		direct = nil
	}

	combined := make(map[string]float64)
	for name, delta := range direct {
		combined[name] += delta * 0.7
	}
	for name, delta := range memoryInfluence {
		combined[name] += delta * 0.3
	}

	e.mu.Lock()
	e.applyImpactLocked(combined, applyThreshold)
	emotions := e.snapshotLocked()
	thoughts := make([]string, len(e.thoughts))
	for i, t := range e.thoughts {
		thoughts[i] = t.Text
	}
	conversation := append([]string(nil), e.conversation...)
	e.mu.Unlock()

	relatedTexts := make([]string, len(related))
	for i, r := range related {
		relatedTexts[i] = r.Memory.Text
	}

	reply, err := e.gen.Reply(ctx, genai.ReplyContext{
		Message:         message,
		Emotions:        emotions,
		Thoughts:        thoughts,
		RelatedMemories: relatedTexts,
		Conversation:    conversation,
	})
	if err != nil {
		log.Printf("[EMOTION] Reply generation failed: %v", err)
		reply = errorReply
	}

	e.mu.Lock()
	e.conversation = append(e.conversation, "User: "+message, "AI: "+reply)
	if len(e.conversation) > maxConversation {
		e.conversation = e.conversation[len(e.conversation)-maxConversation:]
	}
	e.mu.Unlock()

	e.store.AddMemory(ctx,
		fmt.Sprintf("User: %s\nAI: %s", message, reply),
		memory.SourceConversation,
		memory.WithEmotions(emotions))

	return reply
}
