package emotion

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/becomeliminal/reverie/genai"
	"github.com/becomeliminal/reverie/memory"
)

func steppingClock() func() time.Time {
	t := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newTestEngine(gen genai.Generator) *Engine {
	store := memory.New(
		memory.WithClock(steppingClock()),
		memory.WithRand(rand.New(rand.NewSource(1))),
	)
	return New(store, gen, DefaultConfig(),
		WithClock(steppingClock()),
		WithRand(rand.New(rand.NewSource(1))))
}

func TestDecayPullsTowardZero(t *testing.T) {
	e := newTestEngine(genai.NewStatic())
	e.emotions["joy"] = 0.8
	e.emotions["fear"] = 0.2

	for i := 0; i < 10; i++ {
		e.applyDecayLocked(5)
	}
	if e.emotions["joy"] >= 0.8 {
		t.Fatalf("joy = %f, want decayed below 0.8", e.emotions["joy"])
	}
	if e.emotions["fear"] >= 0.2 {
		t.Fatalf("fear = %f, want decayed below 0.2", e.emotions["fear"])
	}
}

func TestDynamicsStayInRange(t *testing.T) {
	e := newTestEngine(genai.NewStatic())
	e.emotions["joy"] = 1
	e.emotions["sadness"] = 0

	for i := 0; i < 500; i++ {
		e.applyDecayLocked(0.05)
		e.applyNoiseLocked()
		e.applyMicroLocked()
		e.applyImpactLocked(map[string]float64{
			"joy":     0.2,
			"sadness": -0.2,
			"anger":   0.15,
		}, applyThreshold)
		for name, value := range e.emotions {
			if value < 0 || value > 1 {
				t.Fatalf("iteration %d: %s = %f out of range", i, name, value)
			}
		}
	}
}

func TestApplyImpact(t *testing.T) {
	e := newTestEngine(genai.NewStatic())
	e.applyImpactLocked(map[string]float64{
		"joy":       0.1,
		"fear":      0.005, // below the message-path threshold
		"nostalgia": 0.2,   // not a tracked emotion
	}, applyThreshold)

	if e.emotions["joy"] != 0.1 {
		t.Fatalf("joy = %f, want 0.1", e.emotions["joy"])
	}
	if e.emotions["fear"] != 0 {
		t.Fatalf("fear = %f, want negligible delta ignored", e.emotions["fear"])
	}
	if _, ok := e.emotions["nostalgia"]; ok {
		t.Fatal("unknown emotion was added")
	}
}

type thoughtGen struct {
	*genai.Static
}

func (thoughtGen) Thought(ctx context.Context, tc genai.ThoughtContext) (string, error) {
	return "a faint feeling", nil
}

func (thoughtGen) EmotionImpact(ctx context.Context, text string) (map[string]float64, error) {
	return map[string]float64{"joy": 0.005}, nil
}

func TestThoughtImpactAppliesSmallDeltas(t *testing.T) {
	e := newTestEngine(thoughtGen{genai.NewStatic()})
	e.generateThought(context.Background(), e.clock())

	// Thought deltas apply unconditionally; only the message path
	// filters negligible ones.
	if e.emotions["joy"] != 0.005 {
		t.Fatalf("joy = %f, want 0.005", e.emotions["joy"])
	}
}

func TestHistoryCap(t *testing.T) {
	e := newTestEngine(genai.NewStatic())
	for i := 0; i < 350; i++ {
		e.recordHistoryLocked()
	}
	if len(e.history) != maxHistory {
		t.Fatalf("history length = %d, want %d", len(e.history), maxHistory)
	}
}

func TestGenerateThought(t *testing.T) {
	e := newTestEngine(genai.NewStatic())
	e.emotions["joy"] = 0.8

	e.generateThought(context.Background(), e.clock())

	if len(e.thoughts) != 1 {
		t.Fatalf("thought count = %d, want 1", len(e.thoughts))
	}
	thought := e.thoughts[0]
	if thought.ID == "" || thought.Text == "" {
		t.Fatalf("thought missing ID or text: %+v", thought)
	}
	if thought.Emotions["joy"] == 0 {
		t.Fatal("thought missing emotion snapshot")
	}
}

type impactGen struct {
	*genai.Static
	reply    string
	replyErr error
}

func (g *impactGen) EmotionImpact(ctx context.Context, text string) (map[string]float64, error) {
	return map[string]float64{"joy": 0.2}, nil
}

func (g *impactGen) Reply(ctx context.Context, rc genai.ReplyContext) (string, error) {
	return g.reply, g.replyErr
}

func TestProcessMessage(t *testing.T) {
	gen := &impactGen{Static: genai.NewStatic(), reply: "That sounds wonderful."}
	e := newTestEngine(gen)

	reply := e.ProcessMessage(context.Background(), "we won the contract")
	if reply != "That sounds wonderful." {
		t.Fatalf("reply = %q", reply)
	}

	// Direct impact is weighted at 0.7.
	joy := e.Snapshot()["joy"]
	if joy < 0.13 || joy > 0.15 {
		t.Fatalf("joy = %f, want ~0.14", joy)
	}

	st := e.State()
	if len(st.Conversation) != 2 ||
		!strings.HasPrefix(st.Conversation[0], "User: ") ||
		!strings.HasPrefix(st.Conversation[1], "AI: ") {
		t.Fatalf("conversation = %+v", st.Conversation)
	}

	recent := e.store.Recent(1)
	if len(recent) != 1 {
		t.Fatal("exchange not stored as memory")
	}
	if recent[0].Source != memory.SourceConversation {
		t.Fatalf("memory source = %q", recent[0].Source)
	}
	if recent[0].Emotions["joy"] == 0 {
		t.Fatal("stored memory missing emotion stamp")
	}
}

func TestProcessMessageReplyFailure(t *testing.T) {
	gen := &impactGen{Static: genai.NewStatic(), replyErr: errors.New("model unavailable")}
	e := newTestEngine(gen)

	reply := e.ProcessMessage(context.Background(), "hello")
	if reply != errorReply {
		t.Fatalf("reply = %q, want the fallback", reply)
	}
	if len(e.State().Conversation) != 2 {
		t.Fatal("exchange not recorded despite reply failure")
	}
}

func TestConversationCap(t *testing.T) {
	gen := &impactGen{Static: genai.NewStatic(), reply: "ok"}
	e := newTestEngine(gen)

	for i := 0; i < 15; i++ {
		e.ProcessMessage(context.Background(), "another message")
	}
	if got := len(e.State().Conversation); got != maxConversation {
		t.Fatalf("conversation length = %d, want %d", got, maxConversation)
	}
}

func TestResetKeepsConversation(t *testing.T) {
	gen := &impactGen{Static: genai.NewStatic(), reply: "ok"}
	e := newTestEngine(gen)

	e.ProcessMessage(context.Background(), "hello there")
	e.generateThought(context.Background(), e.clock())
	e.recordHistoryLocked()

	e.Reset()

	for name, value := range e.emotions {
		if value != 0 {
			t.Fatalf("%s = %f after reset, want 0", name, value)
		}
	}
	if len(e.thoughts) != 0 {
		t.Fatal("thoughts survived reset")
	}
	if len(e.history) != 1 {
		t.Fatalf("history length = %d, want the single seed snapshot", len(e.history))
	}
	if len(e.conversation) != 2 {
		t.Fatal("conversation should survive reset")
	}
}
