// Package emotion maintains a continuously evolving emotional state:
// eight emotion intensities in [0,1] that decay toward baseline, drift
// with noise and micro-fluctuations, and shift in response to
// background thoughts and user messages.
package emotion

import (
	"context"
	"log"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/becomeliminal/reverie/genai"
	"github.com/becomeliminal/reverie/memory"
)

// Names lists the tracked emotions.
var Names = []string{
	"joy", "sadness", "anger", "fear",
	"surprise", "trust", "disgust", "anticipation",
}

// History and buffer bounds.
const (
	maxThoughts     = 10
	maxConversation = 20
	maxHistory      = 300
)

// Config tunes the engine's background dynamics.
type Config struct {
	// DecayRate is the per-second retention factor applied to every
	// emotion; values drift toward zero between stimuli.
	DecayRate float64

	// NoiseMagnitude scales the random drift applied each tick.
	NoiseMagnitude float64

	// ThoughtFrequency is the mean interval between background
	// thoughts; actual intervals are jittered.
	ThoughtFrequency time.Duration

	// TickInterval drives decay and noise.
	TickInterval time.Duration

	// MicroInterval drives small multi-emotion fluctuations.
	MicroInterval time.Duration

	// HistoryInterval drives history snapshots.
	HistoryInterval time.Duration
}

// DefaultConfig returns the standard dynamics tuning.
func DefaultConfig() Config {
	return Config{
		DecayRate:        0.95,
		NoiseMagnitude:   0.015,
		ThoughtFrequency: 7 * time.Second,
		TickInterval:     50 * time.Millisecond,
		MicroInterval:    500 * time.Millisecond,
		HistoryInterval:  200 * time.Millisecond,
	}
}

// Thought is one background thought with the emotional state at the
// moment it occurred.
type Thought struct {
	ID        string             `json:"id"`
	Text      string             `json:"text"`
	Timestamp time.Time          `json:"timestamp"`
	Emotions  map[string]float64 `json:"emotions"`
}

// State is a snapshot of the engine.
type State struct {
	Emotions     map[string]float64   `json:"emotions"`
	Thoughts     []Thought            `json:"thoughts"`
	History      []map[string]float64 `json:"history"`
	Conversation []string             `json:"conversation"`
}

// Engine owns the emotion vector and its background dynamics. All
// state is guarded by one mutex; the tick loop and the request path
// mutate it concurrently.
type Engine struct {
	store *memory.Store
	gen   genai.Generator
	cfg   Config
	clock func() time.Time
	rng   *rand.Rand

	mu           sync.Mutex
	emotions     map[string]float64
	thoughts     []Thought
	conversation []string
	history      []map[string]float64

	lastTick    time.Time
	lastMicro   time.Time
	lastHistory time.Time
	nextThought time.Time

	loopMu  sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// Option configures the engine.
type Option func(*Engine)

// WithClock sets the time source.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithRand sets the random source driving noise and jitter.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) {
		e.rng = rng
	}
}

// New creates an engine with every emotion at zero.
func New(store *memory.Store, gen genai.Generator, cfg Config, opts ...Option) *Engine {
	if cfg.DecayRate <= 0 || cfg.DecayRate >= 1 {
		cfg.DecayRate = 0.95
	}
	if cfg.NoiseMagnitude <= 0 {
		cfg.NoiseMagnitude = 0.015
	}
	if cfg.ThoughtFrequency <= 0 {
		cfg.ThoughtFrequency = 7 * time.Second
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 50 * time.Millisecond
	}
	if cfg.MicroInterval <= 0 {
		cfg.MicroInterval = 500 * time.Millisecond
	}
	if cfg.HistoryInterval <= 0 {
		cfg.HistoryInterval = 200 * time.Millisecond
	}
	e := &Engine{
		store: store,
		gen:   gen,
		cfg:   cfg,
		clock: time.Now,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.emotions = zeroEmotions()
	e.history = []map[string]float64{e.snapshotLocked()}
	now := e.clock()
	e.lastTick = now
	e.lastMicro = now
	e.lastHistory = now
	e.nextThought = now.Add(e.jitteredThoughtInterval())
	return e
}

func zeroEmotions() map[string]float64 {
	emotions := make(map[string]float64, len(Names))
	for _, name := range Names {
		emotions[name] = 0
	}
	return emotions
}

// Start launches the background dynamics loop. Calling Start on a
// running engine is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go e.loop(ctx, e.stop, e.done)
	log.Printf("[EMOTION] Engine started")
}

// Stop halts the background loop and waits for it to exit.
func (e *Engine) Stop() {
	e.loopMu.Lock()
	defer e.loopMu.Unlock()
	if !e.running {
		return
	}
	close(e.stop)
	<-e.done
	e.running = false
	log.Printf("[EMOTION] Engine stopped")
}

func (e *Engine) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick advances the dynamics by one step: decay and noise every tick,
// micro-fluctuations, history, and thoughts on their own intervals.
func (e *Engine) tick(ctx context.Context) {
	now := e.clock()

	e.mu.Lock()
	elapsed := now.Sub(e.lastTick).Seconds()
	e.lastTick = now
	if elapsed > 0 {
		e.applyDecayLocked(elapsed)
	}
	e.applyNoiseLocked()
	if now.Sub(e.lastMicro) >= e.cfg.MicroInterval {
		e.lastMicro = now
		e.applyMicroLocked()
	}
	if now.Sub(e.lastHistory) >= e.cfg.HistoryInterval {
		e.lastHistory = now
		e.recordHistoryLocked()
	}
	thoughtDue := now.After(e.nextThought) || now.Equal(e.nextThought)
	if thoughtDue {
		e.nextThought = now.Add(e.jitteredThoughtInterval())
	}
	e.mu.Unlock()

	if thoughtDue {
		e.generateThought(ctx, now)
	}
}

// applyDecayLocked pulls every emotion toward zero. Stronger emotions
// decay slower, and each decay step carries a little multiplicative
// jitter. Caller holds the lock.
func (e *Engine) applyDecayLocked(elapsedSeconds float64) {
	base := math.Pow(e.cfg.DecayRate, elapsedSeconds)
	for name, value := range e.emotions {
		factor := math.Pow(base, 0.2+0.8*value)
		factor *= 1 + (e.rng.Float64()*0.1 - 0.05)
		e.emotions[name] = clampUnit(value * factor)
	}
}

// applyNoiseLocked adds small random drift to every emotion, drawn
// uniformly over a range that shrinks as the emotion intensifies.
// Caller holds the lock.
func (e *Engine) applyNoiseLocked() {
	for name, value := range e.emotions {
		scale := e.cfg.NoiseMagnitude * (1 - 0.7*value) * (0.5 + e.rng.Float64())
		delta := (e.rng.Float64()*2 - 1) * scale
		e.emotions[name] = clampUnit(value + delta)
	}
}

// applyMicroLocked nudges two or three distinct random emotions.
// Nudges shrink as an emotion gets far from the midpoint so extremes
// stay sticky. Caller holds the lock.
func (e *Engine) applyMicroLocked() {
	count := 2 + e.rng.Intn(2)
	for _, i := range e.rng.Perm(len(Names))[:count] {
		name := Names[i]
		value := e.emotions[name]
		delta := (e.rng.Float64()*2 - 1) * 0.03
		if dist := math.Abs(value - 0.5); dist > 0.3 {
			delta *= 1 - dist
		}
		e.emotions[name] = clampUnit(value + delta)
	}
}

// recordHistoryLocked appends a snapshot to the rolling history.
// Caller holds the lock.
func (e *Engine) recordHistoryLocked() {
	e.history = append(e.history, e.snapshotLocked())
	if len(e.history) > maxHistory {
		e.history = e.history[len(e.history)-maxHistory:]
	}
}

func (e *Engine) jitteredThoughtInterval() time.Duration {
	jitter := 0.5 + e.rng.Float64()
	return time.Duration(float64(e.cfg.ThoughtFrequency) * jitter)
}

// generateThought produces one background thought and applies its
// emotional impact. Generation failures are logged and skipped.
func (e *Engine) generateThought(ctx context.Context, now time.Time) {
	e.mu.Lock()
	emotions := e.snapshotLocked()
	conversation := append([]string(nil), e.conversation...)
	e.mu.Unlock()

	text, err := e.gen.Thought(ctx, genai.ThoughtContext{
		Time:          now,
		Emotions:      emotions,
		MemoryContext: e.memoryContext(),
		Conversation:  conversation,
	})
	if err != nil {
		log.Printf("[EMOTION] Thought generation failed: %v", err)
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	impact, err := e.gen.EmotionImpact(ctx, text)
	if err != nil {
		log.Printf("[EMOTION] Thought impact analysis failed: %v", err)
		impact = nil
	}

	e.mu.Lock()
	e.applyImpactLocked(impact, 0)
	thought := Thought{
		ID:        uuid.NewString(),
		Text:      text,
		Timestamp: now,
		Emotions:  e.snapshotLocked(),
	}
	e.thoughts = append(e.thoughts, thought)
	if len(e.thoughts) > maxThoughts {
		e.thoughts = e.thoughts[len(e.thoughts)-maxThoughts:]
	}
	e.mu.Unlock()
}

// memoryContext renders recent memories for thought prompts.
func (e *Engine) memoryContext() string {
	recent := e.store.Recent(3)
	if len(recent) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Recent memories:")
	for _, m := range recent {
		b.WriteString("\n- ")
		b.WriteString(m.Text)
	}
	return b.String()
}

// applyImpactLocked shifts emotions by the given deltas, ignoring
// unknown emotions and any delta at or below the threshold. Thought
// impacts apply unconditionally (threshold 0); the message path
// filters negligible blended deltas. Caller holds the lock.
func (e *Engine) applyImpactLocked(impact map[string]float64, threshold float64) {
	for name, delta := range impact {
		current, ok := e.emotions[name]
		if !ok {
			continue
		}
		if math.Abs(delta) <= threshold {
			continue
		}
		e.emotions[name] = clampUnit(current + delta)
	}
}

// Snapshot returns the current emotion vector.
func (e *Engine) Snapshot() map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// State returns emotions, thoughts, history, and conversation.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := State{
		Emotions:     e.snapshotLocked(),
		Thoughts:     make([]Thought, len(e.thoughts)),
		History:      make([]map[string]float64, len(e.history)),
		Conversation: append([]string(nil), e.conversation...),
	}
	for i, t := range e.thoughts {
		c := t
		c.Emotions = copyEmotions(t.Emotions)
		st.Thoughts[i] = c
	}
	for i, h := range e.history {
		st.History[i] = copyEmotions(h)
	}
	return st
}

// Reset zeroes all emotions and clears thoughts and history. The
// conversation buffer survives so context is not lost mid-dialogue.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emotions = zeroEmotions()
	e.thoughts = nil
	e.history = []map[string]float64{e.snapshotLocked()}
	log.Printf("[EMOTION] State reset")
}

func (e *Engine) snapshotLocked() map[string]float64 {
	return copyEmotions(e.emotions)
}

func copyEmotions(emotions map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(emotions))
	for k, v := range emotions {
		out[k] = v
	}
	return out
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
