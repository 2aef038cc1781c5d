// Package dream runs the background processing cycle that consolidates
// similar memories, generates hypothetical scenarios from important
// ones, and extracts insights worth keeping. A cycle walks a fixed
// sequence of stages and may finish early when the optimizer judges the
// remaining stages not worth running.
package dream

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/becomeliminal/reverie/genai"
	"github.com/becomeliminal/reverie/memory"
)

// Cycle stages, in execution order. The system reports StageIdle
// between cycles.
const (
	StageIdle          = "idle"
	StageSelection     = "memory_selection"
	StageConsolidation = "consolidation"
	StageHypothesis    = "hypothesis_generation"
	StageInsight       = "insight_generation"
)

// Buffer bounds. Completed records, scenarios, and insights are kept
// in memory for inspection; older entries roll off.
const (
	maxRecords   = 10
	maxScenarios = 15
	maxInsights  = 15
)

// Config tunes cycle scheduling and stage behavior.
type Config struct {
	// Frequency is the minimum interval between automatic cycles.
	Frequency time.Duration

	// ConsolidationThreshold is the importance ceiling for selecting
	// low-importance memories during the selection stage.
	ConsolidationThreshold float64

	// GroupThreshold is the similarity required for two memories to be
	// grouped for consolidation.
	GroupThreshold float64

	// BacklogLimit triggers a cycle early when more than this many
	// unprocessed memories have accumulated.
	BacklogLimit int

	// PollInterval is how often the background loop checks whether a
	// cycle is due.
	PollInterval time.Duration

	// OptimizationEnabled turns on early termination between stages.
	OptimizationEnabled bool

	// OptimizationFloor is the minimum stage value; below it the cycle
	// finishes early.
	OptimizationFloor float64
}

// DefaultConfig returns the standard cycle tuning.
func DefaultConfig() Config {
	return Config{
		Frequency:              60 * time.Second,
		ConsolidationThreshold: 0.4,
		GroupThreshold:         0.65,
		BacklogLimit:           15,
		PollInterval:           5 * time.Second,
		OptimizationEnabled:    true,
		OptimizationFloor:      0.3,
	}
}

// StageEvent marks a stage transition within a cycle.
type StageEvent struct {
	Stage     string    `json:"stage"`
	Timestamp time.Time `json:"timestamp"`
}

// Consolidation records one group of memories merged into a single
// consolidated memory.
type Consolidation struct {
	OriginalMemories []int64 `json:"original_memories"`
	ConsolidatedText string  `json:"consolidated_text"`
	Source           string  `json:"source"`
	Count            int     `json:"count"`
}

// Record is the full trace of one completed cycle.
type Record struct {
	ID                int              `json:"id"`
	StartedAt         time.Time        `json:"started_at"`
	Stages            []StageEvent     `json:"stages"`
	Consolidations    []Consolidation  `json:"consolidations"`
	Scenarios         []genai.Scenario `json:"scenarios"`
	Insights          []genai.Insight  `json:"insights"`
	Duration          time.Duration    `json:"duration_ns"`
	EarlyTermination  bool             `json:"early_termination"`
	TerminationReason string           `json:"termination_reason,omitempty"`
}

// State is a point-in-time snapshot of the system.
type State struct {
	Dreaming          bool       `json:"dreaming"`
	CurrentStage      string     `json:"current_stage"`
	LastDreamTime     *time.Time `json:"last_dream_time,omitempty"`
	CurrentDream      *Record    `json:"current_dream,omitempty"`
	ConsolidatedCount int        `json:"consolidated_count"`
	ScenariosCount    int        `json:"scenarios_count"`
	InsightsCount     int        `json:"insights_count"`
}

// Result reports the outcome of a trigger request.
type Result struct {
	Status string  `json:"status"`
	Record *Record `json:"record,omitempty"`
}

// Trigger statuses.
const (
	StatusCompleted       = "completed"
	StatusAlreadyDreaming = "already_dreaming"
)

// System owns cycle state and scheduling. At most one cycle runs at a
// time; concurrent triggers are rejected.
type System struct {
	store *memory.Store
	gen   genai.Generator
	cfg   Config
	clock func() time.Time

	mu        sync.Mutex
	dreaming  bool
	stage     string
	current   *Record
	records   []Record
	scenarios []genai.Scenario
	insights  []genai.Insight
	lastDream time.Time
	cycleSeq  int

	loopMu  sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// Option configures the system.
type Option func(*System)

// WithClock sets the time source, letting tests control scheduling and
// record timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *System) {
		s.clock = clock
	}
}

// New creates a dream system over the given store and generator.
func New(store *memory.Store, gen genai.Generator, cfg Config, opts ...Option) *System {
	if cfg.Frequency <= 0 {
		cfg.Frequency = 60 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.ConsolidationThreshold <= 0 {
		cfg.ConsolidationThreshold = 0.4
	}
	if cfg.GroupThreshold <= 0 {
		cfg.GroupThreshold = 0.65
	}
	if cfg.BacklogLimit <= 0 {
		cfg.BacklogLimit = 15
	}
	if cfg.OptimizationFloor <= 0 {
		cfg.OptimizationFloor = 0.3
	}
	s := &System{
		store: store,
		gen:   gen,
		cfg:   cfg,
		clock: time.Now,
		stage: StageIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastDream = s.clock()
	return s
}

// Start launches the background scheduling loop. Calling Start on a
// running system is a no-op.
func (s *System) Start(ctx context.Context) {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(ctx, s.stop, s.done)
	log.Printf("[DREAM] Background loop started (frequency %s)", s.cfg.Frequency)
}

// Stop halts the background loop and waits for it to exit. A cycle in
// progress runs to completion.
func (s *System) Stop() {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if !s.running {
		return
	}
	close(s.stop)
	<-s.done
	s.running = false
	log.Printf("[DREAM] Background loop stopped")
}

func (s *System) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.due() {
				s.Trigger(ctx)
			}
		}
	}
}

// due reports whether a cycle should start: enough time has passed or
// the unprocessed backlog has grown past the limit.
func (s *System) due() bool {
	s.mu.Lock()
	dreaming := s.dreaming
	elapsed := s.clock().Sub(s.lastDream)
	s.mu.Unlock()
	if dreaming {
		return false
	}
	if elapsed >= s.cfg.Frequency {
		return true
	}
	return len(s.store.Unprocessed()) > s.cfg.BacklogLimit
}

// Trigger runs a full cycle synchronously. If a cycle is already in
// progress the call is rejected with StatusAlreadyDreaming.
func (s *System) Trigger(ctx context.Context) Result {
	s.mu.Lock()
	if s.dreaming {
		s.mu.Unlock()
		return Result{Status: StatusAlreadyDreaming}
	}
	s.dreaming = true
	s.cycleSeq++
	s.current = &Record{
		ID:        s.cycleSeq,
		StartedAt: s.clock(),
	}
	s.mu.Unlock()

	s.runCycle(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	var record *Record
	if n := len(s.records); n > 0 {
		c := cloneRecord(s.records[n-1])
		record = &c
	}
	return Result{Status: StatusCompleted, Record: record}
}

// State returns a snapshot of the system.
func (s *System) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Dreaming:       s.dreaming,
		CurrentStage:   s.stage,
		ScenariosCount: len(s.scenarios),
		InsightsCount:  len(s.insights),
	}
	if !s.lastDream.IsZero() {
		t := s.lastDream
		st.LastDreamTime = &t
	}
	if s.current != nil {
		c := cloneRecord(*s.current)
		st.CurrentDream = &c
	}
	_, consolidated, _ := s.store.Counts()
	st.ConsolidatedCount = consolidated
	return st
}

// RecentDreams returns completed cycle records, oldest first.
func (s *System) RecentDreams() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	for i, r := range s.records {
		out[i] = cloneRecord(r)
	}
	return out
}

// Scenarios returns the buffered scenarios, oldest first.
func (s *System) Scenarios() []genai.Scenario {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]genai.Scenario(nil), s.scenarios...)
}

// Insights returns the buffered insights, oldest first.
func (s *System) Insights() []genai.Insight {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]genai.Insight(nil), s.insights...)
}

// Reset clears cycle history and buffers. A cycle in progress is not
// interrupted; its record will still be appended.
func (s *System) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.scenarios = nil
	s.insights = nil
	s.lastDream = s.clock()
	s.cycleSeq = 0
	log.Printf("[DREAM] State reset")
}

func cloneRecord(r Record) Record {
	c := r
	c.Stages = append([]StageEvent(nil), r.Stages...)
	c.Consolidations = append([]Consolidation(nil), r.Consolidations...)
	c.Scenarios = append([]genai.Scenario(nil), r.Scenarios...)
	c.Insights = append([]genai.Insight(nil), r.Insights...)
	return c
}
