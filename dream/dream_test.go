package dream_test

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/becomeliminal/reverie/dream"
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

func newTestStore() *memory.Store {
	return memory.New(
		memory.WithClock(steppingClock()),
		memory.WithRand(rand.New(rand.NewSource(1))),
	)
}

func newSystem(store *memory.Store, gen genai.Generator, optimize bool) *dream.System {
	cfg := dream.DefaultConfig()
	cfg.OptimizationEnabled = optimize
	return dream.New(store, gen, cfg, dream.WithClock(steppingClock()))
}

// addGroup adds n low-importance memories sharing a similar_to tag.
func addGroup(t *testing.T, store *memory.Store, tag string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		store.AddMemory(context.Background(), fmt.Sprintf("%s event %d", tag, i),
			memory.SourceGenerated,
			memory.WithImportance(0.3),
			memory.WithMetadata(map[string]any{memory.MetaSimilarTo: tag}))
	}
}

func TestTriggerRunsFullCycle(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	addGroup(t, store, "coffee", 3)
	store.AddMemory(ctx, "won the hackathon grand prize", memory.SourceConversation,
		memory.WithImportance(0.9))

	sys := newSystem(store, genai.NewStatic(), false)
	result := sys.Trigger(ctx)

	if result.Status != dream.StatusCompleted {
		t.Fatalf("status = %q, want %q", result.Status, dream.StatusCompleted)
	}
	record := result.Record
	if record == nil {
		t.Fatal("no record returned")
	}
	if record.EarlyTermination {
		t.Fatalf("unexpected early termination: %s", record.TerminationReason)
	}

	wantStages := []string{
		dream.StageSelection,
		dream.StageConsolidation,
		dream.StageHypothesis,
		dream.StageInsight,
	}
	if len(record.Stages) != len(wantStages) {
		t.Fatalf("stage count = %d, want %d (%+v)", len(record.Stages), len(wantStages), record.Stages)
	}
	for i, want := range wantStages {
		if record.Stages[i].Stage != want {
			t.Fatalf("stage %d = %q, want %q", i, record.Stages[i].Stage, want)
		}
	}
	if record.Duration <= 0 {
		t.Fatalf("duration = %v, want positive", record.Duration)
	}

	if len(record.Consolidations) != 1 || record.Consolidations[0].Count != 3 {
		t.Fatalf("consolidations = %+v, want one group of 3", record.Consolidations)
	}
	if _, consolidated, _ := counts(store); consolidated != 1 {
		t.Fatalf("consolidated count = %d, want 1", consolidated)
	}
	if len(store.Unprocessed()) != 1 {
		t.Fatalf("unprocessed = %d, want only the important memory", len(store.Unprocessed()))
	}

	// The static generator's insight is valuable enough to persist.
	if insights := store.Insights(0); len(insights) != 1 {
		t.Fatalf("persisted insights = %d, want 1", len(insights))
	}
	if len(record.Scenarios) == 0 || len(record.Insights) == 0 {
		t.Fatalf("record scenarios/insights = %d/%d, want both populated",
			len(record.Scenarios), len(record.Insights))
	}
	for _, sc := range record.Scenarios {
		if sc.ID == "" || sc.Timestamp.IsZero() {
			t.Fatalf("scenario missing ID or timestamp: %+v", sc)
		}
	}

	state := sys.State()
	if state.Dreaming || state.CurrentStage != dream.StageIdle {
		t.Fatalf("state after cycle = %+v, want idle", state)
	}
}

func counts(store *memory.Store) (int, int, int) {
	return store.Counts()
}

type blockingGen struct {
	*genai.Static
	entered chan struct{}
	release chan struct{}
}

func (g *blockingGen) Scenarios(ctx context.Context, memories []string) ([]genai.Scenario, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.Static.Scenarios(ctx, memories)
}

func TestTriggerRejectsConcurrentCycle(t *testing.T) {
	store := newTestStore()
	addGroup(t, store, "coffee", 3)

	gen := &blockingGen{
		Static:  genai.NewStatic(),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	sys := newSystem(store, gen, false)

	done := make(chan dream.Result, 1)
	go func() {
		done <- sys.Trigger(context.Background())
	}()

	<-gen.entered
	if !sys.State().Dreaming {
		t.Fatal("system not dreaming while cycle in flight")
	}
	second := sys.Trigger(context.Background())
	if second.Status != dream.StatusAlreadyDreaming {
		t.Fatalf("concurrent trigger status = %q, want %q", second.Status, dream.StatusAlreadyDreaming)
	}

	close(gen.release)
	first := <-done
	if first.Status != dream.StatusCompleted {
		t.Fatalf("first trigger status = %q", first.Status)
	}
	if len(sys.RecentDreams()) != 1 {
		t.Fatalf("dream records = %d, want 1", len(sys.RecentDreams()))
	}
}

func TestEmptyStoreTerminatesEarly(t *testing.T) {
	sys := newSystem(newTestStore(), genai.NewStatic(), true)
	result := sys.Trigger(context.Background())

	if result.Record == nil || !result.Record.EarlyTermination {
		t.Fatalf("record = %+v, want early termination", result.Record)
	}
	if result.Record.TerminationReason == "" {
		t.Fatal("missing termination reason")
	}
	if len(result.Record.Stages) != 1 || result.Record.Stages[0].Stage != dream.StageSelection {
		t.Fatalf("stages = %+v, want only selection", result.Record.Stages)
	}
}

func TestEmptySelectionStillHypothesizes(t *testing.T) {
	sys := newSystem(newTestStore(), genai.NewStatic(), false)
	record := sys.Trigger(context.Background()).Record

	// Nothing to consolidate, but the cycle still reaches the
	// hypothesis stage; with no context it produces no scenarios and
	// the insight stage is skipped.
	if record.EarlyTermination {
		t.Fatalf("unexpected early termination: %s", record.TerminationReason)
	}
	wantStages := []string{dream.StageSelection, dream.StageHypothesis}
	if len(record.Stages) != len(wantStages) {
		t.Fatalf("stages = %+v, want selection and hypothesis", record.Stages)
	}
	for i, want := range wantStages {
		if record.Stages[i].Stage != want {
			t.Fatalf("stage %d = %q, want %q", i, record.Stages[i].Stage, want)
		}
	}
	if len(record.Scenarios) != 0 || len(record.Insights) != 0 {
		t.Fatalf("scenarios/insights = %d/%d, want none", len(record.Scenarios), len(record.Insights))
	}
}

func TestOptimizerStopsWeakSelection(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	store.AddMemory(ctx, "one small thing", memory.SourceConversation, memory.WithImportance(0.3))
	store.AddMemory(ctx, "another small thing", memory.SourceConversation, memory.WithImportance(0.3))

	sys := newSystem(store, genai.NewStatic(), true)
	record := sys.Trigger(ctx).Record

	if !record.EarlyTermination {
		t.Fatal("expected early termination on weak selection")
	}
	if len(record.Stages) != 1 || record.Stages[0].Stage != dream.StageSelection {
		t.Fatalf("stages = %+v, want only selection", record.Stages)
	}
}

type noScenarioGen struct {
	*genai.Static
}

func (noScenarioGen) Scenarios(ctx context.Context, memories []string) ([]genai.Scenario, error) {
	return nil, nil
}

func TestOptimizerStopsWithoutScenarios(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		store.AddMemory(ctx, fmt.Sprintf("routine thing %d", i), memory.SourceConversation,
			memory.WithImportance(0.3))
	}

	sys := newSystem(store, noScenarioGen{genai.NewStatic()}, true)
	record := sys.Trigger(ctx).Record

	if !record.EarlyTermination {
		t.Fatal("expected early termination with no scenarios")
	}
	last := record.Stages[len(record.Stages)-1]
	if last.Stage != dream.StageHypothesis {
		t.Fatalf("last stage = %q, want %q", last.Stage, dream.StageHypothesis)
	}
	if insights := store.Insights(0); len(insights) != 0 {
		t.Fatalf("insights persisted despite termination: %d", len(insights))
	}
}

func TestOptimizerStopsDecliningValueAfterConsolidating(t *testing.T) {
	store := newTestStore()
	addGroup(t, store, "coffee", 5)
	addGroup(t, store, "lunch", 5)

	sys := newSystem(store, genai.NewStatic(), true)
	record := sys.Trigger(context.Background()).Record

	// Ten pending memories saturate the selection value; two groups
	// score lower, so the cycle stops after consolidating, keeping
	// what the stage produced but skipping hypothesis and insight.
	if !record.EarlyTermination {
		t.Fatal("expected early termination on declining value")
	}
	if len(record.Consolidations) != 2 {
		t.Fatalf("consolidations = %d, want 2", len(record.Consolidations))
	}
	if _, consolidated, _ := store.Counts(); consolidated != 2 {
		t.Fatalf("consolidated count = %d, want 2", consolidated)
	}
	if unprocessed := len(store.Unprocessed()); unprocessed != 0 {
		t.Fatalf("unprocessed = %d, want all group members processed", unprocessed)
	}
	last := record.Stages[len(record.Stages)-1]
	if last.Stage != dream.StageConsolidation {
		t.Fatalf("last stage = %q, want %q", last.Stage, dream.StageConsolidation)
	}
	if len(record.Scenarios) != 0 {
		t.Fatalf("scenarios = %d, want none after termination", len(record.Scenarios))
	}
}

func TestWeakConsolidationStillProcessesGroups(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()
	addGroup(t, store, "coffee", 2)
	store.AddMemory(ctx, "a minor errand", memory.SourceConversation,
		memory.WithImportance(0.3))

	sys := newSystem(store, genai.NewStatic(), true)
	record := sys.Trigger(ctx).Record

	// A single group scores below the floor, but only after the
	// consolidation has been produced and its sources marked.
	if !record.EarlyTermination {
		t.Fatal("expected early termination on weak consolidation value")
	}
	if len(record.Consolidations) != 1 || record.Consolidations[0].Count != 2 {
		t.Fatalf("consolidations = %+v, want one group of 2", record.Consolidations)
	}
	if _, consolidated, _ := store.Counts(); consolidated != 1 {
		t.Fatalf("consolidated count = %d, want 1", consolidated)
	}
	if unprocessed := len(store.Unprocessed()); unprocessed != 1 {
		t.Fatalf("unprocessed = %d, want only the ungrouped memory", unprocessed)
	}
	last := record.Stages[len(record.Stages)-1]
	if last.Stage != dream.StageConsolidation {
		t.Fatalf("last stage = %q, want %q", last.Stage, dream.StageConsolidation)
	}
}

func TestRecordHistoryCap(t *testing.T) {
	sys := newSystem(newTestStore(), genai.NewStatic(), true)
	for i := 0; i < 12; i++ {
		sys.Trigger(context.Background())
	}
	records := sys.RecentDreams()
	if len(records) != 10 {
		t.Fatalf("record count = %d, want 10", len(records))
	}
	if records[0].ID != 3 || records[9].ID != 12 {
		t.Fatalf("record IDs = %d..%d, want 3..12", records[0].ID, records[9].ID)
	}
}

func TestReset(t *testing.T) {
	store := newTestStore()
	addGroup(t, store, "coffee", 3)
	store.AddMemory(context.Background(), "big news", memory.SourceConversation,
		memory.WithImportance(0.9))

	sys := newSystem(store, genai.NewStatic(), false)
	sys.Trigger(context.Background())
	sys.Reset()

	if len(sys.RecentDreams()) != 0 {
		t.Fatal("records survived reset")
	}
	if len(sys.Scenarios()) != 0 || len(sys.Insights()) != 0 {
		t.Fatal("buffers survived reset")
	}
	state := sys.State()
	if state.ScenariosCount != 0 || state.InsightsCount != 0 {
		t.Fatalf("state after reset = %+v", state)
	}
}
