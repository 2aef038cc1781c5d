package dream

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/becomeliminal/reverie/genai"
	"github.com/becomeliminal/reverie/memory"
)

// runCycle executes the stages of one cycle. It always finalizes: the
// record is appended and the system returns to idle even if a stage
// panics.
func (s *System) runCycle(ctx context.Context) {
	opt := newOptimizer(s.cfg.OptimizationEnabled, s.cfg.OptimizationFloor)

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[DREAM] Cycle panicked: %v", r)
			s.mu.Lock()
			if s.current != nil {
				s.current.EarlyTermination = true
				s.current.TerminationReason = fmt.Sprintf("panic: %v", r)
			}
			s.mu.Unlock()
		}
		s.finalize()
	}()

	// Stage 1: select memories worth processing.
	s.enterStage(StageSelection)
	groups := s.selectMemories()
	if reason, stop := opt.check(StageSelection, selectionValue(len(s.store.Unprocessed()))); stop {
		s.terminate(reason)
		return
	}

	// Stage 2: consolidate similar groups, if any formed. The stage
	// value is scored after the stage runs; a weak or declining value
	// keeps what was produced and skips the remaining stages.
	if len(groups) > 0 {
		s.enterStage(StageConsolidation)
		s.consolidate(ctx, groups)
		if reason, stop := opt.check(StageConsolidation, consolidationValue(groups)); stop {
			s.terminate(reason)
			return
		}
	}

	// Stage 3: generate hypothetical scenarios from important context.
	s.enterStage(StageHypothesis)
	scenarios := s.hypothesize(ctx)
	if reason, stop := opt.check(StageHypothesis, hypothesisValue(scenarios)); stop {
		s.terminate(reason)
		return
	}

	// Stage 4: extract insights from the scenarios.
	if len(scenarios) > 0 {
		s.enterStage(StageInsight)
		s.extractInsights(ctx, scenarios)
	}
}

// selectMemories gathers the cycle's working set: low-importance
// memories due for consolidation plus every member of a similarity
// group, deduplicated by ID. Only the groups drive later stages; the
// union is reported for observability.
func (s *System) selectMemories() [][]memory.Memory {
	low := s.store.ByImportance(memory.ImportanceQuery{
		Max:      memory.Float(s.cfg.ConsolidationThreshold),
		MinCount: 3,
	})
	groups := s.store.FindSimilarGroups(s.cfg.GroupThreshold)

	seen := make(map[int64]bool)
	for _, m := range low {
		seen[m.ID] = true
	}
	for _, group := range groups {
		for _, m := range group {
			seen[m.ID] = true
		}
	}
	log.Printf("[DREAM] Selected %d memories (%d similarity groups)", len(seen), len(groups))
	return groups
}

// consolidate merges each group into a single consolidated memory and
// marks the originals processed.
func (s *System) consolidate(ctx context.Context, groups [][]memory.Memory) {
	dreamID := s.currentID()
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		texts := make([]string, 0, 5)
		ids := make([]int64, len(group))
		sum := 0.0
		for i, m := range group {
			if len(texts) < 5 {
				texts = append(texts, m.Text)
			}
			ids[i] = m.ID
			sum += m.Importance
		}

		text, err := s.gen.Consolidate(ctx, texts)
		if err != nil {
			log.Printf("[DREAM] Consolidation generation failed, using fallback: %v", err)
			text = fmt.Sprintf("Combined memory from %d similar events: %s", len(group), group[0].Text)
		}

		importance := sum / float64(len(group)) * 1.2
		if importance > 0.8 {
			importance = 0.8
		}

		metadata := map[string]any{
			"dream_id":          dreamID,
			"original_count":    len(group),
			"consolidated_from": ids,
		}
		if eventType, ok := sharedEventType(group); ok {
			metadata[memory.MetaEventType] = eventType
		}

		s.store.AddConsolidatedMemory(text, importance, metadata)
		s.store.MarkProcessed(ids)

		s.mu.Lock()
		s.current.Consolidations = append(s.current.Consolidations, Consolidation{
			OriginalMemories: ids,
			ConsolidatedText: text,
			Source:           group[0].Source,
			Count:            len(group),
		})
		s.mu.Unlock()
	}
}

// sharedEventType returns the group's event type when every member
// carries the same one.
func sharedEventType(group []memory.Memory) (string, bool) {
	shared := ""
	for _, m := range group {
		v, ok := m.Metadata[memory.MetaEventType]
		if !ok {
			return "", false
		}
		eventType, ok := v.(string)
		if !ok {
			return "", false
		}
		if shared == "" {
			shared = eventType
		} else if eventType != shared {
			return "", false
		}
	}
	return shared, shared != ""
}

// hypothesize generates scenarios from the most important and most
// recent memories.
func (s *System) hypothesize(ctx context.Context) []genai.Scenario {
	important := s.store.ByImportance(memory.ImportanceQuery{
		Min:      memory.Float(0.7),
		MaxCount: 3,
	})
	recent := s.store.Recent(3)

	seen := make(map[int64]bool)
	var texts []string
	for _, m := range important {
		if !seen[m.ID] {
			seen[m.ID] = true
			texts = append(texts, m.Text)
		}
	}
	for _, m := range recent {
		if !seen[m.ID] {
			seen[m.ID] = true
			texts = append(texts, m.Text)
		}
	}
	if len(texts) == 0 {
		return nil
	}

	scenarios, err := s.gen.Scenarios(ctx, texts)
	if err != nil {
		log.Printf("[DREAM] Scenario generation failed: %v", err)
		return nil
	}

	now := s.clock()
	for i := range scenarios {
		scenarios[i].ID = uuid.NewString()
		scenarios[i].Timestamp = now
	}

	s.mu.Lock()
	s.scenarios = append(s.scenarios, scenarios...)
	if len(s.scenarios) > maxScenarios {
		s.scenarios = s.scenarios[len(s.scenarios)-maxScenarios:]
	}
	s.current.Scenarios = append(s.current.Scenarios, scenarios...)
	s.mu.Unlock()

	log.Printf("[DREAM] Generated %d scenarios", len(scenarios))
	return scenarios
}

// extractInsights draws conclusions from the scenarios and persists the
// valuable ones into the memory store.
func (s *System) extractInsights(ctx context.Context, scenarios []genai.Scenario) {
	insights, err := s.gen.Insights(ctx, scenarios)
	if err != nil {
		log.Printf("[DREAM] Insight generation failed: %v", err)
		return
	}

	now := s.clock()
	dreamID := s.currentID()
	for i := range insights {
		insights[i].ID = uuid.NewString()
		insights[i].Timestamp = now
	}

	s.mu.Lock()
	s.insights = append(s.insights, insights...)
	if len(s.insights) > maxInsights {
		s.insights = s.insights[len(s.insights)-maxInsights:]
	}
	s.current.Insights = append(s.current.Insights, insights...)
	s.mu.Unlock()

	for _, insight := range insights {
		if insight.Value <= 0.6 {
			continue
		}
		s.store.AddInsight(insight.Text, insight.Value, map[string]any{
			"dream_id":    dreamID,
			"application": insight.Application,
		})
	}
	log.Printf("[DREAM] Generated %d insights (stage value %.2f)", len(insights), insightValue(insights))
}

// enterStage records a stage transition on the current record.
func (s *System) enterStage(stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stage = stage
	s.current.Stages = append(s.current.Stages, StageEvent{
		Stage:     stage,
		Timestamp: s.clock(),
	})
}

// terminate marks the current cycle as finished early.
func (s *System) terminate(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.EarlyTermination = true
	s.current.TerminationReason = reason
	log.Printf("[DREAM] Cycle %d terminating early: %s", s.current.ID, reason)
}

// finalize closes out the cycle: duration is stamped, the record joins
// the history, and the system returns to idle.
func (s *System) finalize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	if s.current != nil {
		s.current.Duration = now.Sub(s.current.StartedAt)
		s.records = append(s.records, cloneRecord(*s.current))
		if len(s.records) > maxRecords {
			s.records = s.records[len(s.records)-maxRecords:]
		}
		log.Printf("[DREAM] Cycle %d finished in %s (%d consolidations, %d scenarios, %d insights)",
			s.current.ID, s.current.Duration,
			len(s.current.Consolidations), len(s.current.Scenarios), len(s.current.Insights))
	}
	s.current = nil
	s.stage = StageIdle
	s.dreaming = false
	s.lastDream = now
}

func (s *System) currentID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return 0
	}
	return s.current.ID
}
