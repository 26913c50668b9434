package store

import (
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testNow = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func TestStimulusDedup(t *testing.T) {
	s := testStore(t)

	batch := []*Stimulus{
		{Type: StimulusTemporal, Content: "morning has started", Source: "temporal"},
		{Type: StimulusTemporal, Content: "morning has started", Source: "temporal"},
	}
	inserted, err := s.InsertStimuli(batch, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if len(inserted) != 1 {
		t.Errorf("Expected 1 inserted after in-batch dedup, got %d", len(inserted))
	}

	// Same content again while unacted: deduplicated to the existing row
	again, err := s.InsertStimuli([]*Stimulus{
		{Type: StimulusTemporal, Content: "morning has started", Source: "temporal"},
	}, testNow.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Errorf("Expected 0 inserted for pending duplicate, got %d", len(again))
	}

	// After acting, the same content may recur
	if err := s.MarkFiltered(inserted[0].ID, "test", testNow); err != nil {
		t.Fatal(err)
	}
	again, err = s.InsertStimuli([]*Stimulus{
		{Type: StimulusTemporal, Content: "morning has started", Source: "temporal"},
	}, testNow.Add(2*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 1 {
		t.Errorf("Expected re-insert after acted_upon, got %d", len(again))
	}
}

func TestTopUnactedOrdering(t *testing.T) {
	s := testStore(t)
	batch := []*Stimulus{
		{Type: StimulusGoal, Content: "low", Source: "goal"},
		{Type: StimulusGoal, Content: "high", Source: "goal"},
		{Type: StimulusGoal, Content: "mid", Source: "goal"},
	}
	inserted, err := s.InsertStimuli(batch, testNow)
	if err != nil {
		t.Fatal(err)
	}
	scores := map[string]float64{"low": 0.2, "high": 0.9, "mid": 0.5}
	for _, st := range inserted {
		if err := s.UpdateSalience(st.ID, scores[st.Content], nil, nil); err != nil {
			t.Fatal(err)
		}
	}
	top, err := s.TopUnactedStimuli(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 2 || top[0].Content != "high" || top[1].Content != "mid" {
		t.Errorf("Unexpected top-k ordering: %+v", top)
	}
}

func TestThoughtMarksStimuliActedUpon(t *testing.T) {
	s := testStore(t)
	inserted, err := s.InsertStimuli([]*Stimulus{
		{Type: StimulusEmotional, Content: "anxious", Source: "emotional"},
	}, testNow)
	if err != nil {
		t.Fatal(err)
	}

	thought := &Thought{
		Type: ThoughtSystem1, Category: "care_message",
		Content: "I'm here if talking would help", StimulusIDs: []string{inserted[0].ID},
		MotivationScore: 0.7,
	}
	if err := s.InsertThought(thought, testNow); err != nil {
		t.Fatal(err)
	}

	st, err := s.GetStimulus(inserted[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if !st.ActedUpon {
		t.Error("Expected stimulus acted_upon after thought insert")
	}
	n, err := s.ThoughtsReferencingStimulus(inserted[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Expected 1 referencing thought, got %d", n)
	}
}

func TestEmissionInvariant(t *testing.T) {
	s := testStore(t)
	thought := &Thought{Type: ThoughtSystem1, Category: "reminder", Content: "drink water", MotivationScore: 0.8}
	if err := s.InsertThought(thought, testNow); err != nil {
		t.Fatal(err)
	}

	attempt := &ExpressionAttempt{ThoughtID: thought.ID, Category: "reminder", Channel: "messenger", MessageSent: thought.Content}
	if err := s.RecordEmission(attempt, testNow); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetThought(thought.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != ThoughtExpressed || got.ExpressedVia != "messenger" {
		t.Errorf("Expected expressed via messenger, got %s/%s", got.Status, got.ExpressedVia)
	}

	// A second successful attempt for the same thought must be rejected.
	dup := &ExpressionAttempt{ThoughtID: thought.ID, Category: "reminder", Channel: "messenger", MessageSent: thought.Content}
	if err := s.RecordEmission(dup, testNow.Add(time.Minute)); err == nil {
		t.Error("Expected second emission for same thought to fail")
	}

	success, err := s.SuccessfulAttemptForThought(thought.ID)
	if err != nil {
		t.Fatal(err)
	}
	if success.ID != attempt.ID {
		t.Error("Expected the single successful attempt to be the first one")
	}
}

func TestDuplicateWindowQuery(t *testing.T) {
	s := testStore(t)
	thought := &Thought{Type: ThoughtSystem1, Category: "reminder", Content: "Remember   to Hydrate", MotivationScore: 0.8}
	if err := s.InsertThought(thought, testNow); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordEmission(&ExpressionAttempt{
		ThoughtID: thought.ID, Category: "reminder", Channel: "messenger", MessageSent: thought.Content,
	}, testNow); err != nil {
		t.Fatal(err)
	}

	// Normalization makes casing and spacing irrelevant
	dup, err := s.HasRecentSuccess("remember to hydrate", testNow.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if !dup {
		t.Error("Expected duplicate within window")
	}
	dup, _ = s.HasRecentSuccess("remember to hydrate", testNow.Add(time.Minute))
	if dup {
		t.Error("Expected no duplicate once the window excludes the emission")
	}
}

func TestDailyCountsAndCooldownQueries(t *testing.T) {
	s := testStore(t)
	for i := 0; i < 2; i++ {
		thought := &Thought{Type: ThoughtSystem1, Category: "care_message", Content: "note " + string(rune('a'+i)), MotivationScore: 0.8}
		if err := s.InsertThought(thought, testNow); err != nil {
			t.Fatal(err)
		}
		if err := s.RecordEmission(&ExpressionAttempt{
			ThoughtID: thought.ID, Category: "care_message", Channel: "messenger", MessageSent: thought.Content,
		}, testNow.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatal(err)
		}
	}

	dayStart := time.Date(testNow.Year(), testNow.Month(), testNow.Day(), 0, 0, 0, 0, time.UTC)
	n, err := s.CountSuccessesBetween("care_message", dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("Expected 2 successes today, got %d", n)
	}

	last, err := s.LastSuccessAt("care_message")
	if err != nil {
		t.Fatal(err)
	}
	if last == nil || !last.Equal(testNow.Add(time.Hour)) {
		t.Errorf("Expected last success at +1h, got %v", last)
	}
}

func TestQueueLifecycle(t *testing.T) {
	s := testStore(t)
	thought := &Thought{Type: ThoughtSystem2, Category: "memory", Content: "a quiet observation", MotivationScore: 0.7}
	if err := s.InsertThought(thought, testNow); err != nil {
		t.Fatal(err)
	}
	if err := s.Enqueue(&QueuedExpression{ThoughtID: thought.ID, Category: "memory", Message: thought.Content}, testNow); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetThought(thought.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != ThoughtExpressed || got.ExpressedVia != "ui" {
		t.Errorf("Enqueue should express via ui, got %s/%s", got.Status, got.ExpressedVia)
	}

	// The UI delivery is recorded as a successful attempt, keeping the
	// one-success-per-expressed invariant and feeding reward aggregation.
	attempt, err := s.SuccessfulAttemptForThought(thought.ID)
	if err != nil {
		t.Fatal(err)
	}
	if attempt.Channel != "ui" || attempt.MotivationScore != thought.MotivationScore {
		t.Errorf("Expected ui attempt carrying motivation, got %+v", attempt)
	}

	pending, err := s.PendingQueue(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending, got %d", len(pending))
	}
	if err := s.MarkQueueShown(pending[0].ID, testNow.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	pending, _ = s.PendingQueue(10)
	if len(pending) != 0 {
		t.Errorf("Expected empty queue after shown, got %d", len(pending))
	}

	// A second enqueue for an already-expressed thought is rejected
	if err := s.Enqueue(&QueuedExpression{ThoughtID: thought.ID, Category: "memory", Message: "again"}, testNow); err == nil {
		t.Error("Expected re-enqueue of expressed thought to fail")
	}

	// Expiry only touches pending rows
	stale := &Thought{Type: ThoughtSystem2, Category: "memory", Content: "a stale observation", MotivationScore: 0.7}
	if err := s.InsertThought(stale, testNow); err != nil {
		t.Fatal(err)
	}
	if err := s.Enqueue(&QueuedExpression{ThoughtID: stale.ID, Category: "memory", Message: "stale"}, testNow); err != nil {
		t.Fatal(err)
	}
	expired, err := s.ExpireQueued(testNow.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if expired != 1 {
		t.Errorf("Expected 1 expired, got %d", expired)
	}
}

func TestConsolidationDedup(t *testing.T) {
	s := testStore(t)
	entry := func() *ConsolidationEntry {
		return &ConsolidationEntry{
			SourceType: "conversation", SourceCount: 3, TopicCluster: "training",
			Abstraction: "Training comes up daily", TargetType: "knowledge_node",
			Confidence: 0.8, SourceIDs: []string{"b", "a", "c"},
		}
	}
	inserted, err := s.InsertConsolidation(entry(), testNow)
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Fatal("Expected first consolidation to insert")
	}

	// Same source set in a different order is the same cluster
	second := entry()
	second.SourceIDs = []string{"c", "b", "a"}
	inserted, err = s.InsertConsolidation(second, testNow.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("Expected duplicate source set to be a no-op")
	}
	n, _ := s.CountConsolidations()
	if n != 1 {
		t.Errorf("Expected 1 consolidation row, got %d", n)
	}
}

func TestPlanCounters(t *testing.T) {
	s := testStore(t)
	p := &Plan{Name: "check in"}
	steps := []*PlanStep{
		{ID: "s1", StepOrder: 1, ActionType: "noop"},
		{ID: "s2", StepOrder: 2, ActionType: "noop", Dependencies: []string{"s1"}},
	}
	if err := s.CreatePlan(p, steps, testNow); err != nil {
		t.Fatal(err)
	}

	if err := s.StartStep("s1", testNow); err != nil {
		t.Fatal(err)
	}
	if err := s.FinishStep("s1", StepCompleted, nil, 0, testNow); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetPlan(p.ID)
	if got.Status != PlanActive || got.CompletedSteps != 1 {
		t.Errorf("Expected active 1/2, got %s %d", got.Status, got.CompletedSteps)
	}

	if err := s.StartStep("s2", testNow); err != nil {
		t.Fatal(err)
	}
	if err := s.FinishStep("s2", StepSkipped, nil, 0, testNow); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetPlan(p.ID)
	if got.Status != PlanCompleted || got.CompletedSteps != 2 {
		t.Errorf("Expected completed 2/2, got %s %d", got.Status, got.CompletedSteps)
	}
}

func TestPlanRejectsForwardDependency(t *testing.T) {
	s := testStore(t)
	p := &Plan{Name: "bad"}
	steps := []*PlanStep{
		{ID: "s1", StepOrder: 1, ActionType: "noop", Dependencies: []string{"s2"}},
		{ID: "s2", StepOrder: 2, ActionType: "noop"},
	}
	if err := s.CreatePlan(p, steps, testNow); err == nil {
		t.Fatal("Expected forward dependency to be rejected")
	}
}

func TestToolCounters(t *testing.T) {
	s := testStore(t)
	if err := s.UpsertTool(&ToolDescriptor{Name: "noop", Category: "internal", Enabled: true}); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordToolExecution(&ToolExecution{ToolName: "noop", DurationMS: 3, Success: true}, testNow); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordToolExecution(&ToolExecution{ToolName: "noop", DurationMS: 5, Success: false}, testNow); err != nil {
		t.Fatal(err)
	}
	tool, err := s.GetTool("noop")
	if err != nil {
		t.Fatal(err)
	}
	if tool.TotalExecutions != 2 || tool.TotalSuccesses != 1 {
		t.Errorf("Expected 2/1 counters, got %d/%d", tool.TotalExecutions, tool.TotalSuccesses)
	}

	// Re-registration preserves counters
	if err := s.UpsertTool(&ToolDescriptor{Name: "noop", Category: "internal", Enabled: true}); err != nil {
		t.Fatal(err)
	}
	tool, _ = s.GetTool("noop")
	if tool.TotalExecutions != 2 {
		t.Errorf("Expected counters preserved, got %d", tool.TotalExecutions)
	}
}

func TestPredictionVerificationIdempotent(t *testing.T) {
	s := testStore(t)
	pred := &Prediction{
		Type: "time_of_day", Text: "active around 09:00", Confidence: 0.8,
		PredictedTime: testNow.Add(-time.Hour), BasedOnPattern: "p1",
	}
	if _, err := s.InsertPrediction(pred, testNow.Add(-2*time.Hour)); err != nil {
		t.Fatal(err)
	}

	due, err := s.DuePredictions(testNow, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 {
		t.Fatalf("Expected 1 due prediction, got %d", len(due))
	}
	if err := s.MarkPredictionVerified(due[0].ID, true, testNow); err != nil {
		t.Fatal(err)
	}

	due, _ = s.DuePredictions(testNow, 10)
	if len(due) != 0 {
		t.Errorf("Expected no due predictions after verification, got %d", len(due))
	}

	acc, err := s.AccuracyByType()
	if err != nil {
		t.Fatal(err)
	}
	if len(acc) != 1 || acc[0].Accuracy != 1 {
		t.Errorf("Expected accuracy 1.0 for one correct prediction, got %+v", acc)
	}
}

func TestHealthSnapshotLatest(t *testing.T) {
	s := testStore(t)
	if snap, err := s.LatestHealthSnapshot(); err != nil || snap != nil {
		t.Fatalf("Expected no snapshot on fresh store, got %+v err %v", snap, err)
	}

	for i := 1; i <= 3; i++ {
		if err := s.InsertHealthSnapshot(&HealthSnapshot{
			OK: i != 2, CycleCount: uint64(i),
			CycleStart: testNow.Add(time.Duration(i) * time.Minute),
			CycleEnd:   testNow.Add(time.Duration(i)*time.Minute + time.Second),
			Phases:     []PhaseResult{{Name: "SENSE", DurationMS: 12}},
		}, testNow.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatal(err)
		}
	}

	snap, err := s.LatestHealthSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	if snap == nil || snap.CycleCount != 3 || !snap.OK {
		t.Errorf("Expected latest snapshot (cycle 3, ok), got %+v", snap)
	}
	if len(snap.Phases) != 1 || snap.Phases[0].Name != "SENSE" {
		t.Errorf("Expected phase results round-tripped, got %+v", snap.Phases)
	}

	if err := s.PruneHealthSnapshots(1); err != nil {
		t.Fatal(err)
	}
	snap, _ = s.LatestHealthSnapshot()
	if snap == nil || snap.CycleCount != 3 {
		t.Errorf("Prune should keep the newest snapshot, got %+v", snap)
	}
}

func TestCareStateValidity(t *testing.T) {
	s := testStore(t)
	if err := s.InsertCareState(&CareState{
		Energy: 0.6, Stress: 0.3, Sleep: 0.8, Fatigue: 0.2, Wellbeing: 0.7,
		DetectedState: "relaxed", ValidFrom: testNow.Add(-time.Hour), ValidUntil: testNow.Add(time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	state, err := s.CurrentCareState(testNow)
	if err != nil {
		t.Fatal(err)
	}
	if state == nil || state.DetectedState != "relaxed" {
		t.Errorf("Expected relaxed snapshot, got %+v", state)
	}

	state, _ = s.CurrentCareState(testNow.Add(2 * time.Hour))
	if state != nil {
		t.Error("Expected no snapshot outside validity interval")
	}
}

func TestEvolveThought(t *testing.T) {
	s := testStore(t)
	inserted, err := s.InsertStimuli([]*Stimulus{{Type: StimulusGoal, Content: "goal slip", Source: "goal"}}, testNow)
	if err != nil {
		t.Fatal(err)
	}
	parent := &Thought{Type: ThoughtSystem2, Category: "reminder", Content: "rough draft", StimulusIDs: []string{inserted[0].ID}, MotivationScore: 0.6}
	if err := s.InsertThought(parent, testNow); err != nil {
		t.Fatal(err)
	}
	child := &Thought{Type: ThoughtSystem2, Category: "reminder", Content: "sharper phrasing", StimulusIDs: []string{inserted[0].ID}, MotivationScore: 0.8}
	if err := s.EvolveThought(parent.ID, child, testNow.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}

	gotParent, _ := s.GetThought(parent.ID)
	if gotParent.Status != ThoughtEvolved {
		t.Errorf("Expected parent evolved, got %s", gotParent.Status)
	}
	gotChild, _ := s.GetThought(child.ID)
	if gotChild.EvolvedFrom != parent.ID {
		t.Errorf("Expected child evolved_from parent, got %q", gotChild.EvolvedFrom)
	}
}
