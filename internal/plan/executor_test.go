package plan

import (
	"context"
	"testing"
	"time"

	"github.com/mwaldron/aura/internal/clock"
	"github.com/mwaldron/aura/internal/store"
	"github.com/mwaldron/aura/internal/tool"
)

var planNow = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store    *store.Store
	clk      *clock.Fake
	planner  *Planner
	executor *Executor
	tools    *tool.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	clk := clock.NewFake(planNow)
	tools := tool.NewRegistry(st, clk)
	if err := tool.RegisterBuiltins(tools, st, clk); err != nil {
		t.Fatal(err)
	}
	dispatcher := NewDispatcher(tools, st, clk)
	executor := NewExecutor(st, clk, dispatcher, 3, time.Minute)
	planner := NewPlanner(st, clk, dispatcher, 3)
	return &fixture{store: st, clk: clk, planner: planner, executor: executor, tools: tools}
}

func TestDependentPlanCompletesInOneTick(t *testing.T) {
	f := newFixture(t)
	p, err := f.planner.Create("smoke", 1, []StepSpec{
		{ActionType: "noop"},
		{ActionType: "noop", DependsOn: []int{0}},
		{ActionType: "noop", DependsOn: []int{0}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := f.executor.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}

	got, err := f.store.GetPlan(p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != store.PlanCompleted {
		t.Errorf("Expected plan completed after one tick, got %s", got.Status)
	}
	if got.CompletedSteps != 3 {
		t.Errorf("Expected completed_steps 3, got %d", got.CompletedSteps)
	}

	steps, _ := f.store.StepsForPlan(p.ID)
	for _, s := range steps {
		if s.Status != store.StepCompleted {
			t.Errorf("Step %d should be completed, got %s", s.StepOrder, s.Status)
		}
		if s.CompletedAt == nil {
			t.Errorf("Step %d missing completion time", s.StepOrder)
		}
	}
	// The dependent steps completed no earlier than their dependency
	if steps[1].CompletedAt.Before(*steps[0].CompletedAt) {
		t.Error("Dependent step finished before its dependency")
	}
}

func TestDependencyGating(t *testing.T) {
	f := newFixture(t)
	// Step 1 fails (unknown action), step 2 depends on it
	p, err := f.planner.Create("gated", 1, []StepSpec{
		{ActionType: "does_not_exist"},
		{ActionType: "noop", DependsOn: []int{0}},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Burn through retries across ticks
	for i := 0; i < 4; i++ {
		if err := f.executor.Tick(context.Background()); err != nil {
			t.Fatal(err)
		}
		f.clk.Advance(time.Minute)
	}

	got, _ := f.store.GetPlan(p.ID)
	if got.Status != store.PlanFailed {
		t.Errorf("Expected plan failed after retries exhausted, got %s", got.Status)
	}
	steps, _ := f.store.StepsForPlan(p.ID)
	if steps[0].Status != store.StepFailed {
		t.Errorf("Expected first step failed, got %s", steps[0].Status)
	}
	if steps[0].RetryCount != 4 {
		t.Errorf("Expected 4 attempts recorded, got %d", steps[0].RetryCount)
	}
	if steps[1].Status != store.StepPending {
		t.Errorf("Gated step should never run, got %s", steps[1].Status)
	}
}

func TestOptionalStepSkips(t *testing.T) {
	f := newFixture(t)
	p, err := f.planner.Create("optional", 1, []StepSpec{
		{ActionType: "does_not_exist", Optional: true},
		{ActionType: "noop", DependsOn: []int{0}},
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		if err := f.executor.Tick(context.Background()); err != nil {
			t.Fatal(err)
		}
		f.clk.Advance(time.Minute)
	}

	got, _ := f.store.GetPlan(p.ID)
	if got.Status != store.PlanCompleted {
		t.Errorf("Expected plan completed with skipped optional step, got %s", got.Status)
	}
	steps, _ := f.store.StepsForPlan(p.ID)
	if steps[0].Status != store.StepSkipped {
		t.Errorf("Expected optional step skipped, got %s", steps[0].Status)
	}
	if steps[1].Status != store.StepCompleted {
		t.Errorf("Expected dependent step completed after skip, got %s", steps[1].Status)
	}
}

func TestCycleRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.planner.Create("cyclic", 1, []StepSpec{
		{ActionType: "noop", DependsOn: []int{1}},
		{ActionType: "noop", DependsOn: []int{0}},
	})
	if err == nil {
		t.Fatal("Expected cyclic dependency to be rejected")
	}
}

func TestPauseBlocksProgress(t *testing.T) {
	f := newFixture(t)
	p, err := f.planner.Create("paused", 1, []StepSpec{{ActionType: "noop"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.planner.Pause(p.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.executor.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	got, _ := f.store.GetPlan(p.ID)
	if got.Status != store.PlanPaused || got.CompletedSteps != 0 {
		t.Errorf("Paused plan should not progress, got %s %d", got.Status, got.CompletedSteps)
	}

	if err := f.planner.Resume(p.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.executor.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	got, _ = f.store.GetPlan(p.ID)
	if got.Status != store.PlanCompleted {
		t.Errorf("Resumed plan should complete, got %s", got.Status)
	}
}

func TestExpressStepInjectsThought(t *testing.T) {
	f := newFixture(t)
	_, err := f.planner.Create("speak", 1, []StepSpec{{
		ActionType:    "express",
		ActionPayload: map[string]any{"content": "plan says hello", "category": "reminder"},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.executor.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	thoughts, err := f.store.ActiveThoughts(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(thoughts) != 1 || thoughts[0].Content != "plan says hello" {
		t.Fatalf("Expected injected thought, got %+v", thoughts)
	}
}

func TestRunawayStepAborted(t *testing.T) {
	f := newFixture(t)
	p, err := f.planner.Create("runaway", 1, []StepSpec{{ActionType: "noop"}})
	if err != nil {
		t.Fatal(err)
	}
	steps, _ := f.store.StepsForPlan(p.ID)
	if err := f.store.StartStep(steps[0].ID, planNow.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}

	if err := f.executor.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	steps, _ = f.store.StepsForPlan(p.ID)
	if steps[0].Status != store.StepFailed {
		t.Errorf("Expected runaway step failed, got %s", steps[0].Status)
	}
}
