// Package plan executes multi-step plans: DAGs of steps ordered by
// step_order, with dependency gating, bounded retries, and optional steps
// that skip instead of failing the plan.
package plan

import (
	"fmt"

	"github.com/dominikbraun/graph"

	"github.com/mwaldron/aura/internal/clock"
	"github.com/mwaldron/aura/internal/store"
)

// StepSpec describes one step of a new plan.
type StepSpec struct {
	ActionType    string
	ActionPayload map[string]any
	DependsOn     []int // indices into the spec slice
	Optional      bool
}

// Planner creates and executes plans.
type Planner struct {
	store      *store.Store
	clk        clock.Clock
	dispatcher *Dispatcher
	maxRetries int
}

// NewPlanner creates a planner.
func NewPlanner(st *store.Store, clk clock.Clock, dispatcher *Dispatcher, maxRetries int) *Planner {
	return &Planner{store: st, clk: clk, dispatcher: dispatcher, maxRetries: maxRetries}
}

// Create validates the step DAG and persists the plan. Step order is the
// topological label: dependencies always point at strictly smaller orders.
func (p *Planner) Create(name string, priority int, specs []StepSpec) (*store.Plan, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("plan needs at least one step")
	}

	// Cycle detection via the graph library: PreventCycles rejects any edge
	// that would close a loop.
	g := graph.New(graph.IntHash, graph.Directed(), graph.PreventCycles())
	for i := range specs {
		if err := g.AddVertex(i); err != nil {
			return nil, err
		}
	}
	for i, spec := range specs {
		for _, dep := range spec.DependsOn {
			if dep < 0 || dep >= len(specs) {
				return nil, fmt.Errorf("step %d depends on unknown step %d", i, dep)
			}
			if err := g.AddEdge(dep, i); err != nil {
				return nil, fmt.Errorf("step dependency %d->%d: %w", dep, i, err)
			}
		}
	}
	order, err := graph.TopologicalSort(g)
	if err != nil {
		return nil, fmt.Errorf("plan is not a DAG: %w", err)
	}

	// Assign step_order from the topological position so dependencies always
	// have strictly smaller orders regardless of spec ordering.
	position := make(map[int]int, len(order))
	for pos, idx := range order {
		position[idx] = pos + 1
	}

	steps := make([]*store.PlanStep, len(specs))
	for i, spec := range specs {
		steps[i] = &store.PlanStep{
			StepOrder:     position[i],
			ActionType:    spec.ActionType,
			ActionPayload: spec.ActionPayload,
			Optional:      spec.Optional,
			Status:        store.StepPending,
		}
	}
	plan := &store.Plan{Name: name, Priority: priority, Status: store.PlanPending}
	// Pre-assign ids so dependency references can be resolved before insert.
	for i := range steps {
		steps[i].ID = newStepID()
	}
	for i, spec := range specs {
		for _, dep := range spec.DependsOn {
			steps[i].Dependencies = append(steps[i].Dependencies, steps[dep].ID)
		}
	}

	if err := p.store.CreatePlan(plan, steps, p.clk.Now()); err != nil {
		return nil, err
	}
	return plan, nil
}

// Pause prevents further transitions of a plan.
func (p *Planner) Pause(planID string) error {
	return p.store.SetPlanStatus(planID, store.PlanPaused, p.clk.Now())
}

// Resume re-enters a paused plan into normal scheduling.
func (p *Planner) Resume(planID string) error {
	current, err := p.store.GetPlan(planID)
	if err != nil {
		return err
	}
	if current.Status != store.PlanPaused {
		return fmt.Errorf("plan %s is not paused", planID)
	}
	status := store.PlanPending
	if current.CompletedSteps > 0 {
		status = store.PlanActive
	}
	return p.store.SetPlanStatus(planID, status, p.clk.Now())
}
