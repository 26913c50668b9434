package plan

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mwaldron/aura/internal/clock"
	"github.com/mwaldron/aura/internal/logging"
	"github.com/mwaldron/aura/internal/store"
	"github.com/mwaldron/aura/internal/tool"
)

func newStepID() string { return uuid.NewString() }

// Dispatcher routes a step's action to its executor: the tool registry for
// registered tool names, or a thought injection for "express" steps (the
// router — the only component allowed to emit — picks the thought up on the
// next ACT phase).
type Dispatcher struct {
	tools *tool.Registry
	store *store.Store
	clk   clock.Clock
}

// NewDispatcher creates the step dispatcher.
func NewDispatcher(tools *tool.Registry, st *store.Store, clk clock.Clock) *Dispatcher {
	return &Dispatcher{tools: tools, store: st, clk: clk}
}

// Dispatch executes one step action and returns its result data.
func (d *Dispatcher) Dispatch(ctx context.Context, actionType string, payload map[string]any) (map[string]any, error) {
	if actionType == "express" {
		content, _ := payload["content"].(string)
		category, _ := payload["category"].(string)
		if content == "" {
			return nil, fmt.Errorf("express step needs content")
		}
		if category == "" {
			category = "reminder"
		}
		t := &store.Thought{
			Type:            store.ThoughtSystem1,
			Category:        category,
			Content:         content,
			MotivationScore: 0.8,
			Motivation:      store.MotivationBreakdown{Relevance: 0.8, Urgency: 0.8, Impact: 0.8, Coherence: 0.8, Originality: 0.8},
			Status:          store.ThoughtActive,
		}
		if err := d.store.InsertThought(t, d.clk.Now()); err != nil {
			return nil, err
		}
		return map[string]any{"thought_id": t.ID}, nil
	}

	if d.tools.Has(actionType) {
		approval, _ := payload["approval_token"].(string)
		return d.tools.Execute(ctx, actionType, payload, tool.ExecuteOptions{ApprovalToken: approval})
	}
	return nil, fmt.Errorf("no executor for action type %q", actionType)
}

// Executor advances plans step by step on each driver tick.
type Executor struct {
	store      *store.Store
	clk        clock.Clock
	dispatcher *Dispatcher
	maxRetries int

	StepTimeout time.Duration
	MaxWall     time.Duration // running steps older than this are aborted
}

// NewExecutor creates the step executor.
func NewExecutor(st *store.Store, clk clock.Clock, dispatcher *Dispatcher, maxRetries int, stepTimeout time.Duration) *Executor {
	return &Executor{
		store:       st,
		clk:         clk,
		dispatcher:  dispatcher,
		maxRetries:  maxRetries,
		StepTimeout: stepTimeout,
		MaxWall:     10 * time.Minute,
	}
}

// Tick aborts runaway steps, then advances every schedulable plan. Steps
// whose dependencies completed earlier in the same tick run in the same
// tick, so a linear plan of cheap steps finishes in one pass.
func (e *Executor) Tick(ctx context.Context) error {
	if err := e.abortStale(); err != nil {
		return err
	}

	plans, err := e.store.PlansByStatus(store.PlanPending, store.PlanActive)
	if err != nil {
		return err
	}
	for _, p := range plans {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.advance(ctx, p); err != nil {
			logging.Warn("plan", "advancing plan %s: %v", p.ID, err)
		}
	}
	return nil
}

// advance runs runnable steps of one plan until no more become runnable.
// Each step runs at most once per tick, so a failing step retries across
// ticks instead of burning its retry budget in one pass.
func (e *Executor) advance(ctx context.Context, p *store.Plan) error {
	attempted := map[string]bool{}
	for {
		steps, err := e.store.StepsForPlan(p.ID)
		if err != nil {
			return err
		}

		terminal := map[string]bool{}
		for _, st := range steps {
			if st.Status == store.StepCompleted || st.Status == store.StepSkipped {
				terminal[st.ID] = true
			}
		}

		progress := false
		for _, st := range steps {
			if st.Status != store.StepPending || attempted[st.ID] {
				continue
			}
			if !depsSatisfied(st, terminal) {
				continue
			}
			attempted[st.ID] = true
			if err := e.runStep(ctx, st); err != nil {
				return err
			}
			progress = true
		}
		if !progress {
			return nil
		}
	}
}

func depsSatisfied(st *store.PlanStep, terminal map[string]bool) bool {
	for _, dep := range st.Dependencies {
		if !terminal[dep] {
			return false
		}
	}
	return true
}

// runStep executes one step with its timeout and records the outcome.
func (e *Executor) runStep(ctx context.Context, st *store.PlanStep) error {
	now := e.clk.Now()
	if err := e.store.StartStep(st.ID, now); err != nil {
		return err
	}

	stepCtx := ctx
	var cancel context.CancelFunc
	if e.StepTimeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, e.StepTimeout)
		defer cancel()
	}

	result, execErr := e.dispatcher.Dispatch(stepCtx, st.ActionType, st.ActionPayload)
	now = e.clk.Now()

	if execErr == nil {
		logging.Debug("plan", "step %s (%s) completed", st.ID, st.ActionType)
		return e.store.FinishStep(st.ID, store.StepCompleted, result, st.RetryCount, now)
	}

	retries := st.RetryCount + 1
	errData := map[string]any{"error": execErr.Error()}
	if retries <= e.maxRetries {
		logging.Info("plan", "step %s failed (attempt %d/%d): %v", st.ID, retries, e.maxRetries, execErr)
		return e.store.FinishStep(st.ID, store.StepPending, errData, retries, now)
	}
	if st.Optional {
		logging.Info("plan", "optional step %s exhausted retries, skipping", st.ID)
		return e.store.FinishStep(st.ID, store.StepSkipped, errData, retries, now)
	}
	logging.Warn("plan", "step %s exhausted retries: %v", st.ID, execErr)
	return e.store.FinishStep(st.ID, store.StepFailed, errData, retries, now)
}

// abortStale fails running steps that exceeded the wall-clock bound.
func (e *Executor) abortStale() error {
	stale, err := e.store.StaleRunningSteps(e.clk.Now().Add(-e.MaxWall))
	if err != nil {
		return err
	}
	for _, st := range stale {
		logging.Warn("plan", "aborting runaway step %s (%s)", st.ID, st.ActionType)
		if err := e.store.FinishStep(st.ID, store.StepFailed,
			map[string]any{"error": "exceeded max wall clock"}, st.RetryCount, e.clk.Now()); err != nil {
			return err
		}
	}
	return nil
}
