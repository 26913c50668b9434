// Package cycle is the consciousness loop: SENSE → PREDICT → ACT → LEARN on
// a fixed cadence, one cycle in flight at a time. Phase errors are caught at
// phase boundaries; only store loss and invariant violations escalate.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mwaldron/aura/internal/budget"
	"github.com/mwaldron/aura/internal/clock"
	"github.com/mwaldron/aura/internal/codelets"
	"github.com/mwaldron/aura/internal/config"
	"github.com/mwaldron/aura/internal/consolidate"
	"github.com/mwaldron/aura/internal/evolve"
	"github.com/mwaldron/aura/internal/express"
	"github.com/mwaldron/aura/internal/logging"
	"github.com/mwaldron/aura/internal/pattern"
	"github.com/mwaldron/aura/internal/plan"
	"github.com/mwaldron/aura/internal/reward"
	"github.com/mwaldron/aura/internal/salience"
	"github.com/mwaldron/aura/internal/store"
	"github.com/mwaldron/aura/internal/thought"
)

// InvariantViolation aborts the current cycle when wrapped in a phase error.
type InvariantViolation struct {
	Check  string
	Detail string
}

func (v *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation [%s]: %s", v.Check, v.Detail)
}

// Driver sequences the four phases under a shared clock and care policy.
type Driver struct {
	store        *store.Store
	clk          clock.Clock
	registry     *codelets.Registry
	scorer       *salience.Scorer
	engine       *thought.Engine
	router       *express.Router
	patterns     *pattern.Engine
	rewards      *reward.Aggregator
	tuner        *evolve.Tuner
	consolidator *consolidate.Consolidator
	executor     *plan.Executor
	load         *budget.LoadWatcher // nil disables pressure shedding
	health       *Health

	cfg    *config.Config
	reload chan *config.Config

	consolidationSchedule cron.Schedule
	evolutionSchedule     cron.Schedule
	nextConsolidation     time.Time
	nextEvolution         time.Time

	storeRetries int
}

// Deps bundles the driver's collaborators.
type Deps struct {
	Store        *store.Store
	Clock        clock.Clock
	Registry     *codelets.Registry
	Scorer       *salience.Scorer
	Engine       *thought.Engine
	Router       *express.Router
	Patterns     *pattern.Engine
	Rewards      *reward.Aggregator
	Tuner        *evolve.Tuner
	Consolidator *consolidate.Consolidator
	Executor     *plan.Executor
	Load         *budget.LoadWatcher
}

// New creates a cycle driver.
func New(cfg *config.Config, d Deps) (*Driver, error) {
	drv := &Driver{
		store:        d.Store,
		clk:          d.Clock,
		registry:     d.Registry,
		scorer:       d.Scorer,
		engine:       d.Engine,
		router:       d.Router,
		patterns:     d.Patterns,
		rewards:      d.Rewards,
		tuner:        d.Tuner,
		consolidator: d.Consolidator,
		executor:     d.Executor,
		load:         d.Load,
		health:       NewHealth(),
		cfg:          cfg,
		reload:       make(chan *config.Config, 1),
	}
	if err := drv.parseSchedules(cfg); err != nil {
		return nil, err
	}
	now := d.Clock.Now()
	drv.nextConsolidation = drv.consolidationSchedule.Next(now)
	drv.nextEvolution = drv.evolutionSchedule.Next(now)
	return drv, nil
}

func (d *Driver) parseSchedules(cfg *config.Config) error {
	cs, err := cron.ParseStandard(cfg.Consolidation.Schedule)
	if err != nil {
		return fmt.Errorf("consolidation.schedule: %w", err)
	}
	es, err := cron.ParseStandard(cfg.Evolution.Schedule)
	if err != nil {
		return fmt.Errorf("evolution.schedule: %w", err)
	}
	d.consolidationSchedule = cs
	d.evolutionSchedule = es
	return nil
}

// Health returns the health snapshot holder.
func (d *Driver) Health() *Health { return d.health }

// Reload queues a fresh configuration; it is swapped in atomically between
// cycles.
func (d *Driver) Reload(cfg *config.Config) {
	select {
	case d.reload <- cfg:
	default:
		// a pending reload is already queued; the newest wins next cycle
		<-d.reload
		d.reload <- cfg
	}
}

// Run loops until the context is cancelled. Cycles never overlap.
func (d *Driver) Run(ctx context.Context) error {
	period := time.Duration(d.cfg.Cycle.PeriodSeconds) * time.Second
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	logging.Info("cycle", "driver started (period %s)", period)
	for {
		select {
		case <-ctx.Done():
			logging.Info("cycle", "driver stopped")
			return ctx.Err()
		case cfg := <-d.reload:
			if err := d.applyReload(cfg); err != nil {
				logging.Warn("cycle", "config reload rejected: %v", err)
			} else {
				ticker.Reset(time.Duration(d.cfg.Cycle.PeriodSeconds) * time.Second)
				logging.Info("cycle", "configuration reloaded")
			}
		case <-ticker.C:
			d.runCycle(ctx)
		}
	}
}

func (d *Driver) applyReload(cfg *config.Config) error {
	if err := d.parseSchedules(cfg); err != nil {
		return err
	}
	d.cfg = cfg
	d.scorer.SetWeights(cfg.Salience.Weights)
	d.router.SetThresholds(cfg.Express.Threshold, cfg.Express.QualityThreshold)
	return nil
}

// runCycle executes one SENSE→PREDICT→ACT→LEARN pass. The resulting health
// snapshot is persisted on every exit path so out-of-process dashboards can
// read it.
func (d *Driver) runCycle(ctx context.Context) {
	now := d.clk.Now()
	d.health.beginCycle(now)
	defer d.persistHealth()

	if err := d.ensureStore(ctx); err != nil {
		d.health.endCycle(d.clk.Now(), false)
		return
	}

	budgetMS := d.cfg.Cycle.PhaseBudgetMS
	if d.load != nil && d.load.Pressured() {
		budgetMS /= 2
		logging.Debug("cycle", "load pressure: phase budgets halved to %dms", budgetMS)
	}
	phaseBudget := time.Duration(budgetMS) * time.Millisecond

	ok := true
	for _, phase := range []struct {
		name string
		fn   func(context.Context) error
	}{
		{"SENSE", d.phaseSense},
		{"PREDICT", d.phasePredict},
		{"ACT", d.phaseAct},
		{"LEARN", d.phaseLearn},
	} {
		phaseCtx, cancel := context.WithTimeout(ctx, phaseBudget)
		start := d.clk.Now()
		err := phase.fn(phaseCtx)
		cancel()

		report := PhaseReport{Name: phase.name, Duration: d.clk.Now().Sub(start)}
		if err != nil {
			var violation *InvariantViolation
			switch {
			case errors.As(err, &violation):
				// Fatal to the current cycle; the next cycle continues.
				logging.Warn("cycle", "%s aborted cycle: %v", phase.name, err)
				report.Err = err.Error()
				d.health.recordPhase(report)
				d.health.endCycle(d.clk.Now(), false)
				return
			case errors.Is(err, context.DeadlineExceeded):
				// Soft budget: pending work resumes next cycle.
				logging.Info("cycle", "%s exceeded phase budget, resuming next cycle", phase.name)
				report.Degraded = true
			case errors.Is(err, context.Canceled):
				d.health.recordPhase(report)
				d.health.endCycle(d.clk.Now(), false)
				return
			default:
				logging.Warn("cycle", "%s degraded: %v", phase.name, err)
				report.Err = err.Error()
				report.Degraded = true
				ok = false
			}
		}
		d.health.recordPhase(report)
	}
	d.health.endCycle(d.clk.Now(), ok)
}

// persistHealth writes the current health snapshot to the store. Failure is
// non-fatal: a store outage already shows up as the degraded flag.
func (d *Driver) persistHealth() {
	snap := d.health.Snapshot()
	row := &store.HealthSnapshot{
		OK:            snap.OK,
		DegradedStore: snap.DegradedStore,
		CycleCount:    snap.CycleCount,
		CycleStart:    snap.LastCycleStart,
		CycleEnd:      snap.LastCycleEnd,
	}
	for _, p := range snap.Phases {
		row.Phases = append(row.Phases, store.PhaseResult{
			Name:       p.Name,
			DurationMS: p.Duration.Milliseconds(),
			Error:      p.Err,
			Degraded:   p.Degraded,
		})
	}
	if err := d.store.InsertHealthSnapshot(row, d.clk.Now()); err != nil {
		logging.Debug("cycle", "health snapshot not persisted: %v", err)
		return
	}
	if err := d.store.PruneHealthSnapshots(500); err != nil {
		logging.Debug("cycle", "health snapshot prune: %v", err)
	}
}

// ensureStore verifies store reachability, backing off exponentially. After
// the retry budget the driver enters a degraded state that only serves
// reads until connectivity returns.
func (d *Driver) ensureStore(ctx context.Context) error {
	const maxRetries = 5
	backoff := 200 * time.Millisecond
	for {
		if err := d.store.Ping(); err == nil {
			if d.storeRetries > 0 || d.health.Snapshot().DegradedStore {
				logging.Info("cycle", "store connectivity restored")
			}
			d.storeRetries = 0
			d.health.setDegradedStore(false)
			return nil
		} else if d.storeRetries >= maxRetries {
			d.health.setDegradedStore(true)
			logging.Warn("cycle", "store unreachable after %d retries, degraded (reads only): %v", d.storeRetries, err)
			return err
		} else {
			d.storeRetries++
			logging.Warn("cycle", "store unreachable (retry %d/%d in %s): %v", d.storeRetries, maxRetries, backoff, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
