package cycle

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mwaldron/aura/internal/codelets"
	"github.com/mwaldron/aura/internal/logging"
	"github.com/mwaldron/aura/internal/store"
)

// codeletParallelism bounds the SENSE worker pool.
const codeletParallelism = 4

// phaseSense invokes due codelets in a bounded pool, persists their output
// in one transaction, and scores the fresh stimuli.
func (d *Driver) phaseSense(ctx context.Context) error {
	now := d.clk.Now()
	due := d.registry.Due(now)
	if len(due) > 0 {
		logging.Debug("cycle", "SENSE: %d codelets due", len(due))
	}

	rc := &codelets.Context{Now: now, Reads: d.store}

	results := make([][]*store.Stimulus, len(due))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(codeletParallelism)
	for i, c := range due {
		i, c := i, c
		g.Go(func() error {
			emitted, err := c.Run(gctx, rc)
			if err != nil {
				// A failing codelet is logged and skipped; it must not block
				// the others.
				logging.Warn("codelet", "%s failed, skipped this tick: %v", c.Name(), err)
				return nil
			}
			for _, st := range emitted {
				if st.Type == "" {
					st.Type = c.Category()
				}
				if st.Source == "" {
					st.Source = c.Name()
				}
			}
			results[i] = emitted
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var batch []*store.Stimulus
	for i, c := range due {
		d.registry.MarkRan(c.Name(), now)
		batch = append(batch, results[i]...)
	}
	inserted, err := d.store.InsertStimuli(batch, now)
	if err != nil {
		return err
	}
	if len(inserted) > 0 {
		logging.Info("cycle", "SENSE: %d new stimuli", len(inserted))
	}

	return d.scoreStimuli(ctx)
}

// scoreStimuli computes salience for unscored stimuli against the lookback
// window and the active-goals set.
func (d *Driver) scoreStimuli(ctx context.Context) error {
	now := d.clk.Now()
	unscored, err := d.store.UnscoredStimuli(50)
	if err != nil {
		return err
	}
	if len(unscored) == 0 {
		return nil
	}
	lookback := time.Duration(d.cfg.Salience.LookbackMinutes) * time.Minute
	recent, err := d.store.RecentStimuli(now.Add(-lookback), 200)
	if err != nil {
		return err
	}
	goals, err := d.store.ActiveGoals()
	if err != nil {
		return err
	}
	for _, st := range unscored {
		if err := ctx.Err(); err != nil {
			return err
		}
		score, breakdown, embedding := d.scorer.Score(st, recent, goals, now)
		if err := d.store.UpdateSalience(st.ID, score, breakdown, embedding); err != nil {
			return err
		}
	}
	logging.Debug("cycle", "scored %d stimuli", len(unscored))
	return nil
}

// phasePredict mines patterns and verifies due predictions.
func (d *Driver) phasePredict(ctx context.Context) error {
	if _, _, err := d.patterns.Mine(); err != nil {
		return err
	}
	_, err := d.patterns.VerifySweep()
	return err
}

// phaseAct produces thoughts for the top-K stimuli and routes motivated
// thoughts; then the planner advances its step DAGs.
func (d *Driver) phaseAct(ctx context.Context) error {
	top, err := d.store.TopUnactedStimuli(d.cfg.Sense.TopK)
	if err != nil {
		return err
	}
	if len(top) > 0 {
		result, err := d.engine.ProcessStimuli(ctx, top)
		if err != nil {
			return err
		}
		if len(result.Thoughts) > 0 {
			logging.Info("cycle", "ACT: %d thoughts (%d S1, %d S2)", len(result.Thoughts), result.S1Count, result.S2Count)
		}
	}

	if err := d.router.RouteActive(ctx); err != nil {
		return err
	}
	if err := d.verifyExpressionInvariant(); err != nil {
		return err
	}
	return d.executor.Tick(ctx)
}

// verifyExpressionInvariant spot-checks that recently expressed thoughts
// carry exactly one successful attempt — the UI queue records its delivery
// as a success on the internal ui channel, so it is checked too. A miss is
// an invariant violation that aborts the cycle.
func (d *Driver) verifyExpressionInvariant() error {
	recent, err := d.store.RecentThoughts(d.clk.Now().Add(-time.Minute), 20)
	if err != nil {
		return err
	}
	for _, t := range recent {
		if t.Status != store.ThoughtExpressed {
			continue
		}
		if _, err := d.store.SuccessfulAttemptForThought(t.ID); err != nil {
			return &InvariantViolation{
				Check:  "expressed_has_success",
				Detail: "thought " + t.ID + " is expressed with no successful attempt",
			}
		}
	}
	return nil
}

// phaseLearn scores rewards every cycle and runs consolidation and
// evolution on their sub-cadences; thought decay and queue expiry ride
// along.
func (d *Driver) phaseLearn(ctx context.Context) error {
	now := d.clk.Now()

	if _, err := d.rewards.Run(); err != nil {
		return err
	}

	if !now.Before(d.nextConsolidation) {
		result, err := d.consolidator.Run(ctx)
		d.nextConsolidation = d.consolidationSchedule.Next(now)
		if err != nil {
			return err
		}
		if result.Degraded {
			logging.Info("cycle", "LEARN degraded: consolidation deferred clusters (deliberation unavailable)")
		}
		if result.Entries > 0 {
			logging.Info("cycle", "LEARN: %d consolidation entries, %d reflections", result.Entries, result.Reflections)
		}
	}

	if !now.Before(d.nextEvolution) {
		if _, err := d.tuner.Run(); err != nil {
			return err
		}
		d.nextEvolution = d.evolutionSchedule.Next(now)
	}

	if _, err := d.engine.DecayIdle(); err != nil {
		return err
	}
	expiry := time.Duration(d.cfg.Express.QueueExpiryMin) * time.Minute
	_, err := d.router.ExpireQueued(expiry)
	return err
}
