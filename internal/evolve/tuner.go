// Package evolve is the auto-tuner: it watches the reward trend and nudges a
// small set of knobs — salience weights, motivation weights, expression
// thresholds, and channel-policy entries. Every change is bounded by
// max_step, clamped to a configured range, and audit-logged.
package evolve

import (
	"fmt"
	"math"
	"time"

	"github.com/mwaldron/aura/internal/clock"
	"github.com/mwaldron/aura/internal/express"
	"github.com/mwaldron/aura/internal/logging"
	"github.com/mwaldron/aura/internal/salience"
	"github.com/mwaldron/aura/internal/store"
	"github.com/mwaldron/aura/internal/thought"
)

// Clamp ranges for tuned knobs.
const (
	minExpressThreshold = 0.4
	maxExpressThreshold = 0.9
	minQualityThreshold = 0.5
	maxQualityThreshold = 0.95
	minDimensionWeight  = 0.05
	maxDimensionWeight  = 0.5
)

// Tuner adjusts rule weights from the reward trend.
type Tuner struct {
	store   *store.Store
	clk     clock.Clock
	scorer  *salience.Scorer
	engine  *thought.Engine
	router  *express.Router
	maxStep float64

	Window time.Duration
}

// NewTuner creates the evolution tuner.
func NewTuner(st *store.Store, clk clock.Clock, scorer *salience.Scorer, engine *thought.Engine, router *express.Router, maxStep float64) *Tuner {
	return &Tuner{
		store:   st,
		clk:     clk,
		scorer:  scorer,
		engine:  engine,
		router:  router,
		maxStep: maxStep,
		Window:  7 * 24 * time.Hour,
	}
}

// Run examines the reward window and applies bounded adjustments. Returns
// the number of knobs changed.
func (t *Tuner) Run() (int, error) {
	now := t.clk.Now()
	rewards, err := t.store.RewardsSince(now.Add(-t.Window))
	if err != nil {
		return 0, err
	}
	if len(rewards) < 5 {
		logging.Debug("evolve", "only %d reward signals in window, skipping", len(rewards))
		return 0, nil
	}

	var sum float64
	var corrections int
	for _, r := range rewards {
		sum += r.CombinedReward
		if r.ExplicitSource == "correction" {
			corrections++
		}
	}
	avg := sum / float64(len(rewards))
	correctionRate := float64(corrections) / float64(len(rewards))

	changes := 0

	// Threshold tuning: a poor trend means we are talking too much or too
	// carelessly; a strong trend earns a slightly freer hand.
	expressThr, qualityThr := t.router.Thresholds()
	switch {
	case avg < 0.3:
		changes += t.adjustThreshold("express.threshold", expressThr, t.maxStep, minExpressThreshold, maxExpressThreshold,
			fmt.Sprintf("avg reward %.2f over %d signals", avg, len(rewards)))
	case avg > 0.7:
		changes += t.adjustThreshold("express.threshold", expressThr, -t.maxStep, minExpressThreshold, maxExpressThreshold,
			fmt.Sprintf("avg reward %.2f over %d signals", avg, len(rewards)))
	}
	if correctionRate > 0.2 {
		changes += t.adjustThreshold("express.quality_threshold", qualityThr, t.maxStep, minQualityThreshold, maxQualityThreshold,
			fmt.Sprintf("correction rate %.2f", correctionRate))
	}

	// Salience tuning: when emotionally driven expressions underperform the
	// rest, shift weight from the emotional dimension toward novelty.
	if delta, evidence := t.emotionalDelta(rewards); delta < -0.15 {
		weights := t.scorer.Weights()
		before := weights[salience.DimEmotional]
		after := clampRange(before-t.maxStep, minDimensionWeight, maxDimensionWeight)
		if after != before {
			weights[salience.DimEmotional] = after
			weights[salience.DimNovelty] = clampRange(weights[salience.DimNovelty]+(before-after), minDimensionWeight, maxDimensionWeight)
			t.scorer.SetWeights(weights)
			t.audit("salience.weights.emotional", before, after, evidence, now)
			changes++
		}
	}

	// Motivation tuning: deliberative thoughts consistently underperforming
	// template ones means originality is being over-valued.
	if delta, evidence := t.system2Delta(rewards); delta < -0.15 {
		w := t.engine.MotivationWeights()
		before := w.Originality
		after := clampRange(before-t.maxStep, minDimensionWeight, maxDimensionWeight)
		if after != before {
			w.Coherence = clampRange(w.Coherence+(before-after), minDimensionWeight, maxDimensionWeight)
			w.Originality = after
			t.engine.SetMotivationWeights(w)
			t.audit("motivation.weights.originality", before, after, evidence, now)
			changes++
		}
	}

	// Channel-policy tuning: a category whose messenger emissions are mostly
	// ignored gets re-routed to the quiet UI queue.
	for category, stats := range t.categoryStats(now) {
		if stats.total >= 5 && stats.ignoredShare() > 0.6 {
			table := t.router.PolicyTable()
			if table.Pick(category, "default") == "messenger" {
				table.SetRule(category, "default", "")
				t.audit("channel_policy."+category, 1, 0,
					fmt.Sprintf("%d/%d messenger emissions ignored", stats.ignored, stats.total), now)
				changes++
			}
		}
	}

	if changes > 0 {
		logging.Info("evolve", "applied %d knob changes (avg reward %.2f)", changes, avg)
	}
	return changes, nil
}

func (t *Tuner) adjustThreshold(knob string, before, step, lo, hi float64, evidence string) int {
	after := clampRange(before+clampRange(step, -t.maxStep, t.maxStep), lo, hi)
	if after == before {
		return 0
	}
	switch knob {
	case "express.threshold":
		_, quality := t.router.Thresholds()
		t.router.SetThresholds(after, quality)
	case "express.quality_threshold":
		expressThr, _ := t.router.Thresholds()
		t.router.SetThresholds(expressThr, after)
	}
	t.audit(knob, before, after, evidence, t.clk.Now())
	return 1
}

// emotionalDelta compares rewards of attempts whose thoughts came from
// emotional stimuli against the overall average.
func (t *Tuner) emotionalDelta(rewards []*store.RewardSignal) (float64, string) {
	var all, emotional float64
	var allN, emoN int
	for _, r := range rewards {
		all += r.CombinedReward
		allN++
		attempt, err := t.attemptFor(r.AttemptID)
		if err != nil || attempt == nil {
			continue
		}
		if attempt.Category == "care_message" {
			emotional += r.CombinedReward
			emoN++
		}
	}
	if allN == 0 || emoN < 3 {
		return 0, ""
	}
	delta := emotional/float64(emoN) - all/float64(allN)
	return delta, fmt.Sprintf("care_message avg delta %.2f over %d signals", delta, emoN)
}

// system2Delta compares rewards of deliberative-thought attempts against the
// overall average.
func (t *Tuner) system2Delta(rewards []*store.RewardSignal) (float64, string) {
	var all, s2 float64
	var allN, s2N int
	for _, r := range rewards {
		all += r.CombinedReward
		allN++
		attempt, err := t.attemptFor(r.AttemptID)
		if err != nil || attempt == nil {
			continue
		}
		th, err := t.store.GetThought(attempt.ThoughtID)
		if err != nil {
			continue
		}
		if th.Type == store.ThoughtSystem2 {
			s2 += r.CombinedReward
			s2N++
		}
	}
	if allN == 0 || s2N < 3 {
		return 0, ""
	}
	delta := s2/float64(s2N) - all/float64(allN)
	return delta, fmt.Sprintf("system2 avg delta %.2f over %d signals", delta, s2N)
}

func (t *Tuner) attemptFor(attemptID string) (*store.ExpressionAttempt, error) {
	attempts, err := t.store.RecentAttempts(t.clk.Now().Add(-t.Window), 500)
	if err != nil {
		return nil, err
	}
	for _, a := range attempts {
		if a.ID == attemptID {
			return a, nil
		}
	}
	return nil, nil
}

type categoryStat struct {
	total   int
	ignored int
}

func (c categoryStat) ignoredShare() float64 {
	if c.total == 0 {
		return 0
	}
	return float64(c.ignored) / float64(c.total)
}

func (t *Tuner) categoryStats(now time.Time) map[string]categoryStat {
	stats := map[string]categoryStat{}
	attempts, err := t.store.RecentAttempts(now.Add(-t.Window), 500)
	if err != nil {
		return stats
	}
	for _, a := range attempts {
		if !a.Success || a.Channel == "ui" {
			continue
		}
		s := stats[a.Category]
		s.total++
		if a.UserResponse == store.ResponseIgnored || a.UserResponse == store.ResponseDismissed {
			s.ignored++
		}
		stats[a.Category] = s
	}
	return stats
}

func (t *Tuner) audit(knob string, before, after float64, evidence string, now time.Time) {
	if err := t.store.InsertTuningChange(&store.TuningChange{
		Knob: knob, Before: before, After: after, Evidence: evidence,
	}, now); err != nil {
		logging.Warn("evolve", "audit log: %v", err)
	}
}

func clampRange(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
