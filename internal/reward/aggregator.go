// Package reward scores past expressions from downstream signals: explicit
// lexical cues in replies, implicit engagement behavior, and the stored
// self-critique. The combined reward drives evolution tuning.
package reward

import (
	"math"
	"time"

	"github.com/mwaldron/aura/internal/clock"
	"github.com/mwaldron/aura/internal/config"
	"github.com/mwaldron/aura/internal/logging"
	"github.com/mwaldron/aura/internal/store"
)

// Combine computes the weighted reward with proportional redistribution for
// absent components. Present components are clamped to their stated ranges
// before weighting.
func Combine(w config.RewardWeights, explicit, implicit, selfEval *float64) float64 {
	var weightSum, total float64
	if explicit != nil {
		total += w.Explicit * clampRange(*explicit, -1, 1)
		weightSum += w.Explicit
	}
	if implicit != nil {
		total += w.Implicit * clampRange(*implicit, -1, 1)
		weightSum += w.Implicit
	}
	if selfEval != nil {
		total += w.SelfEval * clampRange(*selfEval, 0, 1)
		weightSum += w.SelfEval
	}
	if weightSum == 0 {
		return 0
	}
	return total / weightSum
}

// Aggregator ties recent conversational turns back to expression attempts
// and writes one reward signal per attempt.
type Aggregator struct {
	store   *store.Store
	clk     clock.Clock
	weights config.RewardWeights

	// How long a reply window stays open after an emission, and how long an
	// attempt must settle before silence is concluded.
	ReplyWindow time.Duration
	Settle      time.Duration
	Lookback    time.Duration
}

// NewAggregator creates a reward aggregator.
func NewAggregator(st *store.Store, clk clock.Clock, weights config.RewardWeights) *Aggregator {
	return &Aggregator{
		store:       st,
		clk:         clk,
		weights:     weights,
		ReplyWindow: 30 * time.Minute,
		Settle:      30 * time.Minute,
		Lookback:    48 * time.Hour,
	}
}

// Run scores settled, unscored successful attempts. Returns how many reward
// rows were written.
func (a *Aggregator) Run() (int, error) {
	now := a.clk.Now()
	attempts, err := a.store.UnscoredSuccesses(now.Add(-a.Lookback), 100)
	if err != nil {
		return 0, err
	}

	scored := 0
	for _, attempt := range attempts {
		if now.Sub(attempt.CreatedAt) < a.Settle {
			continue // reply window still open
		}
		signal, err := a.scoreAttempt(attempt, now)
		if err != nil {
			logging.Warn("reward", "scoring attempt %s: %v", attempt.ID, err)
			continue
		}
		if err := a.store.InsertRewardSignal(signal, now); err != nil {
			return scored, err
		}
		scored++
	}
	if scored > 0 {
		logging.Info("reward", "scored %d attempts", scored)
	}
	return scored, nil
}

func (a *Aggregator) scoreAttempt(attempt *store.ExpressionAttempt, now time.Time) (*store.RewardSignal, error) {
	turns, err := a.store.UserTurnsAfter(attempt.CreatedAt, 50)
	if err != nil {
		return nil, err
	}
	var inWindow []*store.ConversationTurn
	for _, t := range turns {
		if t.CreatedAt.Sub(attempt.CreatedAt) <= a.ReplyWindow {
			inWindow = append(inWindow, t)
		}
	}

	signal := &store.RewardSignal{AttemptID: attempt.ID}

	// Explicit: lexical classification of the first reply; no reply at all
	// after the settle window counts as silence.
	if len(inWindow) > 0 {
		source, score := ClassifyReply(inWindow[0].Content)
		signal.ExplicitSource = source
		signal.ExplicitScore = &score
		signal.ConversationID = inWindow[0].ConversationID

		if source == SourceCorrection {
			if err := a.recordPreference(attempt, inWindow[0], now); err != nil {
				logging.Warn("reward", "preference pair: %v", err)
			}
		}
	} else {
		source, score := SourceSilence, explicitScores[SourceSilence]
		signal.ExplicitSource = source
		signal.ExplicitScore = &score
	}

	// Implicit: engagement continuation is positive, abandonment negative.
	// A single reply gives no measurable follow-up signal — left absent.
	switch {
	case len(inWindow) >= 2:
		v := 0.5
		signal.ImplicitScore = &v
		signal.ImplicitClassification = "positive"
	case len(inWindow) == 0 && len(turns) > 0:
		// User spoke afterwards but ignored this message: topic switch.
		v := -0.4
		signal.ImplicitScore = &v
		signal.ImplicitClassification = "negative"
	default:
		signal.ImplicitClassification = "neutral"
	}

	// Self-eval from the stored critique of the same thought.
	if critique, err := a.store.LatestCritique(attempt.ThoughtID); err != nil {
		return nil, err
	} else if critique != nil {
		v := critique.QualityScore
		signal.SelfEvalScore = &v
		signal.PrinciplesEvaluated = []string{"honesty", "memory_reference", "empathy", "accuracy", "love"}
	}

	signal.CombinedReward = Combine(a.weights, signal.ExplicitScore, signal.ImplicitScore, signal.SelfEvalScore)

	// Feed the observed response back onto the attempt for routing stats.
	resp := responseFor(signal)
	effectiveness := clampRange((signal.CombinedReward+1)/2, 0, 1)
	if err := a.store.SetAttemptResponse(attempt.ID, resp, effectiveness); err != nil {
		return nil, err
	}
	return signal, nil
}

// recordPreference stores a correction as a preference pair: the corrected
// message is the rejected response, the user's phrasing the preferred one.
func (a *Aggregator) recordPreference(attempt *store.ExpressionAttempt, reply *store.ConversationTurn, now time.Time) error {
	return a.store.InsertPreferencePair(&store.PreferencePair{
		UserMessage:        reply.Content,
		PreferredResponse:  reply.Content,
		RejectedResponse:   attempt.MessageSent,
		PreferenceStrength: 0.8,
	}, now)
}

func responseFor(signal *store.RewardSignal) store.UserResponse {
	switch signal.ExplicitSource {
	case SourcePraise, SourceThumbs:
		return store.ResponseAcknowledged
	case SourceFollowUp:
		return store.ResponseEngaged
	case SourceCorrection:
		return store.ResponseDismissed
	case SourceSilence:
		return store.ResponseIgnored
	}
	return store.ResponseUnknown
}

func clampRange(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
