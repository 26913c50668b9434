// Package thought generates candidate thoughts from salient stimuli.
// System 1 is a closed template table with predictable cost; System 2 is a
// bounded deliberation call. System-2 unavailability is non-fatal — S1
// continues on its own.
package thought

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mwaldron/aura/internal/clock"
	"github.com/mwaldron/aura/internal/llm"
	"github.com/mwaldron/aura/internal/logging"
	"github.com/mwaldron/aura/internal/store"
)

// MotivationWeights are the component weights of the motivation score.
type MotivationWeights struct {
	Relevance   float64
	Urgency     float64
	Impact      float64
	Coherence   float64
	Originality float64
}

// DefaultMotivationWeights returns the standard weighting.
func DefaultMotivationWeights() MotivationWeights {
	return MotivationWeights{Relevance: 0.25, Urgency: 0.20, Impact: 0.25, Coherence: 0.15, Originality: 0.15}
}

// Score combines a breakdown into the scalar motivation score.
func (w MotivationWeights) Score(b store.MotivationBreakdown) float64 {
	total := w.Relevance*clampUnit(b.Relevance) +
		w.Urgency*clampUnit(b.Urgency) +
		w.Impact*clampUnit(b.Impact) +
		w.Coherence*clampUnit(b.Coherence) +
		w.Originality*clampUnit(b.Originality)
	return clampUnit(total)
}

// Engine produces S1 and S2 thoughts from the top-K stimuli of a tick.
type Engine struct {
	store       *store.Store
	deliberator llm.Deliberator // nil disables System 2
	clk         clock.Clock
	templates   []Template

	mu         sync.Mutex
	weights    MotivationWeights
	s2Budget   int // max S2 calls per tick
	s2Latency  time.Duration
	decayAfter time.Duration
}

// NewEngine creates a thought engine.
func NewEngine(st *store.Store, deliberator llm.Deliberator, clk clock.Clock, s2MaxCalls, s2LatencyMS, decayHours int) *Engine {
	decay := time.Duration(decayHours) * time.Hour
	if decay <= 0 {
		decay = 24 * time.Hour
	}
	return &Engine{
		store:       st,
		deliberator: deliberator,
		clk:         clk,
		templates:   builtinTemplates(),
		weights:     DefaultMotivationWeights(),
		s2Budget:    s2MaxCalls,
		s2Latency:   s2Deadline(s2LatencyMS),
		decayAfter:  decay,
	}
}

// SetMotivationWeights swaps the component weights (evolution tuning).
func (e *Engine) SetMotivationWeights(w MotivationWeights) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.weights = w
}

// MotivationWeights returns the current component weights.
func (e *Engine) MotivationWeights() MotivationWeights {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.weights
}

// TickResult summarizes one engine pass.
type TickResult struct {
	Thoughts     []*store.Thought
	S1Count      int
	S2Count      int
	S2Calls      int
	BudgetHit    bool // "s2_budget_exceeded"
	FilteredIDs  []string
	S2Unavailable bool
}

// ProcessStimuli produces thoughts for the given stimuli (already ranked by
// salience, best first) and persists them. Stimuli that yield nothing are
// left unacted for the next cycle unless both paths were exhausted, in which
// case they are logged as filtered.
func (e *Engine) ProcessStimuli(ctx context.Context, stimuli []*store.Stimulus) (*TickResult, error) {
	now := e.clk.Now()
	result := &TickResult{}

	e.mu.Lock()
	weights := e.weights
	budget := e.s2Budget
	e.mu.Unlock()

	recentThoughts, err := e.store.RecentThoughts(now.Add(-6*time.Hour), 20)
	if err != nil {
		return nil, err
	}
	care, err := e.store.CurrentCareState(now)
	if err != nil {
		return nil, err
	}
	active, err := e.store.ActiveThoughts(100)
	if err != nil {
		return nil, err
	}

	s2Calls := 0
	for _, st := range stimuli {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		produced := e.runSystem1(st, weights, now, result)

		matchedS2 := false
		if !produced && e.deliberator != nil {
			if s2Calls >= budget {
				if !result.BudgetHit {
					logging.Info("thought", "s2_budget_exceeded: %d calls this tick, deferring remaining stimuli", s2Calls)
					result.BudgetHit = true
				}
				continue // left unacted for the next cycle
			}
			s2Calls++
			result.S2Calls = s2Calls
			n, err := e.runSystem2(ctx, st, recentThoughts, care, active, weights, now, result)
			if err != nil {
				logging.Warn("thought", "deliberation failed for %s: %v", st.ID, err)
				result.S2Unavailable = true
				if errors.Is(err, context.DeadlineExceeded) {
					// Latency bound blown: no further S2 calls this tick.
					budget = s2Calls
				}
				continue // stimulus stays unacted; S2 may recover next tick
			}
			matchedS2 = true
			produced = n > 0
			if !produced {
				// Deliberation ran and judged the stimulus not worth a thought.
				if err := e.store.MarkFiltered(st.ID, "s2_no_thoughts", now); err != nil {
					return result, err
				}
				result.FilteredIDs = append(result.FilteredIDs, st.ID)
			}
		}

		if !produced && !matchedS2 && e.deliberator == nil {
			// No S1 match and no deliberation available: filter explicitly so
			// the acted-upon invariant stays auditable.
			if err := e.store.MarkFiltered(st.ID, "no_s1_match_s2_unavailable", now); err != nil {
				return result, err
			}
			result.FilteredIDs = append(result.FilteredIDs, st.ID)
		}
	}
	return result, nil
}

// runSystem1 matches the template table and persists any rendered thoughts.
func (e *Engine) runSystem1(st *store.Stimulus, weights MotivationWeights, now time.Time, result *TickResult) bool {
	produced := false
	for _, tpl := range e.templates {
		if !tpl.Match(st) {
			continue
		}
		t := &store.Thought{
			Type:            store.ThoughtSystem1,
			Category:        tpl.Category,
			Content:         tpl.Render(st),
			StimulusIDs:     []string{st.ID},
			Motivation:      tpl.Motivation,
			MotivationScore: weights.Score(tpl.Motivation),
			Status:          store.ThoughtActive,
		}
		if err := e.store.InsertThought(t, now); err != nil {
			logging.Warn("thought", "insert s1 thought: %v", err)
			continue
		}
		result.Thoughts = append(result.Thoughts, t)
		result.S1Count++
		produced = true
	}
	return produced
}

// runSystem2 runs one bounded deliberation call for a stimulus and persists
// the candidates, handling evolved-thought replacement. Returns how many
// thoughts landed.
func (e *Engine) runSystem2(ctx context.Context, st *store.Stimulus, recentThoughts []*store.Thought, care *store.CareState, active []*store.Thought, weights MotivationWeights, now time.Time, result *TickResult) (int, error) {
	candidates, err := e.deliberate(ctx, st, recentThoughts, care)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, c := range candidates {
		breakdown := store.MotivationBreakdown{
			Relevance:   clampUnit(c.Relevance),
			Urgency:     clampUnit(c.Urgency),
			Impact:      clampUnit(c.Impact),
			Coherence:   clampUnit(c.Coherence),
			Originality: clampUnit(c.Originality),
		}
		t := &store.Thought{
			Type:            store.ThoughtSystem2,
			Category:        c.Category,
			Content:         c.Content,
			StimulusIDs:     []string{st.ID},
			Motivation:      breakdown,
			MotivationScore: weights.Score(breakdown),
			Status:          store.ThoughtActive,
			MemoryContext:   map[string]any{"stimulus": st.Content},
		}

		// Evolved replacement: a refinement of a still-active thought over the
		// same stimulus set with strictly higher motivation supersedes it.
		if parent := findEvolutionParent(active, t); parent != nil {
			if err := e.store.EvolveThought(parent.ID, t, now); err != nil {
				logging.Warn("thought", "evolve thought: %v", err)
				continue
			}
		} else {
			if err := e.store.InsertThought(t, now); err != nil {
				logging.Warn("thought", "insert s2 thought: %v", err)
				continue
			}
		}
		result.Thoughts = append(result.Thoughts, t)
		result.S2Count++
		count++
	}
	return count, nil
}

// findEvolutionParent returns a still-active thought with the identical
// stimulus id set and strictly lower motivation, if one exists.
func findEvolutionParent(active []*store.Thought, child *store.Thought) *store.Thought {
	for _, a := range active {
		if a.Status != store.ThoughtActive {
			continue
		}
		if !sameIDSet(a.StimulusIDs, child.StimulusIDs) {
			continue
		}
		if child.MotivationScore > a.MotivationScore {
			return a
		}
	}
	return nil
}

func sameIDSet(a, b []string) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// DecayIdle transitions thoughts idle past the horizon to decayed.
func (e *Engine) DecayIdle() (int, error) {
	return e.store.DecayIdleThoughts(e.clk.Now().Add(-e.decayAfter))
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
