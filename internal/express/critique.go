package express

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mwaldron/aura/internal/llm"
	"github.com/mwaldron/aura/internal/logging"
	"github.com/mwaldron/aura/internal/store"
)

// Principle weights for the overall quality score.
var principleWeights = map[string]float64{
	"honesty":          0.25,
	"memory_reference": 0.20,
	"empathy":          0.25,
	"accuracy":         0.15,
	"love":             0.15,
}

const critiqueSystemPrompt = `Evaluate a candidate message from a companion to
its user against five principles, each 0.0-1.0: honesty (no invented facts),
memory_reference (grounded in what is actually known), empathy (fits the
user's state), accuracy (claims are correct), love (warm, non-judgmental
tone). Respond with JSON only:
{"honesty": 0.0, "memory_reference": 0.0, "empathy": 0.0,
 "accuracy": 0.0, "love": 0.0, "verified": true}`

// Critic runs the self-critique check. When the deliberation contract is
// unavailable it falls back to rule-based heuristics, so the quality gate
// never blocks on an external dependency.
type Critic struct {
	store       *store.Store
	deliberator llm.Deliberator // nil = heuristics only
}

// NewCritic creates the self-critique module.
func NewCritic(st *store.Store, deliberator llm.Deliberator) *Critic {
	return &Critic{store: st, deliberator: deliberator}
}

// Evaluate scores one candidate expression and always writes a critique row.
func (c *Critic) Evaluate(ctx context.Context, t *store.Thought) (*store.CritiqueResult, error) {
	result := c.heuristics(t)

	if c.deliberator != nil {
		if scored, ok := c.deliberate(ctx, t); ok {
			result = scored
		}
	}

	result.ThoughtID = t.ID
	result.QualityScore = principleWeights["honesty"]*result.Honesty +
		principleWeights["memory_reference"]*result.MemoryReference +
		principleWeights["empathy"]*result.Empathy +
		principleWeights["accuracy"]*result.Accuracy +
		principleWeights["love"]*result.Love
	result.Uncertainty = uncertainty(t, result)

	if err := c.store.InsertCritique(result, t.CreatedAt); err != nil {
		return nil, err
	}
	return result, nil
}

// heuristics is the rule-based fallback scoring.
func (c *Critic) heuristics(t *store.Thought) *store.CritiqueResult {
	r := &store.CritiqueResult{
		Honesty:            0.8,
		MemoryReference:    0.5,
		Empathy:            0.7,
		Accuracy:           0.8,
		Love:               0.7,
		VerificationPassed: true,
	}
	content := strings.ToLower(t.Content)

	// Unhedged certainty about the user's inner state reads as presumptuous.
	for _, phrase := range []string{"you always", "you never", "you must", "you should have"} {
		if strings.Contains(content, phrase) {
			r.Empathy -= 0.2
			r.Love -= 0.2
		}
	}
	if len(t.MemoryContext) > 0 {
		r.MemoryReference = 0.8
	}
	if t.Type == store.ThoughtSystem1 {
		// Template output carries no invented claims.
		r.Honesty = 0.95
		r.Accuracy = 0.9
	}
	if strings.TrimSpace(t.Content) == "" {
		r.VerificationPassed = false
	}
	return r
}

// deliberate asks the deliberation contract to score the principles.
func (c *Critic) deliberate(ctx context.Context, t *store.Thought) (*store.CritiqueResult, bool) {
	res, err := c.deliberator.Deliberate(ctx, llm.DeliberationRequest{
		SystemPrompt: critiqueSystemPrompt,
		Context:      "Candidate message: " + t.Content,
		MaxTokens:    200,
		Temperature:  0,
	})
	if err != nil {
		logging.Debug("critique", "deliberation unavailable, heuristics only: %v", err)
		return nil, false
	}
	raw := llm.ExtractJSON(res.Text)
	if raw == "" {
		return nil, false
	}
	var parsed struct {
		Honesty         float64 `json:"honesty"`
		MemoryReference float64 `json:"memory_reference"`
		Empathy         float64 `json:"empathy"`
		Accuracy        float64 `json:"accuracy"`
		Love            float64 `json:"love"`
		Verified        bool    `json:"verified"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, false
	}
	return &store.CritiqueResult{
		Honesty:            clamp01(parsed.Honesty),
		MemoryReference:    clamp01(parsed.MemoryReference),
		Empathy:            clamp01(parsed.Empathy),
		Accuracy:           clamp01(parsed.Accuracy),
		Love:               clamp01(parsed.Love),
		VerificationPassed: parsed.Verified,
	}, true
}

// uncertainty is a calibrated confidence decay: a base plus penalties for
// unverified claims, missing memory references, and tone violations.
func uncertainty(t *store.Thought, r *store.CritiqueResult) float64 {
	u := 0.1
	if !r.VerificationPassed {
		u += 0.4
	}
	if r.MemoryReference < 0.5 {
		u += 0.2
	}
	if r.Love < 0.5 {
		u += 0.15
	}
	if t.Type == store.ThoughtSystem2 {
		u += 0.05 // generated content carries residual doubt
	}
	return clamp01(u)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
