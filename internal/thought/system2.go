package thought

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mwaldron/aura/internal/llm"
	"github.com/mwaldron/aura/internal/store"
)

const s2SystemPrompt = `You are the inner voice of a companion runtime. Given the
current stimulus and context, produce zero or more candidate thoughts worth
possibly sharing with the user. Respond with JSON only:
{"thoughts": [{"content": "...", "category": "...",
  "relevance": 0.0, "urgency": 0.0, "impact": 0.0,
  "coherence": 0.0, "originality": 0.0}]}
Return {"thoughts": []} when nothing is worth saying.`

// s2Candidate is one deliberative thought proposal.
type s2Candidate struct {
	Content     string  `json:"content"`
	Category    string  `json:"category"`
	Relevance   float64 `json:"relevance"`
	Urgency     float64 `json:"urgency"`
	Impact      float64 `json:"impact"`
	Coherence   float64 `json:"coherence"`
	Originality float64 `json:"originality"`
}

// s2Bundle assembles the deliberation context: the stimulus, recent thoughts,
// related memories up to a rough token budget, and the care snapshot.
func (e *Engine) s2Bundle(st *store.Stimulus, recentThoughts []*store.Thought, care *store.CareState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Stimulus (%s from %s): %s\n", st.Type, st.Source, st.Content)

	if care != nil {
		fmt.Fprintf(&b, "\nUser state: %s (wellbeing %.2f, energy %.2f, stress %.2f)\n",
			care.DetectedState, care.Wellbeing, care.Energy, care.Stress)
	}

	if len(recentThoughts) > 0 {
		b.WriteString("\nRecent thoughts:\n")
		for i, t := range recentThoughts {
			if i >= 5 {
				break
			}
			fmt.Fprintf(&b, "- [%s] %s\n", t.Status, t.Content)
		}
	}

	if len(st.Embedding) > 0 && e.store != nil {
		budget := 1200 // rough character budget for retrieved memories
		if memories, err := e.store.NearestKnowledge(st.Embedding, 5); err == nil && len(memories) > 0 {
			b.WriteString("\nRelated memories:\n")
			for _, m := range memories {
				line := fmt.Sprintf("- %s\n", m.Content)
				if len(line) > budget {
					break
				}
				b.WriteString(line)
				budget -= len(line)
			}
		}
	}

	b.WriteString("\nProduce candidate thoughts as JSON.")
	return b.String()
}

// deliberate runs one bounded System-2 call and parses the candidates.
func (e *Engine) deliberate(ctx context.Context, st *store.Stimulus, recentThoughts []*store.Thought, care *store.CareState) ([]s2Candidate, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.s2Latency)
	defer cancel()

	result, err := e.deliberator.Deliberate(callCtx, llm.DeliberationRequest{
		SystemPrompt: s2SystemPrompt,
		Context:      e.s2Bundle(st, recentThoughts, care),
		MaxTokens:    600,
		Temperature:  0.7,
	})
	if err != nil {
		return nil, err
	}

	raw := llm.ExtractJSON(result.Text)
	if raw == "" {
		raw = result.Text
	}
	var parsed struct {
		Thoughts []s2Candidate `json:"thoughts"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parse deliberation output: %w", err)
	}

	for i := range parsed.Thoughts {
		c := &parsed.Thoughts[i]
		if c.Category == "" {
			c.Category = string(st.Type)
		}
		if c.Relevance == 0 && c.Urgency == 0 && c.Impact == 0 && c.Coherence == 0 && c.Originality == 0 {
			// model omitted scores; assume middling defaults
			c.Relevance, c.Urgency, c.Impact, c.Coherence, c.Originality = 0.6, 0.4, 0.5, 0.6, 0.5
		}
	}
	return parsed.Thoughts, nil
}

// s2Deadline is the engine's per-call latency bound as a duration.
func s2Deadline(ms int) time.Duration {
	if ms <= 0 {
		return 8 * time.Second
	}
	return time.Duration(ms) * time.Millisecond
}
