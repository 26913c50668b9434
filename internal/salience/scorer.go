// Package salience ranks fresh stimuli for attention. The score is a
// weighted sum over five dimensions; the per-dimension breakdown is stored
// alongside so later tuning can see which dimension drove a decision.
package salience

import (
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/mwaldron/aura/internal/llm"
	"github.com/mwaldron/aura/internal/logging"
	"github.com/mwaldron/aura/internal/store"
)

// Dimension names, also the keys of the stored breakdown.
const (
	DimNovelty         = "novelty"
	DimEmotional       = "emotional"
	DimGoalRelevance   = "goal_relevance"
	DimTemporalUrgency = "temporal_urgency"
	DimSocialRelevance = "social_relevance"
)

// Scorer computes salience for freshly inserted stimuli.
type Scorer struct {
	weights  map[string]float64
	lookback time.Duration
	embedder llm.Embedder // nil or failing embedder degrades novelty to text similarity
}

// NewScorer creates a scorer. Weights are normalized to sum to 1.
func NewScorer(weights map[string]float64, lookback time.Duration, embedder llm.Embedder) *Scorer {
	normalized := make(map[string]float64, len(weights))
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		sum = 1
	}
	for dim, w := range weights {
		normalized[dim] = w / sum
	}
	return &Scorer{weights: normalized, lookback: lookback, embedder: embedder}
}

// SetWeights swaps the dimension weights (evolution tuning).
func (s *Scorer) SetWeights(weights map[string]float64) {
	next := NewScorer(weights, s.lookback, s.embedder)
	s.weights = next.weights
}

// Weights returns a copy of the current normalized weights.
func (s *Scorer) Weights() map[string]float64 {
	out := make(map[string]float64, len(s.weights))
	for k, v := range s.weights {
		out[k] = v
	}
	return out
}

// Score computes the salience of one stimulus against recent stimuli and the
// active-goals set. It returns the total, the breakdown, and the embedding
// computed along the way (nil when the provider was unavailable).
func (s *Scorer) Score(st *store.Stimulus, recent []*store.Stimulus, goals []*store.Goal, now time.Time) (float64, map[string]float64, []float64) {
	var embedding []float64
	if s.embedder != nil {
		var err error
		embedding, err = s.embedder.Embed(st.Content)
		if err != nil {
			logging.Debug("salience", "embedding unavailable, text-only novelty: %v", err)
			embedding = nil
		}
	}

	breakdown := map[string]float64{
		DimNovelty:         s.novelty(st, embedding, recent),
		DimEmotional:       rawDataFloat(st, "emotional"),
		DimGoalRelevance:   goalRelevance(st, goals),
		DimTemporalUrgency: temporalUrgency(st, now),
		DimSocialRelevance: rawDataFloat(st, "social"),
	}

	var total float64
	contributions := make(map[string]float64, len(breakdown))
	for dim, value := range breakdown {
		contrib := s.weights[dim] * value
		contributions[dim] = contrib
		total += contrib
	}
	return clamp01(total), contributions, embedding
}

// novelty is 1 − max similarity against the lookback window. Embedding
// cosine is used per pair when both vectors exist; otherwise that pair falls
// back to normalized edit distance.
func (s *Scorer) novelty(st *store.Stimulus, embedding []float64, recent []*store.Stimulus) float64 {
	var maxSim float64
	for _, other := range recent {
		if other.ID == st.ID {
			continue
		}
		var sim float64
		if len(embedding) > 0 && len(other.Embedding) == len(embedding) {
			sim = store.CosineSimilarity(embedding, other.Embedding)
		} else {
			sim = textSimilarity(st.Content, other.Content)
		}
		if sim > maxSim {
			maxSim = sim
		}
	}
	return clamp01(1 - maxSim)
}

// textSimilarity is 1 − normalized Levenshtein distance.
func textSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return clamp01(1 - float64(dist)/float64(longest))
}

// goalRelevance is the best word-overlap between the stimulus content and
// any active goal title, boosted when the stimulus names the goal directly.
func goalRelevance(st *store.Stimulus, goals []*store.Goal) float64 {
	if gid, ok := st.RawData["goal_id"].(string); ok && gid != "" {
		return 1
	}
	var best float64
	for _, g := range goals {
		if sim := tokenOverlap(st.Content, g.Title); sim > best {
			best = sim
		}
	}
	return best
}

func tokenOverlap(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	var common int
	for tok := range setA {
		if setB[tok] {
			common++
		}
	}
	smaller := len(setA)
	if len(setB) < smaller {
		smaller = len(setB)
	}
	return float64(common) / float64(smaller)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	word := make([]rune, 0, 16)
	flush := func() {
		if len(word) >= 3 { // skip stop-ish short tokens
			set[string(word)] = true
		}
		word = word[:0]
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			word = append(word, r)
		case r >= 'A' && r <= 'Z':
			word = append(word, r+('a'-'A'))
		default:
			flush()
		}
	}
	flush()
	return set
}

// temporalUrgency decays linearly toward raw_data.deadline: 1 at the
// deadline, 0 at the horizon (24h out) and beyond. Past deadlines stay 1.
func temporalUrgency(st *store.Stimulus, now time.Time) float64 {
	raw, ok := st.RawData["deadline"].(string)
	if !ok || raw == "" {
		return 0
	}
	deadline, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0
	}
	const horizon = 24 * time.Hour
	remaining := deadline.Sub(now)
	if remaining <= 0 {
		return 1
	}
	if remaining >= horizon {
		return 0
	}
	return clamp01(1 - remaining.Seconds()/horizon.Seconds())
}

func rawDataFloat(st *store.Stimulus, key string) float64 {
	if st.RawData == nil {
		return 0
	}
	switch v := st.RawData[key].(type) {
	case float64:
		return clamp01(v)
	case int:
		return clamp01(float64(v))
	}
	return 0
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
