package salience

import (
	"testing"
	"time"

	"github.com/mwaldron/aura/internal/store"
)

func newStimulus(content string, raw map[string]any) *store.Stimulus {
	return &store.Stimulus{ID: content, Content: content, RawData: raw}
}

func defaultWeights() map[string]float64 {
	return map[string]float64{
		DimNovelty:         0.15,
		DimEmotional:       0.30,
		DimGoalRelevance:   0.25,
		DimTemporalUrgency: 0.15,
		DimSocialRelevance: 0.15,
	}
}

func TestScoreDeterministic(t *testing.T) {
	s := NewScorer(defaultWeights(), time.Hour, nil)
	st := newStimulus("feeling anxious about the launch", map[string]any{"emotional": 0.9})
	recent := []*store.Stimulus{newStimulus("made coffee this morning", nil)}
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	score1, breakdown1, _ := s.Score(st, recent, nil, now)
	score2, breakdown2, _ := s.Score(st, recent, nil, now)
	if score1 != score2 {
		t.Errorf("Scoring not deterministic: %f vs %f", score1, score2)
	}
	for dim, v := range breakdown1 {
		if breakdown2[dim] != v {
			t.Errorf("Breakdown dim %s differs: %f vs %f", dim, v, breakdown2[dim])
		}
	}
}

func TestEmotionalDimension(t *testing.T) {
	s := NewScorer(defaultWeights(), time.Hour, nil)
	now := time.Now()

	hot := newStimulus("strong feeling", map[string]any{"emotional": 1.0})
	cold := newStimulus("strong feeling", map[string]any{})
	hotScore, _, _ := s.Score(hot, nil, nil, now)
	coldScore, _, _ := s.Score(cold, nil, nil, now)
	if hotScore <= coldScore {
		t.Errorf("Emotional raw data should raise the score: %f <= %f", hotScore, coldScore)
	}
	if diff := hotScore - coldScore; diff < 0.29 || diff > 0.31 {
		t.Errorf("Emotional weight contribution should be ~0.30, got %f", diff)
	}
}

func TestNoveltyAgainstIdenticalContent(t *testing.T) {
	s := NewScorer(defaultWeights(), time.Hour, nil)
	now := time.Now()

	st := newStimulus("remember to hydrate", nil)
	dup := &store.Stimulus{ID: "other", Content: "remember to hydrate"}
	_, breakdown, _ := s.Score(st, []*store.Stimulus{dup}, nil, now)
	if breakdown[DimNovelty] != 0 {
		t.Errorf("Identical recent content should zero novelty, got %f", breakdown[DimNovelty])
	}

	_, fresh, _ := s.Score(st, nil, nil, now)
	if fresh[DimNovelty] == 0 {
		t.Error("No recent stimuli should leave novelty at max contribution")
	}
}

func TestTemporalUrgencyDecay(t *testing.T) {
	s := NewScorer(map[string]float64{DimTemporalUrgency: 1}, time.Hour, nil)
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	mk := func(deadline time.Time) *store.Stimulus {
		return newStimulus("deadline", map[string]any{"deadline": deadline.Format(time.RFC3339)})
	}

	past, _, _ := s.Score(mk(now.Add(-time.Hour)), nil, nil, now)
	if past != 1 {
		t.Errorf("Past deadline should score urgency 1, got %f", past)
	}
	far, _, _ := s.Score(mk(now.Add(48*time.Hour)), nil, nil, now)
	if far != 0 {
		t.Errorf("Far deadline should score urgency 0, got %f", far)
	}
	near, _, _ := s.Score(mk(now.Add(12*time.Hour)), nil, nil, now)
	if near < 0.49 || near > 0.51 {
		t.Errorf("12h-out deadline should score ~0.5, got %f", near)
	}
}

func TestGoalRelevance(t *testing.T) {
	s := NewScorer(map[string]float64{DimGoalRelevance: 1}, time.Hour, nil)
	now := time.Now()
	goals := []*store.Goal{{Title: "finish marathon training plan"}}

	direct := newStimulus("whatever", map[string]any{"goal_id": "g1"})
	score, _, _ := s.Score(direct, nil, goals, now)
	if score != 1 {
		t.Errorf("Direct goal reference should score 1, got %f", score)
	}

	related := newStimulus("skipped marathon training today", nil)
	score, _, _ = s.Score(related, nil, goals, now)
	if score == 0 {
		t.Error("Token overlap with goal title should lift goal relevance")
	}

	unrelated := newStimulus("bought new headphones", nil)
	score, _, _ = s.Score(unrelated, nil, goals, now)
	if score != 0 {
		t.Errorf("Unrelated content should score 0 goal relevance, got %f", score)
	}
}

func TestWeightsNormalized(t *testing.T) {
	s := NewScorer(map[string]float64{DimEmotional: 2, DimNovelty: 2}, time.Hour, nil)
	w := s.Weights()
	if w[DimEmotional] != 0.5 || w[DimNovelty] != 0.5 {
		t.Errorf("Weights should normalize to a distribution, got %v", w)
	}
}

func TestTextSimilarity(t *testing.T) {
	if sim := textSimilarity("hydrate", "hydrate"); sim != 1 {
		t.Errorf("Identical strings should be similarity 1, got %f", sim)
	}
	if sim := textSimilarity("abc", "xyz"); sim != 0 {
		t.Errorf("Disjoint strings should be similarity 0, got %f", sim)
	}
}
