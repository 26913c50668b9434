package thought

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mwaldron/aura/internal/clock"
	"github.com/mwaldron/aura/internal/llm"
	"github.com/mwaldron/aura/internal/store"
)

// scriptedDeliberator returns canned responses and counts calls.
type scriptedDeliberator struct {
	responses []string
	calls     int
	fail      bool
}

func (d *scriptedDeliberator) Deliberate(ctx context.Context, req llm.DeliberationRequest) (*llm.DeliberationResult, error) {
	d.calls++
	if d.fail {
		return nil, fmt.Errorf("deliberation unreachable")
	}
	idx := d.calls - 1
	if idx >= len(d.responses) {
		idx = len(d.responses) - 1
	}
	return &llm.DeliberationResult{Text: d.responses[idx]}, nil
}

var engineNow = time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)

func newEngineFixture(t *testing.T, deliberator llm.Deliberator, s2Budget int) (*Engine, *store.Store, *clock.Fake) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	clk := clock.NewFake(engineNow)
	return NewEngine(st, deliberator, clk, s2Budget, 8000, 24), st, clk
}

func insertStimulus(t *testing.T, st *store.Store, stim *store.Stimulus) *store.Stimulus {
	t.Helper()
	inserted, err := st.InsertStimuli([]*store.Stimulus{stim}, engineNow)
	if err != nil {
		t.Fatal(err)
	}
	if len(inserted) != 1 {
		t.Fatal("stimulus not inserted")
	}
	return inserted[0]
}

func TestSystem1TemplateMatch(t *testing.T) {
	engine, st, _ := newEngineFixture(t, nil, 0)
	stim := insertStimulus(t, st, &store.Stimulus{
		Type: store.StimulusTemporal, Content: "Morning has started", Source: "temporal",
		RawData: map[string]any{"day_part": "morning"},
	})

	result, err := engine.ProcessStimuli(context.Background(), []*store.Stimulus{stim})
	if err != nil {
		t.Fatal(err)
	}
	if result.S1Count != 1 || result.S2Count != 0 {
		t.Fatalf("Expected one S1 thought, got S1=%d S2=%d", result.S1Count, result.S2Count)
	}
	th := result.Thoughts[0]
	if th.Type != store.ThoughtSystem1 || th.Category != "care_message" {
		t.Errorf("Unexpected thought %s/%s", th.Type, th.Category)
	}
	if th.MotivationScore <= 0 || th.MotivationScore > 1 {
		t.Errorf("Motivation out of range: %f", th.MotivationScore)
	}

	got, err := st.GetStimulus(stim.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.ActedUpon {
		t.Error("Matched stimulus should be acted upon")
	}
}

func TestZeroS2BudgetEmitsOnlyS1(t *testing.T) {
	d := &scriptedDeliberator{responses: []string{`{"thoughts": []}`}}
	engine, st, _ := newEngineFixture(t, d, 0)

	matched := insertStimulus(t, st, &store.Stimulus{
		Type: store.StimulusTemporal, Content: "Morning has started", Source: "temporal",
		RawData: map[string]any{"day_part": "morning"},
	})
	unmatched := insertStimulus(t, st, &store.Stimulus{
		Type: store.StimulusOther, Content: "something unclassifiable", Source: "temporal",
	})

	result, err := engine.ProcessStimuli(context.Background(), []*store.Stimulus{matched, unmatched})
	if err != nil {
		t.Fatal(err)
	}
	if result.S1Count != 1 || result.S2Count != 0 {
		t.Errorf("Expected S1 only, got S1=%d S2=%d", result.S1Count, result.S2Count)
	}
	if d.calls != 0 {
		t.Errorf("Expected no deliberation calls at budget 0, got %d", d.calls)
	}
	if !result.BudgetHit {
		t.Error("Expected s2_budget_exceeded to be recorded")
	}
	got, _ := st.GetStimulus(unmatched.ID)
	if got.ActedUpon {
		t.Error("Deferred stimulus should stay unacted for the next cycle")
	}
}

func TestS2BudgetLeavesLowerSalienceForNextCycle(t *testing.T) {
	d := &scriptedDeliberator{responses: []string{`{"thoughts": []}`}}
	engine, st, _ := newEngineFixture(t, d, 1)

	high := insertStimulus(t, st, &store.Stimulus{Type: store.StimulusOther, Content: "salience high", Source: "x"})
	mid := insertStimulus(t, st, &store.Stimulus{Type: store.StimulusOther, Content: "salience mid", Source: "x"})
	low := insertStimulus(t, st, &store.Stimulus{Type: store.StimulusOther, Content: "salience low", Source: "x"})

	result, err := engine.ProcessStimuli(context.Background(), []*store.Stimulus{high, mid, low})
	if err != nil {
		t.Fatal(err)
	}
	if d.calls != 1 {
		t.Errorf("Expected exactly one S2 call, got %d", d.calls)
	}
	if !result.BudgetHit {
		t.Error("Expected budget-exceeded log flag")
	}

	// The one deliberated stimulus is filtered (zero thoughts returned); the
	// other two stay unacted.
	gotHigh, _ := st.GetStimulus(high.ID)
	if !gotHigh.ActedUpon {
		t.Error("Deliberated stimulus should be acted (filtered)")
	}
	for _, stim := range []*store.Stimulus{mid, low} {
		got, _ := st.GetStimulus(stim.ID)
		if got.ActedUpon {
			t.Errorf("Stimulus %q should remain unacted", got.Content)
		}
	}
}

func TestS2ProducesThought(t *testing.T) {
	d := &scriptedDeliberator{responses: []string{
		`{"thoughts": [{"content": "maybe suggest a walk", "category": "care_message",
			"relevance": 0.8, "urgency": 0.5, "impact": 0.7, "coherence": 0.8, "originality": 0.6}]}`,
	}}
	engine, st, _ := newEngineFixture(t, d, 2)
	stim := insertStimulus(t, st, &store.Stimulus{Type: store.StimulusOther, Content: "restless afternoon", Source: "x"})

	result, err := engine.ProcessStimuli(context.Background(), []*store.Stimulus{stim})
	if err != nil {
		t.Fatal(err)
	}
	if result.S2Count != 1 {
		t.Fatalf("Expected one S2 thought, got %d", result.S2Count)
	}
	th := result.Thoughts[0]
	if th.Type != store.ThoughtSystem2 || th.Category != "care_message" {
		t.Errorf("Unexpected thought %s/%s", th.Type, th.Category)
	}
	w := DefaultMotivationWeights()
	want := w.Score(store.MotivationBreakdown{Relevance: 0.8, Urgency: 0.5, Impact: 0.7, Coherence: 0.8, Originality: 0.6})
	if th.MotivationScore != want {
		t.Errorf("Motivation %f, want %f", th.MotivationScore, want)
	}
}

func TestS2UnavailableIsNonFatal(t *testing.T) {
	d := &scriptedDeliberator{fail: true}
	engine, st, _ := newEngineFixture(t, d, 2)

	matched := insertStimulus(t, st, &store.Stimulus{
		Type: store.StimulusTemporal, Content: "Morning has started", Source: "temporal",
		RawData: map[string]any{"day_part": "morning"},
	})
	unmatched := insertStimulus(t, st, &store.Stimulus{Type: store.StimulusOther, Content: "odd signal", Source: "x"})

	result, err := engine.ProcessStimuli(context.Background(), []*store.Stimulus{matched, unmatched})
	if err != nil {
		t.Fatal(err)
	}
	if result.S1Count != 1 {
		t.Errorf("S1 should continue when deliberation is down, got %d", result.S1Count)
	}
	if !result.S2Unavailable {
		t.Error("Expected S2-unavailable flag")
	}
	got, _ := st.GetStimulus(unmatched.ID)
	if got.ActedUpon {
		t.Error("Stimulus should stay unacted when deliberation failed")
	}
}

func TestMotivationWeightsFormula(t *testing.T) {
	w := DefaultMotivationWeights()
	b := store.MotivationBreakdown{Relevance: 1, Urgency: 1, Impact: 1, Coherence: 1, Originality: 1}
	if got := w.Score(b); got != 1 {
		t.Errorf("All-ones breakdown should score 1, got %f", got)
	}
	b = store.MotivationBreakdown{Relevance: 1}
	if got := w.Score(b); got != 0.25 {
		t.Errorf("Relevance-only breakdown should score 0.25, got %f", got)
	}
}
