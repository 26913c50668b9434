package evolve

import (
	"testing"
	"time"

	"github.com/mwaldron/aura/internal/care"
	"github.com/mwaldron/aura/internal/clock"
	"github.com/mwaldron/aura/internal/config"
	"github.com/mwaldron/aura/internal/express"
	"github.com/mwaldron/aura/internal/salience"
	"github.com/mwaldron/aura/internal/store"
	"github.com/mwaldron/aura/internal/thought"
)

var tunerNow = time.Date(2026, 3, 4, 3, 30, 0, 0, time.UTC)

func newTuner(t *testing.T) (*Tuner, *store.Store, *express.Router) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	clk := clock.NewFake(tunerNow)
	scorer := salience.NewScorer(cfg.Salience.Weights, time.Hour, nil)
	engine := thought.NewEngine(st, nil, clk, 2, 8000, 24)
	policy := care.NewPolicy(&cfg.Care, st)
	critic := express.NewCritic(st, nil)
	router := express.NewRouter(st, critic, policy, express.DefaultChannelPolicy(), clk, &cfg.Express)
	return NewTuner(st, clk, scorer, engine, router, 0.05), st, router
}

func seedRewards(t *testing.T, st *store.Store, combined float64, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		v := combined
		if err := st.InsertRewardSignal(&store.RewardSignal{
			AttemptID:      "a" + string(rune('0'+i)),
			ExplicitScore:  &v,
			CombinedReward: combined,
		}, tunerNow.Add(-time.Duration(i+1)*time.Hour)); err != nil {
			t.Fatal(err)
		}
	}
}

func TestPoorTrendRaisesThreshold(t *testing.T) {
	tuner, st, router := newTuner(t)
	seedRewards(t, st, 0.1, 6)

	before, _ := router.Thresholds()
	changes, err := tuner.Run()
	if err != nil {
		t.Fatal(err)
	}
	if changes == 0 {
		t.Fatal("Expected at least one knob change for a poor trend")
	}
	after, _ := router.Thresholds()
	if after != before+0.05 {
		t.Errorf("Expected threshold %f, got %f", before+0.05, after)
	}
}

func TestStrongTrendLowersThreshold(t *testing.T) {
	tuner, st, router := newTuner(t)
	seedRewards(t, st, 0.9, 6)

	before, _ := router.Thresholds()
	if _, err := tuner.Run(); err != nil {
		t.Fatal(err)
	}
	after, _ := router.Thresholds()
	if after != before-0.05 {
		t.Errorf("Expected threshold %f, got %f", before-0.05, after)
	}
}

func TestStepBoundedAndClamped(t *testing.T) {
	tuner, st, router := newTuner(t)
	seedRewards(t, st, 0.1, 6)

	// Repeated runs may each move at most max_step and never leave the range
	for i := 0; i < 20; i++ {
		if _, err := tuner.Run(); err != nil {
			t.Fatal(err)
		}
	}
	threshold, _ := router.Thresholds()
	if threshold > 0.9 {
		t.Errorf("Threshold escaped its clamp: %f", threshold)
	}
}

func TestTooFewSignalsNoChange(t *testing.T) {
	tuner, st, router := newTuner(t)
	seedRewards(t, st, 0.1, 3)

	before, _ := router.Thresholds()
	changes, err := tuner.Run()
	if err != nil {
		t.Fatal(err)
	}
	if changes != 0 {
		t.Errorf("Expected no changes below the evidence floor, got %d", changes)
	}
	after, _ := router.Thresholds()
	if after != before {
		t.Errorf("Threshold moved without evidence: %f -> %f", before, after)
	}
}
