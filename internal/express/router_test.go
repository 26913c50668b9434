package express

import (
	"context"
	"testing"
	"time"

	"github.com/mwaldron/aura/internal/care"
	"github.com/mwaldron/aura/internal/clock"
	"github.com/mwaldron/aura/internal/config"
	"github.com/mwaldron/aura/internal/store"
)

// fakeChannel records sends and can be told to fail.
type fakeChannel struct {
	name string
	sent []string
	fail bool
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(ctx context.Context, payload string) (SendResult, error) {
	if f.fail {
		return SendResult{}, context.DeadlineExceeded
	}
	f.sent = append(f.sent, payload)
	return SendResult{Delivered: true, MessageID: "m1"}, nil
}

type routerFixture struct {
	store   *store.Store
	clk     *clock.Fake
	router  *Router
	channel *fakeChannel
}

func newFixture(t *testing.T, at time.Time, careCfg *config.CareConfig) *routerFixture {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	if careCfg == nil {
		careCfg = &config.CareConfig{
			DailyLimits:     map[string]int{"default": 10},
			CooldownMinutes: map[string]int{},
		}
	}
	clk := clock.NewFake(at)
	policy := care.NewPolicy(careCfg, st)
	critic := NewCritic(st, nil) // heuristics only
	table := &ChannelPolicy{
		Rules: map[string]map[string]string{
			"care_message": {"default": "messenger"},
			"reminder":     {"default": "messenger"},
			"memory":       {"default": ""},
		},
		FilteredStates:  []string{"sleeping", "deep_focus"},
		OverrideFilters: []string{"reminder"},
	}
	router := NewRouter(st, critic, policy, table, clk, &config.ExpressConfig{
		Threshold:        0.6,
		QualityThreshold: 0.7,
		DedupWindowMin:   60,
		QueueExpiryMin:   1440,
	})
	ch := &fakeChannel{name: "messenger"}
	router.RegisterChannel(ch)
	return &routerFixture{store: st, clk: clk, router: router, channel: ch}
}

func (f *routerFixture) addThought(t *testing.T, category, content string, motivation float64) *store.Thought {
	t.Helper()
	th := &store.Thought{
		Type: store.ThoughtSystem1, Category: category, Content: content,
		MotivationScore: motivation,
		MemoryContext:   map[string]any{"seed": "test"},
	}
	if err := f.store.InsertThought(th, f.clk.Now()); err != nil {
		t.Fatal(err)
	}
	return th
}

// wednesdayAt is a weekday reference instant.
func wednesdayAt(hour, min int) time.Time {
	return time.Date(2026, 3, 4, hour, min, 0, 0, time.UTC)
}

func TestDNDSuppression(t *testing.T) {
	careCfg := &config.CareConfig{
		DNDWeekday:      []config.Interval{{Start: "00:00", End: "06:00"}},
		DailyLimits:     map[string]int{"default": 10},
		CooldownMinutes: map[string]int{},
	}
	f := newFixture(t, wednesdayAt(2, 30), careCfg)
	th := f.addThought(t, "care_message", "thinking of you tonight", 0.85)

	if err := f.router.RouteActive(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(f.channel.sent) != 0 {
		t.Errorf("Expected no outbound send under DND, got %d", len(f.channel.sent))
	}
	attempts, err := f.store.RecentAttempts(wednesdayAt(0, 0), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(attempts) != 1 {
		t.Fatalf("Expected 1 attempt row, got %d", len(attempts))
	}
	if attempts[0].Success || attempts[0].SuppressReason != store.SuppressDND {
		t.Errorf("Expected dnd suppression, got success=%v reason=%s", attempts[0].Success, attempts[0].SuppressReason)
	}
	got, _ := f.store.GetThought(th.ID)
	if got.Status != store.ThoughtActive {
		t.Errorf("Suppressed thought should stay active, got %s", got.Status)
	}
}

func TestDuplicateWindowThenElapsed(t *testing.T) {
	f := newFixture(t, wednesdayAt(10, 0), nil)

	first := f.addThought(t, "reminder", "remember to hydrate", 0.8)
	if err := f.router.RouteActive(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(f.channel.sent) != 1 {
		t.Fatalf("Expected first emission to send, got %d", len(f.channel.sent))
	}
	if got, _ := f.store.GetThought(first.ID); got.Status != store.ThoughtExpressed {
		t.Fatalf("Expected first thought expressed, got %s", got.Status)
	}

	// 10:30 — identical normalized content inside the 60-minute window
	f.clk.Set(wednesdayAt(10, 30))
	second := f.addThought(t, "reminder", "Remember to hydrate", 0.8)
	if err := f.router.RouteActive(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(f.channel.sent) != 1 {
		t.Errorf("Expected duplicate to be suppressed, sends=%d", len(f.channel.sent))
	}
	attempts, _ := f.store.RecentAttempts(wednesdayAt(10, 29), 10)
	var dupSeen bool
	for _, a := range attempts {
		if a.ThoughtID == second.ID && a.SuppressReason == store.SuppressDuplicate && !a.Success {
			dupSeen = true
		}
	}
	if !dupSeen {
		t.Error("Expected a duplicate-suppression attempt row")
	}
	if got, _ := f.store.GetThought(second.ID); got.Status != store.ThoughtActive {
		t.Errorf("Duplicate-suppressed thought should stay active, got %s", got.Status)
	}

	// 11:05 — window elapsed, the same thought emits successfully
	f.clk.Set(wednesdayAt(11, 5))
	if err := f.router.RouteActive(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(f.channel.sent) != 2 {
		t.Errorf("Expected emission after window elapsed, sends=%d", len(f.channel.sent))
	}
	if got, _ := f.store.GetThought(second.ID); got.Status != store.ThoughtExpressed {
		t.Errorf("Expected second thought expressed after window, got %s", got.Status)
	}
}

func TestThresholdBoundary(t *testing.T) {
	f := newFixture(t, wednesdayAt(10, 0), nil)

	atThreshold := f.addThought(t, "reminder", "exactly at threshold", 0.6)
	below := f.addThought(t, "reminder", "just below threshold", 0.5999)

	if err := f.router.RouteActive(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got, _ := f.store.GetThought(atThreshold.ID); got.Status != store.ThoughtExpressed {
		t.Errorf("Motivation exactly at threshold must route, got %s", got.Status)
	}
	if got, _ := f.store.GetThought(below.ID); got.Status != store.ThoughtActive {
		t.Errorf("Motivation below threshold must not route, got %s", got.Status)
	}
	attempts, _ := f.store.RecentAttempts(wednesdayAt(9, 0), 10)
	for _, a := range attempts {
		if a.ThoughtID == below.ID {
			t.Error("Below-threshold thought should produce no attempt row")
		}
	}
}

func TestOneEmissionPerCategoryPerTick(t *testing.T) {
	f := newFixture(t, wednesdayAt(10, 0), nil)
	f.addThought(t, "reminder", "first reminder", 0.9)
	f.addThought(t, "reminder", "second reminder", 0.8)

	if err := f.router.RouteActive(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(f.channel.sent) != 1 {
		t.Errorf("Expected one external emission per category per tick, got %d", len(f.channel.sent))
	}
	if f.channel.sent[0] != "first reminder" {
		t.Errorf("Expected highest motivation first, got %q", f.channel.sent[0])
	}
}

func TestStateFilterAndOverride(t *testing.T) {
	f := newFixture(t, wednesdayAt(10, 0), nil)
	if err := f.store.InsertCareState(&store.CareState{
		Wellbeing: 0.5, DetectedState: "deep_focus",
		ValidFrom: wednesdayAt(9, 0), ValidUntil: wednesdayAt(12, 0),
	}); err != nil {
		t.Fatal(err)
	}

	filtered := f.addThought(t, "care_message", "how is the day going", 0.8)
	override := f.addThought(t, "reminder", "meeting in ten minutes", 0.9)

	if err := f.router.RouteActive(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got, _ := f.store.GetThought(filtered.ID); got.Status != store.ThoughtActive {
		t.Errorf("Filtered-state thought should stay active, got %s", got.Status)
	}
	attempts, _ := f.store.RecentAttempts(wednesdayAt(9, 0), 10)
	var sawFilter bool
	for _, a := range attempts {
		if a.ThoughtID == filtered.ID && a.SuppressReason == store.SuppressStateFilter {
			sawFilter = true
			if a.DetectedUserState != "deep_focus" {
				t.Errorf("Expected detected state recorded, got %q", a.DetectedUserState)
			}
		}
	}
	if !sawFilter {
		t.Error("Expected state_filter suppression row")
	}
	if got, _ := f.store.GetThought(override.ID); got.Status != store.ThoughtExpressed {
		t.Errorf("Override category should emit through filtered state, got %s", got.Status)
	}
}

func TestDeliveryFailureKeepsThoughtActive(t *testing.T) {
	f := newFixture(t, wednesdayAt(10, 0), nil)
	f.channel.fail = true
	th := f.addThought(t, "reminder", "flaky delivery", 0.8)

	if err := f.router.RouteActive(context.Background()); err != nil {
		t.Fatal(err)
	}
	attempts, _ := f.store.RecentAttempts(wednesdayAt(9, 0), 10)
	if len(attempts) != 1 || attempts[0].Success {
		t.Fatalf("Expected one failed attempt, got %+v", attempts)
	}
	if got, _ := f.store.GetThought(th.ID); got.Status != store.ThoughtActive {
		t.Errorf("Failed delivery should keep thought active, got %s", got.Status)
	}

	// Next tick, channel recovers and the thought re-routes
	f.channel.fail = false
	f.clk.Advance(time.Minute)
	if err := f.router.RouteActive(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got, _ := f.store.GetThought(th.ID); got.Status != store.ThoughtExpressed {
		t.Errorf("Expected re-route to succeed, got %s", got.Status)
	}
}

func TestUnmappedCategoryEnqueuesForUI(t *testing.T) {
	f := newFixture(t, wednesdayAt(10, 0), nil)
	th := f.addThought(t, "memory", "a quiet observation", 0.8)

	if err := f.router.RouteActive(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(f.channel.sent) != 0 {
		t.Errorf("UI-routed category should not hit external channels")
	}
	pending, err := f.store.PendingQueue(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ThoughtID != th.ID {
		t.Fatalf("Expected queued expression for thought, got %+v", pending)
	}
	if pending[0].Status != store.QueuePending {
		t.Errorf("Queued expression should stay pending until polled, got %s", pending[0].Status)
	}
	if got, _ := f.store.GetThought(th.ID); got.ExpressedVia != "ui" {
		t.Errorf("Expected expressed via ui, got %q", got.ExpressedVia)
	}

	// The UI delivery leaves a successful attempt so reward aggregation and
	// the expressed-thought invariant both see UI-routed thoughts.
	attempt, err := f.store.SuccessfulAttemptForThought(th.ID)
	if err != nil {
		t.Fatalf("Expected a successful ui attempt: %v", err)
	}
	if attempt.Channel != "ui" || attempt.MessageSent != th.Content {
		t.Errorf("Unexpected ui attempt: %+v", attempt)
	}
}

func TestCritiqueRowsAlwaysWritten(t *testing.T) {
	f := newFixture(t, wednesdayAt(10, 0), nil)
	th := f.addThought(t, "reminder", "", 0.8) // empty content fails verification

	if err := f.router.RouteActive(context.Background()); err != nil {
		t.Fatal(err)
	}
	critique, err := f.store.LatestCritique(th.ID)
	if err != nil {
		t.Fatal(err)
	}
	if critique == nil {
		t.Fatal("Expected a critique row even for a suppressed thought")
	}
	if critique.VerificationPassed {
		t.Error("Empty content should fail verification")
	}
	attempts, _ := f.store.RecentAttempts(wednesdayAt(9, 0), 10)
	if len(attempts) != 1 || attempts[0].SuppressReason != store.SuppressQuality {
		t.Errorf("Expected quality suppression, got %+v", attempts)
	}
}
