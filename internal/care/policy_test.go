package care

import (
	"testing"
	"time"

	"github.com/mwaldron/aura/internal/config"
	"github.com/mwaldron/aura/internal/store"
)

// fakeLog is a scripted expression log.
type fakeLog struct {
	counts map[string]int
	last   map[string]time.Time
	state  *store.CareState
}

func (f *fakeLog) CountSuccessesBetween(category string, from, to time.Time) (int, error) {
	return f.counts[category], nil
}

func (f *fakeLog) LastSuccessAt(category string) (*time.Time, error) {
	if t, ok := f.last[category]; ok {
		return &t, nil
	}
	return nil, nil
}

func (f *fakeLog) CurrentCareState(now time.Time) (*store.CareState, error) {
	return f.state, nil
}

func newTestPolicy(log *fakeLog) *Policy {
	cfg := &config.CareConfig{
		DNDWeekday:      []config.Interval{{Start: "23:00", End: "06:00"}},
		DNDWeekend:      []config.Interval{{Start: "00:00", End: "09:00"}},
		DailyLimits:     map[string]int{"default": 3},
		CooldownMinutes: map[string]int{"default": 30},
	}
	return NewPolicy(cfg, log)
}

// wednesday returns a weekday timestamp at the given clock time.
func wednesday(hour, min, sec int) time.Time {
	return time.Date(2026, 3, 4, hour, min, sec, 0, time.UTC) // a Wednesday
}

func TestDNDCrossingMidnight(t *testing.T) {
	p := newTestPolicy(&fakeLog{})

	cases := []struct {
		at   time.Time
		want bool
	}{
		{wednesday(23, 0, 0), true},   // window start inclusive
		{wednesday(2, 30, 0), true},   // middle of the night
		{wednesday(5, 59, 59), true},  // last second inside
		{wednesday(6, 0, 0), false},   // end exclusive
		{wednesday(12, 0, 0), false},  // midday
		{wednesday(22, 59, 59), false},
	}
	for _, c := range cases {
		if got := p.InDND("care_message", c.at); got != c.want {
			t.Errorf("InDND at %s = %v, want %v", c.at.Format("15:04:05"), got, c.want)
		}
	}
}

func TestDNDWeekendWindows(t *testing.T) {
	p := newTestPolicy(&fakeLog{})
	saturday := time.Date(2026, 3, 7, 8, 30, 0, 0, time.UTC)
	if !p.InDND("care_message", saturday) {
		t.Error("Expected weekend DND at 08:30 Saturday")
	}
	saturdayLate := time.Date(2026, 3, 7, 9, 0, 0, 0, time.UTC)
	if p.InDND("care_message", saturdayLate) {
		t.Error("Expected no DND at 09:00 Saturday")
	}
}

func TestDailyCap(t *testing.T) {
	log := &fakeLog{counts: map[string]int{"reminder": 3}}
	p := newTestPolicy(log)

	capped, err := p.DailyCapReached("reminder", wednesday(12, 0, 0))
	if err != nil {
		t.Fatal(err)
	}
	if !capped {
		t.Error("Expected cap reached at 3/3")
	}

	log.counts["reminder"] = 2
	capped, _ = p.DailyCapReached("reminder", wednesday(12, 0, 0))
	if capped {
		t.Error("Expected cap not reached at 2/3")
	}
}

func TestCooldown(t *testing.T) {
	now := wednesday(12, 0, 0)
	log := &fakeLog{last: map[string]time.Time{"reminder": now.Add(-10 * time.Minute)}}
	p := newTestPolicy(log)

	remaining, err := p.CooldownRemaining("reminder", now)
	if err != nil {
		t.Fatal(err)
	}
	if remaining != 20*time.Minute {
		t.Errorf("Expected 20m cooldown remaining, got %s", remaining)
	}

	log.last["reminder"] = now.Add(-31 * time.Minute)
	remaining, _ = p.CooldownRemaining("reminder", now)
	if remaining != 0 {
		t.Errorf("Expected cooldown elapsed, got %s", remaining)
	}
}

func TestAllowedNowReasons(t *testing.T) {
	now := wednesday(2, 30, 0)
	p := newTestPolicy(&fakeLog{})
	allowed, reason, err := p.AllowedNow("care_message", now)
	if err != nil {
		t.Fatal(err)
	}
	if allowed || reason != store.SuppressDND {
		t.Errorf("Expected dnd suppression, got allowed=%v reason=%s", allowed, reason)
	}

	midday := wednesday(12, 0, 0)
	log := &fakeLog{counts: map[string]int{"care_message": 5}}
	p = newTestPolicy(log)
	allowed, reason, _ = p.AllowedNow("care_message", midday)
	if allowed || reason != store.SuppressRateLimit {
		t.Errorf("Expected rate_limit suppression, got allowed=%v reason=%s", allowed, reason)
	}

	p = newTestPolicy(&fakeLog{})
	allowed, _, _ = p.AllowedNow("care_message", midday)
	if !allowed {
		t.Error("Expected emission allowed at midday with empty log")
	}
}
