// Package care enforces the wellbeing-driven emission policy: DND windows,
// per-category daily caps, and cooldowns. Every predicate is a pure function
// of the store and the clock so the router can evaluate them against the
// same snapshot that records the emission.
package care

import (
	"time"

	"github.com/mwaldron/aura/internal/config"
	"github.com/mwaldron/aura/internal/store"
)

// ExpressionLog is the slice of the store the predicates consult.
type ExpressionLog interface {
	CountSuccessesBetween(category string, from, to time.Time) (int, error)
	LastSuccessAt(category string) (*time.Time, error)
	CurrentCareState(now time.Time) (*store.CareState, error)
}

// Policy evaluates the care predicates.
type Policy struct {
	cfg *config.CareConfig
	log ExpressionLog
}

// NewPolicy creates a care policy over the given config and expression log.
func NewPolicy(cfg *config.CareConfig, log ExpressionLog) *Policy {
	return &Policy{cfg: cfg, log: log}
}

// SetConfig swaps the care configuration (reload).
func (p *Policy) SetConfig(cfg *config.CareConfig) {
	p.cfg = cfg
}

// InDND reports whether a DND window holds for the category at now. Windows
// are per day-type and may cross midnight; the end minute is exclusive, so a
// 23:00–06:00 window suppresses at 05:59:59 and allows at 06:00:00.
func (p *Policy) InDND(category string, now time.Time) bool {
	intervals := p.cfg.DNDWeekday
	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		intervals = p.cfg.DNDWeekend
	}
	minute := now.Hour()*60 + now.Minute()
	for _, iv := range intervals {
		start, err1 := config.ParseClock(iv.Start)
		end, err2 := config.ParseClock(iv.End)
		if err1 != nil || err2 != nil {
			continue
		}
		if start <= end {
			if minute >= start && minute < end {
				return true
			}
		} else { // crosses midnight
			if minute >= start || minute < end {
				return true
			}
		}
	}
	return false
}

// DailyCapReached reports whether the category hit its cap for now's
// calendar day in the reference timezone.
func (p *Policy) DailyCapReached(category string, now time.Time) (bool, error) {
	limit := p.cfg.DailyLimit(category)
	if limit < 0 {
		return false, nil
	}
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	count, err := p.log.CountSuccessesBetween(category, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		return false, err
	}
	return count >= limit, nil
}

// CooldownRemaining returns how long until the category may emit again; zero
// when the cooldown has elapsed or no prior emission exists.
func (p *Policy) CooldownRemaining(category string, now time.Time) (time.Duration, error) {
	cooldown := p.cfg.Cooldown(category)
	if cooldown <= 0 {
		return 0, nil
	}
	last, err := p.log.LastSuccessAt(category)
	if err != nil {
		return 0, err
	}
	if last == nil {
		return 0, nil
	}
	if remaining := cooldown - now.Sub(*last); remaining > 0 {
		return remaining, nil
	}
	return 0, nil
}

// AllowedNow combines the three gates for an external emission.
func (p *Policy) AllowedNow(category string, now time.Time) (bool, store.SuppressReason, error) {
	if p.InDND(category, now) {
		return false, store.SuppressDND, nil
	}
	capped, err := p.DailyCapReached(category, now)
	if err != nil {
		return false, store.SuppressNone, err
	}
	if capped {
		return false, store.SuppressRateLimit, nil
	}
	remaining, err := p.CooldownRemaining(category, now)
	if err != nil {
		return false, store.SuppressNone, err
	}
	if remaining > 0 {
		return false, store.SuppressRateLimit, nil
	}
	return true, store.SuppressNone, nil
}

// CurrentWellbeing returns the wellbeing snapshot valid at now, or nil.
func (p *Policy) CurrentWellbeing(now time.Time) (*store.CareState, error) {
	return p.log.CurrentCareState(now)
}

// DetectedUserState returns the current detected state label ("" when none).
func (p *Policy) DetectedUserState(now time.Time) (string, error) {
	state, err := p.log.CurrentCareState(now)
	if err != nil || state == nil {
		return "", err
	}
	return state.DetectedState, nil
}
