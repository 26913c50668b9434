// Package pattern mines recurring regularities from episodic data and turns
// the confident ones into verifiable predictions. A verification sweep
// resolves due predictions against what actually happened.
package pattern

import (
	"fmt"
	"time"

	"github.com/mwaldron/aura/internal/clock"
	"github.com/mwaldron/aura/internal/logging"
	"github.com/mwaldron/aura/internal/store"
)

// Engine mines the five pattern families and manages predictions.
type Engine struct {
	store *store.Store
	clk   clock.Clock

	Lookback      time.Duration
	ConfidenceMin float64 // persistence threshold
	PredictMin    float64 // prediction-emission threshold
}

// NewEngine creates a pattern engine.
func NewEngine(st *store.Store, clk clock.Clock) *Engine {
	return &Engine{
		store:         st,
		clk:           clk,
		Lookback:      14 * 24 * time.Hour,
		ConfidenceMin: 0.5,
		PredictMin:    0.7,
	}
}

// Mine runs all families over the recent window, persists confident
// patterns (deduplicated by structural key), and emits predictions.
func (e *Engine) Mine() (patterns, predictions int, err error) {
	now := e.clk.Now()
	cutoff := now.Add(-e.Lookback)

	turns, err := e.store.RecentConversationTurns(cutoff, 2000)
	if err != nil {
		return 0, 0, err
	}
	emotions, err := e.store.RecentEmotions(cutoff, 1000)
	if err != nil {
		return 0, 0, err
	}
	events, err := e.store.UpcomingEvents(cutoff, now.Add(7*24*time.Hour))
	if err != nil {
		return 0, 0, err
	}

	var all []mined
	all = append(all, mineTimeOfDay(turns)...)
	all = append(all, mineEmotionalCycle(emotions)...)
	all = append(all, mineTopicSequence(turns)...)
	all = append(all, mineActivity(events)...)
	all = append(all, mineSessionDuration(turns)...)

	for _, m := range all {
		if m.Confidence < e.ConfidenceMin {
			continue
		}
		p := &store.Pattern{
			Family:      m.Family,
			Key:         m.Key,
			Description: m.Description,
			Confidence:  m.Confidence,
			Support:     m.Support,
			Data:        m.Data,
		}
		id, err := e.store.UpsertPattern(p, now)
		if err != nil {
			return patterns, predictions, err
		}
		patterns++

		if m.Confidence >= e.PredictMin {
			if pred := e.predictionFor(m, id, now); pred != nil {
				inserted, err := e.store.InsertPrediction(pred, now)
				if err != nil {
					return patterns, predictions, err
				}
				if inserted {
					predictions++
				}
			}
		}
	}
	if patterns > 0 {
		logging.Info("pattern", "mined %d patterns, emitted %d predictions", patterns, predictions)
	}
	return patterns, predictions, nil
}

// predictionFor derives a near-future forecast from a mined pattern.
func (e *Engine) predictionFor(m mined, patternID string, now time.Time) *store.Prediction {
	switch m.Family {
	case FamilyTimeOfDay:
		hour, _ := m.Data["hour"].(int)
		next := nextAtHour(now, hour)
		return &store.Prediction{
			Type:           m.Family,
			Text:           fmt.Sprintf("User will be active around %02d:00", hour),
			Confidence:     m.Confidence,
			PredictedTime:  next,
			BasedOnPattern: patternID,
		}
	case FamilyEmotionalCycle:
		hour, _ := m.Data["hour"].(int)
		tilt, _ := m.Data["tilt"].(string)
		next := nextAtHour(now, hour)
		return &store.Prediction{
			Type:           m.Family,
			Text:           fmt.Sprintf("Mood will tilt %s around %02d:00", tilt, hour),
			Confidence:     m.Confidence,
			PredictedTime:  next,
			BasedOnPattern: patternID,
		}
	case FamilyActivity:
		weekday, _ := m.Data["weekday"].(int)
		title, _ := m.Data["title"].(string)
		next := nextWeekday(now, time.Weekday(weekday))
		return &store.Prediction{
			Type:           m.Family,
			Text:           fmt.Sprintf("%q will recur on %s", title, time.Weekday(weekday)),
			Confidence:     m.Confidence,
			PredictedTime:  next,
			BasedOnPattern: patternID,
		}
	}
	// topic_sequence and session_duration patterns inform salience but have
	// no time-bound forecast.
	return nil
}

func nextAtHour(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

func nextWeekday(now time.Time, wd time.Weekday) time.Time {
	days := (int(wd) - int(now.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	day := now.Add(time.Duration(days) * 24 * time.Hour)
	return time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, now.Location())
}
