package pattern

import (
	"time"

	"github.com/mwaldron/aura/internal/logging"
	"github.com/mwaldron/aura/internal/store"
)

// VerifySweep resolves every due prediction by structurally checking whether
// the forecast outcome occurred. Running the sweep twice without a clock
// advance changes nothing: verified rows are never revisited.
func (e *Engine) VerifySweep() (int, error) {
	now := e.clk.Now()
	due, err := e.store.DuePredictions(now, 200)
	if err != nil {
		return 0, err
	}

	verified := 0
	for _, p := range due {
		correct, err := e.outcomeOccurred(p)
		if err != nil {
			return verified, err
		}
		if err := e.store.MarkPredictionVerified(p.ID, correct, now); err != nil {
			return verified, err
		}
		verified++
	}
	if verified > 0 {
		logging.Info("pattern", "verified %d due predictions", verified)
	}
	return verified, nil
}

// outcomeOccurred is the per-family structural comparison.
func (e *Engine) outcomeOccurred(p *store.Prediction) (bool, error) {
	window := time.Hour
	from := p.PredictedTime.Add(-window)
	to := p.PredictedTime.Add(window)

	switch p.Type {
	case FamilyTimeOfDay:
		turns, err := e.store.RecentConversationTurns(from, 500)
		if err != nil {
			return false, err
		}
		for _, t := range turns {
			if t.Role == "user" && !t.CreatedAt.After(to) {
				return true, nil
			}
		}
		return false, nil

	case FamilyEmotionalCycle:
		emotions, err := e.store.RecentEmotions(from, 200)
		if err != nil {
			return false, err
		}
		for _, em := range emotions {
			if em.CreatedAt.After(to) {
				continue
			}
			return true, nil
		}
		return false, nil

	case FamilyActivity:
		dayStart := time.Date(p.PredictedTime.Year(), p.PredictedTime.Month(), p.PredictedTime.Day(),
			0, 0, 0, 0, p.PredictedTime.Location())
		events, err := e.store.UpcomingEvents(dayStart, dayStart.Add(24*time.Hour))
		if err != nil {
			return false, err
		}
		return len(events) > 0, nil
	}
	return false, nil
}
