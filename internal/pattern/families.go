package pattern

import (
	"fmt"
	"sort"
	"time"

	"github.com/mwaldron/aura/internal/store"
)

// Mining family names.
const (
	FamilyTimeOfDay       = "time_of_day"
	FamilyEmotionalCycle  = "emotional_cycle"
	FamilyTopicSequence   = "topic_sequence"
	FamilyActivity        = "activity"
	FamilySessionDuration = "session_duration"
)

// mined is one detected regularity before persistence.
type mined struct {
	Family      string
	Key         string
	Description string
	Confidence  float64
	Support     int
	Data        map[string]any
}

// mineTimeOfDay finds hours that concentrate the user's conversational
// activity.
func mineTimeOfDay(turns []*store.ConversationTurn) []mined {
	byHour := map[int]int{}
	total := 0
	for _, t := range turns {
		if t.Role != "user" {
			continue
		}
		byHour[t.CreatedAt.Hour()]++
		total++
	}
	if total < 10 {
		return nil
	}
	var out []mined
	for hour, n := range byHour {
		share := float64(n) / float64(total)
		if share < 0.2 {
			continue
		}
		out = append(out, mined{
			Family:      FamilyTimeOfDay,
			Key:         fmt.Sprintf("%s:hour=%d", FamilyTimeOfDay, hour),
			Description: fmt.Sprintf("Usually active around %02d:00 (%.0f%% of messages)", hour, share*100),
			Confidence:  minF(share+0.4, 1),
			Support:     n,
			Data:        map[string]any{"hour": hour, "share": share},
		})
	}
	return out
}

// mineEmotionalCycle finds hours with a consistent negative or positive
// emotional tilt.
func mineEmotionalCycle(emotions []*store.Emotion) []mined {
	type agg struct {
		sum float64
		n   int
	}
	byHour := map[int]*agg{}
	for _, e := range emotions {
		a := byHour[e.CreatedAt.Hour()]
		if a == nil {
			a = &agg{}
			byHour[e.CreatedAt.Hour()] = a
		}
		a.sum += e.Valence
		a.n++
	}
	var out []mined
	for hour, a := range byHour {
		if a.n < 3 {
			continue
		}
		avg := a.sum / float64(a.n)
		if avg > -0.3 && avg < 0.3 {
			continue
		}
		tilt := "positive"
		if avg < 0 {
			tilt = "negative"
		}
		out = append(out, mined{
			Family:      FamilyEmotionalCycle,
			Key:         fmt.Sprintf("%s:hour=%d:tilt=%s", FamilyEmotionalCycle, hour, tilt),
			Description: fmt.Sprintf("Mood tends %s around %02d:00 (avg valence %.2f)", tilt, hour, avg),
			Confidence:  minF(0.5+absF(avg)/2+float64(a.n)*0.02, 1),
			Support:     a.n,
			Data:        map[string]any{"hour": hour, "avg_valence": avg, "tilt": tilt},
		})
	}
	return out
}

// mineTopicSequence finds conversation-topic transitions that recur
// (dominant token of one session followed by another).
func mineTopicSequence(turns []*store.ConversationTurn) []mined {
	sessions := splitSessions(turns, 30*time.Minute)
	if len(sessions) < 4 {
		return nil
	}
	topics := make([]string, 0, len(sessions))
	for _, s := range sessions {
		topics = append(topics, dominantToken(s))
	}
	bigrams := map[[2]string]int{}
	for i := 0; i+1 < len(topics); i++ {
		if topics[i] == "" || topics[i+1] == "" || topics[i] == topics[i+1] {
			continue
		}
		bigrams[[2]string{topics[i], topics[i+1]}]++
	}
	var out []mined
	for pair, n := range bigrams {
		if n < 2 {
			continue
		}
		out = append(out, mined{
			Family:      FamilyTopicSequence,
			Key:         fmt.Sprintf("%s:%s->%s", FamilyTopicSequence, pair[0], pair[1]),
			Description: fmt.Sprintf("Conversations about %q tend to be followed by %q", pair[0], pair[1]),
			Confidence:  minF(0.4+0.15*float64(n), 1),
			Support:     n,
			Data:        map[string]any{"from": pair[0], "to": pair[1]},
		})
	}
	return out
}

// mineActivity finds weekday-recurring calendar activity.
func mineActivity(events []*store.CalendarEvent) []mined {
	type key struct {
		weekday time.Weekday
		title   string
	}
	counts := map[key]int{}
	for _, ev := range events {
		counts[key{ev.StartsAt.Weekday(), ev.Title}]++
	}
	var out []mined
	for k, n := range counts {
		if n < 2 {
			continue
		}
		out = append(out, mined{
			Family:      FamilyActivity,
			Key:         fmt.Sprintf("%s:%s:%s", FamilyActivity, k.weekday, k.title),
			Description: fmt.Sprintf("%q recurs on %ss", k.title, k.weekday),
			Confidence:  minF(0.4+0.2*float64(n), 1),
			Support:     n,
			Data:        map[string]any{"weekday": int(k.weekday), "title": k.title},
		})
	}
	return out
}

// mineSessionDuration characterizes typical conversation length.
func mineSessionDuration(turns []*store.ConversationTurn) []mined {
	sessions := splitSessions(turns, 30*time.Minute)
	if len(sessions) < 5 {
		return nil
	}
	durations := make([]float64, 0, len(sessions))
	for _, s := range sessions {
		if len(s) < 2 {
			continue
		}
		durations = append(durations, s[len(s)-1].CreatedAt.Sub(s[0].CreatedAt).Minutes())
	}
	if len(durations) < 5 {
		return nil
	}
	sort.Float64s(durations)
	median := durations[len(durations)/2]
	bucket := "short"
	switch {
	case median >= 45:
		bucket = "long"
	case median >= 15:
		bucket = "medium"
	}
	return []mined{{
		Family:      FamilySessionDuration,
		Key:         fmt.Sprintf("%s:bucket=%s", FamilySessionDuration, bucket),
		Description: fmt.Sprintf("Conversations typically run %s (~%.0f min median)", bucket, median),
		Confidence:  minF(0.5+0.05*float64(len(durations)), 1),
		Support:     len(durations),
		Data:        map[string]any{"bucket": bucket, "median_min": median},
	}}
}

// splitSessions groups turns into sessions separated by gaps.
func splitSessions(turns []*store.ConversationTurn, gap time.Duration) [][]*store.ConversationTurn {
	if len(turns) == 0 {
		return nil
	}
	sorted := append([]*store.ConversationTurn(nil), turns...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	var sessions [][]*store.ConversationTurn
	current := []*store.ConversationTurn{sorted[0]}
	for _, t := range sorted[1:] {
		if t.CreatedAt.Sub(current[len(current)-1].CreatedAt) > gap {
			sessions = append(sessions, current)
			current = nil
		}
		current = append(current, t)
	}
	return append(sessions, current)
}

// dominantToken picks the most frequent content word of a session.
func dominantToken(session []*store.ConversationTurn) string {
	counts := map[string]int{}
	for _, t := range session {
		word := make([]rune, 0, 16)
		flush := func() {
			if len(word) >= 4 {
				counts[string(word)]++
			}
			word = word[:0]
		}
		for _, r := range t.Content {
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
	}
	best, bestN := "", 0
	for tok, n := range counts {
		if n > bestN || (n == bestN && tok < best) {
			best, bestN = tok, n
		}
	}
	return best
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
