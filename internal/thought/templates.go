package thought

import (
	"fmt"

	"github.com/mwaldron/aura/internal/store"
)

// Template is one System-1 rule: a match predicate over a stimulus and a
// renderer that turns it into a thought in predictable cost.
type Template struct {
	Name       string
	Category   string // thought category, used by care gates and routing
	Match      func(st *store.Stimulus) bool
	Render     func(st *store.Stimulus) string
	Motivation store.MotivationBreakdown
}

// builtinTemplates is the closed template set matched against each stimulus.
func builtinTemplates() []Template {
	return []Template{
		{
			Name:     "morning_checkin",
			Category: "care_message",
			Match: func(st *store.Stimulus) bool {
				return st.Type == store.StimulusTemporal && rawString(st, "day_part") == "morning"
			},
			Render: func(st *store.Stimulus) string {
				return "Good morning — how are you feeling about the day ahead?"
			},
			Motivation: store.MotivationBreakdown{Relevance: 0.8, Urgency: 0.5, Impact: 0.6, Coherence: 0.9, Originality: 0.2},
		},
		{
			Name:     "evening_winddown",
			Category: "care_message",
			Match: func(st *store.Stimulus) bool {
				return st.Type == store.StimulusTemporal && rawString(st, "day_part") == "evening"
			},
			Render: func(st *store.Stimulus) string {
				return "The day is winding down — anything worth noting before tomorrow?"
			},
			Motivation: store.MotivationBreakdown{Relevance: 0.6, Urgency: 0.3, Impact: 0.5, Coherence: 0.9, Originality: 0.2},
		},
		{
			Name:     "calendar_reminder",
			Category: "reminder",
			Match: func(st *store.Stimulus) bool {
				return st.Type == store.StimulusCalendar && rawString(st, "title") != ""
			},
			Render: func(st *store.Stimulus) string {
				return fmt.Sprintf("Heads up: %s is coming up soon.", rawString(st, "title"))
			},
			Motivation: store.MotivationBreakdown{Relevance: 0.9, Urgency: 0.9, Impact: 0.7, Coherence: 0.9, Originality: 0.1},
		},
		{
			Name:     "goal_deadline",
			Category: "reminder",
			Match: func(st *store.Stimulus) bool {
				return st.Type == store.StimulusGoal && rawString(st, "title") != ""
			},
			Render: func(st *store.Stimulus) string {
				if rawBool(st, "overdue") {
					return fmt.Sprintf("%s slipped past its deadline — want to reschedule or let it go?", rawString(st, "title"))
				}
				return fmt.Sprintf("%s is due soon — still on track?", rawString(st, "title"))
			},
			Motivation: store.MotivationBreakdown{Relevance: 0.9, Urgency: 0.8, Impact: 0.8, Coherence: 0.9, Originality: 0.2},
		},
		{
			Name:     "emotional_support",
			Category: "care_message",
			Match: func(st *store.Stimulus) bool {
				return st.Type == store.StimulusEmotional && rawFloat(st, "valence") < 0
			},
			Render: func(st *store.Stimulus) string {
				if label := rawString(st, "label"); label != "" {
					return fmt.Sprintf("I noticed some %s earlier. I'm here if talking would help.", label)
				}
				return "Today seems heavier than usual. I'm here if talking would help."
			},
			Motivation: store.MotivationBreakdown{Relevance: 0.8, Urgency: 0.7, Impact: 0.9, Coherence: 0.8, Originality: 0.3},
		},
		{
			Name:     "anniversary_note",
			Category: "memory",
			Match: func(st *store.Stimulus) bool {
				return st.Type == store.StimulusAnniversary
			},
			Render: func(st *store.Stimulus) string {
				return fmt.Sprintf("On this day: %s. Thought you might like remembering that.", rawString(st, "title"))
			},
			Motivation: store.MotivationBreakdown{Relevance: 0.7, Urgency: 0.3, Impact: 0.6, Coherence: 0.9, Originality: 0.6},
		},
	}
}

func rawString(st *store.Stimulus, key string) string {
	if st.RawData == nil {
		return ""
	}
	s, _ := st.RawData[key].(string)
	return s
}

func rawFloat(st *store.Stimulus, key string) float64 {
	if st.RawData == nil {
		return 0
	}
	switch v := st.RawData[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func rawBool(st *store.Stimulus, key string) bool {
	if st.RawData == nil {
		return false
	}
	b, _ := st.RawData[key].(bool)
	return b
}
