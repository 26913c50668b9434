package codelets

import (
	"time"

	"github.com/mwaldron/aura/internal/store"
)

// Reads is the read-only slice of the store codelets may consult.
type Reads interface {
	RecentConversationTurns(cutoff time.Time, limit int) ([]*store.ConversationTurn, error)
	RecentEmotions(cutoff time.Time, limit int) ([]*store.Emotion, error)
	ActiveGoals() ([]*store.Goal, error)
	UpcomingEvents(from, to time.Time) ([]*store.CalendarEvent, error)
	EventsOnDay(month time.Month, day int) ([]*store.CalendarEvent, error)
	PatternsByFamily(family string) ([]*store.Pattern, error)
	CurrentCareState(now time.Time) (*store.CareState, error)
}

// Context is the observable context handed to each codelet run. It carries
// the tick time so identical context yields the same stimulus set.
type Context struct {
	Now   time.Time
	Reads Reads
}
