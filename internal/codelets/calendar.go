package codelets

import (
	"context"
	"fmt"
	"time"

	"github.com/mwaldron/aura/internal/store"
)

// CalendarCodelet surfaces events starting within the lead window.
type CalendarCodelet struct {
	Lead time.Duration
}

// NewCalendarCodelet creates the calendar codelet with a default lead window.
func NewCalendarCodelet() *CalendarCodelet {
	return &CalendarCodelet{Lead: 2 * time.Hour}
}

func (c *CalendarCodelet) Name() string                 { return "calendar" }
func (c *CalendarCodelet) Category() store.StimulusType { return store.StimulusCalendar }
func (c *CalendarCodelet) Cadence() time.Duration       { return 10 * time.Minute }

func (c *CalendarCodelet) Run(ctx context.Context, rc *Context) ([]*store.Stimulus, error) {
	events, err := rc.Reads.UpcomingEvents(rc.Now, rc.Now.Add(c.Lead))
	if err != nil {
		return nil, err
	}
	var out []*store.Stimulus
	for _, ev := range events {
		mins := int(ev.StartsAt.Sub(rc.Now).Minutes())
		out = append(out, &store.Stimulus{
			Type:    store.StimulusCalendar,
			Source:  c.Name(),
			Content: fmt.Sprintf("%q starts in %d minutes", ev.Title, mins),
			RawData: map[string]any{
				"event_id": ev.ID,
				"title":    ev.Title,
				"deadline": ev.StartsAt.Format(time.RFC3339),
				"location": ev.Location,
			},
		})
	}
	return out, nil
}
