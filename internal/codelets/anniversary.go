package codelets

import (
	"context"
	"fmt"
	"time"

	"github.com/mwaldron/aura/internal/store"
)

// AnniversaryCodelet notices calendar events from prior years that land on
// today's date.
type AnniversaryCodelet struct{}

// NewAnniversaryCodelet creates the anniversary codelet.
func NewAnniversaryCodelet() *AnniversaryCodelet {
	return &AnniversaryCodelet{}
}

func (c *AnniversaryCodelet) Name() string                 { return "anniversary" }
func (c *AnniversaryCodelet) Category() store.StimulusType { return store.StimulusAnniversary }
func (c *AnniversaryCodelet) Cadence() time.Duration       { return 12 * time.Hour }

func (c *AnniversaryCodelet) Run(ctx context.Context, rc *Context) ([]*store.Stimulus, error) {
	events, err := rc.Reads.EventsOnDay(rc.Now.Month(), rc.Now.Day())
	if err != nil {
		return nil, err
	}
	var out []*store.Stimulus
	for _, ev := range events {
		years := rc.Now.Year() - ev.StartsAt.Year()
		if years < 1 {
			continue
		}
		out = append(out, &store.Stimulus{
			Type:    store.StimulusAnniversary,
			Source:  c.Name(),
			Content: fmt.Sprintf("%d year(s) ago today: %s", years, ev.Title),
			RawData: map[string]any{
				"event_id":  ev.ID,
				"title":     ev.Title,
				"years_ago": years,
				"emotional": 0.5,
			},
		})
	}
	return out, nil
}
