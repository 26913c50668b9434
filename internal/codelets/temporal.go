package codelets

import (
	"context"
	"fmt"
	"time"

	"github.com/mwaldron/aura/internal/store"
)

// TemporalCodelet notices day-part transitions and long silences.
type TemporalCodelet struct {
	SilenceAfter time.Duration // quiet gap that becomes worth noticing
}

// NewTemporalCodelet creates the temporal codelet with defaults.
func NewTemporalCodelet() *TemporalCodelet {
	return &TemporalCodelet{SilenceAfter: 6 * time.Hour}
}

func (c *TemporalCodelet) Name() string                 { return "temporal" }
func (c *TemporalCodelet) Category() store.StimulusType { return store.StimulusTemporal }
func (c *TemporalCodelet) Cadence() time.Duration       { return 15 * time.Minute }

func (c *TemporalCodelet) Run(ctx context.Context, rc *Context) ([]*store.Stimulus, error) {
	var out []*store.Stimulus

	switch hour := rc.Now.Hour(); {
	case hour == 8:
		out = append(out, &store.Stimulus{
			Type:    store.StimulusTemporal,
			Source:  c.Name(),
			Content: "Morning has started — a natural moment to check in",
			RawData: map[string]any{"day_part": "morning"},
		})
	case hour == 21:
		out = append(out, &store.Stimulus{
			Type:    store.StimulusTemporal,
			Source:  c.Name(),
			Content: "Evening wind-down — the day is closing",
			RawData: map[string]any{"day_part": "evening"},
		})
	}

	// Long silence since the last conversation turn
	turns, err := rc.Reads.RecentConversationTurns(rc.Now.Add(-24*time.Hour), 1000)
	if err != nil {
		return nil, err
	}
	if len(turns) > 0 {
		last := turns[len(turns)-1].CreatedAt
		if gap := rc.Now.Sub(last); gap >= c.SilenceAfter {
			out = append(out, &store.Stimulus{
				Type:    store.StimulusTemporal,
				Source:  c.Name(),
				Content: fmt.Sprintf("No conversation for %d hours", int(gap.Hours())),
				RawData: map[string]any{"silence_hours": int(gap.Hours())},
			})
		}
	}
	return out, nil
}
