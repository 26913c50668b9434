package codelets

import (
	"context"
	"fmt"
	"time"

	"github.com/mwaldron/aura/internal/store"
)

// EmotionalCodelet notices recent strong emotions and sustained negative drift.
type EmotionalCodelet struct {
	IntensityMin float64
	Lookback     time.Duration
}

// NewEmotionalCodelet creates the emotional codelet with defaults.
func NewEmotionalCodelet() *EmotionalCodelet {
	return &EmotionalCodelet{IntensityMin: 0.6, Lookback: 2 * time.Hour}
}

func (c *EmotionalCodelet) Name() string                 { return "emotional" }
func (c *EmotionalCodelet) Category() store.StimulusType { return store.StimulusEmotional }
func (c *EmotionalCodelet) Cadence() time.Duration       { return 5 * time.Minute }

func (c *EmotionalCodelet) Run(ctx context.Context, rc *Context) ([]*store.Stimulus, error) {
	emotions, err := rc.Reads.RecentEmotions(rc.Now.Add(-c.Lookback), 100)
	if err != nil {
		return nil, err
	}

	var out []*store.Stimulus
	var negSum float64
	for _, e := range emotions {
		if e.Valence < 0 {
			negSum += e.Intensity
		}
		if e.Intensity < c.IntensityMin {
			continue
		}
		out = append(out, &store.Stimulus{
			Type:    store.StimulusEmotional,
			Source:  c.Name(),
			Content: fmt.Sprintf("Strong %s observed (intensity %.1f)", e.Label, e.Intensity),
			RawData: map[string]any{
				"emotion_id": e.ID,
				"label":      e.Label,
				"emotional":  e.Intensity,
				"valence":    e.Valence,
				"trigger":    e.Trigger,
			},
		})
	}

	// Three strong negatives in the window reads as a rough stretch
	if negSum >= 2.0 {
		out = append(out, &store.Stimulus{
			Type:    store.StimulusEmotional,
			Source:  c.Name(),
			Content: "Several negative emotions in the last two hours",
			RawData: map[string]any{"emotional": 0.9, "valence": -0.8, "sustained": true},
		})
	}
	return out, nil
}
