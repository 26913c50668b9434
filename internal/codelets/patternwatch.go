package codelets

import (
	"context"
	"time"

	"github.com/mwaldron/aura/internal/store"
)

// patternFamilies are the mining families the watcher surfaces.
var patternFamilies = []string{
	"time_of_day", "emotional_cycle", "topic_sequence", "activity", "session_duration",
}

// PatternWatchCodelet turns high-confidence mined patterns into stimuli so
// the thought engine can act on them.
type PatternWatchCodelet struct {
	ConfidenceMin float64
}

// NewPatternWatchCodelet creates the pattern-watch codelet with defaults.
func NewPatternWatchCodelet() *PatternWatchCodelet {
	return &PatternWatchCodelet{ConfidenceMin: 0.7}
}

func (c *PatternWatchCodelet) Name() string                 { return "pattern_watch" }
func (c *PatternWatchCodelet) Category() store.StimulusType { return store.StimulusPattern }
func (c *PatternWatchCodelet) Cadence() time.Duration       { return time.Hour }

func (c *PatternWatchCodelet) Run(ctx context.Context, rc *Context) ([]*store.Stimulus, error) {
	var out []*store.Stimulus
	for _, family := range patternFamilies {
		patterns, err := rc.Reads.PatternsByFamily(family)
		if err != nil {
			return nil, err
		}
		for _, p := range patterns {
			if p.Confidence < c.ConfidenceMin {
				continue
			}
			out = append(out, &store.Stimulus{
				Type:    store.StimulusPattern,
				Source:  c.Name(),
				Content: p.Description,
				RawData: map[string]any{
					"pattern_id": p.ID,
					"family":     p.Family,
					"confidence": p.Confidence,
				},
			})
		}
	}
	return out, nil
}
