package codelets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tsawler/prose/v3"

	"github.com/mwaldron/aura/internal/store"
)

// SocialCodelet extracts people mentioned in recent user messages and emits
// social stimuli for names that recur.
type SocialCodelet struct {
	Lookback   time.Duration
	MinMention int
}

// NewSocialCodelet creates the social codelet with defaults.
func NewSocialCodelet() *SocialCodelet {
	return &SocialCodelet{Lookback: 6 * time.Hour, MinMention: 2}
}

func (c *SocialCodelet) Name() string                 { return "social" }
func (c *SocialCodelet) Category() store.StimulusType { return store.StimulusSocial }
func (c *SocialCodelet) Cadence() time.Duration       { return 20 * time.Minute }

func (c *SocialCodelet) Run(ctx context.Context, rc *Context) ([]*store.Stimulus, error) {
	turns, err := rc.Reads.RecentConversationTurns(rc.Now.Add(-c.Lookback), 200)
	if err != nil {
		return nil, err
	}

	mentions := make(map[string]int)
	for _, t := range turns {
		if t.Role != "user" {
			continue
		}
		for _, name := range extractPeople(t.Content) {
			mentions[name]++
		}
	}

	var out []*store.Stimulus
	for name, count := range mentions {
		if count < c.MinMention {
			continue
		}
		out = append(out, &store.Stimulus{
			Type:    store.StimulusSocial,
			Source:  c.Name(),
			Content: fmt.Sprintf("%s has come up %d times recently", name, count),
			RawData: map[string]any{
				"person":   name,
				"mentions": count,
				"social":   clamp01(0.4 + 0.15*float64(count)),
			},
		})
	}
	return out, nil
}

// extractPeople runs prose NER and keeps PERSON entities.
func extractPeople(text string) []string {
	doc, err := prose.NewDocument(text)
	if err != nil {
		return nil
	}
	var names []string
	for _, ent := range doc.Entities() {
		if strings.ToUpper(ent.Label) != "PERSON" {
			continue
		}
		name := strings.TrimSpace(ent.Text)
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
