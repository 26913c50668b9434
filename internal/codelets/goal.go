package codelets

import (
	"context"
	"fmt"
	"time"

	"github.com/mwaldron/aura/internal/store"
)

// GoalCodelet surfaces goals with approaching deadlines.
type GoalCodelet struct {
	DeadlineLead time.Duration
}

// NewGoalCodelet creates the goal codelet with defaults.
func NewGoalCodelet() *GoalCodelet {
	return &GoalCodelet{DeadlineLead: 48 * time.Hour}
}

func (c *GoalCodelet) Name() string                 { return "goal" }
func (c *GoalCodelet) Category() store.StimulusType { return store.StimulusGoal }
func (c *GoalCodelet) Cadence() time.Duration       { return 30 * time.Minute }

func (c *GoalCodelet) Run(ctx context.Context, rc *Context) ([]*store.Stimulus, error) {
	goals, err := rc.Reads.ActiveGoals()
	if err != nil {
		return nil, err
	}
	var out []*store.Stimulus
	for _, g := range goals {
		if g.Deadline == nil {
			continue
		}
		remaining := g.Deadline.Sub(rc.Now)
		if remaining < 0 {
			out = append(out, &store.Stimulus{
				Type:    store.StimulusGoal,
				Source:  c.Name(),
				Content: fmt.Sprintf("Goal %q is past its deadline", g.Title),
				RawData: map[string]any{
					"goal_id":  g.ID,
					"title":    g.Title,
					"deadline": g.Deadline.Format(time.RFC3339),
					"overdue":  true,
				},
			})
			continue
		}
		if remaining <= c.DeadlineLead {
			out = append(out, &store.Stimulus{
				Type:    store.StimulusGoal,
				Source:  c.Name(),
				Content: fmt.Sprintf("Goal %q is due in %d hours", g.Title, int(remaining.Hours())),
				RawData: map[string]any{
					"goal_id":  g.ID,
					"title":    g.Title,
					"deadline": g.Deadline.Format(time.RFC3339),
				},
			})
		}
	}
	return out, nil
}
