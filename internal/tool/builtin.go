package tool

import (
	"context"
	"time"

	"github.com/mwaldron/aura/internal/clock"
	"github.com/mwaldron/aura/internal/store"
)

// RegisterBuiltins installs the standard tool set: the noop (used by plan
// smoke-tests), a wait, and a store-backed goal writer. Channel-emitting
// tools are registered by the wiring layer where the channels live.
func RegisterBuiltins(r *Registry, st *store.Store, clk clock.Clock) error {
	if err := r.Register(&store.ToolDescriptor{
		Name:     "noop",
		Category: "internal",
		Enabled:  true,
	}, func(ctx context.Context, params map[string]any) (map[string]any, error) {
		return map[string]any{"summary": "noop"}, nil
	}); err != nil {
		return err
	}

	if err := r.Register(&store.ToolDescriptor{
		Name:     "wait",
		Category: "internal",
		ParametersSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"ms": map[string]any{"type": "number"}},
			"required":   []any{"ms"},
		},
		Enabled: true,
	}, func(ctx context.Context, params map[string]any) (map[string]any, error) {
		ms, _ := params["ms"].(float64)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(ms) * time.Millisecond):
		}
		return map[string]any{"summary": "waited"}, nil
	}); err != nil {
		return err
	}

	return r.Register(&store.ToolDescriptor{
		Name:     "record_goal",
		Category: "memory",
		ParametersSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title":    map[string]any{"type": "string"},
				"priority": map[string]any{"type": "number"},
			},
			"required": []any{"title"},
		},
		Enabled: true,
	}, func(ctx context.Context, params map[string]any) (map[string]any, error) {
		title, _ := params["title"].(string)
		priority, _ := params["priority"].(float64)
		g := &store.Goal{Title: title, Priority: int(priority)}
		if err := st.AddGoal(g, clk.Now()); err != nil {
			return nil, err
		}
		return map[string]any{"summary": "goal recorded", "goal_id": g.ID}, nil
	})
}
