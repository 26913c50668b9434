package tool

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mwaldron/aura/internal/clock"
	"github.com/mwaldron/aura/internal/store"
)

func newRegistry(t *testing.T) (*Registry, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	clk := clock.NewFake(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC))
	return NewRegistry(st, clk), st
}

func TestSchemaValidation(t *testing.T) {
	r, _ := newRegistry(t)
	err := r.Register(&store.ToolDescriptor{
		Name:     "greet",
		Category: "test",
		ParametersSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{"type": "string"},
			},
			"required": []any{"name"},
		},
		Enabled: true,
	}, func(ctx context.Context, params map[string]any) (map[string]any, error) {
		return map[string]any{"summary": "hi " + params["name"].(string)}, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Execute(context.Background(), "greet", map[string]any{}, ExecuteOptions{}); err == nil {
		t.Error("Expected missing required param to fail validation")
	}
	if _, err := r.Execute(context.Background(), "greet", map[string]any{"name": 42}, ExecuteOptions{}); err == nil {
		t.Error("Expected wrong param type to fail validation")
	}
	result, err := r.Execute(context.Background(), "greet", map[string]any{"name": "sam"}, ExecuteOptions{})
	if err != nil {
		t.Fatalf("Valid params should execute: %v", err)
	}
	if result["summary"] != "hi sam" {
		t.Errorf("Unexpected result: %v", result)
	}
}

func TestConfirmationGate(t *testing.T) {
	r, _ := newRegistry(t)
	var ran bool
	err := r.Register(&store.ToolDescriptor{
		Name: "dangerous", Category: "test", RequiresConfirmation: true, Enabled: true,
	}, func(ctx context.Context, params map[string]any) (map[string]any, error) {
		ran = true
		return nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = r.Execute(context.Background(), "dangerous", nil, ExecuteOptions{})
	if !errors.Is(err, ErrRequiresConfirmation) {
		t.Errorf("Expected confirmation error, got %v", err)
	}
	if ran {
		t.Error("Unapproved call must have no side effects")
	}

	if _, err := r.Execute(context.Background(), "dangerous", nil, ExecuteOptions{ApprovalToken: "ok"}); err != nil {
		t.Errorf("Approved call should run: %v", err)
	}
	if !ran {
		t.Error("Approved call should have executed")
	}
}

func TestExecutionStats(t *testing.T) {
	r, st := newRegistry(t)
	calls := 0
	if err := r.Register(&store.ToolDescriptor{Name: "flaky", Category: "test", Enabled: true},
		func(ctx context.Context, params map[string]any) (map[string]any, error) {
			calls++
			if calls%2 == 0 {
				return nil, fmt.Errorf("flaked")
			}
			return nil, nil
		}); err != nil {
		t.Fatal(err)
	}

	r.Execute(context.Background(), "flaky", nil, ExecuteOptions{})
	r.Execute(context.Background(), "flaky", nil, ExecuteOptions{})

	desc, err := st.GetTool("flaky")
	if err != nil {
		t.Fatal(err)
	}
	if desc.TotalExecutions != 2 || desc.TotalSuccesses != 1 {
		t.Errorf("Expected 2/1 stats, got %d/%d", desc.TotalExecutions, desc.TotalSuccesses)
	}
}

func TestUnknownAndDisabledTools(t *testing.T) {
	r, _ := newRegistry(t)
	if _, err := r.Execute(context.Background(), "ghost", nil, ExecuteOptions{}); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("Expected unknown-tool error, got %v", err)
	}

	if err := r.Register(&store.ToolDescriptor{Name: "off", Category: "test", Enabled: false},
		func(ctx context.Context, params map[string]any) (map[string]any, error) { return nil, nil }); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Execute(context.Background(), "off", nil, ExecuteOptions{}); err == nil {
		t.Error("Expected disabled tool to refuse execution")
	}
}
