// Package tool is the registry of named external actions invocable by plans
// and the router. Parameters are schema-validated before invocation and
// every execution is logged with its duration and outcome.
package tool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mwaldron/aura/internal/clock"
	"github.com/mwaldron/aura/internal/logging"
	"github.com/mwaldron/aura/internal/store"
)

// ErrRequiresConfirmation is returned when a gated tool is invoked without
// an approval token. No side effects occur.
var ErrRequiresConfirmation = errors.New("tool requires confirmation")

// ErrUnknownTool is returned for names not in the registry.
var ErrUnknownTool = errors.New("unknown tool")

// Handler executes one tool invocation.
type Handler func(ctx context.Context, params map[string]any) (map[string]any, error)

// registered pairs a descriptor with its handler.
type registered struct {
	desc    *store.ToolDescriptor
	handler Handler
}

// Registry maps tool names to descriptors and handlers. The variant set is
// closed at build time; new tools are added by registering an
// implementation at startup.
type Registry struct {
	store *store.Store
	clk   clock.Clock

	mu    sync.RWMutex
	tools map[string]*registered
}

// NewRegistry creates an empty tool registry.
func NewRegistry(st *store.Store, clk clock.Clock) *Registry {
	return &Registry{store: st, clk: clk, tools: make(map[string]*registered)}
}

// Register adds a tool and persists its descriptor (counters preserved on
// re-registration).
func (r *Registry) Register(desc *store.ToolDescriptor, handler Handler) error {
	if desc.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if err := r.store.UpsertTool(desc); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[desc.Name] = &registered{desc: desc, handler: handler}
	return nil
}

// ExecuteOptions carries invocation context.
type ExecuteOptions struct {
	ApprovalToken string // non-empty authorizes confirmation-gated tools
}

// Execute validates params against the tool's schema and runs the handler,
// logging the outcome and bumping the descriptor counters.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any, opts ExecuteOptions) (map[string]any, error) {
	r.mu.RLock()
	reg, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if !reg.desc.Enabled {
		return nil, fmt.Errorf("tool %s is disabled", name)
	}
	if reg.desc.RequiresConfirmation && opts.ApprovalToken == "" {
		return nil, ErrRequiresConfirmation
	}
	if err := ValidateParams(reg.desc.ParametersSchema, params); err != nil {
		return nil, fmt.Errorf("invalid params for %s: %w", name, err)
	}

	start := r.clk.Now()
	result, execErr := reg.handler(ctx, params)
	duration := time.Since(start)

	summary := "ok"
	if execErr != nil {
		summary = logging.Truncate(execErr.Error(), 200)
	} else if msg, ok := result["summary"].(string); ok {
		summary = logging.Truncate(msg, 200)
	}
	if err := r.store.RecordToolExecution(&store.ToolExecution{
		ToolName:   name,
		DurationMS: duration.Milliseconds(),
		Success:    execErr == nil,
		Summary:    summary,
	}, r.clk.Now()); err != nil {
		logging.Warn("tool", "execution log: %v", err)
	}

	if execErr != nil {
		return nil, fmt.Errorf("tool %s: %w", name, execErr)
	}
	return result, nil
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}
