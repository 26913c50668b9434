// Package codelets holds the attention codelets: small, periodically invoked
// procedures that read observable context and emit candidate stimuli. Codelets
// never write to the store — the cycle driver persists their output inside a
// single transaction at the end of the SENSE phase.
package codelets

import (
	"context"
	"sync"
	"time"

	"github.com/mwaldron/aura/internal/store"
)

// Codelet is one attention procedure.
type Codelet interface {
	Name() string
	Category() store.StimulusType
	Cadence() time.Duration
	Run(ctx context.Context, rc *Context) ([]*store.Stimulus, error)
}

// Registry holds the closed set of codelets and their invocation times.
type Registry struct {
	mu       sync.Mutex
	codelets []Codelet
	lastRun  map[string]time.Time
}

// NewRegistry creates an empty codelet registry.
func NewRegistry() *Registry {
	return &Registry{lastRun: make(map[string]time.Time)}
}

// Register adds a codelet. Called at startup only.
func (r *Registry) Register(c Codelet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codelets = append(r.codelets, c)
}

// All returns every registered codelet.
func (r *Registry) All() []Codelet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Codelet(nil), r.codelets...)
}

// Due returns codelets whose cadence interval has elapsed since their last
// invocation. Each codelet runs at most once per cadence.
func (r *Registry) Due(now time.Time) []Codelet {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []Codelet
	for _, c := range r.codelets {
		last, ran := r.lastRun[c.Name()]
		if !ran || now.Sub(last) >= c.Cadence() {
			due = append(due, c)
		}
	}
	return due
}

// MarkRan records a codelet invocation time.
func (r *Registry) MarkRan(name string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastRun[name] = now
}
