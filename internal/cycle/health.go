package cycle

import (
	"sync"
	"time"
)

// PhaseReport is one phase's timing and outcome inside a cycle.
type PhaseReport struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"error,omitempty"`
	Degraded bool          `json:"degraded,omitempty"`
}

// Health is the externally visible driver state: whether the latest cycle
// completed normally and what each phase reported.
type Health struct {
	mu sync.Mutex

	lastCycleStart time.Time
	lastCycleEnd   time.Time
	lastOK         bool
	degradedStore  bool
	phases         []PhaseReport
	cycleCount     uint64
}

// NewHealth creates an empty health snapshot holder.
func NewHealth() *Health {
	return &Health{}
}

// Snapshot is a copyable view of the driver health.
type Snapshot struct {
	OK             bool          `json:"ok"`
	DegradedStore  bool          `json:"degraded_store"`
	CycleCount     uint64        `json:"cycle_count"`
	LastCycleStart time.Time     `json:"last_cycle_start"`
	LastCycleEnd   time.Time     `json:"last_cycle_end"`
	Phases         []PhaseReport `json:"phases"`
}

// Snapshot returns the current health view.
func (h *Health) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Snapshot{
		OK:             h.lastOK && !h.degradedStore,
		DegradedStore:  h.degradedStore,
		CycleCount:     h.cycleCount,
		LastCycleStart: h.lastCycleStart,
		LastCycleEnd:   h.lastCycleEnd,
		Phases:         append([]PhaseReport(nil), h.phases...),
	}
}

func (h *Health) beginCycle(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastCycleStart = now
	h.phases = h.phases[:0]
	h.cycleCount++
}

func (h *Health) endCycle(now time.Time, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastCycleEnd = now
	h.lastOK = ok
}

func (h *Health) recordPhase(r PhaseReport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.phases = append(h.phases, r)
}

func (h *Health) setDegradedStore(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.degradedStore = v
}
