// Package budget watches the host's resource pressure so the cycle driver
// can shed optional work (System-2 calls, generous phase budgets) before the
// machine does it for us.
package budget

import (
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/mwaldron/aura/internal/logging"
)

// LoadWatcher samples this process's CPU usage on an interval and exposes a
// pressure signal when it stays above the threshold.
type LoadWatcher struct {
	proc *process.Process

	pollInterval     time.Duration
	pressureCPU      float64 // CPU % above which we consider the process hot
	pressureDuration time.Duration

	mu        sync.Mutex
	hotSince  time.Time
	pressured bool
	stopChan  chan struct{}
	running   bool
}

// NewLoadWatcher creates a watcher over the current process.
func NewLoadWatcher() (*LoadWatcher, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &LoadWatcher{
		proc:             proc,
		pollInterval:     5 * time.Second,
		pressureCPU:      70.0,
		pressureDuration: 30 * time.Second,
		stopChan:         make(chan struct{}),
	}, nil
}

// Start begins sampling.
func (w *LoadWatcher) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()
	go w.loop()
	logging.Info("budget", "load watcher started (threshold %.0f%% CPU)", w.pressureCPU)
}

// Stop halts sampling.
func (w *LoadWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.running = false
	close(w.stopChan)
}

// Pressured reports whether the process has been hot long enough to shed
// optional work.
func (w *LoadWatcher) Pressured() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pressured
}

func (w *LoadWatcher) loop() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			cpu, err := w.proc.CPUPercent()
			if err != nil {
				continue
			}
			w.mu.Lock()
			if cpu >= w.pressureCPU {
				if w.hotSince.IsZero() {
					w.hotSince = time.Now()
				}
				if !w.pressured && time.Since(w.hotSince) >= w.pressureDuration {
					w.pressured = true
					logging.Info("budget", "sustained load (%.0f%% CPU), shedding optional work", cpu)
				}
			} else {
				if w.pressured {
					logging.Info("budget", "load recovered (%.0f%% CPU)", cpu)
				}
				w.hotSince = time.Time{}
				w.pressured = false
			}
			w.mu.Unlock()
		}
	}
}
