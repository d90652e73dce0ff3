package generation

import (
	"context"
	"sync"
	"time"
)

// activeRun is one in-flight generation tracked for interruption.
type activeRun struct {
	userID string
	cancel context.CancelFunc
}

// RunRegistry manages all active generation runs.
//
// Lifecycle:
//  1. The generation service registers a run when a stream starts
//  2. The interrupt endpoint cancels it by operation ID
//  3. The streaming goroutine removes the run on any terminal outcome
//
// A background sweep removes runs whose cancel was never followed by a
// Remove, so a stuck goroutine cannot leak registry entries forever.
type RunRegistry struct {
	runs map[string]*activeRun // operationID -> run
	mu   sync.RWMutex

	cleanupInterval time.Duration
	retentionPeriod time.Duration

	startedAt map[string]time.Time
	timesMu   sync.Mutex
}

// NewRunRegistry creates a new run registry.
func NewRunRegistry(cleanupInterval, retentionPeriod time.Duration) *RunRegistry {
	return &RunRegistry{
		runs:            make(map[string]*activeRun),
		cleanupInterval: cleanupInterval,
		retentionPeriod: retentionPeriod,
		startedAt:       make(map[string]time.Time),
	}
}

// Register tracks a new run. Returns false if a run already exists for this
// operation.
func (r *RunRegistry) Register(operationID, userID string, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[operationID]; exists {
		return false
	}

	r.runs[operationID] = &activeRun{userID: userID, cancel: cancel}

	r.timesMu.Lock()
	r.startedAt[operationID] = time.Now()
	r.timesMu.Unlock()

	return true
}

// Cancel stops a live run owned by userID. Returns false when no such run
// exists, which callers report as not found.
func (r *RunRegistry) Cancel(operationID, userID string) bool {
	r.mu.RLock()
	run, exists := r.runs[operationID]
	r.mu.RUnlock()

	if !exists || run.userID != userID {
		return false
	}

	run.cancel()
	return true
}

// Remove drops a run from the registry. Safe to call for unknown IDs.
func (r *RunRegistry) Remove(operationID string) {
	r.mu.Lock()
	delete(r.runs, operationID)
	r.mu.Unlock()

	r.timesMu.Lock()
	delete(r.startedAt, operationID)
	r.timesMu.Unlock()
}

// Count returns the number of active runs. Useful for tests and monitoring.
func (r *RunRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.runs)
}

// StartCleanup runs the background sweep until ctx is cancelled.
func (r *RunRegistry) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.cleanup()
		}
	}
}

func (r *RunRegistry) cleanup() {
	now := time.Now()

	var stale []string

	r.timesMu.Lock()
	for operationID, started := range r.startedAt {
		if now.Sub(started) > r.retentionPeriod {
			stale = append(stale, operationID)
		}
	}
	r.timesMu.Unlock()

	for _, operationID := range stale {
		r.mu.RLock()
		run, exists := r.runs[operationID]
		r.mu.RUnlock()

		if exists {
			run.cancel()
		}
		r.Remove(operationID)
	}
}
