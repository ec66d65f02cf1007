// Package failuretracker implements the per-target consecutive-failure
// counter of §4.5: a leaf component (after the Activity Log) with no
// knowledge of the Supervisor — it reports threshold crossings through a
// callback rather than holding a reference back up the dependency graph.
package failuretracker

import (
	"sync"

	"github.com/vitaliisemenov/pagewatch/internal/domain"
	"github.com/vitaliisemenov/pagewatch/internal/metrics"
)

// DefaultThreshold is the default consecutive-failure count that triggers
// auto-stop (§4.5).
const DefaultThreshold = 5

// OnThreshold is invoked (outside the tracker's lock) the first time a
// target's counter reaches the threshold.
type OnThreshold func(targetID domain.TargetId, count int)

// Tracker holds one counter per TargetId. Counters are in-memory only and
// do not survive a process restart, by design (§4.5).
type Tracker struct {
	mu        sync.Mutex
	counts    map[domain.TargetId]int
	stopped   map[domain.TargetId]bool
	threshold int
	onThresh  OnThreshold
	metrics   *metrics.Registry
}

// New constructs a Tracker. threshold <= 0 uses DefaultThreshold.
func New(threshold int, onThreshold OnThreshold) *Tracker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Tracker{
		counts:    make(map[domain.TargetId]int),
		stopped:   make(map[domain.TargetId]bool),
		threshold: threshold,
		onThresh:  onThreshold,
		metrics:   metrics.DefaultRegistry(),
	}
}

// SetOnThreshold rebinds the threshold callback after construction, used
// when the callback's receiver (the Watch Supervisor) is only available
// once the Tracker it depends on already exists.
func (t *Tracker) SetOnThreshold(onThreshold OnThreshold) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onThresh = onThreshold
}

// RecordFailure increments targetID's counter and returns the new count.
// Once a target has crossed the threshold, further calls are no-ops that
// return the frozen count (§4.5: "subsequent record_failure calls on the
// same target are no-ops").
func (t *Tracker) RecordFailure(targetID domain.TargetId) int {
	t.mu.Lock()
	if t.stopped[targetID] {
		count := t.counts[targetID]
		t.mu.Unlock()
		return count
	}
	t.counts[targetID]++
	count := t.counts[targetID]
	crossed := count >= t.threshold
	if crossed {
		t.stopped[targetID] = true
	}
	t.mu.Unlock()

	t.metrics.ConsecutiveFailures.WithLabelValues(string(targetID)).Set(float64(count))
	if crossed {
		t.metrics.AutoStopsTotal.Inc()
		if t.onThresh != nil {
			t.onThresh(targetID, count)
		}
	}
	return count
}

// RecordSuccess resets targetID's counter to zero and clears its stopped
// latch, so a restarted target gets a clean slate.
func (t *Tracker) RecordSuccess(targetID domain.TargetId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.counts, targetID)
	delete(t.stopped, targetID)
	t.metrics.ConsecutiveFailures.WithLabelValues(string(targetID)).Set(0)
}

// Count returns targetID's current consecutive-failure count.
func (t *Tracker) Count(targetID domain.TargetId) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[targetID]
}

// Forget removes all bookkeeping for targetID, used when a target is
// stopped (manually or via auto-stop) so a future reuse of the same id
// starts clean.
func (t *Tracker) Forget(targetID domain.TargetId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.counts, targetID)
	delete(t.stopped, targetID)
}

// ResetAll clears every counter, used by the Activity Log's clear()
// orchestration (§4.6).
func (t *Tracker) ResetAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts = make(map[domain.TargetId]int)
	t.stopped = make(map[domain.TargetId]bool)
}

// Threshold returns the configured auto-stop threshold.
func (t *Tracker) Threshold() int {
	return t.threshold
}
