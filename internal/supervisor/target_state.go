package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/vitaliisemenov/pagewatch/internal/domain"
)

// targetState is the single mutable cell backing one live target. It
// satisfies pipeline.TargetHandle. Enabled is read under a lock since
// the Supervisor's stop path (setEnabled) can mutate it from outside the target's own pipeline task; LastHash/LastCheckAt are
// written only by that task (§5), so CommitCycle still takes the lock
// for simplicity but has no concurrent writer to race with.
type targetState struct {
	mu     sync.RWMutex
	target domain.Target
	store  ConfigStore
}

func newTargetState(t domain.Target, store ConfigStore) *targetState {
	return &targetState{target: t, store: store}
}

func (s *targetState) Snapshot() domain.Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.target
}

func (s *targetState) CommitCycle(ctx context.Context, hash string, checkedAt time.Time) error {
	s.mu.Lock()
	s.target.LastHash = hash
	s.target.LastCheckAt = checkedAt
	snapshot := s.target
	s.mu.Unlock()
	return persistWithRetry(ctx, s.store, snapshot)
}

func (s *targetState) setEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target.Enabled = enabled
}

// persistWithRetry implements the write-side persistence policy of §7:
// a persistence error is retried once in-place, then surfaced as a
// warning while in-memory state remains authoritative.
func persistWithRetry(ctx context.Context, store ConfigStore, target domain.Target) error {
	if store == nil {
		return nil
	}
	err := store.SaveTarget(ctx, target)
	if err == nil {
		return nil
	}
	err = store.SaveTarget(ctx, target)
	return err
}
