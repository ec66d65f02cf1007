// Package activitylog implements the process-wide, bounded, persisted
// event log of §4.6. It is a singleton value constructed once at process
// start and handed to every other component by reference — never looked
// up through global state (per DESIGN NOTES §9).
package activitylog

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vitaliisemenov/pagewatch/internal/domain"
	"github.com/vitaliisemenov/pagewatch/internal/metrics"
)

// SnapshotSize is how many of the most recent entries are persisted after
// every append (§4.6).
const SnapshotSize = 50

// DefaultCapacity is the ring buffer's default capacity (§4.6).
const DefaultCapacity = 100

// Store is the persistence seam the Activity Log writes its snapshot
// through. internal/configstore implements it; defined here (rather than
// imported from there) to keep this package leaf-level per the spec's
// declared dependency order (Activity Log has no dependencies).
type Store interface {
	SaveActivityLogSnapshot(ctx context.Context, entries []domain.LogEntry) error
	LoadActivityLogSnapshot(ctx context.Context) ([]domain.LogEntry, error)
	DeleteActivityLogSnapshot(ctx context.Context) error
}

// Log is a fixed-capacity ring buffer of domain.LogEntry, safe for
// concurrent use. Append is O(1); when full, the oldest entry is
// overwritten.
type Log struct {
	mu       sync.Mutex
	entries  []domain.LogEntry // len == capacity once filled; ring-indexed
	capacity int
	head     int // index of the oldest entry
	nextID   atomic.Uint64

	store   Store
	logger  *slog.Logger
	metrics *metrics.Registry

	// OnAppend, if set, is invoked (outside any lock) with every newly
	// recorded entry — the Command/Query API's websocket tail wires this
	// to fan live entries out to connected clients. Restored entries do
	// not trigger it.
	OnAppend func(domain.LogEntry)
}

// New constructs a Log of the given capacity. A capacity <= 0 uses
// DefaultCapacity. store may be nil, in which case persistence is a no-op
// (useful for tests that don't need restart survival).
func New(capacity int, store Store, logger *slog.Logger) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		entries:  make([]domain.LogEntry, 0, capacity),
		capacity: capacity,
		store:    store,
		logger:   logger,
		metrics:  metrics.DefaultRegistry(),
	}
}

// Restore loads the persisted snapshot (if any) and re-appends it to the
// in-memory buffer in stored order, preserving original timestamps. Must
// be called once, before the log starts receiving live appends from
// other components.
func (l *Log) Restore(ctx context.Context) {
	if l.store == nil {
		return
	}
	snapshot, err := l.store.LoadActivityLogSnapshot(ctx)
	if err != nil {
		l.logger.Error("activity log snapshot restore failed", "error", err)
		return
	}
	for _, e := range snapshot {
		l.appendRestored(e)
	}
	l.metrics.ActivityLogSize.Set(float64(l.Len()))
}

// appendRestored re-inserts a previously persisted entry without
// re-masking (it is already masked) and without re-triggering persistence.
func (l *Log) appendRestored(e domain.LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.insertLocked(e)
	if e.Id >= l.nextID.Load() {
		l.nextID.Store(e.Id + 1)
	}
}

// Record appends a new entry, masking any webhook-URL-shaped detail field,
// and best-effort persists the trailing SnapshotSize-entry window. It is
// the single append path every component uses (the teacher's "property
// shadowing" bug — a field named log shadowing a method — cannot recur
// here since storage is private and the method is named Record).
func (l *Log) Record(ctx context.Context, level domain.LogLevel, category domain.LogCategory, message string, targetID domain.TargetId, url string, details map[string]interface{}) domain.LogEntry {
	entry := domain.LogEntry{
		Id:        l.nextID.Add(1) - 1,
		Timestamp: time.Now().UTC(),
		Level:     level,
		Category:  category,
		Message:   message,
		TargetId:  targetID,
		URL:       url,
		Details:   domain.MaskDetails(details),
	}

	l.mu.Lock()
	l.insertLocked(entry)
	snapshot := l.recentLocked(SnapshotSize)
	size := len(l.entries)
	l.mu.Unlock()

	l.metrics.ActivityLogSize.Set(float64(size))
	l.persist(ctx, snapshot)
	if l.OnAppend != nil {
		l.OnAppend(entry)
	}
	return entry
}

// insertLocked appends entry into the ring, evicting the oldest entry if
// full. Caller must hold mu.
func (l *Log) insertLocked(entry domain.LogEntry) {
	if len(l.entries) < l.capacity {
		l.entries = append(l.entries, entry)
		return
	}
	l.entries[l.head] = entry
	l.head = (l.head + 1) % l.capacity
}

func (l *Log) persist(ctx context.Context, snapshot []domain.LogEntry) {
	if l.store == nil {
		return
	}
	if err := l.store.SaveActivityLogSnapshot(ctx, snapshot); err != nil {
		// Persistence errors are logged to stderr via slog, never back into
		// the log itself, to avoid unbounded append recursion (§4.6).
		l.logger.Error("activity log snapshot persist failed", "error", err)
	}
}

// chronologicalLocked returns entries oldest-first, honoring the ring's
// wrap-around. Caller must hold mu.
func (l *Log) chronologicalLocked() []domain.LogEntry {
	n := len(l.entries)
	out := make([]domain.LogEntry, n)
	if n < l.capacity {
		copy(out, l.entries)
		return out
	}
	for i := 0; i < n; i++ {
		out[i] = l.entries[(l.head+i)%l.capacity]
	}
	return out
}

// recentLocked returns the last n entries, oldest-first. Caller must hold mu.
func (l *Log) recentLocked(n int) []domain.LogEntry {
	all := l.chronologicalLocked()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// GetAll returns every entry in chronological (oldest-first) order.
func (l *Log) GetAll() []domain.LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.chronologicalLocked()
}

// GetRecent returns the last n entries in chronological order.
func (l *Log) GetRecent(n int) []domain.LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recentLocked(n)
}

// Query returns entries matching q, in chronological order, applying
// q.Limit (if > 0) to the tail of the matching set.
func (l *Log) Query(q domain.LogQuery) []domain.LogEntry {
	l.mu.Lock()
	all := l.chronologicalLocked()
	l.mu.Unlock()

	matched := make([]domain.LogEntry, 0, len(all))
	for _, e := range all {
		if q.Matches(e) {
			matched = append(matched, e)
		}
	}
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[len(matched)-q.Limit:]
	}
	return matched
}

// Clear empties the buffer and removes the persisted snapshot. It does
// not reset failure counters — that remains the Supervisor's job, since
// the Failure Tracker is a distinct component the log has no handle to
// (the Supervisor's ClearActivityLog orchestrates both, per §4.6).
func (l *Log) Clear(ctx context.Context) {
	l.mu.Lock()
	l.entries = l.entries[:0]
	l.head = 0
	l.mu.Unlock()

	l.metrics.ActivityLogSize.Set(0)
	if l.store != nil {
		if err := l.store.DeleteActivityLogSnapshot(ctx); err != nil {
			l.logger.Error("activity log snapshot delete failed", "error", err)
		}
	}
}

// Len returns the number of entries currently held.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Capacity returns the buffer's fixed capacity.
func (l *Log) Capacity() int {
	return l.capacity
}
