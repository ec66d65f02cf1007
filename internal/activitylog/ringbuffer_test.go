package activitylog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/pagewatch/internal/activitylog"
	"github.com/vitaliisemenov/pagewatch/internal/domain"
)

type memStore struct {
	snapshot []domain.LogEntry
}

func (m *memStore) SaveActivityLogSnapshot(_ context.Context, entries []domain.LogEntry) error {
	m.snapshot = append([]domain.LogEntry(nil), entries...)
	return nil
}

func (m *memStore) LoadActivityLogSnapshot(_ context.Context) ([]domain.LogEntry, error) {
	return m.snapshot, nil
}

func (m *memStore) DeleteActivityLogSnapshot(_ context.Context) error {
	m.snapshot = nil
	return nil
}

func TestRingBufferEvictsOldestAtCapacity(t *testing.T) {
	log := activitylog.New(100, nil, nil)
	ctx := context.Background()

	for i := 0; i < 101; i++ {
		log.Record(ctx, domain.LevelInfo, domain.CategorySystem, "entry", "", "", nil)
	}

	all := log.GetAll()
	require.Len(t, all, 100)
	assert.EqualValues(t, 1, all[0].Id, "first surviving entry should be #1 (0 was evicted)")
	assert.EqualValues(t, 100, all[99].Id)
}

func TestGetAllIsChronological(t *testing.T) {
	log := activitylog.New(5, nil, nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		log.Record(ctx, domain.LevelInfo, domain.CategorySystem, "entry", "", "", nil)
	}
	all := log.GetAll()
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Id, all[i].Id)
	}
}

func TestQueryFiltersComposeByAnd(t *testing.T) {
	log := activitylog.New(10, nil, nil)
	ctx := context.Background()
	log.Record(ctx, domain.LevelInfo, domain.CategoryMonitoring, "a", "t1", "", nil)
	log.Record(ctx, domain.LevelError, domain.CategoryMonitoring, "b", "t1", "", nil)
	log.Record(ctx, domain.LevelError, domain.CategoryWebhook, "c", "t2", "", nil)

	results := log.Query(domain.LogQuery{TargetId: "t1", Level: domain.LevelError})
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].Message)
}

func TestMaskingAppliesAtAppendTime(t *testing.T) {
	log := activitylog.New(10, nil, nil)
	ctx := context.Background()
	log.Record(ctx, domain.LevelError, domain.CategoryWebhook, "failed", "t1", "",
		map[string]interface{}{"webhookUrl": "https://hooks.example.com/secret/path/token123456789"})

	entry := log.GetAll()[0]
	masked, _ := entry.Details["webhookUrl"].(string)
	assert.NotContains(t, masked, "token123456789")
	assert.Contains(t, masked, "https://hooks.example.com")
}

func TestRestorePreservesOrderAndPersistedFields(t *testing.T) {
	store := &memStore{}
	first := activitylog.New(10, store, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		first.Record(ctx, domain.LevelInfo, domain.CategorySystem, "boot", "", "", nil)
	}

	restored := activitylog.New(10, store, nil)
	restored.Restore(ctx)
	all := restored.GetAll()
	require.Len(t, all, 3)
	assert.Equal(t, "boot", all[0].Message)
}

func TestClearRemovesEntriesAndSnapshot(t *testing.T) {
	store := &memStore{}
	log := activitylog.New(10, store, nil)
	ctx := context.Background()
	log.Record(ctx, domain.LevelInfo, domain.CategorySystem, "x", "", "", nil)

	log.Clear(ctx)
	assert.Equal(t, 0, log.Len())
	snap, _ := store.LoadActivityLogSnapshot(ctx)
	assert.Empty(t, snap)
}
