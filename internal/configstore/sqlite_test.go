package configstore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/pagewatch/internal/config"
	"github.com/vitaliisemenov/pagewatch/internal/configstore"
	"github.com/vitaliisemenov/pagewatch/internal/domain"
)

func newLiteStore(t *testing.T) configstore.Store {
	t.Helper()
	// A real file, not ":memory:": migrations run on a short-lived
	// connection separate from the one the Store keeps open, and each
	// ":memory:" connection gets its own private, empty database.
	dbPath := filepath.Join(t.TempDir(), "pagewatch.db")
	cfg := &config.Config{
		Profile: config.ProfileLite,
		Server:  config.ServerConfig{Port: 8080, Host: "0.0.0.0"},
		Database: config.DatabaseConfig{
			SQLitePath: dbPath,
		},
		Log:    config.LogConfig{Level: "info"},
		Engine: config.EngineConfig{FailureThreshold: 5},
	}

	store, err := configstore.New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_SaveLoadDeleteTarget(t *testing.T) {
	store := newLiteStore(t)
	ctx := context.Background()

	target := domain.Target{
		Id:              domain.TargetId("t-1"),
		PageRef:         "ref-1",
		InitialURL:      "https://example.com/a",
		Selector:        "#content",
		ContentMode:     domain.ContentModeText,
		Interval:        time.Minute,
		ChangeDetection: true,
		Enabled:         true,
		LastHash:        "abc123",
		LastCheckAt:     time.Now().Truncate(time.Second).UTC(),
	}

	require.NoError(t, store.SaveTarget(ctx, target))

	loaded, err := store.LoadEnabledTargets(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, target.Id, loaded[0].Id)
	assert.Equal(t, target.PageRef, loaded[0].PageRef)
	assert.Equal(t, target.Interval, loaded[0].Interval)
	assert.True(t, loaded[0].ChangeDetection)
	assert.Equal(t, target.LastCheckAt.Unix(), loaded[0].LastCheckAt.Unix())

	require.NoError(t, store.DeleteTarget(ctx, target.Id))
	loaded, err = store.LoadEnabledTargets(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestSQLiteStore_DisabledTargetExcludedFromLoad(t *testing.T) {
	store := newLiteStore(t)
	ctx := context.Background()

	target := domain.Target{
		Id:          domain.TargetId("t-2"),
		PageRef:     "ref-2",
		InitialURL:  "https://example.com/b",
		Selector:    "#content",
		ContentMode: domain.ContentModeMarkup,
		Interval:    time.Minute,
		Enabled:     false,
	}
	require.NoError(t, store.SaveTarget(ctx, target))

	loaded, err := store.LoadEnabledTargets(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestSQLiteStore_GlobalDefaultsRoundTrip(t *testing.T) {
	store := newLiteStore(t)
	ctx := context.Background()

	defaults, err := store.LoadGlobalDefaults(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(30000), defaults.RefreshIntervalMs)
	assert.True(t, defaults.ChangeDetection)

	updated := configstore.GlobalDefaults{
		RefreshIntervalMs: 60000,
		ChangeDetection:   false,
		WebhookURL:        "https://hooks.example.com/default",
	}
	require.NoError(t, store.SaveGlobalDefaults(ctx, updated))

	reloaded, err := store.LoadGlobalDefaults(ctx)
	require.NoError(t, err)
	assert.Equal(t, updated, reloaded)

	webhook, err := store.GlobalWebhook(ctx)
	require.NoError(t, err)
	assert.Equal(t, updated.WebhookURL, webhook)
}

func TestSQLiteStore_ActivityLogSnapshotRoundTrip(t *testing.T) {
	store := newLiteStore(t)
	ctx := context.Background()

	entries, err := store.LoadActivityLogSnapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	want := []domain.LogEntry{
		{Id: 1, Timestamp: time.Now().UTC(), Level: domain.LevelInfo, Category: domain.CategorySystem, Message: "engine started"},
		{Id: 2, Timestamp: time.Now().UTC(), Level: domain.LevelError, Category: domain.CategoryWebhook, Message: "dispatch failed", TargetId: "t-1"},
	}
	require.NoError(t, store.SaveActivityLogSnapshot(ctx, want))

	got, err := store.LoadActivityLogSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, want[0].Message, got[0].Message)
	assert.Equal(t, want[1].TargetId, got[1].TargetId)

	require.NoError(t, store.DeleteActivityLogSnapshot(ctx))
	got, err = store.LoadActivityLogSnapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteStore_ProfileCatalog(t *testing.T) {
	store := newLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveProfile(ctx, "news-site", "selector: \"#headline\"\ninterval: 60s\n"))
	require.NoError(t, store.SaveProfile(ctx, "forum-thread", "selector: \".post\"\ninterval: 30s\n"))

	names, err := store.ListProfiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"forum-thread", "news-site"}, names)

	content, err := store.LoadProfile(ctx, "news-site")
	require.NoError(t, err)
	assert.Contains(t, content, "#headline")

	_, err = store.LoadProfile(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, domain.CodeProfileNotFound, domain.CodeOf(err))

	require.NoError(t, store.DeleteProfile(ctx, "news-site"))
	names, err = store.ListProfiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"forum-thread"}, names)
}
