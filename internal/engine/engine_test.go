package engine_test

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
	"github.com/vitaliisemenov/pagewatch/internal/engine"
	"github.com/vitaliisemenov/pagewatch/internal/pageagent/fake"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Profile: config.ProfileLite,
		Server:  config.ServerConfig{Port: 8080, Host: "0.0.0.0"},
		Database: config.DatabaseConfig{
			SQLitePath: filepath.Join(t.TempDir(), "pagewatch.db"),
		},
		Engine: config.EngineConfig{
			DefaultRefreshIntervalMs: 30000,
			DefaultChangeDetection:   true,
			FailureThreshold:         5,
		},
		Log: config.LogConfig{Level: "info", Format: "json"},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestEngineWiresAndRestores(t *testing.T) {
	cfg := newTestConfig(t)
	agent := fake.New()
	agent.SetPage("tab1", fake.Page{URL: "https://a.example/x", Content: "hello world", Loaded: true})

	ctx := context.Background()
	eng, err := engine.New(ctx, cfg, agent, nil)
	require.NoError(t, err)
	defer eng.Shutdown(ctx)

	assert.False(t, eng.Ready())

	require.NoError(t, eng.Start(ctx))
	assert.True(t, eng.Ready())
	assert.Empty(t, eng.Supervisor.StatusAll(), "nothing was enabled in the store yet")
}

func TestEngineNewRestoresActivityLogSnapshot(t *testing.T) {
	cfg := newTestConfig(t)
	ctx := context.Background()

	seed, err := configstore.New(ctx, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, seed.SaveActivityLogSnapshot(ctx, []domain.LogEntry{
		{Id: 1, TargetId: "t1", Level: domain.LevelInfo, Category: domain.CategorySystem, Message: "started"},
		{Id: 2, TargetId: "t1", Level: domain.LevelSuccess, Category: domain.CategoryWebhook, Message: "webhook/sent"},
	}))
	require.NoError(t, seed.Close())

	agent := fake.New()
	eng, err := engine.New(ctx, cfg, agent, nil)
	require.NoError(t, err)
	defer eng.Shutdown(ctx)

	entries := eng.Log.GetAll()
	require.Len(t, entries, 2)
	assert.Equal(t, "started", entries[0].Message)
	assert.Equal(t, "webhook/sent", entries[1].Message)
}

func TestEngineStartTargetThenShutdownStopsIt(t *testing.T) {
	cfg := newTestConfig(t)
	agent := fake.New()
	agent.SetPage("tab1", fake.Page{URL: "https://a.example/x", Content: "hello world", Loaded: true})

	ctx := context.Background()
	eng, err := engine.New(ctx, cfg, agent, nil)
	require.NoError(t, err)

	require.NoError(t, eng.Start(ctx))

	id, err := eng.Supervisor.StartTarget(ctx, domain.StartTargetRequest{
		PageRef:     "tab1",
		InitialURL:  "https://a.example/x",
		Selector:    "#c",
		ContentMode: domain.ContentModeText,
		Interval:    time.Hour,
	})
	require.NoError(t, err)
	assert.Len(t, eng.Supervisor.StatusAll(), 1)

	require.NoError(t, eng.Shutdown(ctx))
	_, err = eng.Supervisor.Status(id)
	assert.Error(t, err, "target should be stopped by Shutdown")
}
