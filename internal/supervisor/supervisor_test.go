package supervisor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/pagewatch/internal/activitylog"
	"github.com/vitaliisemenov/pagewatch/internal/domain"
	"github.com/vitaliisemenov/pagewatch/internal/failuretracker"
	"github.com/vitaliisemenov/pagewatch/internal/pageagent/fake"
	"github.com/vitaliisemenov/pagewatch/internal/pipeline"
	"github.com/vitaliisemenov/pagewatch/internal/supervisor"
)

// memStore is an in-memory supervisor.ConfigStore test double.
type memStore struct {
	mu      sync.Mutex
	targets map[domain.TargetId]domain.Target
	global  string
}

func newMemStore() *memStore {
	return &memStore{targets: make(map[domain.TargetId]domain.Target)}
}

func (m *memStore) SaveTarget(ctx context.Context, target domain.Target) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.targets[target.Id] = target
	return nil
}

func (m *memStore) DeleteTarget(ctx context.Context, id domain.TargetId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.targets, id)
	return nil
}

func (m *memStore) LoadEnabledTargets(ctx context.Context) ([]domain.Target, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Target, 0, len(m.targets))
	for _, t := range m.targets {
		if t.Enabled {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) GlobalWebhook(ctx context.Context) (string, error) {
	return m.global, nil
}

// fastPipeline wraps a real pipeline.Pipeline with millisecond-scale
// timing so tests don't wait on the spec's real-time delays.
func newFastPipeline(agent *fake.Agent, log *activitylog.Log, failures *failuretracker.Tracker) *pipeline.Pipeline {
	return &pipeline.Pipeline{
		Agent:    agent,
		Failures: failures,
		Log:      log,
		Timing: pipeline.Timing{
			WaitReadyPollInterval: time.Millisecond,
			WaitReadyCeiling:      5 * time.Millisecond,
			ExtractInitialDelay:   time.Millisecond,
			ExtractRetryDelay:     time.Millisecond,
		},
	}
}

func newTestSupervisor(t *testing.T) (*supervisor.Supervisor, *fake.Agent, *memStore, *activitylog.Log, *failuretracker.Tracker) {
	t.Helper()
	store := newMemStore()
	log := activitylog.New(activitylog.DefaultCapacity, nil, nil)
	agent := fake.New()

	var sup *supervisor.Supervisor
	failures := failuretracker.New(5, nil)
	p := newFastPipeline(agent, log, failures)
	sup = supervisor.New(p, agent, failures, log, store)

	onNav, onGone, onAutoStop := sup.Callbacks()
	p.OnNavigatedAway = onNav
	p.OnPageGone = onGone
	failures.SetOnThreshold(onAutoStop)

	return sup, agent, store, log, failures
}

func TestStartTargetRejectsInvalidRequest(t *testing.T) {
	sup, _, _, _, _ := newTestSupervisor(t)
	_, err := sup.StartTarget(context.Background(), domain.StartTargetRequest{
		PageRef:     "tab-1",
		InitialURL:  "not-a-url",
		Selector:    "#price",
		ContentMode: domain.ContentModeText,
		Interval:    time.Hour,
	})
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidPageURL, domain.CodeOf(err))
}

func TestStartTargetPersistsAndSchedules(t *testing.T) {
	sup, agent, store, _, _ := newTestSupervisor(t)
	agent.SetPage("tab-1", fake.Page{URL: "https://example.com/item", Content: longContent("hello world"), Loaded: true})

	id, err := sup.StartTarget(context.Background(), domain.StartTargetRequest{
		PageRef:         "tab-1",
		InitialURL:      "https://example.com/item",
		Selector:        "#price",
		ContentMode:     domain.ContentModeText,
		Interval:        time.Hour,
		ChangeDetection: true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	status, err := sup.Status(id)
	require.NoError(t, err)
	assert.True(t, status.IsRunning)

	_, persisted := store.targets[id]
	assert.True(t, persisted)
}

func TestStartTargetReplacesExistingPageRef(t *testing.T) {
	sup, agent, _, _, _ := newTestSupervisor(t)
	agent.SetPage("tab-1", fake.Page{URL: "https://example.com/a", Content: longContent("a"), Loaded: true})

	firstID, err := sup.StartTarget(context.Background(), domain.StartTargetRequest{
		PageRef: "tab-1", InitialURL: "https://example.com/a", Selector: "#x",
		ContentMode: domain.ContentModeText, Interval: time.Hour, ChangeDetection: true,
	})
	require.NoError(t, err)

	secondID, err := sup.StartTarget(context.Background(), domain.StartTargetRequest{
		PageRef: "tab-1", InitialURL: "https://example.com/a", Selector: "#x",
		ContentMode: domain.ContentModeText, Interval: time.Hour, ChangeDetection: true,
	})
	require.NoError(t, err)

	_, err = sup.Status(firstID)
	assert.Error(t, err, "starting a target on an occupied page_ref stops the prior one")

	_, err = sup.Status(secondID)
	assert.NoError(t, err)
}

func TestStopTargetIsIdempotent(t *testing.T) {
	sup, agent, _, _, _ := newTestSupervisor(t)
	agent.SetPage("tab-1", fake.Page{URL: "https://example.com/a", Content: longContent("a"), Loaded: true})
	id, err := sup.StartTarget(context.Background(), domain.StartTargetRequest{
		PageRef: "tab-1", InitialURL: "https://example.com/a", Selector: "#x",
		ContentMode: domain.ContentModeText, Interval: time.Hour, ChangeDetection: true,
	})
	require.NoError(t, err)

	require.NoError(t, sup.StopTarget(context.Background(), id))

	err = sup.StopTarget(context.Background(), id)
	require.Error(t, err)
	assert.Equal(t, domain.CodeTargetNotFound, domain.CodeOf(err))
}

func TestRestoreFromStoreRebindsPageRef(t *testing.T) {
	sup, agent, store, _, _ := newTestSupervisor(t)

	persisted := domain.Target{
		Id:          "t-1",
		PageRef:     "stale-ref",
		InitialURL:  "https://example.com/widget",
		Selector:    "#x",
		ContentMode: domain.ContentModeText,
		Interval:    time.Hour,
		Enabled:     true,
		ChangeDetection: true,
	}
	require.NoError(t, store.SaveTarget(context.Background(), persisted))

	agent.SetPage("fresh-ref", fake.Page{URL: "https://example.com/widget", Content: longContent("a"), Loaded: true})

	require.NoError(t, sup.RestoreFromStore(context.Background()))

	status, err := sup.Status("t-1")
	require.NoError(t, err)
	assert.Equal(t, "fresh-ref", status.Config.PageRef)
}

func TestRestoreFromStoreLeavesUnmatchedTargetsUnstarted(t *testing.T) {
	sup, _, store, _, _ := newTestSupervisor(t)

	persisted := domain.Target{
		Id:              "t-1",
		PageRef:         "stale-ref",
		InitialURL:      "https://example.com/gone",
		Selector:        "#x",
		ContentMode:     domain.ContentModeText,
		Interval:        time.Hour,
		Enabled:         true,
		ChangeDetection: true,
	}
	require.NoError(t, store.SaveTarget(context.Background(), persisted))

	require.NoError(t, sup.RestoreFromStore(context.Background()))

	_, err := sup.Status("t-1")
	assert.Error(t, err, "no matching page was found, target must not be started")

	reloaded, err := store.LoadEnabledTargets(context.Background())
	require.NoError(t, err)
	require.Len(t, reloaded, 1, "target stays persisted for a later restore attempt")
	assert.Equal(t, "stale-ref", reloaded[0].PageRef, "page_ref is left untouched when nothing matched")
}

func longContent(s string) string {
	out := ""
	for len(out) < 120 {
		out += s + " "
	}
	return out
}
