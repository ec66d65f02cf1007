package pipeline_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
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
	"github.com/vitaliisemenov/pagewatch/internal/webhook"
)

// testHandle is a minimal pipeline.TargetHandle backed by a mutex, used
// instead of the real Watch Supervisor so pipeline tests don't depend on
// it (dependency order: Activity Log/Failure Tracker/Webhook
// Dispatcher/Cycle Pipeline all sit below the Supervisor).
type testHandle struct {
	mu     sync.Mutex
	target domain.Target
}

func (h *testHandle) Snapshot() domain.Target {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.target
}

func (h *testHandle) CommitCycle(_ context.Context, hash string, checkedAt time.Time) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.target.LastHash = hash
	h.target.LastCheckAt = checkedAt
	return nil
}

func longContent(s string) string {
	return strings.Repeat(s+"\n", 20)
}

func newTestPipeline(t *testing.T, webhookURL string) (*pipeline.Pipeline, *fake.Agent, *activitylog.Log, *failuretracker.Tracker) {
	t.Helper()
	agent := fake.New()
	log := activitylog.New(50, nil, nil)
	failures := failuretracker.New(5, nil)
	p := &pipeline.Pipeline{
		Agent:      agent,
		Dispatcher: webhook.New(nil, nil),
		Failures:   failures,
		Log:        log,
		GlobalWebhook: func() string { return webhookURL },
		Timing: pipeline.Timing{
			WaitReadyPollInterval: time.Millisecond,
			WaitReadyCeiling:      5 * time.Millisecond,
			ExtractInitialDelay:   time.Millisecond,
			ExtractRetryDelay:     time.Millisecond,
		},
	}
	return p, agent, log, failures
}

func TestFirstCycleIsBaseline(t *testing.T) {
	p, agent, log, failures := newTestPipeline(t, "")
	agent.SetPage("tab1", fake.Page{URL: "https://a.example/x", Content: longContent("hello "), Loaded: true})

	handle := &testHandle{target: domain.Target{
		Id: "t1", PageRef: "tab1", InitialURL: "https://a.example/x",
		Selector: "#c", ContentMode: domain.ContentModeText,
		Interval: 5 * time.Second, ChangeDetection: true, Enabled: true,
	}}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p.Run(ctx, "t1", handle)

	assert.NotEmpty(t, handle.Snapshot().LastHash)
	assert.Equal(t, 0, failures.Count("t1"))

	entries := log.Query(domain.LogQuery{Category: domain.CategoryChange})
	require.Len(t, entries, 1)
	assert.Equal(t, "change/baseline_recorded", entries[0].Message)
}

func TestChangedContentDispatchesOnce(t *testing.T) {
	var posts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p, agent, _, failures := newTestPipeline(t, server.URL)
	agent.SetPage("tab1", fake.Page{URL: "https://a.example/x", Content: longContent("first "), Loaded: true})

	handle := &testHandle{target: domain.Target{
		Id: "t1", PageRef: "tab1", InitialURL: "https://a.example/x",
		Selector: "#c", ContentMode: domain.ContentModeText,
		Interval: 5 * time.Second, ChangeDetection: true, Enabled: true,
	}}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p.Run(ctx, "t1", handle)
	assert.Equal(t, 0, posts, "baseline cycle must not dispatch")

	agent.SetContent("tab1", longContent("second "))
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	p.Run(ctx2, "t1", handle)

	assert.Equal(t, 1, posts)
	assert.Equal(t, 0, failures.Count("t1"))
}

func TestNavigationAwayInvokesCallback(t *testing.T) {
	p, agent, _, _ := newTestPipeline(t, "")
	var navigatedAway bool
	p.OnNavigatedAway = func(ctx context.Context, id domain.TargetId) { navigatedAway = true }
	agent.SetPage("tab1", fake.Page{URL: "https://b.example/y", Content: longContent("x "), Loaded: true})

	handle := &testHandle{target: domain.Target{
		Id: "t1", PageRef: "tab1", InitialURL: "https://a.example/x",
		Selector: "#c", ContentMode: domain.ContentModeText,
		Interval: 5 * time.Second, ChangeDetection: true, Enabled: true,
	}}
	p.Run(context.Background(), "t1", handle)
	assert.True(t, navigatedAway)
}

func TestPageGoneInvokesCallback(t *testing.T) {
	p, agent, _, _ := newTestPipeline(t, "")
	var gone bool
	p.OnPageGone = func(ctx context.Context, id domain.TargetId) { gone = true }
	agent.SetPage("tab1", fake.Page{URL: "https://a.example/x", Content: "x", Loaded: true})
	agent.Remove("tab1")

	handle := &testHandle{target: domain.Target{
		Id: "t1", PageRef: "tab1", InitialURL: "https://a.example/x",
		Selector: "#c", ContentMode: domain.ContentModeText,
		Interval: 5 * time.Second, ChangeDetection: true, Enabled: true,
	}}
	p.Run(context.Background(), "t1", handle)
	assert.True(t, gone)
}

func TestSendNowBypassesChangeDetection(t *testing.T) {
	var posts int
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts++
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p, agent, _, failures := newTestPipeline(t, server.URL)
	agent.SetPage("tab1", fake.Page{URL: "https://a.example/x", Content: longContent("same "), Loaded: true})

	result, err := p.SendNow(context.Background(), pipeline.SendNowRequest{
		PageRef:     "tab1",
		PageURL:     "https://a.example/x",
		Selector:    "#c",
		ContentMode: domain.ContentModeText,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, 1, posts)
	assert.Contains(t, string(body), `"changeDetected":true`)

	// A second call dispatches again even though nothing changed, and
	// neither call touched the Failure Tracker.
	_, err = p.SendNow(context.Background(), pipeline.SendNowRequest{
		PageRef:     "tab1",
		PageURL:     "https://a.example/x",
		Selector:    "#c",
		ContentMode: domain.ContentModeText,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, posts)
	assert.Equal(t, 0, failures.Count("t1"))
}
