package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/pagewatch/internal/activitylog"
	"github.com/vitaliisemenov/pagewatch/internal/api"
	"github.com/vitaliisemenov/pagewatch/internal/domain"
	"github.com/vitaliisemenov/pagewatch/internal/failuretracker"
	"github.com/vitaliisemenov/pagewatch/internal/pageagent/fake"
	"github.com/vitaliisemenov/pagewatch/internal/pipeline"
	"github.com/vitaliisemenov/pagewatch/internal/supervisor"
)

// memStore is an in-memory supervisor.ConfigStore test double, mirroring
// the one in internal/supervisor's own tests.
type memStore struct {
	mu      sync.Mutex
	targets map[domain.TargetId]domain.Target
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
	return "", nil
}

func newTestHandlers(t *testing.T) (*api.Handlers, *fake.Agent) {
	t.Helper()
	store := newMemStore()
	log := activitylog.New(activitylog.DefaultCapacity, nil, nil)
	agent := fake.New()
	failures := failuretracker.New(5, nil)

	p := &pipeline.Pipeline{
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
	sup := supervisor.New(p, agent, failures, log, store)
	onNav, onGone, onAutoStop := sup.Callbacks()
	p.OnNavigatedAway = onNav
	p.OnPageGone = onGone
	failures.SetOnThreshold(onAutoStop)

	return &api.Handlers{
		Supervisor: sup,
		Pipeline:   p,
		Log:        log,
		Agent:      agent,
		Logger:     slog.Default(),
	}, agent
}

func TestStartAndStopTarget(t *testing.T) {
	h, agent := newTestHandlers(t)
	agent.SetPage("tab1", fake.Page{URL: "https://a.example/x", Content: "hello world", Loaded: true})

	body, _ := json.Marshal(domain.StartTargetRequest{
		PageRef:     "tab1",
		InitialURL:  "https://a.example/x",
		Selector:    "#c",
		ContentMode: domain.ContentModeText,
		Interval:    5 * time.Second,
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/targets", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.StartTarget(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)

	var resp struct {
		Success  bool   `json:"success"`
		TargetID string `json:"target_id"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.TargetID)

	stopReq := httptest.NewRequest(http.MethodDelete, "/api/v1/targets/"+resp.TargetID, nil)
	stopReq = mux.SetURLVars(stopReq, map[string]string{"id": resp.TargetID})
	stopRR := httptest.NewRecorder()
	h.StopTarget(stopRR, stopReq)
	assert.Equal(t, http.StatusOK, stopRR.Code)
}

func TestStartTargetRejectsMalformedBody(t *testing.T) {
	h, _ := newTestHandlers(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/targets", bytes.NewReader([]byte("not json")))
	rr := httptest.NewRecorder()
	h.StartTarget(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStatusUnknownTarget(t *testing.T) {
	h, _ := newTestHandlers(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/targets/does-not-exist", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "does-not-exist"})
	rr := httptest.NewRecorder()
	h.Status(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSendNowAdHoc(t *testing.T) {
	h, agent := newTestHandlers(t)
	agent.SetPage("tab1", fake.Page{URL: "https://a.example/x", Content: strings.Repeat("hello world\n", 10), Loaded: true})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	body, _ := json.Marshal(map[string]string{
		"page_ref":         "tab1",
		"selector":         "#c",
		"content_mode":     string(domain.ContentModeText),
		"webhook_override": server.URL,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/send_now", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.SendNow(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
}

func TestActivityLogRoundTrip(t *testing.T) {
	h, _ := newTestHandlers(t)
	h.Log.Record(context.Background(), domain.LevelInfo, domain.CategorySystem, "started", "t1", "", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/activity_log", nil)
	rr := httptest.NewRecorder()
	h.GetActivityLog(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "started")

	clearReq := httptest.NewRequest(http.MethodDelete, "/api/v1/activity_log", nil)
	clearRR := httptest.NewRecorder()
	h.ClearActivityLog(clearRR, clearReq)
	assert.Equal(t, http.StatusOK, clearRR.Code)
}

func TestHealthzAndReadyz(t *testing.T) {
	h, _ := newTestHandlers(t)

	rr := httptest.NewRecorder()
	h.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	h.Ready = func() bool { return false }
	readyRR := httptest.NewRecorder()
	h.Readyz(readyRR, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, readyRR.Code)

	h.Ready = func() bool { return true }
	readyRR2 := httptest.NewRecorder()
	h.Readyz(readyRR2, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, readyRR2.Code)
}
