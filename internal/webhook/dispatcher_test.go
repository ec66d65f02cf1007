package webhook_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/pagewatch/internal/domain"
	"github.com/vitaliisemenov/pagewatch/internal/webhook"
)

func TestDispatchSuccessPostsPayload(t *testing.T) {
	var received webhook.Payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := webhook.New(nil, nil)
	result, err := d.Dispatch(context.Background(), webhook.Request{
		PageURL:        "https://a.example/x",
		Content:        "hello world",
		Selector:       "#c",
		ChangeDetected: true,
		GlobalWebhook:  server.URL,
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "page_monitor", received.Type)
	assert.Equal(t, "hello world", received.Content)
	assert.True(t, received.ChangeDetected)
}

func TestDispatchPrecedenceOverrideThenTargetThenGlobal(t *testing.T) {
	var gotURL string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p webhook.Payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		gotURL = p.Metadata.WebhookURL
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := webhook.New(nil, nil)
	_, err := d.Dispatch(context.Background(), webhook.Request{
		TargetWebhook: "https://unused.example/target",
		GlobalWebhook: "https://unused.example/global",
		Override:      server.URL,
	})
	require.NoError(t, err)
	assert.Equal(t, server.URL, gotURL)
}

func TestDispatchNoWebhookConfigured(t *testing.T) {
	d := webhook.New(nil, nil)
	_, err := d.Dispatch(context.Background(), webhook.Request{})
	require.Error(t, err)
	assert.Equal(t, domain.CodeNoWebhookConfigured, domain.CodeOf(err))
}

func TestDispatchSentinelPlaceholderTreatedAsUnconfigured(t *testing.T) {
	d := webhook.New(nil, nil)
	_, err := d.Dispatch(context.Background(), webhook.Request{GlobalWebhook: domain.SentinelWebhookPlaceholder})
	require.Error(t, err)
	assert.Equal(t, domain.CodeNoWebhookConfigured, domain.CodeOf(err))
}

func TestDispatchHTTPErrorClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	d := webhook.New(nil, nil)
	_, err := d.Dispatch(context.Background(), webhook.Request{GlobalWebhook: server.URL})
	require.Error(t, err)
	assert.Equal(t, domain.CodeWebhookHTTPError, domain.CodeOf(err))
}
