// Package engine assembles the page-watch engine's dependency graph from
// a loaded config.Config: Config Store, Activity Log, Failure Tracker,
// Webhook Dispatcher, Cycle Pipeline, and Watch Supervisor, wired in the
// construction order spec.md §2 declares (each component depends only on
// components built before it, with the Supervisor/Tracker/Pipeline
// three-way cycle broken by post-construction callback wiring). Grounded
// on the teacher's cmd/server/main.go bootstrap sequence.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/vitaliisemenov/pagewatch/internal/activitylog"
	"github.com/vitaliisemenov/pagewatch/internal/config"
	"github.com/vitaliisemenov/pagewatch/internal/configstore"
	"github.com/vitaliisemenov/pagewatch/internal/failuretracker"
	"github.com/vitaliisemenov/pagewatch/internal/metrics"
	"github.com/vitaliisemenov/pagewatch/internal/pageagent"
	"github.com/vitaliisemenov/pagewatch/internal/pipeline"
	"github.com/vitaliisemenov/pagewatch/internal/supervisor"
	"github.com/vitaliisemenov/pagewatch/internal/webhook"
)

// DispatchRateLimit is the process-wide webhook dispatch pacing (§11
// DOMAIN STACK): at most this many outbound POSTs per second, regardless
// of how many targets change in the same tick.
const DispatchRateLimit = 20

// Engine holds every constructed component, ready for an internal/api
// router or a CLI command to drive.
type Engine struct {
	Store      configstore.Store
	Log        *activitylog.Log
	Failures   *failuretracker.Tracker
	Dispatcher *webhook.Dispatcher
	Pipeline   *pipeline.Pipeline
	Supervisor *supervisor.Supervisor

	logger *slog.Logger
	ready  bool
}

// New builds the full dependency graph. agent is the caller-supplied Page
// Agent (a real browser-extension host in production, internal/pageagent/
// fake.Agent in a local dev or test run).
func New(ctx context.Context, cfg *config.Config, agent pageagent.Agent, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, err := configstore.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init config store: %w", err)
	}
	store, err = configstore.NewRedisCache(ctx, cfg, store, logger)
	if err != nil {
		return nil, fmt.Errorf("init activity log cache: %w", err)
	}

	log := activitylog.New(activitylog.DefaultCapacity, store, logger)
	log.Restore(ctx)

	limiter := rate.NewLimiter(rate.Limit(DispatchRateLimit), DispatchRateLimit)
	dispatcher := webhook.New(limiter, logger)

	tracker := failuretracker.New(cfg.Engine.FailureThreshold, nil)

	p := &pipeline.Pipeline{
		Agent:      agent,
		Dispatcher: dispatcher,
		Failures:   tracker,
		Log:        log,
		Logger:     logger,
		Metrics:    metrics.DefaultRegistry(),
	}

	sup := supervisor.New(p, agent, tracker, log, store, supervisor.WithLogger(logger))
	p.GlobalWebhook = sup.GlobalWebhook
	onNavigatedAway, onPageGone, onAutoStop := sup.Callbacks()
	p.OnNavigatedAway = onNavigatedAway
	p.OnPageGone = onPageGone
	tracker.SetOnThreshold(onAutoStop)

	return &Engine{
		Store:      store,
		Log:        log,
		Failures:   tracker,
		Dispatcher: dispatcher,
		Pipeline:   p,
		Supervisor: sup,
	}, nil
}

// Start runs restore_from_store (§4.1), bringing every previously enabled
// target back under management, and marks the engine ready.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.Supervisor.RestoreFromStore(ctx); err != nil {
		return fmt.Errorf("restore from store: %w", err)
	}
	e.ready = true
	return nil
}

// Ready reports whether Start has completed; the Command/Query API's
// /readyz handler uses this directly.
func (e *Engine) Ready() bool {
	return e.ready
}

// Shutdown stops every live target and releases the Dispatcher's idle
// connections and the Config Store's handle. It does not cancel
// in-flight HTTP requests; callers should shut the API server down first.
func (e *Engine) Shutdown(ctx context.Context) error {
	for _, id := range e.Supervisor.StatusAll() {
		_ = e.Supervisor.StopTarget(ctx, id)
	}
	e.Dispatcher.Close()
	return e.Store.Close()
}
