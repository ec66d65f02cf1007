// Package supervisor implements the Watch Supervisor of §4.1: the
// authoritative live set of Targets, their lifecycle (start/stop/auto-
// stop/restore), and the per-target scheduling loop that drives the
// Cycle Pipeline. Grounded on the teacher's
// internal/business/publishing/refresh_worker.go (single-flight ticker
// loop) and internal/storage/factory.go (profile-aware construction is
// mirrored here by the Engine's wiring in internal/engine).
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/google/uuid"

	"github.com/vitaliisemenov/pagewatch/internal/activitylog"
	"github.com/vitaliisemenov/pagewatch/internal/domain"
	"github.com/vitaliisemenov/pagewatch/internal/failuretracker"
	"github.com/vitaliisemenov/pagewatch/internal/metrics"
	"github.com/vitaliisemenov/pagewatch/internal/pageagent"
	"github.com/vitaliisemenov/pagewatch/internal/pipeline"
	"github.com/vitaliisemenov/pagewatch/internal/validation"
)

// cyclePipeline is the narrow surface the Supervisor drives each tick;
// satisfied by *pipeline.Pipeline.
type cyclePipeline interface {
	Run(ctx context.Context, targetID domain.TargetId, handle pipeline.TargetHandle)
}

type liveTarget struct {
	state      *targetState
	cancel     context.CancelFunc
	ticker     *time.Ticker
	inProgress sync.Mutex // held for the duration of one in-flight cycle; TryLock drops an overlapping tick
	stopOnce   sync.Once
}

// Supervisor owns every live Target and its FailureCounter.
type Supervisor struct {
	mu      sync.RWMutex
	targets map[domain.TargetId]*liveTarget

	pipeline cyclePipeline
	agent    pageagent.Agent
	failures *failuretracker.Tracker
	log      *activitylog.Log
	store    ConfigStore
	logger   *slog.Logger
	metrics  *metrics.Registry

	restoreCache *lru.Cache[string, string]
}

// Option configures a Supervisor at construction.
type Option func(*Supervisor)

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = logger }
}

// New constructs a Supervisor. failures must have its onThreshold
// callback wired to call StopTarget (see New's caller in internal/engine)
// since the Failure Tracker cannot import this package.
func New(p cyclePipeline, agent pageagent.Agent, failures *failuretracker.Tracker, log *activitylog.Log, store ConfigStore, opts ...Option) *Supervisor {
	cache, _ := lru.New[string, string](256)
	s := &Supervisor{
		targets:      make(map[domain.TargetId]*liveTarget),
		pipeline:     p,
		agent:        agent,
		failures:     failures,
		log:          log,
		store:        store,
		logger:       slog.Default(),
		metrics:      metrics.DefaultRegistry(),
		restoreCache: cache,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartTarget validates req, persists it, and installs its periodic
// schedule (§4.1).
func (s *Supervisor) StartTarget(ctx context.Context, req domain.StartTargetRequest) (domain.TargetId, error) {
	if err := validation.StartTargetRequest(req); err != nil {
		s.log.Record(ctx, domain.LevelError, domain.CategorySystem, "start_target rejected", "", req.InitialURL,
			map[string]interface{}{"error": err.Error()})
		return "", err
	}

	// "If a target is already running for the same page_ref, it is first
	// stopped."
	if existing, ok := s.findByPageRef(req.PageRef); ok {
		_ = s.StopTarget(ctx, existing)
	}

	id := domain.TargetId(uuid.NewString())
	target := domain.Target{
		Id:              id,
		PageRef:         req.PageRef,
		InitialURL:      req.InitialURL,
		Selector:        req.Selector,
		ContentMode:     req.ContentMode,
		Interval:        req.Interval,
		ChangeDetection: req.ChangeDetection,
		WebhookOverride: req.WebhookOverride,
		ProfileName:     req.ProfileName,
		Enabled:         true,
	}

	if err := s.store.SaveTarget(ctx, target); err != nil {
		return "", domain.Wrap(domain.CodePersistenceError, "failed to persist new target", err)
	}

	s.install(ctx, target)
	s.log.Record(ctx, domain.LevelInfo, domain.CategoryMonitoring, "monitoring/started", id, req.InitialURL, nil)
	return id, nil
}

// install wires a target's ticker and runs its best-effort immediate
// cycle; used by both StartTarget and RestoreFromStore.
func (s *Supervisor) install(ctx context.Context, target domain.Target) {
	state := newTargetState(target, s.store)
	cycleCtx, cancel := context.WithCancel(context.Background())
	lt := &liveTarget{state: state, cancel: cancel}

	s.mu.Lock()
	s.targets[target.Id] = lt
	count := len(s.targets)
	s.mu.Unlock()
	s.metrics.ActiveTargets.Set(float64(count))

	readyErr := s.agent.EnsureReady(ctx, target.PageRef)
	if readyErr == nil {
		go s.runCycle(cycleCtx, target.Id, lt)
	} else {
		s.log.Record(ctx, domain.LevelWarning, domain.CategoryPageAgent, "page agent not ready, skipping immediate cycle", target.Id, target.InitialURL,
			map[string]interface{}{"error": readyErr.Error()})
	}

	lt.ticker = time.NewTicker(target.Interval)
	go s.scheduleLoop(cycleCtx, target.Id, lt)
}

func (s *Supervisor) scheduleLoop(ctx context.Context, id domain.TargetId, lt *liveTarget) {
	for {
		select {
		case <-ctx.Done():
			lt.ticker.Stop()
			return
		case <-lt.ticker.C:
			s.runCycle(ctx, id, lt)
		}
	}
}

// runCycle enforces at-most-one-in-flight per target: an overlapping tick
// is dropped, not queued (§4.1 scheduling policy).
func (s *Supervisor) runCycle(ctx context.Context, id domain.TargetId, lt *liveTarget) {
	if !lt.inProgress.TryLock() {
		return
	}
	defer lt.inProgress.Unlock()
	s.pipeline.Run(ctx, id, lt.state)
}

// findByPageRef returns the live target bound to pageRef, if any.
func (s *Supervisor) findByPageRef(pageRef string) (domain.TargetId, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, lt := range s.targets {
		if lt.state.Snapshot().PageRef == pageRef {
			return id, true
		}
	}
	return "", false
}

// StopTarget cancels the target's schedule, removes it from the live set,
// and deletes its persisted record. Idempotent: a second call
// on the same id returns target_not_found and logs nothing further
// (§4.1, §8 round-trip law).
func (s *Supervisor) StopTarget(ctx context.Context, id domain.TargetId) error {
	s.mu.Lock()
	lt, ok := s.targets[id]
	if ok {
		delete(s.targets, id)
	}
	count := len(s.targets)
	s.mu.Unlock()

	if !ok {
		return domain.New(domain.CodeTargetNotFound, "target not found")
	}
	s.metrics.ActiveTargets.Set(float64(count))

	lt.stopOnce.Do(func() {
		lt.cancel()
		lt.state.setEnabled(false)
		target := lt.state.Snapshot()
		if err := s.store.DeleteTarget(ctx, id); err != nil {
			s.logger.Error("failed to delete stopped target from store", "target_id", id, "error", err)
		}
		s.failures.Forget(id)
		s.log.Record(ctx, domain.LevelInfo, domain.CategoryMonitoring, "monitoring/stopped", id, target.InitialURL, nil)
	})
	return nil
}

// StatusResult is the response shape of status(target_id).
type StatusResult struct {
	IsRunning bool
	Config    domain.Target
}

// Status returns whether id is currently running along with its config.
func (s *Supervisor) Status(id domain.TargetId) (StatusResult, error) {
	s.mu.RLock()
	lt, ok := s.targets[id]
	s.mu.RUnlock()
	if !ok {
		return StatusResult{}, domain.New(domain.CodeTargetNotFound, "target not found")
	}
	return StatusResult{IsRunning: true, Config: lt.state.Snapshot()}, nil
}

// StatusAll returns every currently live TargetId.
func (s *Supervisor) StatusAll() []domain.TargetId {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]domain.TargetId, 0, len(s.targets))
	for id := range s.targets {
		ids = append(ids, id)
	}
	return ids
}

// GlobalWebhook reads the process-wide default webhook through the
// Config Store, used by the Cycle Pipeline's Pipeline.GlobalWebhook
// hook.
func (s *Supervisor) GlobalWebhook() string {
	url, err := s.store.GlobalWebhook(context.Background())
	if err != nil {
		return ""
	}
	return url
}

// navigatedAway implements the pipeline's OnNavigatedAway callback: stop
// the target and log monitoring/navigated_away at warning (§4.1).
func (s *Supervisor) navigatedAway(ctx context.Context, id domain.TargetId) {
	s.log.Record(ctx, domain.LevelWarning, domain.CategoryMonitoring, "monitoring/navigated_away", id, "", nil)
	_ = s.StopTarget(ctx, id)
}

// pageGone implements the pipeline's OnPageGone callback (§4.1).
func (s *Supervisor) pageGone(ctx context.Context, id domain.TargetId) {
	s.log.Record(ctx, domain.LevelWarning, domain.CategoryMonitoring, "monitoring/page_gone", id, "", nil)
	_ = s.StopTarget(ctx, id)
}

// autoStop implements the Failure Tracker's onThreshold callback: stop
// the target and log monitoring/auto_stopped with the failure count
// (§4.5).
func (s *Supervisor) autoStop(id domain.TargetId, count int) {
	ctx := context.Background()
	s.log.Record(ctx, domain.LevelWarning, domain.CategoryMonitoring, "monitoring/auto_stopped", id, "",
		map[string]interface{}{"failure_count": count})
	_ = s.StopTarget(ctx, id)
}

// Callbacks returns the three callbacks the Pipeline and Failure Tracker
// must be wired with; exported so internal/engine can assemble the
// dependency graph without this package importing pipeline's
// construction type or failuretracker's constructor signature.
func (s *Supervisor) Callbacks() (onNavigatedAway, onPageGone func(context.Context, domain.TargetId), onAutoStop func(domain.TargetId, int)) {
	return s.navigatedAway, s.pageGone, s.autoStop
}

// ClearActivityLog empties the Activity Log and resets every failure
// counter, per §4.6's "clear() ... resets all failure counters".
func (s *Supervisor) ClearActivityLog(ctx context.Context) {
	s.log.Clear(ctx)
	s.failures.ResetAll()
}

// RestoreFromStore implements §4.1's process-restart recovery: every
// enabled persisted Target is matched against the Page Agent's currently
// open pages by normalized URL, rebinding page_ref (and rewriting the
// persisted record) when the agent assigned it a different handle than
// the one it was saved under. A target with no matching open page is
// left persisted but not started; it is picked up on a later restore
// once its page reappears. If the agent does not support
// pageagent.PageEnumerator, no target can be matched and every one is
// left unstarted.
func (s *Supervisor) RestoreFromStore(ctx context.Context) error {
	targets, err := s.store.LoadEnabledTargets(ctx)
	if err != nil {
		return domain.Wrap(domain.CodePersistenceError, "failed to load enabled targets", err)
	}

	byURL := s.discoverPagesByNormalizedURL(ctx)

	for _, target := range targets {
		pageRef, ok := s.rebind(target, byURL)
		if !ok {
			s.logger.Info("restore: no matching page, leaving target unstarted", "target_id", target.Id, "url", target.InitialURL)
			continue
		}
		if pageRef != target.PageRef {
			target.PageRef = pageRef
			if err := s.store.SaveTarget(ctx, target); err != nil {
				s.logger.Warn("failed to persist rebound page_ref", "target_id", target.Id, "error", err)
			}
		}
		s.install(ctx, target)
		s.log.Record(ctx, domain.LevelInfo, domain.CategoryMonitoring, "monitoring/restored", target.Id, target.InitialURL, nil)
	}
	return nil
}

// discoverPagesByNormalizedURL asks the Page Agent (if it implements
// PageEnumerator) for every open page, keyed by normalized URL. Each
// match is also added to restoreCache; restore matching reads only the
// returned map, and nothing reads restoreCache.
func (s *Supervisor) discoverPagesByNormalizedURL(ctx context.Context) map[string]string {
	enumerator, ok := s.agent.(pageagent.PageEnumerator)
	if !ok {
		return nil
	}
	pages, err := enumerator.ListPages(ctx)
	if err != nil {
		s.logger.Warn("failed to enumerate pages during restore", "error", err)
		return nil
	}
	byURL := make(map[string]string, len(pages))
	for _, page := range pages {
		normalized, err := pageagent.NormalizeURL(page.URL)
		if err != nil {
			continue
		}
		byURL[normalized] = page.PageRef
		s.restoreCache.Add(normalized, page.PageRef)
	}
	return byURL
}

// rebind returns the page_ref that currently hosts target's initial_url,
// if any open page matches it.
func (s *Supervisor) rebind(target domain.Target, byURL map[string]string) (string, bool) {
	if byURL == nil {
		return "", false
	}
	normalized, err := pageagent.NormalizeURL(target.InitialURL)
	if err != nil {
		return "", false
	}
	pageRef, ok := byURL[normalized]
	return pageRef, ok
}
