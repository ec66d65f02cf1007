// Package pipeline implements the per-target Cycle Pipeline of §4.2:
// refresh, wait-for-ready, extract-with-retries, liveness validation,
// hash, change-decision, dispatch, persist — executed in strict order by
// a single task per target, grounded on the teacher's
// internal/business/publishing/refresh_worker.go single-flight/ticker
// discipline and internal/core/resilience/retry.go's cancellation-aware
// delay loop.
package pipeline

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/vitaliisemenov/pagewatch/internal/activitylog"
	"github.com/vitaliisemenov/pagewatch/internal/domain"
	"github.com/vitaliisemenov/pagewatch/internal/failuretracker"
	"github.com/vitaliisemenov/pagewatch/internal/metrics"
	"github.com/vitaliisemenov/pagewatch/internal/pageagent"
	"github.com/vitaliisemenov/pagewatch/internal/webhook"
)

const (
	// DefaultWaitReadyPollInterval is the readiness poll cadence (§4.2 step 4).
	DefaultWaitReadyPollInterval = 500 * time.Millisecond
	// DefaultWaitReadyCeiling is the hard ceiling on waiting for readiness.
	DefaultWaitReadyCeiling = 10 * time.Second
	// DefaultExtractInitialDelay absorbs client-side dynamic content before
	// the first extract attempt (§4.2 step 5).
	DefaultExtractInitialDelay = 5 * time.Second
	// DefaultExtractRetryDelay separates extract retry attempts.
	DefaultExtractRetryDelay = 3 * time.Second
	// ExtractMaxAttempts is the fixed retry budget (§4.2 step 5); the spec
	// does not make this configurable, unlike the delays above.
	ExtractMaxAttempts = 10
)

// TargetHandle is the single-writer cell a Pipeline mutates each cycle.
// The Watch Supervisor's target table implements it; the Pipeline never
// sees the supervisor's internal locking.
type TargetHandle interface {
	// Snapshot returns a consistent copy of the target's current fields.
	Snapshot() domain.Target
	// CommitCycle persists last_hash/last_check_at after a non-cancelled
	// cycle (step 10 of §4.2).
	CommitCycle(ctx context.Context, hash string, checkedAt time.Time) error
}

// Pipeline runs one cycle at a time for whichever target it is invoked
// with; it holds no per-target state itself.
type Pipeline struct {
	Agent      pageagent.Agent
	Dispatcher *webhook.Dispatcher
	Failures   *failuretracker.Tracker
	Log        *activitylog.Log
	Logger     *slog.Logger

	// GlobalWebhook returns the process-wide default webhook URL at call
	// time (it may change while the engine runs).
	GlobalWebhook func() string

	// OnNavigatedAway and OnPageGone hand control back to the Watch
	// Supervisor, which owns stop_target and its own logging of
	// monitoring/navigated_away and monitoring/page_gone (§4.1).
	OnNavigatedAway func(ctx context.Context, targetID domain.TargetId)
	OnPageGone      func(ctx context.Context, targetID domain.TargetId)

	// Timing overrides the four configurable delays of §4.2/§5. Zero
	// values fall back to the Default* constants; tests shrink them to
	// make cycles run in milliseconds instead of tens of seconds.
	Timing Timing

	// Metrics is optional; a nil Metrics disables instrumentation (tests
	// leave it unset rather than wiring the global registry).
	Metrics *metrics.Registry
}

// Timing holds the Cycle Pipeline's configurable wait/retry durations.
type Timing struct {
	WaitReadyPollInterval time.Duration
	WaitReadyCeiling      time.Duration
	ExtractInitialDelay   time.Duration
	ExtractRetryDelay     time.Duration
}

func (t Timing) withDefaults() Timing {
	if t.WaitReadyPollInterval <= 0 {
		t.WaitReadyPollInterval = DefaultWaitReadyPollInterval
	}
	if t.WaitReadyCeiling <= 0 {
		t.WaitReadyCeiling = DefaultWaitReadyCeiling
	}
	if t.ExtractInitialDelay <= 0 {
		t.ExtractInitialDelay = DefaultExtractInitialDelay
	}
	if t.ExtractRetryDelay <= 0 {
		t.ExtractRetryDelay = DefaultExtractRetryDelay
	}
	return t
}

// Run executes one full cycle for target through handle. ctx is the
// per-target cancellation scope installed by the Supervisor; a cancelled
// cycle must not dispatch and must not update last_hash (§5).
func (p *Pipeline) Run(ctx context.Context, targetID domain.TargetId, handle TargetHandle) {
	target := handle.Snapshot()

	// Step 1: preflight.
	if !target.Enabled {
		return
	}

	start := time.Now()
	outcome := "error"
	if p.Metrics != nil {
		defer func() {
			p.Metrics.CyclesTotal.WithLabelValues(outcome).Inc()
			p.Metrics.CycleDurationSeconds.Observe(time.Since(start).Seconds())
		}()
	}

	// Step 2: navigation check.
	currentURL, err := p.Agent.CurrentURL(ctx, target.PageRef)
	if err != nil {
		if domain.CodeOf(err) == domain.CodePageGone {
			if p.OnPageGone != nil {
				p.OnPageGone(ctx, targetID)
			}
			return
		}
		p.logError(ctx, targetID, domain.CategoryPageAgent, "failed to read current URL", err)
		return
	}
	if !pageagent.SameNormalizedURL(currentURL, target.InitialURL) {
		if p.OnNavigatedAway != nil {
			p.OnNavigatedAway(ctx, targetID)
		}
		return
	}

	// Step 3: refresh.
	if err := p.Agent.Refresh(ctx, target.PageRef); err != nil {
		if domain.CodeOf(err) == domain.CodePageGone {
			if p.OnPageGone != nil {
				p.OnPageGone(ctx, targetID)
			}
			return
		}
		// Refresh failures are not fatal to the cycle; proceed to
		// wait-for-ready regardless, per §4.2 step 4 "After ready (or
		// timeout), proceed regardless."
		p.Log.Record(ctx, domain.LevelWarning, domain.CategoryPageAgent, "refresh failed, continuing", targetID, target.InitialURL,
			map[string]interface{}{"error": err.Error()})
	}

	// Step 4: wait-for-ready, up to the hard ceiling.
	p.waitForReady(ctx, target.PageRef)
	if ctx.Err() != nil {
		return
	}

	// Step 5: extract with retries.
	content, err := p.extractWithRetries(ctx, targetID, &target)
	if err != nil {
		if domain.IsCancelled(err) {
			p.Log.Record(ctx, domain.LevelInfo, domain.CategoryExtraction, "cycle cancelled during extraction", targetID, target.InitialURL, nil)
			return
		}
		// Step 6 failure path: budget exhausted. This is one of the two
		// outcomes that count against the Failure Tracker (§4.5).
		p.Log.Record(ctx, domain.LevelError, domain.CategoryExtraction, "extraction/exhausted", targetID, target.InitialURL,
			map[string]interface{}{"error": err.Error()})
		p.Failures.RecordFailure(targetID)
		return
	}

	if ctx.Err() != nil {
		return
	}

	// Step 7: hash.
	trimmed := strings.TrimSpace(content)
	hash := hashContent(trimmed)

	// Step 8: change decision.
	commit := func() {
		if err := handle.CommitCycle(ctx, hash, time.Now().UTC()); err != nil {
			p.Log.Record(ctx, domain.LevelWarning, domain.CategorySystem, "persist failed, keeping in-memory state", targetID, target.InitialURL,
				map[string]interface{}{"error": err.Error()})
		}
	}

	changed, isBaseline := p.decideChange(&target, hash)
	if isBaseline {
		outcome = "unchanged"
		p.Log.Record(ctx, domain.LevelInfo, domain.CategoryChange, "change/baseline_recorded", targetID, target.InitialURL, nil)
		p.Failures.RecordSuccess(targetID)
		commit()
		return
	}
	if !changed {
		outcome = "unchanged"
		p.Log.Record(ctx, domain.LevelInfo, domain.CategoryChange, "change/none", targetID, target.InitialURL, nil)
		p.Failures.RecordSuccess(targetID)
		commit()
		return
	}

	// Step 9: dispatch.
	if ctx.Err() != nil {
		return
	}
	var tabID *int
	if n, err := strconv.Atoi(target.PageRef); err == nil {
		tabID = &n
	}
	result, dispatchErr := p.Dispatcher.Dispatch(ctx, webhook.Request{
		PageURL:         target.InitialURL,
		Content:         trimmed,
		Selector:        target.Selector,
		ChangeDetected:  true,
		RefreshInterval: target.Interval,
		TabID:           tabID,
		TargetWebhook:   target.WebhookOverride,
		GlobalWebhook:   p.globalWebhook(),
	})
	if dispatchErr != nil {
		// The other outcome counted against the Failure Tracker (§4.5).
		p.Log.Record(ctx, domain.LevelError, domain.CategoryWebhook, "webhook/failed", targetID, target.InitialURL,
			map[string]interface{}{"error": dispatchErr.Error()})
		p.Failures.RecordFailure(targetID)
	} else {
		outcome = "changed"
		p.Failures.RecordSuccess(targetID)
		p.Log.Record(ctx, domain.LevelSuccess, domain.CategoryWebhook, "webhook/sent", targetID, target.InitialURL,
			map[string]interface{}{"contentLength": result.ContentLength, "changeDetected": true})
	}

	// Step 10: persist, only if the cycle was not cancelled.
	if ctx.Err() != nil {
		return
	}
	commit()
}

// SendNowRequest describes an ad-hoc or target-bound immediate dispatch
// (§4.7 `send_now`): extract once, dispatch with change_detected forced to
// true, and touch neither `last_hash` nor the Failure Tracker.
type SendNowRequest struct {
	PageRef         string
	PageURL         string
	Selector        string
	ContentMode     domain.ContentMode
	WebhookOverride string
	TargetWebhook   string
}

// SendNow executes exactly one extract-and-dispatch cycle bypassing change
// detection entirely — it never reads or writes a target's last_hash and
// never calls Failures.Record*, since it exists for one-off manual sends
// (the UI's "Send Now" button), not the periodic schedule.
func (p *Pipeline) SendNow(ctx context.Context, req SendNowRequest) (webhook.Result, error) {
	target := &domain.Target{
		PageRef:     req.PageRef,
		InitialURL:  req.PageURL,
		Selector:    req.Selector,
		ContentMode: req.ContentMode,
	}

	content, err := p.extractWithRetries(ctx, "", target)
	if err != nil {
		return webhook.Result{}, err
	}

	var tabID *int
	if n, err := strconv.Atoi(req.PageRef); err == nil {
		tabID = &n
	}

	return p.Dispatcher.Dispatch(ctx, webhook.Request{
		PageURL:        req.PageURL,
		Content:        strings.TrimSpace(content),
		Selector:       req.Selector,
		ChangeDetected: true,
		TabID:          tabID,
		Override:       req.WebhookOverride,
		TargetWebhook:  req.TargetWebhook,
		GlobalWebhook:  p.globalWebhook(),
	})
}

func (p *Pipeline) globalWebhook() string {
	if p.GlobalWebhook == nil {
		return ""
	}
	return p.GlobalWebhook()
}

// decideChange implements step 8. Returns (changed, isBaseline).
func (p *Pipeline) decideChange(target *domain.Target, hash string) (bool, bool) {
	if !target.ChangeDetection {
		return true, false
	}
	if !target.HasBaseline() {
		return false, true
	}
	return hash != target.LastHash, false
}

func (p *Pipeline) waitForReady(ctx context.Context, pageRef string) {
	timing := p.Timing.withDefaults()
	deadline := time.Now().Add(timing.WaitReadyCeiling)
	for {
		if p.Agent.IsLoaded(ctx, pageRef) {
			return
		}
		if time.Now().After(deadline) {
			return
		}
		if err := sleepCtx(ctx, timing.WaitReadyPollInterval); err != nil {
			return
		}
	}
}

// extractWithRetries implements step 5: an initial delay, then up to
// ExtractMaxAttempts attempts separated by a retry delay.
func (p *Pipeline) extractWithRetries(ctx context.Context, targetID domain.TargetId, target *domain.Target) (string, error) {
	timing := p.Timing.withDefaults()
	if err := sleepCtx(ctx, timing.ExtractInitialDelay); err != nil {
		return "", domain.Wrap(domain.CodeCancelled, "cancelled during initial extract delay", err)
	}

	var lastErr error
	for attempt := 1; attempt <= ExtractMaxAttempts; attempt++ {
		result, err := p.Agent.Extract(ctx, target.PageRef, target.Selector, target.ContentMode)
		if err == nil {
			if livenessErr := validateLiveness(strings.TrimSpace(result.Content), target.ContentMode); livenessErr == nil {
				return result.Content, nil
			} else {
				lastErr = livenessErr
			}
		} else {
			lastErr = err
		}

		if attempt == ExtractMaxAttempts {
			break
		}
		if err := sleepCtx(ctx, timing.ExtractRetryDelay); err != nil {
			return "", domain.Wrap(domain.CodeCancelled, "cancelled during extract retry delay", err)
		}
	}
	return "", lastErr
}

// logError records a non-countable operational error (one that §4.5 does
// not classify as an extraction or dispatch failure) to the Activity Log
// without touching the Failure Tracker.
func (p *Pipeline) logError(ctx context.Context, targetID domain.TargetId, category domain.LogCategory, message string, err error) {
	p.Log.Record(ctx, domain.LevelError, category, message, targetID, "", map[string]interface{}{"error": err.Error()})
}

// sleepCtx sleeps for d or returns ctx.Err() if ctx is cancelled first,
// making every retry/poll wait a cancellation point (§5).
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
