package webhook

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/vitaliisemenov/pagewatch/internal/domain"
	"github.com/vitaliisemenov/pagewatch/internal/metrics"
)

// DefaultTimeout is the dispatcher's per-request timeout (§4.4).
const DefaultTimeout = 30 * time.Second

// Dispatcher posts a single JSON event per cycle. It never retries on its
// own; repeated failures are surfaced to the Failure Tracker by the Cycle
// Pipeline across subsequent cycles (§4.4).
type Dispatcher struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	metrics    *metrics.Registry
}

// New builds a Dispatcher. limiter paces outbound POSTs process-wide
// (independent of each target's own interval) so many simultaneously
// retrying targets cannot flood a single downstream endpoint; pass nil to
// disable pacing.
func New(limiter *rate.Limiter, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		metrics: metrics.DefaultRegistry(),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
				ForceAttemptHTTP2:   true,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   5 * time.Second,
				ResponseHeaderTimeout: 10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		limiter: limiter,
		logger:  logger,
	}
}

// Dispatch resolves the effective URL, builds the payload, and posts it.
// On success it returns a Result with StatusCode in [200,300). On
// failure it returns the best-effort Result (EffectiveURL populated when
// resolution succeeded) alongside a *domain.Error.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	effectiveURL, ok := resolveEffectiveWebhook(req.Override, req.TargetWebhook, req.GlobalWebhook)
	if !ok {
		return Result{}, domain.New(domain.CodeNoWebhookConfigured, "no webhook configured for this dispatch")
	}

	payload := Payload{
		Type:           "page_monitor",
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		URL:            req.PageURL,
		Content:        req.Content,
		Selector:       req.Selector,
		ChangeDetected: req.ChangeDetected,
		Metadata: Metadata{
			RefreshIntervalMs: req.RefreshInterval.Milliseconds(),
			TabID:             req.TabID,
			WebhookURL:        effectiveURL,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{EffectiveURL: effectiveURL}, domain.Wrap(domain.CodeWebhookNetworkError, "failed to marshal payload", err)
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return Result{EffectiveURL: effectiveURL}, domain.Wrap(domain.CodeCancelled, "dispatch cancelled while rate limited", err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, effectiveURL, bytes.NewReader(body))
	if err != nil {
		return Result{EffectiveURL: effectiveURL}, domain.Wrap(domain.CodeWebhookNetworkError, "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "pagewatch-engine/1.0")

	start := time.Now()
	resp, err := d.httpClient.Do(httpReq)
	duration := time.Since(start)
	d.metrics.DispatchDurationSeconds.Observe(duration.Seconds())

	if err != nil {
		code := domain.CodeWebhookNetworkError
		outcome := "network_error"
		if ctx.Err() != nil {
			code = domain.CodeCancelled
		} else if domain.IsRetryableTransportError(err) {
			code = domain.CodeWebhookTimeout
			outcome = "timeout"
		}
		d.metrics.DispatchesTotal.WithLabelValues(outcome).Inc()
		d.logger.ErrorContext(ctx, "webhook/failed",
			slog.String("url", domain.MaskURL(effectiveURL)),
			slog.String("error", err.Error()),
			slog.Duration("duration", duration))
		return Result{EffectiveURL: effectiveURL, Duration: duration}, domain.Wrap(code, fmt.Sprintf("webhook POST failed: %v", err), err)
	}
	defer resp.Body.Close()

	result := Result{
		EffectiveURL:  effectiveURL,
		StatusCode:    resp.StatusCode,
		ContentLength: len(body),
		Duration:      duration,
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		d.metrics.DispatchesTotal.WithLabelValues("success").Inc()
		d.logger.InfoContext(ctx, "webhook/sent",
			slog.String("url", domain.MaskURL(effectiveURL)),
			slog.Int("status_code", resp.StatusCode),
			slog.Int("content_length", len(req.Content)),
			slog.Bool("change_detected", req.ChangeDetected),
			slog.Duration("duration", duration))
		return result, nil
	}

	d.metrics.DispatchesTotal.WithLabelValues("http_error").Inc()
	d.logger.ErrorContext(ctx, "webhook/failed",
		slog.String("url", domain.MaskURL(effectiveURL)),
		slog.Int("status_code", resp.StatusCode),
		slog.Duration("duration", duration))
	return result, &domain.Error{
		Code:       domain.ClassifyHTTPError(resp.StatusCode),
		Message:    fmt.Sprintf("webhook returned HTTP %d", resp.StatusCode),
		StatusCode: resp.StatusCode,
	}
}

// Close releases idle connections.
func (d *Dispatcher) Close() {
	if transport, ok := d.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
