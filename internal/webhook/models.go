// Package webhook implements the Webhook Dispatcher of §4.4: effective
// URL resolution, payload construction, a single synchronous POST, and
// outcome classification. Grounded on the teacher's webhook HTTP client,
// simplified to a single attempt per spec (no dispatcher-level retry).
package webhook

import "time"

// Metadata is the payload's metadata sub-object.
type Metadata struct {
	RefreshIntervalMs int64 `json:"refreshInterval"`
	TabID             *int  `json:"tabId,omitempty"`
	WebhookURL        string `json:"webhookUrl"`
}

// Payload is the wire shape posted to the effective webhook URL (§4.4).
type Payload struct {
	Type           string   `json:"type"`
	Timestamp      string   `json:"timestamp"`
	URL            string   `json:"url"`
	Content        string   `json:"content"`
	Selector       string   `json:"selector"`
	ChangeDetected bool     `json:"changeDetected"`
	Metadata       Metadata `json:"metadata"`
}

// Request is everything the dispatcher needs to build and send a Payload.
type Request struct {
	PageURL         string
	Content         string
	Selector        string
	ChangeDetected  bool
	RefreshInterval time.Duration
	TabID           *int

	// Override, TargetWebhook, GlobalWebhook feed resolveEffectiveWebhook
	// in precedence order (§4.4): Override > TargetWebhook > GlobalWebhook.
	Override      string
	TargetWebhook string
	GlobalWebhook string
}

// Result is the dispatcher's outcome. On failure it still carries the
// effective URL (and status/duration once a response or transport error
// occurred), so callers can log a masked URL and a status/class; when no
// webhook URL resolves it is empty.
type Result struct {
	EffectiveURL string
	StatusCode   int
	ContentLength int
	Duration     time.Duration
}
