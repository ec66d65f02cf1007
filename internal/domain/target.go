// Package domain holds the page-watch engine's core data model: targets,
// activity log entries, and the error taxonomy shared by every component.
package domain

import "time"

// TargetId is the opaque, process-unique identity of a watch target.
type TargetId string

// ContentMode selects how a Page Agent renders an extracted fragment.
type ContentMode string

const (
	ContentModeMarkup ContentMode = "markup"
	ContentModeText    ContentMode = "text"
)

// Target is a declared watch: a page, a selector, a cadence, and the
// bookkeeping the Cycle Pipeline needs to decide whether content changed.
type Target struct {
	Id              TargetId    `json:"id"`
	PageRef         string      `json:"page_ref"`
	InitialURL      string      `json:"initial_url"`
	Selector        string      `json:"selector"`
	ContentMode     ContentMode `json:"content_mode"`
	Interval        time.Duration `json:"interval"`
	ChangeDetection bool        `json:"change_detection"`
	WebhookOverride string      `json:"webhook_override,omitempty"`
	ProfileName     string      `json:"profile_name,omitempty"`
	Enabled         bool        `json:"enabled"`
	LastHash        string      `json:"last_hash,omitempty"`
	LastCheckAt     time.Time   `json:"last_check_at,omitempty"`
}

// HasBaseline reports whether the target has completed at least one
// successful cycle (LastHash is present iff this is true, per spec).
func (t *Target) HasBaseline() bool {
	return t.LastHash != ""
}

// Clone returns a deep copy safe to hand to a caller outside the
// supervisor's critical section.
func (t *Target) Clone() *Target {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

// StartTargetRequest is the input shape of the start_target command; it
// carries every Target field the caller supplies (identity, enabled state,
// last_hash and last_check_at are generated/owned by the engine).
type StartTargetRequest struct {
	PageRef         string      `json:"page_ref" validate:"required"`
	InitialURL      string      `json:"initial_url" validate:"required,url,http_or_https"`
	Selector        string      `json:"selector" validate:"required"`
	ContentMode     ContentMode `json:"content_mode" validate:"required,oneof=markup text"`
	Interval        time.Duration `json:"interval" validate:"required,min_interval"`
	ChangeDetection bool        `json:"change_detection"`
	WebhookOverride string      `json:"webhook_override,omitempty" validate:"omitempty,url,http_or_https"`
	ProfileName     string      `json:"profile_name,omitempty"`
}

// MinInterval is the smallest accepted polling interval (§3 invariant).
const MinInterval = 5 * time.Second

// SentinelWebhookPlaceholder is treated as "unconfigured" even though it
// parses as a syntactically valid URL.
const SentinelWebhookPlaceholder = "YOUR_WEBHOOK_URL"
