package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Code is a stable, machine-readable error code (§7).
type Code string

const (
	// Configuration
	CodeInvalidSelector      Code = "invalid_selector"
	CodeInvalidInterval      Code = "invalid_interval"
	CodeInvalidWebhookURL    Code = "invalid_webhook_url"
	CodeInvalidPageURL       Code = "invalid_page_url"
	CodeNoWebhookConfigured  Code = "no_webhook_configured"

	// Target
	CodeTargetNotFound      Code = "target_not_found"
	CodeTargetAlreadyRunning Code = "target_already_running"

	// Profile catalog
	CodeProfileNotFound Code = "profile_not_found"

	// Page Agent
	CodePageUnreachable Code = "page_unreachable"
	CodePageGone        Code = "page_gone"
	CodeUnsupportedPage Code = "unsupported_page"
	CodeElementNotFound Code = "element_not_found"
	CodePageStillLoading Code = "page_still_loading"

	// Extraction
	CodeContentTooShort             Code = "content_too_short"
	CodeContentContainsLoadingMarkers Code = "content_contains_loading_markers"
	CodeContentInsufficientLines     Code = "content_insufficient_lines"

	// Webhook
	CodeWebhookHTTPError    Code = "webhook_http_error"
	CodeWebhookNetworkError Code = "webhook_network_error"
	CodeWebhookTimeout      Code = "webhook_timeout"

	// Internal
	CodePersistenceError Code = "persistence_error"
	CodeCancelled        Code = "cancelled"
)

// Error is the engine-wide typed error: a stable Code, a human Message, an
// optional HTTP-style StatusCode (webhook errors), and a wrapped Cause.
type Error struct {
	Code       Code
	Message    string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("[%s] HTTP %d: %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an *Error around an existing cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the machine code from any error in the chain, or ""
// if the error is not (or does not wrap) a domain *Error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsCancelled reports whether err represents a cancellation, which the
// Failure Tracker must not count against a target (§7).
func IsCancelled(err error) bool {
	return CodeOf(err) == CodeCancelled || errors.Is(err, context.Canceled)
}

// ClassifyHTTPError maps a webhook response status to a machine code,
// mirroring the teacher's classifyHTTPError/classifyErrorType split.
func ClassifyHTTPError(statusCode int) Code {
	if statusCode >= 200 && statusCode < 300 {
		return ""
	}
	return CodeWebhookHTTPError
}

// IsRetryableTransportError reports whether a transport-level error (not
// an HTTP status) looks transient. The dispatcher never retries on its
// own (§4.4); this is used only to pick the log message/category.
func IsRetryableTransportError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
