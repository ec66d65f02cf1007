// Package errors formats the Command/Query API's {success, code, message}
// error contract of spec.md §4.7/§7, mapping the engine's domain.Code
// taxonomy onto HTTP status codes, grounded on the teacher's
// internal/api/errors package.
package errors

import (
	"encoding/json"
	"net/http"

	"github.com/vitaliisemenov/pagewatch/internal/domain"
)

// Response is the JSON body of every API error, matching spec.md §4.7's
// {success: false, code, message} contract.
type Response struct {
	Success   bool        `json:"success"`
	Code      domain.Code `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"request_id,omitempty"`
}

// StatusFor maps a domain.Code to the HTTP status the API returns it as.
func StatusFor(code domain.Code) int {
	switch code {
	case domain.CodeTargetNotFound, domain.CodeProfileNotFound:
		return http.StatusNotFound
	case domain.CodeInvalidSelector, domain.CodeInvalidInterval, domain.CodeInvalidWebhookURL,
		domain.CodeInvalidPageURL, domain.CodeNoWebhookConfigured:
		return http.StatusBadRequest
	case domain.CodeTargetAlreadyRunning:
		return http.StatusConflict
	case domain.CodePageUnreachable, domain.CodePageGone, domain.CodeUnsupportedPage,
		domain.CodeElementNotFound, domain.CodePageStillLoading:
		return http.StatusServiceUnavailable
	case domain.CodeCancelled:
		return http.StatusRequestTimeout
	case domain.CodePersistenceError, domain.CodeWebhookHTTPError, domain.CodeWebhookNetworkError,
		domain.CodeWebhookTimeout:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Write writes err as a Response, classifying it via domain.CodeOf when
// err is (or wraps) a *domain.Error, and falling back to an opaque
// internal_error for anything else so callers never leak raw Go error
// strings.
func Write(w http.ResponseWriter, requestID string, err error) {
	code := domain.CodeOf(err)
	message := err.Error()
	if code == "" {
		code = "internal_error"
		message = "internal error"
	}
	resp := Response{Success: false, Code: code, Message: message, RequestID: requestID}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusFor(code))
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteJSON writes v as a JSON body with the given status; wrapping it in
// {success: true, ...} is left to callers since response shapes vary by
// endpoint (§4.7 only fixes the error contract, not every success shape).
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
