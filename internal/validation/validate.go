// Package validation wires go-playground/validator with the struct tags
// declared on domain.StartTargetRequest (min_interval, http_or_https).
package validation

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vitaliisemenov/pagewatch/internal/domain"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation("min_interval", minIntervalFunc)
		_ = validate.RegisterValidation("http_or_https", httpOrHTTPSFunc)
	})
	return validate
}

func minIntervalFunc(fl validator.FieldLevel) bool {
	d, ok := fl.Field().Interface().(time.Duration)
	if !ok {
		return false
	}
	return d >= domain.MinInterval
}

func httpOrHTTPSFunc(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if raw == "" {
		return true // required/omitempty already enforce presence
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// StartTargetRequest validates req against the invariants of spec §3,
// returning a *domain.Error with the most specific applicable code.
func StartTargetRequest(req domain.StartTargetRequest) error {
	if req.Selector == "" {
		return domain.New(domain.CodeInvalidSelector, "selector must not be empty")
	}
	if req.Interval < domain.MinInterval {
		return domain.New(domain.CodeInvalidInterval, fmt.Sprintf("interval must be >= %s", domain.MinInterval))
	}
	if !httpOrHTTPSURL(req.InitialURL) {
		return domain.New(domain.CodeInvalidPageURL, "initial_url must be an absolute http(s) URL")
	}
	if req.WebhookOverride != "" && req.WebhookOverride != domain.SentinelWebhookPlaceholder && !httpOrHTTPSURL(req.WebhookOverride) {
		return domain.New(domain.CodeInvalidWebhookURL, "webhook_override must be an absolute http(s) URL")
	}
	if err := instance().Struct(req); err != nil {
		return domain.Wrap(domain.CodeInvalidSelector, "request failed validation", err)
	}
	return nil
}

func httpOrHTTPSURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// WellFormedWebhookURL reports whether raw is an absolute http(s) URL and
// not the sentinel placeholder (§4.4).
func WellFormedWebhookURL(raw string) bool {
	if raw == "" || raw == domain.SentinelWebhookPlaceholder {
		return false
	}
	return httpOrHTTPSURL(raw)
}
