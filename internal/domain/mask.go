package domain

import (
	"net/url"
	"strings"
)

// maskedPathPrefixLen is the longest path prefix kept after masking,
// per §4.6 ("scheme://host + up-to-20-char path prefix").
const maskedPathPrefixLen = 20

// MaskURL rewrites a webhook URL to scheme://host plus a short path
// prefix, replacing the remainder with "...". A malformed URL becomes the
// literal string "***" (§4.6). Idempotent: a path that already ends in
// "..." is treated as masked and returned unchanged, so re-masking
// "scheme://host/prefix..." does not append a second "...".
func MaskURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "***"
	}

	path := u.Path
	if strings.HasSuffix(path, "...") {
		return u.Scheme + "://" + u.Host + path
	}

	suffix := ""
	if len(path) > maskedPathPrefixLen {
		path = path[:maskedPathPrefixLen]
		suffix = "..."
	} else if path != "" {
		suffix = "..."
	}

	return u.Scheme + "://" + u.Host + path + suffix
}

// MaskDetails returns a copy of details with the string value of every
// field named "webhookUrl", "webhook_url" or "url" masked via MaskURL,
// including fields inside nested maps. Used
// by the Activity Log at append time (§4.6) so raw URLs never reach
// persisted storage.
func MaskDetails(details map[string]interface{}) map[string]interface{} {
	if details == nil {
		return nil
	}
	out := make(map[string]interface{}, len(details))
	for k, v := range details {
		if isWebhookURLField(k) {
			if s, ok := v.(string); ok {
				out[k] = MaskURL(s)
				continue
			}
		}
		if nested, ok := v.(map[string]interface{}); ok {
			out[k] = MaskDetails(nested)
			continue
		}
		out[k] = v
	}
	return out
}

func isWebhookURLField(key string) bool {
	switch key {
	case "webhookUrl", "webhook_url", "url":
		return true
	default:
		return false
	}
}
