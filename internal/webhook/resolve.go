package webhook

import "github.com/vitaliisemenov/pagewatch/internal/validation"

// resolveEffectiveWebhook consolidates the URL-selection policy of §4.4
// into the single call site DESIGN NOTES §9 asks for: override, then the
// target's own override, then the global default. The first well-formed
// absolute http(s) URL wins; the sentinel placeholder is treated as
// absent, same as an empty string.
func resolveEffectiveWebhook(override, target, global string) (string, bool) {
	for _, candidate := range []string{override, target, global} {
		if validation.WellFormedWebhookURL(candidate) {
			return candidate, true
		}
	}
	return "", false
}
