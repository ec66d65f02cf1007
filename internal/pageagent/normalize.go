package pageagent

import (
	"net/url"
	"strings"
)

// normalizeURL implements the normalized-URL-equality rule used both by
// restore_from_store's page matching and the per-cycle navigation-away
// check (§4.1): strip a trailing "/", drop the fragment, preserve the
// query, case-fold the host.
func normalizeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String(), nil
}

// SameNormalizedURL reports whether a and b normalize to the same value.
// A parse failure on either side is treated as "not the same".
func SameNormalizedURL(a, b string) bool {
	na, err := normalizeURL(a)
	if err != nil {
		return false
	}
	nb, err := normalizeURL(b)
	if err != nil {
		return false
	}
	return na == nb
}
