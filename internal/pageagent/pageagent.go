// Package pageagent defines the consumed contract through which the Cycle
// Pipeline drives an external rendering environment (§4.3 of the spec).
// The engine never implements this interface itself — it is supplied by
// whatever embeds the engine (a browser-extension host, a headless
// browser driver, or, in tests, the fake in internal/pageagent/fake).
package pageagent

import (
	"context"

	"github.com/vitaliisemenov/pagewatch/internal/domain"
)

// ExtractResult is the successful outcome of Extract.
type ExtractResult struct {
	Content string
}

// Agent is the minimal surface the core consumes from the rendering
// environment. All calls are logically synchronous but may block; callers
// must pass a context and honor cancellation.
type Agent interface {
	// EnsureReady must be idempotent; the supervisor may call it on every
	// cycle. Implementations that inject helper code into the page do so
	// here and must confirm success with a round-trip ping before
	// returning nil.
	EnsureReady(ctx context.Context, pageRef string) error

	// CurrentURL returns the live URL of pageRef, or a domain.Error coded
	// CodePageGone if the page no longer exists.
	CurrentURL(ctx context.Context, pageRef string) (string, error)

	// Refresh instructs the agent to reload pageRef.
	Refresh(ctx context.Context, pageRef string) error

	// IsLoaded reports the agent's readiness signal for pageRef.
	IsLoaded(ctx context.Context, pageRef string) bool

	// Extract reads selector-scoped content from pageRef in the given mode.
	Extract(ctx context.Context, pageRef, selector string, mode domain.ContentMode) (ExtractResult, error)
}

// NormalizeURL applies the matching rule of §4.1's restore_from_store and
// the navigation-away check of §4.1: strip a trailing slash, drop the
// fragment, preserve the query, case-fold the host.
func NormalizeURL(raw string) (string, error) {
	return normalizeURL(raw)
}
