// Package fake provides an in-memory pageagent.Agent used by tests and by
// the engine's local dev mode, where no real browser host is attached.
package fake

import (
	"context"
	"sync"

	"github.com/vitaliisemenov/pagewatch/internal/domain"
	"github.com/vitaliisemenov/pagewatch/internal/pageagent"
)

// Page is one simulated page known to the fake agent.
type Page struct {
	URL     string
	Content string
	Loaded  bool
	Gone    bool
}

// Agent is a deterministic, in-memory stand-in for an external rendering
// environment, keyed by page_ref. Safe for concurrent use.
type Agent struct {
	mu    sync.Mutex
	pages map[string]*Page
}

// New returns an empty fake agent.
func New() *Agent {
	return &Agent{pages: make(map[string]*Page)}
}

// SetPage registers or replaces the simulated page for pageRef.
func (a *Agent) SetPage(pageRef string, page Page) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := page
	a.pages[pageRef] = &p
}

// SetContent mutates the content of an existing page, simulating the page
// changing between cycles.
func (a *Agent) SetContent(pageRef, content string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.pages[pageRef]; ok {
		p.Content = content
	}
}

// Navigate simulates the user navigating pageRef to a new URL.
func (a *Agent) Navigate(pageRef, url string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.pages[pageRef]; ok {
		p.URL = url
	}
}

// Remove simulates the page disappearing (tab closed).
func (a *Agent) Remove(pageRef string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.pages[pageRef]; ok {
		p.Gone = true
	}
}

func (a *Agent) get(pageRef string) (*Page, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pages[pageRef]
	if !ok || p.Gone {
		return nil, domain.New(domain.CodePageGone, "page "+pageRef+" does not exist")
	}
	return p, nil
}

func (a *Agent) EnsureReady(ctx context.Context, pageRef string) error {
	_, err := a.get(pageRef)
	return err
}

func (a *Agent) CurrentURL(ctx context.Context, pageRef string) (string, error) {
	p, err := a.get(pageRef)
	if err != nil {
		return "", err
	}
	return p.URL, nil
}

func (a *Agent) Refresh(ctx context.Context, pageRef string) error {
	_, err := a.get(pageRef)
	return err
}

func (a *Agent) IsLoaded(ctx context.Context, pageRef string) bool {
	p, err := a.get(pageRef)
	if err != nil {
		return false
	}
	return p.Loaded
}

func (a *Agent) Extract(ctx context.Context, pageRef, selector string, mode domain.ContentMode) (pageagent.ExtractResult, error) {
	p, err := a.get(pageRef)
	if err != nil {
		return pageagent.ExtractResult{}, err
	}
	return pageagent.ExtractResult{Content: p.Content}, nil
}

// ListPages implements pageagent.PageEnumerator.
func (a *Agent) ListPages(ctx context.Context) ([]pageagent.PageInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	pages := make([]pageagent.PageInfo, 0, len(a.pages))
	for ref, p := range a.pages {
		if p.Gone {
			continue
		}
		pages = append(pages, pageagent.PageInfo{PageRef: ref, URL: p.URL})
	}
	return pages, nil
}

var (
	_ pageagent.Agent          = (*Agent)(nil)
	_ pageagent.PageEnumerator = (*Agent)(nil)
)
