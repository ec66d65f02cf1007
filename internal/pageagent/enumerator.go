package pageagent

import "context"

// PageInfo describes one page known to the rendering environment, as
// needed by restore_from_store's matching pass (§4.1).
type PageInfo struct {
	PageRef string
	URL     string
}

// PageEnumerator is an optional capability beyond the per-cycle Agent
// contract of §4.3: the spec's restore_from_store ("enumerates pages
// known to the Page Agent") needs a way to list currently open pages,
// which no individual cycle operation provides. Implementations that
// support process-restart rebinding should implement this alongside
// Agent; the Watch Supervisor type-asserts for it and, if absent, treats
// restore as "no pages available to rebind" (every persisted config is
// left persisted but not started, same as a genuine zero-pages case).
type PageEnumerator interface {
	ListPages(ctx context.Context) ([]PageInfo, error)
}
