// Package configstore persists watch targets, the process-wide global
// defaults, opaque monitoring profiles, and the Activity Log snapshot
// across restarts, behind a single backend-agnostic Store interface.
// Two backends implement it: an embedded SQLite database for the Lite
// profile and a PostgreSQL database for the Standard profile, selected by
// New based on internal/config's deployment profile — the same Lite/
// Standard split the teacher uses for its own storage backend selection
// (internal/storage/factory.go), repurposed from alert storage to the
// watch-target Config Store.
package configstore

import (
	"context"

	"github.com/vitaliisemenov/pagewatch/internal/domain"
)

// GlobalDefaults is the persisted process-wide configuration (spec §3's
// Global Config, §6's global.defaults). WebhookURL is the webhook used
// when a target has no webhook_override (read through GlobalWebhook);
// StartTarget does not read RefreshIntervalMs or ChangeDetection, since a
// start_target request carries its own values.
type GlobalDefaults struct {
	RefreshIntervalMs int64
	ChangeDetection   bool
	WebhookURL        string
}

// Store is the full persistence surface the engine needs: Watch Supervisor
// target bookkeeping (satisfying supervisor.ConfigStore), Activity Log
// snapshotting (satisfying activitylog.Store), global defaults, and the
// opaque monitoring-profile catalog of spec §6.
type Store interface {
	// Target bookkeeping, mirrored from supervisor.ConfigStore.
	SaveTarget(ctx context.Context, target domain.Target) error
	DeleteTarget(ctx context.Context, id domain.TargetId) error
	LoadEnabledTargets(ctx context.Context) ([]domain.Target, error)
	GlobalWebhook(ctx context.Context) (string, error)

	// Global monitoring defaults (spec §6 global.defaults).
	LoadGlobalDefaults(ctx context.Context) (GlobalDefaults, error)
	SaveGlobalDefaults(ctx context.Context, defaults GlobalDefaults) error

	// Activity Log snapshotting, mirrored from activitylog.Store.
	SaveActivityLogSnapshot(ctx context.Context, entries []domain.LogEntry) error
	LoadActivityLogSnapshot(ctx context.Context) ([]domain.LogEntry, error)
	DeleteActivityLogSnapshot(ctx context.Context) error

	// Profile catalog: opaque named YAML documents a start_target request
	// can reference by profile_name (spec §6 profiles[<name>]).
	SaveProfile(ctx context.Context, name string, contentYAML string) error
	LoadProfile(ctx context.Context, name string) (string, error)
	DeleteProfile(ctx context.Context, name string) error
	ListProfiles(ctx context.Context) ([]string, error)

	// Close releases the underlying connection pool or database handle.
	Close() error
}
