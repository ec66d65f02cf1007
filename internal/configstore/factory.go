package configstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vitaliisemenov/pagewatch/internal/config"
)

// New builds the Store appropriate for cfg's deployment profile, running
// pending migrations first. Grounded on the teacher's NewStorage profile
// dispatch (internal/storage/factory.go): a switch over cfg.IsLiteProfile()/
// cfg.IsStandardProfile(), repurposed from "alert storage" to the
// page-watch Config Store.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config store configuration: %w", err)
	}

	if err := RunMigrations(cfg, logger); err != nil {
		return nil, fmt.Errorf("apply config store migrations: %w", err)
	}

	logger.Info("initializing config store", "profile", cfg.Profile)

	switch {
	case cfg.IsLiteProfile():
		store, err := newSQLiteStore(ctx, cfg.Database.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("init sqlite config store: %w", err)
		}
		return store, nil

	case cfg.IsStandardProfile():
		store, err := newPostgresStore(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("init postgres config store: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown deployment profile: %s", cfg.Profile)
	}
}
