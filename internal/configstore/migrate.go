package configstore

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/vitaliisemenov/pagewatch/internal/config"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

// RunMigrations applies every pending schema migration for cfg's deployment
// profile, grounded on the teacher's RunMigrations (internal/database/
// migrations.go): goose needs a *database/sql* handle, so for the Standard
// profile this opens a short-lived "pgx" stdlib connection independent of
// the pgxpool.Pool the running Store uses for queries.
func RunMigrations(cfg *config.Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	switch {
	case cfg.IsStandardProfile():
		return runMigrationsWith(logger, "pgx", cfg.DSN(), "postgres", postgresMigrations, "migrations/postgres")
	case cfg.IsLiteProfile():
		return runMigrationsWith(logger, "sqlite", cfg.Database.SQLitePath, "sqlite3", sqliteMigrations, "migrations/sqlite")
	default:
		return fmt.Errorf("unknown deployment profile: %s", cfg.Profile)
	}
}

func runMigrationsWith(logger *slog.Logger, driverName, dsn, gooseDialect string, fsys embed.FS, dir string) error {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return fmt.Errorf("open %s for migrations: %w", driverName, err)
	}
	defer db.Close()

	goose.SetBaseFS(fsys)
	if err := goose.SetDialect(gooseDialect); err != nil {
		return fmt.Errorf("set goose dialect %s: %w", gooseDialect, err)
	}

	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("run %s migrations: %w", gooseDialect, err)
	}

	logger.Info("config store migrations applied", "dialect", gooseDialect)
	return nil
}
