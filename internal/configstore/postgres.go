package configstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vitaliisemenov/pagewatch/internal/config"
	"github.com/vitaliisemenov/pagewatch/internal/domain"
)

// postgresStore is the Standard profile's Store backend, grounded on the
// teacher's pgxpool connection pattern (internal/database/postgres/pool.go:
// pgxpool.ParseConfig + MaxConns/MinConns/MaxConnLifetime/MaxConnIdleTime +
// a connect-timeout context and a post-connect Ping).
type postgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func newPostgresStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*postgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	if cfg.Database.MaxConnections > 0 {
		poolConfig.MaxConns = int32(cfg.Database.MaxConnections)
	}
	if cfg.Database.MinConnections > 0 {
		poolConfig.MinConns = int32(cfg.Database.MinConnections)
	}
	if cfg.Database.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	}
	if cfg.Database.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime
	}

	connectTimeout := cfg.Database.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	var pool *pgxpool.Pool
	retryErr := defaultConnectRetry().run(connectCtx, func() error {
		p, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
		if err != nil {
			return fmt.Errorf("create postgres pool: %w", err)
		}
		if err := p.Ping(connectCtx); err != nil {
			p.Close()
			return fmt.Errorf("ping postgres: %w", err)
		}
		pool = p
		return nil
	})
	if retryErr != nil {
		return nil, retryErr
	}

	logger.Info("connected to postgres config store", "host", cfg.Database.Host, "database", cfg.Database.Database)
	return &postgresStore{pool: pool, logger: logger}, nil
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *postgresStore) SaveTarget(ctx context.Context, target domain.Target) error {
	const q = `
INSERT INTO targets (id, page_ref, initial_url, selector, content_mode, interval_ms,
                      change_detection, webhook_override, profile_name, enabled, last_hash, last_check_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO UPDATE SET
    page_ref = EXCLUDED.page_ref,
    initial_url = EXCLUDED.initial_url,
    selector = EXCLUDED.selector,
    content_mode = EXCLUDED.content_mode,
    interval_ms = EXCLUDED.interval_ms,
    change_detection = EXCLUDED.change_detection,
    webhook_override = EXCLUDED.webhook_override,
    profile_name = EXCLUDED.profile_name,
    enabled = EXCLUDED.enabled,
    last_hash = EXCLUDED.last_hash,
    last_check_at = EXCLUDED.last_check_at`

	var lastCheckAt *time.Time
	if !target.LastCheckAt.IsZero() {
		lastCheckAt = &target.LastCheckAt
	}

	_, err := s.pool.Exec(ctx, q,
		string(target.Id), target.PageRef, target.InitialURL, target.Selector, string(target.ContentMode),
		target.Interval.Milliseconds(), target.ChangeDetection, target.WebhookOverride, target.ProfileName,
		target.Enabled, target.LastHash, lastCheckAt)
	if err != nil {
		return fmt.Errorf("save target %s: %w", target.Id, err)
	}
	return nil
}

func (s *postgresStore) DeleteTarget(ctx context.Context, id domain.TargetId) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM targets WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("delete target %s: %w", id, err)
	}
	return nil
}

func (s *postgresStore) LoadEnabledTargets(ctx context.Context) ([]domain.Target, error) {
	const q = `
SELECT id, page_ref, initial_url, selector, content_mode, interval_ms,
       change_detection, webhook_override, profile_name, enabled, last_hash, last_check_at
FROM targets WHERE enabled = TRUE`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load enabled targets: %w", err)
	}
	defer rows.Close()

	var out []domain.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTarget(row rowScanner) (domain.Target, error) {
	var (
		t             domain.Target
		id            string
		contentMode   string
		intervalMs    int64
		lastCheckAt   *time.Time
	)
	if err := row.Scan(&id, &t.PageRef, &t.InitialURL, &t.Selector, &contentMode, &intervalMs,
		&t.ChangeDetection, &t.WebhookOverride, &t.ProfileName, &t.Enabled, &t.LastHash, &lastCheckAt); err != nil {
		return domain.Target{}, fmt.Errorf("scan target row: %w", err)
	}
	t.Id = domain.TargetId(id)
	t.ContentMode = domain.ContentMode(contentMode)
	t.Interval = time.Duration(intervalMs) * time.Millisecond
	if lastCheckAt != nil {
		t.LastCheckAt = *lastCheckAt
	}
	return t, nil
}

func (s *postgresStore) GlobalWebhook(ctx context.Context) (string, error) {
	defaults, err := s.LoadGlobalDefaults(ctx)
	if err != nil {
		return "", err
	}
	return defaults.WebhookURL, nil
}

func (s *postgresStore) LoadGlobalDefaults(ctx context.Context) (GlobalDefaults, error) {
	const q = `SELECT global_webhook_url, refresh_interval_ms, change_detection FROM global_config WHERE id = 1`
	var d GlobalDefaults
	err := s.pool.QueryRow(ctx, q).Scan(&d.WebhookURL, &d.RefreshIntervalMs, &d.ChangeDetection)
	if errors.Is(err, pgx.ErrNoRows) {
		return GlobalDefaults{}, nil
	}
	if err != nil {
		return GlobalDefaults{}, fmt.Errorf("load global defaults: %w", err)
	}
	return d, nil
}

func (s *postgresStore) SaveGlobalDefaults(ctx context.Context, defaults GlobalDefaults) error {
	const q = `
INSERT INTO global_config (id, global_webhook_url, refresh_interval_ms, change_detection)
VALUES (1, $1, $2, $3)
ON CONFLICT (id) DO UPDATE SET
    global_webhook_url = EXCLUDED.global_webhook_url,
    refresh_interval_ms = EXCLUDED.refresh_interval_ms,
    change_detection = EXCLUDED.change_detection`
	_, err := s.pool.Exec(ctx, q, defaults.WebhookURL, defaults.RefreshIntervalMs, defaults.ChangeDetection)
	if err != nil {
		return fmt.Errorf("save global defaults: %w", err)
	}
	return nil
}

func (s *postgresStore) SaveActivityLogSnapshot(ctx context.Context, entries []domain.LogEntry) error {
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal activity log snapshot: %w", err)
	}
	const q = `
INSERT INTO activity_log_snapshot (id, entries_json) VALUES (1, $1)
ON CONFLICT (id) DO UPDATE SET entries_json = EXCLUDED.entries_json`
	if _, err := s.pool.Exec(ctx, q, payload); err != nil {
		return fmt.Errorf("save activity log snapshot: %w", err)
	}
	return nil
}

func (s *postgresStore) LoadActivityLogSnapshot(ctx context.Context) ([]domain.LogEntry, error) {
	const q = `SELECT entries_json FROM activity_log_snapshot WHERE id = 1`
	var payload []byte
	err := s.pool.QueryRow(ctx, q).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load activity log snapshot: %w", err)
	}
	var entries []domain.LogEntry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal activity log snapshot: %w", err)
	}
	return entries, nil
}

func (s *postgresStore) DeleteActivityLogSnapshot(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `UPDATE activity_log_snapshot SET entries_json = '[]' WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("delete activity log snapshot: %w", err)
	}
	return nil
}

func (s *postgresStore) SaveProfile(ctx context.Context, name string, contentYAML string) error {
	const q = `
INSERT INTO profiles (name, content_yaml) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET content_yaml = EXCLUDED.content_yaml`
	_, err := s.pool.Exec(ctx, q, name, contentYAML)
	if err != nil {
		return fmt.Errorf("save profile %s: %w", name, err)
	}
	return nil
}

func (s *postgresStore) LoadProfile(ctx context.Context, name string) (string, error) {
	const q = `SELECT content_yaml FROM profiles WHERE name = $1`
	var content string
	err := s.pool.QueryRow(ctx, q, name).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.New(domain.CodeProfileNotFound, fmt.Sprintf("profile %q not found", name))
	}
	if err != nil {
		return "", fmt.Errorf("load profile %s: %w", name, err)
	}
	return content, nil
}

func (s *postgresStore) DeleteProfile(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM profiles WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete profile %s: %w", name, err)
	}
	return nil
}

func (s *postgresStore) ListProfiles(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM profiles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan profile name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
