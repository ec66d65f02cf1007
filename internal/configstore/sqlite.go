package configstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vitaliisemenov/pagewatch/internal/domain"
)

// sqliteStore is the Lite profile's Store backend: a single embedded,
// cgo-free SQLite file. Grounded on the teacher's SQLiteDatabase adapter
// (internal/infrastructure/sqlite_adapter.go): directory creation via
// os.MkdirAll, `sql.Open("sqlite", path)`, and the same foreign-keys/WAL
// pragmas on connect.
type sqliteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func newSQLiteStore(ctx context.Context, path string, logger *slog.Logger) (*sqliteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		logger.Warn("failed to enable sqlite WAL mode", "error", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	logger.Info("connected to sqlite config store", "path", path)
	return &sqliteStore{db: db, logger: logger}, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

const rfc3339 = time.RFC3339Nano

func (s *sqliteStore) SaveTarget(ctx context.Context, target domain.Target) error {
	const q = `
INSERT INTO targets (id, page_ref, initial_url, selector, content_mode, interval_ms,
                      change_detection, webhook_override, profile_name, enabled, last_hash, last_check_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    page_ref = excluded.page_ref,
    initial_url = excluded.initial_url,
    selector = excluded.selector,
    content_mode = excluded.content_mode,
    interval_ms = excluded.interval_ms,
    change_detection = excluded.change_detection,
    webhook_override = excluded.webhook_override,
    profile_name = excluded.profile_name,
    enabled = excluded.enabled,
    last_hash = excluded.last_hash,
    last_check_at = excluded.last_check_at`

	var lastCheckAt sql.NullString
	if !target.LastCheckAt.IsZero() {
		lastCheckAt = sql.NullString{String: target.LastCheckAt.Format(rfc3339), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, q,
		string(target.Id), target.PageRef, target.InitialURL, target.Selector, string(target.ContentMode),
		target.Interval.Milliseconds(), target.ChangeDetection, target.WebhookOverride, target.ProfileName,
		target.Enabled, target.LastHash, lastCheckAt)
	if err != nil {
		return fmt.Errorf("save target %s: %w", target.Id, err)
	}
	return nil
}

func (s *sqliteStore) DeleteTarget(ctx context.Context, id domain.TargetId) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM targets WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("delete target %s: %w", id, err)
	}
	return nil
}

func (s *sqliteStore) LoadEnabledTargets(ctx context.Context) ([]domain.Target, error) {
	const q = `
SELECT id, page_ref, initial_url, selector, content_mode, interval_ms,
       change_detection, webhook_override, profile_name, enabled, last_hash, last_check_at
FROM targets WHERE enabled = 1`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load enabled targets: %w", err)
	}
	defer rows.Close()

	var out []domain.Target
	for rows.Next() {
		t, err := scanSQLiteTarget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanSQLiteTarget(row *sql.Rows) (domain.Target, error) {
	var (
		t           domain.Target
		id          string
		contentMode string
		intervalMs  int64
		lastCheckAt sql.NullString
	)
	if err := row.Scan(&id, &t.PageRef, &t.InitialURL, &t.Selector, &contentMode, &intervalMs,
		&t.ChangeDetection, &t.WebhookOverride, &t.ProfileName, &t.Enabled, &t.LastHash, &lastCheckAt); err != nil {
		return domain.Target{}, fmt.Errorf("scan target row: %w", err)
	}
	t.Id = domain.TargetId(id)
	t.ContentMode = domain.ContentMode(contentMode)
	t.Interval = time.Duration(intervalMs) * time.Millisecond
	if lastCheckAt.Valid {
		parsed, err := time.Parse(rfc3339, lastCheckAt.String)
		if err != nil {
			return domain.Target{}, fmt.Errorf("parse last_check_at: %w", err)
		}
		t.LastCheckAt = parsed
	}
	return t, nil
}

func (s *sqliteStore) GlobalWebhook(ctx context.Context) (string, error) {
	defaults, err := s.LoadGlobalDefaults(ctx)
	if err != nil {
		return "", err
	}
	return defaults.WebhookURL, nil
}

func (s *sqliteStore) LoadGlobalDefaults(ctx context.Context) (GlobalDefaults, error) {
	const q = `SELECT global_webhook_url, refresh_interval_ms, change_detection FROM global_config WHERE id = 1`
	var d GlobalDefaults
	err := s.db.QueryRowContext(ctx, q).Scan(&d.WebhookURL, &d.RefreshIntervalMs, &d.ChangeDetection)
	if errors.Is(err, sql.ErrNoRows) {
		return GlobalDefaults{}, nil
	}
	if err != nil {
		return GlobalDefaults{}, fmt.Errorf("load global defaults: %w", err)
	}
	return d, nil
}

func (s *sqliteStore) SaveGlobalDefaults(ctx context.Context, defaults GlobalDefaults) error {
	const q = `
INSERT INTO global_config (id, global_webhook_url, refresh_interval_ms, change_detection)
VALUES (1, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    global_webhook_url = excluded.global_webhook_url,
    refresh_interval_ms = excluded.refresh_interval_ms,
    change_detection = excluded.change_detection`
	_, err := s.db.ExecContext(ctx, q, defaults.WebhookURL, defaults.RefreshIntervalMs, defaults.ChangeDetection)
	if err != nil {
		return fmt.Errorf("save global defaults: %w", err)
	}
	return nil
}

func (s *sqliteStore) SaveActivityLogSnapshot(ctx context.Context, entries []domain.LogEntry) error {
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal activity log snapshot: %w", err)
	}
	const q = `
INSERT INTO activity_log_snapshot (id, entries_json) VALUES (1, ?)
ON CONFLICT (id) DO UPDATE SET entries_json = excluded.entries_json`
	if _, err := s.db.ExecContext(ctx, q, string(payload)); err != nil {
		return fmt.Errorf("save activity log snapshot: %w", err)
	}
	return nil
}

func (s *sqliteStore) LoadActivityLogSnapshot(ctx context.Context) ([]domain.LogEntry, error) {
	const q = `SELECT entries_json FROM activity_log_snapshot WHERE id = 1`
	var payload string
	err := s.db.QueryRowContext(ctx, q).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load activity log snapshot: %w", err)
	}
	var entries []domain.LogEntry
	if err := json.Unmarshal([]byte(payload), &entries); err != nil {
		return nil, fmt.Errorf("unmarshal activity log snapshot: %w", err)
	}
	return entries, nil
}

func (s *sqliteStore) DeleteActivityLogSnapshot(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `UPDATE activity_log_snapshot SET entries_json = '[]' WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("delete activity log snapshot: %w", err)
	}
	return nil
}

func (s *sqliteStore) SaveProfile(ctx context.Context, name string, contentYAML string) error {
	const q = `
INSERT INTO profiles (name, content_yaml) VALUES (?, ?)
ON CONFLICT (name) DO UPDATE SET content_yaml = excluded.content_yaml`
	_, err := s.db.ExecContext(ctx, q, name, contentYAML)
	if err != nil {
		return fmt.Errorf("save profile %s: %w", name, err)
	}
	return nil
}

func (s *sqliteStore) LoadProfile(ctx context.Context, name string) (string, error) {
	const q = `SELECT content_yaml FROM profiles WHERE name = ?`
	var content string
	err := s.db.QueryRowContext(ctx, q, name).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.New(domain.CodeProfileNotFound, fmt.Sprintf("profile %q not found", name))
	}
	if err != nil {
		return "", fmt.Errorf("load profile %s: %w", name, err)
	}
	return content, nil
}

func (s *sqliteStore) DeleteProfile(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete profile %s: %w", name, err)
	}
	return nil
}

func (s *sqliteStore) ListProfiles(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM profiles ORDER BY name`)
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
