package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLitePrefs stores preferences in the prefs table of a sqlite database.
type SQLitePrefs struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLitePrefs(dbPath string) (*SQLitePrefs, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLitePrefs{db: db, now: time.Now}, nil
}

func (r *SQLitePrefs) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLitePrefs) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM prefs WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get pref %s: %w", key, err)
	}
	return value, true, nil
}

func (r *SQLitePrefs) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO prefs (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, r.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set pref %s: %w", key, err)
	}
	slog.DebugContext(ctx, "Preference saved", "key", key, "bytes", len(value))
	return nil
}

func (r *SQLitePrefs) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM prefs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete pref %s: %w", key, err)
	}
	slog.DebugContext(ctx, "Preference deleted", "key", key)
	return nil
}

// UpdatedAt returns when key was last written.
func (r *SQLitePrefs) UpdatedAt(ctx context.Context, key string) (time.Time, bool, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT updated_at FROM prefs WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get pref %s timestamp: %w", key, err)
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse pref %s timestamp: %w", key, err)
	}
	return at, true, nil
}
