package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

type migration struct {
	name string
	sql  string
}

// migrations are applied in order and recorded in schema_migrations.
var migrations = []migration{
	{
		name: "0001_queue_entries",
		sql: `
CREATE TABLE IF NOT EXISTS queue_entries (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	namespace  TEXT NOT NULL,
	entry_key  TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
	UNIQUE(namespace, entry_key)
);
CREATE INDEX IF NOT EXISTS idx_queue_entries_namespace_seq ON queue_entries(namespace, seq);`,
	},
}

// RunMigrations applies pending schema migrations to the sqlite store.
func RunMigrations(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	if db == nil {
		if logger != nil {
			logger.Warn("no sqlite handle available; skipping migrations")
		}
		return nil
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (name TEXT PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		var exists int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(1) FROM schema_migrations WHERE name = ?`, m.name).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", m.name, err)
		}
		if exists > 0 {
			continue
		}
		if logger != nil {
			logger.Info("applying migration", zap.String("name", m.name))
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", m.name, err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(name, applied_at) VALUES (?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))`, m.name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.name, err)
		}
		applied++
	}

	if logger != nil {
		logger.Info("migrations applied", zap.Int("count", applied))
	}
	return nil
}
