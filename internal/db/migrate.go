package db

import (
	"context"
	"database/sql"
	"fmt"
)

type migration struct {
	version    int
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS timeline_events (
				seq INTEGER PRIMARY KEY AUTOINCREMENT,
				event_id TEXT NOT NULL UNIQUE,
				room_id TEXT NOT NULL,
				thread_id TEXT NOT NULL DEFAULT '',
				sender TEXT NOT NULL,
				ts INTEGER NOT NULL,
				type TEXT NOT NULL,
				msgtype TEXT NOT NULL DEFAULT '',
				rel_type TEXT NOT NULL DEFAULT '',
				rel_event_id TEXT NOT NULL DEFAULT '',
				body TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE INDEX IF NOT EXISTS timeline_events_room_idx ON timeline_events(room_id, thread_id, seq)`,
		},
	},
}

// MigrateUp applies pending schema migrations and returns how many ran.
func (db *DB) MigrateUp(ctx context.Context) (int, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return 0, fmt.Errorf("failed to create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := db.Transaction(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, m.version)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("migration %d failed: %w", m.version, err)
		}
		db.logger.Info().Int("version", m.version).Msg("applied migration")
		applied++
	}
	return applied, nil
}
