package store

import (
	"context"
	"errors"
	"fmt"
)

// migrations are applied in order. The database's PRAGMA user_version
// records how many have run, so entries must only ever be appended.
var migrations = []struct {
	name  string
	stmts []string
}{
	{
		name: "conversations",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS conversations (
				user_id TEXT PRIMARY KEY,
				summary TEXT NOT NULL DEFAULT '',
				buffer TEXT NOT NULL DEFAULT '[]',
				pending_count INTEGER NOT NULL DEFAULT 0,
				last_updated INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(last_updated)`,
		},
	},
	{
		name: "alerts",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS alerts (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				subject TEXT NOT NULL,
				body TEXT NOT NULL,
				created_at INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at)`,
		},
	},
	{
		name: "conversation first-seen time",
		stmts: []string{
			`ALTER TABLE conversations ADD COLUMN created_at INTEGER NOT NULL DEFAULT 0`,
			`UPDATE conversations SET created_at = last_updated WHERE created_at = 0`,
		},
	},
}

// SchemaVersion is the version Migrate brings a database to.
func SchemaVersion() int {
	return len(migrations)
}

// Migrate applies pending migrations, each in its own transaction.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	current, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}
	if current > len(migrations) {
		return fmt.Errorf("database schema version %d is newer than this binary supports (%d)", current, len(migrations))
	}

	for version := current; version < len(migrations); version++ {
		m := migrations[version]
		tx, err := s.DB.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", version+1, m.name, err)
		}
		for _, stmt := range m.stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d (%s): %w", version+1, m.name, err)
			}
		}
		// PRAGMA does not accept bound parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s): record version: %w", version+1, m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d (%s): commit: %w", version+1, m.name, err)
		}
	}
	return nil
}

func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.DB.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}
