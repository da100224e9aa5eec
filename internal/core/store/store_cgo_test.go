//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlorhq/parlor/internal/config"
)

func TestOpenMemoryStore(t *testing.T) {
	s, err := Open(context.Background(), config.StoreConfig{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	assert.Equal(t, "libsql", s.Driver())
	assert.True(t, s.Local())
	require.NoError(t, s.CheckHealth(context.Background()))
	require.NoError(t, s.Close())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "postgres", Path: ":memory:"})
	require.ErrorContains(t, err, "unsupported store driver")
}

func TestOpenFileStoreTunesSQLite(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, config.StoreConfig{Path: filepath.Join(t.TempDir(), "parlor.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	assert.Equal(t, 1, s.DB.Stats().MaxOpenConnections)

	var journal string
	require.NoError(t, s.DB.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journal))
	assert.Equal(t, "wal", journal)

	var busy int
	require.NoError(t, s.DB.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busy))
	assert.Equal(t, busyTimeoutMillis, busy)
}

func TestMigrateRecordsSchemaVersion(t *testing.T) {
	s := openMigratedStore(t)

	version, err := s.schemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion(), version)
}

func TestMigrateUpgradesPartialSchema(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, config.StoreConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	for _, stmt := range migrations[0].stmts {
		_, err := s.DB.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
	_, err = s.DB.ExecContext(ctx, "PRAGMA user_version = 1")
	require.NoError(t, err)
	_, err = s.DB.ExecContext(ctx, "INSERT INTO conversations (user_id, last_updated) VALUES ('old', 1700000000)")
	require.NoError(t, err)

	require.NoError(t, s.Migrate(ctx))

	var created int64
	require.NoError(t, s.DB.QueryRowContext(ctx, "SELECT created_at FROM conversations WHERE user_id = 'old'").Scan(&created))
	assert.Equal(t, int64(1700000000), created)

	var alerts int
	require.NoError(t, s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM alerts").Scan(&alerts))
	assert.Zero(t, alerts)
}

func TestMigrateRefusesNewerSchema(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, config.StoreConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.DB.ExecContext(ctx, "PRAGMA user_version = 99")
	require.NoError(t, err)
	require.ErrorContains(t, s.Migrate(ctx), "newer than this binary supports")
}
