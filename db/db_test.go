package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMigrated(t *testing.T, driver string) *sql.DB {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "daybook.db")

	conn, err := Open(ctx, driver, path)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, Migrate(ctx, conn))
	return conn
}

func TestMigrateCreatesTables(t *testing.T) {
	for _, driver := range []string{"sqlite3", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			conn := openMigrated(t, driver)

			for _, table := range []string{"users", "memories", "sessions"} {
				var count int
				err := conn.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count)
				assert.NoError(t, err, "table %s", table)
			}
		})
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	conn := openMigrated(t, "sqlite3")
	require.NoError(t, Migrate(context.Background(), conn))
}

func TestIsUniqueViolation(t *testing.T) {
	for _, driver := range []string{"sqlite3", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			conn := openMigrated(t, driver)

			insert := "INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)"
			_, err := conn.Exec(insert, "alice", "hash", 1)
			require.NoError(t, err)

			_, err = conn.Exec(insert, "alice", "hash", 2)
			require.Error(t, err)
			assert.True(t, IsUniqueViolation(err), "duplicate username: %v", err)

			// a foreign key failure is a constraint error but not a uniqueness one
			_, err = conn.Exec("INSERT INTO memories (user_id, date, content, created_at) VALUES (?, ?, ?, ?)", 999, "2025-01-01", "x", 1)
			require.Error(t, err)
			assert.False(t, IsUniqueViolation(err), "foreign key violation: %v", err)
		})
	}

	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(errors.New("UNIQUE constraint failed")))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "nope", filepath.Join(t.TempDir(), "x.db"))
	assert.Error(t, err)
}
