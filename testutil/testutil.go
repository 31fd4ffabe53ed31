// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"daybook/db"
)

// NewDB opens a migrated sqlite database in a temporary directory and
// closes it when the test ends.
func NewDB(t testing.TB) *sql.DB {
	t.Helper()
	ctx := context.Background()

	conn, err := db.Open(ctx, "sqlite3", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return conn
}

// MustExec runs a statement or fails the test.
func MustExec(t testing.TB, conn *sql.DB, query string, args ...any) sql.Result {
	t.Helper()
	result, err := conn.Exec(query, args...)
	if err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
	return result
}
