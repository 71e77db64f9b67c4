// Package databasetest provides migrated SQLite databases for store tests.
package databasetest

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fragenkreuzen/backend/internal/config"
	"github.com/fragenkreuzen/backend/internal/database"
)

// New returns a fresh, fully migrated SQLite database in a temp directory.
// It is closed when the test ends.
func New(t testing.TB) *sql.DB {
	t.Helper()

	cfg := config.DatabaseConfig{
		Driver: database.SQLite,
		DSN:    "file:" + filepath.Join(t.TempDir(), "test.db"),
	}
	require.NoError(t, database.Migrate(cfg))

	db, err := database.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// CreateUser inserts a user row and returns its id.
func CreateUser(t testing.TB, db *sql.DB, email string, admin bool) int64 {
	t.Helper()
	var id int64
	err := db.QueryRow(
		`INSERT INTO users (email, name, username, password, is_admin) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		email, "Test User", database.GenerateUsername(email), "x", admin,
	).Scan(&id)
	require.NoError(t, err)
	return id
}
