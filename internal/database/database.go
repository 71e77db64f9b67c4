package database

import (
	"database/sql"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/fragenkreuzen/backend/internal/config"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	Postgres = "postgres"
	SQLite   = "sqlite"
)

// sqlitePragmas are applied to every SQLite connection. Times are written in
// the SQLite format so that text comparisons on timestamp columns follow
// chronological order.
var sqlitePragmas = []string{
	"_pragma=foreign_keys(1)",
	"_pragma=busy_timeout(5000)",
	"_time_format=sqlite",
}

// Open connects to the configured database and checks the connection.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, dsnFor(cfg.Driver, cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.Driver == SQLite {
		// SQLite allows a single writer; one connection keeps row updates serialized.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	return db, nil
}

// ForUpdate returns the row-locking suffix for a SELECT inside a transaction.
// SQLite locks the whole database on write, so it needs none.
func ForUpdate(driver string) string {
	if driver == Postgres {
		return " FOR UPDATE"
	}
	return ""
}

func dsnFor(driver, dsn string) string {
	if driver != SQLite {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(sqlitePragmas, "&")
}

// generateUsernameBase creates a lowercase alphanumeric base from a user's name.
func generateUsernameBase(name string) string {
	var result []byte
	for _, c := range strings.ToLower(name) {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			result = append(result, byte(c))
		}
	}
	if len(result) == 0 {
		return "user"
	}
	if len(result) > 12 {
		result = result[:12]
	}
	return string(result)
}

// GenerateUsername creates a username from a name by appending random digits.
// Callers retry on a unique constraint violation.
func GenerateUsername(name string) string {
	return fmt.Sprintf("%s%04d", generateUsernameBase(name), rand.IntN(10000))
}
