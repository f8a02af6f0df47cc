package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// memorySQLiteDSN keeps one shared in-process database alive across pooled
// connections, which is what the test suite relies on.
const memorySQLiteDSN = "file::memory:?cache=shared&_foreign_keys=1"

func openSQLite(cfg Config) (*gorm.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		path := strings.TrimSpace(cfg.Path)
		if isMemoryPath(path) {
			dsn = memorySQLiteDSN
		} else {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
			dsn = fileSQLiteDSN(path)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, err
	}

	// Foreign key enforcement is per connection in SQLite; the DSN flag
	// covers pooled connections, this covers DSN overrides without it.
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, err
	}

	return db, nil
}

func isMemoryPath(path string) bool {
	return path == "" || strings.EqualFold(path, ":memory:")
}

func fileSQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000", filepath.ToSlash(path))
}
