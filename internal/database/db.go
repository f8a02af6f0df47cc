package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Config contains database connection options. Path applies to sqlite only;
// Host, Port, User, Password, Name and Options feed the mysql and postgres
// DSN builders. A non-empty DSN overrides everything else.
type Config struct {
	Driver   string
	Path     string // SQLite database path when Driver == sqlite
	DSN      string // Optional DSN override
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	Options  map[string]string
}

// Open connects gorm to the configured backend and tunes the connection pool.
func Open(cfg Config) (*gorm.DB, error) {
	driver := strings.ToLower(cfg.Driver)
	if driver == "" {
		driver = "sqlite"
	}

	switch driver {
	case "sqlite":
		return openSQLite(cfg)
	case "mysql":
		return openMySQL(cfg)
	case "postgres", "postgresql":
		return openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// gormConfig is shared by every driver. SQL logging stays off; the
// application logs through zap instead.
func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}
}

// AutoMigrateAndSeed migrates the schema and applies the baseline seed rows.
// Start-up convenience; tests that bring their own fixtures call AutoMigrate
// directly.
func AutoMigrateAndSeed(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}
	if err := AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := SeedData(db); err != nil {
		return fmt.Errorf("seed data: %w", err)
	}
	return nil
}
