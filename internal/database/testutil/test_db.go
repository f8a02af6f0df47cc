package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/classpad/classpad/internal/database"
)

// Option customises MustOpenTestDB.
type Option func(*options)

type options struct {
	seed bool
}

// WithSeedData inserts the demo school after migration.
func WithSeedData() Option {
	return func(o *options) { o.seed = true }
}

// MustOpenTestDB opens an in-memory SQLite database with the full schema
// applied. The connection is closed via t.Cleanup.
func MustOpenTestDB(t *testing.T, opts ...Option) *gorm.DB {
	t.Helper()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	db, err := database.Open(database.Config{Driver: "sqlite"})
	require.NoError(t, err)

	if o.seed {
		require.NoError(t, database.AutoMigrateAndSeed(db))
	} else {
		require.NoError(t, database.AutoMigrate(db))
	}

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
