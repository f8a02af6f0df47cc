package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/classpad/classpad/internal/models"
)

func TestAutoMigrateCreatesCoreTables(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, AutoMigrate(db))

	migrator := db.Migrator()
	tables := []interface{}{
		&models.School{},
		&models.User{},
		&models.Student{},
		&models.Invitation{},
		&models.AuditLog{},
	}

	for _, table := range tables {
		require.True(t, migrator.HasTable(table), "expected table for %T to exist", table)
	}
}

func TestAutoMigrateCreatesCacheTables(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, AutoMigrate(db))

	migrator := db.Migrator()
	require.True(t, migrator.HasTable(&models.CacheEntry{}), "expected cache entry table to exist")
	require.True(t, migrator.HasTable(&models.CacheSetMember{}), "expected cache set member table to exist")
}

func TestAutoMigrateIsRepeatable(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, AutoMigrate(db))
	require.NoError(t, AutoMigrate(db))

	require.True(t, db.Migrator().HasColumn(&models.User{}, "school_id"))
	require.True(t, db.Migrator().HasColumn(&models.Student{}, "parent_id"))
}
