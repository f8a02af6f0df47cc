package main

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/classpad/classpad/internal/app"
	"github.com/classpad/classpad/internal/database"
	"github.com/classpad/classpad/internal/models"
)

func validSecretsConfig() *app.Config {
	cfg := &app.Config{}
	cfg.Auth.JWT.TenantAccessSecret = strings.Repeat("a", 64)
	cfg.Auth.JWT.TenantRefreshSecret = strings.Repeat("b", 64)
	cfg.Auth.JWT.PlatformAccessSecret = strings.Repeat("c", 64)
	cfg.Auth.JWT.PlatformRefreshSecret = strings.Repeat("d", 64)
	return cfg
}

func TestEnsureSecretsPresent(t *testing.T) {
	require.NoError(t, ensureSecretsPresent(validSecretsConfig()))
	require.Error(t, ensureSecretsPresent(nil))
}

func TestEnsureSecretsPresentNamesMissingKey(t *testing.T) {
	cfg := validSecretsConfig()
	cfg.Auth.JWT.PlatformRefreshSecret = "   "

	err := ensureSecretsPresent(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "auth.jwt.platform_refresh_secret")
	require.Contains(t, err.Error(), "must be configured")
}

func TestEnsureSecretsPresentRejectsShortSecret(t *testing.T) {
	cfg := validSecretsConfig()
	cfg.Auth.JWT.TenantAccessSecret = "tiny"

	err := ensureSecretsPresent(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "auth.jwt.tenant_access_secret")
	require.Contains(t, err.Error(), "at least")
	// The secret value itself must never surface in the error.
	require.NotContains(t, err.Error(), "tiny")
}

func TestConvertDatabaseConfigDefaultsToSQLite(t *testing.T) {
	cfg := &app.Config{}

	dbCfg := convertDatabaseConfig(cfg)
	require.Equal(t, "sqlite", dbCfg.Driver)
	require.Empty(t, dbCfg.Host)
}

func TestConvertDatabaseConfigPostgres(t *testing.T) {
	cfg := &app.Config{}
	cfg.Database.Driver = "PostgreSQL"
	cfg.Database.Postgres = app.DBAuthConfig{
		Host:     " db.example.com ",
		Port:     5433,
		Database: "classpad",
		Username: "svc",
		Password: " pw ",
	}

	dbCfg := convertDatabaseConfig(cfg)
	require.Equal(t, "postgres", dbCfg.Driver)
	require.Equal(t, "db.example.com", dbCfg.Host)
	require.Equal(t, 5433, dbCfg.Port)
	require.Equal(t, "classpad", dbCfg.Name)
	require.Equal(t, "svc", dbCfg.User)
	require.Equal(t, "pw", dbCfg.Password)
}

func TestConvertDatabaseConfigMySQL(t *testing.T) {
	cfg := &app.Config{}
	cfg.Database.Driver = "mysql"
	cfg.Database.MySQL = app.DBAuthConfig{
		Host:     "mysql.internal",
		Port:     3307,
		Database: "classpad",
		Username: "svc",
		Password: "pw",
	}

	dbCfg := convertDatabaseConfig(cfg)
	require.Equal(t, "mysql", dbCfg.Driver)
	require.Equal(t, "mysql.internal", dbCfg.Host)
	require.Equal(t, 3307, dbCfg.Port)
}

func TestConvertDatabaseConfigUnknownDriverPassesThrough(t *testing.T) {
	cfg := &app.Config{}
	cfg.Database.Driver = "oracle"

	require.Equal(t, "oracle", convertDatabaseConfig(cfg).Driver)
}

func TestInviteBaseURL(t *testing.T) {
	require.Empty(t, inviteBaseURL(""))
	require.Empty(t, inviteBaseURL("   "))
	require.Equal(t, "https://classpad.example.com/invite/redeem", inviteBaseURL("https://classpad.example.com"))
	require.Equal(t, "https://classpad.example.com/invite/redeem", inviteBaseURL("https://classpad.example.com/"))
}

func TestIsProduction(t *testing.T) {
	require.True(t, isProduction("production"))
	require.True(t, isProduction(" Production "))
	require.False(t, isProduction("development"))
	require.False(t, isProduction(""))
}

func TestInitialiseDatabaseSeedsOutsideProduction(t *testing.T) {
	cfg := &app.Config{}
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = filepath.Join(t.TempDir(), "dev.sqlite")
	cfg.Server.Environment = "development"

	db, err := initialiseDatabase(cfg)
	require.NoError(t, err)
	closeOnCleanup(t, db)

	var school models.School
	require.NoError(t, db.Take(&school, "id = ?", database.DemoSchoolID).Error)
	require.Equal(t, "Evergreen Elementary", school.Name)
	require.True(t, school.IsActive)
}

func TestInitialiseDatabaseSkipsSeedInProduction(t *testing.T) {
	cfg := &app.Config{}
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = filepath.Join(t.TempDir(), "prod.sqlite")
	cfg.Server.Environment = "production"

	db, err := initialiseDatabase(cfg)
	require.NoError(t, err)
	closeOnCleanup(t, db)

	var count int64
	require.NoError(t, db.Model(&models.School{}).Count(&count).Error)
	require.Zero(t, count)
}

func closeOnCleanup(t *testing.T, db *gorm.DB) {
	t.Helper()
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	})
}
