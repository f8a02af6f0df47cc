package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the ClassPad backend.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Email       EmailConfig       `mapstructure:"email"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	LogLevel    string `mapstructure:"log_level"`
	Environment string `mapstructure:"environment"`
	PublicURL   string `mapstructure:"public_url"`
}

// DatabaseConfig selects a driver and its connection parameters.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig holds host/port credentials for server databases.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig picks the cache backend.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig carries Redis dial settings.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AuthConfig groups every authentication knob.
type AuthConfig struct {
	JWT      JWTSettings       `mapstructure:"jwt"`
	Session  SessionSettings   `mapstructure:"session"`
	Local    LocalAuthSettings `mapstructure:"local"`
	Operator OperatorSettings  `mapstructure:"operator"`
}

// JWTSettings configures the signing material for both token classes. Each
// class signs access and refresh tokens with its own secret, so a token from
// one class never verifies against the other. Lifetimes are per class too.
type JWTSettings struct {
	Issuer                string        `mapstructure:"issuer"`
	TenantAccessSecret    string        `mapstructure:"tenant_access_secret"`
	TenantRefreshSecret   string        `mapstructure:"tenant_refresh_secret"`
	PlatformAccessSecret  string        `mapstructure:"platform_access_secret"`
	PlatformRefreshSecret string        `mapstructure:"platform_refresh_secret"`
	TenantAccessTTL       time.Duration `mapstructure:"tenant_access_token_ttl"`
	TenantRefreshTTL      time.Duration `mapstructure:"tenant_refresh_token_ttl"`
	PlatformAccessTTL     time.Duration `mapstructure:"platform_access_token_ttl"`
	PlatformRefreshTTL    time.Duration `mapstructure:"platform_refresh_token_ttl"`
}

// SessionSettings configures server-side session records.
type SessionSettings struct {
	TTL              time.Duration `mapstructure:"ttl"`
	AllowBodyRefresh bool          `mapstructure:"allow_body_refresh"`
}

// LocalAuthSettings defines controls for the password verifier.
type LocalAuthSettings struct {
	LockoutThreshold int           `mapstructure:"lockout_threshold"`
	LockoutDuration  time.Duration `mapstructure:"lockout_duration"`
}

// OperatorSettings describes the platform operator account. The operator is
// never generated: platform login stays disabled until an email plus a
// password or bcrypt hash are configured.
type OperatorSettings struct {
	Email        string `mapstructure:"email"`
	Name         string `mapstructure:"name"`
	Password     string `mapstructure:"password"`
	PasswordHash string `mapstructure:"password_hash"`
}

// MaintenanceConfig tunes the background cleanup jobs.
type MaintenanceConfig struct {
	AuditRetentionDays int `mapstructure:"audit_retention_days"`
}

// EmailConfig controls outbound mail.
type EmailConfig struct {
	SMTP SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig holds dialer settings for the SMTP mailer.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LoadConfig reads configuration through Viper, layering file, env, and defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("CLASSPAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.public_url", "")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/classpad.sqlite")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("auth.jwt.issuer", "classpad")
	v.SetDefault("auth.jwt.tenant_access_token_ttl", "2h")
	v.SetDefault("auth.jwt.tenant_refresh_token_ttl", "168h") // 7 days
	v.SetDefault("auth.jwt.platform_access_token_ttl", "1h")
	v.SetDefault("auth.jwt.platform_refresh_token_ttl", "72h")
	v.SetDefault("auth.session.ttl", "168h")
	v.SetDefault("auth.session.allow_body_refresh", false)
	v.SetDefault("auth.local.lockout_threshold", 5)
	v.SetDefault("auth.local.lockout_duration", "15m")

	v.SetDefault("maintenance.audit_retention_days", 90)

	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.smtp.timeout", "10s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
