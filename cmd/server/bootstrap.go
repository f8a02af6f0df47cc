package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gin-gonic/gin"

	"github.com/classpad/classpad/internal/api"
	"github.com/classpad/classpad/internal/app"
	"github.com/classpad/classpad/internal/app/maintenance"
	"github.com/classpad/classpad/internal/auth"
	"github.com/classpad/classpad/internal/auth/providers"
	"github.com/classpad/classpad/internal/cache"
	"github.com/classpad/classpad/internal/database"
	"github.com/classpad/classpad/internal/middleware"
	"github.com/classpad/classpad/internal/services"
	"github.com/classpad/classpad/pkg/logger"
	"github.com/classpad/classpad/pkg/mail"
)

// runtimeStack holds the long-lived dependencies the HTTP server is built from.
type runtimeStack struct {
	DB        *gorm.DB
	Redis     cache.Store
	Tokens    *auth.TokenService
	Registry  *auth.SessionRegistry
	AuditSvc  *services.AuditService
	InviteSvc *services.InviteService
	Cleaner   *maintenance.Cleaner
	RateStore middleware.RateStore
	Router    *gin.Engine
}

// bootstrapRuntime initialises the database, caches, services, and the HTTP router.
func bootstrapRuntime(cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)

	if cfg.Cache.Redis.Enabled {
		redisStore, redisErr := cache.NewRedisStore(cfg.Cache.RedisStoreConfig())
		if redisErr != nil {
			log.Warn("redis unavailable; falling back to database-backed operations", zap.Error(redisErr))
		} else {
			stack.Redis = redisStore
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	sessionStore := cache.Store(dbStore)
	if stack.Redis != nil {
		sessionStore = stack.Redis
	}

	stack.Tokens, err = auth.NewTokenService(cfg.Auth.TokenServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise token service: %w", err)
	}

	stack.Registry = auth.NewSessionRegistry(sessionStore, cfg.Auth.SessionRegistryConfig())
	cookies := auth.NewCookieManager(cfg.Server.Environment)
	operator := providers.NewOperatorVerifier(cfg.Auth.OperatorVerifierConfig())

	stack.AuditSvc, err = services.NewAuditService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTP.Settings())
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}

	var inviteOpts []services.InviteOption
	if base := inviteBaseURL(cfg.Server.PublicURL); base != "" {
		inviteOpts = append(inviteOpts, services.WithInviteBaseURL(base))
	}
	stack.InviteSvc, err = services.NewInviteService(stack.DB, mailer, stack.AuditSvc, inviteOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise invite service: %w", err)
	}

	stack.Cleaner = maintenance.NewCleaner(stack.DB, stack.InviteSvc, stack.AuditSvc,
		maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays))
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	switch {
	case stack.Redis != nil:
		stack.RateStore = middleware.NewSharedRateStore(stack.Redis)
	case dbStore != nil:
		stack.RateStore = middleware.NewSharedRateStore(dbStore)
	}

	stack.Router, err = api.NewRouter(api.Deps{
		DB:               stack.DB,
		Tokens:           stack.Tokens,
		Registry:         stack.Registry,
		Cookies:          cookies,
		Operator:         operator,
		Local:            cfg.Auth.LocalVerifierConfig(),
		Invites:          stack.InviteSvc,
		Audit:            stack.AuditSvc,
		RateStore:        stack.RateStore,
		AllowBodyRefresh: cfg.Auth.Session.AllowBodyRefresh,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown stops background jobs and closes connections in dependency order.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if rc, ok := s.Redis.(*cache.RedisStore); ok && rc != nil {
		if err := rc.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

// initialiseDatabase opens the configured database and migrates the schema.
// Demo seed data is applied outside production; production tenants are
// created through the platform API instead.
func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if isProduction(cfg.Server.Environment) {
		if err := database.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("auto-migrate database: %w", err)
		}
	} else {
		if err := database.AutoMigrateAndSeed(db); err != nil {
			return nil, fmt.Errorf("auto-migrate database: %w", err)
		}
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func isProduction(environment string) bool {
	return strings.EqualFold(strings.TrimSpace(environment), auth.EnvProduction)
}

// inviteBaseURL derives the redeem link base from the configured public URL.
func inviteBaseURL(publicURL string) string {
	base := strings.TrimRight(strings.TrimSpace(publicURL), "/")
	if base == "" {
		return ""
	}
	return base + "/invite/redeem"
}

// convertDatabaseConfig flattens the nested config sections into the
// database package's single Config. Unknown drivers pass through so Open
// reports them.
func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		applyHostConfig(&dbCfg, cfg.Database.Postgres)
	case "mysql":
		applyHostConfig(&dbCfg, cfg.Database.MySQL)
	}
	return dbCfg
}

func applyHostConfig(dst *database.Config, src app.DBAuthConfig) {
	dst.Host = strings.TrimSpace(src.Host)
	dst.Port = src.Port
	dst.Name = strings.TrimSpace(src.Database)
	dst.User = strings.TrimSpace(src.Username)
	dst.Password = strings.TrimSpace(src.Password)
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("database close", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("database close", zap.Error(err))
	}
}
