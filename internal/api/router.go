package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/classpad/classpad/internal/auth"
	"github.com/classpad/classpad/internal/auth/providers"
	"github.com/classpad/classpad/internal/handlers"
	"github.com/classpad/classpad/internal/middleware"
	"github.com/classpad/classpad/internal/models"
	"github.com/classpad/classpad/internal/services"
)

// Deps carries the collaborators the router wires into handlers and guards.
// Registry may be nil, which runs the whole API in token-only mode, and
// RateStore may be nil, which falls back to per-process in-memory limiting.
type Deps struct {
	DB       *gorm.DB
	Tokens   *auth.TokenService
	Registry *auth.SessionRegistry
	Cookies  *auth.CookieManager
	Operator *providers.OperatorVerifier
	Local    providers.LocalConfig
	Invites  *services.InviteService
	Audit    *services.AuditService

	RateStore        middleware.RateStore
	AllowBodyRefresh bool
}

// NewRouter builds the Gin engine, wires the ambient middleware stack and
// registers every route together with its guard chain. Guard order is fixed:
// authenticate, role, tenant, ownership, audit.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("token service must be provided")
	}
	if deps.Cookies == nil {
		return nil, fmt.Errorf("cookie manager must be provided")
	}
	if deps.Invites == nil {
		return nil, fmt.Errorf("invite service must be provided")
	}
	if deps.Audit == nil {
		return nil, fmt.Errorf("audit service must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	r.Use(middleware.CSRF())
	// Coarse throttle, 100 requests a minute keyed by client IP and path
	if deps.RateStore != nil {
		r.Use(middleware.RateLimitWithStore(deps.RateStore, 100, time.Minute))
	} else {
		r.Use(middleware.RateLimit(100, time.Minute))
	}

	// Health endpoint (public)
	r.GET("/health", handlers.Health(deps.DB, deps.Registry))

	authHandler, err := handlers.NewAuthHandler(deps.DB, handlers.AuthHandlerConfig{
		Tokens:           deps.Tokens,
		Registry:         deps.Registry,
		Cookies:          deps.Cookies,
		Operator:         deps.Operator,
		Local:            deps.Local,
		AllowBodyRefresh: deps.AllowBodyRefresh,
	})
	if err != nil {
		return nil, err
	}
	inviteHandler, err := handlers.NewInviteHandler(deps.Invites)
	if err != nil {
		return nil, err
	}

	// Public auth routes
	public := r.Group("/api/auth")
	{
		public.POST("/login", authHandler.Login)
		public.POST("/refresh", authHandler.Refresh)
		public.POST("/platform/login", authHandler.PlatformLogin)
		public.POST("/platform/refresh", authHandler.PlatformRefresh)
		public.POST("/invite/redeem", inviteHandler.Redeem)
	}

	authDeps := middleware.AuthDeps{
		Tokens:   deps.Tokens,
		Registry: deps.Registry,
		Cookies:  deps.Cookies,
	}
	anyClass := middleware.AuthenticateAny(authDeps)
	tenantClass := middleware.Authenticate(authDeps, auth.ClassTenant)
	platformClass := middleware.Authenticate(authDeps, auth.ClassPlatform)

	// Role floors. Hierarchy admission means granting the floor role also
	// admits everyone who outranks it.
	operatorOnly := middleware.RequireRole(models.RolePlatformOperator)
	adminUp := middleware.RequireRole(models.RoleTenantAdmin)
	teacherUp := middleware.RequireRole(models.RoleTeacher)
	anyRole := middleware.RequireRole(models.RoleParent)

	tenantFence := middleware.TenantScope()
	sink := deps.Audit

	api := r.Group("/api")

	// Identity and session self-service, reachable from either token class.
	api.GET("/auth/me", middleware.Chain(
		anyClass,
		middleware.AuditContext("auth.me", sink),
	), authHandler.Me)
	api.POST("/auth/logout", middleware.Chain(
		anyClass,
		middleware.AuditContext("auth.logout", sink),
	), authHandler.Logout)
	api.POST("/auth/password", middleware.Chain(
		tenantClass,
		middleware.AuditContext("auth.password_change", sink),
	), authHandler.ChangePassword)

	sessionHandler := handlers.NewSessionHandler(deps.Registry, deps.Cookies)
	sessions := api.Group("/sessions")
	{
		sessions.GET("", middleware.Chain(
			anyClass,
			middleware.AuditContext("session.list", sink),
		), sessionHandler.List)
		sessions.DELETE("/:id", middleware.Chain(
			anyClass,
			middleware.AuditContext("session.revoke", sink),
		), sessionHandler.Revoke)
		sessions.POST("/revoke_all", middleware.Chain(
			anyClass,
			middleware.AuditContext("session.revoke_all", sink),
		), sessionHandler.RevokeAll)
	}

	// Schools. Lifecycle belongs to the platform operator; reading and
	// updating a single school is tenant-admin work inside the fence.
	schoolHandler, err := handlers.NewSchoolHandler(deps.DB)
	if err != nil {
		return nil, err
	}
	schools := api.Group("/schools")
	{
		schools.POST("", middleware.Chain(
			platformClass, operatorOnly,
			middleware.AuditContext("school.create", sink),
		), schoolHandler.Create)
		schools.GET("", middleware.Chain(
			platformClass, operatorOnly,
			middleware.AuditContext("school.list", sink),
		), schoolHandler.List)
		schools.GET("/:schoolID", middleware.Chain(
			anyClass, adminUp, tenantFence,
			middleware.AuditContext("school.get", sink),
		), schoolHandler.Get)
		schools.PATCH("/:schoolID", middleware.Chain(
			anyClass, adminUp, tenantFence,
			middleware.AuditContext("school.update", sink),
		), schoolHandler.Update)
		schools.DELETE("/:schoolID", middleware.Chain(
			platformClass, operatorOnly,
			middleware.AuditContext("school.deactivate", sink),
		), schoolHandler.Deactivate)
	}

	// Users. Everyone may read their own record; management needs an admin.
	userHandler, err := handlers.NewUserHandler(deps.DB, deps.Registry)
	if err != nil {
		return nil, err
	}
	users := api.Group("/users")
	{
		users.POST("", middleware.Chain(
			anyClass, adminUp, tenantFence,
			middleware.AuditContext("user.create", sink),
		), userHandler.Create)
		users.GET("", middleware.Chain(
			anyClass, adminUp, tenantFence,
			middleware.AuditContext("user.list", sink),
		), userHandler.List)
		users.GET("/:id", middleware.Chain(
			anyClass, anyRole, tenantFence,
			middleware.RequireOwnership("user"),
			middleware.AuditContext("user.get", sink),
		), userHandler.Get)
		users.PATCH("/:id", middleware.Chain(
			anyClass, adminUp, tenantFence,
			middleware.AuditContext("user.update", sink),
		), userHandler.Update)
		users.POST("/:id/deactivate", middleware.Chain(
			anyClass, adminUp, tenantFence,
			middleware.AuditContext("user.deactivate", sink),
		), userHandler.Deactivate)
		users.POST("/:id/password", middleware.Chain(
			anyClass, adminUp, tenantFence,
			middleware.AuditContext("user.password_reset", sink),
		), userHandler.ResetPassword)
	}

	// Students. Teachers see the roster, admins enroll, parents and teachers
	// reach individual records through the ownership delegation rule.
	studentHandler, err := handlers.NewStudentHandler(deps.DB)
	if err != nil {
		return nil, err
	}
	students := api.Group("/students")
	{
		students.GET("", middleware.Chain(
			anyClass, teacherUp, tenantFence,
			middleware.AuditContext("student.list", sink),
		), studentHandler.List)
		students.POST("", middleware.Chain(
			anyClass, adminUp, tenantFence,
			middleware.AuditContext("student.create", sink),
		), studentHandler.Create)
		students.GET("/mine", middleware.Chain(
			anyClass, anyRole, tenantFence,
			middleware.AuditContext("student.list_mine", sink),
		), studentHandler.ListMine)
		students.GET("/:id", middleware.Chain(
			anyClass, anyRole, tenantFence,
			middleware.RequireOwnership("student"),
			middleware.AuditContext("student.get", sink),
		), studentHandler.Get)
	}

	// Invites
	invites := api.Group("/invites")
	{
		invites.POST("", middleware.Chain(
			anyClass, adminUp, tenantFence,
			middleware.AuditContext("invite.create", sink),
		), inviteHandler.Create)
		invites.GET("", middleware.Chain(
			anyClass, adminUp, tenantFence,
			middleware.AuditContext("invite.list", sink),
		), inviteHandler.List)
	}

	// Audit
	auditHandler, err := handlers.NewAuditHandler(deps.DB)
	if err != nil {
		return nil, err
	}
	api.GET("/audit", middleware.Chain(
		anyClass, adminUp, tenantFence,
		middleware.AuditContext("audit.list", sink),
	), auditHandler.List)

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
