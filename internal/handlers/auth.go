package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/classpad/classpad/internal/auth"
	"github.com/classpad/classpad/internal/auth/providers"
	"github.com/classpad/classpad/internal/middleware"
	"github.com/classpad/classpad/internal/models"
	appErrors "github.com/classpad/classpad/pkg/errors"
	"github.com/classpad/classpad/pkg/logger"
	"github.com/classpad/classpad/pkg/metrics"
	"github.com/classpad/classpad/pkg/response"
)

// AuthHandler manages login, refresh, logout, and identity flows for both
// token classes. School users authenticate against the database; the platform
// operator authenticates against configuration.
type AuthHandler struct {
	db               *gorm.DB
	tokens           *auth.TokenService
	registry         *auth.SessionRegistry
	cookies          *auth.CookieManager
	operator         *providers.OperatorVerifier
	local            providers.LocalConfig
	allowBodyRefresh bool
	log              *zap.Logger
}

// AuthHandlerConfig bundles the collaborators an AuthHandler needs. Registry
// may be nil, in which case every flow runs in token-only mode; Operator may
// be nil, in which case platform login always fails.
type AuthHandlerConfig struct {
	Tokens   *auth.TokenService
	Registry *auth.SessionRegistry
	Cookies  *auth.CookieManager
	Operator *providers.OperatorVerifier
	Local    providers.LocalConfig

	// AllowBodyRefresh keeps the deprecated body-borne refresh fallback
	// available to clients that cannot hold the session cookie.
	AllowBodyRefresh bool
}

func NewAuthHandler(db *gorm.DB, cfg AuthHandlerConfig) (*AuthHandler, error) {
	if db == nil {
		return nil, errors.New("auth handler: db is required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("auth handler: token service is required")
	}
	if cfg.Cookies == nil {
		return nil, errors.New("auth handler: cookie manager is required")
	}

	return &AuthHandler{
		db:               db,
		tokens:           cfg.Tokens,
		registry:         cfg.Registry,
		cookies:          cfg.Cookies,
		operator:         cfg.Operator,
		local:            cfg.Local,
		allowBodyRefresh: cfg.AllowBodyRefresh,
		log:              logger.WithModule("handlers.auth"),
	}, nil
}

type loginRequest struct {
	SchoolID string `json:"school_id" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type platformLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	verifier, err := providers.NewLocalVerifier(h.db, h.local)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues(string(auth.ClassTenant), "failure").Inc()
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	user, err := verifier.Authenticate(providers.AuthenticateInput{
		SchoolID:  req.SchoolID,
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues(string(auth.ClassTenant), "failure").Inc()
		response.Error(c, loginDenial(err))
		return
	}

	pair, record, err := h.establishSession(c, providers.Identity(user))
	if err != nil {
		metrics.AuthAttempts.WithLabelValues(string(auth.ClassTenant), "failure").Inc()
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	metrics.AuthAttempts.WithLabelValues(string(auth.ClassTenant), "success").Inc()

	payload := gin.H{
		"tokens": pair,
		"user":   userPayload(user),
	}
	if record != nil {
		payload["session_id"] = record.SessionID
	}

	response.Success(c, http.StatusOK, payload)
}

// POST /api/auth/platform/login
func (h *AuthHandler) PlatformLogin(c *gin.Context) {
	var req platformLoginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if h.operator == nil || !h.operator.Configured() {
		metrics.AuthAttempts.WithLabelValues(string(auth.ClassPlatform), "failure").Inc()
		response.Error(c, appErrors.ErrInvalidCredentials)
		return
	}

	identity, err := h.operator.Authenticate(req.Email, req.Password)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues(string(auth.ClassPlatform), "failure").Inc()
		response.Error(c, appErrors.ErrInvalidCredentials)
		return
	}

	pair, record, err := h.establishSession(c, identity)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues(string(auth.ClassPlatform), "failure").Inc()
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	metrics.AuthAttempts.WithLabelValues(string(auth.ClassPlatform), "success").Inc()

	payload := gin.H{
		"tokens": pair,
		"user":   identityPayload(identity),
	}
	if record != nil {
		payload["session_id"] = record.SessionID
	}

	response.Success(c, http.StatusOK, payload)
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	h.refresh(c, auth.ClassTenant)
}

// POST /api/auth/platform/refresh
func (h *AuthHandler) PlatformRefresh(c *gin.Context) {
	h.refresh(c, auth.ClassPlatform)
}

// refresh rotates the token pair for one class. The session cookie is the
// primary carrier; the body-borne refresh token is a deprecated fallback for
// clients that cannot hold a cookie.
func (h *AuthHandler) refresh(c *gin.Context, class auth.TokenClass) {
	if h.registry != nil {
		if sessionID, ok := h.cookies.ReadSession(c.Request); ok && sessionID != "" {
			h.refreshFromSession(c, class, sessionID)
			return
		}
	}

	if !h.allowBodyRefresh {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	h.refreshFromBody(c, class)
}

func (h *AuthHandler) refreshFromSession(c *gin.Context, class auth.TokenClass, sessionID string) {
	ctx := requestContext(c)

	record := h.registry.Validate(ctx, sessionID)
	if record == nil || record.Tokens == nil || record.Tokens.RefreshToken == "" {
		h.cookies.ClearSession(c)
		response.Error(c, appErrors.ErrSessionNotFound)
		return
	}

	claims, err := h.tokens.VerifyRefresh(class, record.Tokens.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			// The session can never produce a fresh pair again.
			h.registry.Revoke(ctx, sessionID, record.SubjectID)
			h.cookies.ClearSession(c)
			response.Error(c, appErrors.ErrTokenExpired)
			return
		}
		// Wrong class for this route; the session itself stays intact.
		response.Error(c, appErrors.ErrTokenInvalid)
		return
	}

	pair, err := h.tokens.Issue(claims.Identity(), record.SessionID)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	if updated := h.registry.Rotate(ctx, record.SessionID, pair); updated != nil {
		h.cookies.SetSession(c, record.SessionID, h.registry.TTL())
	}

	response.Success(c, http.StatusOK, gin.H{"tokens": pair})
}

func (h *AuthHandler) refreshFromBody(c *gin.Context, class auth.TokenClass) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		response.Error(c, appErrors.NewBadRequest("refresh token is required"))
		return
	}

	h.log.Warn("deprecated body-borne refresh used",
		zap.String("class", string(class)),
		zap.String("ip", c.ClientIP()))

	claims, err := h.tokens.VerifyRefresh(class, req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			response.Error(c, appErrors.ErrTokenExpired)
			return
		}
		response.Error(c, appErrors.ErrTokenInvalid)
		return
	}

	ctx := requestContext(c)
	sessionID := claims.SessionID

	if h.registry != nil && sessionID != "" {
		if record := h.registry.Validate(ctx, sessionID); record != nil {
			pair, err := h.tokens.Issue(claims.Identity(), sessionID)
			if err != nil {
				response.Error(c, appErrors.ErrInternalServer)
				return
			}
			h.registry.Rotate(ctx, sessionID, pair)
			response.Success(c, http.StatusOK, gin.H{"tokens": pair})
			return
		}
		if h.registry.Available(ctx) {
			// The store answered and the session is gone: it was revoked.
			// Only an unreachable store downgrades to token-only refresh.
			response.Error(c, appErrors.ErrSessionNotFound)
			return
		}
	}

	pair, err := h.tokens.Issue(claims.Identity(), sessionID)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"tokens": pair})
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if h.registry != nil {
		if sessionID := middleware.CurrentSessionID(c); sessionID != "" {
			h.registry.Revoke(requestContext(c), sessionID, identity.SubjectID)
		}
	}
	h.cookies.ClearSession(c)

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	class, _ := middleware.CurrentTokenClass(c)

	if class == auth.ClassPlatform {
		payload := identityPayload(identity)
		payload["token_class"] = string(class)
		response.Success(c, http.StatusOK, payload)
		return
	}

	var user models.User
	if err := h.db.Take(&user, "id = ?", identity.SubjectID).Error; err != nil {
		response.Error(c, appErrors.ErrNotFound)
		return
	}

	payload := userPayload(&user)
	payload["token_class"] = string(auth.ClassTenant)
	response.Success(c, http.StatusOK, payload)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
}

// POST /api/auth/password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if identity.Role == models.RolePlatformOperator {
		response.Error(c, appErrors.ErrForbidden.WithMessage("Operator credentials are managed through configuration"))
		return
	}

	var req changePasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	verifier, err := providers.NewLocalVerifier(h.db, h.local)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	if err := verifier.ChangePassword(identity.SubjectID, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, providers.ErrInvalidCredentials) {
			response.Error(c, appErrors.ErrInvalidCredentials.WithMessage("Current password is incorrect"))
			return
		}
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	// Whoever held the old password loses their sessions; the device that
	// proved the old credential keeps this one.
	if h.registry != nil {
		ctx := requestContext(c)
		current := middleware.CurrentSessionID(c)
		for _, record := range h.registry.List(ctx, identity.SubjectID) {
			if record.SessionID == current {
				continue
			}
			h.registry.Revoke(ctx, record.SessionID, identity.SubjectID)
		}
	}

	response.Success(c, http.StatusOK, gin.H{"changed": true})
}

// establishSession issues a token pair and, when the session store is
// reachable, records the session and arms the cookie. A nil record means the
// login proceeds in token-only mode: the tokens still work, but there is no
// session to list or revoke.
func (h *AuthHandler) establishSession(c *gin.Context, identity auth.Identity) (auth.TokenPair, *auth.SessionRecord, error) {
	sessionID := auth.NewSessionID()

	pair, err := h.tokens.Issue(identity, sessionID)
	if err != nil {
		return auth.TokenPair{}, nil, err
	}

	var record *auth.SessionRecord
	if h.registry != nil {
		record = h.registry.Create(requestContext(c), auth.CreateSessionInput{
			SessionID: sessionID,
			Identity:  identity,
			Meta: auth.SessionMetadata{
				IPAddress: c.ClientIP(),
				UserAgent: c.Request.UserAgent(),
			},
			Tokens: &pair,
		})
	}
	if record != nil {
		h.cookies.SetSession(c, record.SessionID, h.registry.TTL())
	}

	return pair, record, nil
}

// loginDenial maps verifier failures onto the wire taxonomy. The code stays
// INVALID_CREDENTIALS throughout so callers cannot probe for account
// existence by distinguishing status codes.
func loginDenial(err error) *appErrors.AppError {
	switch {
	case errors.Is(err, providers.ErrAccountLocked):
		return appErrors.ErrInvalidCredentials.WithMessage("Account temporarily locked, try again later")
	case errors.Is(err, providers.ErrAccountDisabled):
		return appErrors.ErrInvalidCredentials.WithMessage("Account is disabled")
	case errors.Is(err, providers.ErrSchoolSuspended):
		return appErrors.ErrInvalidCredentials.WithMessage("School is not active")
	case errors.Is(err, providers.ErrInvalidCredentials):
		return appErrors.ErrInvalidCredentials
	default:
		return appErrors.ErrInternalServer
	}
}

func userPayload(user *models.User) gin.H {
	return gin.H{
		"id":            user.ID,
		"school_id":     user.SchoolID,
		"email":         user.Email,
		"first_name":    user.FirstName,
		"last_name":     user.LastName,
		"role":          user.Role,
		"is_active":     user.IsActive,
		"last_login_at": user.LastLoginAt,
	}
}

func identityPayload(identity auth.Identity) gin.H {
	return gin.H{
		"subject_id":   identity.SubjectID,
		"email":        identity.Email,
		"name":         identity.Name,
		"role":         identity.Role,
		"cross_tenant": identity.CrossTenant,
	}
}
