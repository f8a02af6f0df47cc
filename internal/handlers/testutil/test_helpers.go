package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/classpad/classpad/internal/api"
	"github.com/classpad/classpad/internal/auth"
	"github.com/classpad/classpad/internal/auth/providers"
	"github.com/classpad/classpad/internal/cache"
	sharedtestutil "github.com/classpad/classpad/internal/database/testutil"
	"github.com/classpad/classpad/internal/middleware"
	"github.com/classpad/classpad/internal/models"
	"github.com/classpad/classpad/internal/services"
	"github.com/classpad/classpad/pkg/crypto"
	"github.com/classpad/classpad/pkg/response"
)

// SchoolID is the tenant seeded into every test database.
const SchoolID = "SCH0001"

// Default platform operator credentials wired into test environments.
const (
	OperatorEmail    = "operator@classpad.test"
	OperatorPassword = "operator-password-1"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database
// for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	Tokens   *auth.TokenService
	Registry *auth.SessionRegistry

	csrfToken  string
	csrfCookie *http.Cookie
}

// EnvOption customises the wired environment.
type EnvOption func(*envConfig)

type envConfig struct {
	allowBodyRefresh bool
	registry         bool
}

// WithoutBodyRefresh disables the deprecated body-borne refresh fallback.
func WithoutBodyRefresh() EnvOption {
	return func(cfg *envConfig) {
		cfg.allowBodyRefresh = false
	}
}

// WithoutRegistry wires the API without a session registry, exercising
// token-only mode.
func WithoutRegistry() EnvOption {
	return func(cfg *envConfig) {
		cfg.registry = false
	}
}

// NewEnv provisions a fresh handler test environment with migrations and seed
// data applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	cfg := envConfig{allowBodyRefresh: true, registry: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		TenantAccessSecret:    "test-tenant-access-secret-32-bytes!",
		TenantRefreshSecret:   "test-tenant-refresh-secret-32-byte!",
		PlatformAccessSecret:  "test-platform-access-secret-32-byt!",
		PlatformRefreshSecret: "test-platform-refresh-secret-32-by!",
		Issuer:                "classpad-test",
	})
	require.NoError(t, err)

	var registry *auth.SessionRegistry
	if cfg.registry {
		registry = auth.NewSessionRegistry(cache.NewDatabaseStore(db), auth.RegistryConfig{})
	}

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)
	invites, err := services.NewInviteService(db, nil, audit)
	require.NoError(t, err)

	router, err := api.NewRouter(api.Deps{
		DB:       db,
		Tokens:   tokens,
		Registry: registry,
		Cookies:  auth.NewCookieManager("test"),
		Operator: providers.NewOperatorVerifier(providers.OperatorConfig{
			Email:    OperatorEmail,
			Password: OperatorPassword,
			Name:     "Platform Operator",
		}),
		Invites:          invites,
		Audit:            audit,
		RateStore:        middleware.NewMemoryRateStore(),
		AllowBodyRefresh: cfg.allowBodyRefresh,
	})
	require.NoError(t, err)

	return &Env{
		T:        t,
		DB:       db,
		Router:   router,
		Tokens:   tokens,
		Registry: registry,
	}
}

// CreateSchool inserts an additional active school and returns the record.
func (e *Env) CreateSchool(name string) *models.School {
	e.T.Helper()

	school := &models.School{Name: name, IsActive: true}
	require.NoError(e.T, e.DB.Create(school).Error)
	return school
}

// CreateUser inserts an active user with the given role into the school and
// returns the record. The supplied password is hashed before storage.
func (e *Env) CreateUser(schoolID string, role models.Role, password string) *models.User {
	e.T.Helper()

	hashed, err := crypto.HashPassword(password)
	require.NoError(e.T, err)

	user := &models.User{
		SchoolID:  schoolID,
		Email:     role.String() + "-" + uuid.NewString() + "@example.com",
		Password:  hashed,
		FirstName: "Test",
		LastName:  "User",
		Role:      role,
		IsActive:  true,
	}
	require.NoError(e.T, e.DB.Create(user).Error)
	return user
}

// CreateStudent inserts a student row, optionally linked to a parent and a
// homeroom teacher.
func (e *Env) CreateStudent(schoolID string, parentID, teacherID *string) *models.Student {
	e.T.Helper()

	student := &models.Student{
		SchoolID:  schoolID,
		FirstName: "Student",
		LastName:  uuid.NewString()[:8],
		ClassName: "4B",
		ParentID:  parentID,
		TeacherID: teacherID,
	}
	require.NoError(e.T, e.DB.Create(student).Error)
	return student
}

// TokenPayload mirrors the token pair embedded in auth responses.
type TokenPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// LoginResult bundles the JSON response from the login endpoints.
type LoginResult struct {
	Tokens    TokenPayload   `json:"tokens"`
	User      map[string]any `json:"user"`
	SessionID string         `json:"session_id"`

	// SessionCookie is the cookie set alongside the JSON payload, if any.
	SessionCookie *http.Cookie `json:"-"`
}

// Login authenticates a school user and returns the issued pair plus the
// session cookie.
func (e *Env) Login(schoolID, email, password string) LoginResult {
	e.T.Helper()

	payload := map[string]string{
		"school_id": schoolID,
		"email":     email,
		"password":  password,
	}

	w := e.Request(http.MethodPost, "/api/auth/login", payload, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())
	return e.decodeLogin(w)
}

// PlatformLogin authenticates the configured operator.
func (e *Env) PlatformLogin() LoginResult {
	e.T.Helper()

	payload := map[string]string{
		"email":    OperatorEmail,
		"password": OperatorPassword,
	}

	w := e.Request(http.MethodPost, "/api/auth/platform/login", payload, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())
	return e.decodeLogin(w)
}

func (e *Env) decodeLogin(w *httptest.ResponseRecorder) LoginResult {
	e.T.Helper()

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.Tokens.AccessToken)
	require.NotEmpty(e.T, result.Tokens.RefreshToken)
	require.Greater(e.T, result.Tokens.ExpiresIn, 0)

	result.SessionCookie = SessionCookie(w)
	return result
}

// SessionCookie extracts the session cookie from a recorded response, or nil
// when none was set.
func SessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			return c
		}
	}
	return nil
}

// IssueExpiredPair signs a pair with the environment's secrets whose validity
// window already closed, for exercising the expiry paths.
func (e *Env) IssueExpiredPair(identity auth.Identity, sessionID string) auth.TokenPair {
	e.T.Helper()

	stale, err := auth.NewTokenService(auth.TokenConfig{
		TenantAccessSecret:    "test-tenant-access-secret-32-bytes!",
		TenantRefreshSecret:   "test-tenant-refresh-secret-32-byte!",
		PlatformAccessSecret:  "test-platform-access-secret-32-byt!",
		PlatformRefreshSecret: "test-platform-refresh-secret-32-by!",
		Issuer:                "classpad-test",
		TenantAccessTTL:       time.Minute,
		TenantRefreshTTL:      time.Minute,
		PlatformAccessTTL:     time.Minute,
		PlatformRefreshTTL:    time.Minute,
		Clock: func() time.Time {
			return time.Now().Add(-2 * time.Hour)
		},
	})
	require.NoError(e.T, err)

	pair, err := stale.Issue(identity, sessionID)
	require.NoError(e.T, err)
	return pair
}

// APIResponse mirrors the JSON envelope every handler writes.
type APIResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Meta    *response.Meta  `json:"meta"`
}

// DecodeResponse reads the envelope out of a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals a raw data payload into dest.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON
// encoding, auth headers and CSRF attestation automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.request(method, path, body, token, nil, nil, false)
}

// RequestWithCookie is Request with an extra cookie attached, for exercising
// the session-cookie flows.
func (e *Env) RequestWithCookie(method, path string, body any, token string, cookie *http.Cookie) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.request(method, path, body, token, cookie, nil, false)
}

// RequestWithHeaders is Request with extra headers attached, for exercising
// the header-borne school selection.
func (e *Env) RequestWithHeaders(method, path string, body any, token string, headers map[string]string) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.request(method, path, body, token, nil, headers, false)
}

// RawRequest is Request without the automatic CSRF attestation, for
// exercising the CSRF guard itself.
func (e *Env) RawRequest(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.request(method, path, body, token, nil, nil, true)
}

func (e *Env) request(method, path string, body any, token string, extra *http.Cookie, headers map[string]string, skipCSRF bool) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if extra != nil {
		req.AddCookie(extra)
	}

	if !skipCSRF && requiresCSRFAttestation(method) {
		e.ensureCSRFToken()
		if e.csrfCookie != nil {
			req.AddCookie(e.csrfCookie)
		}
		if e.csrfToken != "" {
			req.Header.Set(middleware.CSRFHeaderName, e.csrfToken)
		}
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)

	e.captureCSRF(w.Result())
	return w
}

func (e *Env) ensureCSRFToken() {
	if e.csrfToken != "" && e.csrfCookie != nil {
		return
	}
	resp := e.request(http.MethodGet, "/health", nil, "", nil, nil, true)
	require.Equal(e.T, http.StatusOK, resp.Code, resp.Body.String())
}

func (e *Env) captureCSRF(resp *http.Response) {
	if resp == nil {
		return
	}
	defer resp.Body.Close()

	if token := resp.Header.Get(middleware.CSRFHeaderName); token != "" {
		e.csrfToken = token
	}
	for _, c := range resp.Cookies() {
		if c.Name == middleware.CSRFCookieName {
			// Copy before handing out so tests cannot mutate shared fixtures
			e.csrfCookie = &http.Cookie{
				Name:       c.Name,
				Value:      c.Value,
				Path:       c.Path,
				Domain:     c.Domain,
				Expires:    c.Expires,
				Raw:        c.Raw,
				MaxAge:     c.MaxAge,
				Secure:     c.Secure,
				HttpOnly:   c.HttpOnly,
				SameSite:   c.SameSite,
				RawExpires: c.RawExpires,
			}
			break
		}
	}
}

func requiresCSRFAttestation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
