package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/classpad/classpad/internal/auth"
	"github.com/classpad/classpad/internal/models"
)

type testClock struct {
	current time.Time
}

func (c *testClock) Now() time.Time          { return c.current }
func (c *testClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

func newTestClock() *testClock {
	return &testClock{current: time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)}
}

// stubStore is a minimal in-process cache.Store for the session registry.
type stubStore struct {
	mu     sync.Mutex
	values map[string][]byte
	sets   map[string]map[string]struct{}
}

func newStubStore() *stubStore {
	return &stubStore{
		values: make(map[string][]byte),
		sets:   make(map[string]map[string]struct{}),
	}
}

func (s *stubStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	return 1, window, nil
}

func (s *stubStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
	return nil
}

func (s *stubStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	return value, ok, nil
}

func (s *stubStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.values, key)
		delete(s.sets, key)
	}
	return nil
}

func (s *stubStore) SetAdd(ctx context.Context, key, member string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sets[key] == nil {
		s.sets[key] = make(map[string]struct{})
	}
	s.sets[key][member] = struct{}{}
	return nil
}

func (s *stubStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := make([]string, 0, len(s.sets[key]))
	for member := range s.sets[key] {
		members = append(members, member)
	}
	return members, nil
}

func (s *stubStore) SetRemove(ctx context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, member := range members {
		delete(s.sets[key], member)
	}
	return nil
}

func (s *stubStore) Expire(ctx context.Context, key string, ttl time.Duration) error { return nil }
func (s *stubStore) Ping(ctx context.Context) error                                  { return nil }

func newTestTokenService(t *testing.T, clock *testClock) *auth.TokenService {
	t.Helper()
	svc, err := auth.NewTokenService(auth.TokenConfig{
		TenantAccessSecret:    "tenant-access-secret",
		TenantRefreshSecret:   "tenant-refresh-secret",
		PlatformAccessSecret:  "platform-access-secret",
		PlatformRefreshSecret: "platform-refresh-secret",
		Issuer:                "classpad",
		TenantAccessTTL:       time.Hour,
		TenantRefreshTTL:      24 * time.Hour,
		PlatformAccessTTL:     time.Hour,
		PlatformRefreshTTL:    24 * time.Hour,
		Clock:                 clock.Now,
	})
	require.NoError(t, err)
	return svc
}

func testAuthDeps(t *testing.T, clock *testClock) AuthDeps {
	t.Helper()
	registry := auth.NewSessionRegistry(newStubStore(), auth.RegistryConfig{
		TTL:   time.Hour,
		Clock: clock.Now,
	})
	return AuthDeps{
		Tokens:   newTestTokenService(t, clock),
		Registry: registry,
		Cookies:  auth.NewCookieManager("test"),
	}
}

func teacherIdentity() auth.Identity {
	return auth.Identity{
		SubjectID: "user-7",
		Role:      models.RoleTeacher,
		SchoolID:  "SCH0001",
		Email:     "teacher@sch0001.example",
	}
}

func operatorIdentity() auth.Identity {
	return auth.Identity{
		SubjectID:   "platform-operator",
		Role:        models.RolePlatformOperator,
		Email:       "ops@classpad.io",
		CrossTenant: true,
	}
}

// identityEcho terminates a guarded route by echoing the request identity.
func identityEcho(c *gin.Context) {
	identity, _ := CurrentIdentity(c)
	class, _ := CurrentTokenClass(c)
	c.JSON(http.StatusOK, gin.H{
		"subject_id": identity.SubjectID,
		"role":       identity.Role,
		"school_id":  identity.SchoolID,
		"class":      string(class),
		"session_id": CurrentSessionID(c),
	})
}

func denialBody(t *testing.T, w *httptest.ResponseRecorder) (message, code string) {
	t.Helper()
	var body struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.False(t, body.Success)
	return body.Message, body.Code
}

func TestAuthenticateBearer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	clock := newTestClock()
	deps := testAuthDeps(t, clock)

	pair, err := deps.Tokens.Issue(teacherIdentity(), "session-abc")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/secure", Chain(Authenticate(deps, auth.ClassTenant)), identityEcho)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, "user-7", payload["subject_id"])
	require.Equal(t, "SCH0001", payload["school_id"])
	require.Equal(t, "tenant", payload["class"])
	require.Equal(t, "session-abc", payload["session_id"])
}

func TestAuthenticateMissingCredentials(t *testing.T) {
	gin.SetMode(gin.TestMode)
	deps := testAuthDeps(t, newTestClock())

	r := gin.New()
	r.GET("/secure", Chain(Authenticate(deps, auth.ClassTenant)), identityEcho)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/secure", nil))

	require.Equal(t, http.StatusUnauthorized, w.Code)
	message, code := denialBody(t, w)
	require.Equal(t, "Access token required", message)
	require.Equal(t, "AUTH_TOKEN_REQUIRED", code)
}

func TestAuthenticateMalformedHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	deps := testAuthDeps(t, newTestClock())

	r := gin.New()
	r.GET("/secure", Chain(Authenticate(deps, auth.ClassTenant)), identityEcho)

	for _, header := range []string{"Token abc", "Bearer", "Bearer    ", "bearer"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/secure", nil)
		req.Header.Set("Authorization", header)
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
		message, code := denialBody(t, w)
		require.Equal(t, "Invalid token format", message, "header %q", header)
		require.Equal(t, "AUTH_TOKEN_FORMAT", code)
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	clock := newTestClock()
	deps := testAuthDeps(t, clock)

	pair, err := deps.Tokens.Issue(teacherIdentity(), "")
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	r := gin.New()
	r.GET("/secure", Chain(Authenticate(deps, auth.ClassTenant)), identityEcho)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	message, _ := denialBody(t, w)
	require.Equal(t, "Token expired", message)
}

func TestAuthenticateRejectsWrongClass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	deps := testAuthDeps(t, newTestClock())

	platformPair, err := deps.Tokens.Issue(operatorIdentity(), "")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/secure", Chain(Authenticate(deps, auth.ClassTenant)), identityEcho)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+platformPair.AccessToken)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
	message, code := denialBody(t, w)
	require.Equal(t, "Invalid token", message)
	require.Equal(t, "AUTH_TOKEN_INVALID", code)
}

func TestAuthenticateCookieFlow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	clock := newTestClock()
	deps := testAuthDeps(t, clock)
	ctx := context.Background()

	sessionID := auth.NewSessionID()
	pair, err := deps.Tokens.Issue(teacherIdentity(), sessionID)
	require.NoError(t, err)
	record := deps.Registry.Create(ctx, auth.CreateSessionInput{
		SessionID: sessionID,
		Identity:  teacherIdentity(),
		Tokens:    &pair,
	})
	require.NotNil(t, record)

	r := gin.New()
	r.GET("/secure", Chain(Authenticate(deps, auth.ClassTenant)), identityEcho)

	clock.Advance(10 * time.Minute)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: sessionID})
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, "user-7", payload["subject_id"])
	require.Equal(t, sessionID, payload["session_id"])

	// The request touched the session.
	touched := deps.Registry.Validate(ctx, sessionID)
	require.NotNil(t, touched)
	require.Equal(t, clock.Now(), touched.LastActivity)
}

func TestAuthenticateCookieSessionGone(t *testing.T) {
	gin.SetMode(gin.TestMode)
	deps := testAuthDeps(t, newTestClock())

	r := gin.New()
	r.GET("/secure", Chain(Authenticate(deps, auth.ClassTenant)), identityEcho)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "no-such-session"})
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	_, code := denialBody(t, w)
	require.Equal(t, "SESSION_NOT_FOUND", code)

	// The dead cookie is cleared so the client stops retrying it.
	response := w.Result()
	defer response.Body.Close()
	var cleared bool
	for _, cookie := range response.Cookies() {
		if cookie.Name == auth.SessionCookieName {
			require.Empty(t, cookie.Value)
			require.Negative(t, cookie.MaxAge)
			cleared = true
		}
	}
	require.True(t, cleared)
}

func TestAuthenticateHeaderTakesPrecedenceOverCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	clock := newTestClock()
	deps := testAuthDeps(t, clock)

	sessionID := auth.NewSessionID()
	pair, err := deps.Tokens.Issue(teacherIdentity(), sessionID)
	require.NoError(t, err)
	require.NotNil(t, deps.Registry.Create(context.Background(), auth.CreateSessionInput{
		SessionID: sessionID,
		Identity:  teacherIdentity(),
		Tokens:    &pair,
	}))

	r := gin.New()
	r.GET("/secure", Chain(Authenticate(deps, auth.ClassTenant)), identityEcho)

	// A malformed header denies even though a perfectly good cookie rides along.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Token nope")
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: sessionID})
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	_, code := denialBody(t, w)
	require.Equal(t, "AUTH_TOKEN_FORMAT", code)
}

func TestAuthenticateAnyResolvesBothClasses(t *testing.T) {
	gin.SetMode(gin.TestMode)
	clock := newTestClock()
	deps := testAuthDeps(t, clock)

	r := gin.New()
	r.GET("/me", Chain(AuthenticateAny(deps)), identityEcho)

	tenantPair, err := deps.Tokens.Issue(teacherIdentity(), "")
	require.NoError(t, err)
	platformPair, err := deps.Tokens.Issue(operatorIdentity(), "")
	require.NoError(t, err)

	for token, wantClass := range map[string]string{
		tenantPair.AccessToken:   "tenant",
		platformPair.AccessToken: "platform",
	} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var payload map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
		require.Equal(t, wantClass, payload["class"])
	}
}

func TestBearerWorksWithoutSessionStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	clock := newTestClock()
	deps := testAuthDeps(t, clock)
	// Token-only deployment: no registry at all.
	deps.Registry = auth.NewSessionRegistry(nil, auth.RegistryConfig{})

	pair, err := deps.Tokens.Issue(teacherIdentity(), "session-abc")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/secure", Chain(Authenticate(deps, auth.ClassTenant)), identityEcho)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
