package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func cookieTestContext(t *testing.T, origin, forwardedProto string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)

	req := httptest.NewRequest(http.MethodPost, "http://app.classpad.test/api/auth/login", nil)
	req.Host = "app.classpad.test"
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if forwardedProto != "" {
		req.Header.Set("X-Forwarded-Proto", forwardedProto)
	}
	c.Request = req
	return c, recorder
}

func issuedCookie(t *testing.T, recorder *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	response := recorder.Result()
	defer response.Body.Close()

	for _, cookie := range response.Cookies() {
		if cookie.Name == SessionCookieName {
			return cookie
		}
	}
	t.Fatalf("response carries no %s cookie", SessionCookieName)
	return nil
}

func TestCookieAttributeDerivation(t *testing.T) {
	tests := []struct {
		name            string
		environment     string
		sameOrigin      bool
		secureTransport bool
		wantSecure      bool
		wantSameSite    http.SameSite
	}{
		{"dev same-origin plaintext", "development", true, false, false, http.SameSiteLaxMode},
		{"dev cross-origin plaintext stays lax", "development", false, false, false, http.SameSiteLaxMode},
		{"dev cross-origin tls", "development", false, true, true, http.SameSiteNoneMode},
		{"production same-origin", "production", true, false, true, http.SameSiteLaxMode},
		{"production cross-origin", "production", false, false, true, http.SameSiteNoneMode},
		{"production tls cross-origin", "production", false, true, true, http.SameSiteNoneMode},
		{"staging tls same-origin", "staging", true, true, true, http.SameSiteLaxMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := cookieAttributes(tt.environment, tt.sameOrigin, tt.secureTransport)
			require.Equal(t, tt.wantSecure, attrs.secure)
			require.Equal(t, tt.wantSameSite, attrs.sameSite)
		})
	}
}

func TestSetSessionWritesHardenedCookie(t *testing.T) {
	manager := NewCookieManager("Production")
	c, recorder := cookieTestContext(t, "", "")

	manager.SetSession(c, "session-123", 24*time.Hour)

	cookie := issuedCookie(t, recorder)
	require.Equal(t, "session-123", cookie.Value)
	require.Equal(t, "/", cookie.Path)
	require.True(t, cookie.HttpOnly)
	require.True(t, cookie.Secure)
	require.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	require.Equal(t, int((24 * time.Hour).Seconds()), cookie.MaxAge)
}

func TestSetSessionCrossOriginOverTLS(t *testing.T) {
	manager := NewCookieManager("development")
	c, recorder := cookieTestContext(t, "https://dashboard.classpad.test", "https")

	manager.SetSession(c, "session-123", time.Hour)

	cookie := issuedCookie(t, recorder)
	require.True(t, cookie.Secure)
	require.Equal(t, http.SameSiteNoneMode, cookie.SameSite)
	require.True(t, cookie.HttpOnly)
}

func TestSetSessionNeverPairsNoneWithInsecure(t *testing.T) {
	manager := NewCookieManager("development")
	c, recorder := cookieTestContext(t, "http://dashboard.classpad.test", "")

	manager.SetSession(c, "session-123", time.Hour)

	cookie := issuedCookie(t, recorder)
	require.False(t, cookie.Secure)
	require.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
}

func TestClearSessionExpiresCookie(t *testing.T) {
	manager := NewCookieManager("production")
	c, recorder := cookieTestContext(t, "", "")

	manager.ClearSession(c)

	cookie := issuedCookie(t, recorder)
	require.Empty(t, cookie.Value)
	require.Negative(t, cookie.MaxAge)
	require.True(t, cookie.HttpOnly)
}

func TestReadSession(t *testing.T) {
	manager := NewCookieManager("development")

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	_, ok := manager.ReadSession(req)
	require.False(t, ok)

	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: ""})
	_, ok = manager.ReadSession(req)
	require.False(t, ok)

	req = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "session-123"})
	value, ok := manager.ReadSession(req)
	require.True(t, ok)
	require.Equal(t, "session-123", value)
}

func TestSameOriginClassification(t *testing.T) {
	base := func(origin string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "http://app.classpad.test/api", nil)
		req.Host = "app.classpad.test"
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		return req
	}

	require.True(t, sameOriginRequest(base("")))
	require.True(t, sameOriginRequest(base("http://app.classpad.test")))
	require.True(t, sameOriginRequest(base("https://APP.CLASSPAD.TEST")))
	require.False(t, sameOriginRequest(base("https://evil.example")))
	require.False(t, sameOriginRequest(base("not a url")))
}
