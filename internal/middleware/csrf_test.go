package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func csrfTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(CSRF())
	r.GET("/api/schools", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.POST("/api/schools", func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})
	return r
}

// fetchCSRFToken performs a safe request and returns the issued cookie and
// header token.
func fetchCSRFToken(t *testing.T, r *gin.Engine) (*http.Cookie, string) {
	t.Helper()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/schools", nil))
	require.Equal(t, http.StatusOK, w.Code)

	resp := w.Result()
	defer resp.Body.Close()

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == CSRFCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie, "expected csrf cookie to be issued")
	require.NotEmpty(t, cookie.Value)

	token := resp.Header.Get(CSRFHeaderName)
	require.NotEmpty(t, token, "expected csrf token header on safe methods")
	require.Equal(t, cookie.Value, token)
	return cookie, token
}

func TestCSRFIssuesTokenOnSafeMethod(t *testing.T) {
	fetchCSRFToken(t, csrfTestRouter())
}

func TestCSRFAcceptsEchoedToken(t *testing.T) {
	r := csrfTestRouter()
	cookie, token := fetchCSRFToken(t, r)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/schools", nil)
	req.AddCookie(cookie)
	req.Header.Set(CSRFHeaderName, token)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
}

func TestCSRFRejectsMissingHeader(t *testing.T) {
	r := csrfTestRouter()
	cookie, _ := fetchCSRFToken(t, r)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/schools", nil)
	req.AddCookie(cookie)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, w.Body.String(), "CSRF")
}

func TestCSRFRejectsMismatchedToken(t *testing.T) {
	r := csrfTestRouter()
	cookie, token := fetchCSRFToken(t, r)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/schools", nil)
	req.AddCookie(cookie)
	req.Header.Set(CSRFHeaderName, strings.Repeat("x", len(token)))
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestCSRFSkipsPreflight(t *testing.T) {
	r := csrfTestRouter()
	r.OPTIONS("/api/schools", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/schools", nil))

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Empty(t, w.Header().Get(CSRFHeaderName))
}
