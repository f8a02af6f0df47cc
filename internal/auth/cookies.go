package auth

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SessionCookieName carries the opaque session identifier (or, in the legacy
// body-refresh mode, nothing at all). Path is always "/" and HttpOnly is
// never downgraded regardless of environment.
const SessionCookieName = "classpad_session"

// EnvProduction is the environment name that forces the Secure attribute.
const EnvProduction = "production"

// CookieManager issues and clears the session cookie. Attribute selection is
// a pure function of the deployment environment and the request's origin;
// nothing else about the request influences it.
type CookieManager struct {
	environment string
}

// NewCookieManager constructs a manager for the given deployment environment.
func NewCookieManager(environment string) *CookieManager {
	return &CookieManager{environment: strings.ToLower(strings.TrimSpace(environment))}
}

// SetSession writes the session cookie with the supplied lifetime.
func (m *CookieManager) SetSession(c *gin.Context, value string, maxAge time.Duration) {
	attrs := cookieAttributes(m.environment, sameOriginRequest(c.Request), isSecureRequest(c.Request))

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   attrs.secure,
		SameSite: attrs.sameSite,
	})
}

// ClearSession expires the session cookie so clients stop retrying a dead
// session reference.
func (m *CookieManager) ClearSession(c *gin.Context) {
	attrs := cookieAttributes(m.environment, sameOriginRequest(c.Request), isSecureRequest(c.Request))

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   attrs.secure,
		SameSite: attrs.sameSite,
	})
}

// ReadSession extracts the session cookie value from a request.
func (m *CookieManager) ReadSession(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

type cookieAttrs struct {
	secure   bool
	sameSite http.SameSite
}

// cookieAttributes derives the mutable cookie attributes. The function is
// total: every input combination yields a valid attribute set.
//
// Secure is set in production unconditionally, and elsewhere whenever the
// request already travelled over TLS. Cross-origin callers need SameSite=None,
// which browsers only honour together with Secure; when Secure is impossible
// the attribute falls back to Lax rather than emitting an invalid pair.
func cookieAttributes(environment string, sameOrigin, secureTransport bool) cookieAttrs {
	secure := secureTransport || environment == EnvProduction

	sameSite := http.SameSiteLaxMode
	if !sameOrigin && secure {
		sameSite = http.SameSiteNoneMode
	}

	return cookieAttrs{secure: secure, sameSite: sameSite}
}

// sameOriginRequest classifies the request using only the Origin header.
// Requests without one (non-CORS traffic) count as same-origin.
func sameOriginRequest(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	return strings.EqualFold(parsed.Host, r.Host)
}

func isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
