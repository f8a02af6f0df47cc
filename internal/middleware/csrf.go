package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/classpad/classpad/pkg/crypto"
	"github.com/classpad/classpad/pkg/errors"
	"github.com/classpad/classpad/pkg/logger"
	"github.com/classpad/classpad/pkg/response"
)

const (
	// CSRFCookieName transports the CSRF token to browser clients.
	CSRFCookieName = "classpad_csrf"
	// CSRFHeaderName is the header mutating requests must echo the token in.
	CSRFHeaderName = "X-CSRF-Token"

	csrfTokenLength  = 48
	csrfCookieMaxAge = 12 * 60 * 60
)

// CSRF enforces the double-submit-cookie pattern. Safe methods receive the
// current token via cookie and response header; mutating requests must echo
// it back in the X-CSRF-Token header.
func CSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		token, issued, err := ensureCSRFCookie(c)
		if err != nil {
			response.Error(c, errors.ErrInternalServer)
			c.Abort()
			return
		}

		if !isMutating(c.Request.Method) {
			// Safe methods hand the current token back so clients can echo it.
			c.Header(CSRFHeaderName, token)
			c.Next()
			return
		}

		headerToken := strings.TrimSpace(c.GetHeader(CSRFHeaderName))
		if !constantTimeEqual(token, headerToken) {
			// Token contents stay out of the log line.
			logger.WithModule("csrf").Warn("csrf validation failed",
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.Bool("cookie_issued", issued),
			)
			response.Error(c, errors.ErrCSRFInvalid)
			c.Abort()
			return
		}

		c.Next()
	}
}

// ensureCSRFCookie returns the caller's token, minting one when the request
// carried no cookie. The cookie is written either way to refresh its age.
func ensureCSRFCookie(c *gin.Context) (string, bool, error) {
	if existing, err := c.Cookie(CSRFCookieName); err == nil && existing != "" {
		writeCSRFCookie(c, existing)
		return existing, false, nil
	}

	minted, err := crypto.GenerateToken(csrfTokenLength)
	if err != nil {
		return "", false, err
	}
	writeCSRFCookie(c, minted)
	return minted, true, nil
}

func writeCSRFCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteStrictMode)
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   csrfCookieMaxAge,
		Secure:   isSecureRequest(c.Request),
		HttpOnly: false, // client scripts read this cookie to build the echo header
		SameSite: http.SameSiteStrictMode,
	})
}

// isSecureRequest treats a request as HTTPS when it terminated TLS locally
// or arrived through a proxy that says so.
func isSecureRequest(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// constantTimeEqual compares two tokens without leaking the mismatch
// position. Empty inputs never match; ConstantTimeCompare rejects length
// mismatches itself.
func constantTimeEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
