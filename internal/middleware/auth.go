package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/classpad/classpad/internal/auth"
	apperrors "github.com/classpad/classpad/pkg/errors"
	"github.com/classpad/classpad/pkg/metrics"
)

// AuthDeps bundles the collaborators the authentication guards need.
type AuthDeps struct {
	Tokens   *auth.TokenService
	Registry *auth.SessionRegistry
	Cookies  *auth.CookieManager
}

type verifyFunc func(token string) (*auth.Claims, auth.TokenClass, error)

// Authenticate builds the authentication guard for routes bound to a single
// token class. Credentials are taken from the Authorization header or, absent
// one, from the session cookie indirection.
func Authenticate(deps AuthDeps, class auth.TokenClass) Guard {
	return authenticate(deps, func(token string) (*auth.Claims, auth.TokenClass, error) {
		claims, err := deps.Tokens.VerifyAccess(class, token)
		return claims, class, err
	})
}

// AuthenticateAny authenticates against either token class, trying the
// platform class first. Only the unified "who am I" surface uses it.
func AuthenticateAny(deps AuthDeps) Guard {
	return authenticate(deps, deps.Tokens.ResolveAccess)
}

func authenticate(deps AuthDeps, verify verifyFunc) Guard {
	return func(c *gin.Context) *apperrors.AppError {
		authz := c.GetHeader("Authorization")
		if authz != "" {
			return decide("authenticate", bearerAuth(deps, c, authz, verify))
		}

		if deps.Cookies != nil {
			if sessionID, ok := deps.Cookies.ReadSession(c.Request); ok {
				return decide("authenticate", cookieAuth(deps, c, sessionID, verify))
			}
		}

		return decide("authenticate", apperrors.ErrTokenRequired)
	}
}

// bearerAuth handles the classic header flow. It never needs the session
// store: a reachable registry only adds the best-effort activity touch.
func bearerAuth(deps AuthDeps, c *gin.Context, authz string, verify verifyFunc) *apperrors.AppError {
	if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
		return apperrors.ErrTokenFormat
	}
	token := strings.TrimSpace(authz[7:])
	if token == "" {
		return apperrors.ErrTokenFormat
	}

	claims, class, err := verify(token)
	if err != nil {
		c.Header("WWW-Authenticate", "Bearer")
		return tokenError(class, err)
	}
	metrics.TokenVerifications.WithLabelValues(string(class), "ok").Inc()

	admit(c, claims, class)

	if deps.Registry != nil && claims.SessionID != "" {
		deps.Registry.Touch(c.Request.Context(), claims.SessionID)
	}
	return nil
}

// cookieAuth resolves the opaque session cookie to the server-held access
// token and verifies that. A dead or unreachable session clears the cookie so
// well-behaved clients stop retrying it.
func cookieAuth(deps AuthDeps, c *gin.Context, sessionID string, verify verifyFunc) *apperrors.AppError {
	if deps.Registry == nil {
		deps.Cookies.ClearSession(c)
		return apperrors.ErrSessionNotFound
	}

	record := deps.Registry.Validate(c.Request.Context(), sessionID)
	if record == nil || record.Tokens == nil || record.Tokens.AccessToken == "" {
		deps.Cookies.ClearSession(c)
		return apperrors.ErrSessionNotFound
	}

	claims, class, err := verify(record.Tokens.AccessToken)
	if err != nil {
		// An expired server-held token is recoverable through refresh, so the
		// session and cookie stay. A class mismatch is not an error either:
		// the session may be perfectly valid for routes of its own class.
		return tokenError(class, err)
	}
	metrics.TokenVerifications.WithLabelValues(string(class), "ok").Inc()

	admit(c, claims, class)
	c.Set(CtxSessionIDKey, record.SessionID)

	deps.Registry.Touch(c.Request.Context(), record.SessionID)
	return nil
}

func admit(c *gin.Context, claims *auth.Claims, class auth.TokenClass) {
	c.Set(CtxIdentityKey, claims.Identity())
	c.Set(CtxClaimsKey, claims)
	c.Set(CtxTokenClassKey, class)
	if claims.SessionID != "" {
		c.Set(CtxSessionIDKey, claims.SessionID)
	}
}

// tokenError maps verification failures onto the response taxonomy. Expiry
// wins over every shape problem.
func tokenError(class auth.TokenClass, err error) *apperrors.AppError {
	if errors.Is(err, auth.ErrTokenExpired) {
		metrics.TokenVerifications.WithLabelValues(string(class), "expired").Inc()
		return apperrors.ErrTokenExpired
	}
	metrics.TokenVerifications.WithLabelValues(string(class), "invalid").Inc()
	return apperrors.ErrTokenInvalid
}
