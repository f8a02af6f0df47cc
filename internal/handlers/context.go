package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/classpad/classpad/internal/auth"
	"github.com/classpad/classpad/internal/middleware"
	"github.com/classpad/classpad/internal/models"
)

// requestContext returns the request context, falling back to Background for bare test contexts.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// effectiveSchoolID resolves which school a tenant-scoped handler operates
// on. Tenant callers are pinned to their own school regardless of what the
// request names; the platform operator selects one through the path, the
// request body, the query string, or the X-School-ID header, in that order.
// The tenant guard has already denied any mismatch, so no re-check happens
// here.
func effectiveSchoolID(c *gin.Context, identity auth.Identity, bodySchoolID string) string {
	if identity.Role != models.RolePlatformOperator {
		return identity.SchoolID
	}
	if v := strings.TrimSpace(c.Param("schoolID")); v != "" {
		return v
	}
	if v := strings.TrimSpace(bodySchoolID); v != "" {
		return v
	}
	if v := strings.TrimSpace(c.Query("school_id")); v != "" {
		return v
	}
	return strings.TrimSpace(c.GetHeader(middleware.SchoolIDHeader))
}
